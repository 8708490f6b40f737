package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/kansa/internal/models"
)

func sampleChunks() []*models.Chunk {
	return []*models.Chunk{
		{ID: "c1", Content: "Methodology section", Source: "report.pdf", Page: 1, TotalPages: 2, ChunkIndex: 0},
		{ID: "c2", Content: "Budget section", Source: "report.pdf", Page: 2, TotalPages: 2, ChunkIndex: 0},
		{ID: "c3", Content: "Appendix", Source: "annex.pdf", Page: 1, TotalPages: 1, ChunkIndex: 0},
	}
}

// writeSnapshot creates a snapshot with the sample chunks and manifest and
// closes it, returning its path.
func writeSnapshot(t *testing.T, manifest map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staging", "chunks.db")
	s, err := CreateSQLiteSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.WriteChunks(ctx, sampleChunks()); err != nil {
		t.Fatal(err)
	}
	if err := s.SetManifest(ctx, manifest); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSQLiteSnapshot_RoundTrip(t *testing.T) {
	manifest := map[string]string{"dimensions": "384", "backend": "memory"}
	path := writeSnapshot(t, manifest)

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("snapshot dir should hold only the database, got %d entries", len(entries))
	}

	s, err := OpenSQLiteSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	chunks, err := s.Chunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunks, sampleChunks()) {
		t.Errorf("Chunks = %+v", chunks)
	}
	got, err := s.Manifest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, manifest) {
		t.Errorf("Manifest = %v, want %v", got, manifest)
	}
}

func TestSQLiteSnapshot_ReadOnly(t *testing.T) {
	s, err := OpenSQLiteSnapshot(writeSnapshot(t, map[string]string{"backend": "memory"}))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.SetManifest(context.Background(), map[string]string{"backend": "chromem"}); err == nil {
		t.Error("writing to an opened snapshot should fail")
	}
}

func TestSQLiteSnapshot_DuplicateID(t *testing.T) {
	s, err := CreateSQLiteSnapshot(filepath.Join(t.TempDir(), "chunks.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()
	dup := append(sampleChunks(), &models.Chunk{ID: "c1", Content: "again", Source: "x.pdf", Page: 1, TotalPages: 1})
	if err := s.WriteChunks(ctx, dup); err == nil {
		t.Fatal("expected error for duplicate chunk ID")
	}
	// The failed batch is rolled back as a whole.
	if chunks, _ := s.Chunks(ctx); len(chunks) != 0 {
		t.Errorf("chunks after failed write = %d", len(chunks))
	}
}

func TestCreateSQLiteSnapshot_existing(t *testing.T) {
	path := writeSnapshot(t, nil)
	if _, err := CreateSQLiteSnapshot(path); err == nil {
		t.Error("expected error creating over an existing snapshot")
	}
}

func TestOpenSQLiteSnapshot_errors(t *testing.T) {
	if _, err := OpenSQLiteSnapshot(filepath.Join(t.TempDir(), "none.db")); err == nil {
		t.Error("expected error opening a missing snapshot")
	}

	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE chunks (id TEXT)"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()
	if _, err := OpenSQLiteSnapshot(path); !errors.Is(err, ErrSchemaVersion) {
		t.Errorf("err = %v, want ErrSchemaVersion", err)
	}
}
