package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kansa/internal/models"
)

const schemaVersion = 1

const schema = `
CREATE TABLE chunks (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	content     TEXT NOT NULL,
	source      TEXT NOT NULL,
	page        INTEGER NOT NULL,
	total_pages INTEGER NOT NULL,
	chunk_index INTEGER NOT NULL
);
CREATE TABLE manifest (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteSnapshot stores a Snapshot in a single SQLite file. It uses a rollback
// journal rather than WAL so the file is self-contained when its directory is
// renamed into place.
type SQLiteSnapshot struct {
	db *sql.DB
}

// CreateSQLiteSnapshot creates a new snapshot database at path. Parent
// directories are created; an existing file is an error.
func CreateSQLiteSnapshot(path string) (*SQLiteSnapshot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create snapshot: %s already exists", path)
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode=DELETE",
		schema,
		fmt.Sprintf("PRAGMA user_version=%d", schemaVersion),
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize snapshot: %w", err)
		}
	}
	return &SQLiteSnapshot{db: db}, nil
}

// OpenSQLiteSnapshot opens an existing snapshot read-only and checks its
// schema version.
func OpenSQLiteSnapshot(path string) (*SQLiteSnapshot, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	dsn := (&url.URL{Scheme: "file", Opaque: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	if version != schemaVersion {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %d", ErrSchemaVersion, version)
	}
	return &SQLiteSnapshot{db: db}, nil
}

// WriteChunks inserts chunks in one transaction.
func (s *SQLiteSnapshot) WriteChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, content, source, page, total_pages, chunk_index) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Content, c.Source, c.Page, c.TotalPages, c.ChunkIndex); err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// Chunks returns all chunks in insertion order.
func (s *SQLiteSnapshot) Chunks(ctx context.Context) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, source, page, total_pages, chunk_index FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.Content, &c.Source, &c.Page, &c.TotalPages, &c.ChunkIndex); err != nil {
			return nil, err
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// SetManifest upserts every manifest entry in one transaction.
func (s *SQLiteSnapshot) SetManifest(ctx context.Context, manifest map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for k, v := range manifest {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO manifest (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("set manifest %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Manifest returns all manifest entries.
func (s *SQLiteSnapshot) Manifest(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM manifest`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *SQLiteSnapshot) Close() error {
	return s.db.Close()
}
