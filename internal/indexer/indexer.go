// Package indexer turns files into chunks and commits them to the vector store
// according to the configured index mode.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/config"
	"github.com/hyperjump/kansa/internal/ingest"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/pkg/utils"
)

// ErrNoText means none of the given files produced any text.
var ErrNoText = errors.New("no text extracted")

// Store is the part of the vector store lifecycle the indexer drives.
type Store interface {
	Build(ctx context.Context, chunks []*models.Chunk) error
	Append(ctx context.Context, chunks []*models.Chunk) error
	RemoveSource(ctx context.Context, source string) (int, error)
	Persist(ctx context.Context) error
}

// Indexer serializes every index mutation: ingest, build or append, persist.
type Indexer struct {
	ingestor   *ingest.Ingestor
	store      Store
	mode       string
	extensions []string
	logger     *zap.Logger

	mu sync.Mutex
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithExtensions restricts IndexDirectory to files with these extensions.
func WithExtensions(exts []string) IndexerOption {
	return func(idx *Indexer) { idx.extensions = exts }
}

// NewIndexer creates an indexer. mode is config.ModeReplace (each commit
// rebuilds the index from the new files only) or config.ModeAppend.
func NewIndexer(ingestor *ingest.Ingestor, store Store, mode string, opts ...IndexerOption) *Indexer {
	if mode == "" {
		mode = config.ModeReplace
	}
	idx := &Indexer{ingestor: ingestor, store: store, mode: mode}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Mode returns the index mode.
func (idx *Indexer) Mode() string {
	return idx.mode
}

// IndexFile ingests one file, commits its chunks and persists the index.
// It returns the number of chunks indexed.
func (idx *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	return idx.IndexFiles(ctx, []string{path})
}

// IndexFiles ingests every file and commits all chunks in one step, so in
// replace mode the resulting index holds exactly these files. Any extraction
// failure aborts before the index is touched.
func (idx *Indexer) IndexFiles(ctx context.Context, paths []string) (int, error) {
	var all []*models.Chunk
	for _, p := range paths {
		chunks, err := idx.ingest(ctx, p)
		if err != nil {
			return 0, err
		}
		all = append(all, chunks...)
	}
	if len(all) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoText, strings.Join(paths, ", "))
	}
	if err := idx.commit(ctx, all); err != nil {
		return 0, err
	}
	return len(all), nil
}

// IndexDirectory ingests every regular file under dir that matches the
// configured extensions and commits them together. Files that fail to
// extract are skipped with a warning. It returns the number of files and
// chunks indexed.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string) (files, chunks int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, 0, fmt.Errorf("not a directory: %s", absDir)
	}
	var all []*models.Chunk
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !ExtensionAllowed(filepath.Ext(path), idx.extensions) {
			return nil
		}
		got, ingestErr := idx.ingest(ctx, path)
		if ingestErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			idx.logger.Warn("skipping file", zap.String("path", path), zap.Error(ingestErr))
			return nil
		}
		if len(got) > 0 {
			files++
			all = append(all, got...)
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	if len(all) == 0 {
		return 0, 0, nil
	}
	if err := idx.commit(ctx, all); err != nil {
		return 0, 0, err
	}
	return files, len(all), nil
}

// RemoveFile drops a file's chunks and persists the index when anything was
// removed. A missing index is not an error.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	n, err := idx.store.RemoveSource(ctx, abs)
	if errors.Is(err, models.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("remove %s: %w", abs, err)
	}
	if n == 0 {
		return 0, nil
	}
	if err := idx.store.Persist(ctx); err != nil {
		return 0, fmt.Errorf("persist index: %w", err)
	}
	idx.logger.Debug("indexer file removed", zap.String("path", abs), zap.Int("chunks", n))
	return n, nil
}

func (idx *Indexer) ingest(ctx context.Context, path string) ([]*models.Chunk, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", models.ErrExtraction, abs, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrExtraction, abs)
	}
	chunks, err := idx.ingestor.Process(ctx, abs)
	if err != nil {
		return nil, err
	}
	idx.logger.Debug("indexer file ingested", zap.String("path", abs), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

func (idx *Indexer) commit(ctx context.Context, chunks []*models.Chunk) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var err error
	if idx.mode == config.ModeAppend {
		err = idx.store.Append(ctx, chunks)
	} else {
		err = idx.store.Build(ctx, chunks)
	}
	if err != nil {
		return fmt.Errorf("%s index: %w", idx.mode, err)
	}
	if err := idx.store.Persist(ctx); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}

// ExtensionAllowed reports whether ext is in allowed, ignoring case and the
// leading dot. An empty list allows everything.
func ExtensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
