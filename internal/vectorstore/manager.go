// Package vectorstore owns the lifecycle of the vector index: build, append,
// persist, load and maximum-marginal-relevance retrieval.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/embedding"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/storage"
	"github.com/hyperjump/kansa/internal/vector"
	"github.com/hyperjump/kansa/pkg/utils"
)

// Files inside a persisted index directory.
const chunksFile = "chunks.db"

// Manifest keys stored in the chunk database.
const (
	metaEmbeddingModel = "embedding_model"
	metaDimensions     = "dimensions"
	metaBackend        = "backend"
	metaPersistedAt    = "persisted_at"
)

// Manager holds the single in-memory vector index and its chunks, and persists
// them to a directory. It is safe for concurrent use: Build, Append and Load
// take the write lock, Retrieve the read lock.
type Manager struct {
	dir       string
	indexType string
	modelID   string
	embedder  embedding.Embedder
	logger    *zap.Logger

	mu     sync.RWMutex
	index  vector.VectorIndex
	chunks map[string]*models.Chunk
	order  []string

	// afterLoad runs between the transparent load in Retrieve and re-taking
	// the read lock. Tests use it to close the manager in that window.
	afterLoad func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a logger for build, persist and load events.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithIndexType selects the vector backend for new indexes ("memory" or "chromem").
// Loaded indexes use the backend recorded when they were persisted.
func WithIndexType(t string) Option {
	return func(m *Manager) { m.indexType = t }
}

// WithModelID records which embedding model produced the vectors.
func WithModelID(id string) Option {
	return func(m *Manager) { m.modelID = id }
}

// NewManager creates a manager persisting to dir and embedding with emb.
// Nothing is loaded until Load, Build, Append or Retrieve is called.
func NewManager(dir string, emb embedding.Embedder, opts ...Option) *Manager {
	m := &Manager{
		dir:       dir,
		indexType: string(vector.IndexTypeMemory),
		embedder:  emb,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = utils.OrNop(m.logger)
	return m
}

// Dir returns the persistence directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Build embeds chunks into a fresh index that replaces the in-memory state.
// Empty input logs a warning and changes nothing. Chunks with duplicate IDs
// keep the last occurrence.
func (m *Manager) Build(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		m.logger.Warn("no chunks to index; keeping current vector index")
		return nil
	}
	chunks = dedupe(chunks)
	idx, err := vector.NewVectorIndex(m.indexType, m.embedder.Dimensions())
	if err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	ids, vectors, err := m.embed(ctx, chunks)
	if err != nil {
		return err
	}
	if err := idx.Add(ctx, ids, vectors); err != nil {
		_ = idx.Close()
		return fmt.Errorf("failed to index vectors: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.swap(idx, chunks)
	m.logger.Info("vector index built",
		zap.Int("chunks", len(chunks)),
		zap.String("backend", idx.Type()))
	return nil
}

// Append merges chunks into the current index, loading the persisted index
// first when nothing is in memory. Chunks from a source already in the index
// replace all of that source's earlier chunks.
func (m *Manager) Append(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		m.logger.Warn("no chunks to append; keeping current vector index")
		return nil
	}
	chunks = dedupe(chunks)
	ids, vectors, err := m.embed(ctx, chunks)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil {
		err := m.loadLocked(ctx)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
	}
	if m.index == nil {
		idx, err := vector.NewVectorIndex(m.indexType, m.embedder.Dimensions())
		if err != nil {
			return fmt.Errorf("create vector index: %w", err)
		}
		m.swap(idx, nil)
	}

	sources := make(map[string]bool)
	for _, c := range chunks {
		sources[c.Source] = true
	}
	replaced, err := m.removeSourcesLocked(ctx, sources)
	if err != nil {
		return err
	}

	if err := m.index.Add(ctx, ids, vectors); err != nil {
		return fmt.Errorf("failed to index vectors: %w", err)
	}
	for _, c := range chunks {
		m.chunks[c.ID] = c
		m.order = append(m.order, c.ID)
	}
	m.logger.Info("vector index appended",
		zap.Int("added", len(chunks)),
		zap.Int("replaced", replaced),
		zap.Int("total", len(m.order)))
	return nil
}

// RemoveSource drops every chunk of source from the in-memory index, loading
// the persisted index first when nothing is in memory. It returns the number
// of chunks removed; the change is not persisted until Persist.
func (m *Manager) RemoveSource(ctx context.Context, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil {
		if err := m.loadLocked(ctx); err != nil {
			return 0, err
		}
	}
	n, err := m.removeSourcesLocked(ctx, map[string]bool{source: true})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("source removed from vector index",
			zap.String("source", source),
			zap.Int("removed", n),
			zap.Int("total", len(m.order)))
	}
	return n, nil
}

// removeSourcesLocked deletes the chunks whose source is in sources. Caller
// holds the write lock and m.index is set.
func (m *Manager) removeSourcesLocked(ctx context.Context, sources map[string]bool) (int, error) {
	var stale []string
	kept := m.order[:0:0]
	for _, id := range m.order {
		if sources[m.chunks[id].Source] {
			stale = append(stale, id)
			continue
		}
		kept = append(kept, id)
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := m.index.Remove(ctx, stale); err != nil {
		return 0, fmt.Errorf("remove stale vectors: %w", err)
	}
	for _, id := range stale {
		delete(m.chunks, id)
	}
	m.order = kept
	return len(stale), nil
}

// embed returns the chunk IDs and the embeddings of their contents.
func (m *Manager) embed(ctx context.Context, chunks []*models.Chunk) ([]string, [][]float32, error) {
	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		ids[i] = c.ID
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return ids, vectors, nil
}

// swap replaces the in-memory state. Caller holds the write lock.
func (m *Manager) swap(idx vector.VectorIndex, chunks []*models.Chunk) {
	if m.index != nil {
		_ = m.index.Close()
	}
	m.index = idx
	m.chunks = make(map[string]*models.Chunk, len(chunks))
	m.order = make([]string, 0, len(chunks))
	for _, c := range chunks {
		m.chunks[c.ID] = c
		m.order = append(m.order, c.ID)
	}
}

// Persist writes the in-memory index to the persistence directory, replacing
// whatever was there. Files are written to a staging directory first and
// swapped in afterwards.
func (m *Manager) Persist(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.index == nil {
		return errors.New("persist: no vector index in memory")
	}

	staging := fmt.Sprintf("%s.tmp-%s", filepath.Clean(m.dir), uuid.NewString())
	if err := m.writeSnapshot(ctx, staging); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := os.RemoveAll(m.dir); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("persist: remove previous index: %w", err)
	}
	if err := os.Rename(staging, m.dir); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("persist: move index into place: %w", err)
	}
	m.logger.Info("vector index persisted",
		zap.String("dir", m.dir),
		zap.Int("chunks", len(m.order)))
	return nil
}

func (m *Manager) writeSnapshot(ctx context.Context, dir string) error {
	snap, err := storage.CreateSQLiteSnapshot(filepath.Join(dir, chunksFile))
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	chunks := make([]*models.Chunk, len(m.order))
	for i, id := range m.order {
		chunks[i] = m.chunks[id]
	}
	err = snap.WriteChunks(ctx, chunks)
	if err == nil {
		err = snap.SetManifest(ctx, map[string]string{
			metaEmbeddingModel: m.modelID,
			metaDimensions:     strconv.Itoa(m.index.Dimensions()),
			metaBackend:        m.index.Type(),
			metaPersistedAt:    time.Now().UTC().Format(time.RFC3339),
		})
	}
	if cerr := snap.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	if err := m.index.Save(filepath.Join(dir, vector.FileName(m.index.Type()))); err != nil {
		return fmt.Errorf("persist vectors: %w", err)
	}
	return nil
}

// Load replaces the in-memory state with the persisted index. It fails with
// models.ErrNotFound when the directory does not exist.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked(ctx)
}

func (m *Manager) loadLocked(ctx context.Context) error {
	if _, err := os.Stat(m.dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", models.ErrNotFound, m.dir)
		}
		return fmt.Errorf("load vector index: %w", err)
	}
	snap, err := storage.OpenSQLiteSnapshot(filepath.Join(m.dir, chunksFile))
	if err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	defer snap.Close()

	dims, backend, model, err := readManifest(ctx, snap)
	if err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	if dims != m.embedder.Dimensions() {
		return fmt.Errorf("load vector index: stored vectors have %d dimensions, embedder produces %d", dims, m.embedder.Dimensions())
	}
	if m.modelID != "" && model != "" && model != m.modelID {
		m.logger.Warn("vector index was built with a different embedding model",
			zap.String("stored", model),
			zap.String("current", m.modelID))
	}
	chunks, err := snap.Chunks(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	idx, err := vector.NewVectorIndex(backend, dims)
	if err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	if err := idx.Load(filepath.Join(m.dir, vector.FileName(backend))); err != nil {
		return fmt.Errorf("load vectors: %w", err)
	}
	if idx.Size() != len(chunks) {
		return fmt.Errorf("load vector index: %d vectors for %d chunks", idx.Size(), len(chunks))
	}
	m.swap(idx, chunks)
	m.logger.Info("vector index loaded",
		zap.String("dir", m.dir),
		zap.Int("chunks", len(chunks)),
		zap.String("backend", backend))
	return nil
}

func readManifest(ctx context.Context, snap storage.Snapshot) (dims int, backend, model string, err error) {
	manifest, err := snap.Manifest(ctx)
	if err != nil {
		return 0, "", "", err
	}
	dims, err = strconv.Atoi(manifest[metaDimensions])
	if err != nil {
		return 0, "", "", fmt.Errorf("invalid manifest dimensions %q", manifest[metaDimensions])
	}
	return dims, manifest[metaBackend], manifest[metaEmbeddingModel], nil
}

// Retrieve returns up to k chunks for query chosen by maximum marginal
// relevance among the fetchK nearest candidates. fetchK below k is raised to
// k. When nothing is in memory the persisted index is loaded first, so a
// missing index fails with models.ErrNotFound.
func (m *Manager) Retrieve(ctx context.Context, query string, k, fetchK int, lambda float64) ([]*models.Chunk, error) {
	m.mu.RLock()
	if m.index == nil {
		m.mu.RUnlock()
		m.mu.Lock()
		var err error
		if m.index == nil {
			err = m.loadLocked(ctx)
		}
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}
		if m.afterLoad != nil {
			m.afterLoad()
		}
		m.mu.RLock()
		// Close may have run while no lock was held.
		if m.index == nil {
			m.mu.RUnlock()
			return nil, fmt.Errorf("%w: vector index closed during load", models.ErrNotFound)
		}
	}
	defer m.mu.RUnlock()

	if k <= 0 {
		return []*models.Chunk{}, nil
	}
	fetchK = max(fetchK, k)
	q, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	candidates, err := m.index.Search(ctx, q, fetchK)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	selected := vector.MMR(q, candidates, k, lambda)
	out := make([]*models.Chunk, 0, len(selected))
	for _, r := range selected {
		if c, ok := m.chunks[r.ID]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Loaded reports whether an index is in memory.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index != nil
}

// Exists reports whether a persisted index directory exists.
func (m *Manager) Exists() bool {
	_, err := os.Stat(filepath.Join(m.dir, chunksFile))
	return err == nil
}

// Size returns the number of chunks in memory.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Info returns a snapshot of the index state.
func (m *Manager) Info() models.IndexInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := models.IndexInfo{
		Loaded:         m.index != nil,
		Chunks:         len(m.order),
		Backend:        m.indexType,
		EmbeddingModel: m.modelID,
		Dimensions:     m.embedder.Dimensions(),
		Dir:            m.dir,
	}
	if m.index != nil {
		info.Backend = m.index.Type()
	}
	sources := make(map[string]struct{})
	for _, c := range m.chunks {
		sources[c.Source] = struct{}{}
	}
	info.Sources = len(sources)
	return info
}

// Close releases the in-memory index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil {
		return nil
	}
	err := m.index.Close()
	m.index, m.chunks, m.order = nil, nil, nil
	return err
}

func dedupe(chunks []*models.Chunk) []*models.Chunk {
	last := make(map[string]int, len(chunks))
	for i, c := range chunks {
		last[c.ID] = i
	}
	if len(last) == len(chunks) {
		return chunks
	}
	out := make([]*models.Chunk, 0, len(last))
	for i, c := range chunks {
		if last[c.ID] == i {
			out = append(out, c)
		}
	}
	return out
}
