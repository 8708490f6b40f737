package vector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/philippgille/chromem-go"
)

const chromemCollection = "chunks"

// ChromemIndex stores vectors in an in-memory chromem-go collection and
// persists it with chromem's gzip-compressed gob export. chromem normalizes
// vectors on insert, so scores are cosine similarities.
type ChromemIndex struct {
	dimensions int
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemIndex creates an empty chromem-backed index.
func NewChromemIndex(dimensions int) (*ChromemIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(chromemCollection, map[string]string{"hnsw:space": "cosine"}, nil)
	if err != nil {
		return nil, fmt.Errorf("create chromem collection: %w", err)
	}
	return &ChromemIndex{dimensions: dimensions, db: db, collection: col}, nil
}

// Type returns the index type identifier.
func (c *ChromemIndex) Type() string {
	return string(IndexTypeChromem)
}

// Dimensions returns the vector dimension.
func (c *ChromemIndex) Dimensions() int {
	return c.dimensions
}

// Add inserts vectors; chromem replaces documents with an existing ID.
func (c *ChromemIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}
	embeddings := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != c.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(v), c.dimensions)
		}
		embeddings[i] = append([]float32(nil), v...)
	}
	if err := c.collection.AddConcurrently(ctx, ids, embeddings, nil, nil, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add to chromem: %w", err)
	}
	return nil
}

// Search queries the collection for the k most similar vectors.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != c.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), c.dimensions)
	}
	// chromem rejects nResults above the collection size.
	k = min(k, c.collection.Count())
	if k <= 0 {
		return nil, nil
	}
	res, err := c.collection.QueryEmbedding(ctx, append([]float32(nil), query...), k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query chromem: %w", err)
	}
	out := make([]*VectorResult, len(res))
	for i, r := range res {
		out[i] = &VectorResult{
			ID:     r.ID,
			Score:  float64(r.Similarity),
			Vector: append([]float32(nil), r.Embedding...),
		}
	}
	return out, nil
}

// Remove deletes vectors by ID.
func (c *ChromemIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.collection.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete from chromem: %w", err)
	}
	return nil
}

// Save exports the database to path (gzip-compressed gob).
func (c *ChromemIndex) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := c.db.ExportToFile(path, true, ""); err != nil {
		return fmt.Errorf("export chromem: %w", err)
	}
	return nil
}

// Load imports a database previously written by Save and replaces the contents.
func (c *ChromemIndex) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("import chromem: %w", err)
	}
	col := db.GetCollection(chromemCollection, nil)
	if col == nil {
		return fmt.Errorf("import chromem: collection %q missing", chromemCollection)
	}
	c.db, c.collection = db, col
	return nil
}

// Size returns the number of vectors in the collection.
func (c *ChromemIndex) Size() int {
	return c.collection.Count()
}

// Close is a no-op; the collection lives in memory.
func (c *ChromemIndex) Close() error {
	return nil
}
