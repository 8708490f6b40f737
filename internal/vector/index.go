// Package vector provides vector indexes for nearest-neighbour candidate search
// and maximum-marginal-relevance selection over the candidates.
package vector

import "context"

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	// Add inserts vectors under the given IDs; an existing ID is overwritten.
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k nearest vectors to query, best first, with their stored vectors.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	// Save writes the index to path; Load replaces the contents with the file at path.
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// VectorResult is a single vector search hit; ID is the chunk ID.
type VectorResult struct {
	ID     string
	Score  float64 // similarity to the query, higher is closer
	Vector []float32
}
