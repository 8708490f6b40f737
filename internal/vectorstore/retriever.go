package vectorstore

import (
	"context"

	"github.com/hyperjump/kansa/internal/models"
)

// Defaults for retrieval.
const (
	DefaultK      = 10
	DefaultFetchK = 50
	DefaultLambda = 0.7
)

// Retriever is a view over a Manager bound to fixed MMR settings.
type Retriever struct {
	manager *Manager
	K       int
	FetchK  int
	Lambda  float64
}

// Retriever returns a retriever bound to m. Zero K or FetchK take the defaults;
// lambda is used as given.
func (m *Manager) Retriever(k, fetchK int, lambda float64) *Retriever {
	if k <= 0 {
		k = DefaultK
	}
	if fetchK <= 0 {
		fetchK = DefaultFetchK
	}
	return &Retriever{manager: m, K: k, FetchK: fetchK, Lambda: lambda}
}

// Retrieve returns the chunks relevant to query, most relevant first.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]*models.Chunk, error) {
	return r.manager.Retrieve(ctx, query, r.K, r.FetchK, r.Lambda)
}
