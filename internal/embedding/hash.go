package embedding

import (
	"context"
	"strings"

	"github.com/hyperjump/kansa/pkg/utils"
)

// HashEmbedder is a deterministic, offline embedder. Each lower-cased word is
// hashed into one of Dimensions buckets with a hash-derived sign, and the
// result is L2-normalized. Texts that share words get similar vectors, which
// makes it usable for tests and for running without a model. Only blank text
// maps to the zero vector.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hashing embedder with the given dimensions (384 when <= 0).
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the hashed bag-of-words vector for text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	emb := make([]float32, e.dimensions)
	ws := words(text)
	if len(ws) == 0 {
		// Punctuation-only text still gets a direction of its own.
		if t := strings.TrimSpace(text); t != "" {
			ws = []string{t}
		}
	}
	for _, w := range ws {
		sum := wordHash(w)
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		emb[sum%uint64(e.dimensions)] += sign
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}
