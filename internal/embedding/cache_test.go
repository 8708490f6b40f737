package embedding

import (
	"context"
	"errors"
	"testing"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	if v, ok := c.Get("a"); ok || v != nil {
		t.Fatal("expected miss")
	}
	c.Set("a", []float32{1, 2, 3})
	v, ok := c.Get("a")
	if !ok || len(v) != 3 || v[0] != 1 {
		t.Errorf("Get: got %v, %v", v, ok)
	}
	c.Set("b", []float32{4, 5})
	c.Set("c", []float32{6}) // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("expected b to remain")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected c to be present")
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestEmbeddingCache_GetRefreshesRecency(t *testing.T) {
	c := NewEmbeddingCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a")
	c.Set("c", []float32{3}) // evicts b
	if _, ok := c.Get("a"); !ok {
		t.Error("a was used recently and should remain")
	}
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
}

// countingEmbedder records how many texts reach the model.
type countingEmbedder struct {
	HashEmbedder
	seen []string
	err  error
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.seen = append(e.seen, text)
	if e.err != nil {
		return nil, e.err
	}
	return e.HashEmbedder.Embed(ctx, text)
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

func TestCachedEmbedder(t *testing.T) {
	next := &countingEmbedder{HashEmbedder: *NewHashEmbedder(8)}
	emb := NewCachedEmbedder(next, 16)
	ctx := context.Background()

	first, err := emb.Embed(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	batch, err := emb.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 || batch[0][0] != first[0] {
		t.Errorf("batch = %v", batch)
	}
	want := []string{"alpha", "beta", "gamma"}
	if len(next.seen) != len(want) {
		t.Fatalf("model saw %v, want %v", next.seen, want)
	}
	for i := range want {
		if next.seen[i] != want[i] {
			t.Errorf("model saw %v, want %v", next.seen, want)
		}
	}
	if emb.Dimensions() != 8 {
		t.Errorf("Dimensions = %d", emb.Dimensions())
	}
}

func TestCachedEmbedder_errorNotCached(t *testing.T) {
	boom := errors.New("boom")
	next := &countingEmbedder{HashEmbedder: *NewHashEmbedder(8), err: boom}
	emb := NewCachedEmbedder(next, 16)
	if _, err := emb.Embed(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	next.err = nil
	if _, err := emb.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if len(next.seen) != 2 {
		t.Errorf("failed result should not be cached; model calls = %d", len(next.seen))
	}
}

func TestNewCachedEmbedder_disabled(t *testing.T) {
	next := NewHashEmbedder(4)
	if got := NewCachedEmbedder(next, 0); got != Embedder(next) {
		t.Error("capacity 0 should return the embedder unchanged")
	}
}
