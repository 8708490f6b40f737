package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/hyperjump/kansa/pkg/utils"
)

func TestHashEmbedder_deterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "The methodology used stratified sampling.")
	b, _ := e.Embed(ctx, "The methodology used stratified sampling.")
	if len(a) != 64 {
		t.Fatalf("len = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("embedding should be deterministic")
		}
	}
	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm^2 = %f, want 1", norm)
	}
}

func TestHashEmbedder_sharedWordsAreCloser(t *testing.T) {
	e := NewHashEmbedder(384)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "methodology")
	near, _ := e.Embed(ctx, "Methodology: the team interviewed staff")
	far, _ := e.Embed(ctx, "Budget: 1.2 million euros")
	if utils.Cosine(q, near) <= utils.Cosine(q, far) {
		t.Errorf("cos(q, near)=%f should exceed cos(q, far)=%f", utils.Cosine(q, near), utils.Cosine(q, far))
	}
}

func TestHashEmbedder_emptyText(t *testing.T) {
	v, err := NewHashEmbedder(0).Embed(context.Background(), "  ")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 384 {
		t.Errorf("default dimensions = %d", len(v))
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("empty text should embed to the zero vector")
		}
	}
}

func TestHashEmbedder_EmbedBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8).EmbedBatch(ctx, []string{"a"}); err == nil {
		t.Error("expected context error")
	}
}
