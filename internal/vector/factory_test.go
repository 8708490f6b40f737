package vector

import (
	"context"
	"testing"
)

func TestNewVectorIndex(t *testing.T) {
	for _, typ := range []string{"", "memory", "chromem"} {
		t.Run("type="+typ, func(t *testing.T) {
			idx, err := NewVectorIndex(typ, 3)
			if err != nil {
				t.Fatalf("NewVectorIndex(%q): %v", typ, err)
			}
			defer idx.Close()
			if err := idx.Add(context.Background(), []string{"a"}, [][]float32{{1, 0, 0}}); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if idx.Size() != 1 || idx.Dimensions() != 3 {
				t.Errorf("Size=%d Dimensions=%d", idx.Size(), idx.Dimensions())
			}
		})
	}
}

func TestNewVectorIndex_Unknown(t *testing.T) {
	if _, err := NewVectorIndex("faiss", 3); err == nil {
		t.Error("expected error for unknown index type")
	}
}

func TestNewVectorIndex_InvalidDimension(t *testing.T) {
	for _, typ := range []string{"memory", "chromem"} {
		if _, err := NewVectorIndex(typ, 0); err == nil {
			t.Errorf("%s: expected error for zero dimension", typ)
		}
	}
}

func TestFileName(t *testing.T) {
	if FileName("memory") != "vectors.bin" || FileName("chromem") != "vectors.gob.gz" {
		t.Errorf("unexpected file names %q %q", FileName("memory"), FileName("chromem"))
	}
}
