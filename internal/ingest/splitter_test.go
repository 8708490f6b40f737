package ingest

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%03d", i)
	}
	return strings.Join(w, " ")
}

func split(t *testing.T, s *Splitter, text string) []string {
	t.Helper()
	chunks, err := s.Split(text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	return chunks
}

func TestSplitter_shortText(t *testing.T) {
	s := NewSplitter(100, 20)
	got := split(t, s, "  a short page  ")
	if len(got) != 1 || got[0] != "a short page" {
		t.Errorf("got %q", got)
	}
}

func TestSplitter_empty(t *testing.T) {
	s := NewSplitter(100, 20)
	if got := split(t, s, " \n\n \t "); len(got) != 0 {
		t.Errorf("got %q, want none", got)
	}
}

func TestSplitter_chunkBounds(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
		text          string
	}{
		{"words", 50, 20, words(200)},
		{"paragraphs", 120, 30, strings.Repeat("Sentence one. Sentence two.\n", 20) + "\n\n" + words(80)},
		{"no separators", 16, 4, strings.Repeat("x", 100)},
		{"multibyte", 10, 3, strings.Repeat("監査報告 ", 40)},
		{"defaults", 1000, 200, strings.Repeat(words(300)+"\n\n", 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := split(t, NewSplitter(tt.size, tt.overlap), tt.text)
			if len(chunks) < 2 {
				t.Fatalf("expected several chunks, got %d", len(chunks))
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c); n > tt.size {
					t.Errorf("chunk %d has %d runes, max %d", i, n, tt.size)
				}
				if c == "" || strings.TrimSpace(c) != c {
					t.Errorf("chunk %d not trimmed or empty: %q", i, c)
				}
			}
		})
	}
}

func TestSplitter_overlap(t *testing.T) {
	chunks := split(t, NewSplitter(50, 20), words(200))
	for i := 1; i < len(chunks); i++ {
		first := strings.Fields(chunks[i])[0]
		if !strings.Contains(chunks[i-1], first) {
			t.Errorf("chunk %d starts with %q which is not carried over from chunk %d %q", i, first, i-1, chunks[i-1])
		}
	}
}

func TestSplitter_noOverlapReassembles(t *testing.T) {
	text := words(137)
	chunks := split(t, NewSplitter(50, 0), text)
	if got := strings.Join(chunks, " "); got != text {
		t.Errorf("reassembled text differs:\n got %q\nwant %q", got, text)
	}
}

func TestSplitter_separatorPriority(t *testing.T) {
	chunks := split(t, NewSplitter(15, 0), "para one.\n\npara two.")
	want := []string{"para one.", "para two."}
	if len(chunks) != len(want) {
		t.Fatalf("got %q, want %q", chunks, want)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestSplitter_characterFallback(t *testing.T) {
	got := split(t, NewSplitter(4, 0), "abcdefghij")
	want := []string{"abcd", "efgh", "ij"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSplitter_separatorLeadsNextChunk(t *testing.T) {
	// The ". " boundary stays with the following sentence, so after trimming
	// the period opens the next chunk instead of closing the previous one.
	got := split(t, NewSplitter(12, 0), "first part. second part")
	want := []string{"first part", ". second", "part"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNewSplitter_clampsOverlap(t *testing.T) {
	s := NewSplitter(10, 50)
	if s.ChunkOverlap != 9 {
		t.Errorf("overlap = %d, want 9", s.ChunkOverlap)
	}
	s = NewSplitter(0, -1)
	if s.ChunkSize != 1000 || s.ChunkOverlap != 0 {
		t.Errorf("got size=%d overlap=%d", s.ChunkSize, s.ChunkOverlap)
	}
}
