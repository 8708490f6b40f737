package testutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
)

func TestPDF_readable(t *testing.T) {
	content := PDF("Scope (phase 1)\nField work", "", "Budget")
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if r.NumPage() != 3 {
		t.Fatalf("got %d pages, want 3", r.NumPage())
	}
	tests := []struct {
		page int
		want []string
	}{
		{1, []string{"Scope (phase 1)", "Field work"}},
		{2, nil},
		{3, []string{"Budget"}},
	}
	for _, tt := range tests {
		text, err := r.Page(tt.page).GetPlainText(nil)
		if err != nil {
			t.Fatalf("page %d: %v", tt.page, err)
		}
		if tt.want == nil && strings.TrimSpace(text) != "" {
			t.Errorf("page %d text = %q, want blank", tt.page, text)
		}
		for _, w := range tt.want {
			if !strings.Contains(text, w) {
				t.Errorf("page %d text %q missing %q", tt.page, text, w)
			}
		}
	}
}
