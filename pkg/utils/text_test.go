package utils

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"x", 0, "x"},
		{"orçamento", 3, "orç..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestPreview(t *testing.T) {
	raw := "```json\n{\n  \"finding\":   \"late fees\"\n}\n```"
	if got := Preview(raw, 0); got != "```json { \"finding\": \"late fees\" } ```" {
		t.Errorf("Preview = %q", got)
	}
	if got := Preview("  a\tb\n\nc  ", 3); got != "a b..." {
		t.Errorf("Preview truncated = %q", got)
	}
}
