// Package testutil builds small fixture documents for tests.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
)

// PDF returns an uncompressed PDF with one page per entry in pages. Each line
// of an entry is drawn as its own Helvetica text object; an empty entry yields
// a page that carries no text.
func PDF(pages ...string) []byte {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		doc.AddPage()
		if text == "" {
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			doc.Cell(0, 14, line)
			doc.Ln(14)
		}
	}
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		panic("testutil: render pdf: " + err.Error())
	}
	return buf.Bytes()
}

// WritePDF writes PDF(pages...) to name inside a temp dir and returns its path.
func WritePDF(t testing.TB, name string, pages ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, PDF(pages...), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}
