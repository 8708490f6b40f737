// Package extract provides page-oriented text extraction from document files.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kansa/internal/models"
)

// SupportedExtensions lists the file extensions ExtractPages understands.
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".txt", ".md"}

// Extractor extracts the text of each page (or page-like unit) of a document.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractPages reads the file at path and returns its pages in order.
// PDF yields one entry per page, PPTX one per slide, XLSX one per sheet, DOCX one
// per hard page break; plain text is a single page. Pages may have empty text; callers decide what
// to drop. Every failure wraps models.ErrExtraction.
func (e *Extractor) ExtractPages(path string) ([]models.Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read file: %w", models.ErrExtraction, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return e.ExtractPagesBytes(content, ext)
}

// ExtractPagesBytes extracts pages from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *Extractor) ExtractPagesBytes(content []byte, ext string) ([]models.Page, error) {
	var (
		pages []models.Page
		err   error
	)
	switch strings.ToLower(ext) {
	case ".pdf":
		pages, err = extractPDF(content)
	case ".docx":
		pages, err = extractDOCX(content)
	case ".pptx":
		pages, err = extractPPTX(content)
	case ".xlsx":
		pages, err = extractExcel(content)
	case ".txt", ".md", ".rst", "":
		pages, err = singlePage(extractPlain(content))
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", models.ErrExtraction, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrExtraction, err)
	}
	return pages, nil
}

// Supported reports whether path has an extension ExtractPages handles.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if s == ext {
			return true
		}
	}
	return false
}

func singlePage(text string, err error) ([]models.Page, error) {
	if err != nil {
		return nil, err
	}
	return []models.Page{{Number: 1, Text: text}}, nil
}
