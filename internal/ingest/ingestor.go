// Package ingest turns documents into bounded, overlapping chunks ready for embedding.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/extract"
	"github.com/hyperjump/kansa/internal/fileid"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/pkg/utils"
)

// Ingestor extracts pages from a document and splits them into chunks.
type Ingestor struct {
	extractor *extract.Extractor
	splitter  *Splitter
	logger    *zap.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(in *Ingestor) { in.logger = l }
}

// WithExtractor overrides the default extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(in *Ingestor) { in.extractor = e }
}

// NewIngestor creates an ingestor producing chunks of at most chunkSize runes
// with chunkOverlap runes of overlap.
func NewIngestor(chunkSize, chunkOverlap int, opts ...Option) *Ingestor {
	in := &Ingestor{
		extractor: extract.NewExtractor(),
		splitter:  NewSplitter(chunkSize, chunkOverlap),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.logger = utils.OrNop(in.logger)
	return in
}

// Process extracts and splits the document at path. Pages with no text are
// skipped. A document with no extractable text yields an empty slice and no
// error; unreadable documents fail with models.ErrExtraction.
func (in *Ingestor) Process(ctx context.Context, path string) ([]*models.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pages, err := in.extractor.ExtractPages(path)
	if err != nil {
		return nil, err
	}
	chunks, err := in.chunkPages(path, pages)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", path, err)
	}
	in.logger.Debug("document ingested",
		zap.String("path", path),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// ProcessPages splits already extracted pages as if they came from source.
func (in *Ingestor) ProcessPages(source string, pages []models.Page) ([]*models.Chunk, error) {
	return in.chunkPages(source, pages)
}

func (in *Ingestor) chunkPages(source string, pages []models.Page) ([]*models.Chunk, error) {
	chunks := make([]*models.Chunk, 0)
	for _, page := range pages {
		text := cleanPage(page.Text)
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts, err := in.splitter.Split(text)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.Number, err)
		}
		for i, content := range parts {
			chunks = append(chunks, &models.Chunk{
				ID:         fileid.ChunkID(source, page.Number, i),
				Content:    content,
				Source:     source,
				Page:       page.Number,
				TotalPages: len(pages),
				ChunkIndex: i,
			})
		}
	}
	return chunks, nil
}

// cleanPage normalizes line endings and removes NUL bytes some PDF encoders emit.
func cleanPage(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, "\x00", "")
}

// Validate reports a configuration error for unusable chunk settings.
func Validate(chunkSize, chunkOverlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return nil
}
