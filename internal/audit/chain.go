// Package audit answers an audit request from retrieved document context.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kansa/internal/llm"
	"github.com/hyperjump/kansa/internal/models"
	"github.com/hyperjump/kansa/internal/normalize"
	"github.com/hyperjump/kansa/pkg/utils"
)

// Retriever returns the chunks relevant to a query, most relevant first.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]*models.Chunk, error)
}

// Chain runs retrieve, prompt, complete and normalize for one request.
type Chain struct {
	retriever Retriever
	llm       llm.Client
	logger    *zap.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Chain) { c.logger = l }
}

// NewChain creates a chain over retriever and client.
func NewChain(retriever Retriever, client llm.Client, opts ...Option) *Chain {
	c := &Chain{retriever: retriever, llm: client}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c
}

// Audit answers query under instruction. Empty arguments take the defaults in
// models. Retrieval errors (including models.ErrNotFound) are returned as is;
// model failures wrap models.ErrInvocation. Unparseable model output is not an
// error and comes back under models.FallbackKey.
func (c *Chain) Audit(ctx context.Context, query, instruction string) (models.AuditResult, error) {
	if query == "" {
		query = models.DefaultQuery
	}
	if instruction == "" {
		instruction = models.DefaultInstruction
	}
	start := time.Now()

	chunks, err := c.retriever.Retrieve(ctx, RetrievalKey(query, instruction))
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	contextText := JoinContext(chunks)
	c.logger.Debug("retrieved context",
		zap.Int("chunks", len(chunks)),
		zap.Int("context_length", len(contextText)))

	raw, err := c.llm.Complete(ctx, llm.Request{
		System:      SystemPrompt(instruction),
		User:        UserPrompt(contextText, query),
		Temperature: 0,
	})
	if err != nil {
		if !errors.Is(err, models.ErrInvocation) {
			err = fmt.Errorf("%w: %w", models.ErrInvocation, err)
		}
		return nil, err
	}

	result := normalize.JSON(raw, normalize.WithLogger(c.logger))
	c.logger.Info("audit completed",
		zap.String("llm", c.llm.Name()),
		zap.Int("chunks", len(chunks)),
		zap.Bool("fallback", result.IsFallback()),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}
