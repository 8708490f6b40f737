// Package llm provides chat-completion clients for the audit chain.
package llm

import (
	"context"
	"time"
)

// Request is a single-turn completion request.
type Request struct {
	System      string
	User        string
	Temperature float64
}

// Client completes a prompt. Implementations wrap failures in
// models.ErrInvocation.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Name identifies the provider and model, e.g. "bedrock:amazon.titan-text-express-v1".
	Name() string
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
