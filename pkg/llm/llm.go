// Package llm defines the provider-neutral chat client interface and the
// registry through which provider adapters plug in.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ChatClient is the capability the turn engine drives. One call is one full
// LLM round-trip; the returned message carries either final text, tool
// calls, or both.
type ChatClient interface {
	Chat(ctx context.Context, model string, messages []Message, tools []ToolDef) (*Message, error)

	// IsTransientError reports whether err is worth retrying (rate limits,
	// 5xx, network flaps) as opposed to a caller mistake.
	IsTransientError(err error) bool
}

// RetryClient wraps a ChatClient with bounded retries on transient errors.
type RetryClient struct {
	Client     ChatClient
	MaxRetries int
	RetryDelay time.Duration
}

func (r *RetryClient) Chat(ctx context.Context, model string, messages []Message, tools []ToolDef) (*Message, error) {
	maxRetries := r.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			slog.Warn("Retrying LLM call", "attempt", attempt, "max", maxRetries, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt-1) * r.RetryDelay):
			}
		}

		msg, err := r.Client.Chat(ctx, model, messages, tools)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		if !r.Client.IsTransientError(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("llm call failed after %d attempts: %w", maxRetries, lastErr)
}

func (r *RetryClient) IsTransientError(err error) bool {
	return r.Client.IsTransientError(err)
}
