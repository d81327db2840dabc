package llm

import (
	"fmt"
	"log/slog"
	"time"

	"shrimp/pkg/config"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

// NewFromConfig builds the chat client for the configured provider and wraps
// it with transient-error retries.
func NewFromConfig(cfg *config.Config) (ChatClient, error) {
	factory, ok := GetProviderFactory(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}

	client, err := factory.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.Provider, err)
	}
	slog.Info("LLM client initialized", "provider", cfg.Provider, "model", cfg.DefaultModel)

	return &RetryClient{
		Client:     client,
		MaxRetries: defaultMaxRetries,
		RetryDelay: defaultRetryDelay,
	}, nil
}
