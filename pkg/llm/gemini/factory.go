package gemini

import (
	"context"

	"shrimp/pkg/config"
	"shrimp/pkg/llm"
)

// Factory builds Gemini chat clients.
type Factory struct{}

func (f *Factory) Create(cfg *config.Config) (llm.ChatClient, error) {
	return NewClient(context.Background(), cfg.GeminiAPIKey)
}

func init() {
	llm.RegisterProvider("gemini", &Factory{})
}
