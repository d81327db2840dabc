package openailm

import (
	"shrimp/pkg/config"
	"shrimp/pkg/llm"
)

// Factory builds OpenAI chat clients.
type Factory struct{}

func (f *Factory) Create(cfg *config.Config) (llm.ChatClient, error) {
	return NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
}

func init() {
	llm.RegisterProvider("openai", &Factory{})
}
