package ollama

import (
	"shrimp/pkg/config"
	"shrimp/pkg/llm"
)

// Factory builds Ollama chat clients.
type Factory struct{}

func (f *Factory) Create(cfg *config.Config) (llm.ChatClient, error) {
	return NewClient(cfg.OllamaBaseURL)
}

func init() {
	llm.RegisterProvider("ollama", &Factory{})
}
