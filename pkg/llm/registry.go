package llm

import "shrimp/pkg/config"

// ProviderFactory builds a ChatClient from the application config.
type ProviderFactory interface {
	Create(cfg *config.Config) (ChatClient, error)
}

var providerRegistry = make(map[string]ProviderFactory)

// RegisterProvider registers a factory under a provider name. Called from
// the provider packages' init functions.
func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory looks up a registered factory.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
