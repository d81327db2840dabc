// Package autoload registers all built-in LLM providers via side effects.
// Import it for its init functions only.
package autoload

import (
	_ "shrimp/pkg/llm/gemini"
	_ "shrimp/pkg/llm/ollama"
	_ "shrimp/pkg/llm/openailm"
)
