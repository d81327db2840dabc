package api

import "context"

// Tool defines the structural interface for any capability the assistant can
// execute. It includes the metadata advertised to the LLM (a JSON-Schema
// parameter shape) and the execution logic itself.
type Tool interface {
	// Name is the identifier the LLM uses in tool calls.
	Name() string
	// Description is the natural-language summary advertised to the LLM.
	Description() string
	// Parameters returns the JSON-Schema "properties" object for the tool's
	// argument shape.
	Parameters() map[string]any
	// RequiredParameters lists the property names that must be present.
	RequiredParameters() []string
	// Execute performs the tool logic. The returned value must be
	// JSON-marshalable; it becomes the tool message fed back to the LLM.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// ToolRegistry defines the interface for managing and dispatching tools.
type ToolRegistry interface {
	Register(tool Tool) error
	Get(name string) (Tool, bool)
	GetAll() []Tool
	// Run validates rawArgs against the tool's schema and executes it.
	Run(ctx context.Context, name string, rawArgs []byte) (any, error)
}
