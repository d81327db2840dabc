// Package tools holds the fixed tool inventory the assistant can call and
// the registry that validates and dispatches tool invocations.
package tools

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"shrimp/pkg/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Registry is the central inventory of tools available to the agent. It
// implements api.ToolRegistry: arguments are validated against each tool's
// declared JSON-Schema shape before the tool runs.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]api.Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]api.Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool and compiles its parameter schema.
func (r *Registry) Register(tool api.Tool) error {
	schemaDoc := map[string]any{
		"type":       "object",
		"properties": tool.Parameters(),
	}
	if required := tool.RequiredParameters(); len(required) > 0 {
		schemaDoc["required"] = required
	}
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return fmt.Errorf("failed to encode schema for %s: %w", tool.Name(), err)
	}
	schema, err := jsonschema.CompileString(tool.Name()+".schema.json", string(raw))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	r.schemas[tool.Name()] = schema
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (api.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// GetAll returns all registered tools.
func (r *Registry) GetAll() []api.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]api.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	return out
}

// Run validates rawArgs against the named tool's schema and executes it.
// An empty argument payload is treated as an empty object.
func (r *Registry) Run(ctx context.Context, name string, rawArgs []byte) (any, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}

	if len(rawArgs) == 0 {
		rawArgs = []byte("{}")
	}
	var decoded any
	if err := json.Unmarshal(rawArgs, &decoded); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("invalid arguments for %s: %w", name, err)
	}

	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid arguments for %s: expected an object", name)
	}
	return tool.Execute(ctx, args)
}

// Argument accessors shared by the tool implementations. JSON numbers arrive
// as float64.

func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}

func intArg(args map[string]any, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}
