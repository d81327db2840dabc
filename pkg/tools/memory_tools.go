package tools

import (
	"context"
	"fmt"

	"shrimp/pkg/memory"
)

// UpdateMemoryTool persists one durable fact into the system prompt memory.
type UpdateMemoryTool struct {
	Memory *memory.Store
}

func (t *UpdateMemoryTool) Name() string { return "update_system_prompt_memory" }

func (t *UpdateMemoryTool) Description() string {
	return "Save a short durable fact or preference into persistent memory. It will be included in the system prompt of future conversations."
}

func (t *UpdateMemoryTool) Parameters() map[string]any {
	return map[string]any{
		"memory": map[string]any{
			"type":        "string",
			"description": "The fact to remember. One fact per call, kept short.",
		},
	}
}

func (t *UpdateMemoryTool) RequiredParameters() []string { return []string{"memory"} }

func (t *UpdateMemoryTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	stored, added, err := t.Memory.Add(stringArg(args, "memory", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to save memory: %w", err)
	}
	return map[string]any{"memory": stored, "added": added}, nil
}

// ListMemoryTool returns all persistent memory items.
type ListMemoryTool struct {
	Memory *memory.Store
}

func (t *ListMemoryTool) Name() string { return "list_system_prompt_memory" }

func (t *ListMemoryTool) Description() string {
	return "List all persistent memory items, oldest first."
}

func (t *ListMemoryTool) Parameters() map[string]any { return map[string]any{} }

func (t *ListMemoryTool) RequiredParameters() []string { return nil }

func (t *ListMemoryTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	items, err := t.Memory.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list memory: %w", err)
	}
	if items == nil {
		items = []string{}
	}
	return map[string]any{"items": items}, nil
}

// ClearMemoryTool removes all persistent memory items.
type ClearMemoryTool struct {
	Memory *memory.Store
}

func (t *ClearMemoryTool) Name() string { return "clear_system_prompt_memory" }

func (t *ClearMemoryTool) Description() string {
	return "Delete all persistent memory items."
}

func (t *ClearMemoryTool) Parameters() map[string]any { return map[string]any{} }

func (t *ClearMemoryTool) RequiredParameters() []string { return nil }

func (t *ClearMemoryTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if err := t.Memory.Clear(); err != nil {
		return nil, fmt.Errorf("failed to clear memory: %w", err)
	}
	return map[string]any{"cleared": true}, nil
}
