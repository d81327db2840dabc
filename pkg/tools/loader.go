package tools

import (
	"fmt"

	"shrimp/pkg/api"
	"shrimp/pkg/memory"
	"shrimp/pkg/shell"
)

// RegisterAll wires the full tool inventory into the registry.
func RegisterAll(reg api.ToolRegistry, sh *shell.Manager, mem *memory.Store) error {
	all := []api.Tool{
		&RunCommandTool{Shell: sh},
		&CreateShellSessionTool{Shell: sh},
		&CloseShellSessionTool{Shell: sh},
		&WriteStdinTool{Shell: sh},
		&ReadFileTool{},
		&WriteFileTool{},
		&EditFileTool{},
		&ListFilesTool{},
		&UpdateMemoryTool{Memory: mem},
		&ListMemoryTool{Memory: mem},
		&ClearMemoryTool{Memory: mem},
	}
	for _, tool := range all {
		if err := reg.Register(tool); err != nil {
			return fmt.Errorf("failed to register %s: %w", tool.Name(), err)
		}
	}
	return nil
}
