package tools

import (
	"context"
	"fmt"

	"shrimp/pkg/shell"
)

// RunCommandTool executes a shell command, optionally inside a persistent
// session and optionally in interactive mode.
type RunCommandTool struct {
	Shell *shell.Manager
}

func (t *RunCommandTool) Name() string { return "run_command" }

func (t *RunCommandTool) Description() string {
	return "Run a shell command. Pass sessionId to reuse a persistent shell session (environment and working directory carry over). Set interactive=true for commands that prompt for input; drive them with write_stdin afterwards."
}

func (t *RunCommandTool) Parameters() map[string]any {
	return map[string]any{
		"command": map[string]any{
			"type":        "string",
			"description": "The shell command to execute.",
		},
		"sessionId": map[string]any{
			"type":        "string",
			"description": "Persistent session id from create_shell_session. Omit for a one-off command.",
		},
		"cwd": map[string]any{
			"type":        "string",
			"description": "Working directory for a one-off command.",
		},
		"timeoutMs": map[string]any{
			"type":        "integer",
			"minimum":     1,
			"maximum":     int(shell.MaxTimeout.Milliseconds()),
			"description": "Timeout in milliseconds. Default 30000, ceiling 5 minutes.",
		},
		"interactive": map[string]any{
			"type":        "boolean",
			"description": "Run as an interactive child process that accepts write_stdin input.",
		},
	}
}

func (t *RunCommandTool) RequiredParameters() []string { return []string{"command"} }

func (t *RunCommandTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.Shell.RunCommand(ctx, shell.CommandRequest{
		SessionID:   stringArg(args, "sessionId", ""),
		Command:     stringArg(args, "command", ""),
		Cwd:         stringArg(args, "cwd", ""),
		TimeoutMs:   intArg(args, "timeoutMs", 0),
		Interactive: boolArg(args, "interactive", false),
	})
}

// CreateShellSessionTool spawns a persistent shell session.
type CreateShellSessionTool struct {
	Shell *shell.Manager
}

func (t *CreateShellSessionTool) Name() string { return "create_shell_session" }

func (t *CreateShellSessionTool) Description() string {
	return "Create a persistent shell session. Returns the session id to pass to run_command."
}

func (t *CreateShellSessionTool) Parameters() map[string]any {
	return map[string]any{
		"cwd": map[string]any{
			"type":        "string",
			"description": "Initial working directory. Defaults to the assistant's working directory.",
		},
	}
}

func (t *CreateShellSessionTool) RequiredParameters() []string { return nil }

func (t *CreateShellSessionTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return t.Shell.CreateSession(stringArg(args, "cwd", ""))
}

// CloseShellSessionTool kills and removes a session.
type CloseShellSessionTool struct {
	Shell *shell.Manager
}

func (t *CloseShellSessionTool) Name() string { return "close_shell_session" }

func (t *CloseShellSessionTool) Description() string {
	return "Close a persistent shell session by id."
}

func (t *CloseShellSessionTool) Parameters() map[string]any {
	return map[string]any{
		"sessionId": map[string]any{
			"type":        "string",
			"description": "The session to close.",
		},
	}
}

func (t *CloseShellSessionTool) RequiredParameters() []string { return []string{"sessionId"} }

func (t *CloseShellSessionTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	closed := t.Shell.CloseSession(stringArg(args, "sessionId", ""))
	return map[string]any{"closed": closed}, nil
}

// WriteStdinTool feeds input to a session's in-flight command and drains its
// output.
type WriteStdinTool struct {
	Shell *shell.Manager
}

func (t *WriteStdinTool) Name() string { return "write_stdin" }

func (t *WriteStdinTool) Description() string {
	return "Write characters to the stdin of a session's running command, wait briefly, and return the output produced since the last call. Include the trailing newline yourself when the program expects one."
}

func (t *WriteStdinTool) Parameters() map[string]any {
	return map[string]any{
		"sessionId": map[string]any{
			"type":        "string",
			"description": "The session whose command receives the input.",
		},
		"chars": map[string]any{
			"type":        "string",
			"description": "Characters to write. May be empty to just poll for output.",
		},
		"yieldMs": map[string]any{
			"type":        "integer",
			"minimum":     0,
			"maximum":     int(shell.MaxTimeout.Milliseconds()),
			"description": "How long to wait before collecting output. Default 100.",
		},
	}
}

func (t *WriteStdinTool) RequiredParameters() []string { return []string{"sessionId"} }

func (t *WriteStdinTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	res, err := t.Shell.WriteStdin(
		stringArg(args, "sessionId", ""),
		stringArg(args, "chars", ""),
		intArg(args, "yieldMs", 100),
	)
	if err != nil {
		return nil, fmt.Errorf("write_stdin failed: %w", err)
	}
	return res, nil
}
