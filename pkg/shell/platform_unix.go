//go:build !windows

package shell

import (
	"fmt"
	"os"
	"os/exec"
)

// defaultShellPath resolves the login shell for long-lived sessions.
func defaultShellPath() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// sentinelScript wraps the user's command so the shell prints a sentinel
// line carrying the exit code and working directory after it finishes. The
// exit code is read from "$?" immediately, before anything else can clobber
// it.
func sentinelScript(command, token string) string {
	return fmt.Sprintf("%s\nprintf '%s%s:%%s:%%s\\n' \"$?\" \"$PWD\"\n", command, sentinelPrefix, token)
}

// interactiveCommand builds the one-shot child process for an interactive
// command.
func interactiveCommand(shellPath, command string) *exec.Cmd {
	return exec.Command(shellPath, "-lc", command)
}

// longLivedShell builds the persistent shell a session multiplexes commands
// over. It reads scripts from stdin.
func longLivedShell(shellPath string) *exec.Cmd {
	return exec.Command(shellPath)
}

// homeDir resolves "~" for the cd intercept.
func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	cwd, _ := os.Getwd()
	return cwd
}
