//go:build windows

package shell

import (
	"fmt"
	"os"
	"os/exec"
)

func defaultShellPath() string {
	if sh := os.Getenv("ComSpec"); sh != "" {
		return sh
	}
	return `C:\Windows\System32\cmd.exe`
}

// sentinelScript emits the sentinel on its own line. %errorlevel% is
// expanded when cmd.exe parses the echo line, which happens after the
// previous line ran, so it carries that command's exit code.
func sentinelScript(command, token string) string {
	return fmt.Sprintf("%s\r\necho %s%s:%%errorlevel%%:%%cd%%\r\n", command, sentinelPrefix, token)
}

func interactiveCommand(shellPath, command string) *exec.Cmd {
	return exec.Command(shellPath, "/d", "/s", "/c", command)
}

// longLivedShell builds the persistent cmd.exe a session multiplexes
// commands over. /q suppresses command echo so sentinel lines stay parseable.
func longLivedShell(shellPath string) *exec.Cmd {
	return exec.Command(shellPath, "/q")
}

func homeDir() string {
	if home := os.Getenv("USERPROFILE"); home != "" {
		return home
	}
	cwd, _ := os.Getwd()
	return cwd
}
