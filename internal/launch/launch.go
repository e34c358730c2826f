// Package launch detects how the binary was started so a desktop double
// click can fall back to running the server.
package launch

import "slices"

// DefaultCommand is injected when the binary is started from the desktop.
const DefaultCommand = "server"

// WithDefaultCommand returns args with cmd inserted after the program name,
// unless cmd is already the first argument.
func WithDefaultCommand(args []string, cmd string) []string {
	if len(args) == 0 {
		return []string{cmd}
	}
	if len(args) > 1 && args[1] == cmd {
		return args
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0], cmd)
	return append(out, args[1:]...)
}

var shells = []string{
	"cmd.exe",
	"powershell.exe",
	"pwsh.exe",
	"wt.exe",
	"conhost.exe",
	"windowsterminal.exe",
	"bash.exe",
}

// isShell reports whether the lowercased parent process name is a console
// host or shell.
func isShell(name string) bool {
	return slices.Contains(shells, name)
}
