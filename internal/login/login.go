// Package login registers the shell to start, hidden, when the user logs in.
package login

import (
	"fmt"
	"os"
	"path/filepath"
)

// HiddenFlag is passed to the shell when the OS starts it at login.
const HiddenFlag = "--hidden"

// Sync enables or disables start at login for the running executable.
func Sync(enabled bool) error {
	if !enabled {
		return Disable()
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return Enable(exe)
}
