//go:build !windows && !linux

package tray

// Supported reports whether Start shows a real icon. The macOS status bar
// needs the main thread, which the webview owns.
func Supported() bool { return false }

func start(Identity, Actions) func() { return nil }
