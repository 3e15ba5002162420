//go:build !linux && !windows && !darwin

package login

import "errors"

var errUnsupported = errors.New("start at login is not supported on this platform")

func Enabled() bool { return false }

func Enable(string) error { return errUnsupported }

func Disable() error { return nil }
