//go:build !windows && !linux

// Package osutils reports process privileges that limit input injection.
package osutils

import "os"

// IsAdmin reports whether the process runs as root.
func IsAdmin() bool {
	return os.Geteuid() == 0
}

// PrivilegeHint describes a missing privilege that limits injection, or
// returns "" when there is none. Accessibility access on macOS is reported
// by the backend itself.
func PrivilegeHint() string {
	return ""
}
