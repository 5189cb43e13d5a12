//go:build linux

// Package osutils reports process privileges that limit input injection.
package osutils

import (
	"os"

	"golang.org/x/sys/unix"
)

const uinputPath = "/dev/uinput"

// IsAdmin reports whether the process runs as root.
func IsAdmin() bool {
	return os.Geteuid() == 0
}

// PrivilegeHint describes a missing privilege that limits injection, or
// returns "" when there is none.
func PrivilegeHint() string {
	return uinputHint(uinputPath)
}

func uinputHint(path string) string {
	if err := unix.Access(path, unix.W_OK); err != nil {
		return "no write access to " + path + ": add a udev rule for the input group or run as root"
	}
	return ""
}
