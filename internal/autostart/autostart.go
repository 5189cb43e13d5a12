// Package autostart registers airtouch to start at login.
package autostart

import (
	"fmt"
	"os"
	"strings"
)

// AppName identifies the login entry on every platform.
const AppName = "airtouch"

// Entry describes what runs at login.
type Entry struct {
	ExecutablePath string
	Args           []string
}

// Current returns an entry for the running executable with args.
func Current(args ...string) (Entry, error) {
	execPath, err := os.Executable()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get executable path: %w", err)
	}
	return Entry{ExecutablePath: execPath, Args: args}, nil
}

// CommandLine quotes the entry for a shell-like command field.
func (e Entry) CommandLine() string {
	parts := make([]string, 0, 1+len(e.Args))
	for _, p := range append([]string{e.ExecutablePath}, e.Args...) {
		if strings.ContainsAny(p, " \t\"") {
			p = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}

// Enable enables auto-start on login
func Enable(e Entry) error {
	return enable(e)
}

// Disable disables auto-start on login
func Disable() error {
	return disable()
}

// IsEnabled checks if auto-start is enabled
func IsEnabled() bool {
	return isEnabled()
}
