//go:build !windows && !darwin

package hotkey

import "context"

func (m *Manager) startPlatform(context.Context) error {
	return ErrUnsupported
}
