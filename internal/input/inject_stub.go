//go:build !darwin && !windows && !linux

package input

import "go.uber.org/zap"

func newPlatformBackend(Options, *zap.Logger) (Backend, error) {
	return nil, ErrUnsupported
}
