package input

import (
	"fmt"

	"go.uber.org/zap"
)

// Backend kinds accepted by New.
const (
	KindAuto = "auto"
	KindLog  = "log"
)

// Options configures backend construction.
type Options struct {
	// ScreenWidth and ScreenHeight size the virtual devices on platforms
	// that cannot query the display. Zero selects 1920x1080.
	ScreenWidth  int
	ScreenHeight int

	// DeviceName names virtual devices where the platform supports it.
	DeviceName string
}

func (o Options) withDefaults() Options {
	if o.ScreenWidth <= 0 {
		o.ScreenWidth = 1920
	}
	if o.ScreenHeight <= 0 {
		o.ScreenHeight = 1080
	}
	if o.DeviceName == "" {
		o.DeviceName = "airtouch"
	}
	return o
}

// New returns the backend for kind. "auto" selects the platform
// implementation and "log" the dry-run logger.
func New(kind string, opts Options, log *zap.Logger) (Backend, error) {
	opts = opts.withDefaults()
	switch kind {
	case KindLog:
		return NewLogBackend(opts.ScreenWidth, opts.ScreenHeight, log), nil
	case KindAuto, "":
		return newPlatformBackend(opts, log)
	}
	return nil, fmt.Errorf("input: unknown backend %q", kind)
}
