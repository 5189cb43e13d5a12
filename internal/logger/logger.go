// Package logger builds the process-wide zap logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is FormatConsole or FormatJSON. Empty means console.
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// ParseLevel maps a level name to its zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return lvl, fmt.Errorf("logger: unknown level %q", s)
	}
	return lvl, nil
}

// New returns a logger and the atomic level that controls it, so the level
// can follow config reloads.
func New(opts Options) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	// Lock the sink so the logging methods are safe for concurrent use.
	sink := zapcore.Lock(zapcore.AddSync(out))

	var enc zapcore.Encoder
	switch opts.Format {
	case "", FormatConsole:
		cfg := zap.NewDevelopmentEncoderConfig()
		// Enable colored output on the console
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("logger: unknown format %q", opts.Format)
	}

	return zap.New(zapcore.NewCore(enc, sink, level)), level, nil
}

// Sync flushes log, ignoring the error stdout and stderr return on some
// platforms.
func Sync(log *zap.Logger) {
	err := log.Sync()
	if err != nil && !strings.Contains(err.Error(), "invalid argument") &&
		!strings.Contains(err.Error(), "inappropriate ioctl") {
		fmt.Fprintf(os.Stderr, "failed to drain log queues: %s\n", err)
	}
}
