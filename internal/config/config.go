// Package config loads the airtouch configuration from defaults, a TOML
// file, the environment and command-line overrides, and reloads it when the
// file changes.
package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/basicflag"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"go.uber.org/zap"

	"airtouch/internal/hotkey"
)

// EnvPrefix marks environment variables read by the loader. Nested keys use
// a double underscore: AIRTOUCH_TRACKING__CLICK_DISTANCE.
const EnvPrefix = "AIRTOUCH_"

// reloadDelay coalesces the burst of events editors produce on save.
const reloadDelay = 200 * time.Millisecond

// Config represents the application configuration
type Config struct {
	Tracking TrackingConfig `koanf:"tracking"`
	Screen   ScreenConfig   `koanf:"screen"`
	Engine   EngineConfig   `koanf:"engine"`
	Feed     FeedConfig     `koanf:"feed"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
	Hotkeys  HotkeyConfig   `koanf:"hotkeys"`

	// Backend selects the input backend: "auto" for the platform injector,
	// "log" to only log what would be injected.
	Backend string `koanf:"backend"`
}

// TrackingConfig tunes the gesture classifier.
type TrackingConfig struct {
	// Sensitivity is the margin in detector pixels trimmed from each side of
	// the camera frame. Higher values need less hand travel.
	Sensitivity int `koanf:"sensitivity"`

	// Smoothing is the pointer lag divisor, 1 (raw) to 15 (heavy).
	Smoothing float64 `koanf:"smoothing"`

	// ClickDistance and ReleaseDistance are the pinch engage and release
	// distances in detector pixels.
	ClickDistance   float64 `koanf:"click_distance"`
	ReleaseDistance float64 `koanf:"release_distance"`

	// DepthScale makes pinch distances follow the apparent hand size.
	DepthScale float64 `koanf:"depth_scale"`

	OffsetX     int     `koanf:"offset_x"`
	OffsetY     int     `koanf:"offset_y"`
	Mirror      bool    `koanf:"mirror"`
	MinHandSize float64 `koanf:"min_hand_size"`
	AspectRatio float64 `koanf:"aspect_ratio"`
}

// ScreenConfig overrides the screen size. Zero asks the input backend.
type ScreenConfig struct {
	Width  int `koanf:"width"`
	Height int `koanf:"height"`
}

// EngineConfig tunes the input engine.
type EngineConfig struct {
	MaxContacts   int     `koanf:"max_contacts"`
	DragThreshold float64 `koanf:"drag_threshold"`

	// Frame counts before dual touch engages and the keyboard toggle fires,
	// and how long the voice gesture outlives its last sighting.
	DualFrames   int `koanf:"dual_frames"`
	ToggleFrames int `koanf:"toggle_frames"`
	VoiceFrames  int `koanf:"voice_frames"`

	ContactHalfExtent int `koanf:"contact_half_extent"`
	Pressure          int `koanf:"pressure"`
	Orientation       int `koanf:"orientation"`

	// Button is the mouse fallback button: left, right or middle.
	Button string `koanf:"button"`
}

// FeedConfig selects where landmarks come from.
type FeedConfig struct {
	// Listen is the UDP address the detector sends to.
	Listen string `koanf:"listen"`

	// Replay plays back a recording instead of listening when set.
	Replay    string `koanf:"replay"`
	ReplayFPS int    `koanf:"replay_fps"`
}

// APIConfig configures the local status server.
type APIConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`

	// Token is an optional authentication token for API requests
	Token string `koanf:"token"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HotkeyConfig binds global key combinations such as "Ctrl+Alt+P". Empty
// disables a binding.
type HotkeyConfig struct {
	Pause string `koanf:"pause"`
}

// defaults is the lowest configuration layer.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"tracking.sensitivity":       90,
		"tracking.smoothing":         4.0,
		"tracking.click_distance":    27.0,
		"tracking.release_distance":  40.0,
		"tracking.depth_scale":       0.8,
		"tracking.offset_x":          0,
		"tracking.offset_y":          0,
		"tracking.mirror":            true,
		"tracking.min_hand_size":     30.0,
		"tracking.aspect_ratio":      16.0 / 9.0,
		"screen.width":               0,
		"screen.height":              0,
		"engine.max_contacts":        2,
		"engine.drag_threshold":      25.0,
		"engine.dual_frames":         5,
		"engine.toggle_frames":       6,
		"engine.voice_frames":        20,
		"engine.contact_half_extent": 2,
		"engine.pressure":            32000,
		"engine.orientation":         90,
		"engine.button":              "left",
		"feed.listen":                "127.0.0.1:7340",
		"feed.replay":                "",
		"feed.replay_fps":            30,
		"api.enabled":                true,
		"api.addr":                   "127.0.0.1:18090",
		"api.token":                  "",
		"logging.level":              "info",
		"logging.format":             "console",
		"hotkeys.pause":              "Ctrl+Alt+P",
		"backend":                    "auto",
	}
}

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	k := koanf.New(".")
	_ = k.Load(confmap.Provider(defaults(), "."), nil)
	var cfg Config
	_ = k.Unmarshal("", &cfg)
	return &cfg
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	t := c.Tracking
	check(t.Sensitivity >= 0, "tracking.sensitivity must not be negative")
	check(t.Smoothing >= 1 && t.Smoothing <= 15, "tracking.smoothing must be between 1 and 15, got %v", t.Smoothing)
	check(t.ClickDistance > 0, "tracking.click_distance must be positive")
	check(t.ReleaseDistance >= t.ClickDistance, "tracking.release_distance (%v) must not be below click_distance (%v)", t.ReleaseDistance, t.ClickDistance)
	check(t.DepthScale >= 0 && t.DepthScale <= 1, "tracking.depth_scale must be between 0 and 1")
	check(t.MinHandSize >= 0, "tracking.min_hand_size must not be negative")
	check(t.AspectRatio > 0, "tracking.aspect_ratio must be positive")

	check(c.Screen.Width >= 0 && c.Screen.Height >= 0, "screen size must not be negative")

	e := c.Engine
	check(e.MaxContacts >= 1 && e.MaxContacts <= 10, "engine.max_contacts must be between 1 and 10, got %d", e.MaxContacts)
	check(e.DragThreshold >= 0, "engine.drag_threshold must not be negative")
	check(e.DualFrames >= 1, "engine.dual_frames must be at least 1")
	check(e.ToggleFrames >= 1, "engine.toggle_frames must be at least 1")
	check(e.VoiceFrames >= 1, "engine.voice_frames must be at least 1")
	check(e.ContactHalfExtent >= 0, "engine.contact_half_extent must not be negative")
	check(e.Pressure >= 0 && e.Pressure <= 1<<16, "engine.pressure out of range")
	check(e.Orientation >= 0 && e.Orientation < 360, "engine.orientation must be in [0,360)")
	check(e.Button == "left" || e.Button == "right" || e.Button == "middle", "engine.button must be left, right or middle, got %q", e.Button)

	check(c.Feed.Replay != "" || c.Feed.Listen != "", "feed.listen is required without feed.replay")
	check(c.Feed.ReplayFPS >= 0, "feed.replay_fps must not be negative")

	check(!c.API.Enabled || c.API.Addr != "", "api.addr is required when the api is enabled")

	check(c.Logging.Format == "console" || c.Logging.Format == "json", "logging.format must be console or json, got %q", c.Logging.Format)
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}

	if c.Hotkeys.Pause != "" {
		if _, err := hotkey.Parse(c.Hotkeys.Pause); err != nil {
			problems = append(problems, "hotkeys.pause: "+err.Error())
		}
	}

	check(c.Backend == "auto" || c.Backend == "log", "backend must be auto or log, got %q", c.Backend)

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Manager handles loading and reloading configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	overrides  map[string]string
	onChanged  func(*Config)
	log        *zap.Logger
}

// NewManager creates a new configuration manager for path. An empty path
// selects the per-user default location.
func NewManager(path string, log *zap.Logger) (*Manager, error) {
	if path == "" {
		p, err := getConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
		log:        log.Named("config"),
	}, nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "airtouch")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "airtouch")
	default:
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(dir, "airtouch")
	}

	return filepath.Join(configDir, "config.toml"), nil
}

// SetLogger replaces the logger. The binary loads configuration before its
// logger exists.
func (m *Manager) SetLogger(log *zap.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = log.Named("config")
}

// Path returns the configuration file location.
func (m *Manager) Path() string { return m.configPath }

// SetOverrides installs command-line values, keyed by configuration key
// (e.g. "logging.level"). They win over every other layer and survive
// reloads.
func (m *Manager) SetOverrides(o map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = o
}

// Load reads every layer, validates the result and makes it current. On
// error the current configuration is kept.
func (m *Manager) Load() error {
	m.mu.Lock()
	cfg, err := m.read()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.config = cfg
	cb := m.onChanged
	m.mu.Unlock()

	if cb != nil {
		cb(cfg)
	}
	return nil
}

func (m *Manager) read() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if _, err := os.Stat(m.configPath); err == nil {
		if err := k.Load(file.Provider(m.configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config %s: %w", m.configPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := m.loadEnv(k); err != nil {
		return nil, err
	}

	if len(m.overrides) > 0 {
		if err := k.Load(basicflag.Provider(m.overrideFlags(), "."), nil); err != nil {
			return nil, fmt.Errorf("error loading flags to config: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadEnv reads AIRTOUCH_ variables.
func (m *Manager) loadEnv(k *koanf.Koanf) error {
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.Replace(strings.ToLower(s), "__", ".", -1)
	}), nil)
	if err != nil {
		return fmt.Errorf("error loading environment: %w", err)
	}
	return nil
}

func (m *Manager) overrideFlags() *flag.FlagSet {
	f := flag.NewFlagSet("overrides", flag.ContinueOnError)
	keys := make([]string, 0, len(m.overrides))
	for key := range m.overrides {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		f.String(key, m.overrides[key], "")
	}
	return f
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.config
}

// RegisterChangeCallback registers a function to be called after every
// successful load
func (m *Manager) RegisterChangeCallback(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}

// Watch reloads the configuration whenever the file is written, created or
// renamed into place, until ctx is done. Invalid files are logged and
// ignored.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("couldn't create new fsnotify.Watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	dir := filepath.Dir(m.configPath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("error adding dir %s to fsnotify.Watcher: %w", dir, err)
	}
	m.log.Info("Watching configuration", zap.String("path", m.configPath))

	name := filepath.Clean(m.configPath)
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("fsnotify.Watcher events channel closed")
			}
			if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			pending = time.After(reloadDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("fsnotify.Watcher error channel closed")
			}
			m.log.Warn("Config watcher error", zap.Error(err))

		case <-pending:
			pending = nil
			if err := m.Load(); err != nil {
				m.log.Warn("Ignoring invalid configuration", zap.Error(err))
				continue
			}
			m.log.Info("Configuration reloaded")
		}
	}
}
