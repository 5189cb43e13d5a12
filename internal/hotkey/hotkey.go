// Package hotkey watches the keyboard system-wide for key combinations such
// as "Ctrl+Alt+P".
package hotkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrUnsupported is returned by Start where no global keyboard hook exists.
var ErrUnsupported = errors.New("hotkey: global hooks not supported on this platform")

// Manager handles global hotkey registration and matching
type Manager struct {
	log *zap.Logger

	mu           sync.Mutex
	hotkeys      []*registeredHotkey
	currentState map[string]bool // keys currently held
}

type registeredHotkey struct {
	parts    []string // e.g., ["CTRL", "ALT", "P"]
	original string
	callback func()
}

// NewManager creates a new hotkey manager
func NewManager(log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		log:          log.Named("hotkey"),
		currentState: make(map[string]bool),
	}
}

// Parse splits a combination into upper-case key names. Mouse buttons are
// rejected: the engine injects mouse events of its own.
func Parse(combo string) ([]string, error) {
	if strings.TrimSpace(combo) == "" {
		return nil, errors.New("hotkey: empty combination")
	}
	parts := strings.Split(strings.ToUpper(combo), "+")
	seen := make(map[string]bool, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		switch {
		case p == "":
			return nil, fmt.Errorf("hotkey: empty key in %q", combo)
		case strings.HasPrefix(p, "MOUSE"):
			return nil, fmt.Errorf("hotkey: mouse buttons are not supported in %q", combo)
		case seen[p]:
			return nil, fmt.Errorf("hotkey: %s repeated in %q", p, combo)
		}
		seen[p] = true
		parts[i] = p
	}
	return parts, nil
}

// Register registers a combination and the callback it fires. Callbacks run
// on their own goroutine.
func (m *Manager) Register(combo string, callback func()) error {
	parts, err := Parse(combo)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = append(m.hotkeys, &registeredHotkey{
		parts:    parts,
		original: combo,
		callback: callback,
	})
	return nil
}

// Clear removes all registered hotkeys
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hotkeys = nil
}

// UpdateState records a key transition. A combination fires once, on the
// press that completes it; key repeat does not fire it again.
func (m *Manager) UpdateState(key string, isDown bool) {
	key = strings.ToUpper(key)

	m.mu.Lock()
	if !isDown {
		delete(m.currentState, key)
		m.mu.Unlock()
		return
	}
	if m.currentState[key] {
		m.mu.Unlock()
		return
	}
	m.currentState[key] = true
	fired := m.matches(key)
	m.mu.Unlock()

	for _, hk := range fired {
		m.log.Info("Hotkey triggered", zap.String("hotkey", hk.original))
		go hk.callback()
	}
}

// matches returns the hotkeys that key completes. Called with mu held.
func (m *Manager) matches(key string) []*registeredHotkey {
	var fired []*registeredHotkey
	for _, hk := range m.hotkeys {
		match, uses := true, false
		for _, part := range hk.parts {
			if !m.currentState[part] {
				match = false
				break
			}
			uses = uses || part == key
		}
		if match && uses {
			fired = append(fired, hk)
		}
	}
	return fired
}

// Start installs the platform keyboard hook. It returns once the hook is
// running; the hook is removed when ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	return m.startPlatform(ctx)
}
