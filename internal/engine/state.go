package engine

import (
	"fmt"

	"github.com/google/uuid"

	"airtouch/internal/debounce"
	"airtouch/internal/geometry"
	"airtouch/internal/touch"
)

// Mode is the orchestrator state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeSingleLocked
	ModeSingleFree
	ModeDual
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeSingleLocked:
		return "single_locked"
	case ModeSingleFree:
		return "single_free"
	case ModeDual:
		return "dual"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Single reports whether m is one of the single-touch sub-states.
func (m Mode) Single() bool {
	return m == ModeSingleLocked || m == ModeSingleFree
}

// DragState pins the reported position to the pinch start until the hand
// has clearly moved.
type DragState struct {
	Locked bool
	Anchor geometry.Point
}

// State is everything the orchestrator remembers between frames. Touch
// contacts live in the channel.
type State struct {
	Mode     Mode
	Drag     DragState
	Debounce *debounce.Debouncer

	PrimaryDown   bool
	SecondaryDown bool
	MouseDown     bool
	PrevContact   bool

	// Session identifies the current continuous tracking run. It is nil
	// while no hand is tracked.
	Session uuid.UUID

	Paused bool
}

// NewState returns a fresh idle state.
func NewState(t debounce.Thresholds) *State {
	return &State{Debounce: debounce.NewDebouncer(t)}
}

// reset returns every field except Paused to its initial value.
func (s *State) reset() {
	s.Mode = ModeIdle
	s.Drag = DragState{}
	s.Debounce.Reset()
	s.PrimaryDown = false
	s.SecondaryDown = false
	s.MouseDown = false
	s.PrevContact = false
	s.Session = uuid.Nil
}

// Frame is one frame of classified hand input in screen coordinates.
type Frame struct {
	// Hand is false when the detector found no usable hand.
	Hand bool

	// Primary is the pointing finger. (≤1, ≤1) marks an invalid frame.
	Primary geometry.Point

	// Secondary is the second finger for dual touch. Zero means not tracked.
	Secondary geometry.Point

	// Contact is the pinch signal.
	Contact bool

	// DualRequested and ToggleRequested are raw; the engine debounces them.
	DualRequested   bool
	ToggleRequested bool

	// Voice is passed through to status for the external voice collaborator.
	// It may stay set on no-hand frames while its grace period runs out.
	Voice bool
}

// ValidPrimary reports whether p carries a signal.
func ValidPrimary(p geometry.Point) bool {
	return !(p.X <= 1 && p.Y <= 1)
}

// ValidSecondary reports whether p is tracked.
func ValidSecondary(p geometry.Point) bool {
	return p.X > 0 && p.Y > 0
}

// Status is a copy of the engine state for observers.
type Status struct {
	Mode           string          `json:"mode"`
	Contacts       []touch.Contact `json:"contacts"`
	MouseDown      bool            `json:"mouse_down"`
	Voice          bool            `json:"voice"`
	Session        string          `json:"session,omitempty"`
	Paused         bool            `json:"paused"`
	TouchAvailable bool            `json:"touch_available"`
	Frames         uint64          `json:"frames"`
}

// changed reports whether s differs from o in a way observers care about.
// Contact positions move every frame and are left out.
func (s Status) changed(o Status) bool {
	return s.Mode != o.Mode ||
		len(s.Contacts) != len(o.Contacts) ||
		s.MouseDown != o.MouseDown ||
		s.Voice != o.Voice ||
		s.Session != o.Session ||
		s.Paused != o.Paused ||
		s.TouchAvailable != o.TouchAvailable
}
