// Package engine turns per-frame hand classifications into touch and mouse
// input. It owns the mode state machine, drag lock, debouncing and the
// mouse fallback.
package engine

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"airtouch/internal/debounce"
	"airtouch/internal/geometry"
	"airtouch/internal/input"
	"airtouch/internal/metrics"
	"airtouch/internal/touch"
)

// Contact ids.
const (
	primaryID   = 0
	secondaryID = 1
)

// Channel is the touch contact sink. *touch.Channel implements it.
type Channel interface {
	Available() bool
	Update(id int, pos geometry.Point, down bool) error
	CommitFrame() error
	ReleaseAll() error
	ReassertCursor() error
	Pending() bool
	Contacts() []touch.Contact
}

// Toggler is told when the keyboard toggle gesture fires.
type Toggler interface {
	Toggle() error
}

// TogglerFunc adapts a function to Toggler.
type TogglerFunc func() error

func (f TogglerFunc) Toggle() error { return f() }

// Config holds the tunables that may change at runtime.
type Config struct {
	// DragThreshold is the distance in screen pixels the hand must travel
	// from the pinch start before the drag lock releases.
	DragThreshold float64

	Thresholds debounce.Thresholds

	// Button is used by the mouse fallback.
	Button input.Button
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		DragThreshold: 25,
		Thresholds:    debounce.DefaultThresholds(),
		Button:        input.ButtonLeft,
	}
}

// Orchestrator runs the per-frame state machine. It is not safe for
// concurrent use except for Status, which may be called from any goroutine.
type Orchestrator struct {
	state   *State
	ch      Channel
	mouse   input.MouseInjector
	log     *zap.Logger
	metrics *metrics.Metrics

	button          input.Button
	dragThresholdSq float64

	toggler   Toggler
	observers []func(Status)

	frames    uint64
	voice     bool
	last      Status
	announced bool
	published atomic.Pointer[Status]
}

// New returns an orchestrator driving ch and mouse from state.
func New(state *State, ch Channel, mouse input.MouseInjector, cfg Config, log *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Orchestrator{
		state:   state,
		ch:      ch,
		mouse:   mouse,
		log:     log.Named("engine"),
		metrics: m,
	}
	o.Reconfigure(cfg)
	o.publish()
	return o
}

// SetToggler installs the keyboard toggle hook.
func (o *Orchestrator) SetToggler(t Toggler) { o.toggler = t }

// OnStatus registers fn to be called from the frame goroutine whenever the
// mode, mouse button, session, voice or pause state changes. fn must not
// block.
func (o *Orchestrator) OnStatus(fn func(Status)) {
	o.observers = append(o.observers, fn)
}

// Reconfigure applies new tunables without resetting any state.
func (o *Orchestrator) Reconfigure(cfg Config) {
	if cfg.Button == 0 {
		cfg.Button = input.ButtonLeft
	}
	o.button = cfg.Button
	o.dragThresholdSq = cfg.DragThreshold * cfg.DragThreshold
	o.state.Debounce.SetThresholds(cfg.Thresholds)
}

// Process handles one frame.
func (o *Orchestrator) Process(f Frame) {
	o.frames++
	o.metrics.FrameProcessed()
	o.voice = f.Voice

	s := o.state
	if s.Paused {
		o.publish()
		return
	}
	if !f.Hand {
		o.LoseTracking()
		return
	}
	if !ValidPrimary(f.Primary) {
		o.metrics.InvalidFrame()
		return
	}

	if s.Session == uuid.Nil {
		s.Session = uuid.New()
		o.log.Debug("Tracking session started", zap.Stringer("session", s.Session))
	}

	flags := s.Debounce.Observe(f.DualRequested, f.ToggleRequested)
	if flags.DualTouch {
		o.dualFrame(f)
	} else {
		o.singleFrame(f)
	}
	if flags.ToggleTriggered {
		o.toggle()
	}

	s.PrevContact = f.Contact
	o.metrics.SetMode(int(s.Mode))
	o.publish()
}

func (o *Orchestrator) dualFrame(f Frame) {
	s := o.state
	if s.Mode != ModeDual {
		// Last mode wins: the single-touch session continues as the first
		// dual contact, everything else is dropped. A held fallback button
		// goes up before the first dual frame is committed.
		s.Drag = DragState{}
		o.releaseMouse()
		s.Mode = ModeDual
		o.log.Debug("Dual touch engaged")
	}

	if !o.ch.Available() {
		o.hover(f.Primary)
		return
	}

	o.update(primaryID, f.Primary, true)
	if ValidSecondary(f.Secondary) {
		o.update(secondaryID, f.Secondary, true)
	}
	if err := o.ch.CommitFrame(); err != nil {
		// Dual touch has no mouse equivalent. The channel has logged the
		// failure and the frame is retried with the next sample.
		o.log.Debug("Dual touch frame dropped", zap.Error(err))
	}
	o.syncContacts()
}

func (o *Orchestrator) singleFrame(f Frame) {
	s := o.state
	reassert := false

	if s.Mode == ModeDual {
		o.update(primaryID, geometry.Point{}, false)
		o.update(secondaryID, geometry.Point{}, false)
		s.Mode = ModeIdle
		reassert = true
		o.log.Debug("Dual touch released")
	} else if s.SecondaryDown {
		o.update(secondaryID, geometry.Point{}, false)
	}

	pinch := f.Contact
	target := f.Primary

	switch {
	case pinch && !s.PrevContact:
		o.releaseMouse()
		s.Drag = DragState{Locked: true, Anchor: target}
		s.Mode = ModeSingleLocked

	case pinch && s.Mode.Single():
		if s.Drag.Locked {
			if target.DistSq(s.Drag.Anchor) < o.dragThresholdSq {
				target = s.Drag.Anchor
			} else {
				s.Drag.Locked = false
				s.Mode = ModeSingleFree
			}
		}

	case !pinch && s.Mode.Single():
		o.update(primaryID, geometry.Point{}, false)
		s.Mode = ModeIdle
		s.Drag = DragState{}
		reassert = true
	}

	o.emitSingle(target, reassert)
}

// emitSingle delivers a single-touch frame through the touch channel when
// possible and falls back to the mouse otherwise. A mouse button is never
// pressed in a frame where a touch frame was committed. When the fallback
// takes over a contact that is already down, the contact is lifted and the
// lift is committed on a later frame while the mouse owns the session.
func (o *Orchestrator) emitSingle(target geometry.Point, reassert bool) {
	s := o.state
	attempted, touched := false, false

	if o.ch.Available() {
		if s.Mode.Single() && !s.MouseDown {
			o.update(primaryID, target, true)
		}
		if o.ch.Pending() {
			attempted = true
			wasDown := s.PrimaryDown
			if err := o.ch.CommitFrame(); err == nil {
				touched = true
				if reassert || s.MouseDown {
					o.reassertCursor()
				}
			} else if wasDown && s.Mode.Single() && !s.MouseDown {
				o.update(primaryID, geometry.Point{}, false)
			}
			o.syncContacts()
		}
	}

	// Absolute hover keeps the pointer on target whenever no touch frame
	// landed or the fallback button is held.
	if !touched || s.MouseDown {
		o.hover(target)
	}

	if !o.ch.Available() || (attempted && !touched) || s.MouseDown {
		switch {
		case s.Mode.Single() && !s.MouseDown:
			o.pressMouse()
		case !s.Mode.Single() && s.MouseDown:
			o.releaseMouse()
		}
	}
}

// LoseTracking resets the engine after a frame with no hand: counters are
// zeroed, the mode returns to idle and every contact and button is
// released.
func (o *Orchestrator) LoseTracking() {
	if err := o.teardown(); err != nil {
		o.log.Warn("Release after tracking loss failed", zap.Error(err))
	}
	o.publish()
}

// SetPaused stops or resumes input. Pausing releases everything.
func (o *Orchestrator) SetPaused(paused bool) {
	if paused == o.state.Paused {
		return
	}
	if paused {
		if err := o.teardown(); err != nil {
			o.log.Warn("Release on pause failed", zap.Error(err))
		}
	}
	o.state.Paused = paused
	o.log.Info("Tracking paused state changed", zap.Bool("paused", paused))
	o.publish()
}

// Shutdown releases every contact and button. It is safe to call more than
// once.
func (o *Orchestrator) Shutdown() error {
	err := o.teardown()
	o.publish()
	return err
}

func (o *Orchestrator) teardown() error {
	s := o.state
	if s.Session != uuid.Nil {
		o.metrics.TrackingLost()
		o.log.Debug("Tracking session ended", zap.Stringer("session", s.Session))
	}

	var result *multierror.Error
	if err := o.ch.ReleaseAll(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := o.releaseMouse(); err != nil {
		result = multierror.Append(result, err)
	}

	s.reset()
	o.syncContacts()
	o.metrics.SetMode(int(ModeIdle))
	return result.ErrorOrNil()
}

func (o *Orchestrator) update(id int, pos geometry.Point, down bool) {
	if err := o.ch.Update(id, pos, down); err != nil && !errors.Is(err, touch.ErrUnavailable) {
		o.log.Debug("Contact update rejected", zap.Int("id", id), zap.Error(err))
	}
}

// syncContacts mirrors the channel's view of which contacts are down.
func (o *Orchestrator) syncContacts() {
	s := o.state
	s.PrimaryDown, s.SecondaryDown = false, false
	for _, ct := range o.ch.Contacts() {
		if !ct.Flag.InContact() {
			continue
		}
		switch ct.ID {
		case primaryID:
			s.PrimaryDown = true
		case secondaryID:
			s.SecondaryDown = true
		}
	}
}

func (o *Orchestrator) reassertCursor() {
	if err := o.ch.ReassertCursor(); err != nil {
		o.log.Debug("Cursor reassert failed", zap.Error(err))
	}
}

func (o *Orchestrator) hover(p geometry.Point) {
	if o.mouse == nil {
		return
	}
	if err := o.mouse.SetCursorPos(int(math.Round(p.X)), int(math.Round(p.Y))); err != nil {
		o.log.Debug("Cursor move failed", zap.Error(err))
	}
}

func (o *Orchestrator) pressMouse() {
	if o.mouse == nil {
		return
	}
	if err := o.mouse.MouseButton(o.button, true); err != nil {
		o.log.Warn("Mouse button down failed", zap.Error(err))
		return
	}
	o.state.MouseDown = true
	o.metrics.MouseFallback("down")
}

// releaseMouse lifts the fallback button if it is held. The button is
// considered released even if the OS call fails.
func (o *Orchestrator) releaseMouse() error {
	s := o.state
	if !s.MouseDown || o.mouse == nil {
		s.MouseDown = false
		return nil
	}
	s.MouseDown = false
	o.metrics.MouseFallback("up")
	if err := o.mouse.MouseButton(o.button, false); err != nil {
		o.log.Warn("Mouse button up failed", zap.Error(err))
		return err
	}
	return nil
}

func (o *Orchestrator) toggle() {
	o.metrics.KeyboardToggled()
	o.log.Info("Keyboard toggle gesture")
	if o.toggler == nil {
		return
	}
	if err := o.toggler.Toggle(); err != nil {
		o.log.Warn("Keyboard toggle failed", zap.Error(err))
	}
}

func (o *Orchestrator) snapshot() Status {
	s := o.state
	st := Status{
		Mode:           s.Mode.String(),
		Contacts:       []touch.Contact{},
		MouseDown:      s.MouseDown,
		Voice:          o.voice,
		Paused:         s.Paused,
		TouchAvailable: o.ch.Available(),
		Frames:         o.frames,
	}
	if s.Session != uuid.Nil {
		st.Session = s.Session.String()
	}
	for _, ct := range o.ch.Contacts() {
		if ct.Flag.InContact() {
			st.Contacts = append(st.Contacts, ct)
		}
	}
	return st
}

func (o *Orchestrator) publish() {
	st := o.snapshot()
	o.published.Store(&st)
	if o.announced && !st.changed(o.last) {
		return
	}
	o.announced = true
	o.last = st
	for _, fn := range o.observers {
		fn(st)
	}
}

// Status returns the most recently published state.
func (o *Orchestrator) Status() Status {
	if p := o.published.Load(); p != nil {
		return *p
	}
	return Status{Mode: ModeIdle.String()}
}

// State exposes the engine state to the frame goroutine.
func (o *Orchestrator) State() *State { return o.state }
