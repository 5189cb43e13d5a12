package engine

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"airtouch/internal/debounce"
	"airtouch/internal/geometry"
	"airtouch/internal/input"
	"airtouch/internal/touch"
)

type call struct {
	Op      string
	Records []input.ContactRecord
	Button  input.Button
	Pressed bool
	X, Y    int
}

// fakeBackend records every OS call. injectErr makes InjectTouch fail.
type fakeBackend struct {
	initErr   error
	injectErr error
	calls     []call
}

func (f *fakeBackend) InitTouch(int) error { return f.initErr }

func (f *fakeBackend) InjectTouch(records []input.ContactRecord) error {
	cp := append([]input.ContactRecord(nil), records...)
	if f.injectErr != nil {
		f.calls = append(f.calls, call{Op: "touch_failed", Records: cp})
		return f.injectErr
	}
	f.calls = append(f.calls, call{Op: "touch", Records: cp})
	return nil
}

func (f *fakeBackend) MouseButton(b input.Button, pressed bool) error {
	f.calls = append(f.calls, call{Op: "button", Button: b, Pressed: pressed})
	return nil
}

func (f *fakeBackend) Click(b input.Button) error {
	f.calls = append(f.calls, call{Op: "click", Button: b})
	return nil
}

func (f *fakeBackend) MoveRelative(dx, dy int) error {
	f.calls = append(f.calls, call{Op: "move_rel", X: dx, Y: dy})
	return nil
}

func (f *fakeBackend) SetCursorPos(x, y int) error {
	f.calls = append(f.calls, call{Op: "cursor", X: x, Y: y})
	return nil
}

func (f *fakeBackend) take() []call {
	out := f.calls
	f.calls = nil
	return out
}

func ops(calls []call, op string) []call {
	var out []call
	for _, c := range calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func newTestEngine(t *testing.T, be *fakeBackend, cfg Config) *Orchestrator {
	t.Helper()
	log := zaptest.NewLogger(t)
	ch := touch.NewChannel(be, be, touch.DefaultOptions(), log, nil)
	be.take()
	return New(NewState(cfg.Thresholds), ch, be, cfg, log, nil)
}

func pt(x, y float64) geometry.Point { return geometry.Point{X: x, Y: y} }

func hand(p geometry.Point, pinch bool) Frame {
	return Frame{Hand: true, Primary: p, Contact: pinch}
}

func TestDragLock(t *testing.T) {
	be := &fakeBackend{}
	o := newTestEngine(t, be, DefaultConfig())

	o.Process(hand(pt(100, 100), true))
	if o.State().Mode != ModeSingleLocked {
		t.Fatalf("Expected single locked, got %v", o.State().Mode)
	}

	steps := []struct {
		pos  geometry.Point
		want geometry.Point
		mode Mode
	}{
		{pt(105, 103), pt(100, 100), ModeSingleLocked},
		{pt(124, 100), pt(100, 100), ModeSingleLocked},
		{pt(130, 100), pt(130, 100), ModeSingleFree},
		{pt(101, 100), pt(101, 100), ModeSingleFree},
		{pt(100, 100), pt(100, 100), ModeSingleFree},
	}
	be.take()
	for _, st := range steps {
		o.Process(hand(st.pos, true))
		touches := ops(be.take(), "touch")
		if len(touches) != 1 {
			t.Fatalf("Expected one touch frame at %+v, got %d", st.pos, len(touches))
		}
		r := touches[0].Records[0]
		if got := pt(float64(r.X), float64(r.Y)); got != st.want {
			t.Errorf("At %+v expected reported %+v, got %+v", st.pos, st.want, got)
		}
		if r.Flags != input.FlagsUpdate {
			t.Errorf("Expected update flags, got %v", r.Flags)
		}
		if o.State().Mode != st.mode {
			t.Errorf("At %+v expected mode %v, got %v", st.pos, st.mode, o.State().Mode)
		}
	}
}

func TestPinchLifecycle(t *testing.T) {
	be := &fakeBackend{}
	o := newTestEngine(t, be, DefaultConfig())

	o.Process(hand(pt(200, 200), false))
	calls := be.take()
	if diff := cmp.Diff([]call{{Op: "cursor", X: 200, Y: 200}}, calls); diff != "" {
		t.Errorf("Idle frame mismatch (-want +got):\n%s", diff)
	}

	o.Process(hand(pt(200, 200), true))
	touches := ops(be.take(), "touch")
	if len(touches) != 1 || touches[0].Records[0].Flags != input.FlagsDown {
		t.Fatalf("Expected a down frame, got %+v", touches)
	}

	o.Process(hand(pt(200, 200), false))
	calls = be.take()
	want := []call{
		{Op: "touch", Records: []input.ContactRecord{{
			ID: 0, Flags: input.FlagsUp, X: 200, Y: 200,
			Contact:  input.Rect32{Left: 198, Top: 198, Right: 202, Bottom: 202},
			Pressure: 32000, Orientation: 90,
		}}},
		{Op: "move_rel"},
	}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("Release frame mismatch (-want +got):\n%s", diff)
	}
	if o.State().Mode != ModeIdle || o.State().PrimaryDown {
		t.Errorf("Expected idle with primary up, got %v primary=%v", o.State().Mode, o.State().PrimaryDown)
	}
}

func TestInvalidPrimarySkipsFrame(t *testing.T) {
	be := &fakeBackend{}
	o := newTestEngine(t, be, DefaultConfig())

	o.Process(Frame{Hand: true, Primary: pt(200, 200), DualRequested: true})
	be.take()
	before := o.State().Debounce.Flags()
	count := 0
	for i := 0; i < 10; i++ {
		o.Process(Frame{Hand: true, Primary: pt(1, 0.5), Contact: true, DualRequested: true})
		count += len(be.calls)
	}
	be.take()

	if count != 0 {
		t.Errorf("Expected no OS calls for sentinel frames, got %d", count)
	}
	if o.State().Mode != ModeIdle {
		t.Errorf("Expected mode unchanged, got %v", o.State().Mode)
	}
	if got := o.State().Debounce.Flags(); got != before {
		t.Errorf("Expected counters untouched, got %+v", got)
	}

	// The first valid frame after the gap still sees a rising pinch edge.
	o.Process(hand(pt(200, 200), true))
	if o.State().Mode != ModeSingleLocked {
		t.Errorf("Expected pinch after skipped frames to start a session, got %v", o.State().Mode)
	}
}

func dualFrame(p, q geometry.Point) Frame {
	return Frame{Hand: true, Primary: p, Secondary: q, DualRequested: true}
}

func TestDualTouch(t *testing.T) {
	be := &fakeBackend{}
	cfg := DefaultConfig()
	cfg.Thresholds = debounce.Thresholds{Dual: 3, Toggle: 6}
	o := newTestEngine(t, be, cfg)

	// Start a single-touch session that dual mode takes over.
	o.Process(hand(pt(100, 100), true))
	o.Process(Frame{Hand: true, Primary: pt(100, 100), Secondary: pt(150, 100), Contact: true, DualRequested: true})
	o.Process(Frame{Hand: true, Primary: pt(100, 100), Secondary: pt(150, 100), Contact: true, DualRequested: true})
	be.take()

	o.Process(dualFrame(pt(100, 100), pt(150, 100)))
	if o.State().Mode != ModeDual {
		t.Fatalf("Expected dual after threshold, got %v", o.State().Mode)
	}
	if o.State().Drag.Locked {
		t.Error("Expected drag lock cleared on dual entry")
	}
	touches := ops(be.take(), "touch")
	got := map[uint32]input.PointerFlags{}
	for _, r := range touches[0].Records {
		got[r.ID] = r.Flags
	}
	want := map[uint32]input.PointerFlags{0: input.FlagsUpdate, 1: input.FlagsDown}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dual entry frame mismatch (-want +got):\n%s", diff)
	}

	// Secondary off screen keeps the session and re-sends its last position.
	o.Process(dualFrame(pt(110, 100), geometry.Point{}))
	touches = ops(be.take(), "touch")
	if n := len(touches[0].Records); n != 2 {
		t.Fatalf("Expected both contacts while secondary invalid, got %d", n)
	}
	if r := touches[0].Records[1]; r.X != 150 {
		t.Errorf("Expected stale secondary at x=150, got %d", r.X)
	}

	// Dropping the request for the dual threshold returns to idle.
	for i := 0; i < 3; i++ {
		o.Process(hand(pt(110, 100), false))
	}
	if o.State().Mode != ModeIdle {
		t.Fatalf("Expected idle after dual release, got %v", o.State().Mode)
	}
	if o.State().PrimaryDown || o.State().SecondaryDown {
		t.Error("Expected both contacts released")
	}
	calls := be.take()
	if len(ops(calls, "button")) != 0 {
		t.Error("Expected no mouse buttons in dual mode")
	}
	if len(ops(calls, "move_rel")) != 1 {
		t.Errorf("Expected one cursor reassert on dual exit, got %d", len(ops(calls, "move_rel")))
	}
}

func TestTrackingLossResets(t *testing.T) {
	be := &fakeBackend{}
	cfg := DefaultConfig()
	cfg.Thresholds = debounce.Thresholds{Dual: 2, Toggle: 6}
	o := newTestEngine(t, be, cfg)

	o.Process(dualFrame(pt(100, 100), pt(150, 100)))
	o.Process(dualFrame(pt(100, 100), pt(150, 100)))
	o.Process(Frame{Hand: true, Primary: pt(100, 100), ToggleRequested: true})
	be.take()
	if o.State().Session == uuid.Nil {
		t.Fatal("Expected a tracking session")
	}

	o.Process(Frame{Hand: false})

	s := o.State()
	if s.Mode != ModeIdle || s.MouseDown || s.PrimaryDown || s.SecondaryDown || s.PrevContact {
		t.Errorf("Expected fully reset state, got %+v", s)
	}
	if got := s.Debounce.Flags(); got != (debounce.ModeFlags{}) {
		t.Errorf("Expected counters cleared, got %+v", got)
	}
	if s.Session != uuid.Nil {
		t.Error("Expected session cleared")
	}

	calls := be.take()
	touches := ops(calls, "touch")
	if len(touches) != 1 {
		t.Fatalf("Expected one release frame, got %d", len(touches))
	}
	for _, r := range touches[0].Records {
		if r.Flags != input.FlagsUp {
			t.Errorf("Expected up for contact %d, got %v", r.ID, r.Flags)
		}
	}
	for _, ct := range o.ch.Contacts() {
		if ct.Flag != touch.None {
			t.Errorf("Expected contact %d None, got %v", ct.ID, ct.Flag)
		}
	}

	// A second empty frame does nothing.
	o.Process(Frame{Hand: false})
	if calls := be.take(); len(calls) != 0 {
		t.Errorf("Expected no calls on repeated loss, got %+v", calls)
	}
}

func TestFallbackOnCommitFailure(t *testing.T) {
	be := &fakeBackend{injectErr: &input.InjectError{Op: "InjectTouchInput", Code: 87}}
	o := newTestEngine(t, be, DefaultConfig())

	o.Process(hand(pt(300, 300), true))
	calls := be.take()
	if len(ops(calls, "touch_failed")) != 1 {
		t.Fatalf("Expected an attempted touch frame, got %+v", calls)
	}
	buttons := ops(calls, "button")
	if len(buttons) != 1 || !buttons[0].Pressed {
		t.Fatalf("Expected a fallback button down, got %+v", buttons)
	}
	if !o.State().MouseDown {
		t.Error("Expected mouse down recorded")
	}

	// While the mouse owns the session no touch frames are attempted.
	o.Process(hand(pt(310, 300), true))
	calls = be.take()
	if n := len(ops(calls, "touch")) + len(ops(calls, "touch_failed")); n != 0 {
		t.Errorf("Expected no touch while mouse held, got %d", n)
	}
	if c := ops(calls, "cursor"); len(c) != 1 || c[0].X != 300 {
		t.Errorf("Expected cursor pinned at anchor, got %+v", c)
	}

	o.Process(hand(pt(310, 300), false))
	buttons = ops(be.take(), "button")
	if len(buttons) != 1 || buttons[0].Pressed {
		t.Fatalf("Expected fallback button up, got %+v", buttons)
	}
}

func TestFallbackMutualExclusion(t *testing.T) {
	be := &fakeBackend{}
	o := newTestEngine(t, be, DefaultConfig())
	failing := errors.New("rejected")

	pattern := []struct {
		pinch bool
		fail  bool
	}{
		{false, false}, {true, false}, {true, true}, {true, false}, {false, false},
		{true, true}, {true, true}, {false, false}, {true, false}, {true, true},
		{false, true}, {false, false}, {true, false}, {false, false},
	}
	for i, p := range pattern {
		if p.fail {
			be.injectErr = failing
		} else {
			be.injectErr = nil
		}
		o.Process(hand(pt(float64(100+i*40), 200), p.pinch))

		calls := be.take()
		touched := len(ops(calls, "touch")) > 0
		for _, b := range ops(calls, "button") {
			if b.Pressed && touched {
				t.Errorf("Frame %d: button down in the same frame as a touch commit", i)
			}
		}
	}
}

func TestFallbackMidDragLiftsContact(t *testing.T) {
	be := &fakeBackend{}
	o := newTestEngine(t, be, DefaultConfig())

	o.Process(hand(pt(200, 100), true))
	if n := len(ops(be.take(), "touch")); n != 1 {
		t.Fatalf("Expected the contact down, got %d touch frames", n)
	}

	// One rejected frame mid-drag hands the session to the mouse.
	be.injectErr = errors.New("rejected")
	o.Process(hand(pt(205, 100), true))
	calls := be.take()
	if buttons := ops(calls, "button"); len(buttons) != 1 || !buttons[0].Pressed {
		t.Fatalf("Expected a fallback button down, got %+v", buttons)
	}
	if len(ops(calls, "touch")) != 0 {
		t.Fatalf("Expected no touch commit with the button press, got %+v", calls)
	}
	if o.State().PrimaryDown {
		t.Error("Expected the contact to be lifted when the mouse takes over")
	}
	be.injectErr = nil

	// The next frame commits the lift while the button stays held.
	o.Process(hand(pt(210, 100), true))
	calls = be.take()
	touches := ops(calls, "touch")
	if len(touches) != 1 {
		t.Fatalf("Expected one touch frame for the lift, got %+v", calls)
	}
	want := []input.ContactRecord{{ID: 0, Flags: input.FlagsUp}}
	got := []input.ContactRecord{{ID: touches[0].Records[0].ID, Flags: touches[0].Records[0].Flags}}
	if diff := cmp.Diff(want, got); diff != "" || len(touches[0].Records) != 1 {
		t.Errorf("Lift frame mismatch (-want +got):\n%s", diff)
	}
	if len(ops(calls, "button")) != 0 {
		t.Errorf("Expected the button to stay held, got %+v", ops(calls, "button"))
	}
	if c := ops(calls, "cursor"); len(c) != 1 || c[0].X != 200 {
		t.Errorf("Expected the cursor at the drag anchor, got %+v", c)
	}

	// The mouse owns the rest of the drag.
	o.Process(hand(pt(240, 100), true))
	calls = be.take()
	if n := len(ops(calls, "touch")) + len(ops(calls, "touch_failed")); n != 0 {
		t.Errorf("Expected no touch while the mouse drags, got %+v", calls)
	}
	if c := ops(calls, "cursor"); len(c) != 1 || c[0].X != 240 {
		t.Errorf("Expected the cursor to follow the drag, got %+v", c)
	}

	o.Process(hand(pt(240, 100), false))
	calls = be.take()
	if buttons := ops(calls, "button"); len(buttons) != 1 || buttons[0].Pressed {
		t.Fatalf("Expected the button up on release, got %+v", buttons)
	}
	if n := len(ops(calls, "touch")); n != 0 {
		t.Errorf("Expected nothing left to commit on release, got %d touch frames", n)
	}
	if o.ch.Pending() {
		t.Errorf("Expected no pending contacts, got %+v", o.ch.Contacts())
	}
}

func TestDualEntryReleasesFallbackButton(t *testing.T) {
	be := &fakeBackend{injectErr: errors.New("rejected")}
	cfg := DefaultConfig()
	cfg.Thresholds = debounce.Thresholds{Dual: 2, Toggle: 6}
	o := newTestEngine(t, be, cfg)

	o.Process(hand(pt(100, 100), true))
	be.take()
	if !o.State().MouseDown {
		t.Fatal("Expected the fallback button held")
	}
	be.injectErr = nil

	f := Frame{Hand: true, Primary: pt(100, 100), Secondary: pt(150, 100), Contact: true, DualRequested: true}
	for i := 0; i < 5 && o.State().Mode != ModeDual; i++ {
		o.Process(f)
		calls := be.take()
		for _, b := range ops(calls, "button") {
			if b.Pressed {
				t.Fatalf("Frame %d: unexpected button down %+v", i, calls)
			}
		}
		if o.State().Mode != ModeDual {
			continue
		}
		// Entering dual lifts the button first, then commits both contacts
		// in the same frame.
		var seq []string
		for _, c := range calls {
			if c.Op == "button" || c.Op == "touch" {
				seq = append(seq, c.Op)
			}
		}
		if diff := cmp.Diff([]string{"button", "touch"}, seq); diff != "" {
			t.Errorf("Dual entry sequence mismatch (-want +got):\n%s", diff)
		}
	}
	if o.State().Mode != ModeDual {
		t.Fatalf("Expected dual mode, got %v", o.State().Mode)
	}
	if o.State().MouseDown {
		t.Error("Expected the fallback button released")
	}
}

func TestDualFailureHasNoMouseFallback(t *testing.T) {
	be := &fakeBackend{injectErr: errors.New("rejected")}
	cfg := DefaultConfig()
	cfg.Thresholds = debounce.Thresholds{Dual: 2, Toggle: 6}
	o := newTestEngine(t, be, cfg)

	for i := 0; i < 6; i++ {
		o.Process(dualFrame(pt(100, 100), pt(150, 100)))
	}
	if o.State().Mode != ModeDual {
		t.Fatalf("Expected dual mode, got %v", o.State().Mode)
	}
	calls := be.take()
	if len(ops(calls, "touch_failed")) == 0 {
		t.Fatal("Expected attempted dual frames")
	}
	if b := ops(calls, "button"); len(b) != 0 {
		t.Errorf("Expected no mouse buttons in dual mode, got %+v", b)
	}
	if o.State().PrimaryDown || o.State().SecondaryDown {
		t.Error("Expected no contacts down after rejected frames")
	}

	// A frame that goes through starts both contacts fresh.
	be.injectErr = nil
	o.Process(dualFrame(pt(100, 100), pt(150, 100)))
	touches := ops(be.take(), "touch")
	if len(touches) != 1 || len(touches[0].Records) != 2 {
		t.Fatalf("Expected one frame with both contacts, got %+v", touches)
	}
	for _, r := range touches[0].Records {
		if r.Flags != input.FlagsDown {
			t.Errorf("Expected contact %d down, got %v", r.ID, r.Flags)
		}
	}
}

func TestUnavailableUsesMouse(t *testing.T) {
	be := &fakeBackend{initErr: &input.InjectError{Op: "InitTouch", Err: input.ErrUnsupported}}
	o := newTestEngine(t, be, DefaultConfig())

	o.Process(hand(pt(50, 60), false))
	o.Process(hand(pt(50, 60), true))
	o.Process(hand(pt(52, 61), true))
	o.Process(hand(pt(52, 61), false))

	want := []call{
		{Op: "cursor", X: 50, Y: 60},
		{Op: "cursor", X: 50, Y: 60},
		{Op: "button", Button: input.ButtonLeft, Pressed: true},
		{Op: "cursor", X: 50, Y: 60},
		{Op: "cursor", X: 52, Y: 61},
		{Op: "button", Button: input.ButtonLeft, Pressed: false},
	}
	if diff := cmp.Diff(want, be.take()); diff != "" {
		t.Errorf("Mouse-only sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestToggleFiresOnce(t *testing.T) {
	be := &fakeBackend{}
	o := newTestEngine(t, be, DefaultConfig())

	toggles := 0
	o.SetToggler(TogglerFunc(func() error {
		toggles++
		return nil
	}))

	for i := 0; i < 20; i++ {
		o.Process(Frame{Hand: true, Primary: pt(100, 100), ToggleRequested: true})
	}
	if toggles != 1 {
		t.Fatalf("Expected one toggle for a held gesture, got %d", toggles)
	}

	o.Process(Frame{Hand: false})
	for i := 0; i < debounce.DefaultToggleThreshold; i++ {
		o.Process(Frame{Hand: true, Primary: pt(100, 100), ToggleRequested: true})
	}
	if toggles != 2 {
		t.Errorf("Expected a second toggle after tracking loss, got %d", toggles)
	}
}

func TestStatusObservers(t *testing.T) {
	be := &fakeBackend{}
	o := newTestEngine(t, be, DefaultConfig())

	var modes []string
	o.OnStatus(func(s Status) { modes = append(modes, s.Mode) })

	o.Process(hand(pt(100, 100), false))
	o.Process(hand(pt(101, 100), false))
	o.Process(hand(pt(101, 100), true))
	o.Process(hand(pt(140, 100), true))
	o.Process(hand(pt(140, 100), false))

	want := []string{"idle", "single_locked", "single_free", "idle"}
	if diff := cmp.Diff(want, modes); diff != "" {
		t.Errorf("Observed modes mismatch (-want +got):\n%s", diff)
	}

	st := o.Status()
	if st.Session == "" || !st.TouchAvailable {
		t.Errorf("Expected session and touch available in status, got %+v", st)
	}
}

func TestPauseReleases(t *testing.T) {
	be := &fakeBackend{}
	o := newTestEngine(t, be, DefaultConfig())

	o.Process(hand(pt(100, 100), true))
	be.take()

	o.SetPaused(true)
	if len(ops(be.take(), "touch")) != 1 {
		t.Error("Expected pause to release the held contact")
	}
	o.Process(hand(pt(100, 100), true))
	if calls := be.take(); len(calls) != 0 {
		t.Errorf("Expected no input while paused, got %+v", calls)
	}
	if !o.Status().Paused {
		t.Error("Expected paused in status")
	}

	o.SetPaused(false)
	o.Process(hand(pt(100, 100), false))
	o.Process(hand(pt(100, 100), true))
	if o.State().Mode != ModeSingleLocked {
		t.Errorf("Expected input to resume, got %v", o.State().Mode)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	be := &fakeBackend{injectErr: errors.New("rejected")}
	o := newTestEngine(t, be, DefaultConfig())

	o.Process(hand(pt(100, 100), true))
	if !o.State().MouseDown {
		t.Fatal("Expected fallback button held")
	}
	be.take()

	if err := o.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	buttons := ops(be.take(), "button")
	if len(buttons) != 1 || buttons[0].Pressed {
		t.Errorf("Expected shutdown to release the button, got %+v", buttons)
	}
	if err := o.Shutdown(); err != nil {
		t.Errorf("Second shutdown failed: %v", err)
	}
	if calls := be.take(); len(calls) != 0 {
		t.Errorf("Expected second shutdown to do nothing, got %+v", calls)
	}
}
