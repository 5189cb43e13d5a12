// Package touch maintains the per-contact lifecycle of synthetic touch
// points and submits them to the OS one frame at a time.
package touch

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"airtouch/internal/geometry"
	"airtouch/internal/input"
	"airtouch/internal/metrics"
)

// ErrUnavailable is returned by Update and CommitFrame when the OS touch
// facility could not be initialised. The caller should use the mouse.
var ErrUnavailable = errors.New("touch: injection unavailable")

// Lifecycle is the pending state of a contact for the next frame.
type Lifecycle int

const (
	None Lifecycle = iota
	NewDown
	Update
	Up
)

func (l Lifecycle) String() string {
	switch l {
	case None:
		return "none"
	case NewDown:
		return "new_down"
	case Update:
		return "update"
	case Up:
		return "up"
	}
	return fmt.Sprintf("lifecycle(%d)", int(l))
}

// InContact reports whether the contact is touching as of the last update.
func (l Lifecycle) InContact() bool {
	return l == NewDown || l == Update
}

func (l Lifecycle) pointerFlags() input.PointerFlags {
	switch l {
	case NewDown:
		return input.FlagsDown
	case Update:
		return input.FlagsUpdate
	case Up:
		return input.FlagsUp
	}
	return input.PointerFlagNone
}

// Contact is one synthetic touch point.
type Contact struct {
	ID       int            `json:"id"`
	Position geometry.Point `json:"position"`
	Flag     Lifecycle      `json:"-"`
}

// FrameError reports a touch frame the OS rejected.
type FrameError struct {
	Code  uint32
	Count int
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("touch: frame of %d contacts rejected (code %d)", e.Count, e.Code)
}

func (e *FrameError) Unwrap() error { return e.Err }

// Options configures a Channel.
type Options struct {
	MaxContacts int
	HalfExtent  int
	Pressure    uint32
	Orientation uint32
}

// DefaultOptions returns the stock contact geometry.
func DefaultOptions() Options {
	return Options{MaxContacts: 2, HalfExtent: 2, Pressure: 32000, Orientation: 90}
}

// Channel owns the contact slots. It is not safe for concurrent use; the
// frame goroutine is its only caller.
type Channel struct {
	inj     input.TouchInjector
	cursor  input.MouseInjector
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics

	available  bool
	contacts   []Contact
	records    []input.ContactRecord
	failLimit  *rate.Limiter
	suppressed int
}

// NewChannel initialises the OS touch facility for opts.MaxContacts
// contacts. If that fails the channel is permanently unavailable and the
// failure is logged once. cursor is used for the cursor reassert after a
// release and may be nil.
func NewChannel(inj input.TouchInjector, cursor input.MouseInjector, opts Options, log *zap.Logger, m *metrics.Metrics) *Channel {
	if opts.MaxContacts < 1 {
		opts.MaxContacts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	c := &Channel{
		inj:       inj,
		cursor:    cursor,
		opts:      opts,
		log:       log.Named("touch"),
		metrics:   m,
		contacts:  make([]Contact, opts.MaxContacts),
		records:   make([]input.ContactRecord, 0, opts.MaxContacts),
		failLimit: rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for i := range c.contacts {
		c.contacts[i].ID = i
	}

	if inj == nil {
		c.log.Warn("No touch injector, running mouse-only")
		return c
	}
	if err := inj.InitTouch(opts.MaxContacts); err != nil {
		c.log.Warn("Touch injection unavailable, running mouse-only", zap.Error(err))
		return c
	}
	c.available = true
	return c
}

// Available reports whether touch frames can be injected.
func (c *Channel) Available() bool { return c.available }

// MaxContacts returns the number of contact slots.
func (c *Channel) MaxContacts() int { return len(c.contacts) }

// Update records the desired state of contact id for the next frame.
// Nothing is submitted until CommitFrame.
func (c *Channel) Update(id int, pos geometry.Point, down bool) error {
	if !c.available {
		return ErrUnavailable
	}
	if id < 0 || id >= len(c.contacts) {
		return fmt.Errorf("touch: contact id %d out of range [0,%d)", id, len(c.contacts))
	}

	ct := &c.contacts[id]
	switch {
	case down && !ct.Flag.InContact():
		ct.Flag = NewDown
		ct.Position = pos
	case down:
		ct.Flag = Update
		ct.Position = pos
	case ct.Flag.InContact():
		ct.Flag = Up
	}
	return nil
}

func (c *Channel) record(ct Contact) input.ContactRecord {
	x := int32(math.Round(ct.Position.X))
	y := int32(math.Round(ct.Position.Y))
	r := int32(c.opts.HalfExtent)
	return input.ContactRecord{
		ID:          uint32(ct.ID),
		Flags:       ct.Flag.pointerFlags(),
		X:           x,
		Y:           y,
		Contact:     input.Rect32{Left: x - r, Top: y - r, Right: x + r, Bottom: y + r},
		Pressure:    c.opts.Pressure,
		Orientation: c.opts.Orientation,
	}
}

// pack collects every non-None contact into a gap-free slice.
func (c *Channel) pack() []input.ContactRecord {
	c.records = c.records[:0]
	for _, ct := range c.contacts {
		if ct.Flag != None {
			c.records = append(c.records, c.record(ct))
		}
	}
	return c.records
}

// CommitFrame submits every pending contact. An empty frame succeeds
// without calling the OS. On success new contacts become updates and
// lifted ones are retired.
// On failure lifts stay pending for the next commit and new contacts are
// dropped back to None.
func (c *Channel) CommitFrame() error {
	if !c.available {
		return ErrUnavailable
	}

	records := c.pack()
	if len(records) == 0 {
		return nil
	}

	if err := c.inj.InjectTouch(records); err != nil {
		fe := &FrameError{Count: len(records), Err: err}
		var ie *input.InjectError
		if errors.As(err, &ie) {
			fe.Code = ie.Code
		}
		// The OS never saw these contacts go down; the next update
		// starts them again.
		for i := range c.contacts {
			if c.contacts[i].Flag == NewDown {
				c.contacts[i].Flag = None
			}
		}
		c.metrics.InjectionFailed()
		c.logFailure(fe)
		return fe
	}

	for i := range c.contacts {
		switch c.contacts[i].Flag {
		case NewDown:
			c.contacts[i].Flag = Update
		case Up:
			c.contacts[i].Flag = None
		}
	}
	c.metrics.TouchCommitted(c.Active())
	return nil
}

func (c *Channel) logFailure(fe *FrameError) {
	if !c.failLimit.Allow() {
		c.suppressed++
		return
	}
	c.log.Warn("Touch frame rejected",
		zap.Uint32("code", fe.Code),
		zap.Int("count", fe.Count),
		zap.Int("suppressed", c.suppressed),
		zap.Error(fe.Err),
	)
	c.suppressed = 0
}

// ReleaseAll lifts every active contact, commits the frame and reasserts
// the system cursor. With nothing active it does nothing. In unavailable
// mode it is a no-op.
func (c *Channel) ReleaseAll() error {
	if !c.available {
		return nil
	}

	pending := false
	for i := range c.contacts {
		if c.contacts[i].Flag != None {
			c.contacts[i].Flag = Up
			pending = true
		}
	}
	if !pending {
		return nil
	}

	var result *multierror.Error
	if err := c.CommitFrame(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.ReassertCursor(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// ReassertCursor issues a zero-displacement relative move. The OS hides
// the cursor while synthetic touches are active and only shows it again on
// mouse input.
func (c *Channel) ReassertCursor() error {
	if c.cursor == nil {
		return nil
	}
	if err := c.cursor.MoveRelative(0, 0); err != nil {
		return fmt.Errorf("reassert cursor: %w", err)
	}
	return nil
}

// Pending reports whether the next CommitFrame would submit anything.
func (c *Channel) Pending() bool {
	for _, ct := range c.contacts {
		if ct.Flag != None {
			return true
		}
	}
	return false
}

// Active returns the number of contacts currently touching.
func (c *Channel) Active() int {
	n := 0
	for _, ct := range c.contacts {
		if ct.Flag.InContact() {
			n++
		}
	}
	return n
}

// Contacts returns a copy of the contact slots.
func (c *Channel) Contacts() []Contact {
	out := make([]Contact, len(c.contacts))
	copy(out, c.contacts)
	return out
}
