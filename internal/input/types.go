// Package input provides platform touch and mouse injection backends.
package input

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned by backends that lack a capability on the
// current platform.
var ErrUnsupported = errors.New("input: not supported on this platform")

// Button identifies a mouse button.
type Button int

const (
	ButtonLeft   Button = 1
	ButtonRight  Button = 2
	ButtonMiddle Button = 3
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	}
	return fmt.Sprintf("button(%d)", int(b))
}

// PointerFlags is the per-contact lifecycle bitmask submitted with each
// touch record. The values match the Windows POINTER_FLAG_* constants.
type PointerFlags uint32

const (
	PointerFlagNone      PointerFlags = 0x00000000
	PointerFlagNew       PointerFlags = 0x00000001
	PointerFlagInRange   PointerFlags = 0x00000002
	PointerFlagInContact PointerFlags = 0x00000004
	PointerFlagDown      PointerFlags = 0x00010000
	PointerFlagUpdate    PointerFlags = 0x00020000
	PointerFlagUp        PointerFlags = 0x00040000
)

// Composite flag sets used by the touch channel.
const (
	FlagsDown   = PointerFlagNew | PointerFlagInRange | PointerFlagInContact | PointerFlagDown
	FlagsUpdate = PointerFlagInRange | PointerFlagInContact | PointerFlagUpdate
	FlagsUp     = PointerFlagUp
)

// Has reports whether all bits of o are set in f.
func (f PointerFlags) Has(o PointerFlags) bool { return f&o == o }

func (f PointerFlags) String() string {
	switch {
	case f == PointerFlagNone:
		return "none"
	case f.Has(PointerFlagDown):
		return "down"
	case f.Has(PointerFlagUpdate):
		return "update"
	case f.Has(PointerFlagUp):
		return "up"
	}
	return fmt.Sprintf("flags(0x%x)", uint32(f))
}

// Rect32 is a pixel rectangle.
type Rect32 struct {
	Left, Top, Right, Bottom int32
}

// ContactRecord is one touch point in an injected frame.
type ContactRecord struct {
	ID          uint32
	Flags       PointerFlags
	X, Y        int32
	Contact     Rect32
	Pressure    uint32
	Orientation uint32
}

// TouchInjector submits multi-touch frames to the OS.
type TouchInjector interface {
	// InitTouch prepares the OS touch facility for up to maxContacts
	// simultaneous contacts.
	InitTouch(maxContacts int) error

	// InjectTouch submits one frame. records must not be empty.
	InjectTouch(records []ContactRecord) error
}

// MouseInjector drives the classic mouse.
type MouseInjector interface {
	MouseButton(b Button, pressed bool) error
	Click(b Button) error
	MoveRelative(dx, dy int) error
	SetCursorPos(x, y int) error
}

// Backend is a complete platform injector.
type Backend interface {
	TouchInjector
	MouseInjector

	// ScreenSize returns the primary display size in pixels.
	ScreenSize() (width, height int, err error)

	Close() error
}

// InjectError reports a failed OS injection call.
type InjectError struct {
	Op   string
	Code uint32
	Err  error
}

func (e *InjectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("input: %s failed (code %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("input: %s failed (code %d)", e.Op, e.Code)
}

func (e *InjectError) Unwrap() error { return e.Err }
