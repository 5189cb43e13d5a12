//go:build windows

package input

import (
	"errors"
	"fmt"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procInitializeTouchInjection = user32.NewProc("InitializeTouchInjection")
	procInjectTouchInput         = user32.NewProc("InjectTouchInput")
	procSendInput                = user32.NewProc("SendInput")
	procSetCursorPos             = user32.NewProc("SetCursorPos")
	procGetSystemMetrics         = user32.NewProc("GetSystemMetrics")
	procSetProcessDPIAware       = user32.NewProc("SetProcessDPIAware")
)

const (
	ptTouch          = 2
	touchMaskAll     = 0x7 // CONTACTAREA | ORIENTATION | PRESSURE
	touchFeedbackDef = 0x1

	inputMouse = 0

	mouseeventfMove       = 0x0001
	mouseeventfLeftDown   = 0x0002
	mouseeventfLeftUp     = 0x0004
	mouseeventfRightDown  = 0x0008
	mouseeventfRightUp    = 0x0010
	mouseeventfMiddleDown = 0x0020
	mouseeventfMiddleUp   = 0x0040

	smCxScreen = 0
	smCyScreen = 1
)

type point struct{ X, Y int32 }

type pointerInfo struct {
	PointerType         uint32
	PointerID           uint32
	FrameID             uint32
	PointerFlags        uint32
	SourceDevice        windows.Handle
	HwndTarget          windows.HWND
	PixelLocation       point
	HimetricLocation    point
	PixelLocationRaw    point
	HimetricLocationRaw point
	Time                uint32
	HistoryCount        uint32
	InputData           int32
	KeyStates           uint32
	PerformanceCount    uint64
	ButtonChangeType    int32
}

type pointerTouchInfo struct {
	PointerInfo pointerInfo
	TouchFlags  uint32
	TouchMask   uint32
	Contact     Rect32
	ContactRaw  Rect32
	Orientation uint32
	Pressure    uint32
}

type mouseInput struct {
	Dx          int32
	Dy          int32
	MouseData   uint32
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

// sendInput matches INPUT with the mouse arm of the union, which is the
// largest member.
type sendInput struct {
	Type uint32
	Mi   mouseInput
}

type windowsBackend struct {
	log *zap.Logger
	buf []pointerTouchInfo
}

func newPlatformBackend(_ Options, log *zap.Logger) (Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := user32.Load(); err != nil {
		return nil, fmt.Errorf("load user32: %w", err)
	}
	// Touch coordinates are physical pixels.
	if procSetProcessDPIAware.Find() == nil {
		procSetProcessDPIAware.Call()
	}
	return &windowsBackend{log: log.Named("win32")}, nil
}

func lastErrorCode(err error) uint32 {
	var errno windows.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}

func (b *windowsBackend) InitTouch(maxContacts int) error {
	if err := procInitializeTouchInjection.Find(); err != nil {
		return &InjectError{Op: "InitializeTouchInjection", Err: ErrUnsupported}
	}
	r, _, err := procInitializeTouchInjection.Call(uintptr(maxContacts), touchFeedbackDef)
	if r == 0 {
		return &InjectError{Op: "InitializeTouchInjection", Code: lastErrorCode(err), Err: err}
	}
	b.buf = make([]pointerTouchInfo, 0, maxContacts)
	b.log.Info("Touch injection initialized", zap.Int("max_contacts", maxContacts))
	return nil
}

func (b *windowsBackend) InjectTouch(records []ContactRecord) error {
	if len(records) == 0 {
		return nil
	}

	b.buf = b.buf[:0]
	for _, rec := range records {
		var info pointerTouchInfo
		info.PointerInfo.PointerType = ptTouch
		info.PointerInfo.PointerID = rec.ID
		info.PointerInfo.PointerFlags = uint32(rec.Flags)
		info.PointerInfo.PixelLocation = point{X: rec.X, Y: rec.Y}
		info.TouchMask = touchMaskAll
		info.Contact = rec.Contact
		info.Orientation = rec.Orientation
		info.Pressure = rec.Pressure
		b.buf = append(b.buf, info)
	}

	r, _, err := procInjectTouchInput.Call(uintptr(len(b.buf)), uintptr(unsafe.Pointer(&b.buf[0])))
	if r == 0 {
		return &InjectError{Op: "InjectTouchInput", Code: lastErrorCode(err), Err: err}
	}
	return nil
}

func (b *windowsBackend) send(op string, in sendInput) error {
	r, _, err := procSendInput.Call(1, uintptr(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	if r == 0 {
		return &InjectError{Op: op, Code: lastErrorCode(err), Err: err}
	}
	return nil
}

func buttonFlags(btn Button, pressed bool) (uint32, error) {
	switch btn {
	case ButtonLeft:
		if pressed {
			return mouseeventfLeftDown, nil
		}
		return mouseeventfLeftUp, nil
	case ButtonRight:
		if pressed {
			return mouseeventfRightDown, nil
		}
		return mouseeventfRightUp, nil
	case ButtonMiddle:
		if pressed {
			return mouseeventfMiddleDown, nil
		}
		return mouseeventfMiddleUp, nil
	}
	return 0, fmt.Errorf("input: unknown button %v", btn)
}

func (b *windowsBackend) MouseButton(btn Button, pressed bool) error {
	flags, err := buttonFlags(btn, pressed)
	if err != nil {
		return err
	}
	return b.send("SendInput", sendInput{Type: inputMouse, Mi: mouseInput{DwFlags: flags}})
}

func (b *windowsBackend) Click(btn Button) error {
	if err := b.MouseButton(btn, true); err != nil {
		return err
	}
	return b.MouseButton(btn, false)
}

// MoveRelative also serves as the cursor reassert after touch input: a
// zero-displacement move makes the system cursor visible again.
func (b *windowsBackend) MoveRelative(dx, dy int) error {
	return b.send("SendInput", sendInput{
		Type: inputMouse,
		Mi:   mouseInput{Dx: int32(dx), Dy: int32(dy), DwFlags: mouseeventfMove},
	})
}

func (b *windowsBackend) SetCursorPos(x, y int) error {
	r, _, err := procSetCursorPos.Call(uintptr(x), uintptr(y))
	if r == 0 {
		return &InjectError{Op: "SetCursorPos", Code: lastErrorCode(err), Err: err}
	}
	return nil
}

func (b *windowsBackend) ScreenSize() (int, int, error) {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	if w == 0 || h == 0 {
		return 0, 0, &InjectError{Op: "GetSystemMetrics"}
	}
	return int(w), int(h), nil
}

func (b *windowsBackend) Close() error { return nil }
