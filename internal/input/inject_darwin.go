//go:build darwin

package input

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>

static bool hasAccessibilityPermissions() {
    return AXIsProcessTrusted();
}

static CGPoint currentMousePosition() {
    CGEventRef event = CGEventCreate(NULL);
    CGPoint cursor = CGEventGetLocation(event);
    CFRelease(event);
    return cursor;
}

static void postMouse(CGEventType type, CGPoint pos, CGMouseButton button) {
    CGEventRef event = CGEventCreateMouseEvent(NULL, type, pos, button);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}

// dragType is the move event to use while a button is held, or
// kCGEventMouseMoved when none is.
static void moveTo(CGFloat x, CGFloat y, CGEventType dragType, CGMouseButton button) {
    postMouse(dragType, CGPointMake(x, y), button);
}

static void moveBy(CGFloat dx, CGFloat dy, CGEventType dragType, CGMouseButton button) {
    CGPoint cur = currentMousePosition();
    postMouse(dragType, CGPointMake(cur.x + dx, cur.y + dy), button);
}

static void mouseButton(int button, bool pressed) {
    CGMouseButton cgButton;
    CGEventType eventType;

    switch (button) {
        case 1:
            cgButton = kCGMouseButtonLeft;
            eventType = pressed ? kCGEventLeftMouseDown : kCGEventLeftMouseUp;
            break;
        case 2:
            cgButton = kCGMouseButtonRight;
            eventType = pressed ? kCGEventRightMouseDown : kCGEventRightMouseUp;
            break;
        case 3:
            cgButton = kCGMouseButtonCenter;
            eventType = pressed ? kCGEventOtherMouseDown : kCGEventOtherMouseUp;
            break;
        default:
            return;
    }
    postMouse(eventType, currentMousePosition(), cgButton);
}

static size_t mainDisplayWidth() {
    return CGDisplayPixelsWide(CGMainDisplayID());
}

static size_t mainDisplayHeight() {
    return CGDisplayPixelsHigh(CGMainDisplayID());
}
*/
import "C"

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// darwinBackend drives the mouse through CoreGraphics. macOS has no public
// touch injection API, so the touch channel runs in mouse-only mode.
type darwinBackend struct {
	log *zap.Logger

	mu   sync.Mutex
	held Button
}

func newPlatformBackend(_ Options, log *zap.Logger) (Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !bool(C.hasAccessibilityPermissions()) {
		log.Warn("Accessibility permission missing, injected events will be dropped")
	}
	return &darwinBackend{log: log.Named("coregraphics")}, nil
}

func (b *darwinBackend) InitTouch(int) error {
	return &InjectError{Op: "InitTouch", Err: ErrUnsupported}
}

func (b *darwinBackend) InjectTouch([]ContactRecord) error {
	return &InjectError{Op: "InjectTouch", Err: ErrUnsupported}
}

func (b *darwinBackend) MouseButton(btn Button, pressed bool) error {
	if btn < ButtonLeft || btn > ButtonMiddle {
		return fmt.Errorf("input: unknown button %v", btn)
	}
	b.mu.Lock()
	if pressed {
		b.held = btn
	} else if b.held == btn {
		b.held = 0
	}
	b.mu.Unlock()

	C.mouseButton(C.int(btn), C.bool(pressed))
	return nil
}

func (b *darwinBackend) Click(btn Button) error {
	if err := b.MouseButton(btn, true); err != nil {
		return err
	}
	return b.MouseButton(btn, false)
}

// moveEvent picks a drag event while a button is held so that applications
// see a drag rather than a hover.
func (b *darwinBackend) moveEvent() (C.CGEventType, C.CGMouseButton) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.held {
	case ButtonLeft:
		return C.kCGEventLeftMouseDragged, C.kCGMouseButtonLeft
	case ButtonRight:
		return C.kCGEventRightMouseDragged, C.kCGMouseButtonRight
	case ButtonMiddle:
		return C.kCGEventOtherMouseDragged, C.kCGMouseButtonCenter
	}
	return C.kCGEventMouseMoved, C.kCGMouseButtonLeft
}

func (b *darwinBackend) MoveRelative(dx, dy int) error {
	t, btn := b.moveEvent()
	C.moveBy(C.CGFloat(dx), C.CGFloat(dy), t, btn)
	return nil
}

func (b *darwinBackend) SetCursorPos(x, y int) error {
	t, btn := b.moveEvent()
	C.moveTo(C.CGFloat(x), C.CGFloat(y), t, btn)
	return nil
}

func (b *darwinBackend) ScreenSize() (int, int, error) {
	return int(C.mainDisplayWidth()), int(C.mainDisplayHeight()), nil
}

func (b *darwinBackend) Close() error { return nil }
