//go:build linux

package input

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const uinputPath = "/dev/uinput"

// uinputBackend creates two virtual devices: a direct touchscreen for
// type-B multitouch and an absolute/relative pointer for the mouse path.
type uinputBackend struct {
	log  *zap.Logger
	opts Options

	mu      sync.Mutex
	touch   *os.File
	pointer *os.File
	mt      *mtEncoder
}

func newPlatformBackend(opts Options, log *zap.Logger) (Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	b := &uinputBackend{log: log.Named("uinput"), opts: opts}

	pointer, err := b.createPointer()
	if err != nil {
		return nil, fmt.Errorf("create uinput pointer: %w", err)
	}
	b.pointer = pointer
	return b, nil
}

func ioctl(f *os.File, req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}

func openUinput() (*os.File, error) {
	return os.OpenFile(uinputPath, unix.O_WRONLY|unix.O_NONBLOCK, 0660)
}

// setup applies the capability ioctls, writes the device description and
// declares the device. The file is closed on failure.
func setup(f *os.File, caps [][2]uint, dev uinputUserDev) error {
	for _, c := range caps {
		if err := ioctl(f, c[0], uintptr(c[1])); err != nil {
			_ = f.Close()
			return err
		}
	}

	data, err := packLE(&dev)
	if err != nil {
		_ = f.Close()
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := ioctl(f, uiDevCreate, 0); err != nil {
		_ = f.Close()
		return err
	}

	// udev needs a moment before the first events are routed.
	time.Sleep(200 * time.Millisecond)
	return nil
}

func (b *uinputBackend) createPointer() (*os.File, error) {
	f, err := openUinput()
	if err != nil {
		return nil, err
	}

	caps := [][2]uint{
		{uiSetEvBit, evKey},
		{uiSetKeyBit, btnLeft},
		{uiSetKeyBit, btnRight},
		{uiSetKeyBit, btnMiddle},
		{uiSetEvBit, evRel},
		{uiSetRelBit, relX},
		{uiSetRelBit, relY},
		{uiSetEvBit, evAbs},
		{uiSetAbsBit, absX},
		{uiSetAbsBit, absY},
		{uiSetPropBit, inputPropPointer},
	}

	dev := newUserDev(b.opts.DeviceName+" pointer", 0x0001)
	dev.AbsMax[absX] = int32(b.opts.ScreenWidth - 1)
	dev.AbsMax[absY] = int32(b.opts.ScreenHeight - 1)

	if err := setup(f, caps, dev); err != nil {
		return nil, err
	}
	b.log.Info("Created virtual pointer", zap.String("name", b.opts.DeviceName+" pointer"))
	return f, nil
}

func (b *uinputBackend) InitTouch(maxContacts int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.touch != nil {
		return nil
	}

	f, err := openUinput()
	if err != nil {
		return &InjectError{Op: "InitTouch", Code: errnoCode(err), Err: err}
	}

	caps := [][2]uint{
		{uiSetEvBit, evKey},
		{uiSetKeyBit, btnTouch},
		{uiSetEvBit, evAbs},
		{uiSetAbsBit, absMtSlot},
		{uiSetAbsBit, absMtTrackingID},
		{uiSetAbsBit, absMtPositionX},
		{uiSetAbsBit, absMtPositionY},
		{uiSetAbsBit, absMtPressure},
		{uiSetAbsBit, absMtTouchMajor},
		{uiSetAbsBit, absMtOrientation},
		{uiSetPropBit, inputPropDirect},
	}

	dev := newUserDev(b.opts.DeviceName+" touch", 0x0002)
	dev.AbsMax[absMtSlot] = int32(maxContacts - 1)
	dev.AbsMax[absMtTrackingID] = 0xffff
	dev.AbsMax[absMtPositionX] = int32(b.opts.ScreenWidth - 1)
	dev.AbsMax[absMtPositionY] = int32(b.opts.ScreenHeight - 1)
	dev.AbsMax[absMtPressure] = 0xffff
	dev.AbsMax[absMtTouchMajor] = 255
	dev.AbsMin[absMtOrientation] = 0
	dev.AbsMax[absMtOrientation] = 359

	if err := setup(f, caps, dev); err != nil {
		return &InjectError{Op: "InitTouch", Code: errnoCode(err), Err: err}
	}

	b.touch = f
	b.mt = newMTEncoder(maxContacts)
	b.log.Info("Created virtual touchscreen", zap.Int("max_contacts", maxContacts))
	return nil
}

func (b *uinputBackend) InjectTouch(records []ContactRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.touch == nil {
		return &InjectError{Op: "InjectTouch", Err: ErrUnsupported}
	}
	data, err := encodeEvents(b.mt.frame(records))
	if err != nil {
		return &InjectError{Op: "InjectTouch", Err: err}
	}
	if _, err := b.touch.Write(data); err != nil {
		return &InjectError{Op: "InjectTouch", Code: errnoCode(err), Err: err}
	}
	return nil
}

func (b *uinputBackend) writePointer(op string, events ...inputEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := encodeEvents(append(events, syn()))
	if err != nil {
		return &InjectError{Op: op, Err: err}
	}
	if _, err := b.pointer.Write(data); err != nil {
		return &InjectError{Op: op, Code: errnoCode(err), Err: err}
	}
	return nil
}

func (b *uinputBackend) MouseButton(btn Button, pressed bool) error {
	code, ok := buttonCode(btn)
	if !ok {
		return fmt.Errorf("input: unknown button %v", btn)
	}
	v := int32(0)
	if pressed {
		v = 1
	}
	return b.writePointer("MouseButton", inputEvent{Type: evKey, Code: code, Value: v})
}

func (b *uinputBackend) Click(btn Button) error {
	if err := b.MouseButton(btn, true); err != nil {
		return err
	}
	return b.MouseButton(btn, false)
}

func (b *uinputBackend) MoveRelative(dx, dy int) error {
	return b.writePointer("MoveRelative",
		inputEvent{Type: evRel, Code: relX, Value: int32(dx)},
		inputEvent{Type: evRel, Code: relY, Value: int32(dy)},
	)
}

func (b *uinputBackend) SetCursorPos(x, y int) error {
	return b.writePointer("SetCursorPos",
		inputEvent{Type: evAbs, Code: absX, Value: int32(x)},
		inputEvent{Type: evAbs, Code: absY, Value: int32(y)},
	)
}

// ScreenSize reports the configured size; uinput has no view of the display.
func (b *uinputBackend) ScreenSize() (int, int, error) {
	return b.opts.ScreenWidth, b.opts.ScreenHeight, nil
}

func (b *uinputBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result *multierror.Error
	for _, f := range []*os.File{b.touch, b.pointer} {
		if f == nil {
			continue
		}
		if err := ioctl(f, uiDevDestroy, 0); err != nil {
			result = multierror.Append(result, fmt.Errorf("destroy %s: %w", f.Name(), err))
		}
		if err := f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	b.touch, b.pointer = nil, nil
	return result.ErrorOrNil()
}

func errnoCode(err error) uint32 {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}
