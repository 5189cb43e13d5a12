package input

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogBackend performs no injection and logs every call. It backs -dry-run
// and keeps counters for inspection.
type LogBackend struct {
	log           *zap.Logger
	width, height int

	mu      sync.Mutex
	frames  int
	buttons map[Button]bool
	cursorX int
	cursorY int
}

// NewLogBackend returns a dry-run backend reporting the given screen size.
func NewLogBackend(width, height int, log *zap.Logger) *LogBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogBackend{
		log:     log.Named("dryrun"),
		width:   width,
		height:  height,
		buttons: make(map[Button]bool),
	}
}

func (b *LogBackend) InitTouch(maxContacts int) error {
	b.log.Info("Touch injection initialized", zap.Int("max_contacts", maxContacts))
	return nil
}

func (b *LogBackend) InjectTouch(records []ContactRecord) error {
	b.mu.Lock()
	b.frames++
	b.mu.Unlock()

	if ce := b.log.Check(zap.DebugLevel, "Touch frame"); ce != nil {
		fields := make([]zap.Field, 0, 1+len(records))
		fields = append(fields, zap.Int("count", len(records)))
		for _, r := range records {
			fields = append(fields, zap.Object("contact", contactMarshaler(r)))
		}
		ce.Write(fields...)
	}
	return nil
}

func (b *LogBackend) MouseButton(btn Button, pressed bool) error {
	b.mu.Lock()
	b.buttons[btn] = pressed
	b.mu.Unlock()
	b.log.Debug("Mouse button", zap.Stringer("button", btn), zap.Bool("pressed", pressed))
	return nil
}

func (b *LogBackend) Click(btn Button) error {
	if err := b.MouseButton(btn, true); err != nil {
		return err
	}
	return b.MouseButton(btn, false)
}

func (b *LogBackend) MoveRelative(dx, dy int) error {
	b.mu.Lock()
	b.cursorX += dx
	b.cursorY += dy
	b.mu.Unlock()
	b.log.Debug("Mouse move", zap.Int("dx", dx), zap.Int("dy", dy))
	return nil
}

func (b *LogBackend) SetCursorPos(x, y int) error {
	b.mu.Lock()
	b.cursorX, b.cursorY = x, y
	b.mu.Unlock()
	return nil
}

func (b *LogBackend) ScreenSize() (int, int, error) {
	return b.width, b.height, nil
}

func (b *LogBackend) Close() error { return nil }

// Frames returns the number of touch frames submitted.
func (b *LogBackend) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Pressed reports whether btn is currently held.
func (b *LogBackend) Pressed(btn Button) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buttons[btn]
}

// Cursor returns the last cursor position.
func (b *LogBackend) Cursor() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursorX, b.cursorY
}

type contactMarshaler ContactRecord

func (c contactMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint32("id", c.ID)
	enc.AddString("flags", c.Flags.String())
	enc.AddInt32("x", c.X)
	enc.AddInt32("y", c.Y)
	return nil
}
