package input

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

func TestPointerFlagSets(t *testing.T) {
	if !FlagsDown.Has(PointerFlagInContact) || !FlagsDown.Has(PointerFlagNew) {
		t.Errorf("Expected down flags to carry NEW and INCONTACT, got 0x%x", uint32(FlagsDown))
	}
	if FlagsUpdate.Has(PointerFlagNew) {
		t.Error("Expected update flags without NEW")
	}
	if uint32(FlagsDown) != 0x10007 {
		t.Errorf("Expected down flags 0x10007, got 0x%x", uint32(FlagsDown))
	}
	if uint32(FlagsUpdate) != 0x20006 {
		t.Errorf("Expected update flags 0x20006, got 0x%x", uint32(FlagsUpdate))
	}

	for flags, want := range map[PointerFlags]string{
		PointerFlagNone: "none",
		FlagsDown:       "down",
		FlagsUpdate:     "update",
		FlagsUp:         "up",
	} {
		if got := flags.String(); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}

func TestInjectErrorUnwrap(t *testing.T) {
	err := error(&InjectError{Op: "InjectTouch", Code: 87, Err: ErrUnsupported})

	if !errors.Is(err, ErrUnsupported) {
		t.Error("Expected InjectError to unwrap to its cause")
	}
	var ie *InjectError
	if !errors.As(err, &ie) || ie.Code != 87 {
		t.Errorf("Expected code 87, got %+v", ie)
	}
}

func TestIoctlNumbers(t *testing.T) {
	tests := []struct {
		name string
		got  uint
		want uint
	}{
		{"UI_SET_EVBIT", uiSetEvBit, 0x40045564},
		{"UI_SET_KEYBIT", uiSetKeyBit, 0x40045565},
		{"UI_SET_ABSBIT", uiSetAbsBit, 0x40045567},
		{"UI_DEV_CREATE", uiDevCreate, 0x5501},
		{"UI_DEV_DESTROY", uiDevDestroy, 0x5502},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: expected 0x%x, got 0x%x", tt.name, tt.want, tt.got)
		}
	}
}

func TestUserDevPacking(t *testing.T) {
	dev := newUserDev("airtouch touch", 2)
	dev.AbsMax[absMtPositionX] = 1919

	data, err := packLE(&dev)
	if err != nil {
		t.Fatalf("Failed to pack: %v", err)
	}
	if want := uinputMaxNameSize + 8 + 4 + 4*absCnt*4; len(data) != want {
		t.Fatalf("Expected %d bytes, got %d", want, len(data))
	}
	if got := string(data[:14]); got != "airtouch touch" {
		t.Errorf("Expected device name at offset 0, got %q", got)
	}
	if got := binary.LittleEndian.Uint16(data[80:]); got != busVirtual {
		t.Errorf("Expected bus type 0x%x, got 0x%x", busVirtual, got)
	}
	off := uinputMaxNameSize + 8 + 4 + absMtPositionX*4
	if got := int32(binary.LittleEndian.Uint32(data[off:])); got != 1919 {
		t.Errorf("Expected abs max 1919, got %d", got)
	}
}

func TestEncodeEvents(t *testing.T) {
	data, err := encodeEvents([]inputEvent{
		{Type: evAbs, Code: absMtTrackingID, Value: -1},
		syn(),
	})
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if len(data) != 2*inputEventSize {
		t.Fatalf("Expected %d bytes, got %d", 2*inputEventSize, len(data))
	}
	if got := binary.LittleEndian.Uint16(data[16:]); got != evAbs {
		t.Errorf("Expected type %d, got %d", evAbs, got)
	}
	if got := binary.LittleEndian.Uint16(data[18:]); got != absMtTrackingID {
		t.Errorf("Expected code 0x%x, got 0x%x", absMtTrackingID, got)
	}
	if got := int32(binary.LittleEndian.Uint32(data[20:])); got != -1 {
		t.Errorf("Expected value -1, got %d", got)
	}
}

type ev struct {
	Type  uint16
	Code  uint16
	Value int32
}

func strip(events []inputEvent) []ev {
	out := make([]ev, len(events))
	for i, e := range events {
		out[i] = ev{e.Type, e.Code, e.Value}
	}
	return out
}

func TestMTEncoderLifecycle(t *testing.T) {
	m := newMTEncoder(2)
	rect := Rect32{Left: 98, Top: 98, Right: 102, Bottom: 102}

	down := m.frame([]ContactRecord{{ID: 0, Flags: FlagsDown, X: 100, Y: 100, Contact: rect, Pressure: 32000, Orientation: 90}})
	want := []ev{
		{evAbs, absMtSlot, 0},
		{evAbs, absMtTrackingID, 0},
		{evAbs, absMtPositionX, 100},
		{evAbs, absMtPositionY, 100},
		{evAbs, absMtPressure, 32000},
		{evAbs, absMtTouchMajor, 4},
		{evAbs, absMtOrientation, 90},
		{evKey, btnTouch, 1},
		{evSyn, synReport, 0},
	}
	if diff := cmp.Diff(want, strip(down)); diff != "" {
		t.Errorf("Down frame mismatch (-want +got):\n%s", diff)
	}

	update := m.frame([]ContactRecord{
		{ID: 0, Flags: FlagsUpdate, X: 110, Y: 105},
		{ID: 1, Flags: FlagsDown, X: 300, Y: 300},
	})
	if got := strip(update); got[len(got)-2].Code == btnTouch {
		t.Error("Expected no BTN_TOUCH change while a contact stays down")
	}

	up := m.frame([]ContactRecord{{ID: 0, Flags: FlagsUp}, {ID: 1, Flags: FlagsUp}})
	want = []ev{
		{evAbs, absMtSlot, 0},
		{evAbs, absMtTrackingID, -1},
		{evAbs, absMtSlot, 1},
		{evAbs, absMtTrackingID, -1},
		{evKey, btnTouch, 0},
		{evSyn, synReport, 0},
	}
	if diff := cmp.Diff(want, strip(up)); diff != "" {
		t.Errorf("Up frame mismatch (-want +got):\n%s", diff)
	}
}

func TestMTEncoderTrackingIDsIncrease(t *testing.T) {
	m := newMTEncoder(1)
	m.frame([]ContactRecord{{ID: 0, Flags: FlagsDown}})
	m.frame([]ContactRecord{{ID: 0, Flags: FlagsUp}})
	second := strip(m.frame([]ContactRecord{{ID: 0, Flags: FlagsDown}}))

	if second[1].Code != absMtTrackingID || second[1].Value != 1 {
		t.Errorf("Expected second contact to get tracking id 1, got %+v", second[1])
	}
}

func TestMTEncoderIgnoresOutOfRangeSlots(t *testing.T) {
	m := newMTEncoder(2)
	got := strip(m.frame([]ContactRecord{{ID: 5, Flags: FlagsDown}}))

	if diff := cmp.Diff([]ev{{evSyn, synReport, 0}}, got); diff != "" {
		t.Errorf("Expected only SYN_REPORT (-want +got):\n%s", diff)
	}
}

func TestLogBackend(t *testing.T) {
	b := NewLogBackend(1280, 720, zaptest.NewLogger(t))

	if err := b.InitTouch(2); err != nil {
		t.Fatalf("InitTouch failed: %v", err)
	}
	if err := b.InjectTouch([]ContactRecord{{ID: 0, Flags: FlagsDown, X: 5, Y: 6}}); err != nil {
		t.Fatalf("InjectTouch failed: %v", err)
	}
	if got := b.Frames(); got != 1 {
		t.Errorf("Expected 1 frame, got %d", got)
	}

	if err := b.MouseButton(ButtonLeft, true); err != nil {
		t.Fatalf("MouseButton failed: %v", err)
	}
	if !b.Pressed(ButtonLeft) {
		t.Error("Expected left button held")
	}
	if err := b.Click(ButtonLeft); err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	if b.Pressed(ButtonLeft) {
		t.Error("Expected left button released after click")
	}

	_ = b.SetCursorPos(100, 100)
	_ = b.MoveRelative(0, 0)
	if x, y := b.Cursor(); x != 100 || y != 100 {
		t.Errorf("Expected cursor at (100,100), got (%d,%d)", x, y)
	}

	w, h, err := b.ScreenSize()
	if err != nil || w != 1280 || h != 720 {
		t.Errorf("Expected 1280x720, got %dx%d (%v)", w, h, err)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("bogus", Options{}, nil); err == nil {
		t.Error("Expected error for unknown backend kind")
	}
	b, err := New(KindLog, Options{}, nil)
	if err != nil {
		t.Fatalf("Expected log backend, got %v", err)
	}
	if w, h, _ := b.ScreenSize(); w != 1920 || h != 1080 {
		t.Errorf("Expected default 1920x1080, got %dx%d", w, h)
	}
}
