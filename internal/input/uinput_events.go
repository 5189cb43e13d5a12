package input

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
)

// Ref: input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	synReport = 0

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
	btnTouch  = 0x14a

	relX = 0x00
	relY = 0x01

	absX             = 0x00
	absY             = 0x01
	absMtSlot        = 0x2f
	absMtTouchMajor  = 0x30
	absMtOrientation = 0x34
	absMtPositionX   = 0x35
	absMtPositionY   = 0x36
	absMtTrackingID  = 0x39
	absMtPressure    = 0x3a
	absMax           = 0x3f
	absCnt           = absMax + 1

	inputPropPointer = 0x00
	inputPropDirect  = 0x01

	busVirtual = 0x06
)

// Ref: ioctl.h
const (
	iocNone  = 0x0
	iocWrite = 0x1

	iocNrbits   = 8
	iocTypebits = 8
	iocSizebits = 14

	iocNrshift   = 0
	iocTypeshift = iocNrshift + iocNrbits
	iocSizeshift = iocTypeshift + iocTypebits
	iocDirshift  = iocSizeshift + iocSizebits
)

func ioc(dir, t, nr, size uint) uint {
	return (dir << iocDirshift) | (t << iocTypeshift) | (nr << iocNrshift) | (size << iocSizeshift)
}

func iow(t, nr, size uint) uint { return ioc(iocWrite, t, nr, size) }

// Ref: uinput.h
var (
	uiSetEvBit   = iow('U', 100, 4)
	uiSetKeyBit  = iow('U', 101, 4)
	uiSetRelBit  = iow('U', 102, 4)
	uiSetAbsBit  = iow('U', 103, 4)
	uiSetPropBit = iow('U', 110, 4)
	uiDevCreate  = ioc(iocNone, 'U', 1, 0)
	uiDevDestroy = ioc(iocNone, 'U', 2, 0)
)

const uinputMaxNameSize = 80

type inputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name       [uinputMaxNameSize]byte
	ID         inputID
	EffectsMax uint32
	AbsMax     [absCnt]int32
	AbsMin     [absCnt]int32
	AbsFuzz    [absCnt]int32
	AbsFlat    [absCnt]int32
}

// inputEvent is the 64-bit struct input_event layout.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const inputEventSize = 24

func newUserDev(name string, product uint16) uinputUserDev {
	dev := uinputUserDev{
		ID: inputID{BusType: busVirtual, Vendor: 0x1209, Product: product, Version: 1},
	}
	copy(dev.Name[:uinputMaxNameSize-1], name)
	return dev
}

func packLE(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.PackWithOptions(&buf, v, &struc.Options{Order: binary.LittleEndian}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeEvents(events []inputEvent) ([]byte, error) {
	out := make([]byte, 0, len(events)*inputEventSize)
	for i := range events {
		b, err := packLE(&events[i])
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

func syn() inputEvent { return inputEvent{Type: evSyn, Code: synReport} }

// mtEncoder converts contact records into a type-B multitouch event stream.
// Slots are contact ids; tracking ids increase for every new contact.
type mtEncoder struct {
	slots        []bool
	nextTracking int32
	touching     bool
}

func newMTEncoder(maxContacts int) *mtEncoder {
	return &mtEncoder{slots: make([]bool, maxContacts)}
}

func (m *mtEncoder) frame(records []ContactRecord) []inputEvent {
	events := make([]inputEvent, 0, len(records)*7+2)
	abs := func(code uint16, v int32) {
		events = append(events, inputEvent{Type: evAbs, Code: code, Value: v})
	}

	for _, r := range records {
		slot := int(r.ID)
		if slot < 0 || slot >= len(m.slots) {
			continue
		}
		abs(absMtSlot, int32(slot))

		switch {
		case r.Flags.Has(PointerFlagDown):
			m.slots[slot] = true
			abs(absMtTrackingID, m.nextTracking)
			m.nextTracking = (m.nextTracking + 1) & 0xffff
			abs(absMtPositionX, r.X)
			abs(absMtPositionY, r.Y)
			abs(absMtPressure, int32(r.Pressure))
			abs(absMtTouchMajor, r.Contact.Right-r.Contact.Left)
			abs(absMtOrientation, int32(r.Orientation))
		case r.Flags.Has(PointerFlagUpdate):
			abs(absMtPositionX, r.X)
			abs(absMtPositionY, r.Y)
		case r.Flags.Has(PointerFlagUp):
			m.slots[slot] = false
			abs(absMtTrackingID, -1)
		}
	}

	touching := false
	for _, active := range m.slots {
		touching = touching || active
	}
	if touching != m.touching {
		v := int32(0)
		if touching {
			v = 1
		}
		events = append(events, inputEvent{Type: evKey, Code: btnTouch, Value: v})
		m.touching = touching
	}
	return append(events, syn())
}

func buttonCode(b Button) (uint16, bool) {
	switch b {
	case ButtonLeft:
		return btnLeft, true
	case ButtonRight:
		return btnRight, true
	case ButtonMiddle:
		return btnMiddle, true
	}
	return 0, false
}
