package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"airtouch/internal/geometry"
)

// Landmark packet types
const (
	PacketLandmarks uint8 = 0x01
	PacketNoHand    uint8 = 0x02
	PacketHeartbeat uint8 = 0x11
)

// Header: [type(1)] [seq(4)] [timestamp(8)] = 13 bytes
const HeaderSize = 13

// NumLandmarks is the number of points the hand detector reports.
const NumLandmarks = 21

// Hand landmark indices.
const (
	Wrist     = 0
	ThumbTip  = 4
	IndexMCP  = 5
	IndexTip  = 8
	MiddlePIP = 10
	MiddleTip = 12
	PinkyPIP  = 18
	PinkyTip  = 20
)

// landmarksPayloadSize is width(2) + height(2) + 21 * (x(4) + y(4)).
const landmarksPayloadSize = 4 + NumLandmarks*8

// Landmarks holds one hand in normalised detector coordinates: x and y are
// fractions of the frame width and height.
type Landmarks [NumLandmarks]geometry.Point

// Pixels scales l to a width x height frame, truncating to whole pixels the
// way the detector overlay does.
func (l *Landmarks) Pixels(width, height int) [NumLandmarks]geometry.Point {
	var out [NumLandmarks]geometry.Point
	for i, p := range l {
		out[i] = geometry.Point{
			X: math.Trunc(p.X * float64(width)),
			Y: math.Trunc(p.Y * float64(height)),
		}
	}
	return out
}

var (
	ErrShortPacket = errors.New("protocol: packet too short")
	ErrUnknownType = errors.New("protocol: unknown packet type")
)

// LandmarkPacket is one detector result on the wire.
//
// Wire format per type (big endian):
//
//	Landmarks (0x01): header + width(uint16) + height(uint16) + 21 * (x(float32) + y(float32)) = 185 bytes
//	NoHand    (0x02): header only                                                              = 13 bytes
//	Heartbeat (0x11): header only                                                              = 13 bytes
type LandmarkPacket struct {
	Type      uint8
	Seq       uint32
	Timestamp int64 // unix nanoseconds at capture
	Width     uint16
	Height    uint16
	Landmarks Landmarks
}

// EncodeLandmarkPacket serializes a LandmarkPacket to wire format.
func EncodeLandmarkPacket(pkt *LandmarkPacket) []byte {
	size := HeaderSize
	if pkt.Type == PacketLandmarks {
		size += landmarksPayloadSize
	}

	buf := make([]byte, size)
	buf[0] = pkt.Type
	binary.BigEndian.PutUint32(buf[1:5], pkt.Seq)
	binary.BigEndian.PutUint64(buf[5:13], uint64(pkt.Timestamp))

	if pkt.Type != PacketLandmarks {
		return buf
	}

	payload := buf[HeaderSize:]
	binary.BigEndian.PutUint16(payload[0:2], pkt.Width)
	binary.BigEndian.PutUint16(payload[2:4], pkt.Height)
	off := 4
	for _, p := range pkt.Landmarks {
		binary.BigEndian.PutUint32(payload[off:off+4], math.Float32bits(float32(p.X)))
		binary.BigEndian.PutUint32(payload[off+4:off+8], math.Float32bits(float32(p.Y)))
		off += 8
	}
	return buf
}

// DecodeLandmarkPacket deserializes wire bytes into a LandmarkPacket.
func DecodeLandmarkPacket(data []byte) (*LandmarkPacket, error) {
	if len(data) < HeaderSize {
		return nil, ErrShortPacket
	}

	pkt := &LandmarkPacket{
		Type:      data[0],
		Seq:       binary.BigEndian.Uint32(data[1:5]),
		Timestamp: int64(binary.BigEndian.Uint64(data[5:13])),
	}

	switch pkt.Type {
	case PacketLandmarks:
		payload := data[HeaderSize:]
		if len(payload) < landmarksPayloadSize {
			return nil, fmt.Errorf("%w: landmarks payload is %d bytes", ErrShortPacket, len(payload))
		}
		pkt.Width = binary.BigEndian.Uint16(payload[0:2])
		pkt.Height = binary.BigEndian.Uint16(payload[2:4])
		off := 4
		for i := range pkt.Landmarks {
			x := math.Float32frombits(binary.BigEndian.Uint32(payload[off : off+4]))
			y := math.Float32frombits(binary.BigEndian.Uint32(payload[off+4 : off+8]))
			pkt.Landmarks[i] = geometry.Point{X: float64(x), Y: float64(y)}
			off += 8
		}
	case PacketNoHand, PacketHeartbeat:
		// no payload
	default:
		return nil, fmt.Errorf("%w 0x%02x", ErrUnknownType, pkt.Type)
	}

	return pkt, nil
}
