// Package feed delivers hand landmark samples to the frame loop, either live
// from the detector over UDP or from a recording.
package feed

import (
	"context"
	"time"

	"airtouch/internal/protocol"
)

// Packet results reported to metrics.
const (
	resultOK        = "ok"
	resultDuplicate = "duplicate"
	resultStale     = "stale"
	resultInvalid   = "invalid"
	resultDropped   = "dropped"
	resultHeartbeat = "heartbeat"
)

// Sample is one detector result. Landmarks is nil when no hand was found.
type Sample struct {
	Seq       uint32
	Timestamp time.Time
	Width     int
	Height    int
	Landmarks *protocol.Landmarks
}

// Source produces samples until ctx is cancelled or the input ends.
type Source interface {
	Run(ctx context.Context, out chan<- Sample) error
}

// offer hands s to the frame loop without blocking. When the channel is full
// the incoming sample is dropped and the queued one is kept; it is at most
// one queue length older.
func offer(out chan<- Sample, s Sample) bool {
	select {
	case out <- s:
		return true
	default:
		return false
	}
}
