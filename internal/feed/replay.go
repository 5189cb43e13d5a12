package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"airtouch/internal/geometry"
	"airtouch/internal/protocol"
)

// DefaultReplayFPS paces recordings when no rate is configured.
const DefaultReplayFPS = 30

// replayRecord is one line of a recording:
//
//	{"ts":1700000000000000000,"w":640,"h":480,"landmarks":[[0.5,0.4],...]}
//	{"ts":1700000000033000000,"hand":false}
type replayRecord struct {
	Timestamp int64        `json:"ts"`
	Width     int          `json:"w"`
	Height    int          `json:"h"`
	Hand      *bool        `json:"hand,omitempty"`
	Landmarks [][2]float64 `json:"landmarks,omitempty"`
}

func (r *replayRecord) sample(seq uint32) (Sample, error) {
	s := Sample{Seq: seq, Timestamp: time.Unix(0, r.Timestamp)}
	if (r.Hand != nil && !*r.Hand) || len(r.Landmarks) == 0 {
		return s, nil
	}
	if len(r.Landmarks) != protocol.NumLandmarks {
		return s, fmt.Errorf("want %d landmarks, got %d", protocol.NumLandmarks, len(r.Landmarks))
	}
	if r.Width <= 0 || r.Height <= 0 {
		return s, fmt.Errorf("invalid frame size %dx%d", r.Width, r.Height)
	}

	var lm protocol.Landmarks
	for i, p := range r.Landmarks {
		lm[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	s.Landmarks = &lm
	s.Width, s.Height = r.Width, r.Height
	return s, nil
}

// ReplaySource plays back a JSON-lines recording at a fixed rate. When the
// recording ends a final no-hand sample is sent so that everything held is
// released.
type ReplaySource struct {
	path string
	fps  int
	log  *zap.Logger

	// open is replaced in tests.
	open func(string) (io.ReadCloser, error)
}

// NewReplaySource returns a source reading path at fps samples per second.
func NewReplaySource(path string, fps int, log *zap.Logger) *ReplaySource {
	if fps <= 0 {
		fps = DefaultReplayFPS
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReplaySource{
		path: path,
		fps:  fps,
		log:  log.Named("replay"),
		open: func(p string) (io.ReadCloser, error) { return os.Open(p) },
	}
}

// Run sends every record in order. It returns nil at the end of the
// recording or when ctx is cancelled.
func (r *ReplaySource) Run(ctx context.Context, out chan<- Sample) error {
	f, err := r.open(r.path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	ticker := time.NewTicker(time.Second / time.Duration(r.fps))
	defer ticker.Stop()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var seq uint32
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec replayRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			r.log.Warn("Skipping unreadable record", zap.Int("line", line), zap.Error(err))
			continue
		}
		seq++
		s, err := rec.sample(seq)
		if err != nil {
			r.log.Warn("Skipping invalid record", zap.Int("line", line), zap.Error(err))
			continue
		}

		if err := send(ctx, ticker.C, out, s); err != nil {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("replay: line %d: %w", line, err)
	}

	r.log.Info("Recording finished", zap.Int("records", int(seq)))
	_ = send(ctx, ticker.C, out, Sample{Seq: seq + 1, Timestamp: time.Now()})
	return nil
}

// send waits for the next tick and then delivers s. Recorded samples are
// never dropped.
func send(ctx context.Context, tick <-chan time.Time, out chan<- Sample, s Sample) error {
	select {
	case <-tick:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
