package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"airtouch/internal/metrics"
	"airtouch/internal/protocol"
)

// UDPSource listens for landmark packets from the detector process.
type UDPSource struct {
	addr    string
	log     *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	conn  *net.UDPConn
	ready chan struct{}

	// dedup ring buffer for redundant packets
	dedup     seqDedup
	lastStamp int64
}

// seqDedup tracks recently seen sequence numbers to discard redundant packets.
// Uses a fixed-size ring buffer, no allocation, O(1) lookup.
type seqDedup struct {
	ring [512]uint32
	pos  int
	seen map[uint32]struct{}
}

func newSeqDedup() seqDedup {
	return seqDedup{seen: make(map[uint32]struct{}, 512)}
}

func (d *seqDedup) isDuplicate(seq uint32) bool {
	if _, ok := d.seen[seq]; ok {
		return true
	}
	// Evict oldest entry
	old := d.ring[d.pos]
	if old != 0 {
		delete(d.seen, old)
	}
	d.ring[d.pos] = seq
	d.seen[seq] = struct{}{}
	d.pos = (d.pos + 1) % len(d.ring)
	return false
}

// NewUDPSource returns a source listening on addr, e.g. "127.0.0.1:7340".
func NewUDPSource(addr string, log *zap.Logger, m *metrics.Metrics) *UDPSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &UDPSource{
		addr:    addr,
		log:     log.Named("feed"),
		metrics: m,
		ready:   make(chan struct{}),
		dedup:   newSeqDedup(),
	}
}

// Addr blocks until the socket is bound and returns its address.
func (s *UDPSource) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, errors.New("feed: listener closed")
	}
	return s.conn.LocalAddr(), nil
}

// Run binds the socket and forwards decoded samples until ctx is done.
func (s *UDPSource) Run(ctx context.Context, out chan<- Sample) error {
	laddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		close(s.ready)
		return fmt.Errorf("feed: resolve %q: %w", s.addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		close(s.ready)
		return fmt.Errorf("feed: listen %q: %w", s.addr, err)
	}
	// Large read buffer for burst receives
	_ = conn.SetReadBuffer(1 << 20)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.ready)

	s.log.Info("Landmark feed listening", zap.Stringer("addr", conn.LocalAddr()))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 512)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.log.Debug("Feed read failed", zap.Error(err))
			continue
		}
		s.handle(buf[:n], out)
	}
}

func (s *UDPSource) handle(data []byte, out chan<- Sample) {
	pkt, err := protocol.DecodeLandmarkPacket(data)
	if err != nil {
		s.metrics.FeedPacket(resultInvalid)
		s.log.Debug("Dropping malformed packet", zap.Int("bytes", len(data)), zap.Error(err))
		return
	}

	if pkt.Type == protocol.PacketHeartbeat {
		s.metrics.FeedPacket(resultHeartbeat)
		return
	}

	// Deduplicate redundant packets (same seq number)
	if s.dedup.isDuplicate(pkt.Seq) {
		s.metrics.FeedPacket(resultDuplicate)
		return
	}
	// Out of order: a newer frame has already been forwarded.
	if pkt.Timestamp < s.lastStamp {
		s.metrics.FeedPacket(resultStale)
		return
	}
	s.lastStamp = pkt.Timestamp

	sample := Sample{
		Seq:       pkt.Seq,
		Timestamp: time.Unix(0, pkt.Timestamp),
	}
	if pkt.Type == protocol.PacketLandmarks {
		lm := pkt.Landmarks
		sample.Landmarks = &lm
		sample.Width = int(pkt.Width)
		sample.Height = int(pkt.Height)
	}

	if !offer(out, sample) {
		s.metrics.FeedPacket(resultDropped)
		return
	}
	s.metrics.FeedPacket(resultOK)
}
