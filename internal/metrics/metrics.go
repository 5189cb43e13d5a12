// Package metrics holds the Prometheus collectors for the frame loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "airtouch"

// Metrics groups every collector. All methods are safe on a nil receiver so
// that components can run without instrumentation.
type Metrics struct {
	framesProcessed   prometheus.Counter
	invalidFrames     prometheus.Counter
	trackingLosses    prometheus.Counter
	touchCommits      prometheus.Counter
	injectionFailures prometheus.Counter
	mouseFallbacks    *prometheus.CounterVec
	keyboardToggles   prometheus.Counter
	feedPackets       *prometheus.CounterVec
	mode              prometheus.Gauge
	activeContacts    prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		framesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames handled by the engine.",
		}),
		invalidFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_frames_total",
			Help:      "Frames skipped because the primary point was not valid.",
		}),
		trackingLosses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_losses_total",
			Help:      "Frames reporting no hand after a hand was tracked.",
		}),
		touchCommits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "touch_commits_total",
			Help:      "Touch frames submitted to the OS successfully.",
		}),
		injectionFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "injection_failures_total",
			Help:      "Touch frames rejected by the OS.",
		}),
		mouseFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mouse_fallback_events_total",
			Help:      "Synthetic mouse button events issued by the fallback path.",
		}, []string{"action"}),
		keyboardToggles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keyboard_toggles_total",
			Help:      "Keyboard toggle gestures recognised.",
		}),
		feedPackets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_packets_total",
			Help:      "Landmark packets received, by outcome.",
		}, []string{"result"}),
		mode: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_mode",
			Help:      "Current engine mode (0 idle, 1 single locked, 2 single free, 3 dual).",
		}),
		activeContacts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_contacts",
			Help:      "Touch contacts currently in contact.",
		}),
	}
}

func (m *Metrics) FrameProcessed() {
	if m != nil {
		m.framesProcessed.Inc()
	}
}

func (m *Metrics) InvalidFrame() {
	if m != nil {
		m.invalidFrames.Inc()
	}
}

func (m *Metrics) TrackingLost() {
	if m != nil {
		m.trackingLosses.Inc()
	}
}

func (m *Metrics) TouchCommitted(active int) {
	if m != nil {
		m.touchCommits.Inc()
		m.activeContacts.Set(float64(active))
	}
}

func (m *Metrics) InjectionFailed() {
	if m != nil {
		m.injectionFailures.Inc()
	}
}

// MouseFallback counts a fallback button event; action is "down" or "up".
func (m *Metrics) MouseFallback(action string) {
	if m != nil {
		m.mouseFallbacks.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) KeyboardToggled() {
	if m != nil {
		m.keyboardToggles.Inc()
	}
}

// FeedPacket counts a received packet; result is "ok", "duplicate",
// "stale" or "malformed".
func (m *Metrics) FeedPacket(result string) {
	if m != nil {
		m.feedPackets.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) SetMode(mode int) {
	if m != nil {
		m.mode.Set(float64(mode))
	}
}
