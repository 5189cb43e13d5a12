package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			}
		}
		return sum
	}
	t.Fatalf("Metric %s not registered", name)
	return 0
}

func TestCountersRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FrameProcessed()
	m.FrameProcessed()
	m.InjectionFailed()
	m.MouseFallback("down")
	m.MouseFallback("up")
	m.TouchCommitted(2)
	m.SetMode(3)

	tests := []struct {
		name string
		want float64
	}{
		{"airtouch_frames_processed_total", 2},
		{"airtouch_injection_failures_total", 1},
		{"airtouch_mouse_fallback_events_total", 2},
		{"airtouch_touch_commits_total", 1},
		{"airtouch_active_contacts", 2},
		{"airtouch_engine_mode", 3},
	}
	for _, tt := range tests {
		if got := gathered(t, reg, tt.name); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.FrameProcessed()
	m.TouchCommitted(2)
	m.FeedPacket("ok")
	m.SetMode(1)
}
