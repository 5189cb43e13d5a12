package main

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"airtouch/internal/config"
	"airtouch/internal/engine"
	"airtouch/internal/feed"
	"airtouch/internal/gesture"
	"airtouch/internal/input"
	"airtouch/internal/touch"
)

func newTestService(t *testing.T) (*service, *engine.Orchestrator) {
	t.Helper()
	log := zaptest.NewLogger(t)
	be := input.NewLogBackend(1920, 1080, log)
	cfg := config.DefaultConfig()

	ch := touch.NewChannel(be, be, cfg.TouchOptions(), log, nil)
	eng := engine.New(engine.NewState(cfg.Thresholds()), ch, be, cfg.EngineConfig(), log, nil)
	cls := gesture.New(cfg.GestureConfig(1920, 1080), log)
	return newService(eng, cls, zap.NewAtomicLevelAt(zapcore.InfoLevel), log), eng
}

func startService(t *testing.T, svc *service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not stop after cancel")
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServiceProcessesSamples(t *testing.T) {
	svc, eng := newTestService(t)
	startService(t, svc)

	for i := 0; i < 3; i++ {
		svc.samples <- feed.Sample{Seq: uint32(i + 1)}
	}
	waitFor(t, "three frames", func() bool { return eng.Status().Frames == 3 })

	if st := eng.Status(); st.Mode != "idle" || len(st.Contacts) != 0 {
		t.Errorf("Expected idle with no contacts after no-hand frames, got %+v", st)
	}
}

func TestServicePause(t *testing.T) {
	svc, eng := newTestService(t)
	startService(t, svc)

	svc.RequestPause(true)
	waitFor(t, "pause", svc.Paused)
	if !eng.Status().Paused {
		t.Error("Expected engine status to report paused")
	}

	svc.RequestPause(false)
	waitFor(t, "resume", func() bool { return !svc.Paused() })
}

func TestServiceReload(t *testing.T) {
	svc, _ := newTestService(t)

	first := config.DefaultConfig()
	first.Logging.Level = "warn"
	latest := config.DefaultConfig()
	latest.Logging.Level = "debug"

	// Both arrive before the loop runs; only the newest is applied.
	svc.ConfigChanged(first)
	svc.ConfigChanged(latest)
	if n := len(svc.reloads); n != 1 {
		t.Fatalf("Expected one pending reload, got %d", n)
	}

	startService(t, svc)
	waitFor(t, "debug level", func() bool { return svc.level.Level() == zapcore.DebugLevel })
}

func TestToggler(t *testing.T) {
	svc, _ := newTestService(t)
	toggle := svc.toggler(nil)

	for i := 0; i < 2; i++ {
		if err := toggle.Toggle(); err != nil {
			t.Fatalf("Toggle failed: %v", err)
		}
	}
	if n := svc.toggles.Load(); n != 2 {
		t.Errorf("Expected 2 toggles counted, got %d", n)
	}
}

func TestOverrides(t *testing.T) {
	oldLevel, oldReplay, oldDry := *logLevel, *replayPath, *dryRun
	t.Cleanup(func() { *logLevel, *replayPath, *dryRun = oldLevel, oldReplay, oldDry })

	if o := overrides(); len(o) != 0 {
		t.Errorf("Expected no overrides by default, got %v", o)
	}

	*logLevel, *replayPath, *dryRun = "debug", "session.jsonl", true
	o := overrides()
	want := map[string]string{
		"logging.level": "debug",
		"feed.replay":   "session.jsonl",
		"backend":       input.KindLog,
	}
	for k, v := range want {
		if o[k] != v {
			t.Errorf("Expected %s=%q, got %q", k, v, o[k])
		}
	}
}
