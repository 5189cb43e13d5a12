package main

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"airtouch/internal/api"
	"airtouch/internal/config"
	"airtouch/internal/engine"
	"airtouch/internal/feed"
	"airtouch/internal/gesture"
	"airtouch/internal/logger"
)

// service owns the frame loop. The engine and classifier are only touched
// from Run; everything else talks to it through channels.
type service struct {
	eng   *engine.Orchestrator
	cls   *gesture.Classifier
	level zap.AtomicLevel
	log   *zap.Logger

	samples chan feed.Sample
	reloads chan *config.Config
	pauses  chan bool

	paused  atomic.Bool
	toggles atomic.Uint64

	screenW, screenH int
}

func newService(eng *engine.Orchestrator, cls *gesture.Classifier, level zap.AtomicLevel, log *zap.Logger) *service {
	return &service{
		eng:     eng,
		cls:     cls,
		level:   level,
		log:     log.Named("loop"),
		samples: make(chan feed.Sample, 1),
		reloads: make(chan *config.Config, 1),
		pauses:  make(chan bool, 4),
		screenW: 1920,
		screenH: 1080,
	}
}

// onStatus registers a status observer. Observers run on the frame loop.
func (s *service) onStatus(fn func(engine.Status)) {
	s.eng.OnStatus(fn)
}

// ConfigChanged queues a reloaded configuration. Only the newest pending
// one is kept.
func (s *service) ConfigChanged(cfg *config.Config) {
	for {
		select {
		case s.reloads <- cfg:
			return
		default:
		}
		select {
		case <-s.reloads:
		default:
		}
	}
}

// RequestPause queues a pause change.
func (s *service) RequestPause(paused bool) {
	select {
	case s.pauses <- paused:
	default:
		s.log.Warn("Dropping pause request, loop busy", zap.Bool("paused", paused))
	}
}

// Paused reports the pause state last applied by the loop.
func (s *service) Paused() bool { return s.paused.Load() }

// Run processes samples until ctx is done, then releases all input.
func (s *service) Run(ctx context.Context) error {
	s.log.Info("Frame loop started")
	defer func() {
		if err := s.eng.Shutdown(); err != nil {
			s.log.Warn("Release on shutdown failed", zap.Error(err))
		}
		s.log.Info("Frame loop stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case sample := <-s.samples:
			s.eng.Process(s.cls.Classify(sample.Landmarks, sample.Width, sample.Height))
			s.cls.SetDualActive(s.eng.State().Mode == engine.ModeDual)

		case cfg := <-s.reloads:
			s.apply(cfg)

		case p := <-s.pauses:
			s.eng.SetPaused(p)
			s.paused.Store(p)
		}
	}
}

// apply hot-reloads the settings that do not need a restart. The backend,
// feed address, API and contact count keep their startup values.
func (s *service) apply(cfg *config.Config) {
	if lvl, err := logger.ParseLevel(cfg.Logging.Level); err == nil {
		s.level.SetLevel(lvl)
	}
	s.eng.Reconfigure(cfg.EngineConfig())
	s.cls.Reconfigure(cfg.GestureConfig(s.screenW, s.screenH))
	s.log.Info("Applied configuration",
		zap.Int("sensitivity", cfg.Tracking.Sensitivity),
		zap.Float64("smoothing", cfg.Tracking.Smoothing),
		zap.Float64("click_distance", cfg.Tracking.ClickDistance))
}

// toggler returns the keyboard toggle hook. The keyboard panel itself is an
// external program listening on the websocket.
func (s *service) toggler(srv *api.Server) engine.TogglerFunc {
	return func() error {
		n := s.toggles.Add(1)
		session := s.eng.Status().Session
		s.log.Info("Keyboard toggle", zap.Uint64("count", n), zap.String("session", session))
		if srv != nil {
			srv.BroadcastKeyboardToggle(session, n)
		}
		return nil
	}
}
