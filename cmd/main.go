// airtouch - hand tracking to touch and mouse input
// Turns detector landmarks into OS touch contacts with a mouse fallback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"airtouch/internal/api"
	"airtouch/internal/autostart"
	"airtouch/internal/config"
	"airtouch/internal/engine"
	"airtouch/internal/feed"
	"airtouch/internal/gesture"
	"airtouch/internal/hotkey"
	"airtouch/internal/input"
	"airtouch/internal/logger"
	"airtouch/internal/metrics"
	"airtouch/internal/osutils"
	"airtouch/internal/touch"
	"airtouch/internal/tray"
)

var (
	version    = "0.1.0"
	showVer    = flag.Bool("version", false, "Show version")
	configPath = flag.String("config", "", "Path to the configuration file")
	replayPath = flag.String("replay", "", "Play back a landmark recording instead of listening")
	dryRun     = flag.Bool("dry-run", false, "Log input instead of injecting it")
	noTray     = flag.Bool("no-tray", false, "Run without the tray icon")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn or error")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("airtouch version %s\n", version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "airtouch: %v\n", err)
		os.Exit(1)
	}
}

// overrides maps the command-line flags onto configuration keys.
func overrides() map[string]string {
	o := map[string]string{}
	if *logLevel != "" {
		o["logging.level"] = *logLevel
	}
	if *replayPath != "" {
		o["feed.replay"] = *replayPath
	}
	if *dryRun {
		o["backend"] = input.KindLog
	}
	return o
}

func run() error {
	cfgMgr, err := config.NewManager(*configPath, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	cfgMgr.SetOverrides(overrides())
	if err := cfgMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := cfgMgr.Get()

	log, level, err := logger.New(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer logger.Sync(log)
	cfgMgr.SetLogger(log)

	log.Info("Starting airtouch",
		zap.String("version", version),
		zap.String("config", cfgMgr.Path()),
		zap.String("backend", cfg.Backend))

	if cfg.Backend != input.KindLog {
		if hint := osutils.PrivilegeHint(); hint != "" {
			log.Warn("Input injection limited", zap.String("reason", hint))
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	backend, err := input.New(cfg.Backend, input.Options{
		ScreenWidth:  cfg.Screen.Width,
		ScreenHeight: cfg.Screen.Height,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create input backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("Failed to close input backend", zap.Error(err))
		}
	}()

	screenW, screenH, err := backend.ScreenSize()
	if err != nil || screenW <= 0 || screenH <= 0 {
		log.Warn("Could not query screen size, using configuration", zap.Error(err))
		screenW, screenH = 1920, 1080
	}
	log.Info("Screen", zap.Int("width", screenW), zap.Int("height", screenH))

	ch := touch.NewChannel(backend, backend, cfg.TouchOptions(), log, m)
	if !ch.Available() {
		log.Warn("Touch injection unavailable, falling back to mouse only")
	}
	eng := engine.New(engine.NewState(cfg.Thresholds()), ch, backend, cfg.EngineConfig(), log, m)
	cls := gesture.New(cfg.GestureConfig(screenW, screenH), log)

	svc := newService(eng, cls, level, log)
	svc.screenW, svc.screenH = screenW, screenH
	cfgMgr.RegisterChangeCallback(svc.ConfigChanged)

	var apiSrv *api.Server
	if cfg.API.Enabled {
		apiSrv = api.NewServer(cfg.API.Addr, cfg.API.Token, eng, svc.RequestPause, reg, log)
		svc.onStatus(apiSrv.BroadcastStatus)
	}
	eng.SetToggler(svc.toggler(apiSrv))

	var src feed.Source
	if cfg.Feed.Replay != "" {
		src = feed.NewReplaySource(cfg.Feed.Replay, cfg.Feed.ReplayFPS, log)
	} else {
		src = feed.NewUDPSource(cfg.Feed.Listen, log, m)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var t *tray.Tray
	if !*noTray {
		t = newTray(svc, stop, log)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The process ends with its input: a finished recording or a dead
		// socket.
		defer stop()
		return src.Run(gctx, svc.samples)
	})
	g.Go(func() error {
		return svc.Run(gctx)
	})
	g.Go(func() error {
		if err := cfgMgr.Watch(gctx); err != nil {
			log.Warn("Configuration hot reload disabled", zap.Error(err))
		}
		return nil
	})
	if apiSrv != nil {
		g.Go(func() error {
			return apiSrv.Run(gctx)
		})
	}
	startHotkeys(gctx, cfg.Hotkeys, svc, log)

	if t != nil {
		go func() {
			<-gctx.Done()
			t.Stop()
		}()
		// systray needs the main thread.
		t.Run()
		stop()
	}

	err = g.Wait()
	log.Info("airtouch stopped")
	return err
}

func newTray(svc *service, quit func(), log *zap.Logger) *tray.Tray {
	t := tray.New("airtouch", "airtouch: starting", func() {
		log.Debug("Tray exited")
	})
	pauseID := t.AddMenuItem("Pause tracking", func() {
		svc.RequestPause(!svc.Paused())
	})
	var loginID int
	loginID = t.AddMenuItem("Start at login", func() {
		enabled, err := toggleAutostart()
		if err != nil {
			log.Warn("Failed to change start at login", zap.Error(err))
			return
		}
		t.SetItemChecked(loginID, enabled)
	})
	t.SetItemChecked(loginID, autostart.IsEnabled())
	t.AddSeparator()
	t.AddMenuItem("Quit", quit)

	svc.onStatus(func(st engine.Status) {
		t.SetTooltip(tray.StatusTooltip(st))
		t.SetItemChecked(pauseID, st.Paused)
	})
	return t
}

// startHotkeys installs the global pause hotkey. Changes to the binding take
// effect on restart.
func startHotkeys(ctx context.Context, cfg config.HotkeyConfig, svc *service, log *zap.Logger) {
	if cfg.Pause == "" {
		return
	}
	hk := hotkey.NewManager(log)
	if err := hk.Register(cfg.Pause, func() { svc.RequestPause(!svc.Paused()) }); err != nil {
		log.Warn("Invalid pause hotkey", zap.Error(err))
		return
	}
	err := hk.Start(ctx)
	switch {
	case errors.Is(err, hotkey.ErrUnsupported):
		log.Info("Global hotkeys not supported on this platform")
	case err != nil:
		log.Warn("Failed to start hotkeys", zap.Error(err))
	default:
		log.Info("Pause hotkey registered", zap.String("hotkey", cfg.Pause))
	}
}

// toggleAutostart flips the login entry and reports the new state. The
// entry keeps the flags that select configuration and backend.
func toggleAutostart() (bool, error) {
	if autostart.IsEnabled() {
		return false, autostart.Disable()
	}
	var args []string
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	if *dryRun {
		args = append(args, "-dry-run")
	}
	e, err := autostart.Current(args...)
	if err != nil {
		return false, err
	}
	return true, autostart.Enable(e)
}
