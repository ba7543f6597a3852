package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"player-session/internal/config"
	"player-session/internal/engine"
	"player-session/internal/logging"
	"player-session/internal/notify"
	"player-session/internal/session"
	"player-session/internal/surface"
	"player-session/internal/telemetry"
)

// app is the collaborator that issues switch requests and consumes the
// coordinator's notifications.
type app struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	notifier notify.Notifier
	backend  engine.Backend
	coord    *session.Coordinator

	stopTracing func(context.Context) error

	// failed and finished carry session ids to the run loop.
	failed     chan session.ID
	finished   chan session.ID
	eventsDone chan struct{}
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	logger, err := logging.NewLogger(buildType)
	if err != nil {
		return nil, err
	}
	logger.Infow("Starting player", "version", version, "built", buildTime)

	cfg, err := config.Load(configPath, logger)
	if err != nil {
		return nil, err
	}

	stopTracing, err := telemetry.Setup(ctx, "player", version)
	if err != nil {
		logger.Warnw("Tracing disabled", "error", err)
	}

	backend, err := engine.Open(cfg.Backend, engine.Options{
		VLCPath:      cfg.VLCPath,
		ScreenWidth:  cfg.ScreenWidth,
		ScreenHeight: cfg.ScreenHeight,
		StartTimeout: cfg.StartTimeout,
	}, logger)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("engine init: %w", err), stopTracing(ctx))
	}
	logger.Infow("Engine backend ready", "backend", backend.Name())

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify {
		notifier = notify.NewDesktop(logger, "")
	}

	a := &app{
		cfg:         cfg,
		logger:      logger.Named("app"),
		notifier:    notifier,
		backend:     backend,
		stopTracing: stopTracing,
		failed:      make(chan session.ID, 16),
		finished:    make(chan session.ID, 16),
		eventsDone:  make(chan struct{}),
	}
	a.coord = session.New(backend, logger,
		session.WithTeardownGrace(cfg.TeardownGrace),
		session.WithShutdownGrace(cfg.ShutdownGrace),
		session.WithRetiringWarn(cfg.RetiringWarn),
		session.WithEventBuffer(cfg.EventBuffer),
	)

	go a.consume()
	return a, nil
}

// play switches to locator on a fresh fullscreen window.
func (a *app) play(locator string) (session.ID, error) {
	win, err := surface.NewWindow(surface.Fullscreen)
	if err != nil {
		return 0, err
	}
	id, err := a.coord.SwitchTo(locator, win)
	if err != nil {
		win.Destroy()
		return 0, err
	}
	a.logger.Infow("Switched playback", "session", id, "locator", locator, "target", win.ID())
	return id, nil
}

// consume drains notifications until the coordinator closes the stream.
func (a *app) consume() {
	defer close(a.eventsDone)

	for n := range a.coord.Events() {
		switch n.Event {
		case session.Started:
			a.logger.Infow("Playback started", "session", n.Session, "locator", n.Locator)
		case session.Stopped:
			a.logger.Debugw("Playback stopped", "session", n.Session, "locator", n.Locator, "error", n.Err)
		case session.StartFailed:
			a.logger.Warnw("Playback failed to start", "session", n.Session, "locator", n.Locator, "error", n.Err)
			a.notifier.Notify("Playback failed", fmt.Sprintf("%s: %v", n.Locator, n.Err))
			forward(a.failed, n.Session)
		case session.Finished:
			a.logger.Infow("Playback finished", "session", n.Session, "locator", n.Locator)
			forward(a.finished, n.Session)
		case session.TeardownTimedOut:
			a.logger.Errorw("Teardown is stuck, surface kept alive", "session", n.Session, "target", n.Target)
			a.notifier.Notify("Player teardown stuck", fmt.Sprintf("%s did not release in time", n.Locator))
		}
	}
}

// forward hands id to the run loop without ever stalling the event stream.
func forward(ch chan<- session.ID, id session.ID) {
	select {
	case ch <- id:
	default:
	}
}

// close shuts the coordinator down, waits for the notification stream to
// drain, then releases the backend and flushes traces.
func (a *app) close() error {
	a.logger.Info("Shutting down")

	err := a.coord.Shutdown(context.Background())
	if err != nil {
		a.logger.Errorw("Shutdown abandoned sessions", "error", err)
	}
	<-a.eventsDone

	// Abandoned handles may still be inside a native call.
	if errors.Is(err, session.ErrTeardownTimeout) {
		a.logger.Warnw("Leaving engine backend open", "backend", a.backend.Name())
	} else {
		err = multierr.Append(err, a.backend.Close())
	}
	err = multierr.Append(err, a.stopTracing(context.Background()))

	a.logger.Info("Shutdown complete")
	a.logger.Sync()
	return err
}
