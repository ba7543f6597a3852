//go:build linux && arm64

// Production backend: CGO bindings to libVLC with hardware acceleration.
// One libVLC player per handle, drawn into the target's X11 window.
// This file only compiles on linux/arm64 (the Raspberry Pi 5 target).
package engine

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	libvlc "github.com/adrg/libvlc-go/v3"
	"go.uber.org/zap"

	"player-session/internal/media"
	"player-session/internal/surface"
)

var (
	vlcInitOnce sync.Once
	vlcInitErr  error
)

type libvlcBackend struct {
	logger    *zap.SugaredLogger
	opts      Options
	closeOnce sync.Once
}

func openLibVLC(opts Options, logger *zap.SugaredLogger) (Backend, error) {
	// libVLC is initialized once per process and shared by every handle.
	vlcInitOnce.Do(func() {
		vlcInitErr = libvlc.Init(
			"--no-osd",
			"--no-dbus",
			"--no-video-title-show",
			"--aout=alsa",
			"--file-caching=5000",
			"--network-caching=3000",
			"--clock-jitter=0",
			"--no-drop-late-frames",
			"--no-skip-frames",
			"--avcodec-skiploopfilter=0",
			"--image-duration="+strconv.Itoa(media.DefaultImageDuration),
			"--quiet",
		)
	})
	if vlcInitErr != nil {
		return nil, fmt.Errorf("libvlc init failed: %w", vlcInitErr)
	}

	logger.Infow("Using libVLC backend", "startTimeout", opts.StartTimeout)
	return &libvlcBackend{logger: logger, opts: opts}, nil
}

func (b *libvlcBackend) Name() string { return BackendLibVLC }

func (b *libvlcBackend) Close() error {
	var err error
	b.closeOnce.Do(func() { err = libvlc.Release() })
	return err
}

func (b *libvlcBackend) NewHandle(target surface.Target) (Handle, error) {
	return &libvlcHandle{
		logger:  b.logger.With("target", target.ID()),
		target:  target,
		timeout: b.opts.StartTimeout,
		ended:   make(chan struct{}),
	}, nil
}

var _ Ender = (*libvlcHandle)(nil)

type libvlcHandle struct {
	logger   *zap.SugaredLogger
	target   surface.Target
	timeout  time.Duration
	player   *libvlc.Player
	released bool

	events  *libvlc.EventManager
	endIDs  []libvlc.EventID
	ended   chan struct{}
	endOnce sync.Once
}

func (h *libvlcHandle) Start(locator string) error {
	if h.released {
		return ErrAlreadyReleased
	}

	loc, err := media.ParseLocator(locator)
	if err != nil {
		return err
	}

	player, err := libvlc.NewPlayer()
	if err != nil {
		return fmt.Errorf("player creation failed: %w", err)
	}
	h.player = player

	if handle := h.target.Handle(); handle != 0 {
		if err := player.SetXWindow(uint32(handle)); err != nil {
			return fmt.Errorf("bind to window %d: %w", handle, err)
		}
	} else if err := player.SetFullScreen(h.target.Geometry().IsFullscreen()); err != nil {
		h.logger.Debugw("Could not set fullscreen", "error", err)
	}

	if loc.IsRemote() {
		_, err = player.LoadMediaFromURL(loc.Raw)
	} else {
		_, err = player.LoadMediaFromPath(loc.Path)
	}
	if err != nil {
		return fmt.Errorf("load media %s: %w", loc.Raw, err)
	}

	if err := h.watchEnd(); err != nil {
		return err
	}
	return h.playAndWait()
}

// watchEnd closes ended when libVLC reaches the end of the media or fails
// mid-playback. The callbacks stay attached until Release.
func (h *libvlcHandle) watchEnd() error {
	em, err := h.player.EventManager()
	if err != nil {
		return fmt.Errorf("event manager: %w", err)
	}
	cb := func(libvlc.Event, interface{}) {
		h.endOnce.Do(func() { close(h.ended) })
	}
	for _, event := range []libvlc.Event{libvlc.MediaPlayerEndReached, libvlc.MediaPlayerEncounteredError} {
		id, err := em.Attach(event, cb, nil)
		if err != nil {
			em.Detach(h.endIDs...)
			h.endIDs = nil
			return fmt.Errorf("attach end event: %w", err)
		}
		h.endIDs = append(h.endIDs, id)
	}
	h.events = em
	return nil
}

func (h *libvlcHandle) Ended() <-chan struct{} {
	return h.ended
}

// playAndWait starts playback and blocks until libVLC reports playing or an
// error, bounded by the start timeout.
func (h *libvlcHandle) playAndWait() error {
	em, err := h.player.EventManager()
	if err != nil {
		return fmt.Errorf("event manager: %w", err)
	}

	result := make(chan error, 2)
	cb := func(event libvlc.Event, _ interface{}) {
		var err error
		if event == libvlc.MediaPlayerEncounteredError {
			err = fmt.Errorf("libvlc reported a playback error")
		}
		// libVLC invokes callbacks on its own thread; never block it.
		select {
		case result <- err:
		default:
		}
	}

	playingID, err := em.Attach(libvlc.MediaPlayerPlaying, cb, nil)
	if err != nil {
		return fmt.Errorf("attach playing event: %w", err)
	}
	errorID, err := em.Attach(libvlc.MediaPlayerEncounteredError, cb, nil)
	if err != nil {
		em.Detach(playingID)
		return fmt.Errorf("attach error event: %w", err)
	}
	defer em.Detach(playingID, errorID)

	if err := h.player.Play(); err != nil {
		return fmt.Errorf("play failed: %w", err)
	}

	select {
	case err := <-result:
		return err
	case <-time.After(h.timeout):
		return fmt.Errorf("libvlc did not start playing within %s", h.timeout)
	}
}

func (h *libvlcHandle) RequestStop() error {
	if h.player == nil {
		return ErrNotStarted
	}
	return h.player.Stop()
}

func (h *libvlcHandle) Release() error {
	if h.released {
		return ErrAlreadyReleased
	}
	h.released = true
	if h.player == nil {
		return nil
	}
	if h.events != nil && len(h.endIDs) > 0 {
		h.events.Detach(h.endIDs...)
	}
	err := h.player.Release()
	h.player = nil
	h.logger.Debug("libVLC player released")
	return err
}
