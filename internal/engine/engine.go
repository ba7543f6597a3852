// Package engine wraps native media engines behind a small handle contract.
// A Handle is bound to exactly one render target and is NOT safe for
// concurrent use: callers must issue every call from one goroutine.
//
// Two backends exist: "vlc" drives a VLC subprocess and works anywhere VLC is
// installed; "libvlc" uses CGO bindings and is only compiled on linux/arm64.
package engine

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"player-session/internal/surface"
)

const (
	BackendVLC    = "vlc"
	BackendLibVLC = "libvlc"
)

var (
	ErrUnknownBackend     = errors.New("unknown engine backend")
	ErrBackendUnavailable = errors.New("engine backend not available on this platform")
	ErrAlreadyReleased    = errors.New("engine handle already released")
	ErrNotStarted         = errors.New("engine handle not started")
)

// Handle is one native engine instance bound to one render target.
//
// IMPORTANT: latencies are unbounded. Start, RequestStop and Release may each
// block for as long as the underlying codec/hardware teardown takes.
type Handle interface {
	Start(locator string) error
	RequestStop() error
	Release() error
}

// Ender is implemented by handles whose playback can finish without a stop
// request, such as a clip reaching its last frame. Ended is read only after
// a successful Start; the channel is closed when playback ends.
type Ender interface {
	Ended() <-chan struct{}
}

// Factory creates handles bound to a render target.
type Factory interface {
	NewHandle(target surface.Target) (Handle, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(target surface.Target) (Handle, error)

func (f FactoryFunc) NewHandle(target surface.Target) (Handle, error) {
	return f(target)
}

// Backend is a Factory that owns process-wide engine state.
type Backend interface {
	Factory
	Name() string
	Close() error
}

// Options tune backend behaviour.
type Options struct {
	VLCPath      string
	ScreenWidth  int
	ScreenHeight int
	StartTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ScreenWidth <= 0 {
		o.ScreenWidth = 1920
	}
	if o.ScreenHeight <= 0 {
		o.ScreenHeight = 1080
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 15 * time.Second
	}
	return o
}

// Open returns the named backend.
func Open(name string, opts Options, logger *zap.SugaredLogger) (Backend, error) {
	logger = logger.Named("engine")
	opts = opts.withDefaults()

	switch name {
	case BackendVLC, "":
		return openVLC(opts, logger)
	case BackendLibVLC:
		return openLibVLC(opts, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}
