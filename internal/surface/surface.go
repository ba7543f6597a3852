// Package surface defines the presentation targets a media engine renders
// into. A target is owned by exactly one playback session and destroyed
// only after that session's engine has been released.
package surface

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrDestroyed is returned when a target is destroyed twice.
var ErrDestroyed = errors.New("surface already destroyed")

// Target is an opaque presentation surface an engine instance can bind to.
type Target interface {
	// ID identifies the target in logs and notifications.
	ID() string

	// Handle is the OS-level window identifier (X11 window id, HWND, NSView).
	// Zero means the engine should create and manage its own window.
	Handle() uintptr

	// Geometry is the placement of the target on screen.
	Geometry() Rect

	// Destroy frees the surface. Calling it twice returns ErrDestroyed.
	Destroy() error
}

// Rect is a rectangular region of the screen. Coordinates are
// percentages (0-100) of total screen area.
type Rect struct {
	X      int `json:"x" mapstructure:"x"`
	Y      int `json:"y" mapstructure:"y"`
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// Fullscreen covers the whole screen.
var Fullscreen = Rect{Width: 100, Height: 100}

// Validate checks that the rect has a positive size and fits on screen.
func (r Rect) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid dimensions: %dx%d", r.Width, r.Height)
	}
	if r.X < 0 || r.Y < 0 || r.X+r.Width > 100 || r.Y+r.Height > 100 {
		return fmt.Errorf("rect %+v exceeds screen bounds", r)
	}
	return nil
}

// IsFullscreen reports whether the rect covers the entire screen.
func (r Rect) IsFullscreen() bool {
	return r.X == 0 && r.Y == 0 && r.Width >= 100 && r.Height >= 100
}

// Pixels converts the percent rect to pixel coordinates.
func (r Rect) Pixels(screenW, screenH int) (x, y, w, h int) {
	return r.X * screenW / 100, r.Y * screenH / 100,
		r.Width * screenW / 100, r.Height * screenH / 100
}

// Window is a Target backed by an optional native window handle.
type Window struct {
	id       string
	handle   uintptr
	geometry Rect

	mu        sync.Mutex
	destroyed bool
	onDestroy func()
}

// Option configures a Window.
type Option func(*Window)

// WithID overrides the generated window id.
func WithID(id string) Option {
	return func(w *Window) { w.id = id }
}

// WithHandle binds the window to an existing OS window.
func WithHandle(h uintptr) Option {
	return func(w *Window) { w.handle = h }
}

// WithOnDestroy registers a callback run once when the window is destroyed.
func WithOnDestroy(fn func()) Option {
	return func(w *Window) { w.onDestroy = fn }
}

// NewWindow creates a window target covering geometry.
func NewWindow(geometry Rect, opts ...Option) (*Window, error) {
	if err := geometry.Validate(); err != nil {
		return nil, err
	}

	w := &Window{geometry: geometry}
	for _, opt := range opts {
		opt(w)
	}
	if w.id == "" {
		w.id = "win-" + uuid.NewString()[:8]
	}
	return w, nil
}

func (w *Window) ID() string      { return w.id }
func (w *Window) Handle() uintptr { return w.handle }
func (w *Window) Geometry() Rect  { return w.geometry }

// Destroyed reports whether Destroy has been called.
func (w *Window) Destroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

func (w *Window) Destroy() error {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDestroyed, w.id)
	}
	w.destroyed = true
	fn := w.onDestroy
	w.mu.Unlock()

	if fn != nil {
		fn()
	}
	return nil
}
