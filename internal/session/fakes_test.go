package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"player-session/internal/engine"
	"player-session/internal/surface"
)

var errBadLocator = errors.New("cannot open locator")

// recorder is an ordered, goroutine-safe log of lifecycle facts.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) index(line string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.lines {
		if l == line {
			return i
		}
	}
	return -1
}

func (r *recorder) has(line string) bool {
	return r.index(line) >= 0
}

func (r *recorder) withPrefix(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.lines {
		if strings.HasPrefix(l, prefix) {
			out = append(out, strings.TrimPrefix(l, prefix))
		}
	}
	return out
}

// fakeEngine hands out handles whose Start and Release can be held open.
type fakeEngine struct {
	t   *testing.T
	rec *recorder

	mu           sync.Mutex
	startGates   map[string]chan struct{}
	releaseGates map[string]chan struct{}
}

func newFakeEngine(t *testing.T, rec *recorder) *fakeEngine {
	return &fakeEngine{
		t:            t,
		rec:          rec,
		startGates:   make(map[string]chan struct{}),
		releaseGates: make(map[string]chan struct{}),
	}
}

// holdStart makes Start on target block until the returned func is called.
func (f *fakeEngine) holdStart(target string) func() {
	return f.hold(f.startGates, target)
}

// holdRelease makes Release on target block until the returned func is called.
func (f *fakeEngine) holdRelease(target string) func() {
	return f.hold(f.releaseGates, target)
}

func (f *fakeEngine) hold(gates map[string]chan struct{}, target string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	gates[target] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeEngine) gate(gates map[string]chan struct{}, target string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return gates[target]
}

func (f *fakeEngine) NewHandle(target surface.Target) (engine.Handle, error) {
	f.rec.add("engine-created:%s", target.ID())
	return &fakeHandle{engine: f, target: target.ID(), ended: make(chan struct{})}, nil
}

type fakeHandle struct {
	engine   *fakeEngine
	target   string
	busy     atomic.Bool
	released atomic.Bool
	ended    chan struct{}
}

func (h *fakeHandle) Ended() <-chan struct{} {
	return h.ended
}

// enter flags any overlapping call on the same handle.
func (h *fakeHandle) enter(op string) func() {
	if !h.busy.CompareAndSwap(false, true) {
		h.engine.t.Errorf("concurrent engine call %s on %s", op, h.target)
	}
	if h.released.Load() {
		h.engine.t.Errorf("engine call %s on released handle %s", op, h.target)
	}
	return func() { h.busy.Store(false) }
}

func (h *fakeHandle) Start(locator string) error {
	defer h.enter("start")()
	if gate := h.engine.gate(h.engine.startGates, h.target); gate != nil {
		<-gate
	}
	switch {
	case strings.HasPrefix(locator, "bad"):
		return errBadLocator
	case strings.HasPrefix(locator, "panic"):
		panic("decoder exploded")
	}
	h.engine.rec.add("engine-started:%s", h.target)
	// Locators prefixed "short" run out as soon as they start.
	if strings.HasPrefix(locator, "short") {
		close(h.ended)
	}
	return nil
}

func (h *fakeHandle) RequestStop() error {
	defer h.enter("stop")()
	h.engine.rec.add("engine-stopped:%s", h.target)
	return nil
}

func (h *fakeHandle) Release() error {
	exit := h.enter("release")
	if gate := h.engine.gate(h.engine.releaseGates, h.target); gate != nil {
		<-gate
	}
	h.engine.rec.add("engine-released:%s", h.target)
	exit()
	h.released.Store(true)
	return nil
}

// harness wires a coordinator to a fake engine and records transitions.
type harness struct {
	t      *testing.T
	rec    *recorder
	engine *fakeEngine
	c      *Coordinator

	mu       sync.Mutex
	states   map[ID]State
	maxLive  int
	targets  map[ID]string
	notified []Notification
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	return newLoggedHarness(t, zap.NewNop().Sugar(), opts...)
}

// newObservedHarness is newHarness with the coordinator's logs captured.
func newObservedHarness(t *testing.T, opts ...Option) (*harness, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return newLoggedHarness(t, zap.New(core).Sugar(), opts...), logs
}

func newLoggedHarness(t *testing.T, logger *zap.SugaredLogger, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		rec:     &recorder{},
		states:  make(map[ID]State),
		targets: make(map[ID]string),
	}
	h.engine = newFakeEngine(t, h.rec)

	hook := WithTransitionHook(func(tr Transition) {
		h.rec.add("state:%s:%s", tr.Session, tr.To)
		h.mu.Lock()
		defer h.mu.Unlock()
		h.states[tr.Session] = tr.To
		live := 0
		for _, s := range h.states {
			if s.Live() {
				live++
			}
		}
		if live > h.maxLive {
			h.maxLive = live
		}
	})
	opts = append([]Option{WithTeardownGrace(0), WithShutdownGrace(5 * time.Second), hook}, opts...)
	h.c = New(h.engine, logger, opts...)
	return h
}

func (h *harness) window(id string) *surface.Window {
	h.t.Helper()
	w, err := surface.NewWindow(surface.Fullscreen, surface.WithID(id),
		surface.WithOnDestroy(func() { h.rec.add("destroy:%s", id) }))
	if err != nil {
		h.t.Fatal(err)
	}
	return w
}

func (h *harness) switchTo(locator, target string) ID {
	h.t.Helper()
	id, err := h.c.SwitchTo(locator, h.window(target))
	if err != nil {
		h.t.Fatalf("SwitchTo(%s): %v", locator, err)
	}
	h.mu.Lock()
	h.targets[id] = target
	h.mu.Unlock()
	return id
}

// waitFor returns the first matching notification, consuming more as needed.
func (h *harness) waitFor(id ID, event Event) Notification {
	h.t.Helper()
	for _, n := range h.notified {
		if n.Session == id && n.Event == event {
			return n
		}
	}
	timeout := time.After(3 * time.Second)
	for {
		select {
		case n, ok := <-h.c.Events():
			if !ok {
				h.t.Fatalf("events closed while waiting for %s %s", id, event)
			}
			h.notified = append(h.notified, n)
			if n.Session == id && n.Event == event {
				return n
			}
		case <-timeout:
			h.t.Fatalf("timed out waiting for %s %s (seen %v)", id, event, h.notified)
		}
	}
}

// drain shuts the coordinator down and returns every notification.
func (h *harness) drain() []Notification {
	h.t.Helper()
	done := make(chan error, 1)
	go func() { done <- h.c.Shutdown(context.Background()) }()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case n, ok := <-h.c.Events():
			if !ok {
				if err := <-done; err != nil {
					h.t.Fatalf("shutdown: %v", err)
				}
				return h.notified
			}
			h.notified = append(h.notified, n)
		case <-timeout:
			h.t.Fatal("timed out draining events")
		}
	}
}

func (h *harness) state(id ID) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.states[id]
}

func (h *harness) eventually(cond func() bool, what string) {
	h.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
