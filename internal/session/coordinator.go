package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"player-session/internal/engine"
	"player-session/internal/surface"
)

const tracerName = "player-session/internal/session"

// Defaults for Options.
const (
	DefaultTeardownGrace = 5 * time.Second
	DefaultShutdownGrace = 10 * time.Second
	DefaultRetiringWarn  = 8
	DefaultEventBuffer   = 64
)

// Options configure a Coordinator.
type Options struct {
	// TeardownGrace bounds Stop+Release per session before it is detached.
	// Zero disables the bound.
	TeardownGrace time.Duration
	// ShutdownGrace bounds how long Shutdown waits for the retiring set.
	ShutdownGrace time.Duration
	// RetiringWarn is the retiring set size above which a warning is logged.
	RetiringWarn int
	// EventBuffer is the capacity of the Events channel.
	EventBuffer int
	// Tracer records one span per session.
	Tracer trace.Tracer
	// OnTransition is called on the control goroutine for every state change.
	OnTransition func(Transition)
}

// Option mutates Options.
type Option func(*Options)

func WithTeardownGrace(d time.Duration) Option { return func(o *Options) { o.TeardownGrace = d } }
func WithShutdownGrace(d time.Duration) Option { return func(o *Options) { o.ShutdownGrace = d } }
func WithRetiringWarn(n int) Option            { return func(o *Options) { o.RetiringWarn = n } }
func WithEventBuffer(n int) Option             { return func(o *Options) { o.EventBuffer = n } }
func WithTracer(t trace.Tracer) Option         { return func(o *Options) { o.Tracer = t } }

// WithTransitionHook registers fn to observe every state change.
// fn runs on the control goroutine and must not call back into the Coordinator.
func WithTransitionHook(fn func(Transition)) Option {
	return func(o *Options) { o.OnTransition = fn }
}

// Coordinator owns the single presentation slot. Every public method hands a
// closure to the control goroutine, which is the only goroutine that reads or
// writes active, retiring and detached.
type Coordinator struct {
	logger  *zap.SugaredLogger
	factory engine.Factory
	opts    Options

	requests chan func()
	reports  chan report
	events   chan Notification
	loopDone chan struct{}

	// Owned by the control goroutine.
	nextID        ID
	active        *Session
	retiring      map[ID]*Session
	detached      map[ID]*Session
	pending       []Notification
	closing       bool
	finished      bool
	waiters       []chan error
	shutdownTimer *time.Timer
}

// New creates a coordinator and starts its control goroutine.
func New(factory engine.Factory, logger *zap.SugaredLogger, opts ...Option) *Coordinator {
	o := Options{
		TeardownGrace: DefaultTeardownGrace,
		ShutdownGrace: DefaultShutdownGrace,
		RetiringWarn:  DefaultRetiringWarn,
		EventBuffer:   DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(tracerName)
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = DefaultShutdownGrace
	}
	if o.EventBuffer < 0 {
		o.EventBuffer = 0
	}

	c := &Coordinator{
		logger:   logger.Named("coordinator"),
		factory:  factory,
		opts:     o,
		requests: make(chan func()),
		reports:  make(chan report),
		events:   make(chan Notification, o.EventBuffer),
		loopDone: make(chan struct{}),
		retiring: make(map[ID]*Session),
		detached: make(map[ID]*Session),
	}

	go c.run()
	c.logger.Debugw("Created coordinator", "teardownGrace", o.TeardownGrace, "shutdownGrace", o.ShutdownGrace)
	return c
}

// SwitchTo begins playback of locator on target and retires whatever was
// active. It returns as soon as the new session exists; start failures are
// reported later as StartFailed notifications. target must not belong to a
// session that is still active, retiring or detached (ErrTargetInUse).
func (c *Coordinator) SwitchTo(locator string, target surface.Target) (ID, error) {
	if target == nil {
		return 0, ErrNilTarget
	}

	var (
		id  ID
		err error
	)
	if e := c.exec(func() { id, err = c.switchTo(locator, target) }); e != nil {
		return 0, e
	}
	return id, err
}

// StopActive retires the active session without starting a new one.
func (c *Coordinator) StopActive() error {
	var err error
	if e := c.exec(func() {
		if c.closing {
			err = ErrClosed
			return
		}
		c.retireActive()
	}); e != nil {
		return e
	}
	return err
}

// Shutdown retires the active session and waits for every retiring session
// to be released, bounded by ShutdownGrace and ctx. Sessions still tearing
// down when the bound expires are abandoned and reported in the returned
// error, which wraps ErrTeardownTimeout. Calling Shutdown again is a no-op.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	waiter := make(chan error, 1)
	if err := c.exec(func() { c.beginShutdown(waiter) }); err != nil {
		return nil
	}

	select {
	case err := <-waiter:
		<-c.loopDone
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// Snapshot returns the current bookkeeping.
func (c *Coordinator) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := c.exec(func() { snap = c.snapshot() })
	return snap, err
}

// Events delivers notifications in the order they happened. The channel is
// closed after Shutdown once every pending notification has been delivered.
func (c *Coordinator) Events() <-chan Notification {
	return c.events
}

// exec runs fn on the control goroutine and waits for it to return.
func (c *Coordinator) exec(fn func()) error {
	done := make(chan struct{})
	select {
	case c.requests <- func() { fn(); close(done) }:
	case <-c.loopDone:
		return ErrClosed
	}
	<-done
	return nil
}

// post schedules fn on the control goroutine without waiting.
func (c *Coordinator) post(fn func()) {
	select {
	case c.requests <- fn:
	case <-c.loopDone:
	}
}

func (c *Coordinator) run() {
	defer close(c.loopDone)

	for !c.finished {
		var (
			out  chan<- Notification
			next Notification
		)
		if len(c.pending) > 0 {
			out, next = c.events, c.pending[0]
		}

		select {
		case fn := <-c.requests:
			fn()
		case r := <-c.reports:
			c.handleReport(r)
		case out <- next:
			c.pending[0] = Notification{}
			c.pending = c.pending[1:]
		}
	}

	pending := c.pending
	c.pending = nil
	go func() {
		for _, n := range pending {
			c.events <- n
		}
		close(c.events)
	}()
	c.logger.Info("Coordinator stopped")
}

func (c *Coordinator) switchTo(locator string, target surface.Target) (ID, error) {
	if c.closing {
		return 0, ErrClosed
	}
	if owner := c.owner(target.ID()); owner != nil {
		return 0, fmt.Errorf("%w: %s held by %s (%s)", ErrTargetInUse, target.ID(), owner.id, owner.state)
	}

	c.nextID++
	s := &Session{
		id:      c.nextID,
		locator: locator,
		target:  target,
		state:   Created,
		created: time.Now(),
	}
	_, s.span = c.opts.Tracer.Start(context.Background(), "playback.session",
		trace.WithAttributes(
			attribute.Int64("session.id", int64(s.id)),
			attribute.String("session.locator", locator),
			attribute.String("session.target", target.ID()),
		))
	s.worker = newWorker(s.id, target, c.factory, c.reports, c.loopDone, c.logger)

	// The previous session leaves the live states before the new one enters
	// them, so at most one session is ever Starting or Playing.
	c.retireActive()

	// Creation and Start submission happen in one step, so Start always
	// precedes any teardown on this worker.
	c.advance(s, Starting)
	s.worker.submitStart(locator)
	c.active = s

	c.logger.Infow("Switched session", "session", s.id, "locator", locator, "target", target.ID())
	return s.id, nil
}

// owner returns the session holding the target with the given id, if any.
// A target is destroyed when its session is collected, so it can never be
// handed to a second session while the first one is still tracked.
func (c *Coordinator) owner(targetID string) *Session {
	if c.active != nil && c.active.target.ID() == targetID {
		return c.active
	}
	for _, m := range []map[ID]*Session{c.retiring, c.detached} {
		for _, s := range m {
			if s.target.ID() == targetID {
				return s
			}
		}
	}
	return nil
}

func (c *Coordinator) retireActive() {
	if c.active == nil {
		return
	}
	prev := c.active
	c.active = nil
	c.retire(prev)
}

// retire moves s into the retiring set and submits its teardown. The
// retiring set keeps s alive until its worker reports Released.
func (c *Coordinator) retire(s *Session) {
	if !s.state.Live() {
		invariant("%s retired in state %s", s.id, s.state)
	}
	if _, ok := c.retiring[s.id]; ok {
		invariant("%s retired twice", s.id)
	}

	c.advance(s, StopRequested)
	s.worker.submitTeardown()
	c.retiring[s.id] = s

	if c.opts.TeardownGrace > 0 {
		id := s.id
		s.graceTimer = time.AfterFunc(c.opts.TeardownGrace, func() {
			c.post(func() { c.teardownExpired(id) })
		})
	}

	if n := len(c.retiring); n > c.opts.RetiringWarn {
		c.logger.Warnw("Retiring set is growing, teardown is slower than switching",
			"retiring", n, "threshold", c.opts.RetiringWarn)
	}
	c.logger.Debugw("Retiring session", "session", s.id, "retiring", len(c.retiring))
}

func (c *Coordinator) handleReport(r report) {
	s := c.lookup(r.session)
	if s == nil {
		invariant("report %s for unknown session %s", r.kind, r.session)
	}

	switch r.kind {
	case reportStarted:
		s.span.AddEvent("engine.started")
		// A session retired before its start was confirmed is never presented.
		if s.state == Starting {
			c.advance(s, Playing)
			c.notify(s, Started, nil)
		}

	case reportStartFailed:
		s.span.RecordError(r.err)
		s.span.SetStatus(codes.Error, "start failed")
		c.advance(s, Released)
		if c.active == s {
			c.active = nil
		}
		c.collect(s)
		c.notify(s, StartFailed, fmt.Errorf("%w: %w", ErrStartFailed, r.err))

	case reportEnded:
		s.span.AddEvent("engine.ended")
		// Only a presented session finishes; one already retired is on its
		// way out regardless.
		if s.state == Playing && c.active == s {
			c.notify(s, Finished, nil)
			c.retireActive()
		}

	case reportStopping:
		c.advance(s, Stopping)

	case reportReleased:
		if r.err != nil {
			s.span.RecordError(r.err)
		}
		c.advance(s, Released)
		c.collect(s)
		c.notify(s, Stopped, r.err)
	}

	c.maybeFinishShutdown()
}

func (c *Coordinator) lookup(id ID) *Session {
	if c.active != nil && c.active.id == id {
		return c.active
	}
	if s, ok := c.retiring[id]; ok {
		return s
	}
	return c.detached[id]
}

// collect drops a released session from the bookkeeping, waits for its
// worker goroutine to exit and only then destroys the render target.
func (c *Coordinator) collect(s *Session) {
	if s.state != Released {
		invariant("%s collected in state %s", s.id, s.state)
	}

	delete(c.retiring, s.id)
	delete(c.detached, s.id)
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}

	// The worker has already posted its final report, so this is brief.
	<-s.worker.done

	if err := s.target.Destroy(); err != nil {
		c.logger.Warnw("Failed to destroy render target", "session", s.id, "target", s.target.ID(), "error", err)
	}
	s.span.End()
	c.logger.Debugw("Collected session", "session", s.id, "lifetime", time.Since(s.created))
}

func (c *Coordinator) teardownExpired(id ID) {
	s, ok := c.retiring[id]
	if !ok {
		return
	}

	delete(c.retiring, id)
	c.detached[id] = s
	s.span.AddEvent("teardown.timeout")

	c.logger.Warnw("Teardown exceeded grace period, detaching session",
		"session", id, "state", s.state, "grace", c.opts.TeardownGrace)
	c.notify(s, TeardownTimedOut, fmt.Errorf("%w after %s", ErrTeardownTimeout, c.opts.TeardownGrace))
	c.maybeFinishShutdown()
}

func (c *Coordinator) beginShutdown(waiter chan error) {
	c.waiters = append(c.waiters, waiter)
	if c.closing {
		return
	}

	c.closing = true
	c.logger.Infow("Shutting down", "active", c.active != nil, "retiring", len(c.retiring))
	c.retireActive()

	c.shutdownTimer = time.AfterFunc(c.opts.ShutdownGrace, func() {
		c.post(c.shutdownExpired)
	})
	c.maybeFinishShutdown()
}

func (c *Coordinator) shutdownExpired() {
	if c.finished {
		return
	}
	for id, s := range c.retiring {
		c.logger.Errorw("Abandoning session stuck in teardown", "session", id, "state", s.state)
		delete(c.retiring, id)
		c.detached[id] = s
	}
	c.maybeFinishShutdown()
}

func (c *Coordinator) maybeFinishShutdown() {
	if !c.closing || c.finished || len(c.retiring) > 0 {
		return
	}

	c.finished = true
	if c.shutdownTimer != nil {
		c.shutdownTimer.Stop()
	}

	var err error
	ids := lo.Keys(c.detached)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s := c.detached[id]
		err = multierr.Append(err, fmt.Errorf("session %s (%s): %w", id, s.state, ErrTeardownTimeout))
		if s.graceTimer != nil {
			s.graceTimer.Stop()
		}
		s.span.SetStatus(codes.Error, "abandoned in teardown")
		s.span.End()
	}
	if err != nil {
		c.logger.Errorw("Shutdown finished with abandoned sessions", "abandoned", len(ids), "error", err)
	}

	for _, w := range c.waiters {
		w <- err
	}
	c.waiters = nil
}

func (c *Coordinator) advance(s *Session, to State) {
	from := s.state
	if !CanTransition(from, to) {
		invariant("%s: illegal transition %s -> %s", s.id, from, to)
	}
	s.state = to
	s.span.AddEvent(to.String())
	c.logger.Debugw("Session transition", "session", s.id, "from", from, "to", to)

	if c.opts.OnTransition != nil {
		c.opts.OnTransition(Transition{Session: s.id, From: from, To: to, At: time.Now()})
	}
}

func (c *Coordinator) notify(s *Session, event Event, err error) {
	n := Notification{
		Session: s.id,
		Event:   event,
		Locator: s.locator,
		Target:  s.target.ID(),
		Err:     err,
	}
	c.logger.Infow("Session event", "session", s.id, "event", event, "error", err)
	c.pending = append(c.pending, n)
}

func (c *Coordinator) snapshot() Snapshot {
	now := time.Now()
	var snap Snapshot
	if c.active != nil {
		info := c.active.info(now)
		snap.Active = &info
	}
	collect := func(m map[ID]*Session) []Info {
		infos := lo.Map(lo.Values(m), func(s *Session, _ int) Info { return s.info(now) })
		sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
		return infos
	}
	snap.Retiring = collect(c.retiring)
	snap.Detached = collect(c.detached)
	return snap
}
