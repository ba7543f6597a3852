package session

import (
	"fmt"
	"time"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"player-session/internal/engine"
	"player-session/internal/surface"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdRelease
)

func (k commandKind) String() string {
	switch k {
	case cmdStart:
		return "start"
	case cmdStop:
		return "stop"
	default:
		return "release"
	}
}

type command struct {
	kind    commandKind
	locator string
}

type reportKind int

const (
	reportStarted reportKind = iota
	reportStartFailed
	reportEnded
	reportStopping
	reportReleased
)

func (k reportKind) String() string {
	switch k {
	case reportStarted:
		return "started"
	case reportStartFailed:
		return "start-failed"
	case reportEnded:
		return "ended"
	case reportStopping:
		return "stopping"
	default:
		return "released"
	}
}

// report travels from a worker goroutine back to the control loop.
type report struct {
	session ID
	kind    reportKind
	err     error
	at      time.Time
}

// maxCommands is Start plus the Stop+Release pair. Sizing the queue to it
// means Submit never blocks.
const maxCommands = 3

// worker exclusively owns one engine handle for the lifetime of one session.
// All engine calls run on the worker's goroutine in submission order.
type worker struct {
	id      ID
	target  surface.Target
	factory engine.Factory
	logger  *zap.SugaredLogger

	commands chan command
	reports  chan<- report
	abandon  <-chan struct{}
	done     chan struct{} // closed once run returns

	// Submission bookkeeping; only touched by the submitting goroutine.
	startSubmitted    bool
	teardownSubmitted bool
}

// newWorker starts a worker goroutine. reports is shared by every worker of
// a coordinator; abandon is closed when nobody reads reports any more.
func newWorker(id ID, target surface.Target, factory engine.Factory,
	reports chan<- report, abandon <-chan struct{}, logger *zap.SugaredLogger) *worker {
	w := &worker{
		id:       id,
		target:   target,
		factory:  factory,
		logger:   logger.Named("worker").With("session", id.String()),
		commands: make(chan command, maxCommands),
		reports:  reports,
		abandon:  abandon,
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// submitStart queues the single Start for this worker.
func (w *worker) submitStart(locator string) {
	if w.startSubmitted {
		invariant("%s: second start submitted", w.id)
	}
	w.startSubmitted = true
	w.commands <- command{kind: cmdStart, locator: locator}
}

// submitTeardown queues Stop and Release as one step. It may be called once.
func (w *worker) submitTeardown() {
	if !w.startSubmitted {
		invariant("%s: teardown submitted before start", w.id)
	}
	if w.teardownSubmitted {
		invariant("%s: double release", w.id)
	}
	w.teardownSubmitted = true
	w.commands <- command{kind: cmdStop}
	w.commands <- command{kind: cmdRelease}
}

func (w *worker) run() {
	defer close(w.done)

	var (
		handle  engine.Handle
		stopErr error
		// ended fires when playback finishes without being asked to.
		ended   <-chan struct{}
	)

	for {
		var cmd command
		select {
		case cmd = <-w.commands:
		case <-ended:
			ended = nil
			w.logger.Info("Playback ended on its own")
			w.post(reportEnded, nil)
			continue
		}
		w.logger.Debugw("Executing command", "command", cmd.kind)

		switch cmd.kind {
		case cmdStart:
			h, err := w.start(cmd.locator)
			if err != nil {
				w.logger.Warnw("Start failed", "locator", cmd.locator, "error", err)
				w.post(reportStartFailed, err)
				return
			}
			handle = h
			if e, ok := h.(engine.Ender); ok {
				ended = e.Ended()
			}
			w.post(reportStarted, nil)

		case cmdStop:
			ended = nil
			w.post(reportStopping, nil)
			stopErr = w.call("stop", handle.RequestStop)

		case cmdRelease:
			err := multierr.Append(stopErr, w.call("release", handle.Release))
			if err != nil {
				w.logger.Warnw("Teardown finished with errors", "error", err)
			}
			w.post(reportReleased, err)
			return
		}
	}
}

// start creates the handle lazily and starts it. A handle that fails to
// start is released before returning.
func (w *worker) start(locator string) (engine.Handle, error) {
	var handle engine.Handle
	err := w.call("create", func() error {
		h, err := w.factory.NewHandle(w.target)
		handle = h
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := w.call("start", func() error { return handle.Start(locator) }); err != nil {
		if rerr := w.call("release", handle.Release); rerr != nil {
			w.logger.Warnw("Release after failed start", "error", rerr)
		}
		return nil, err
	}
	return handle, nil
}

// call runs one engine operation, turning a panic into an error so that
// failures never cross the goroutine boundary.
func (w *worker) call(op string, fn func() error) error {
	var (
		pc  panics.Catcher
		err error
	)
	pc.Try(func() { err = fn() })
	if r := pc.Recovered(); r != nil {
		return fmt.Errorf("engine %s panicked: %w", op, r.AsError())
	}
	return err
}

func (w *worker) post(kind reportKind, err error) {
	select {
	case w.reports <- report{session: w.id, kind: kind, err: err, at: time.Now()}:
	case <-w.abandon:
		w.logger.Warnw("Coordinator gone, dropping report", "report", kind, "error", err)
	}
}
