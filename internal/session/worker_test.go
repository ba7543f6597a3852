package session

import (
	"errors"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"

	"player-session/internal/surface"
)

func newTestWorker(t *testing.T, rec *recorder, target string) (*worker, chan report, chan struct{}) {
	t.Helper()
	w, err := surface.NewWindow(surface.Fullscreen, surface.WithID(target))
	if err != nil {
		t.Fatal(err)
	}
	reports := make(chan report, 8)
	abandon := make(chan struct{})
	return newWorker(7, w, newFakeEngine(t, rec), reports, abandon, zap.NewNop().Sugar()), reports, abandon
}

func expectPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrInvariant) {
			t.Fatalf("expected invariant panic, got %v", r)
		}
	}()
	fn()
}

// TestWorkerRunsCommandsInOrder verifies start, stop and release execute
// FIFO and report back in the same order.
func TestWorkerRunsCommandsInOrder(t *testing.T) {
	rec := &recorder{}
	w, reports, _ := newTestWorker(t, rec, "W")

	w.submitStart("a.mp4")
	w.submitTeardown()

	var kinds []reportKind
	for len(kinds) < 3 {
		select {
		case r := <-reports:
			if r.session != 7 {
				t.Fatalf("report for wrong session %s", r.session)
			}
			if r.err != nil {
				t.Fatalf("unexpected error in %s: %v", r.kind, r.err)
			}
			kinds = append(kinds, r.kind)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", kinds)
		}
	}
	if want := []reportKind{reportStarted, reportStopping, reportReleased}; !slices.Equal(kinds, want) {
		t.Fatalf("reports = %v, want %v", kinds, want)
	}

	select {
	case <-w.done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after release")
	}

	want := []string{"engine-created:W", "engine-started:W", "engine-stopped:W", "engine-released:W"}
	if !slices.Equal(rec.lines, want) {
		t.Fatalf("engine calls = %v, want %v", rec.lines, want)
	}
}

func TestWorkerStartFailureReleasesHandle(t *testing.T) {
	rec := &recorder{}
	w, reports, _ := newTestWorker(t, rec, "W")

	w.submitStart("bad.mp4")

	select {
	case r := <-reports:
		if r.kind != reportStartFailed || !errors.Is(r.err, errBadLocator) {
			t.Fatalf("expected start failure, got %s %v", r.kind, r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for start failure")
	}
	<-w.done

	if !rec.has("engine-released:W") {
		t.Fatal("handle must be released after a failed start")
	}
}

func TestWorkerDoubleTeardownPanics(t *testing.T) {
	w, _, _ := newTestWorker(t, &recorder{}, "W")
	w.submitStart("a.mp4")
	w.submitTeardown()
	expectPanic(t, w.submitTeardown)
}

func TestWorkerTeardownBeforeStartPanics(t *testing.T) {
	w, _, _ := newTestWorker(t, &recorder{}, "W")
	expectPanic(t, w.submitTeardown)
}

func TestWorkerSecondStartPanics(t *testing.T) {
	w, _, _ := newTestWorker(t, &recorder{}, "W")
	w.submitStart("a.mp4")
	expectPanic(t, func() { w.submitStart("b.mp4") })
}

// TestWorkerAbandoned checks a worker does not hang when nobody reads reports.
func TestWorkerAbandoned(t *testing.T) {
	w, err := surface.NewWindow(surface.Fullscreen, surface.WithID("W"))
	if err != nil {
		t.Fatal(err)
	}
	abandon := make(chan struct{})
	wk := newWorker(1, w, newFakeEngine(t, &recorder{}), make(chan report), abandon, zap.NewNop().Sugar())

	wk.submitStart("a.mp4")
	wk.submitTeardown()
	close(abandon)

	select {
	case <-wk.done:
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned worker did not exit")
	}
}

// TestWorkerReportsEnd checks a handle that runs out is reported once and
// still torn down in order afterwards.
func TestWorkerReportsEnd(t *testing.T) {
	rec := &recorder{}
	w, reports, _ := newTestWorker(t, rec, "W")

	next := func() reportKind {
		t.Helper()
		select {
		case r := <-reports:
			return r.kind
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for report")
			return 0
		}
	}

	w.submitStart("short.mp4")
	if k := next(); k != reportStarted {
		t.Fatalf("expected started, got %s", k)
	}
	if k := next(); k != reportEnded {
		t.Fatalf("expected ended, got %s", k)
	}

	w.submitTeardown()
	if k := next(); k != reportStopping {
		t.Fatalf("expected stopping, got %s", k)
	}
	if k := next(); k != reportReleased {
		t.Fatalf("expected released, got %s", k)
	}
	<-w.done

	if !rec.has("engine-released:W") {
		t.Fatal("ended handle must still be released")
	}
}
