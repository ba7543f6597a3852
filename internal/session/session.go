// Package session coordinates playback sessions: it switches the presented
// media engine from one target to another without blocking the caller, and
// guarantees a session's engine is released before its render target is
// destroyed.
//
// Each session owns a worker goroutine that serializes every call on the
// session's engine handle. The Coordinator keeps the active session and the
// retiring set on a single control goroutine, so none of its bookkeeping is
// shared across goroutines.
package session

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"player-session/internal/surface"
)

// Session is one attempt to play one locator on one surface.
type Session struct {
	id      ID
	locator string
	target  surface.Target
	worker  *worker
	state   State
	created time.Time

	span       trace.Span
	graceTimer *time.Timer
}

// Info is a read-only view of a session.
type Info struct {
	ID      ID
	Locator string
	Target  string
	State   State
	Age     time.Duration
}

func (s *Session) info(now time.Time) Info {
	return Info{
		ID:      s.id,
		Locator: s.locator,
		Target:  s.target.ID(),
		State:   s.state,
		Age:     now.Sub(s.created),
	}
}

// Snapshot is the coordinator's bookkeeping at one instant.
type Snapshot struct {
	Active   *Info
	Retiring []Info
	Detached []Info
}
