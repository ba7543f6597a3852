package session

import "fmt"

// ID identifies a session. IDs are assigned in increasing order starting at 1.
type ID uint64

func (id ID) String() string {
	return fmt.Sprintf("s%d", uint64(id))
}

// Event is the kind of a notification delivered to the UI layer.
type Event int

const (
	// Started means the session's engine confirmed playback while active.
	Started Event = iota + 1
	// StartFailed means the engine could not start; Err carries the reason.
	StartFailed
	// Stopped means the session was torn down and its surface destroyed.
	Stopped
	// TeardownTimedOut means stop+release overran the grace period and the
	// session was detached. A Stopped may still follow if teardown finishes.
	TeardownTimedOut
	// Finished means playback reached its end without a stop request. The
	// session is retired and a Stopped follows.
	Finished
)

func (e Event) String() string {
	switch e {
	case Started:
		return "started"
	case StartFailed:
		return "start-failed"
	case Stopped:
		return "stopped"
	case TeardownTimedOut:
		return "teardown-timed-out"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Notification is one {SessionId, Event} message.
type Notification struct {
	Session ID
	Event   Event
	Locator string
	Target  string
	Err     error
}

func (n Notification) String() string {
	if n.Err != nil {
		return fmt.Sprintf("%s %s %s: %v", n.Session, n.Event, n.Locator, n.Err)
	}
	return fmt.Sprintf("%s %s %s", n.Session, n.Event, n.Locator)
}
