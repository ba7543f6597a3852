package session

import (
	"fmt"
	"time"
)

// State is a playback session lifecycle state. Sessions only move forward.
type State int

const (
	Created State = iota
	Starting
	Playing
	StopRequested
	Stopping
	Released
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Starting:
		return "starting"
	case Playing:
		return "playing"
	case StopRequested:
		return "stop-requested"
	case Stopping:
		return "stopping"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Live reports whether the session may be presenting media.
func (s State) Live() bool {
	return s == Starting || s == Playing
}

// transitions lists every legal edge of the session state machine.
//
// Starting -> StopRequested covers a session retired before its start was
// confirmed; StopRequested -> Released covers that start failing afterwards.
var transitions = map[State][]State{
	Created:       {Starting},
	Starting:      {Playing, Released, StopRequested},
	Playing:       {StopRequested},
	StopRequested: {Stopping, Released},
	Stopping:      {Released},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition records one state change of one session.
type Transition struct {
	Session ID
	From    State
	To      State
	At      time.Time
}
