package session

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := [][2]State{
		{Created, Starting},
		{Starting, Playing},
		{Starting, Released},
		{Starting, StopRequested},
		{Playing, StopRequested},
		{StopRequested, Stopping},
		{StopRequested, Released},
		{Stopping, Released},
	}
	for _, tr := range allowed {
		if !CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}

	denied := [][2]State{
		{Playing, Starting},
		{Stopping, Playing},
		{Released, Created},
		{Released, Starting},
		{Playing, Released},
		{Created, Playing},
		{Stopping, StopRequested},
	}
	for _, tr := range denied {
		if CanTransition(tr[0], tr[1]) {
			t.Errorf("%s -> %s should be denied", tr[0], tr[1])
		}
	}
}

func TestReleasedIsTerminal(t *testing.T) {
	for s := Created; s <= Released; s++ {
		if CanTransition(Released, s) {
			t.Errorf("released must be terminal, but allows -> %s", s)
		}
	}
}

func TestLive(t *testing.T) {
	for s := Created; s <= Released; s++ {
		want := s == Starting || s == Playing
		if s.Live() != want {
			t.Errorf("%s.Live() = %v", s, s.Live())
		}
	}
}
