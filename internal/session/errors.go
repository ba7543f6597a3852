package session

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by coordinator calls made after shutdown began.
	ErrClosed = errors.New("coordinator is shut down")

	// ErrNilTarget is returned when a switch request carries no render target.
	ErrNilTarget = errors.New("render target is nil")

	// ErrTargetInUse is returned when a switch request names a render target
	// that another session still owns.
	ErrTargetInUse = errors.New("render target is owned by another session")

	// ErrStartFailed tags StartFailed notifications.
	ErrStartFailed = errors.New("start failed")

	// ErrTeardownTimeout tags sessions whose stop+release exceeded the grace period.
	ErrTeardownTimeout = errors.New("teardown timed out")

	// ErrInvariant marks a broken ownership invariant. It is only ever panicked.
	ErrInvariant = errors.New("session invariant violated")
)

func invariant(format string, args ...any) {
	panic(fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...)))
}
