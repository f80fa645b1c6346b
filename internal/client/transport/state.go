package transport

import (
	"errors"
	"fmt"
	"time"
)

type State int

const (
	StateConnecting State = iota
	StateOpen
	StateBackoff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StateChange is reported to state subscribers on every transition. Attempt
// is the reconnect attempt number (0 for the initial connect), Delay is set
// while in backoff and Err carries the cause of a loss or a terminal failure.
type StateChange struct {
	State   State
	Attempt int
	Delay   time.Duration
	Err     error
}

var (
	ErrNotReady = errors.New("transport: connection not open")
	ErrClosed   = errors.New("transport: closed")
)

// ConnectionError reports that the socket could not be opened or was lost.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: connection to %s failed: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Backoff is an exponential reconnect schedule: Base, 2*Base, 4*Base...
// never exceeding Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
