package view

import (
	"errors"
	"fmt"
)

// State is the loading state of a session's activity view.
type State int

const (
	Idle    State = iota // nothing loaded yet
	Loading              // a request to the fitting service is in flight
	Ready                // the last request succeeded
	Failed               // the last request failed
)

// ErrInvalidTransition is returned when a state change is not allowed,
// such as starting a request while another is loading.
var ErrInvalidTransition = errors.New("invalid state transition")

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// next reports whether s may move to to. A request can start from any
// settled state; only a request in flight can settle.
func (s State) next(to State) error {
	ok := false
	switch to {
	case Loading:
		ok = s != Loading
	case Ready, Failed:
		ok = s == Loading
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return nil
}
