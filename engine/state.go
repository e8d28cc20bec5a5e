package engine

import (
	"errors"
	"fmt"
)

// State names the session lifecycle phase. Transitions are validated
// against an explicit table at the boundary rather than ad hoc flags.
type State int

const (
	// Idle: no capture session open.
	Idle State = iota
	// Capturing: segments are being produced, no analysis in flight.
	Capturing
	// Analyzing: exactly one analysis request in flight; capture continues.
	Analyzing
	// Errored: the last analysis failed. Capture may still be running and
	// further triggers remain possible.
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Analyzing:
		return "analyzing"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State]map[State]bool{
	Idle:      {Capturing: true},
	Capturing: {Analyzing: true, Idle: true},
	Analyzing: {Capturing: true, Idle: true, Errored: true},
	Errored:   {Analyzing: true, Capturing: true, Idle: true},
}

func checkTransition(from, to State) error {
	if !transitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
