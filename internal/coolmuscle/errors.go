package coolmuscle

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is returned when the serial port cannot be opened.
	ErrConnection = errors.New("coolmuscle: connection failed")

	// ErrProtocolTimeout is returned when no matching response line
	// arrives before the read budget runs out.
	ErrProtocolTimeout = errors.New("coolmuscle: protocol timeout")

	// ErrLimitExceeded is returned when a requested angle lies outside the
	// configured CW/CCW bounds.
	ErrLimitExceeded = errors.New("coolmuscle: angle limit exceeded")

	// ErrPrecondition is returned when an operation needs a connection or
	// power state the controller is not in.
	ErrPrecondition = errors.New("coolmuscle: precondition failed")

	// ErrReadTimeout is returned by a Transport when no complete line
	// arrived within the given wait.
	ErrReadTimeout = errors.New("coolmuscle: read timeout")
)

// LimitError describes a rejected target angle.
type LimitError struct {
	Angle float64
	Min   float64 // CW bound
	Max   float64 // CCW bound
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("coolmuscle: angle %.4f rad outside [%.4f, %.4f]", e.Angle, e.Min, e.Max)
}

func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }

// StateError reports an operation attempted in the wrong state.
type StateError struct {
	Op    string
	State State
	Need  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("coolmuscle: %s requires %s (state=%s)", e.Op, e.Need, e.State)
}

func (e *StateError) Is(target error) bool { return target == ErrPrecondition }
