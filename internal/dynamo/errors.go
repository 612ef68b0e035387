package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for integration runs.
var (
	// ErrOutOfRange indicates a history query before t0 or after the last accepted time.
	ErrOutOfRange = errors.New("dynamo: history query out of range")

	// ErrOutOfOrder indicates a commit that does not advance time.
	ErrOutOfOrder = errors.New("dynamo: history commit out of order")

	// ErrInsufficientHistory indicates the memory integral needs data beyond the accepted trajectory.
	ErrInsufficientHistory = errors.New("dynamo: insufficient history for memory integral")

	// ErrStepSizeUnderflow indicates adaptive timestep fell below the minimum.
	ErrStepSizeUnderflow = errors.New("dynamo: adaptive timestep below minimum")

	// ErrUserFunction indicates F, G, K or η failed or returned a malformed value.
	ErrUserFunction = errors.New("dynamo: user function error")

	// ErrInvalidState indicates a state vector containing NaN or Inf.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates mismatched state dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrInvalidConfig indicates an unusable integration configuration.
	ErrInvalidConfig = errors.New("dynamo: invalid configuration")

	// ErrTooManySteps indicates the stepper hit its step budget before tf.
	ErrTooManySteps = errors.New("dynamo: maximum step count exceeded")

	// ErrQuadratureTolerance indicates grid refinement moved the memory integral more than allowed.
	ErrQuadratureTolerance = errors.New("dynamo: quadrature did not converge within tolerance")

	// ErrAlreadyStarted indicates a driver was asked to run twice.
	ErrAlreadyStarted = errors.New("dynamo: driver already started")
)

// RangeError is returned for history queries outside [Start, End].
type RangeError struct {
	Time  float64
	Start float64
	End   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%v: t=%g not in [%g, %g]", ErrOutOfRange, e.Time, e.Start, e.End)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// OrderError is returned when a commit at Time does not follow Last.
type OrderError struct {
	Time float64
	Last float64
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("%v: t=%g after last accepted t=%g", ErrOutOfOrder, e.Time, e.Last)
}

func (e *OrderError) Unwrap() error { return ErrOutOfOrder }

// InsufficientHistoryError reports a memory evaluation at Time whose
// unresolved tail beyond Last exceeds Limit.
type InsufficientHistoryError struct {
	Time  float64
	Last  float64
	Limit float64
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("%v: t=%g is %g past last accepted t=%g (limit %g)",
		ErrInsufficientHistory, e.Time, e.Time-e.Last, e.Last, e.Limit)
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }

// FunctionError wraps a failure of a user-supplied term. Name is one of
// "forward", "feedback", "kernel" or "noise".
type FunctionError struct {
	Name string
	Err  error
}

func (e *FunctionError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrUserFunction, e.Name, e.Err)
}

func (e *FunctionError) Unwrap() error { return e.Err }

func (e *FunctionError) Is(target error) bool { return target == ErrUserFunction }

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.6g, s=%v): %v", e.Step, e.Time, e.State, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
