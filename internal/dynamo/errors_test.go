package dynamo

import (
	"errors"
	"fmt"
	"testing"
)

func TestTypedErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"range", &RangeError{Time: -1, Start: 0, End: 1}, ErrOutOfRange},
		{"order", &OrderError{Time: 1, Last: 2}, ErrOutOfOrder},
		{"insufficient", &InsufficientHistoryError{Time: 2, Last: 1, Limit: 0.5}, ErrInsufficientHistory},
		{"function", &FunctionError{Name: "forward", Err: errors.New("boom")}, ErrUserFunction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("context: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", wrapped, tt.sentinel)
			}
		})
	}
}

func TestFunctionErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("division by zero")
	err := error(&FunctionError{Name: "feedback", Err: cause})

	if !errors.Is(err, cause) {
		t.Error("FunctionError should unwrap to its cause")
	}
	if !errors.Is(err, ErrUserFunction) {
		t.Error("FunctionError should match ErrUserFunction")
	}
}

func TestSimulationError(t *testing.T) {
	err := &SimulationError{Step: 3, Time: 1.5, State: State{1, 2}, Wrapped: ErrStepSizeUnderflow}

	expected := "step 3 (t=1.5, s=[1 2]): dynamo: adaptive timestep below minimum"
	if err.Error() != expected {
		t.Errorf("SimulationError.Error() = %q, want %q", err.Error(), expected)
	}

	var target *SimulationError
	if !errors.As(fmt.Errorf("run: %w", err), &target) || target.Step != 3 {
		t.Error("errors.As failed to recover SimulationError")
	}
	if !errors.Is(err, ErrStepSizeUnderflow) {
		t.Error("SimulationError should unwrap to the wrapped error")
	}
}
