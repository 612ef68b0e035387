// Package rhs assembles the right-hand side F + M + η that the stepper sees.
//
// Eval never writes to the history; only Commit does, and only the driver
// calls it once a step is accepted.
package rhs

import (
	"fmt"

	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/history"
	"github.com/san-kum/rflf/internal/memory"
)

type Evaluator struct {
	sys    dynamo.System
	store  *history.Store
	memory *memory.Evaluator
	evals  int
}

// New returns an evaluator for sys over store. mem may be nil when the
// system has no memory term.
func New(sys dynamo.System, store *history.Store, mem *memory.Evaluator) *Evaluator {
	return &Evaluator{sys: sys, store: store, memory: mem}
}

// Eval returns ds/dt at the trial point (t, s).
func (e *Evaluator) Eval(t float64, s dynamo.State) (dynamo.State, error) {
	e.evals++

	dx, err := e.eval(t, s)
	if err != nil {
		return nil, &dynamo.SimulationError{
			Step:    e.store.Len() - 1,
			Time:    t,
			State:   s.Clone(),
			Wrapped: err,
		}
	}
	return dx, nil
}

func (e *Evaluator) eval(t float64, s dynamo.State) (dynamo.State, error) {
	dim := e.store.Dim()
	if len(s) != dim {
		return nil, fmt.Errorf("%w: state has %d components, want %d", dynamo.ErrDimensionMismatch, len(s), dim)
	}

	forward, err := e.sys.Forward(s, t)
	if err := check("forward", forward, err, dim); err != nil {
		return nil, err
	}
	dx := forward.Clone()

	if e.memory != nil {
		trial := history.Sample{Time: t, State: s}
		m, err := e.memory.Evaluate(t, &trial)
		if err != nil {
			return nil, err
		}
		for k := range dx {
			dx[k] += m[k]
		}
	}

	if e.sys.Noise != nil {
		noise, err := e.sys.Noise(s, t)
		if err := check("noise", noise, err, dim); err != nil {
			return nil, err
		}
		for k := range dx {
			dx[k] += noise[k]
		}
	}

	return dx, nil
}

// Commit records an accepted sample.
func (e *Evaluator) Commit(t float64, s dynamo.State) error {
	if err := e.store.Record(t, s); err != nil {
		return &dynamo.SimulationError{
			Step:    e.store.Len() - 1,
			Time:    t,
			State:   s.Clone(),
			Wrapped: err,
		}
	}
	return nil
}

func (e *Evaluator) Evaluations() int { return e.evals }

func check(name string, v dynamo.State, err error, dim int) error {
	if err != nil {
		return &dynamo.FunctionError{Name: name, Err: err}
	}
	if len(v) != dim {
		return &dynamo.FunctionError{
			Name: name,
			Err:  fmt.Errorf("%w: returned %d components, want %d", dynamo.ErrDimensionMismatch, len(v), dim),
		}
	}
	if !v.IsValid() {
		return &dynamo.FunctionError{Name: name, Err: dynamo.ErrInvalidState}
	}
	return nil
}
