package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/rflf/internal/dynamo"
)

// RHSFunc evaluates ds/dt at a trial point. It may be called at points that
// end up rejected.
type RHSFunc func(t float64, x dynamo.State) (dynamo.State, error)

// AcceptFunc is called once per accepted step with the new time and state.
// A non-nil error stops the integration and is returned as is.
type AcceptFunc func(t float64, x dynamo.State) error

// Stepper advances an initial value problem from t0 to tf.
type Stepper interface {
	Integrate(rhs RHSFunc, accept AcceptFunc, t0, tf float64, x0 dynamo.State, opts Options) (Stats, error)
}

type Options struct {
	AbsTol float64
	RelTol float64
	// InitialStep of zero lets the stepper pick one.
	InitialStep float64
	MaxStep     float64
	// MinStep of zero uses a bound relative to the current time.
	MinStep float64
	// MaxSteps of zero means unbounded.
	MaxSteps int
}

func DefaultOptions() Options {
	return Options{
		AbsTol:  1e-8,
		RelTol:  1e-6,
		MaxStep: math.Inf(1),
	}
}

func (o Options) Validate() error {
	if !(o.AbsTol > 0) || !(o.RelTol >= 0) {
		return fmt.Errorf("%w: tolerances must be positive (atol=%g, rtol=%g)", dynamo.ErrInvalidConfig, o.AbsTol, o.RelTol)
	}
	if !(o.MaxStep > 0) {
		return fmt.Errorf("%w: max step must be positive, got %g", dynamo.ErrInvalidConfig, o.MaxStep)
	}
	if o.MinStep < 0 || o.InitialStep < 0 || o.MaxSteps < 0 {
		return fmt.Errorf("%w: step bounds must be non-negative", dynamo.ErrInvalidConfig)
	}
	if o.MinStep > o.MaxStep {
		return fmt.Errorf("%w: min step %g exceeds max step %g", dynamo.ErrInvalidConfig, o.MinStep, o.MaxStep)
	}
	return nil
}

// minStep is the underflow bound at time t.
func (o Options) minStep(t float64) float64 {
	if o.MinStep > 0 {
		return o.MinStep
	}
	return 1e-12 * math.Max(1, math.Abs(t))
}

// Stats reports what a stepper did.
type Stats struct {
	Accepted    int
	Rejected    int
	Evaluations int
	// LastStep is the size of the last accepted step.
	LastStep float64
	// NextStep is the step the stepper would try next.
	NextStep float64
	// CurrentTime is the time up to which the integration was performed.
	CurrentTime float64
}
