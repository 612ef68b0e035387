package integrators

import (
	"fmt"
	"math"

	"github.com/san-kum/rflf/internal/dynamo"
)

// RK4 is the classic fixed-step fourth-order method. Every step is accepted;
// it serves as a reference for the adaptive stepper.
type RK4 struct {
	scratch dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.scratch) != n {
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK4) Step(rhs RHSFunc, x dynamo.State, t, dt float64) (dynamo.State, error) {
	n := len(x)
	r.ensureScratch(n)

	k1, err := rhs(t, x)
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*k1[i]
	}
	k2, err := rhs(t+dt*0.5, r.scratch)
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*k2[i]
	}
	k3, err := rhs(t+dt*0.5, r.scratch)
	if err != nil {
		return nil, err
	}

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*k3[i]
	}
	k4, err := rhs(t+dt, r.scratch)
	if err != nil {
		return nil, err
	}

	result := make(dynamo.State, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}

	return result, nil
}

func (r *RK4) Integrate(rhs RHSFunc, accept AcceptFunc, t0, tf float64, x0 dynamo.State, opts Options) (Stats, error) {
	return integrateFixed(r.Step, rhs, accept, t0, tf, x0, opts)
}

type stepFunc func(rhs RHSFunc, x dynamo.State, t, dt float64) (dynamo.State, error)

// integrateFixed marches with dt = InitialStep, falling back to MaxStep and
// then to a hundredth of the span. The last step is clipped to land on tf.
func integrateFixed(step stepFunc, rhs RHSFunc, accept AcceptFunc, t0, tf float64, x0 dynamo.State, opts Options) (Stats, error) {
	if err := validateSpan(t0, tf, opts); err != nil {
		return Stats{}, err
	}

	dt := opts.InitialStep
	if dt == 0 {
		dt = opts.MaxStep
	}
	if math.IsInf(dt, 1) {
		dt = (tf - t0) / 100
	}

	st := Stats{CurrentTime: t0, NextStep: dt}
	eval := counted(rhs, &st)

	t := t0
	x := x0.Clone()
	for i := 1; t < tf; i++ {
		if opts.MaxSteps > 0 && st.Accepted >= opts.MaxSteps {
			return st, fmt.Errorf("%w: %d steps taken, stopped at t=%g", dynamo.ErrTooManySteps, st.Accepted, t)
		}

		// Times are t0 + i*dt rather than accumulated sums so long runs don't drift.
		tNew := t0 + float64(i)*dt
		if tNew >= tf || tf-tNew < opts.minStep(t) {
			tNew = tf
		}
		h := tNew - t

		xNew, err := step(eval, x, t, h)
		if err != nil {
			return st, err
		}

		t, x = tNew, xNew
		st.Accepted++
		st.LastStep = h
		st.CurrentTime = t

		if err := accept(t, x); err != nil {
			return st, err
		}
	}

	return st, nil
}
