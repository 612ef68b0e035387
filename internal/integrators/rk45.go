package integrators

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/rflf/internal/dynamo"
)

// Dormand-Prince coefficients (RK45)
var (
	a2 = 1.0 / 5.0
	a3 = 3.0 / 10.0
	a4 = 4.0 / 5.0
	a5 = 8.0 / 9.0

	b21 = 1.0 / 5.0
	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0
	b41 = 44.0 / 45.0
	b42 = -56.0 / 15.0
	b43 = 32.0 / 9.0
	b51 = 19372.0 / 6561.0
	b52 = -25360.0 / 2187.0
	b53 = 64448.0 / 6561.0
	b54 = -212.0 / 729.0
	b61 = 9017.0 / 3168.0
	b62 = -355.0 / 33.0
	b63 = 46732.0 / 5247.0
	b64 = 49.0 / 176.0
	b65 = -5103.0 / 18656.0

	c1 = 35.0 / 384.0
	c3 = 500.0 / 1113.0
	c4 = 125.0 / 192.0
	c5 = -2187.0 / 6784.0
	c6 = 11.0 / 84.0

	dc1 = c1 - 5179.0/57600.0
	dc3 = c3 - 7571.0/16695.0
	dc4 = c4 - 393.0/640.0
	dc5 = c5 - -92097.0/339200.0
	dc6 = c6 - 187.0/2100.0
	dc7 = -1.0 / 40.0
)

// RK45 is an adaptive Dormand-Prince 5(4) stepper.
//
// The first stage is recomputed after every accepted step instead of reusing
// the last stage: accepting a step extends the history, which changes the
// right-hand side at that same point.
type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

func (r *RK45) Integrate(rhs RHSFunc, accept AcceptFunc, t0, tf float64, x0 dynamo.State, opts Options) (Stats, error) {
	if err := validateSpan(t0, tf, opts); err != nil {
		return Stats{}, err
	}

	st := Stats{CurrentTime: t0}
	eval := counted(rhs, &st)

	t := t0
	x := x0.Clone()
	k1, err := eval(t, x)
	if err != nil {
		return st, err
	}

	h := opts.InitialStep
	if h == 0 {
		h = r.initialStep(x, k1, opts)
	}
	h = math.Min(math.Min(h, opts.MaxStep), tf-t0)
	st.NextStep = h

	rejectedLast := false
	for t < tf {
		if opts.MaxSteps > 0 && st.Accepted >= opts.MaxSteps {
			return st, fmt.Errorf("%w: %d steps taken, stopped at t=%g", dynamo.ErrTooManySteps, st.Accepted, t)
		}

		final := false
		if t+h >= tf || tf-(t+h) < opts.minStep(t) {
			h = tf - t
			final = true
		}
		if !final && h < opts.minStep(t) {
			st.NextStep = h
			return st, fmt.Errorf("%w: h=%g at t=%g", dynamo.ErrStepSizeUnderflow, h, t)
		}

		xNew, errEst, err := r.attempt(eval, t, x, k1, h)
		if err != nil {
			var ihe *dynamo.InsufficientHistoryError
			if !errors.As(err, &ihe) {
				return st, err
			}
			st.Rejected++
			rejectedLast = true
			h = math.Min(0.5*h, 0.9*ihe.Limit)
			st.NextStep = h
			continue
		}

		errNorm := r.errorNorm(x, xNew, errEst, opts)
		if errNorm <= 1 {
			tNew := t + h
			if final {
				tNew = tf
			}
			t, x = tNew, xNew
			st.Accepted++
			st.LastStep = h
			st.CurrentTime = t

			factor := r.maxScale
			if errNorm > 0 {
				factor = math.Min(r.maxScale, r.safety*math.Pow(errNorm, -0.2))
			}
			if rejectedLast {
				factor = math.Min(factor, 1)
			}
			rejectedLast = false
			h = math.Min(h*factor, opts.MaxStep)
			st.NextStep = h

			if err := accept(t, x); err != nil {
				return st, err
			}
			if t < tf {
				if k1, err = eval(t, x); err != nil {
					return st, err
				}
			}
			continue
		}

		st.Rejected++
		rejectedLast = true
		factor := r.minScale
		if !math.IsNaN(errNorm) && !math.IsInf(errNorm, 0) {
			factor = math.Max(r.minScale, r.safety*math.Pow(errNorm, -0.25))
		}
		h *= factor
		st.NextStep = h
	}

	return st, nil
}

// attempt computes the fifth-order solution at t+h and the embedded error
// estimate.
func (r *RK45) attempt(rhs RHSFunc, t float64, x, k1 dynamo.State, h float64) (dynamo.State, dynamo.State, error) {
	n := len(x)

	x2 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x2[i] = x[i] + h*b21*k1[i]
	}
	k2, err := rhs(t+a2*h, x2)
	if err != nil {
		return nil, nil, err
	}

	x3 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x3[i] = x[i] + h*(b31*k1[i]+b32*k2[i])
	}
	k3, err := rhs(t+a3*h, x3)
	if err != nil {
		return nil, nil, err
	}

	x4 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x4[i] = x[i] + h*(b41*k1[i]+b42*k2[i]+b43*k3[i])
	}
	k4, err := rhs(t+a4*h, x4)
	if err != nil {
		return nil, nil, err
	}

	x5 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x5[i] = x[i] + h*(b51*k1[i]+b52*k2[i]+b53*k3[i]+b54*k4[i])
	}
	k5, err := rhs(t+a5*h, x5)
	if err != nil {
		return nil, nil, err
	}

	x6 := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		x6[i] = x[i] + h*(b61*k1[i]+b62*k2[i]+b63*k3[i]+b64*k4[i]+b65*k5[i])
	}
	k6, err := rhs(t+h, x6)
	if err != nil {
		return nil, nil, err
	}

	xNew := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		xNew[i] = x[i] + h*(c1*k1[i]+c3*k3[i]+c4*k4[i]+c5*k5[i]+c6*k6[i])
	}

	k7, err := rhs(t+h, xNew)
	if err != nil {
		return nil, nil, err
	}

	errEst := make(dynamo.State, n)
	for i := 0; i < n; i++ {
		errEst[i] = h * (dc1*k1[i] + dc3*k3[i] + dc4*k4[i] + dc5*k5[i] + dc6*k6[i] + dc7*k7[i])
	}

	return xNew, errEst, nil
}

// errorNorm is the RMS of the error estimate scaled by atol + rtol*|x|.
func (r *RK45) errorNorm(x, xNew, errEst dynamo.State, opts Options) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for i := range x {
		scale := opts.AbsTol + opts.RelTol*math.Max(math.Abs(x[i]), math.Abs(xNew[i]))
		e := errEst[i] / scale
		sum += e * e
	}
	return math.Sqrt(sum / float64(len(x)))
}

func (r *RK45) initialStep(x, dx dynamo.State, opts Options) float64 {
	var d0, d1 float64
	for i := range x {
		scale := opts.AbsTol + opts.RelTol*math.Abs(x[i])
		d0 += (x[i] / scale) * (x[i] / scale)
		d1 += (dx[i] / scale) * (dx[i] / scale)
	}
	d0, d1 = math.Sqrt(d0), math.Sqrt(d1)

	if d0 < 1e-5 || d1 < 1e-5 {
		return 1e-6
	}
	h := 0.01 * d0 / d1
	if !(h > 0) || math.IsInf(h, 0) {
		return 1e-6
	}
	return h
}

func validateSpan(t0, tf float64, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if math.IsNaN(t0) || math.IsInf(t0, 0) || math.IsInf(tf, 0) || !(tf > t0) {
		return fmt.Errorf("%w: time span [%g, %g]", dynamo.ErrInvalidConfig, t0, tf)
	}
	return nil
}

func counted(rhs RHSFunc, st *Stats) RHSFunc {
	return func(t float64, x dynamo.State) (dynamo.State, error) {
		st.Evaluations++
		return rhs(t, x)
	}
}
