package integrators

import "github.com/san-kum/rflf/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(rhs RHSFunc, x dynamo.State, t, dt float64) (dynamo.State, error) {
	dx, err := rhs(t, x)
	if err != nil {
		return nil, err
	}
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result, nil
}

func (e *Euler) Integrate(rhs RHSFunc, accept AcceptFunc, t0, tf float64, x0 dynamo.State, opts Options) (Stats, error) {
	return integrateFixed(e.Step, rhs, accept, t0, tf, x0, opts)
}
