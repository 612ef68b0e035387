package analysis

import (
	"fmt"
	"math"

	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/history"
)

// Resample interpolates a trajectory onto n uniformly spaced times covering
// [times[0], times[len-1]].
func Resample(times []float64, states []dynamo.State, n int, interp history.Interpolation) ([]float64, []dynamo.State, error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 points, got %d", dynamo.ErrInvalidConfig, n)
	}
	store, err := history.FromTrajectory(times, states, interp)
	if err != nil {
		return nil, nil, err
	}
	if store.Len() < 2 {
		return nil, nil, fmt.Errorf("%w: trajectory has %d samples", dynamo.ErrInvalidConfig, store.Len())
	}

	t0, t1 := store.FirstTime(), store.LastTime()
	dt := (t1 - t0) / float64(n-1)
	outT := make([]float64, n)
	outS := make([]dynamo.State, n)
	for i := range outT {
		tau := math.Min(t0+float64(i)*dt, t1)
		if i == n-1 {
			tau = t1
		}
		s, err := store.Query(tau)
		if err != nil {
			return nil, nil, err
		}
		outT[i], outS[i] = tau, s
	}
	return outT, outS, nil
}

// Component extracts one state component from a trajectory.
func Component(states []dynamo.State, k int) []float64 {
	out := make([]float64, len(states))
	for i, s := range states {
		if k < len(s) {
			out[i] = s[k]
		}
	}
	return out
}

// Summary holds simple statistics of one component.
type Summary struct {
	Min, Max  float64
	Final     float64
	Crossings int
}

// Summarize reports range, final value and sign changes of one component.
func Summarize(states []dynamo.State, k int) Summary {
	vals := Component(states, k)
	if len(vals) == 0 {
		return Summary{}
	}
	sum := Summary{Min: vals[0], Max: vals[0], Final: vals[len(vals)-1]}
	for i, v := range vals {
		sum.Min = math.Min(sum.Min, v)
		sum.Max = math.Max(sum.Max, v)
		if i > 0 && (v > 0) != (vals[i-1] > 0) && v != 0 && vals[i-1] != 0 {
			sum.Crossings++
		}
	}
	return sum
}
