package history

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/san-kum/rflf/internal/dynamo"
)

// Interpolation selects how Query fills the gap between accepted samples.
type Interpolation int

const (
	// Linear uses the two bracketing samples.
	Linear Interpolation = iota
	// Cubic uses a Lagrange polynomial through the four nearest samples and
	// falls back to Linear while fewer than four samples exist.
	Cubic
)

func (i Interpolation) String() string {
	switch i {
	case Linear:
		return "linear"
	case Cubic:
		return "cubic"
	default:
		return fmt.Sprintf("interpolation(%d)", int(i))
	}
}

// ParseInterpolation maps "linear" and "cubic" to their Interpolation.
func ParseInterpolation(name string) (Interpolation, error) {
	switch name {
	case "linear":
		return Linear, nil
	case "cubic", "":
		return Cubic, nil
	default:
		return Linear, fmt.Errorf("%w: unknown interpolation %q", dynamo.ErrInvalidConfig, name)
	}
}

// Sample is a (time, state) pair. Only accepted samples are ever stored;
// trial samples live for a single right-hand-side call.
type Sample struct {
	Time     float64
	State    dynamo.State
	Accepted bool
}

// Store is the append-only record of accepted samples of one run.
//
// Queries may run concurrently with each other; Record is exclusive with
// every query.
type Store struct {
	mu     sync.RWMutex
	times  []float64
	states []dynamo.State
	dim    int
	interp Interpolation
}

func New(interp Interpolation) *Store {
	return &Store{interp: interp}
}

// FromTrajectory builds a store from an already accepted trajectory.
func FromTrajectory(times []float64, states []dynamo.State, interp Interpolation) (*Store, error) {
	if len(times) != len(states) {
		return nil, fmt.Errorf("%w: %d times, %d states", dynamo.ErrDimensionMismatch, len(times), len(states))
	}
	s := New(interp)
	for i := range times {
		if err := s.Record(times[i], states[i]); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
	}
	return s, nil
}

// Record appends an accepted sample. t must be strictly greater than the
// last recorded time.
func (s *Store) Record(t float64, x dynamo.State) error {
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("%w: time %g", dynamo.ErrInvalidState, t)
	}
	if !x.IsValid() {
		return fmt.Errorf("%w at t=%g", dynamo.ErrInvalidState, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.times)
	if n == 0 {
		s.dim = len(x)
	} else {
		if t <= s.times[n-1] {
			return &dynamo.OrderError{Time: t, Last: s.times[n-1]}
		}
		if len(x) != s.dim {
			return fmt.Errorf("%w: got %d components, want %d", dynamo.ErrDimensionMismatch, len(x), s.dim)
		}
	}

	s.times = append(s.times, t)
	s.states = append(s.states, x.Clone())
	return nil
}

func (s *Store) Query(tau float64) (dynamo.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dst := make(dynamo.State, s.dim)
	if err := s.queryLocked(dst, tau); err != nil {
		return nil, err
	}
	return dst, nil
}

// QueryInto writes the state at tau into dst, which must have the store's
// dimension.
func (s *Store) QueryInto(dst dynamo.State, tau float64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(dst, tau)
}

func (s *Store) queryLocked(dst dynamo.State, tau float64) error {
	n := len(s.times)
	if n == 0 {
		return &dynamo.RangeError{Time: tau, Start: math.NaN(), End: math.NaN()}
	}
	if math.IsNaN(tau) || tau < s.times[0] || tau > s.times[n-1] {
		return &dynamo.RangeError{Time: tau, Start: s.times[0], End: s.times[n-1]}
	}
	if len(dst) != s.dim {
		return fmt.Errorf("%w: destination has %d components, want %d", dynamo.ErrDimensionMismatch, len(dst), s.dim)
	}

	i := sort.SearchFloat64s(s.times, tau)
	if s.times[i] == tau {
		copy(dst, s.states[i])
		return nil
	}

	// times[i-1] < tau < times[i]
	if s.interp == Cubic && n >= 4 {
		s.cubic(dst, tau, i)
	} else {
		s.linear(dst, tau, i)
	}
	return nil
}

func (s *Store) linear(dst dynamo.State, tau float64, hi int) {
	lo := hi - 1
	t0, t1 := s.times[lo], s.times[hi]
	w := (tau - t0) / (t1 - t0)
	x0, x1 := s.states[lo], s.states[hi]
	for k := range dst {
		dst[k] = x0[k] + w*(x1[k]-x0[k])
	}
}

// cubic evaluates the Lagrange polynomial through the window of four
// samples centred on the bracket [hi-1, hi], shifted inward at the ends.
func (s *Store) cubic(dst dynamo.State, tau float64, hi int) {
	start := hi - 2
	if start < 0 {
		start = 0
	}
	if start > len(s.times)-4 {
		start = len(s.times) - 4
	}

	var w [4]float64
	for j := 0; j < 4; j++ {
		xj := s.times[start+j]
		wj := 1.0
		for m := 0; m < 4; m++ {
			if m == j {
				continue
			}
			xm := s.times[start+m]
			wj *= (tau - xm) / (xj - xm)
		}
		w[j] = wj
	}

	for k := range dst {
		v := 0.0
		for j := 0; j < 4; j++ {
			v += w[j] * s.states[start+j][k]
		}
		dst[k] = v
	}
}

// FirstTime returns t0, or +Inf for an empty store.
func (s *Store) FirstTime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.times) == 0 {
		return math.Inf(1)
	}
	return s.times[0]
}

// LastTime returns the most recently accepted time, or -Inf for an empty store.
func (s *Store) LastTime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.times) == 0 {
		return math.Inf(-1)
	}
	return s.times[len(s.times)-1]
}

// Last returns a copy of the most recent sample.
func (s *Store) Last() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.times)
	if n == 0 {
		return Sample{}, false
	}
	return Sample{Time: s.times[n-1], State: s.states[n-1].Clone(), Accepted: true}, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.times)
}

func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

func (s *Store) Interpolation() Interpolation { return s.interp }

func (s *Store) Times() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.times))
	copy(out, s.times)
	return out
}

func (s *Store) States() []dynamo.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]dynamo.State, len(s.states))
	for i, x := range s.states {
		out[i] = x.Clone()
	}
	return out
}
