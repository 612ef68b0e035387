package dynamo

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

type State []float64

func Zeros(n int) State {
	return make(State, n)
}

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	if len(s) == 0 {
		return 0
	}
	return floats.Norm(s, 2)
}

func (s State) Add(other State) State {
	result := s.Clone()
	floats.Add(result, other)
	return result
}

func (s State) Sub(other State) State {
	result := s.Clone()
	floats.Sub(result, other)
	return result
}

func (s State) Scale(factor float64) State {
	result := s.Clone()
	floats.Scale(factor, result)
	return result
}

// AddScaled returns s + alpha*other.
func (s State) AddScaled(alpha float64, other State) State {
	result := s.Clone()
	floats.AddScaled(result, alpha, other)
	return result
}

// ForwardFunc is the instantaneous dynamics F(s, t).
type ForwardFunc func(s State, t float64) (State, error)

// FeedbackFunc is the observable G(s) fed into the memory integral. It sees a
// single state and never the history.
type FeedbackFunc func(s State) (State, error)

// KernelFunc is the memory weight K(dt), defined for dt >= 0.
type KernelFunc func(dt float64) float64

// NoiseFunc is the perturbation term η(s, t).
type NoiseFunc func(s State, t float64) (State, error)

// System bundles the user-supplied terms of
//
//	ds/dt = F(s,t) + ∫ K(t-τ) G(s(τ)) dτ + η(s,t)
//
// Feedback and Kernel are either both set or both nil; nil drops the memory
// term. A nil Noise is the zero vector.
type System struct {
	Forward  ForwardFunc
	Feedback FeedbackFunc
	Kernel   KernelFunc
	Noise    NoiseFunc
}

func (s System) HasMemory() bool {
	return s.Kernel != nil && s.Feedback != nil
}

func (s System) Validate() error {
	if s.Forward == nil {
		return fmt.Errorf("%w: forward function is required", ErrInvalidConfig)
	}
	if (s.Kernel == nil) != (s.Feedback == nil) {
		return fmt.Errorf("%w: kernel and feedback must be set together", ErrInvalidConfig)
	}
	return nil
}
