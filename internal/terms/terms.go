// Package terms provides building blocks for systems: kernels, feedback
// maps, forward terms and a reproducible perturbation.
package terms

import (
	"math"
	"math/rand/v2"

	"github.com/san-kum/rflf/internal/dynamo"
)

// Exponential returns K(Δt) = exp(-delta·Δt).
func Exponential(delta float64) dynamo.KernelFunc {
	return func(dt float64) float64 { return math.Exp(-delta * dt) }
}

// Zero is the kernel K ≡ 0.
func Zero() dynamo.KernelFunc {
	return func(float64) float64 { return 0 }
}

// Linear returns G(s) = gain·s.
func Linear(gain float64) dynamo.FeedbackFunc {
	return func(s dynamo.State) (dynamo.State, error) {
		return s.Scale(gain), nil
	}
}

// Decay returns F(s, t) = -rate·s.
func Decay(rate float64) dynamo.ForwardFunc {
	return func(s dynamo.State, t float64) (dynamo.State, error) {
		return s.Scale(-rate), nil
	}
}

// Null returns F(s, t) = 0.
func Null() dynamo.ForwardFunc {
	return func(s dynamo.State, t float64) (dynamo.State, error) {
		return dynamo.Zeros(len(s)), nil
	}
}

// DefaultNoiseInterval is the hold time of GaussianNoise.
const DefaultNoiseInterval = 0.1

// GaussianNoise returns η(s, t) with independent N(0, scale²) components,
// held constant over windows of length interval. The value depends only on
// seed and the window containing t, so trial evaluations and reruns see the
// same perturbation in any call order.
func GaussianNoise(scale float64, seed uint64, interval float64) dynamo.NoiseFunc {
	if interval <= 0 {
		interval = DefaultNoiseInterval
	}
	return func(s dynamo.State, t float64) (dynamo.State, error) {
		window := int64(math.Floor(t / interval))
		rng := rand.New(rand.NewPCG(seed, uint64(window)))
		out := make(dynamo.State, len(s))
		for i := range out {
			out[i] = scale * rng.NormFloat64()
		}
		return out, nil
	}
}
