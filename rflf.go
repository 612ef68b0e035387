// Package rflf integrates retarded functional feedback systems
//
//	ds/dt = F(s, t) + ∫ K(t-τ) G(s(τ)) dτ + η(s, t)
//
// with an adaptive Dormand-Prince driver over a dense, accepted-only
// history. The integral runs from cfg.T0 to t.
package rflf

import (
	"context"

	"github.com/san-kum/rflf/internal/driver"
	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/history"
	"github.com/san-kum/rflf/internal/memory"
)

type (
	State        = dynamo.State
	ForwardFunc  = dynamo.ForwardFunc
	FeedbackFunc = dynamo.FeedbackFunc
	KernelFunc   = dynamo.KernelFunc
	NoiseFunc    = dynamo.NoiseFunc
	Config       = driver.Config
	Result       = driver.Result
	Option       = driver.Option
	Status       = driver.Status

	// QuadratureOptions is the type of Config.Quadrature.
	QuadratureOptions = memory.Options
	Rule              = memory.Rule
	TailPolicy        = memory.TailPolicy
	Interpolation     = history.Interpolation
)

const (
	Completed = driver.Completed
	Failed    = driver.Failed
	Cancelled = driver.Cancelled

	Simpson   = memory.Simpson
	Trapezoid = memory.Trapezoid

	TailZero   = memory.TailZero
	TailLinear = memory.TailLinear

	Linear = history.Linear
	Cubic  = history.Cubic

	DefaultMaxTail = memory.DefaultMaxTail
)

var (
	WithLogger   = driver.WithLogger
	WithTracer   = driver.WithTracer
	WithObserver = driver.WithObserver
	WithMetric   = driver.WithMetric
)

// DefaultConfig returns tolerances and quadrature settings suitable for most
// systems. S0 must still be set.
func DefaultConfig() Config { return driver.DefaultConfig() }

// Integrate solves the system over [cfg.T0, cfg.Tf] starting from cfg.S0.
// A nil eta is the zero perturbation. K and G are both nil for a system
// without memory.
//
// The result is non-nil whenever integration started; on failure it holds
// the accepted prefix. Cancelling ctx stops the run with status Cancelled
// and a nil error.
func Integrate(ctx context.Context, F ForwardFunc, G FeedbackFunc, K KernelFunc, eta NoiseFunc, cfg Config, opts ...Option) (*Result, error) {
	sys := dynamo.System{
		Forward:  F,
		Feedback: G,
		Kernel:   K,
		Noise:    eta,
	}
	return driver.New(sys, opts...).Integrate(ctx, cfg)
}
