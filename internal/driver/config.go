package driver

import (
	"fmt"
	"math"

	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/history"
	"github.com/san-kum/rflf/internal/integrators"
	"github.com/san-kum/rflf/internal/memory"
)

// Config describes one integration run.
type Config struct {
	T0 float64
	Tf float64
	S0 dynamo.State

	AbsTol float64
	RelTol float64
	// MaxStep of zero leaves the step unbounded.
	MaxStep     float64
	MinStep     float64
	InitialStep float64
	MaxSteps    int

	Quadrature    memory.Options
	Interpolation history.Interpolation
	// VerifyQuadrature re-evaluates the memory integral at Tf with half the
	// grid spacing once the run completes and logs a warning on mismatch.
	VerifyQuadrature bool
}

func DefaultConfig() Config {
	return Config{
		T0:            0,
		Tf:            10,
		AbsTol:        1e-8,
		RelTol:        1e-6,
		Quadrature:    memory.DefaultOptions(),
		Interpolation: history.Cubic,
	}
}

func (c Config) stepperOptions() integrators.Options {
	maxStep := c.MaxStep
	if maxStep == 0 {
		maxStep = math.Inf(1)
	}
	return integrators.Options{
		AbsTol:      c.AbsTol,
		RelTol:      c.RelTol,
		InitialStep: c.InitialStep,
		MaxStep:     maxStep,
		MinStep:     c.MinStep,
		MaxSteps:    c.MaxSteps,
	}
}

func validateConfig(cfg Config, sys dynamo.System) error {
	if err := sys.Validate(); err != nil {
		return err
	}
	if math.IsNaN(cfg.T0) || math.IsInf(cfg.T0, 0) || math.IsInf(cfg.Tf, 0) || !(cfg.Tf > cfg.T0) {
		return fmt.Errorf("%w: time span [%g, %g]", dynamo.ErrInvalidConfig, cfg.T0, cfg.Tf)
	}
	if len(cfg.S0) == 0 {
		return fmt.Errorf("%w: initial state is empty", dynamo.ErrInvalidConfig)
	}
	if !cfg.S0.IsValid() {
		return fmt.Errorf("%w: initial state %v", dynamo.ErrInvalidState, cfg.S0)
	}
	if cfg.MaxStep < 0 {
		return fmt.Errorf("%w: max step must be non-negative, got %g", dynamo.ErrInvalidConfig, cfg.MaxStep)
	}
	if err := cfg.stepperOptions().Validate(); err != nil {
		return err
	}
	if sys.HasMemory() {
		if err := cfg.Quadrature.Validate(); err != nil {
			return err
		}
	}
	return nil
}
