package config

import (
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/rflf/internal/driver"
	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/expr"
	"github.com/san-kum/rflf/internal/history"
	"github.com/san-kum/rflf/internal/integrators"
	"github.com/san-kum/rflf/internal/memory"
)

const (
	DefaultTf     = 10.0
	DefaultAtol   = 1e-8
	DefaultRtol   = 1e-6
	DefaultPreset = "memory"
)

type Config struct {
	Name        string    `yaml:"name"`
	Stepper     string    `yaml:"stepper"`
	System      expr.Spec `yaml:"system"`
	T0          float64   `yaml:"t0"`
	Tf          float64   `yaml:"tf"`
	S0          []float64 `yaml:"s0"`
	Atol        float64   `yaml:"atol"`
	Rtol        float64   `yaml:"rtol"`
	MaxStep     float64   `yaml:"max_step,omitempty"`
	MinStep     float64   `yaml:"min_step,omitempty"`
	InitialStep float64   `yaml:"initial_step,omitempty"`
	MaxSteps    int       `yaml:"max_steps,omitempty"`

	Interpolation string           `yaml:"interpolation"`
	Quadrature    QuadratureConfig `yaml:"quadrature"`
}

type QuadratureConfig struct {
	Resolution float64 `yaml:"resolution"`
	Rule       string  `yaml:"rule"`
	Tail       string  `yaml:"tail"`
	MaxTail    float64 `yaml:"max_tail"`
	Timescale  float64 `yaml:"timescale,omitempty"`
	Tolerance  float64 `yaml:"tolerance"`
	Verify     bool    `yaml:"verify,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:    DefaultPreset,
		Stepper: "rk45",
		System: expr.Spec{
			Forward:  "s.map(x, -x)",
			Feedback: "s.map(x, p.gain * x)",
			Kernel:   "exp(-p.delta * dt)",
			Params:   map[string]float64{"gain": 0.1, "delta": 0.5},
		},
		Tf:            DefaultTf,
		S0:            []float64{1, 0},
		Atol:          DefaultAtol,
		Rtol:          DefaultRtol,
		Interpolation: history.Cubic.String(),
		Quadrature: QuadratureConfig{
			Resolution: memory.DefaultResolution,
			Rule:       memory.Simpson.String(),
			Tail:       memory.TailLinear.String(),
			MaxTail:    memory.DefaultMaxTail,
			Tolerance:  memory.DefaultTolerance,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// A system in the file replaces the default one as a whole; decoding
	// onto it would merge the parameter maps.
	var probe struct {
		System *yaml.Node `yaml:"system"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if probe.System != nil {
		cfg.System = expr.Spec{}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.S0 = slices.Clone(c.S0)
	out.System.Params = maps.Clone(c.System.Params)
	return &out
}

// SetParam sets a system parameter, creating the map if needed.
func (c *Config) SetParam(name string, value float64) {
	if c.System.Params == nil {
		c.System.Params = make(map[string]float64)
	}
	c.System.Params[name] = value
}

func (c *Config) DriverConfig() (driver.Config, error) {
	interp, err := history.ParseInterpolation(c.Interpolation)
	if err != nil {
		return driver.Config{}, err
	}
	rule, err := memory.ParseRule(c.Quadrature.Rule)
	if err != nil {
		return driver.Config{}, err
	}
	tail, err := memory.ParseTailPolicy(c.Quadrature.Tail)
	if err != nil {
		return driver.Config{}, err
	}

	return driver.Config{
		T0:          c.T0,
		Tf:          c.Tf,
		S0:          dynamo.State(slices.Clone(c.S0)),
		AbsTol:      c.Atol,
		RelTol:      c.Rtol,
		MaxStep:     c.MaxStep,
		MinStep:     c.MinStep,
		InitialStep: c.InitialStep,
		MaxSteps:    c.MaxSteps,
		Quadrature: memory.Options{
			Resolution: c.Quadrature.Resolution,
			Rule:       rule,
			Tail:       tail,
			MaxTail:    c.Quadrature.MaxTail,
			Timescale:  c.Quadrature.Timescale,
			Tolerance:  c.Quadrature.Tolerance,
		},
		Interpolation:    interp,
		VerifyQuadrature: c.Quadrature.Verify,
	}, nil
}

func (c *Config) BuildSystem() (dynamo.System, error) {
	return expr.Compile(c.System)
}

func (c *Config) BuildStepper() (integrators.Stepper, error) {
	switch c.Stepper {
	case "rk45", "dopri", "":
		return integrators.NewRK45(), nil
	case "rk4":
		return integrators.NewRK4(), nil
	case "euler":
		return integrators.NewEuler(), nil
	default:
		return nil, fmt.Errorf("%w: unknown stepper %q", dynamo.ErrInvalidConfig, c.Stepper)
	}
}

// Validate checks everything that can be checked without running.
func (c *Config) Validate() error {
	if !(c.Tf > c.T0) {
		return fmt.Errorf("%w: tf %g must exceed t0 %g", dynamo.ErrInvalidConfig, c.Tf, c.T0)
	}
	if len(c.S0) == 0 {
		return fmt.Errorf("%w: s0 is empty", dynamo.ErrInvalidConfig)
	}
	if _, err := c.BuildStepper(); err != nil {
		return err
	}
	dc, err := c.DriverConfig()
	if err != nil {
		return err
	}
	sys, err := c.BuildSystem()
	if err != nil {
		return err
	}
	if sys.HasMemory() {
		if err := dc.Quadrature.Validate(); err != nil {
			return err
		}
	}
	return nil
}
