package config

import (
	"slices"

	"github.com/san-kum/rflf/internal/expr"
)

var Presets = map[string]*Config{
	// F = -s with no memory.
	"decay": {
		Stepper: "rk45", Tf: 5, S0: []float64{1},
		System: expr.Spec{Forward: "s.map(x, -x)"},
	},
	"memory": DefaultConfig(),
	// s' = ∫ e^{-δ(t-τ)} s(τ) dτ, known in closed form.
	"relaxation": {
		Stepper: "rk45", Tf: 3, S0: []float64{1}, MaxStep: 0.05,
		System: expr.Spec{
			Forward:  "s.map(x, 0.0)",
			Feedback: "s",
			Kernel:   "exp(-p.delta * dt)",
			Params:   map[string]float64{"delta": 2},
		},
		Quadrature: QuadratureConfig{Resolution: 0.005, Tail: "linear"},
	},
	// Harmonic oscillator with retarded friction.
	"oscillator": {
		Stepper: "rk45", Tf: 20, S0: []float64{1, 0},
		System: expr.Spec{
			Forward:  "[s[1], -p.omega * p.omega * s[0]]",
			Feedback: "[0.0, -p.gamma * s[1]]",
			Kernel:   "exp(-dt / p.tau)",
			Params:   map[string]float64{"omega": 2, "gamma": 0.5, "tau": 0.5},
		},
		Quadrature: QuadratureConfig{Timescale: 0.5},
	},
	"noisy": {
		Stepper: "rk45", Tf: 10, S0: []float64{1, 0}, Atol: 1e-6, Rtol: 1e-4,
		System: expr.Spec{
			Forward:    "s.map(x, -x)",
			Feedback:   "s.map(x, p.gain * x)",
			Kernel:     "exp(-p.delta * dt)",
			Params:     map[string]float64{"gain": 0.1, "delta": 0.5},
			NoiseScale: 0.01,
			Seed:       1,
		},
	},
}

func init() {
	for name, p := range Presets {
		p.Name = name
		applyDefaults(p)
	}
}

// applyDefaults fills zero fields of a preset from DefaultConfig.
func applyDefaults(c *Config) {
	def := DefaultConfig()
	if c.Atol == 0 {
		c.Atol = def.Atol
	}
	if c.Rtol == 0 {
		c.Rtol = def.Rtol
	}
	if c.Interpolation == "" {
		c.Interpolation = def.Interpolation
	}
	q := &c.Quadrature
	if q.Resolution == 0 {
		q.Resolution = def.Quadrature.Resolution
	}
	if q.Rule == "" {
		q.Rule = def.Quadrature.Rule
	}
	if q.Tail == "" {
		q.Tail = def.Quadrature.Tail
	}
	if q.MaxTail == 0 {
		q.MaxTail = def.Quadrature.MaxTail
	}
	if q.Tolerance == 0 {
		q.Tolerance = def.Quadrature.Tolerance
	}
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Config {
	cfg, ok := Presets[name]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
