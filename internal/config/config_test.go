package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/history"
	"github.com/san-kum/rflf/internal/integrators"
	"github.com/san-kum/rflf/internal/memory"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Stepper != "rk45" {
		t.Errorf("expected stepper rk45, got %s", cfg.Stepper)
	}
	if cfg.Tf <= cfg.T0 {
		t.Error("tf should exceed t0")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	dc, err := cfg.DriverConfig()
	if err != nil {
		t.Fatalf("driver config: %v", err)
	}
	if dc.Quadrature.Tail != memory.TailLinear || dc.Quadrature.MaxTail != memory.DefaultMaxTail {
		t.Errorf("default quadrature leaves the tail unbounded: %+v", dc.Quadrature)
	}
	for _, name := range ListPresets() {
		if p := GetPreset(name); p.Quadrature.MaxTail <= 0 {
			t.Errorf("preset %s has max tail %g", name, p.Quadrature.MaxTail)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	cfg := GetPreset("oscillator")
	cfg.SetParam("omega", 3)
	cfg.Quadrature.MaxTail = 0.1

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(path, []byte("tf: 2\ns0: [3]\nsystem:\n  forward: s\n"), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Tf != 2 || !reflect.DeepEqual(got.S0, []float64{3}) {
		t.Errorf("file values lost: tf=%g s0=%v", got.Tf, got.S0)
	}
	if got.Atol != DefaultAtol || got.Quadrature.Resolution != memory.DefaultResolution {
		t.Errorf("defaults not kept: atol=%g resolution=%g", got.Atol, got.Quadrature.Resolution)
	}
	if got.System.Forward != "s" || got.System.Kernel != "" || got.System.Params != nil {
		t.Errorf("file system merged with default: %+v", got.System)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDriverConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interpolation = "linear"
	cfg.Quadrature.Rule = "trapezoid"
	cfg.Quadrature.Tail = "linear"
	cfg.Quadrature.Verify = true

	dc, err := cfg.DriverConfig()
	if err != nil {
		t.Fatal(err)
	}
	if dc.Interpolation != history.Linear || dc.Quadrature.Rule != memory.Trapezoid || dc.Quadrature.Tail != memory.TailLinear {
		t.Errorf("enums not parsed: %+v", dc)
	}
	if !dc.VerifyQuadrature || dc.AbsTol != cfg.Atol || dc.Tf != cfg.Tf {
		t.Errorf("fields not copied: %+v", dc)
	}

	dc.S0[0] = 42
	if cfg.S0[0] == 42 {
		t.Error("driver config shares s0 with the file config")
	}
}

func TestBuildStepper(t *testing.T) {
	tests := []struct {
		name string
		want integrators.Stepper
	}{
		{"", integrators.NewRK45()},
		{"rk45", integrators.NewRK45()},
		{"rk4", integrators.NewRK4()},
		{"euler", integrators.NewEuler()},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Stepper = tt.name
		got, err := cfg.BuildStepper()
		if err != nil {
			t.Fatalf("%q: %v", tt.name, err)
		}
		if reflect.TypeOf(got) != reflect.TypeOf(tt.want) {
			t.Errorf("%q: got %T, want %T", tt.name, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty span", func(c *Config) { c.Tf = c.T0 }},
		{"empty state", func(c *Config) { c.S0 = nil }},
		{"unknown stepper", func(c *Config) { c.Stepper = "leapfrog" }},
		{"unknown rule", func(c *Config) { c.Quadrature.Rule = "gauss" }},
		{"unknown tail", func(c *Config) { c.Quadrature.Tail = "cubic" }},
		{"unknown interpolation", func(c *Config) { c.Interpolation = "spline" }},
		{"bad expression", func(c *Config) { c.System.Forward = "s.map(" }},
		{"zero resolution", func(c *Config) { c.Quadrature.Resolution = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, dynamo.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestPresetsCompile(t *testing.T) {
	for _, name := range ListPresets() {
		t.Run(name, func(t *testing.T) {
			cfg := GetPreset(name)
			if cfg.Name != name {
				t.Errorf("preset name = %q", cfg.Name)
			}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("preset invalid: %v", err)
			}
			sys, err := cfg.BuildSystem()
			if err != nil {
				t.Fatal(err)
			}
			dx, err := sys.Forward(dynamo.State(cfg.S0), cfg.T0)
			if err != nil || len(dx) != len(cfg.S0) {
				t.Errorf("forward at s0 = %v, %v", dx, err)
			}
		})
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("relaxation")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Quadrature.Tail != "linear" || cfg.Quadrature.Tolerance != memory.DefaultTolerance {
		t.Errorf("preset defaults not applied: %+v", cfg.Quadrature)
	}

	cfg.S0[0] = 99
	cfg.SetParam("delta", 7)
	again := GetPreset("relaxation")
	if again.S0[0] == 99 || again.System.Params["delta"] == 7 {
		t.Error("GetPreset returned shared state")
	}

	if GetPreset("nonexistent") != nil {
		t.Error("expected nil for nonexistent preset")
	}
}

func TestListPresets(t *testing.T) {
	names := ListPresets()
	want := []string{"decay", "memory", "noisy", "oscillator", "relaxation"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("ListPresets() = %v, want %v", names, want)
	}
}
