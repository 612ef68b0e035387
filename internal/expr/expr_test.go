package expr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/san-kum/rflf/internal/driver"
	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/terms"
)

func TestCompileEvaluatesTerms(t *testing.T) {
	sys, err := Compile(Spec{
		Forward:  "s.map(x, -p.rate * x)",
		Feedback: "[p.gain * s[0], tanh(s[1])]",
		Kernel:   "exp(-p.delta * dt)",
		Noise:    "[0.0, sin(t)]",
		Params:   map[string]float64{"rate": 2, "gain": 0.5, "delta": 1.5},
	})
	if err != nil {
		t.Fatal(err)
	}

	s := dynamo.State{1, 0.5}

	f, err := sys.Forward(s, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f[0] != -2 || f[1] != -1 {
		t.Errorf("F = %v, want [-2 -1]", f)
	}

	g, err := sys.Feedback(s)
	if err != nil {
		t.Fatal(err)
	}
	if g[0] != 0.5 || math.Abs(g[1]-math.Tanh(0.5)) > 1e-15 {
		t.Errorf("G = %v", g)
	}

	if k := sys.Kernel(2); math.Abs(k-math.Exp(-3)) > 1e-15 {
		t.Errorf("K(2) = %g, want %g", k, math.Exp(-3))
	}

	eta, err := sys.Noise(s, math.Pi/2)
	if err != nil {
		t.Fatal(err)
	}
	if eta[0] != 0 || math.Abs(eta[1]-1) > 1e-15 {
		t.Errorf("η = %v", eta)
	}
}

func TestCompileConvertsIntegers(t *testing.T) {
	sys, err := Compile(Spec{Forward: "[0, 1]"})
	if err != nil {
		t.Fatal(err)
	}
	f, err := sys.Forward(dynamo.State{3, 4}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f[0] != 0 || f[1] != 1 {
		t.Errorf("F = %v, want [0 1]", f)
	}
	if sys.HasMemory() || sys.Noise != nil {
		t.Error("unexpected memory or noise term")
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{"missing forward", Spec{}},
		{"syntax", Spec{Forward: "s.map(x, "}},
		{"unknown variable", Spec{Forward: "[y]"}},
		{"unknown function", Spec{Forward: "[erf(t)]"}},
		{"feedback without kernel", Spec{Forward: "s", Feedback: "s"}},
		{"bad kernel", Spec{Forward: "s", Feedback: "s", Kernel: "exp(dt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.spec); !errors.Is(err, dynamo.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestRuntimeErrors(t *testing.T) {
	sys, err := Compile(Spec{
		Forward:  "t > 1.0 ? [p.missing] : s",
		Feedback: "s",
		Kernel:   "p.missing * dt",
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := sys.Forward(dynamo.State{1}, 0); err != nil {
		t.Errorf("forward before t=1: %v", err)
	}
	if _, err := sys.Forward(dynamo.State{1}, 2); err == nil {
		t.Error("expected missing key error")
	}
	if k := sys.Kernel(1); !math.IsNaN(k) {
		t.Errorf("failing kernel = %g, want NaN", k)
	}

	scalar, err := Compile(Spec{Forward: "t"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := scalar.Forward(dynamo.State{1}, 0); err == nil {
		t.Error("expected error for non-list forward")
	}
}

func TestSeededNoise(t *testing.T) {
	spec := Spec{Forward: "s", NoiseScale: 0.01, Seed: 9}
	a, _ := Compile(spec)
	b, _ := Compile(spec)

	x, _ := a.Noise(dynamo.State{0, 0}, 0.3)
	y, _ := b.Noise(dynamo.State{0, 0}, 0.3)
	if x[0] != y[0] || x[1] != y[1] {
		t.Errorf("seeded noise differs: %v vs %v", x, y)
	}

	spec.Noise = "[1.0, 1.0]"
	c, _ := Compile(spec)
	z, err := c.Noise(dynamo.State{0, 0}, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if z[0] != 1+x[0] || z[1] != 1+x[1] {
		t.Errorf("combined noise = %v, want 1 + %v", z, x)
	}
}

func TestMatchesTermLibrary(t *testing.T) {
	compiled, err := Compile(Spec{
		Forward:  "s.map(x, -x)",
		Feedback: "s.map(x, p.gain * x)",
		Kernel:   "exp(-p.delta * dt)",
		Params:   map[string]float64{"gain": 0.1, "delta": 0.5},
	})
	if err != nil {
		t.Fatal(err)
	}
	native := dynamo.System{
		Forward:  terms.Decay(1),
		Feedback: terms.Linear(0.1),
		Kernel:   terms.Exponential(0.5),
	}

	cfg := driver.DefaultConfig()
	cfg.Tf = 3
	cfg.S0 = dynamo.State{1, -0.5}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := driver.New(compiled, driver.WithLogger(logger)).Integrate(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := driver.New(native, driver.WithLogger(logger)).Integrate(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	_, sa := a.Final()
	_, sb := b.Final()
	if d := sa.Sub(sb).Norm(); d > 1e-10 {
		t.Errorf("compiled and native systems differ by %e", d)
	}
}
