package automation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/rflf/internal/config"
	"github.com/san-kum/rflf/internal/driver"
	"github.com/san-kum/rflf/internal/dynamo"
)

// Scenario defines a scripted sequence of runs
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Steps       []Step `yaml:"steps"`
}

// Step is a single run in a scenario. It starts from a preset or a config
// file and overrides the fields that are set.
type Step struct {
	Preset  string             `yaml:"preset"`
	Config  string             `yaml:"config"`
	Stepper string             `yaml:"stepper"`
	Tf      float64            `yaml:"tf"`
	S0      []float64          `yaml:"s0"`
	Seed    uint64             `yaml:"seed"`
	Params  map[string]float64 `yaml:"params"`
	SaveAs  string             `yaml:"save_as"`
}

// LoadScenario loads a scenario from a YAML file. Config paths in steps are
// relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("%w: scenario %s has no steps", dynamo.ErrInvalidConfig, path)
	}

	dir := filepath.Dir(path)
	for i := range scenario.Steps {
		if c := scenario.Steps[i].Config; c != "" && !filepath.IsAbs(c) {
			scenario.Steps[i].Config = filepath.Join(dir, c)
		}
	}
	return &scenario, nil
}

// Resolve builds the run configuration for the step.
func (s Step) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case s.Config != "":
		loaded, err := config.Load(s.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	case s.Preset != "":
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("%w: unknown preset %q", dynamo.ErrInvalidConfig, s.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	if s.Stepper != "" {
		cfg.Stepper = s.Stepper
	}
	if s.Tf != 0 {
		cfg.Tf = s.Tf
	}
	if len(s.S0) > 0 {
		cfg.S0 = append([]float64(nil), s.S0...)
	}
	if s.Seed != 0 {
		cfg.System.Seed = s.Seed
	}
	for k, v := range s.Params {
		cfg.SetParam(k, v)
	}
	if s.SaveAs != "" {
		cfg.Name = s.SaveAs
	}
	return cfg, cfg.Validate()
}

// RunFunc integrates one resolved configuration.
type RunFunc func(ctx context.Context, cfg *config.Config) (*driver.Result, error)

type StepResult struct {
	Config *config.Config
	Result *driver.Result
}

// RunScenario executes the steps in order and stops at the first step that
// cannot be resolved or does not complete. The partial results are returned
// with the error.
func RunScenario(ctx context.Context, scenario *Scenario, run RunFunc) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		cfg, err := step.Resolve()
		if err != nil {
			return results, fmt.Errorf("step %d: %w", i+1, err)
		}
		slog.Info("scenario step", "scenario", scenario.Name, "step", i+1, "of", len(scenario.Steps), "name", cfg.Name)

		res, err := run(ctx, cfg)
		if res != nil {
			results = append(results, StepResult{Config: cfg, Result: res})
		}
		if err != nil {
			return results, fmt.Errorf("step %d run: %w", i+1, err)
		}
		if res.Status != driver.Completed {
			return results, fmt.Errorf("step %d: run %s", i+1, res.Status)
		}
	}

	return results, nil
}

// MonteCarloConfig defines Monte Carlo simulation parameters
type MonteCarloConfig struct {
	Base *config.Config
	// Perturbation is the half-width of the uniform noise added to each
	// component of S0.
	Perturbation float64
	Trials       int
	Seed         uint64
	// Threshold bounds every component of a stable final state.
	Threshold float64
	Workers   int
}

// MonteCarloResult holds the outcome of one trial
type MonteCarloResult struct {
	Trial  int
	S0     dynamo.State
	Final  dynamo.State
	Status driver.Status
	Stable bool
	Err    error
}

// PerturbedStates draws the initial states of every trial. Trial i depends
// only on seed and i.
func PerturbedStates(base []float64, perturbation float64, seed uint64, trials int) []dynamo.State {
	out := make([]dynamo.State, trials)
	for trial := range out {
		rng := rand.New(rand.NewPCG(seed, uint64(trial)))
		s := make(dynamo.State, len(base))
		for i, v := range base {
			s[i] = v + (rng.Float64()-0.5)*2*perturbation
		}
		out[trial] = s
	}
	return out
}

// RunMonteCarlo runs trials in parallel from perturbed initial states.
func RunMonteCarlo(ctx context.Context, mc MonteCarloConfig, opts ...driver.Option) ([]MonteCarloResult, error) {
	if mc.Base == nil || mc.Trials < 1 {
		return nil, fmt.Errorf("%w: monte carlo needs a base config and at least one trial", dynamo.ErrInvalidConfig)
	}
	threshold := mc.Threshold
	if threshold <= 0 {
		threshold = 1e6
	}

	sys, err := mc.Base.BuildSystem()
	if err != nil {
		return nil, err
	}
	dc, err := mc.Base.DriverConfig()
	if err != nil {
		return nil, err
	}

	inits := PerturbedStates(mc.Base.S0, mc.Perturbation, mc.Seed, mc.Trials)
	jobs := make([]driver.Job, mc.Trials)
	for trial, s0 := range inits {
		st, err := mc.Base.BuildStepper()
		if err != nil {
			return nil, err
		}
		cfg := dc
		cfg.S0 = s0
		jobs[trial] = driver.Job{
			Name:    fmt.Sprintf("trial-%d", trial),
			System:  sys,
			Config:  cfg,
			Options: []driver.Option{driver.WithStepper(st)},
		}
	}

	runs, _ := driver.NewEnsemble(mc.Workers, opts...).Run(ctx, jobs)

	results := make([]MonteCarloResult, mc.Trials)
	for trial, res := range runs {
		r := MonteCarloResult{Trial: trial, S0: inits[trial]}
		if res != nil {
			r.Status = res.Status
			r.Err = res.Err
			_, r.Final = res.Final()
			r.Stable = res.Status == driver.Completed && bounded(r.Final, threshold)
		}
		results[trial] = r
	}
	return results, nil
}

func bounded(s dynamo.State, threshold float64) bool {
	for _, v := range s {
		if math.IsNaN(v) || math.Abs(v) > threshold {
			return false
		}
	}
	return true
}

// MonteCarloStats computes summary statistics from Monte Carlo results
func MonteCarloStats(results []MonteCarloResult) (stableCount int, unstableCount int) {
	for _, r := range results {
		if r.Stable {
			stableCount++
		} else {
			unstableCount++
		}
	}
	return
}
