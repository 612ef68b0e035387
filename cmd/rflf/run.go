package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/rflf/internal/automation"
	"github.com/san-kum/rflf/internal/config"
	"github.com/san-kum/rflf/internal/driver"
	"github.com/san-kum/rflf/internal/metrics"
	"github.com/san-kum/rflf/internal/storage"
	"github.com/san-kum/rflf/internal/sweep"
	"github.com/san-kum/rflf/internal/tui"
)

const sweepDBName = "sweeps.sqlite3"

// prepared is everything needed to start one driver for cfg.
type prepared struct {
	cfg  *config.Config
	job  driver.Job
	opts []driver.Option
}

func prepare(cfg *config.Config) (*prepared, error) {
	sys, err := cfg.BuildSystem()
	if err != nil {
		return nil, err
	}
	st, err := cfg.BuildStepper()
	if err != nil {
		return nil, err
	}
	dc, err := cfg.DriverConfig()
	if err != nil {
		return nil, err
	}

	opts := []driver.Option{driver.WithStepper(st), driver.WithLogger(slog.Default())}
	for _, m := range metrics.Default(threshold) {
		opts = append(opts, driver.WithMetric(m))
	}
	return &prepared{
		cfg:  cfg,
		job:  driver.Job{Name: cfg.Name, System: sys, Config: dc, Options: opts},
		opts: opts,
	}, nil
}

func (p *prepared) run(ctx context.Context, extra ...driver.Option) (*driver.Result, error) {
	opts := append(p.opts[:len(p.opts):len(p.opts)], extra...)
	return driver.New(p.job.System, opts...).Integrate(ctx, p.job.Config)
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	p, err := prepare(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, runErr := p.run(ctx)
	return store(cmd.OutOrStdout(), cfg, res, runErr)
}

func watchSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	p, err := prepare(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var res *driver.Result
	var runErr error
	if plain || !isTerminal(os.Stdout) {
		r := tui.NewLiveRenderer(cmd.OutOrStdout(), cfg.Name, frameRate, true)
		r.Start()
		res, runErr = p.run(ctx, driver.WithObserver(r))
		r.Stop()
	} else {
		res, runErr = tui.Watch(ctx, cfg.Name, func(ctx context.Context, obs driver.Observer) (*driver.Result, error) {
			return p.run(ctx, driver.WithObserver(obs))
		})
	}
	return store(cmd.OutOrStdout(), cfg, res, runErr)
}

// store saves whatever the run produced, including failed and cancelled
// prefixes, then reports it.
func store(w io.Writer, cfg *config.Config, res *driver.Result, runErr error) error {
	if res == nil {
		return runErr
	}
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	id, err := st.Save(cfg, res)
	if err != nil {
		return errors.Join(runErr, fmt.Errorf("save run: %w", err))
	}
	slog.Info("run stored", "id", id, "status", res.Status, "samples", len(res.Times))
	printSummary(w, id, cfg, res)
	return runErr
}

func printSummary(w io.Writer, id string, cfg *config.Config, res *driver.Result) {
	status := res.Status.String()
	fmt.Fprintf(w, "%s  %s  %s\n", tui.Title(id), cfg.Name, tui.StatusStyle(status).Render(status))

	d := res.Diagnostics
	fmt.Fprintf(w, "  %s  %s  %s  %s\n",
		tui.Label("accepted", fmt.Sprint(d.Accepted)),
		tui.Label("rejected", fmt.Sprint(d.Rejected)),
		tui.Label("evals", fmt.Sprint(d.Evaluations)),
		tui.Label("elapsed", d.Elapsed.Round(time.Microsecond).String()),
	)
	if t, s := res.Final(); s != nil {
		fmt.Fprintf(w, "  %s  %s\n", tui.Label("t", fmt.Sprintf("%.6g", t)), tui.Label("s", formatState(s)))
	}

	names := make([]string, 0, len(res.Metrics))
	for name := range res.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", tui.Label(name, fmt.Sprintf("%.6g", res.Metrics[name])))
	}
}

func formatState(s []float64) string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

type axis struct {
	name   string
	values []float64
}

func parseVary(specs []string) ([]axis, error) {
	if len(specs) == 0 {
		return nil, errors.New("sweep: at least one --vary is required")
	}
	axes := make([]axis, 0, len(specs))
	for _, spec := range specs {
		name, rng, err := parseAssignment(spec)
		if err != nil {
			return nil, err
		}
		values, err := sweep.ParseRange(rng)
		if err != nil {
			return nil, err
		}
		axes = append(axes, axis{name: name, values: values})
	}
	return axes, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}
	axes, err := parseVary(vary)
	if err != nil {
		return err
	}
	names := make([]string, len(axes))
	ranges := make([][]float64, len(axes))
	for i, a := range axes {
		names[i] = a.name
		ranges[i] = a.values
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	pointConfig := func(values map[string]float64) *config.Config {
		cfg := base.Clone()
		for k, v := range values {
			cfg.SetParam(k, v)
		}
		return cfg
	}

	gs := sweep.NewGridSearch(names, ranges, workers)
	points, err := gs.Run(ctx, func(values map[string]float64) (driver.Job, error) {
		p, err := prepare(pointConfig(values))
		if err != nil {
			return driver.Job{}, err
		}
		return p.job, nil
	})
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	rec := storage.SweepRecord{Preset: base.Name, Metric: metric}
	for i, pt := range points {
		pr := storage.PointRecord{Index: i, Params: pt.Params, Value: math.NaN()}
		if pt.Result != nil {
			pr.Status = pt.Result.Status.String()
			if v, ok := pt.Result.Metrics[metric]; ok {
				pr.Value = v
			}
			id, err := st.Save(pointConfig(pt.Params), pt.Result)
			if err != nil {
				return fmt.Errorf("save point %d: %w", i, err)
			}
			pr.RunID = id
		} else {
			pr.Status = driver.Failed.String()
		}
		if pt.Err != nil {
			pr.Error = pt.Err.Error()
		}
		rec.Points = append(rec.Points, pr)
	}

	db := storage.NewSweepDB(filepath.Join(dataDir, sweepDBName))
	if err := db.Init(ctx); err != nil {
		return err
	}
	defer db.Close()
	id, err := db.Save(ctx, rec)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s  %s\n", tui.Title(id), base.Name, tui.Label("points", fmt.Sprint(len(points))))
	printPoints(out, rec.Points)
	if best, ok := sweep.Best(points, metric); ok {
		fmt.Fprintf(out, "\n%s %s (%s=%.6g)\n", tui.Title("best"), sweep.Label(best.Params), metric, best.Result.Metrics[metric])
	}
	return nil
}

func printPoints(out io.Writer, pts []storage.PointRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPARAMS\tSTATUS\tVALUE\tRUN")
	for _, p := range pts {
		val := "-"
		if !math.IsNaN(p.Value) {
			val = fmt.Sprintf("%.6g", p.Value)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.Index, sweep.Label(p.Params), p.Status, val, p.RunID)
	}
	w.Flush()
}

func listSweeps(cmd *cobra.Command, args []string) error {
	if err := storage.New(dataDir).Init(); err != nil {
		return err
	}
	db := storage.NewSweepDB(filepath.Join(dataDir, sweepDBName))
	if err := db.Init(cmd.Context()); err != nil {
		return err
	}
	defer db.Close()

	recs, err := db.List(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintln(out, "no sweeps found")
		return nil
	}
	for _, r := range recs {
		fmt.Fprintf(out, "%s  %s  %s  %s\n", tui.Title(r.ID), r.CreatedAt.Format("2006-01-02 15:04:05"), r.Preset, tui.Label("metric", r.Metric))
		if full, ok, err := db.Get(cmd.Context(), r.ID); err == nil && ok {
			printPoints(out, full.Points)
		}
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s\n", tui.Title(sc.Name), sc.Description)
	_, err = automation.RunScenario(ctx, sc, func(ctx context.Context, cfg *config.Config) (*driver.Result, error) {
		p, err := prepare(cfg)
		if err != nil {
			return nil, err
		}
		res, runErr := p.run(ctx)
		if err := store(out, cfg, res, nil); err != nil {
			return res, err
		}
		return res, runErr
	})
	return err
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	results, err := automation.RunMonteCarlo(ctx, automation.MonteCarloConfig{
		Base:         base,
		Perturbation: perturb,
		Trials:       trials,
		Seed:         base.System.Seed,
		Threshold:    threshold,
		Workers:      workers,
	}, driver.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tS0\tFINAL\tSTATUS\tSTABLE")
	for _, r := range results {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", r.Trial, formatState(r.S0), formatState(r.Final), r.Status, r.Stable)
	}
	w.Flush()

	stable, unstable := automation.MonteCarloStats(results)
	fmt.Fprintf(out, "\n%s  %s\n", tui.Label("stable", fmt.Sprint(stable)), tui.Label("unstable", fmt.Sprint(unstable)))
	return nil
}
