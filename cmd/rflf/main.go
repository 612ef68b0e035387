package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/san-kum/rflf/internal/config"
	"github.com/san-kum/rflf/internal/tui"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	traceSpans bool

	tf         float64
	rtol       float64
	atol       float64
	maxStep    float64
	resolution float64
	tail       string
	stepper    string
	seed       uint64
	params     []string

	threshold float64
	workers   int
	trials    int
	perturb   float64
	vary      []string
	metric    string
	plain     bool
	frameRate int
	plotN     int
	spectrumN int
	component int
)

var spans *tracetest.SpanRecorder

// main builds the rflf command tree and exits with status 1 on error.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "rflf",
		Short:             "retarded functional feedback solver",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			reportSpans(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".rflf", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")
	rootCmd.PersistentFlags().BoolVar(&traceSpans, "trace", false, "record spans and print a summary")

	runCmd := &cobra.Command{
		Use:   "run [preset]",
		Short: "integrate a system and store the trajectory",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addSolverFlags(runCmd.Flags())

	watchCmd := &cobra.Command{
		Use:   "watch [preset]",
		Short: "integrate a system with a live view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  watchSimulation,
	}
	addSolverFlags(watchCmd.Flags())
	watchCmd.Flags().BoolVar(&plain, "plain", false, "plain renderer instead of the interactive view")
	watchCmd.Flags().IntVar(&frameRate, "fps", 20, "frame rate of the plain renderer")

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "run a preset over a parameter grid",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addSolverFlags(sweepCmd.Flags())
	sweepCmd.Flags().StringArrayVar(&vary, "vary", nil, "parameter range name=start:stop:count or name=v1,v2")
	sweepCmd.Flags().StringVar(&metric, "metric", "mean_norm", "metric to minimise")
	sweepCmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run the steps of a scenario file in order",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo [preset]",
		Short: "run a preset from randomly perturbed initial states",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	addSolverFlags(monteCarloCmd.Flags())
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 0.1, "half-width of the initial state perturbation")
	monteCarloCmd.Flags().IntVar(&workers, "workers", 4, "concurrent runs")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	listSweepsCmd := &cobra.Command{
		Use:   "sweeps",
		Short: "list recorded sweeps",
		Args:  cobra.NoArgs,
		RunE:  listSweeps,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show run metadata and diagnostics",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot state components against time",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotN, "samples", 200, "uniform samples per component")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write the trajectory as csv to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "write metadata and trajectory as json to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}

	exportSVGCmd := &cobra.Command{
		Use:   "export-svg [run_id]",
		Short: "write the trajectory as svg to stdout",
		Args:  cobra.ExactArgs(1),
		RunE:  exportSVG,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "summary and power spectrum of a component",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}
	analyzeCmd.Flags().IntVar(&component, "component", 0, "state component")
	analyzeCmd.Flags().IntVar(&spectrumN, "samples", 256, "uniform samples before the transform")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list presets",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, watchCmd, sweepCmd, scenarioCmd, monteCarloCmd, listCmd, listSweepsCmd, showCmd, plotCmd,
		exportCSVCmd, exportJSONCmd, exportSVGCmd, analyzeCmd, presetsCmd)
	return rootCmd
}

func addSolverFlags(fs *pflag.FlagSet) {
	fs.Float64Var(&tf, "tf", config.DefaultTf, "final time")
	fs.Float64Var(&rtol, "rtol", config.DefaultRtol, "relative tolerance")
	fs.Float64Var(&atol, "atol", config.DefaultAtol, "absolute tolerance")
	fs.Float64Var(&maxStep, "max-step", 0, "largest step (0 for unbounded)")
	fs.Float64Var(&resolution, "resolution", 0.01, "quadrature node spacing")
	fs.StringVar(&tail, "tail", "linear", "quadrature tail policy (zero, linear)")
	fs.StringVar(&stepper, "stepper", "rk45", "stepper (rk45, rk4, euler)")
	fs.Uint64Var(&seed, "seed", 0, "noise seed")
	fs.StringArrayVar(&params, "param", nil, "system parameter name=value")
	fs.Float64Var(&threshold, "threshold", 1e3, "stability threshold on each component")
}

func setup(cmd *cobra.Command, args []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	spans = nil
	if traceSpans {
		spans = tracetest.NewSpanRecorder()
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)))
	}
	return nil
}

func reportSpans(cmd *cobra.Command) {
	if spans == nil {
		return
	}
	ended := spans.Ended()
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "%d spans\n", len(ended))
	for _, s := range ended {
		fmt.Fprintf(w, "  %-20s %10s  %s\n", s.Name(), s.EndTime().Sub(s.StartTime()).Round(time.Microsecond), s.Status().Code)
	}
}

// resolveConfig picks the config file when given, else the named preset,
// and applies the flags the user set explicitly.
func resolveConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		name := config.DefaultPreset
		if len(args) > 0 {
			name = args[0]
		}
		cfg = config.GetPreset(name)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", name, config.ListPresets())
		}
	}

	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("tf") {
		cfg.Tf = tf
	}
	if fs.Changed("rtol") {
		cfg.Rtol = rtol
	}
	if fs.Changed("atol") {
		cfg.Atol = atol
	}
	if fs.Changed("max-step") {
		cfg.MaxStep = maxStep
	}
	if fs.Changed("resolution") {
		cfg.Quadrature.Resolution = resolution
	}
	if fs.Changed("tail") {
		cfg.Quadrature.Tail = tail
	}
	if fs.Changed("stepper") {
		cfg.Stepper = stepper
	}
	if fs.Changed("seed") {
		cfg.System.Seed = seed
	}
	for _, p := range params {
		name, value, err := parseAssignment(p)
		if err != nil {
			return err
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("param %s: %w", name, err)
		}
		cfg.SetParam(name, v)
	}
	return nil
}

func parseAssignment(s string) (string, string, error) {
	name, value, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("expected name=value, got %q", s)
	}
	return name, strings.TrimSpace(value), nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		keys := make([]string, 0, len(p.System.Params))
		for k := range p.System.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var ps []string
		for _, k := range keys {
			ps = append(ps, fmt.Sprintf("%s=%g", k, p.System.Params[k]))
		}
		kernel := p.System.Kernel
		if kernel == "" {
			kernel = "-"
		}
		fmt.Fprintf(out, "%s %s  %s\n", tui.Title(fmt.Sprintf("%-12s", name)), tui.Label("kernel", kernel), strings.Join(ps, " "))
	}
	return nil
}
