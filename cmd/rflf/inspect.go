package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/rflf/internal/analysis"
	"github.com/san-kum/rflf/internal/export"
	"github.com/san-kum/rflf/internal/history"
	"github.com/san-kum/rflf/internal/storage"
	"github.com/san-kum/rflf/internal/tui"
)

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTIME\tSTATUS\tSPAN\tSTEPPER\tSAMPLES")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t[%g, %g]\t%s\t%d\n",
			run.ID,
			run.Name,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Status,
			run.T0, run.Tf,
			run.Stepper,
			run.Samples,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	cfg, err := st.LoadConfig(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s  %s\n", tui.Title(meta.ID), meta.Name, tui.StatusStyle(meta.Status).Render(meta.Status))
	fmt.Fprintf(out, "  %s\n", tui.Label("created", meta.Timestamp.Format("2006-01-02 15:04:05")))
	fmt.Fprintf(out, "  %s  %s  %s\n",
		tui.Label("span", fmt.Sprintf("[%g, %g]", meta.T0, meta.Tf)),
		tui.Label("dim", fmt.Sprint(meta.Dim)),
		tui.Label("stepper", meta.Stepper),
	)
	fmt.Fprintf(out, "  %s  %s  %s  %s  %s\n",
		tui.Label("samples", fmt.Sprint(meta.Samples)),
		tui.Label("accepted", fmt.Sprint(meta.Accepted)),
		tui.Label("rejected", fmt.Sprint(meta.Rejected)),
		tui.Label("evals", fmt.Sprint(meta.Evaluations)),
		tui.Label("last step", fmt.Sprintf("%.4g", meta.FinalStep)),
	)
	fmt.Fprintf(out, "  %s  %s  %s\n",
		tui.Label("F", cfg.System.Forward),
		tui.Label("G", cfg.System.Feedback),
		tui.Label("K", cfg.System.Kernel),
	)
	fmt.Fprintf(out, "  %s  %s\n",
		tui.Label("rtol", fmt.Sprintf("%g", cfg.Rtol)),
		tui.Label("atol", fmt.Sprintf("%g", cfg.Atol)),
	)

	names := make([]string, 0, len(meta.Metrics))
	for name := range meta.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %s\n", tui.Label(name, fmt.Sprintf("%.6g", meta.Metrics[name])))
	}
	if meta.Error != "" {
		fmt.Fprintf(out, "  %s\n", tui.StatusStyle("failed").Render(meta.Error))
	}
	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	times, states, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	if len(states) < 2 {
		return fmt.Errorf("run %s has %d samples, nothing to plot", meta.ID, len(states))
	}

	_, grid, err := analysis.Resample(times, states, plotN, history.Linear)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s  t ∈ [%g, %g]\n\n", tui.Title(meta.ID), meta.Name, times[0], times[len(times)-1])
	for k := range states[0] {
		graph := asciigraph.Plot(analysis.Component(grid, k),
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(fmt.Sprintf("s%d", k)),
		)
		fmt.Fprintln(out, graph)
		fmt.Fprintln(out)
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if _, err := st.Load(args[0]); err != nil {
		return err
	}
	times, states, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	return storage.WriteCSV(cmd.OutOrStdout(), times, states)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	times, states, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	return storage.ExportJSON(cmd.OutOrStdout(), *meta, times, states)
}

func exportSVG(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	if _, err := st.Load(args[0]); err != nil {
		return err
	}
	times, states, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	svg, err := export.TrajectoryToSVG(times, states, 800, 400)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), svg)
	return err
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	times, states, err := st.LoadStates(args[0])
	if err != nil {
		return err
	}
	if len(states) < 2 || component < 0 || component >= len(states[0]) {
		return fmt.Errorf("run %s: no data for component %d", meta.ID, component)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "frequency analysis: %s\n", meta.ID)
	fmt.Fprintf(out, "name: %s\n\n", meta.Name)

	sum := analysis.Summarize(states, component)
	fmt.Fprintf(out, "  %s  %s  %s  %s\n\n",
		tui.Label("min", fmt.Sprintf("%.6g", sum.Min)),
		tui.Label("max", fmt.Sprintf("%.6g", sum.Max)),
		tui.Label("final", fmt.Sprintf("%.6g", sum.Final)),
		tui.Label("zero crossings", fmt.Sprint(sum.Crossings)),
	)

	gridT, grid, err := analysis.Resample(times, states, spectrumN, history.Cubic)
	if err != nil {
		return err
	}
	spec, err := analysis.PowerSpectrum(gridT, analysis.Component(grid, component))
	if err != nil {
		return err
	}

	graph := asciigraph.Plot(spec.Power,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("power spectrum (s%d)", component)),
	)
	fmt.Fprintln(out, graph)
	fmt.Fprintln(out)

	freq := spec.Dominant()
	fmt.Fprintf(out, "dominant frequency: %.4g\n", freq)
	if freq > 0 {
		fmt.Fprintf(out, "period: %.4g\n", 1.0/freq)
	}
	return nil
}
