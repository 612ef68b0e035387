package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/rflf/internal/driver"
)

const maxTracePoints = 4096

var traceColors = []asciigraph.AnsiColor{
	asciigraph.Cyan,
	asciigraph.Goldenrod,
	asciigraph.Green,
	asciigraph.Magenta,
	asciigraph.Red,
	asciigraph.Blue,
}

// Outcome is what the integration goroutine reports when it returns.
type Outcome struct {
	Result *driver.Result
	Err    error
}

type sampleMsg Sample

type streamClosedMsg struct{}

type doneMsg Outcome

// Model is the bubbletea model behind the watch command. It plots every
// state component against time while the run progresses.
type Model struct {
	title    string
	samples  <-chan Sample
	finished <-chan struct{}
	result   *Outcome
	cancel   context.CancelFunc

	times  []float64
	traces [][]float64
	stride int
	seen   int

	outcome  *Outcome
	quitting bool

	width  int
	height int
}

// NewModel builds a watch model. result must be written before finished
// is closed.
func NewModel(title string, samples <-chan Sample, finished <-chan struct{}, result *Outcome, cancel context.CancelFunc) Model {
	return Model{
		title:    title,
		samples:  samples,
		finished: finished,
		result:   result,
		cancel:   cancel,
		stride:   1,
		width:    80,
		height:   24,
	}
}

func waitSample(ch <-chan Sample) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return streamClosedMsg{}
		}
		return sampleMsg(s)
	}
}

func waitDone(finished <-chan struct{}, result *Outcome) tea.Cmd {
	return func() tea.Msg {
		<-finished
		return doneMsg(*result)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitSample(m.samples), waitDone(m.finished, m.result))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case sampleMsg:
		m.add(Sample(msg))
		return m, waitSample(m.samples)
	case streamClosedMsg:
		return m, nil
	case doneMsg:
		out := Outcome(msg)
		m.outcome = &out
		return m, nil
	}
	return m, nil
}

// add appends a sample, halving the resolution of the kept traces whenever
// they reach maxTracePoints.
func (m *Model) add(s Sample) {
	m.seen++
	if (m.seen-1)%m.stride != 0 {
		return
	}
	if m.traces == nil {
		m.traces = make([][]float64, len(s.S))
	}
	m.times = append(m.times, s.T)
	for k := range m.traces {
		v := 0.0
		if k < len(s.S) {
			v = s.S[k]
		}
		m.traces[k] = append(m.traces[k], v)
	}
	if len(m.times) >= maxTracePoints {
		m.times = decimate(m.times)
		for k := range m.traces {
			m.traces[k] = decimate(m.traces[k])
		}
		m.stride *= 2
	}
}

func decimate(xs []float64) []float64 {
	out := xs[:0]
	for i := 0; i < len(xs); i += 2 {
		out = append(out, xs[i])
	}
	return out
}

// Samples reports how many accepted samples the model has received.
func (m Model) Samples() int { return m.seen }

// Outcome returns the run outcome once the integration has returned.
func (m Model) Outcome() *Outcome { return m.outcome }

func (m Model) status() string {
	switch {
	case m.outcome == nil:
		return "running"
	case m.outcome.Result != nil:
		return m.outcome.Result.Status.String()
	case m.outcome.Err != nil:
		return "failed"
	}
	return "completed"
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("  " + Title(m.title) + "  " + StatusStyle(m.status()).Render(m.status()) + "\n")
	b.WriteString(dimmer.Render("  "+strings.Repeat("━", max(m.width-4, 10))) + "\n\n")

	if len(m.times) < 2 {
		b.WriteString(dim.Render("  waiting for samples...") + "\n")
	} else {
		b.WriteString(m.plot() + "\n")
	}

	b.WriteString("\n")
	t := 0.0
	if n := len(m.times); n > 0 {
		t = m.times[n-1]
	}
	b.WriteString("  " + Label("t", fmt.Sprintf("%.4f", t)) + "   " + Label("samples", fmt.Sprintf("%d", m.seen)))
	if m.outcome != nil && m.outcome.Result != nil {
		d := m.outcome.Result.Diagnostics
		b.WriteString("   " + Label("accepted", fmt.Sprintf("%d", d.Accepted)))
		b.WriteString("   " + Label("rejected", fmt.Sprintf("%d", d.Rejected)))
		b.WriteString("   " + Label("evals", fmt.Sprintf("%d", d.Evaluations)))
	}
	b.WriteString("\n")
	if m.outcome != nil && m.outcome.Err != nil {
		b.WriteString("  " + red.Render(m.outcome.Err.Error()) + "\n")
	}
	b.WriteString("\n" + dim.Render("  q quit") + "\n")
	return b.String()
}

func (m Model) plot() string {
	h := m.height - 12
	if h < 5 {
		h = 5
	}
	w := m.width - 14
	if w < 20 {
		w = 20
	}
	colors := make([]asciigraph.AnsiColor, len(m.traces))
	for k := range colors {
		colors[k] = traceColors[k%len(traceColors)]
	}
	caption := fmt.Sprintf("s[0..%d] over t ∈ [%.3g, %.3g]", len(m.traces)-1, m.times[0], m.times[len(m.times)-1])
	graph := asciigraph.PlotMany(m.traces,
		asciigraph.Height(h),
		asciigraph.Width(w),
		asciigraph.Offset(3),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption(caption),
	)
	return graph
}

// Watch runs fn on its own goroutine and renders its accepted samples in
// an interactive terminal view until the user quits. Quitting early
// cancels the run; the returned result then carries the Cancelled status.
func Watch(ctx context.Context, title string, fn func(ctx context.Context, obs driver.Observer) (*driver.Result, error), opts ...tea.ProgramOption) (*driver.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obs := NewChannelObserver(ctx, 256)
	finished := make(chan struct{})
	var out Outcome
	go func() {
		defer close(finished)
		out.Result, out.Err = fn(ctx, obs)
		obs.Close()
	}()

	_, err := tea.NewProgram(NewModel(title, obs.Samples(), finished, &out, cancel), opts...).Run()
	cancel()
	<-finished
	if err != nil {
		return out.Result, fmt.Errorf("watch: %w", err)
	}
	return out.Result, out.Err
}
