package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/rflf/internal/driver"
	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/terms"
)

func TestChannelObserverCopies(t *testing.T) {
	obs := NewChannelObserver(context.Background(), 1)
	s := dynamo.State{1, 2}
	obs.OnStep(0.5, s)
	s[0] = 99

	got := <-obs.Samples()
	if got.T != 0.5 {
		t.Errorf("expected t=0.5, got %f", got.T)
	}
	if got.S[0] != 1 {
		t.Errorf("sample aliases caller state: %v", got.S)
	}
}

func TestChannelObserverUnblocksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	obs := NewChannelObserver(ctx, 0)

	done := make(chan struct{})
	go func() {
		obs.OnStep(0, dynamo.State{1})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnStep blocked after cancellation")
	}
	obs.Close()
	obs.Close()
}

func TestChannelObserverWithDriver(t *testing.T) {
	sys := dynamo.System{
		Forward:  terms.Decay(1),
		Feedback: terms.Linear(0.1),
		Kernel:   terms.Exponential(0.5),
	}
	cfg := driver.DefaultConfig()
	cfg.Tf = 1
	cfg.S0 = dynamo.State{1, 0}

	obs := NewChannelObserver(context.Background(), 0)
	count := make(chan int)
	go func() {
		n := 0
		for range obs.Samples() {
			n++
		}
		count <- n
	}()

	res, err := driver.New(sys, driver.WithObserver(obs)).Integrate(context.Background(), cfg)
	obs.Close()
	if err != nil {
		t.Fatalf("integrate: %v", err)
	}
	if n := <-count; n != len(res.Times) {
		t.Errorf("expected %d samples, got %d", len(res.Times), n)
	}
}

func feed(m Model, n int) Model {
	for i := 0; i < n; i++ {
		next, _ := m.Update(sampleMsg(Sample{T: float64(i) * 0.01, S: dynamo.State{float64(i), -float64(i)}}))
		m = next.(Model)
	}
	return m
}

func TestModelCollectsSamples(t *testing.T) {
	m := NewModel("memory", nil, nil, nil, nil)
	m = feed(m, 10)

	if m.Samples() != 10 {
		t.Errorf("expected 10 samples, got %d", m.Samples())
	}
	if len(m.traces) != 2 || len(m.traces[1]) != 10 {
		t.Fatalf("unexpected traces shape")
	}
	if m.traces[1][9] != -9 {
		t.Errorf("expected -9, got %f", m.traces[1][9])
	}

	view := m.View()
	if !strings.Contains(view, "memory") || !strings.Contains(view, "running") {
		t.Errorf("view missing title or status:\n%s", view)
	}
}

func TestModelDecimates(t *testing.T) {
	m := NewModel("long", nil, nil, nil, nil)
	m = feed(m, 3*maxTracePoints)

	if m.Samples() != 3*maxTracePoints {
		t.Errorf("expected %d samples, got %d", 3*maxTracePoints, m.Samples())
	}
	if len(m.times) >= maxTracePoints {
		t.Errorf("kept %d points, want fewer than %d", len(m.times), maxTracePoints)
	}
	for i := 1; i < len(m.times); i++ {
		if m.times[i] <= m.times[i-1] {
			t.Fatalf("times not increasing at %d", i)
		}
	}
}

func TestModelDone(t *testing.T) {
	m := feed(NewModel("run", nil, nil, nil, nil), 3)
	res := &driver.Result{Status: driver.Completed}
	res.Diagnostics.Accepted = 2

	next, _ := m.Update(doneMsg{Result: res})
	m = next.(Model)
	if m.Outcome() == nil || m.Outcome().Result != res {
		t.Fatal("outcome not recorded")
	}
	view := m.View()
	if !strings.Contains(view, "completed") || !strings.Contains(view, "accepted") {
		t.Errorf("view missing completion details:\n%s", view)
	}

	next, _ = m.Update(doneMsg{Err: errors.New("boom")})
	m = next.(Model)
	if !strings.Contains(m.View(), "boom") {
		t.Error("view should show the error")
	}
}

func TestModelQuitCancels(t *testing.T) {
	cancelled := false
	m := NewModel("run", nil, nil, nil, func() { cancelled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("quit should cancel the run")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if next.(Model).View() != "" {
		t.Error("view should be empty after quitting")
	}
}

func TestLiveRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewLiveRenderer(&buf, "decay", 0, false)
	r.Start()
	r.OnStep(0, dynamo.State{1, -0.5})
	r.OnStep(0.1, dynamo.State{0.9, -0.4})

	if r.Frames() != 2 {
		t.Errorf("expected 2 frames, got %d", r.Frames())
	}
	out := buf.String()
	if !strings.Contains(out, "decay") || !strings.Contains(out, "s0") || !strings.Contains(out, "s1") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, clearScreen) {
		t.Error("plain renderer should not emit escapes")
	}
}

func TestLiveRendererThrottles(t *testing.T) {
	var buf bytes.Buffer
	r := NewLiveRenderer(&buf, "fast", 1, false)
	for i := 0; i < 50; i++ {
		r.OnStep(float64(i), dynamo.State{float64(i)})
	}
	if r.Frames() != 1 {
		t.Errorf("expected 1 frame, got %d", r.Frames())
	}
	r.Stop()
	if r.Frames() != 2 {
		t.Errorf("Stop should flush, got %d frames", r.Frames())
	}
}

func TestBar(t *testing.T) {
	if got := bar(1, 1); !strings.HasSuffix(got, strings.Repeat("#", barWidth/2-1)+"]") {
		t.Errorf("full positive bar: %q", got)
	}
	if got := bar(-1, 1); !strings.HasPrefix(got, "["+strings.Repeat("#", barWidth/2)) {
		t.Errorf("full negative bar: %q", got)
	}
	if got := bar(0, 1); strings.Contains(got, "#") {
		t.Errorf("zero bar: %q", got)
	}
}
