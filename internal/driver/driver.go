// Package driver runs an integro-differential system from T0 to Tf.
//
// A Driver owns the history of one run. It hands the right-hand side to a
// stepper and commits every accepted step before the stepper continues, so
// trial evaluations only ever see accepted history.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/history"
	"github.com/san-kum/rflf/internal/integrators"
	"github.com/san-kum/rflf/internal/memory"
	"github.com/san-kum/rflf/internal/rhs"
)

const tracerName = "github.com/san-kum/rflf/internal/driver"

type Status int

const (
	NotStarted Status = iota
	Running
	Completed
	Failed
	Cancelled
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Metric accumulates a scalar over the accepted trajectory.
type Metric interface {
	Name() string
	Observe(t float64, s dynamo.State)
	Value() float64
	Reset()
}

// Observer is notified of every accepted sample, including (T0, S0).
type Observer interface {
	OnStep(t float64, s dynamo.State)
}

type Diagnostics struct {
	Accepted    int
	Rejected    int
	Evaluations int
	FinalStep   float64
	// QuadratureDelta is set when Config.VerifyQuadrature is on.
	QuadratureDelta float64
	Elapsed         time.Duration
}

type Result struct {
	Status      Status
	Times       []float64
	States      []dynamo.State
	Diagnostics Diagnostics
	Metrics     map[string]float64
	// Err is the failure for Failed runs.
	Err error
}

// Final returns the last accepted time and state.
func (r *Result) Final() (float64, dynamo.State) {
	n := len(r.Times)
	if n == 0 {
		return 0, nil
	}
	return r.Times[n-1], r.States[n-1]
}

type Option func(*Driver)

func WithStepper(s integrators.Stepper) Option {
	return func(d *Driver) { d.stepper = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

func WithObserver(o Observer) Option {
	return func(d *Driver) { d.observers = append(d.observers, o) }
}

func WithMetric(m Metric) Option {
	return func(d *Driver) { d.metrics = append(d.metrics, m) }
}

type Driver struct {
	sys       dynamo.System
	stepper   integrators.Stepper
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   []Metric
	observers []Observer

	mu     sync.Mutex
	status Status
	store  *history.Store
}

func New(sys dynamo.System, opts ...Option) *Driver {
	d := &Driver{
		sys:     sys,
		stepper: integrators.NewRK45(),
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// History returns the accepted history of the run, or nil before Integrate.
// It must not be written to.
func (d *Driver) History() *history.Store {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.store
}

var errCancelled = errors.New("driver: run cancelled")

// Integrate runs the system once. A cancelled context stops the run at the
// next step boundary with status Cancelled and a nil error. Failures return
// the partial result alongside the error.
func (d *Driver) Integrate(ctx context.Context, cfg Config) (*Result, error) {
	d.mu.Lock()
	if d.status != NotStarted {
		d.mu.Unlock()
		return nil, dynamo.ErrAlreadyStarted
	}
	d.status = Running
	d.mu.Unlock()

	ctx, span := d.tracer.Start(ctx, "driver.Integrate", trace.WithAttributes(
		attribute.Float64("rflf.t0", cfg.T0),
		attribute.Float64("rflf.tf", cfg.Tf),
		attribute.Int("rflf.dim", len(cfg.S0)),
		attribute.Bool("rflf.memory", d.sys.HasMemory()),
	))
	defer span.End()

	start := time.Now()
	result := &Result{Metrics: make(map[string]float64)}

	if err := validateConfig(cfg, d.sys); err != nil {
		return d.finish(span, result, start, Failed, err)
	}

	store := history.New(cfg.Interpolation)
	if err := store.Record(cfg.T0, cfg.S0); err != nil {
		return d.finish(span, result, start, Failed, err)
	}
	d.mu.Lock()
	d.store = store
	d.mu.Unlock()

	var mem *memory.Evaluator
	if d.sys.HasMemory() {
		mem = memory.New(store, d.sys.Kernel, d.sys.Feedback, cfg.Quadrature)
	}
	ev := rhs.New(d.sys, store, mem)

	for _, m := range d.metrics {
		m.Reset()
	}
	d.record(result, cfg.T0, cfg.S0)

	d.logger.Info("integration started",
		"t0", cfg.T0, "tf", cfg.Tf, "dim", len(cfg.S0), "memory", d.sys.HasMemory())

	if ctx.Err() != nil {
		return d.finish(span, result, start, Cancelled, nil)
	}

	accept := func(t float64, s dynamo.State) error {
		if err := ev.Commit(t, s); err != nil {
			return err
		}
		d.record(result, t, s)
		d.logger.Debug("step accepted", "t", t, "norm", s.Norm())

		if ctx.Err() != nil {
			return errCancelled
		}
		return nil
	}

	stats, err := d.stepper.Integrate(ev.Eval, accept, cfg.T0, cfg.Tf, cfg.S0, cfg.stepperOptions())
	result.Diagnostics.Accepted = stats.Accepted
	result.Diagnostics.Rejected = stats.Rejected
	result.Diagnostics.Evaluations = stats.Evaluations
	result.Diagnostics.FinalStep = stats.LastStep

	switch {
	case errors.Is(err, errCancelled):
		return d.finish(span, result, start, Cancelled, nil)
	case err != nil:
		var simErr *dynamo.SimulationError
		if !errors.As(err, &simErr) {
			t, s := result.Final()
			err = &dynamo.SimulationError{Step: len(result.Times) - 1, Time: t, State: s.Clone(), Wrapped: err}
		}
		return d.finish(span, result, start, Failed, err)
	}

	if cfg.VerifyQuadrature && mem != nil {
		est, err := mem.Verify(cfg.Tf)
		result.Diagnostics.QuadratureDelta = est.Delta
		if err != nil {
			d.logger.Warn("quadrature verification failed", "t", cfg.Tf, "err", err)
		}
	}

	return d.finish(span, result, start, Completed, nil)
}

func (d *Driver) record(result *Result, t float64, s dynamo.State) {
	result.Times = append(result.Times, t)
	result.States = append(result.States, s.Clone())
	for _, m := range d.metrics {
		m.Observe(t, s)
	}
	for _, o := range d.observers {
		o.OnStep(t, s)
	}
}

func (d *Driver) finish(span trace.Span, result *Result, start time.Time, status Status, err error) (*Result, error) {
	result.Status = status
	result.Err = err
	result.Diagnostics.Elapsed = time.Since(start)
	for _, m := range d.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	d.mu.Lock()
	d.status = status
	d.mu.Unlock()

	span.SetAttributes(
		attribute.String("rflf.status", status.String()),
		attribute.Int("rflf.accepted", result.Diagnostics.Accepted),
		attribute.Int("rflf.rejected", result.Diagnostics.Rejected),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logger.Error("integration failed", "err", err, "accepted", result.Diagnostics.Accepted)
		return result, err
	}

	t, _ := result.Final()
	d.logger.Info("integration finished",
		"status", status,
		"t", t,
		"accepted", result.Diagnostics.Accepted,
		"rejected", result.Diagnostics.Rejected,
		"elapsed", result.Diagnostics.Elapsed)
	return result, nil
}
