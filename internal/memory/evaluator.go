package memory

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate"

	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/history"
)

// Rule is the composite quadrature rule used over the history grid.
type Rule int

const (
	Simpson Rule = iota
	Trapezoid
)

func (r Rule) String() string {
	switch r {
	case Simpson:
		return "simpson"
	case Trapezoid:
		return "trapezoid"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

func ParseRule(name string) (Rule, error) {
	switch name {
	case "simpson", "":
		return Simpson, nil
	case "trapezoid":
		return Trapezoid, nil
	default:
		return Simpson, fmt.Errorf("%w: unknown quadrature rule %q", dynamo.ErrInvalidConfig, name)
	}
}

// TailPolicy decides what the stretch between the last accepted sample and
// the evaluation time contributes.
type TailPolicy int

const (
	// TailZero ignores the unresolved tail.
	TailZero TailPolicy = iota
	// TailLinear closes the tail with one trapezoid panel whose right end is
	// the trial sample handed in by the caller.
	TailLinear
)

func (p TailPolicy) String() string {
	switch p {
	case TailZero:
		return "zero"
	case TailLinear:
		return "linear"
	default:
		return fmt.Sprintf("tail(%d)", int(p))
	}
}

func ParseTailPolicy(name string) (TailPolicy, error) {
	switch name {
	case "zero":
		return TailZero, nil
	case "linear", "":
		return TailLinear, nil
	default:
		return TailLinear, fmt.Errorf("%w: unknown tail policy %q", dynamo.ErrInvalidConfig, name)
	}
}

const (
	DefaultResolution = 0.01
	DefaultTolerance  = 1e-6
	// DefaultMaxTail keeps the unresolved tail within ten default grid
	// spacings.
	DefaultMaxTail = 10 * DefaultResolution

	// nodes per kernel timescale when Timescale is set
	timescaleNodes = 8
)

type Options struct {
	// Resolution is the target grid spacing.
	Resolution float64
	Rule       Rule
	Tail       TailPolicy
	// MaxTail is the largest gap past the last accepted sample the evaluator
	// tolerates. Zero disables the check.
	MaxTail float64
	// Timescale is the kernel decay time. When positive the grid spacing is
	// tightened to Timescale/8.
	Timescale float64
	// Tolerance bounds the change between spacing h and h/2 in Verify.
	Tolerance float64
}

func DefaultOptions() Options {
	return Options{
		Resolution: DefaultResolution,
		Rule:       Simpson,
		Tail:       TailLinear,
		MaxTail:    DefaultMaxTail,
		Tolerance:  DefaultTolerance,
	}
}

func (o Options) Validate() error {
	if !(o.Resolution > 0) || math.IsInf(o.Resolution, 0) {
		return fmt.Errorf("%w: quadrature resolution must be positive, got %g", dynamo.ErrInvalidConfig, o.Resolution)
	}
	if o.MaxTail < 0 {
		return fmt.Errorf("%w: max tail must be non-negative, got %g", dynamo.ErrInvalidConfig, o.MaxTail)
	}
	if o.Timescale < 0 {
		return fmt.Errorf("%w: kernel timescale must be non-negative, got %g", dynamo.ErrInvalidConfig, o.Timescale)
	}
	if o.Tolerance < 0 {
		return fmt.Errorf("%w: quadrature tolerance must be non-negative, got %g", dynamo.ErrInvalidConfig, o.Tolerance)
	}
	return nil
}

// Spacing is the effective grid spacing after the timescale cap.
func (o Options) Spacing() float64 {
	h := o.Resolution
	if o.Timescale > 0 {
		h = math.Min(h, o.Timescale/timescaleNodes)
	}
	return h
}

// Evaluator computes M(t) = ∫ K(t-τ) G(s(τ)) dτ from the accepted history.
// It is not safe for concurrent use.
type Evaluator struct {
	store    *history.Store
	kernel   dynamo.KernelFunc
	feedback dynamo.FeedbackFunc
	opts     Options

	grid    []float64
	weights []float64
	values  [][]float64
	scratch dynamo.State
}

func New(store *history.Store, kernel dynamo.KernelFunc, feedback dynamo.FeedbackFunc, opts Options) *Evaluator {
	return &Evaluator{
		store:    store,
		kernel:   kernel,
		feedback: feedback,
		opts:     opts,
	}
}

func (e *Evaluator) Options() Options { return e.opts }

// Evaluate returns M(t). trial, when not nil, is the state the caller is
// probing at t; it is only read by TailLinear.
func (e *Evaluator) Evaluate(t float64, trial *history.Sample) (dynamo.State, error) {
	return e.EvaluateAt(t, e.opts.Spacing(), trial)
}

// EvaluateAt is Evaluate with an explicit grid spacing h.
func (e *Evaluator) EvaluateAt(t, h float64, trial *history.Sample) (dynamo.State, error) {
	first, last := e.store.FirstTime(), e.store.LastTime()
	if math.IsNaN(t) || t < first {
		return nil, &dynamo.RangeError{Time: t, Start: first, End: last}
	}
	if gap := t - last; e.opts.MaxTail > 0 && gap > e.opts.MaxTail {
		return nil, &dynamo.InsufficientHistoryError{Time: t, Last: last, Limit: e.opts.MaxTail}
	}

	dim := e.store.Dim()
	total := make(dynamo.State, dim)

	upper := math.Min(t, last)
	if upper > first {
		if err := e.history(total, t, first, upper, h); err != nil {
			return nil, err
		}
	}

	if t > last && e.opts.Tail == TailLinear && trial != nil {
		if err := e.tail(total, t, last, trial); err != nil {
			return nil, err
		}
	}

	return total, nil
}

func (e *Evaluator) history(total dynamo.State, t, lower, upper, h float64) error {
	n := int(math.Ceil((upper - lower) / h))
	if n < 1 {
		n = 1
	}
	if e.opts.Rule == Simpson && n%2 == 1 {
		n++
	}
	step := (upper - lower) / float64(n)
	dim := len(total)
	e.resize(n+1, dim)

	for i := 0; i <= n; i++ {
		tau := lower + float64(i)*step
		if i == n || tau > upper {
			tau = upper
		}
		e.grid[i] = tau

		if err := e.store.QueryInto(e.scratch, tau); err != nil {
			return err
		}
		g, err := e.applyFeedback(e.scratch, dim)
		if err != nil {
			return err
		}
		w, err := e.applyKernel(t - tau)
		if err != nil {
			return err
		}
		for k := 0; k < dim; k++ {
			e.values[k][i] = w * g[k]
		}
	}

	for k := 0; k < dim; k++ {
		if e.opts.Rule == Simpson && len(e.grid) >= 3 {
			total[k] += integrate.Simpsons(e.grid, e.values[k])
		} else {
			total[k] += integrate.Trapezoidal(e.grid, e.values[k])
		}
	}
	return nil
}

func (e *Evaluator) tail(total dynamo.State, t, last float64, trial *history.Sample) error {
	dim := len(total)
	if len(e.scratch) != dim {
		e.scratch = make(dynamo.State, dim)
	}
	if len(trial.State) != dim {
		return fmt.Errorf("%w: trial state has %d components, want %d", dynamo.ErrDimensionMismatch, len(trial.State), dim)
	}
	if err := e.store.QueryInto(e.scratch, last); err != nil {
		return err
	}

	gLast, err := e.applyFeedback(e.scratch, dim)
	if err != nil {
		return err
	}
	wLast, err := e.applyKernel(t - last)
	if err != nil {
		return err
	}
	gTrial, err := e.applyFeedback(trial.State, dim)
	if err != nil {
		return err
	}
	wTrial, err := e.applyKernel(0)
	if err != nil {
		return err
	}

	half := 0.5 * (t - last)
	for k := 0; k < dim; k++ {
		total[k] += half * (wLast*gLast[k] + wTrial*gTrial[k])
	}
	return nil
}

// Estimate is the result of a grid refinement check.
type Estimate struct {
	Coarse dynamo.State
	Fine   dynamo.State
	// Delta is the largest componentwise change between Coarse and Fine.
	Delta float64
}

// Verify evaluates M(t) at spacing h and h/2 and fails with
// ErrQuadratureTolerance when the two differ by more than Options.Tolerance.
func (e *Evaluator) Verify(t float64) (Estimate, error) {
	h := e.opts.Spacing()
	coarse, err := e.EvaluateAt(t, h, nil)
	if err != nil {
		return Estimate{}, err
	}
	fine, err := e.EvaluateAt(t, h/2, nil)
	if err != nil {
		return Estimate{}, err
	}

	est := Estimate{Coarse: coarse, Fine: fine}
	for k := range coarse {
		est.Delta = math.Max(est.Delta, math.Abs(fine[k]-coarse[k]))
	}
	if e.opts.Tolerance > 0 && est.Delta > e.opts.Tolerance {
		return est, fmt.Errorf("%w: delta %g exceeds %g at t=%g", dynamo.ErrQuadratureTolerance, est.Delta, e.opts.Tolerance, t)
	}
	return est, nil
}

func (e *Evaluator) resize(points, dim int) {
	if cap(e.grid) < points {
		e.grid = make([]float64, points)
	}
	e.grid = e.grid[:points]

	if len(e.values) != dim {
		e.values = make([][]float64, dim)
	}
	for k := range e.values {
		if cap(e.values[k]) < points {
			e.values[k] = make([]float64, points)
		}
		e.values[k] = e.values[k][:points]
	}

	if len(e.scratch) != dim {
		e.scratch = make(dynamo.State, dim)
	}
}

func (e *Evaluator) applyFeedback(x dynamo.State, dim int) (dynamo.State, error) {
	g, err := e.feedback(x)
	if err != nil {
		return nil, &dynamo.FunctionError{Name: "feedback", Err: err}
	}
	if len(g) != dim {
		return nil, &dynamo.FunctionError{
			Name: "feedback",
			Err:  fmt.Errorf("%w: returned %d components, want %d", dynamo.ErrDimensionMismatch, len(g), dim),
		}
	}
	if !g.IsValid() {
		return nil, &dynamo.FunctionError{Name: "feedback", Err: dynamo.ErrInvalidState}
	}
	return g, nil
}

func (e *Evaluator) applyKernel(dt float64) (float64, error) {
	w := e.kernel(dt)
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0, &dynamo.FunctionError{Name: "kernel", Err: fmt.Errorf("K(%g) = %g", dt, w)}
	}
	return w, nil
}
