package metrics

import (
	"math"

	"github.com/san-kum/rflf/internal/driver"
	"github.com/san-kum/rflf/internal/dynamo"
)

type PeakNorm struct {
	peak float64
}

func NewPeakNorm() *PeakNorm { return &PeakNorm{} }

func (p *PeakNorm) Name() string { return "peak_norm" }

func (p *PeakNorm) Observe(t float64, x dynamo.State) {
	p.peak = math.Max(p.peak, x.Norm())
}

func (p *PeakNorm) Value() float64 { return p.peak }

func (p *PeakNorm) Reset() { p.peak = 0 }

// NormRatio is |s(t_last)| / |s(t0)|; below one means the run dissipated.
type NormRatio struct {
	initial float64
	current float64
	samples int
}

func NewNormRatio() *NormRatio { return &NormRatio{} }

func (n *NormRatio) Name() string { return "norm_ratio" }

func (n *NormRatio) Observe(t float64, x dynamo.State) {
	norm := x.Norm()
	if n.samples == 0 {
		n.initial = norm
	}
	n.current = norm
	n.samples++
}

func (n *NormRatio) Value() float64 {
	if n.initial == 0 {
		return math.NaN()
	}
	return n.current / n.initial
}

func (n *NormRatio) Reset() {
	n.initial = 0
	n.current = 0
	n.samples = 0
}

// MeanNorm is the time average of |s| over the accepted samples, using the
// trapezoid rule on the non-uniform step grid.
type MeanNorm struct {
	t0, tLast float64
	last      float64
	area      float64
	samples   int
}

func NewMeanNorm() *MeanNorm { return &MeanNorm{} }

func (m *MeanNorm) Name() string { return "mean_norm" }

func (m *MeanNorm) Observe(t float64, x dynamo.State) {
	norm := x.Norm()
	if m.samples == 0 {
		m.t0 = t
	} else {
		m.area += 0.5 * (t - m.tLast) * (norm + m.last)
	}
	m.tLast = t
	m.last = norm
	m.samples++
}

func (m *MeanNorm) Value() float64 {
	switch {
	case m.samples == 0:
		return 0
	case m.samples == 1:
		return m.last
	default:
		return m.area / (m.tLast - m.t0)
	}
}

func (m *MeanNorm) Reset() {
	*m = MeanNorm{}
}

// Default returns the metrics attached to CLI runs.
func Default(threshold float64) []driver.Metric {
	return []driver.Metric{
		NewPeakNorm(),
		NewNormRatio(),
		NewMeanNorm(),
		NewStability(threshold),
	}
}
