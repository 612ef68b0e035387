package driver

import (
	"context"
	"errors"
	"fmt"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/san-kum/rflf/internal/dynamo"
	"github.com/san-kum/rflf/internal/integrators"
	"github.com/san-kum/rflf/internal/terms"
)

type countingMetric struct {
	n int
}

func (m *countingMetric) Name() string                     { return "count" }
func (m *countingMetric) Observe(t float64, s dynamo.State) { m.n++ }
func (m *countingMetric) Value() float64                   { return float64(m.n) }
func (m *countingMetric) Reset()                           { m.n = 0 }

type recordingObserver struct {
	times []float64
}

func (o *recordingObserver) OnStep(t float64, s dynamo.State) {
	o.times = append(o.times, t)
}

var _ = Describe("Driver", func() {
	var (
		mockCtrl *gomock.Controller
		stepper  *MockStepper
		sys      dynamo.System
		cfg      Config
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		stepper = NewMockStepper(mockCtrl)
		sys = dynamo.System{
			Forward:  terms.Decay(1),
			Feedback: terms.Linear(0.1),
			Kernel:   terms.Exponential(0.5),
		}
		cfg = DefaultConfig()
		cfg.Tf = 1
		cfg.S0 = dynamo.State{1, 0}
		// the mocked stepper probes arbitrary times past the history
		cfg.Quadrature.MaxTail = 0
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should start in NotStarted", func() {
		d := New(sys, WithStepper(stepper))
		Expect(d.Status()).To(Equal(NotStarted))
		Expect(d.History()).To(BeNil())
	})

	It("should commit every accepted step", func() {
		metric := &countingMetric{}
		observer := &recordingObserver{}
		d := New(sys, WithStepper(stepper), WithMetric(metric), WithObserver(observer))

		stepper.EXPECT().
			Integrate(gomock.Any(), gomock.Any(), 0.0, 1.0, gomock.Any(), gomock.Any()).
			DoAndReturn(func(rhs integrators.RHSFunc, accept integrators.AcceptFunc, t0, tf float64, x0 dynamo.State, opts integrators.Options) (integrators.Stats, error) {
				Expect(math.IsInf(opts.MaxStep, 1)).To(BeTrue())
				Expect(opts.AbsTol).To(Equal(cfg.AbsTol))

				for _, t := range []float64{0.5, 1} {
					dx, err := rhs(t, x0)
					Expect(err).NotTo(HaveOccurred())
					Expect(accept(t, x0.AddScaled(t, dx))).To(Succeed())
				}
				return integrators.Stats{Accepted: 2, Rejected: 1, Evaluations: 9, LastStep: 0.5}, nil
			})

		res, err := d.Integrate(context.Background(), cfg)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(Completed))
		Expect(d.Status()).To(Equal(Completed))
		Expect(res.Times).To(Equal([]float64{0, 0.5, 1}))
		Expect(res.States).To(HaveLen(3))
		Expect(res.Diagnostics.Accepted).To(Equal(2))
		Expect(res.Diagnostics.Rejected).To(Equal(1))
		Expect(res.Diagnostics.Evaluations).To(Equal(9))
		Expect(res.Diagnostics.FinalStep).To(Equal(0.5))
		Expect(res.Metrics).To(HaveKeyWithValue("count", 3.0))
		Expect(observer.times).To(Equal([]float64{0, 0.5, 1}))
		Expect(d.History().Times()).To(Equal([]float64{0, 0.5, 1}))
	})

	It("should not record trial evaluations", func() {
		d := New(sys, WithStepper(stepper))

		stepper.EXPECT().
			Integrate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(rhs integrators.RHSFunc, accept integrators.AcceptFunc, t0, tf float64, x0 dynamo.State, opts integrators.Options) (integrators.Stats, error) {
				for _, t := range []float64{0.9, 0.2, 0.6} {
					_, err := rhs(t, x0)
					Expect(err).NotTo(HaveOccurred())
				}
				Expect(d.History().Len()).To(Equal(1))
				return integrators.Stats{}, accept(1, x0)
			})

		res, err := d.Integrate(context.Background(), cfg)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Times).To(Equal([]float64{0, 1}))
	})

	It("should fail on step size underflow", func() {
		d := New(sys, WithStepper(stepper))

		stepper.EXPECT().
			Integrate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(rhs integrators.RHSFunc, accept integrators.AcceptFunc, t0, tf float64, x0 dynamo.State, opts integrators.Options) (integrators.Stats, error) {
				Expect(accept(0.25, x0)).To(Succeed())
				return integrators.Stats{Accepted: 1, CurrentTime: 0.25},
					fmt.Errorf("%w: h=1e-13 at t=0.25", dynamo.ErrStepSizeUnderflow)
			})

		res, err := d.Integrate(context.Background(), cfg)

		Expect(errors.Is(err, dynamo.ErrStepSizeUnderflow)).To(BeTrue())
		var simErr *dynamo.SimulationError
		Expect(errors.As(err, &simErr)).To(BeTrue())
		Expect(simErr.Time).To(Equal(0.25))
		Expect(simErr.Step).To(Equal(1))
		Expect(res.Status).To(Equal(Failed))
		Expect(res.Err).To(Equal(err))
		Expect(res.Times).To(Equal([]float64{0, 0.25}))
		Expect(d.Status()).To(Equal(Failed))
	})

	It("should fail when the stepper rewinds time", func() {
		d := New(sys, WithStepper(stepper))

		stepper.EXPECT().
			Integrate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(rhs integrators.RHSFunc, accept integrators.AcceptFunc, t0, tf float64, x0 dynamo.State, opts integrators.Options) (integrators.Stats, error) {
				Expect(accept(0.5, x0)).To(Succeed())
				return integrators.Stats{Accepted: 1}, accept(0.4, x0)
			})

		res, err := d.Integrate(context.Background(), cfg)

		Expect(errors.Is(err, dynamo.ErrOutOfOrder)).To(BeTrue())
		Expect(res.Status).To(Equal(Failed))
		Expect(res.Times).To(Equal([]float64{0, 0.5}))
	})

	It("should stop at the next step boundary when cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		d := New(sys, WithStepper(stepper))

		stepper.EXPECT().
			Integrate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(rhs integrators.RHSFunc, accept integrators.AcceptFunc, t0, tf float64, x0 dynamo.State, opts integrators.Options) (integrators.Stats, error) {
				Expect(accept(0.1, x0)).To(Succeed())
				cancel()
				if err := accept(0.2, x0); err != nil {
					return integrators.Stats{Accepted: 2}, err
				}
				Fail("accept should report cancellation")
				return integrators.Stats{}, nil
			})

		res, err := d.Integrate(ctx, cfg)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(Cancelled))
		Expect(res.Times).To(Equal([]float64{0, 0.1, 0.2}))
		Expect(d.History().Len()).To(Equal(3))
	})

	It("should not call the stepper when already cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := New(sys, WithStepper(stepper)).Integrate(ctx, cfg)

		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal(Cancelled))
		Expect(res.Times).To(Equal([]float64{0}))
	})

	It("should run only once", func() {
		d := New(sys, WithStepper(stepper))
		stepper.EXPECT().
			Integrate(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(integrators.Stats{}, nil)

		_, err := d.Integrate(context.Background(), cfg)
		Expect(err).NotTo(HaveOccurred())

		res, err := d.Integrate(context.Background(), cfg)
		Expect(res).To(BeNil())
		Expect(err).To(MatchError(dynamo.ErrAlreadyStarted))
	})

	DescribeTable("should reject invalid configuration",
		func(mutate func(*Config, *dynamo.System), want error) {
			mutate(&cfg, &sys)
			d := New(sys, WithStepper(stepper))

			res, err := d.Integrate(context.Background(), cfg)

			Expect(errors.Is(err, want)).To(BeTrue(), "got %v", err)
			Expect(res.Status).To(Equal(Failed))
			Expect(d.Status()).To(Equal(Failed))
		},
		Entry("empty span", func(c *Config, _ *dynamo.System) { c.Tf = c.T0 }, dynamo.ErrInvalidConfig),
		Entry("empty state", func(c *Config, _ *dynamo.System) { c.S0 = nil }, dynamo.ErrInvalidConfig),
		Entry("NaN state", func(c *Config, _ *dynamo.System) { c.S0 = dynamo.State{math.NaN()} }, dynamo.ErrInvalidState),
		Entry("zero tolerance", func(c *Config, _ *dynamo.System) { c.AbsTol = 0 }, dynamo.ErrInvalidConfig),
		Entry("negative max step", func(c *Config, _ *dynamo.System) { c.MaxStep = -1 }, dynamo.ErrInvalidConfig),
		Entry("zero resolution", func(c *Config, _ *dynamo.System) { c.Quadrature.Resolution = 0 }, dynamo.ErrInvalidConfig),
		Entry("missing forward", func(_ *Config, s *dynamo.System) { s.Forward = nil }, dynamo.ErrInvalidConfig),
		Entry("kernel without feedback", func(_ *Config, s *dynamo.System) { s.Feedback = nil }, dynamo.ErrInvalidConfig),
	)
})
