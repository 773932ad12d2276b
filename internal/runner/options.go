package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultGracefulStop is how long in-flight iterations may keep running after
// the run is asked to stop when Options.GracefulStop is zero.
const DefaultGracefulStop = 30 * time.Second

// Iteration is one execution of a scenario body.
// Implementations should return an error only for failures they want counted.
type Iteration interface {
	Run(ctx context.Context) error
}

// IterationFunc adapts a plain function to the Iteration interface.
type IterationFunc func(ctx context.Context) error

func (f IterationFunc) Run(ctx context.Context) error { return f(ctx) }

// ArrivalModel selects how iteration start times are spaced in open-model runs.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// LoadPatternType identifies the shape of a load pattern segment.
type LoadPatternType string

const (
	LoadPatternTypeRamp  LoadPatternType = "ramp"
	LoadPatternTypeStep  LoadPatternType = "step"
	LoadPatternTypeSpike LoadPatternType = "spike"
)

// LoadPattern describes a segment of the iteration rate profile.
type LoadPattern struct {
	Name     string
	Type     LoadPatternType
	FromRate int
	ToRate   int
	Duration time.Duration
	Steps    []LoadStep
	Rate     int
}

// LoadStep is a fixed-rate step inside a step pattern.
type LoadStep struct {
	Rate     int
	Duration time.Duration
}

// Options configure the Runner.
type Options struct {
	VUs            int                         // number of virtual users (concurrent iteration streams)
	Iterations     int                         // total iterations to start (0 means unlimited)
	Duration       time.Duration               // no new iterations start after this (0 means no cap)
	IterationRate  int                         // iterations started per second (0 means closed loop)
	ArrivalModel   ArrivalModel                // spacing of iteration starts when a rate is set
	LoadPatterns   []LoadPattern               // optional iteration rate profile
	GracefulStop   time.Duration               // 0 means DefaultGracefulStop, negative cancels immediately
	Iteration      Iteration                   // scenario body (required)
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	RandomSeed     int64
	PoissonSampler func() float64
	OnVUActive     func(delta int) // optional hook when a VU starts or finishes an iteration
}

func (o *Options) normalize() {
	if o.VUs <= 0 {
		o.VUs = 1
	}
	if o.Iterations < 0 {
		o.Iterations = 0
	}
	if o.IterationRate < 0 {
		o.IterationRate = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.GracefulStop == 0 {
		o.GracefulStop = DefaultGracefulStop
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}
