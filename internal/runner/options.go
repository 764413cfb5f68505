package runner

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Iteration abstracts one execution of the scenario body.
// Implementations should return an error when any part of the iteration failed.
type Iteration interface {
	Iterate(ctx context.Context) error
}

// IterationFunc adapts a function to the Iteration interface.
type IterationFunc func(ctx context.Context) error

// Iterate calls f(ctx).
func (f IterationFunc) Iterate(ctx context.Context) error { return f(ctx) }

// ArrivalModel selects how iteration starts are spaced.
type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Options configure the constant-arrival-rate executor.
type Options struct {
	Rate            float64       // iterations started per TimeUnit
	TimeUnit        time.Duration // period Rate refers to (default 1s)
	Duration        time.Duration // how long new iterations are started
	PreAllocatedVUs int           // worker slots started up front
	MaxVUs          int           // upper bound on worker slots
	GracefulStop    time.Duration // time in-flight iterations get after Duration
	ArrivalModel    ArrivalModel
	RandomSeed      int64
	PoissonSampler  func() float64                       // optional injection for tests
	LimiterFactory  func(perSecond float64) *rate.Limiter // optional injection for tests
	Iteration       Iteration                            // scenario body (required)
	Logger          zerolog.Logger
}

// PerSecond returns the target start rate in iterations per second.
func (o Options) PerSecond() float64 {
	unit := o.TimeUnit
	if unit <= 0 {
		unit = time.Second
	}
	return o.Rate / unit.Seconds()
}

func (o *Options) normalize() {
	if o.TimeUnit <= 0 {
		o.TimeUnit = time.Second
	}
	if o.Rate < 0 {
		o.Rate = 0
	}
	if o.PreAllocatedVUs <= 0 {
		o.PreAllocatedVUs = 1
	}
	if o.MaxVUs < o.PreAllocatedVUs {
		o.MaxVUs = o.PreAllocatedVUs
	}
	if o.GracefulStop < 0 {
		o.GracefulStop = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(perSecond float64) *rate.Limiter {
			if perSecond <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one keeps starts evenly spaced.
			return rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}
