package runner

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pausePollInterval is how often a paused arrival controller rechecks its rate.
const pausePollInterval = 50 * time.Millisecond

type arrivalController interface {
	Wait(ctx context.Context) error
	SetRate(ips float64)
}

// newArrivalController returns nil for closed-model runs, where VUs start
// their next iteration as soon as the previous one finishes.
func newArrivalController(opt Options, plan *ratePlan) arrivalController {
	if opt.IterationRate <= 0 && plan == nil {
		return nil
	}

	baseRate := float64(opt.IterationRate)
	if plan != nil {
		if r, ok := plan.iterationRateAt(0); ok {
			baseRate = r
		} else {
			baseRate = 0
		}
	}

	switch opt.ArrivalModel {
	case ArrivalModelPoisson:
		var sampler func() float64
		if opt.PoissonSampler != nil {
			sampler = opt.PoissonSampler
		} else {
			seeded := rand.New(rand.NewSource(opt.RandomSeed))
			sampler = seeded.ExpFloat64
		}
		ctrl := &poissonArrival{sample: sampler}
		ctrl.SetRate(baseRate)
		return ctrl
	default:
		ctrl := &uniformArrival{limiter: opt.LimiterFactory(opt.IterationRate)}
		ctrl.SetRate(baseRate)
		return ctrl
	}
}

// uniformArrival delegates pacing to a rate.Limiter (uniform spacing).
// A rate of zero pauses iteration starts until a positive rate is set.
type uniformArrival struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	paused  bool
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	if u == nil || u.limiter == nil {
		return nil
	}
	for u.isPaused() {
		if err := sleepCtx(ctx, pausePollInterval); err != nil {
			return err
		}
	}
	return u.limiter.Wait(ctx)
}

func (u *uniformArrival) SetRate(ips float64) {
	if u == nil || u.limiter == nil {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if ips <= 0 {
		u.paused = true
		return
	}
	u.paused = false
	u.limiter.SetLimit(rate.Limit(ips))
	u.limiter.SetBurst(1)
}

func (u *uniformArrival) isPaused() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.paused
}

// poissonArrival samples exponential inter-arrival times to approximate a Poisson process.
type poissonArrival struct {
	mu     sync.Mutex
	rate   float64
	sample func() float64
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	for p.currentRate() <= 0 {
		if err := sleepCtx(ctx, pausePollInterval); err != nil {
			return err
		}
	}
	delay := p.nextDelay()
	if delay <= 0 {
		return nil
	}
	return sleepCtx(ctx, delay)
}

func (p *poissonArrival) SetRate(ips float64) {
	if p == nil {
		return
	}
	if ips < 0 {
		ips = 0
	}
	p.mu.Lock()
	p.rate = ips
	p.mu.Unlock()
}

func (p *poissonArrival) currentRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

func (p *poissonArrival) nextDelay() time.Duration {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rate <= 0 || p.sample == nil {
		return 0
	}

	value := p.sample()
	delay := float64(time.Second) * value / p.rate
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
