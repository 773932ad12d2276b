package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Result captures execution summary.
type Result struct {
	Iterations  int64 // iterations that ran to completion (successfully or not)
	Errors      int64 // completed iterations that returned an error
	Interrupted int64 // iterations cancelled after the graceful stop period
	Duration    time.Duration
}

// Runner drives virtual users through repeated scenario iterations.
type Runner struct {
	opt     Options
	plan    *ratePlan
	arrival arrivalController
}

func New(opt Options) *Runner {
	opt.normalize()
	plan := compileRatePlan(opt.LoadPatterns)
	arrival := newArrivalController(opt, plan)
	return &Runner{opt: opt, plan: plan, arrival: arrival}
}

// PlannedDuration is the expected wall-clock length of the run, or zero when
// the run is bounded only by iterations or interruption.
func (r *Runner) PlannedDuration() time.Duration {
	planned := r.opt.Duration
	if total := r.plan.length(); total > 0 && (planned == 0 || total < planned) {
		planned = total
	}
	return planned
}

// Run blocks until the run stops and every VU has returned.
//
// Stopping happens when the duration elapses, the iteration budget is spent,
// the load pattern plan ends, or ctx is cancelled. No iteration starts after
// that; in-flight iterations keep running for GracefulStop before their
// context is cancelled. Cancelling ctx itself aborts in-flight work at once.
func (r *Runner) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	var completed, errs, interrupted int64

	iterCtx, cancelIterations := context.WithCancel(ctx)
	defer cancelIterations()

	stopCtx, stop := context.WithCancel(ctx)
	defer stop()
	if r.opt.Duration > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(stopCtx, r.opt.Duration)
		stopCtx = deadlineCtx
		defer deadlineCancel()
	}

	if r.plan != nil {
		go r.runPatternController(stopCtx, stop)
	}

	finished := make(chan struct{})
	go r.enforceGracefulStop(stopCtx, finished, cancelIterations)

	permits := make(chan int64)

	// Scheduler: the only place iteration numbers are allocated, so the
	// iteration budget and the arrival rate are enforced across all VUs.
	go func() {
		defer close(permits)
		var issued int64
		for {
			if stopCtx.Err() != nil {
				return
			}
			if r.opt.Iterations > 0 && issued >= int64(r.opt.Iterations) {
				return
			}
			if r.arrival != nil {
				if err := r.arrival.Wait(stopCtx); err != nil {
					return
				}
			}
			select {
			case permits <- issued + 1:
				issued++
			case <-stopCtx.Done():
				return
			}
		}
	}()

	base := withStopSignal(iterCtx, stopCtx.Done())

	var wg sync.WaitGroup
	wg.Add(r.opt.VUs)
	for i := 0; i < r.opt.VUs; i++ {
		vuCtx := withVU(base, i+1)
		go func() {
			defer wg.Done()
			for n := range permits {
				if stopCtx.Err() != nil {
					continue
				}
				if r.opt.Iteration == nil {
					continue
				}
				r.vuActive(1)
				err := r.opt.Iteration.Run(withIteration(vuCtx, n))
				r.vuActive(-1)

				switch {
				case iterCtx.Err() != nil:
					atomic.AddInt64(&interrupted, 1)
				case err != nil:
					atomic.AddInt64(&completed, 1)
					atomic.AddInt64(&errs, 1)
				default:
					atomic.AddInt64(&completed, 1)
				}
			}
		}()
	}
	wg.Wait()
	close(finished)

	return Result{
		Iterations:  atomic.LoadInt64(&completed),
		Errors:      atomic.LoadInt64(&errs),
		Interrupted: atomic.LoadInt64(&interrupted),
		Duration:    time.Since(start),
	}
}

func (r *Runner) vuActive(delta int) {
	if r.opt.OnVUActive != nil {
		r.opt.OnVUActive(delta)
	}
}

func (r *Runner) enforceGracefulStop(stopCtx context.Context, finished <-chan struct{}, cancel context.CancelFunc) {
	select {
	case <-finished:
		return
	case <-stopCtx.Done():
	}
	if r.opt.GracefulStop < 0 {
		cancel()
		return
	}
	timer := time.NewTimer(r.opt.GracefulStop)
	defer timer.Stop()
	select {
	case <-finished:
	case <-timer.C:
		cancel()
	}
}

func (r *Runner) runPatternController(ctx context.Context, stop context.CancelFunc) {
	if r.plan == nil || r.arrival == nil {
		return
	}
	// The plan ending is a stop condition of its own.
	defer stop()

	start := time.Now()
	if initial, ok := r.plan.iterationRateAt(0); ok {
		r.arrival.SetRate(initial)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed := time.Since(start)
			ips, ok := r.plan.iterationRateAt(elapsed)
			if !ok {
				return
			}
			r.arrival.SetRate(ips)
		}
	}
}
