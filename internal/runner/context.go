package runner

import (
	"context"
	"time"
)

type vuKey struct{}
type iterationKey struct{}
type stopKey struct{}

func withVU(ctx context.Context, vu int) context.Context {
	return context.WithValue(ctx, vuKey{}, vu)
}

func withIteration(ctx context.Context, n int64) context.Context {
	return context.WithValue(ctx, iterationKey{}, n)
}

func withStopSignal(ctx context.Context, stopping <-chan struct{}) context.Context {
	return context.WithValue(ctx, stopKey{}, stopping)
}

// VUFromContext returns the 1-based id of the virtual user running the
// iteration, or 0 outside a run.
func VUFromContext(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	vu, _ := ctx.Value(vuKey{}).(int)
	return vu
}

// IterationFromContext returns the 1-based run-wide iteration number, or 0
// outside a run.
func IterationFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	n, _ := ctx.Value(iterationKey{}).(int64)
	return n
}

func stopSignal(ctx context.Context) <-chan struct{} {
	if ctx == nil {
		return nil
	}
	ch, _ := ctx.Value(stopKey{}).(<-chan struct{})
	return ch
}

// Sleep suspends the calling VU for d. It returns early with a nil error when
// the run stops scheduling iterations, and with ctx.Err() when ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-stopSignal(ctx):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
