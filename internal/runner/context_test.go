package runner

import (
	"context"
	"testing"
	"time"
)

func TestSleepWaitsFullDuration(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 30*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("Sleep returned early")
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Second); err == nil {
		t.Fatalf("expected error from cancelled context")
	}
}

func TestSleepReturnsWhenStopping(t *testing.T) {
	stopping := make(chan struct{})
	ctx := withStopSignal(context.Background(), stopping)
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(stopping)
	}()
	start := time.Now()
	if err := Sleep(ctx, 5*time.Second); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Sleep ignored stop signal")
	}
	if err := Sleep(ctx, 5*time.Second); err != nil || time.Since(start) > time.Second {
		t.Fatalf("Sleep after stop = %v, want immediate nil", err)
	}
}

func TestContextAccessorsOutsideRun(t *testing.T) {
	ctx := context.Background()
	if VUFromContext(ctx) != 0 {
		t.Errorf("VUFromContext outside run should be 0")
	}
	if IterationFromContext(ctx) != 0 {
		t.Errorf("IterationFromContext outside run should be 0")
	}
	ctx = withIteration(withVU(ctx, 7), 42)
	if VUFromContext(ctx) != 7 || IterationFromContext(ctx) != 42 {
		t.Errorf("accessors returned %d/%d", VUFromContext(ctx), IterationFromContext(ctx))
	}
}
