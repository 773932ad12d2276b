package runner

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    Options
		validate func(*testing.T, Options)
	}{
		{
			name:  "defaults",
			input: Options{},
			validate: func(t *testing.T, o Options) {
				if o.VUs != 1 {
					t.Errorf("VUs = %d, want 1", o.VUs)
				}
				if o.ArrivalModel != ArrivalModelUniform {
					t.Errorf("ArrivalModel = %q, want %q", o.ArrivalModel, ArrivalModelUniform)
				}
				if o.GracefulStop != DefaultGracefulStop {
					t.Errorf("GracefulStop = %s, want %s", o.GracefulStop, DefaultGracefulStop)
				}
				if o.RandomSeed == 0 {
					t.Error("RandomSeed should be non-zero")
				}
				if o.LimiterFactory == nil {
					t.Error("LimiterFactory should not be nil")
				}
			},
		},
		{
			name: "negative values corrected",
			input: Options{
				VUs:           -5,
				Iterations:    -10,
				IterationRate: -1,
			},
			validate: func(t *testing.T, o Options) {
				if o.VUs != 1 {
					t.Errorf("VUs = %d, want 1", o.VUs)
				}
				if o.Iterations != 0 {
					t.Errorf("Iterations = %d, want 0", o.Iterations)
				}
				if o.IterationRate != 0 {
					t.Errorf("IterationRate = %d, want 0", o.IterationRate)
				}
			},
		},
		{
			name: "preserve valid values",
			input: Options{
				VUs:           300,
				Iterations:    100,
				IterationRate: 50,
				ArrivalModel:  ArrivalModelPoisson,
				GracefulStop:  -1,
				RandomSeed:    12345,
			},
			validate: func(t *testing.T, o Options) {
				if o.VUs != 300 {
					t.Errorf("VUs = %d, want 300", o.VUs)
				}
				if o.Iterations != 100 {
					t.Errorf("Iterations = %d, want 100", o.Iterations)
				}
				if o.IterationRate != 50 {
					t.Errorf("IterationRate = %d, want 50", o.IterationRate)
				}
				if o.ArrivalModel != ArrivalModelPoisson {
					t.Errorf("ArrivalModel = %q, want %q", o.ArrivalModel, ArrivalModelPoisson)
				}
				if o.GracefulStop != -1 {
					t.Errorf("GracefulStop = %s, want -1ns", o.GracefulStop)
				}
				if o.RandomSeed != 12345 {
					t.Errorf("RandomSeed = %d, want 12345", o.RandomSeed)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.input
			opts.normalize()
			tt.validate(t, opts)
		})
	}
}

func TestLimiterFactory(t *testing.T) {
	opts := Options{}
	opts.normalize()

	limiter := opts.LimiterFactory(0)
	if limiter.Limit() != rate.Inf {
		t.Errorf("Limit(0) = %v, want Inf", limiter.Limit())
	}

	limiter = opts.LimiterFactory(20)
	if limiter.Limit() != rate.Limit(20) {
		t.Errorf("Limit(20) = %v, want 20", limiter.Limit())
	}
	if limiter.Burst() != 1 {
		t.Errorf("Burst(20) = %d, want 1", limiter.Burst())
	}
}
