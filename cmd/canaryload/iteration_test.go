package main

import (
	"context"
	"sync"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/equinor/canaryload/internal/metrics"
	"github.com/equinor/canaryload/internal/runner"
	"github.com/equinor/canaryload/internal/scenario"
	"github.com/equinor/canaryload/internal/tracing"
)

type recordingGetter struct {
	mu   sync.Mutex
	urls []string
}

func (g *recordingGetter) Get(_ context.Context, _, url string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.urls = append(g.urls, url)
	return nil
}

func TestTracedIterationSpanAttributes(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	getter := &recordingGetter{}
	scn, err := scenario.New(scenario.Definition{
		Name:   "local",
		Target: scenario.Target{URL: "http://canary.test"},
	}, getter)
	if err != nil {
		t.Fatalf("scenario.New() error = %v", err)
	}
	collector := metrics.NewCollector()

	r := runner.New(runner.Options{
		VUs:        1,
		Iterations: 1,
		Iteration: &tracedIteration{
			scenario:  scn,
			provider:  tracing.NewProvider(tp, false),
			collector: collector,
		},
	})
	result := r.Run(context.Background())
	if result.Iterations != 1 {
		t.Fatalf("Iterations = %d, want 1", result.Iterations)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	counts := map[string]int{}
	for _, attr := range spans[0].Attributes {
		counts[string(attr.Key)]++
	}
	for _, key := range []string{string(tracing.AttrVU), string(tracing.AttrIteration), string(tracing.AttrScenario)} {
		if counts[key] != 1 {
			t.Errorf("attribute %s set %d times, want 1", key, counts[key])
		}
	}

	if got := collector.Stats(result.Duration).Iterations.Count; got != 1 {
		t.Errorf("recorded iterations = %d, want 1", got)
	}
	if len(getter.urls) != 1 || getter.urls[0] != "http://canary.test/status" {
		t.Errorf("urls = %v, want only /status", getter.urls)
	}
}
