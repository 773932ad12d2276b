package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/equinor/canaryload/internal/metrics"
	"github.com/equinor/canaryload/internal/runner"
	"github.com/equinor/canaryload/internal/tracing"
)

// RunHeader carries the run id on every probe request so canary logs can be
// correlated with a load run.
const RunHeader = "X-Canaryload-Run"

const (
	maxLoggedBodyBytes = 1024
	maxDrainBytes      = 1 << 20
)

// ProberOptions configure a Prober.
type ProberOptions struct {
	Collector *metrics.Collector
	Tracing   *tracing.Provider
	Headers   http.Header
	UserAgent string
	RunID     string
	Logger    zerolog.Logger
	// LogErrors raises failed requests from debug to warn level.
	LogErrors bool
}

// Prober issues probe GETs and records their outcome. It is safe for
// concurrent use by all VUs.
type Prober struct {
	client    *http.Client
	collector *metrics.Collector
	tracing   *tracing.Provider
	headers   http.Header
	userAgent string
	runID     string
	logger    zerolog.Logger
	logErrors bool
}

func NewProber(client *http.Client, opts ProberOptions) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	collector := opts.Collector
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Prober{
		client:    client,
		collector: collector,
		tracing:   opts.Tracing,
		headers:   opts.Headers.Clone(),
		userAgent: opts.UserAgent,
		runID:     opts.RunID,
		logger:    opts.Logger,
		logErrors: opts.LogErrors,
	}
}

// Get issues a GET to url and records it under name. The response body is
// drained and discarded. Non-2xx/3xx responses yield *HTTPError.
func (p *Prober) Get(ctx context.Context, name, url string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	meta := &metrics.RequestMetadata{Probe: name, Protocol: "http"}

	ctx, span := tracing.StartRequestSpan(ctx, p.tracing.Tracer(), name, url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		meta.StatusCode = StatusCode(err)
		p.finish(ctx, span, time.Since(start), err, meta, url, 0)
		return err
	}
	for key, values := range p.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	if p.runID != "" {
		req.Header.Set(RunHeader, p.runID)
	}
	if p.tracing.ShouldPropagate() {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := p.client.Do(req)
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		// Aborted by the run shutting down, not a canary failure.
		tracing.EndSpan(span, err)
		return err
	}
	if err != nil {
		meta.StatusCode = StatusCode(err)
		p.finish(ctx, span, time.Since(start), err, meta, url, 0)
		return err
	}

	var resultErr error
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
		resultErr = &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
	latency := time.Since(start)

	meta.StatusCode = strconv.Itoa(resp.StatusCode)
	p.finish(ctx, span, latency, resultErr, meta, url, resp.StatusCode)
	return resultErr
}

func (p *Prober) finish(ctx context.Context, span trace.Span, latency time.Duration, err error, meta *metrics.RequestMetadata, url string, status int) {
	p.collector.RecordRequest(latency, err, meta)

	var attrs []attribute.KeyValue
	if status > 0 {
		attrs = append(attrs, tracing.StatusCode(status))
	}
	tracing.EndSpan(span, err, attrs...)

	if err == nil {
		return
	}
	level := zerolog.DebugLevel
	if p.logErrors {
		level = zerolog.WarnLevel
	}
	event := p.logger.WithLevel(level).
		Str("probe", meta.Probe).
		Str("url", url).
		Str("status", meta.StatusCode).
		Dur("latency", latency).
		Err(err)
	if vu := runner.VUFromContext(ctx); vu > 0 {
		event = event.Int("vu", vu).Int64("iteration", runner.IterationFromContext(ctx))
	}
	event.Msg("probe failed")
}
