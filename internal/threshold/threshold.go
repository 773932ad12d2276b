// Package threshold evaluates pass/fail assertions such as
// "http_req_duration:p95 < 500" against a finished run.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/equinor/canaryload/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "http_req_duration", "iterations"
	Probe     string  // optional probe selector from "metric{probe:name}"
	Aggregate string  // e.g., "p95", "avg", "rate"
	Operator  string  // "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-"`
	Expr      string    `json:"threshold"`
	Actual    float64   `json:"actual"`
	Pass      bool      `json:"pass"`
	Message   string    `json:"message"`
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided stats.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, stats))
	}
	return results
}

// AllPassed reports whether every result passed. An empty slice passes.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{
			Threshold: t,
			Expr:      t.Raw,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Expr:      t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+)(?:\{probe:([^}]+)\})?:([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// metricAggregates lists the aggregates each metric supports.
var metricAggregates = map[string][]string{
	"http_req_duration":  {"p50", "p90", "p95", "p99", "avg", "mean", "min", "max"},
	"http_req_failed":    {"rate", "count"},
	"http_reqs":          {"rate", "count"},
	"iterations":         {"rate", "count"},
	"iteration_duration": {"p95", "avg", "mean", "max"},
}

// aliases accepted for compatibility with older threshold files.
var metricAliases = map[string]string{
	"http_requests": "http_reqs",
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "http_req_duration:p95 < 500"                (latency percentile in ms)
// - "http_req_duration{probe:scrypt}:p95 < 2000" (a single probe)
// - "http_req_failed:rate < 0.01"                (failure rate as decimal)
// - "http_reqs:rate > 10"                        (requests per second)
// - "iterations:count >= 100"                    (completed iterations)
// - "iteration_duration:avg < 3000"              (iteration length in ms, sleep included)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'http_req_duration:p95 < 500')", s)
	}

	metric := matches[1]
	probe := strings.TrimSpace(matches[2])
	aggregate := matches[3]
	operator := matches[4]
	valueStr := matches[5]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if canonical, ok := metricAliases[metric]; ok {
		metric = canonical
	}
	aggregates, ok := metricAggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(supportedMetrics(), ", "))
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if probe != "" && !strings.HasPrefix(metric, "http_") {
		return Threshold{}, fmt.Errorf("probe selector is only valid on http_* metrics, got %q", metric)
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Probe:     probe,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

func supportedMetrics() []string {
	names := make([]string, 0, len(metricAggregates))
	for name := range metricAggregates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	return contains([]string{"<", "<=", ">", ">=", "=="}, operator)
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	summary := stats.LatencySummary
	if t.Probe != "" {
		probe, ok := stats.Probes[t.Probe]
		if !ok {
			return 0, fmt.Errorf("no requests recorded for probe %q", t.Probe)
		}
		summary = probe.LatencySummary
	}

	switch t.Metric {
	case "http_req_duration":
		return extractLatencyMetric(t.Aggregate, summary)
	case "http_req_failed":
		return extractFailureMetric(t.Aggregate, summary)
	case "http_reqs":
		return extractRequestMetric(t.Aggregate, summary)
	case "iterations":
		return extractIterationMetric(t.Aggregate, stats.Iterations)
	case "iteration_duration":
		return extractIterationDuration(t.Aggregate, stats.Iterations)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, s metrics.LatencySummary) (float64, error) {
	switch aggregate {
	case "p50":
		return s.P50LatencyMs, nil
	case "p90":
		return s.P90LatencyMs, nil
	case "p95":
		return s.P95LatencyMs, nil
	case "p99":
		return s.P99LatencyMs, nil
	case "avg", "mean":
		return s.MeanLatencyMs, nil
	case "min":
		return s.MinLatencyMs, nil
	case "max":
		return s.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_req_duration", aggregate)
	}
}

func extractFailureMetric(aggregate string, s metrics.LatencySummary) (float64, error) {
	switch aggregate {
	case "count":
		return float64(s.Failures), nil
	case "rate":
		if s.Total == 0 {
			return 0, nil
		}
		return float64(s.Failures) / float64(s.Total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_req_failed (use 'count' or 'rate')", aggregate)
	}
}

func extractRequestMetric(aggregate string, s metrics.LatencySummary) (float64, error) {
	switch aggregate {
	case "count":
		return float64(s.Total), nil
	case "rate":
		return s.RequestsPerSec, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_reqs (use 'count' or 'rate')", aggregate)
	}
}

func extractIterationMetric(aggregate string, it metrics.IterationStats) (float64, error) {
	switch aggregate {
	case "count":
		return float64(it.Count), nil
	case "rate":
		return it.PerSec, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for iterations (use 'count' or 'rate')", aggregate)
	}
}

func extractIterationDuration(aggregate string, it metrics.IterationStats) (float64, error) {
	switch aggregate {
	case "avg", "mean":
		return it.MeanMs, nil
	case "max":
		return it.MaxMs, nil
	case "p95":
		return it.P95Ms, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for iteration_duration", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
