package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// RequestMetadata describes a recorded request.
type RequestMetadata struct {
	Probe      string
	Protocol   string
	StatusCode string
}

// LatencySummary is the request outcome and latency distribution shared by
// the run totals and every probe.
type LatencySummary struct {
	Total          int64         `json:"total"`
	Successes      int64         `json:"successes"`
	Failures       int64         `json:"failures"`
	MinLatency     time.Duration `json:"-"`
	MaxLatency     time.Duration `json:"-"`
	MeanLatency    time.Duration `json:"-"`
	P50Latency     time.Duration `json:"-"`
	P90Latency     time.Duration `json:"-"`
	P95Latency     time.Duration `json:"-"`
	P99Latency     time.Duration `json:"-"`
	RequestsPerSec float64       `json:"requests_per_sec"`

	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
}

// ProbeStats is the breakdown for a single probe.
type ProbeStats struct {
	LatencySummary
	StatusCodes  map[string]int `json:"status_codes,omitempty"`
	FailureCodes map[string]int `json:"failure_codes,omitempty"`
	Errors       map[string]int `json:"errors,omitempty"`
}

// IterationStats summarises completed scenario iterations.
type IterationStats struct {
	Count       int64         `json:"count"`
	Failed      int64         `json:"failed"`
	Interrupted int64         `json:"interrupted"`
	PerSec      float64       `json:"per_sec"`
	Mean        time.Duration `json:"-"`
	Max         time.Duration `json:"-"`
	P95         time.Duration `json:"-"`
	MeanMs      float64       `json:"mean_ms"`
	MaxMs       float64       `json:"max_ms"`
	P95Ms       float64       `json:"p95_ms"`
}

// Stats represents aggregated metrics.
type Stats struct {
	LatencySummary
	Duration      time.Duration             `json:"-"`
	DurationMs    float64                   `json:"duration_ms"`
	Errors        map[string]int            `json:"errors,omitempty"`
	StatusBuckets map[string]map[string]int `json:"status_buckets,omitempty"`
	Probes        map[string]ProbeStats     `json:"probes,omitempty"`
	Iterations    IterationStats            `json:"iterations"`
	ActiveVUs     int64                     `json:"active_vus"`
}

// DataPoint is one entry of the collector's time series.
type DataPoint struct {
	Timestamp          time.Time
	TotalRequests      int64
	SuccessfulRequests int64
	Errors             int64
	CurrentRPS         float64
	P99LatencyMs       float64
	ActiveVUs          int64
}

const maxHistory = 3600

type probeEntry struct {
	mu     sync.Mutex
	bucket *latencyBucket
}

type iterationBucket struct {
	mu     sync.Mutex
	hist   *hdrhistogram.Histogram
	count  int64
	failed int64
	sum    time.Duration
	max    time.Duration
}

// Collector records per-request and per-iteration metrics. It is safe for
// concurrent use by any number of VUs.
type Collector struct {
	global     *shardedStats
	probesMu   sync.RWMutex
	probes     map[string]*probeEntry
	iterations iterationBucket
	activeVUs  atomic.Int64

	mu         sync.Mutex
	start      time.Time
	history    []DataPoint
	lastSample DataPoint
}

func NewCollector() *Collector {
	return &Collector{
		global:     newShardedStats(),
		probes:     make(map[string]*probeEntry),
		iterations: iterationBucket{hist: newHistogram()},
		start:      time.Now(),
	}
}

// Start marks the beginning of the run for rate calculations.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
	c.history = nil
	c.lastSample = DataPoint{Timestamp: c.start}
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// RecordRequest records a single request's latency and error state.
func (c *Collector) RecordRequest(latency time.Duration, err error, meta *RequestMetadata) {
	var probe, protocol, status string
	if meta != nil {
		probe, protocol, status = meta.Probe, meta.Protocol, meta.StatusCode
	}
	c.global.record(latency, err, protocol, status)
	if probe == "" {
		return
	}
	entry := c.probe(probe)
	entry.mu.Lock()
	entry.bucket.record(latency, err, protocol, status)
	entry.mu.Unlock()
}

func (c *Collector) probe(name string) *probeEntry {
	c.probesMu.RLock()
	entry, ok := c.probes[name]
	c.probesMu.RUnlock()
	if ok {
		return entry
	}
	c.probesMu.Lock()
	defer c.probesMu.Unlock()
	if entry, ok = c.probes[name]; ok {
		return entry
	}
	entry = &probeEntry{bucket: newLatencyBucket()}
	c.probes[name] = entry
	return entry
}

// RecordIteration records one completed scenario iteration.
func (c *Collector) RecordIteration(d time.Duration, err error) {
	it := &c.iterations
	it.mu.Lock()
	defer it.mu.Unlock()
	it.count++
	if err != nil {
		it.failed++
	}
	it.sum += d
	if d > it.max {
		it.max = d
	}
	recordMicros(it.hist, d)
}

// AddActiveVUs adjusts the number of VUs currently inside an iteration.
func (c *Collector) AddActiveVUs(delta int) {
	c.activeVUs.Add(int64(delta))
}

// ActiveVUs returns the current gauge value.
func (c *Collector) ActiveVUs() int64 {
	return c.activeVUs.Load()
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	stats := c.global.snapshot(elapsed)
	stats.ActiveVUs = c.activeVUs.Load()
	stats.Iterations = c.iterationStats(elapsed)

	c.probesMu.RLock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	c.probesMu.RUnlock()
	if len(names) == 0 {
		return stats
	}

	stats.Probes = make(map[string]ProbeStats, len(names))
	for _, name := range names {
		entry := c.probe(name)
		entry.mu.Lock()
		ps := ProbeStats{}
		fillLatencyStats(&ps.LatencySummary, entry.bucket, elapsed)
		if len(entry.bucket.statusCodes) > 0 {
			ps.StatusCodes = make(map[string]int, len(entry.bucket.statusCodes))
			for code, n := range entry.bucket.statusCodes {
				ps.StatusCodes[code] = int(n)
			}
		}
		for _, codes := range entry.bucket.statusBuckets {
			if ps.FailureCodes == nil {
				ps.FailureCodes = make(map[string]int, len(codes))
			}
			for code, n := range codes {
				ps.FailureCodes[code] += int(n)
			}
		}
		if len(entry.bucket.errorsByType) > 0 {
			ps.Errors = make(map[string]int, len(entry.bucket.errorsByType))
			for k, v := range entry.bucket.errorsByType {
				ps.Errors[k] = int(v)
			}
		}
		entry.mu.Unlock()
		stats.Probes[name] = ps
	}
	return stats
}

func (c *Collector) iterationStats(elapsed time.Duration) IterationStats {
	it := &c.iterations
	it.mu.Lock()
	defer it.mu.Unlock()
	out := IterationStats{Count: it.count, Failed: it.failed, Max: it.max}
	if it.count > 0 {
		out.Mean = time.Duration(int64(it.sum) / it.count)
	}
	if it.hist.TotalCount() > 0 {
		out.P95 = quantile(it.hist, 95)
	}
	if elapsed > 0 {
		out.PerSec = float64(it.count) / elapsed.Seconds()
	}
	out.MeanMs = toMillis(out.Mean)
	out.MaxMs = toMillis(out.Max)
	out.P95Ms = toMillis(out.P95)
	return out
}

// Snapshot appends a point to the time series, computing the request rate
// since the previous snapshot.
func (c *Collector) Snapshot() DataPoint {
	elapsed := c.Elapsed()
	stats := c.global.snapshot(elapsed)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	point := DataPoint{
		Timestamp:          now,
		TotalRequests:      stats.Total,
		SuccessfulRequests: stats.Successes,
		Errors:             stats.Failures,
		P99LatencyMs:       stats.P99LatencyMs,
		ActiveVUs:          c.activeVUs.Load(),
	}
	prev := c.lastSample
	if prev.Timestamp.IsZero() {
		prev.Timestamp = c.start
	}
	if dt := now.Sub(prev.Timestamp).Seconds(); dt > 0 {
		point.CurrentRPS = float64(stats.Total-prev.TotalRequests) / dt
	}
	c.lastSample = point
	c.history = append(c.history, point)
	if len(c.history) > maxHistory {
		c.history = c.history[len(c.history)-maxHistory:]
	}
	return point
}

// History returns a copy of the recorded time series.
func (c *Collector) History() []DataPoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]DataPoint, len(c.history))
	copy(out, c.history)
	return out
}
