package metrics

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const shardCount = 32

// Latencies are tracked from 1µs up to 60s with 3 significant figures.
const (
	histLowest  = 1
	histHighest = 60_000_000
	histSigFigs = 3
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(histLowest, histHighest, histSigFigs)
}

func recordMicros(h *hdrhistogram.Histogram, d time.Duration) {
	if d <= 0 {
		return
	}
	us := d.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// latencyBucket accumulates request outcomes. It is not safe for concurrent
// use; callers hold the owning lock.
type latencyBucket struct {
	hist          *hdrhistogram.Histogram
	successes     int64
	failures      int64
	minLatency    time.Duration
	maxLatency    time.Duration
	sumLatency    time.Duration
	errorsByType  map[string]int64
	statusCodes   map[string]int64
	statusBuckets map[string]map[string]int64
}

func newLatencyBucket() *latencyBucket {
	return &latencyBucket{
		hist:          newHistogram(),
		errorsByType:  make(map[string]int64),
		statusCodes:   make(map[string]int64),
		statusBuckets: make(map[string]map[string]int64),
	}
}

func (b *latencyBucket) record(latency time.Duration, err error, protocol, status string) {
	recordMicros(b.hist, latency)
	b.sumLatency += latency
	if b.successes+b.failures == 0 || latency < b.minLatency {
		b.minLatency = latency
	}
	if latency > b.maxLatency {
		b.maxLatency = latency
	}
	if status != "" {
		b.statusCodes[status]++
	}

	if err == nil {
		b.successes++
		return
	}
	b.failures++
	b.errorsByType[FriendlyErrorName(err)]++

	if status == "" {
		return
	}
	if protocol == "" {
		protocol = "http"
	}
	codes := b.statusBuckets[protocol]
	if codes == nil {
		codes = make(map[string]int64)
		b.statusBuckets[protocol] = codes
	}
	codes[status]++
}

func (b *latencyBucket) merge(other *latencyBucket) {
	if other.successes+other.failures == 0 {
		return
	}
	if b.successes+b.failures == 0 || other.minLatency < b.minLatency {
		b.minLatency = other.minLatency
	}
	if other.maxLatency > b.maxLatency {
		b.maxLatency = other.maxLatency
	}
	b.successes += other.successes
	b.failures += other.failures
	b.sumLatency += other.sumLatency
	b.hist.Merge(other.hist)
	for k, v := range other.errorsByType {
		b.errorsByType[k] += v
	}
	for k, v := range other.statusCodes {
		b.statusCodes[k] += v
	}
	for protocol, codes := range other.statusBuckets {
		dst := b.statusBuckets[protocol]
		if dst == nil {
			dst = make(map[string]int64, len(codes))
			b.statusBuckets[protocol] = dst
		}
		for code, n := range codes {
			dst[code] += n
		}
	}
}

func (b *latencyBucket) total() int64 {
	return b.successes + b.failures
}

type shard struct {
	mu     sync.Mutex
	bucket *latencyBucket
}

// shardedStats spreads writers over independent locks so hundreds of VUs
// don't serialize on a single mutex.
type shardedStats struct {
	shards [shardCount]*shard
}

func newShardedStats() *shardedStats {
	s := &shardedStats{}
	for i := range s.shards {
		s.shards[i] = &shard{bucket: newLatencyBucket()}
	}
	return s
}

func (s *shardedStats) record(latency time.Duration, err error, protocol, status string) {
	sh := s.shards[rand.IntN(shardCount)]
	sh.mu.Lock()
	sh.bucket.record(latency, err, protocol, status)
	sh.mu.Unlock()
}

func (s *shardedStats) merged() *latencyBucket {
	out := newLatencyBucket()
	for _, sh := range s.shards {
		sh.mu.Lock()
		out.merge(sh.bucket)
		sh.mu.Unlock()
	}
	return out
}

func (s *shardedStats) snapshot(elapsed time.Duration) Stats {
	b := s.merged()
	stats := Stats{}
	fillLatencyStats(&stats.LatencySummary, b, elapsed)
	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if len(b.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(b.errorsByType))
		for k, v := range b.errorsByType {
			stats.Errors[k] = int(v)
		}
	}
	if len(b.statusBuckets) > 0 {
		stats.StatusBuckets = make(map[string]map[string]int, len(b.statusBuckets))
		for protocol, codes := range b.statusBuckets {
			out := make(map[string]int, len(codes))
			for code, n := range codes {
				out[code] = int(n)
			}
			stats.StatusBuckets[protocol] = out
		}
	}
	return stats
}

func fillLatencyStats(s *LatencySummary, b *latencyBucket, elapsed time.Duration) {
	total := b.total()
	s.Total = total
	s.Successes = b.successes
	s.Failures = b.failures
	if total == 0 {
		return
	}
	s.MinLatency = b.minLatency
	s.MaxLatency = b.maxLatency
	s.MeanLatency = time.Duration(int64(b.sumLatency) / total)
	if b.hist.TotalCount() > 0 {
		s.P50Latency = quantile(b.hist, 50)
		s.P90Latency = quantile(b.hist, 90)
		s.P95Latency = quantile(b.hist, 95)
		s.P99Latency = quantile(b.hist, 99)
	}
	s.MinLatencyMs = toMillis(s.MinLatency)
	s.MaxLatencyMs = toMillis(s.MaxLatency)
	s.MeanLatencyMs = toMillis(s.MeanLatency)
	s.P50LatencyMs = toMillis(s.P50Latency)
	s.P90LatencyMs = toMillis(s.P90Latency)
	s.P95LatencyMs = toMillis(s.P95Latency)
	s.P99LatencyMs = toMillis(s.P99Latency)
	if elapsed > 0 {
		s.RequestsPerSec = float64(total) / elapsed.Seconds()
	}
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
