package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/equinor/canaryload/internal/metrics"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	planned   time.Duration
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. planned is the expected run length; zero hides the percentage.
func NewProgressReporter(collector *metrics.Collector, interval, planned time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		planned:   planned,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and ends the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+p.line())
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line() string {
	elapsed := p.collector.Elapsed()
	stats := p.collector.Stats(elapsed)
	line := fmt.Sprintf("Elapsed: %s", elapsed.Truncate(time.Second))
	if p.planned > 0 {
		pct := elapsed.Seconds() / p.planned.Seconds() * 100
		if pct > 100 {
			pct = 100
		}
		line += fmt.Sprintf(" (%.0f%%)", pct)
	}
	line += fmt.Sprintf(" | VUs: %d | Iterations: %d | Requests: %d | Failures: %d | RPS: %.1f",
		stats.ActiveVUs, stats.Iterations.Count, stats.Total, stats.Failures, stats.RequestsPerSec)
	if names := probesByVolume(stats); len(names) > 0 && stats.Total > 0 {
		top := stats.Probes[names[0]]
		share := (float64(top.Total) / float64(stats.Total)) * 100
		line += fmt.Sprintf(" | Top Probe: %s (%.0f%%, P99 %.1fms)", names[0], share, top.P99LatencyMs)
	}
	return line
}
