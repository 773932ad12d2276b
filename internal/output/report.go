// Package output renders run reports to the terminal, as JSON, and to the
// run history file.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/equinor/canaryload/internal/metrics"
	"github.com/equinor/canaryload/internal/threshold"
)

// Report is the end-of-run summary printed to the user and appended to the
// history file.
type Report struct {
	RunID      string             `json:"run_id"`
	Scenario   string             `json:"scenario"`
	Target     string             `json:"target"`
	VUs        int                `json:"vus"`
	StartedAt  time.Time          `json:"started_at"`
	Stats      metrics.Stats      `json:"stats"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`
	Passed     bool               `json:"passed"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	stats := r.Stats
	fmt.Fprintln(w, "\n--- Canary Load Results ---")
	if r.Scenario != "" {
		fmt.Fprintf(w, "Scenario:          %s\n", r.Scenario)
	}
	if r.Target != "" {
		fmt.Fprintf(w, "Target:            %s\n", r.Target)
	}
	if r.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "VUs:               %d\n", r.VUs)
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)

	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	it := stats.Iterations
	fmt.Fprintln(w, "\nIterations:")
	fmt.Fprintf(w, "  Completed:       %d (%.2f/s)\n", it.Count, it.PerSec)
	fmt.Fprintf(w, "  With failures:   %d\n", it.Failed)
	if it.Interrupted > 0 {
		fmt.Fprintf(w, "  Interrupted:     %d\n", it.Interrupted)
	}
	fmt.Fprintf(w, "  Mean/P95/Max:    %s / %s / %s\n", it.Mean, it.P95, it.Max)

	if rows := metrics.FailureRows(stats); len(rows) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for _, row := range rows {
			probe := row.Probe
			if probe == "" {
				probe = "*"
			}
			fmt.Fprintf(w, "  %s %s: %d\n", probe, row.Code, row.Count)
		}
	}

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, row := range metrics.ErrorKinds(stats.Errors) {
			fmt.Fprintf(w, "  %s: %d\n", row.Kind, row.Count)
		}
	}

	if len(stats.Probes) > 0 {
		fmt.Fprintln(w, "\nProbe Breakdown:")
		for _, name := range probesByVolume(stats) {
			probe := stats.Probes[name]
			share := 0.0
			if stats.Total > 0 {
				share = (float64(probe.Total) / float64(stats.Total)) * 100
			}

			fmt.Fprintf(
				w,
				"  - %s: total=%d (%.1f%%), successes=%d, failures=%d, rps=%.2f, p95=%s, p99=%s\n",
				name,
				probe.Total,
				share,
				probe.Successes,
				probe.Failures,
				probe.RequestsPerSec,
				probe.P95Latency,
				probe.P99Latency,
			)
			if len(probe.StatusCodes) > 0 {
				fmt.Fprintf(w, "    Status Codes: %s\n", formatCounts(probe.StatusCodes))
			}
		}
	}

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
		verdict := "PASSED"
		if !r.Passed {
			verdict = "FAILED"
		}
		fmt.Fprintf(w, "\nThresholds %s\n", verdict)
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// probesByVolume orders probe names by request count, busiest first.
func probesByVolume(stats metrics.Stats) []string {
	names := make([]string, 0, len(stats.Probes))
	for name := range stats.Probes {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := stats.Probes[names[i]], stats.Probes[names[j]]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return names[i] < names[j]
	})
	return names
}

func formatCounts(counts map[string]int) string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}
