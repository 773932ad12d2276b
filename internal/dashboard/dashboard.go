// Package dashboard renders a live termui view of a running canary load.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/equinor/canaryload/internal/metrics"
)

const (
	sparklinePoints = 100
	maxFailureRows  = 10
)

// RunConfig holds the run parameters shown in the summary panel.
type RunConfig struct {
	RunID      string        // Run identifier
	Scenario   string        // Scenario or preset name
	Target     string        // Base URL of the canary
	VUs        int           // Number of virtual users
	Duration   time.Duration // Run duration (0 = unlimited)
	Iterations int           // Iteration budget (0 = unlimited)
	Rate       int           // Iterations per second (0 = unlimited)
	Sleep      time.Duration // Pause at the end of each iteration
	Timeout    time.Duration // Request timeout
	ConfigFile string        // Path to config file if used
}

// Dashboard renders a live terminal UI for canary load metrics.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	rpsGauge       *widgets.Gauge
	vuGauge        *widgets.Gauge
	errorList      *widgets.List
	probeList      *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	iterationPara  *widgets.Paragraph
	peakRPS        float64
	startTime      time.Time
	testDuration   time.Duration
	runConfig      RunConfig
}

// New creates a new Dashboard. shutdownFunc is called when the user presses
// q or Ctrl-C.
func New(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:    collector,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		startTime:    time.Now(),
		runConfig:    cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "P99 latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP95: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.vuGauge = widgets.NewGauge()
	d.vuGauge.Title = "Active VUs"
	d.vuGauge.BarColor = ui.ColorMagenta
	d.vuGauge.BorderStyle.Fg = ui.ColorCyan
	d.vuGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failures"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.probeList = widgets.NewList()
	d.probeList.Title = "Probes"
	d.probeList.Rows = []string{"Awaiting data"}
	d.probeList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.probeList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Canary Load"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Requests"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan

	d.iterationPara = widgets.NewParagraph()
	d.iterationPara.Title = "Iterations"
	d.iterationPara.Text = "Waiting for data..."
	d.iterationPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.10,
			ui.NewCol(0.5, d.rpsGauge),
			ui.NewCol(0.5, d.vuGauge),
		),
		ui.NewRow(0.22,
			ui.NewCol(0.5, d.metricsPara),
			ui.NewCol(0.5, d.iterationPara),
		),
		ui.NewRow(0.24,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.6, d.probeList),
			ui.NewCol(0.4, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	d.testDuration = time.Since(d.startTime)
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// GetFinalStats returns the final statistics after the dashboard has stopped.
func (d *Dashboard) GetFinalStats() metrics.Stats {
	return d.collector.Stats(d.testDuration)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// keep rendering until Stop cancels the context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(d.collector.Snapshot())
			d.render()
		}
	}
}

// update refreshes all widget data from the collector. point carries the
// interval request rate; the totals come from a full Stats call.
func (d *Dashboard) update(point metrics.DataPoint) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)

	if stats.Total > 0 {
		d.latencySparkle.Sparklines[0].Data = p99Series(d.collector.History(), sparklinePoints)
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | P99: %.2fms | Min: %.2fms | Max: %.2fms",
			point.P99LatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	d.rpsGauge.Percent, d.rpsGauge.Label = d.rpsGaugeValue(point.CurrentRPS)
	d.vuGauge.Percent, d.vuGauge.Label = vuGaugeValue(stats.ActiveVUs, d.runConfig.VUs)

	successRate := 0.0
	if stats.Total > 0 {
		successRate = (float64(stats.Successes) / float64(stats.Total)) * 100
	}

	d.summaryPara.Text = fmt.Sprintf(
		"Scenario: %s | Target: %s\n%s\nElapsed: %s | Requests: %d | Success Rate: %.1f%% | press q to stop",
		d.runConfig.Scenario,
		d.runConfig.Target,
		d.formatRunParams(),
		elapsed.Round(time.Second),
		stats.Total,
		successRate,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Total Requests:    %d\nSuccessful:        %d\nFailed:            %d\nCurrent RPS:       %.2f\nAverage RPS:       %.2f\nSuccess Rate:      %.1f%%",
		stats.Total,
		stats.Successes,
		stats.Failures,
		point.CurrentRPS,
		stats.RequestsPerSec,
		successRate,
	)

	it := stats.Iterations
	d.iterationPara.Text = fmt.Sprintf(
		"Completed:         %d\nWith failures:     %d\nPer second:        %.2f\nMean duration:     %.0fms\nP95 duration:      %.0fms\nMax duration:      %.0fms",
		it.Count,
		it.Failed,
		it.PerSec,
		it.MeanMs,
		it.P95Ms,
		it.MaxMs,
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP95:  %.2fms\nP99:  %.2fms",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P95LatencyMs,
		stats.P99LatencyMs,
	)

	d.errorList.Rows = formatFailureRows(stats)
	d.updateProbeList(stats)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// rpsGaugeValue scales the gauge against the peak rate seen so far.
func (d *Dashboard) rpsGaugeValue(current float64) (int, string) {
	if current > d.peakRPS {
		d.peakRPS = current
	}
	label := fmt.Sprintf("%.1f RPS (peak %.1f)", current, d.peakRPS)
	if d.peakRPS <= 0 {
		return 0, label
	}
	return int(current / d.peakRPS * 100), label
}

func vuGaugeValue(active int64, total int) (int, string) {
	label := fmt.Sprintf("%d / %d", active, total)
	if total <= 0 {
		return 0, label
	}
	pct := int(active * 100 / int64(total))
	if pct > 100 {
		pct = 100
	}
	return pct, label
}

func (d *Dashboard) updateProbeList(stats metrics.Stats) {
	if len(stats.Probes) == 0 {
		d.probeList.Rows = []string{"[No probe data](fg:green)"}
		return
	}
	type probeRow struct {
		name string
		stat metrics.ProbeStats
	}
	rows := make([]probeRow, 0, len(stats.Probes))
	for name, stat := range stats.Probes {
		rows = append(rows, probeRow{name: name, stat: stat})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].stat.Total == rows[j].stat.Total {
			return rows[i].name < rows[j].name
		}
		return rows[i].stat.Total > rows[j].stat.Total
	})
	formatted := make([]string, 0, len(rows))
	for _, entry := range rows {
		share := 0.0
		if stats.Total > 0 {
			share = (float64(entry.stat.Total) / float64(stats.Total)) * 100
		}
		codes := summarizeStatusCodes(entry.stat.StatusCodes, 3)
		if codes == "" {
			codes = "Status n/a"
		} else {
			codes = "Status " + codes
		}
		formatted = append(formatted, fmt.Sprintf("[%s](fg:cyan) | %5.1f%% | RPS %5.1f | P95 %6.1fms | Err %d | %s",
			entry.name,
			share,
			entry.stat.RequestsPerSec,
			entry.stat.P95LatencyMs,
			entry.stat.Failures,
			codes,
		))
	}
	d.probeList.Rows = formatted
}

// p99Series returns the P99 latency of the last n points of the series.
func p99Series(history []metrics.DataPoint, n int) []float64 {
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]float64, len(history))
	for i, p := range history {
		out[i] = p.P99LatencyMs
	}
	return out
}

// formatFailureRows lists failures by probe and code, followed by the error
// kinds behind them.
func formatFailureRows(stats metrics.Stats) []string {
	rows := metrics.FailureRows(stats)
	kinds := metrics.ErrorKinds(stats.Errors)
	if len(rows) == 0 && len(kinds) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	formatted := make([]string, 0, maxFailureRows)
	for _, row := range rows {
		if len(formatted) == maxFailureRows {
			break
		}
		probe := row.Probe
		if probe == "" {
			probe = "*"
		}
		formatted = append(formatted, fmt.Sprintf("[%s %s](fg:red) %d", probe, row.Code, row.Count))
	}
	for _, kind := range kinds {
		if len(formatted) == maxFailureRows {
			break
		}
		formatted = append(formatted, fmt.Sprintf("[%s](fg:yellow) %d", kind.Kind, kind.Count))
	}
	return formatted
}

// summarizeStatusCodes lists the most frequent codes first.
func summarizeStatusCodes(codes map[string]int, limit int) string {
	if len(codes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Slice(keys, func(i, j int) bool {
		if codes[keys[i]] == codes[keys[j]] {
			return keys[i] < keys[j]
		}
		return codes[keys[i]] > codes[keys[j]]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	parts := make([]string, 0, len(keys))
	for _, code := range keys {
		parts = append(parts, fmt.Sprintf("%s x%d", code, codes[code]))
	}
	return strings.Join(parts, ", ")
}

func (d *Dashboard) formatRunParams() string {
	cfg := d.runConfig
	var parts []string

	if cfg.VUs > 0 {
		parts = append(parts, fmt.Sprintf("VUs: %d", cfg.VUs))
	}

	if cfg.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", cfg.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if cfg.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", cfg.Duration))
	}

	if cfg.Iterations > 0 {
		parts = append(parts, fmt.Sprintf("Iterations: %d", cfg.Iterations))
	}

	parts = append(parts, fmt.Sprintf("Sleep: %s", cfg.Sleep))

	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}

	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	if cfg.RunID != "" {
		parts = append(parts, fmt.Sprintf("Run: %s", cfg.RunID))
	}

	return strings.Join(parts, " | ")
}
