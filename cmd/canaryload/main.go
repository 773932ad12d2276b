package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/equinor/canaryload/internal/config"
	"github.com/equinor/canaryload/internal/dashboard"
	"github.com/equinor/canaryload/internal/httpclient"
	"github.com/equinor/canaryload/internal/logging"
	"github.com/equinor/canaryload/internal/metrics"
	"github.com/equinor/canaryload/internal/output"
	"github.com/equinor/canaryload/internal/runner"
	"github.com/equinor/canaryload/internal/scenario"
	"github.com/equinor/canaryload/internal/threshold"
	"github.com/equinor/canaryload/internal/tracing"
)

// Exit statuses.
const (
	exitOK          = 0
	exitFailed      = 1
	exitConfigError = 2
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "serve":
			return runServe(ctx, args[1:], stdout, stderr)
		case "history":
			return runHistory(args[1:], stdout, stderr)
		case "version":
			fmt.Fprintf(stdout, "canaryload %s\n", version)
			return exitOK
		}
	}
	return runLoad(ctx, args, stdout, stderr)
}

func runLoad(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.NewLoader(version).Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfigError
	}
	if cfg.ListPresets {
		return listPresets(stdout)
	}

	runID := ulid.Make().String()
	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.PrettyLog,
		Out:    stderr,
	}).With().Str("run_id", runID).Logger()
	if cfg.Dashboard {
		// termui owns the terminal; only errors make it through.
		logger = logger.Level(max(logger.GetLevel(), zerolog.ErrorLevel))
	}

	if err := cfg.Validate(); err != nil {
		var verr config.ValidationError
		if !errors.As(err, &verr) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitConfigError
		}
		fmt.Fprintln(stderr, "Error: invalid configuration:")
		for _, issue := range verr.Issues() {
			logger.Debug().Str("issue", issue).Msg("invalid configuration")
			fmt.Fprintf(stderr, "  - %s\n", issue)
		}
		return exitConfigError
	}
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfigError
	}
	headers, err := httpclient.ParseHeaders(cfg.Headers)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfigError
	}

	provider, err := tracing.Init(ctx, cfg.Tracing, attribute.String("canaryload.run_id", runID))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfigError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	collector := metrics.NewCollector()
	prober := httpclient.NewProber(httpclient.NewClient(cfg.Timeout, cfg.VUs), httpclient.ProberOptions{
		Collector: collector,
		Tracing:   provider,
		Headers:   headers,
		UserAgent: cfg.UserAgent,
		RunID:     runID,
		Logger:    logger,
		LogErrors: cfg.LogErrors,
	})

	def := cfg.Definition()
	scn, err := scenario.New(def, prober)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitConfigError
	}
	baseURL, _ := def.Target.BaseURL()

	iteration := runner.WithLogging(&tracedIteration{
		scenario:  scn,
		provider:  provider,
		collector: collector,
	}, zerologFailureLogger{logger: logger})

	r := runner.New(runner.Options{
		VUs:           cfg.VUs,
		Iterations:    cfg.Iterations,
		Duration:      cfg.Duration,
		IterationRate: cfg.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival.Model),
		LoadPatterns:  toRunnerLoadPatterns(cfg.LoadPatterns),
		GracefulStop:  cfg.GracefulStop,
		Iteration:     iteration,
		OnVUActive:    collector.AddActiveVUs,
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	logger.Info().
		Str("scenario", scn.Name).
		Str("target", baseURL).
		Int("vus", cfg.VUs).
		Dur("duration", cfg.Duration).
		Int("iterations", cfg.Iterations).
		Strs("probes", scn.Requests()).
		Msg("starting run")

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, dashboard.RunConfig{
			RunID:      runID,
			Scenario:   scn.Name,
			Target:     baseURL,
			VUs:        cfg.VUs,
			Duration:   cfg.Duration,
			Iterations: cfg.Iterations,
			Rate:       cfg.Rate,
			Sleep:      cfg.Sleep,
			Timeout:    cfg.Timeout,
			ConfigFile: cfg.ConfigFile,
		}, stop)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailed
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(collector, progressInterval, r.PlannedDuration(), stderr)
		progress.Start()
	}

	startedAt := time.Now().UTC()
	collector.Start()
	result := r.Run(runCtx)

	if progress != nil {
		progress.Stop()
	}
	if dash != nil {
		dash.Stop()
	}

	stats := collector.Stats(result.Duration)
	stats.Iterations.Interrupted = result.Interrupted

	results := threshold.NewEvaluator(thresholds).Evaluate(stats)
	report := output.Report{
		RunID:      runID,
		Scenario:   scn.Name,
		Target:     baseURL,
		VUs:        cfg.VUs,
		StartedAt:  startedAt,
		Stats:      stats,
		Thresholds: results,
		Passed:     threshold.AllPassed(results),
	}

	logger.Info().
		Int64("iterations", result.Iterations).
		Int64("interrupted", result.Interrupted).
		Int64("requests", stats.Total).
		Int64("failed", stats.Failures).
		Dur("elapsed", result.Duration).
		Bool("passed", report.Passed).
		Msg("run finished")

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(stdout, report); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitFailed
		}
	} else {
		output.PrintReport(stdout, report)
	}

	if cfg.HistoryFile != "" {
		if err := output.AppendHistory(cfg.HistoryFile, report); err != nil {
			logger.Error().Err(err).Str("file", cfg.HistoryFile).Msg("unable to append run history")
		}
	}

	if !report.Passed {
		return exitFailed
	}
	return exitOK
}

func listPresets(w io.Writer) int {
	for _, name := range scenario.PresetNames() {
		def, err := scenario.Preset(name)
		if err != nil {
			fmt.Fprintf(w, "%s\n", name)
			continue
		}
		fmt.Fprintf(w, "%-22s vus=%-4d duration=%-8s %s\n", name, def.VUs, def.Duration, def.Description)
	}
	return exitOK
}

// tracedIteration runs one scenario iteration inside its own span and records
// the iteration in the collector unless the run aborted it.
type tracedIteration struct {
	scenario  *scenario.Scenario
	provider  *tracing.Provider
	collector *metrics.Collector
}

func (t *tracedIteration) Run(ctx context.Context) error {
	ctx, span := tracing.StartIterationSpan(ctx, t.provider.Tracer(), t.scenario.Name)
	start := time.Now()
	err := t.scenario.Run(ctx)
	elapsed := time.Since(start)
	tracing.EndSpan(span, err)
	if ctx.Err() == nil {
		t.collector.RecordIteration(elapsed, err)
	}
	return err
}

type zerologFailureLogger struct {
	logger zerolog.Logger
}

func (l zerologFailureLogger) LogFailure(ctx context.Context, err error) {
	if err == nil {
		return
	}
	ev := l.logger.Warn()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		ev = l.logger.Debug()
	}
	ev.Err(err).
		Int("vu", runner.VUFromContext(ctx)).
		Int64("iteration", runner.IterationFromContext(ctx)).
		Msg("iteration failed")
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

func toRunnerLoadPatterns(patterns []config.LoadPattern) []runner.LoadPattern {
	if len(patterns) == 0 {
		return nil
	}
	result := make([]runner.LoadPattern, len(patterns))
	for i, p := range patterns {
		result[i] = runner.LoadPattern{
			Name:     p.Name,
			Type:     runner.LoadPatternType(strings.ToLower(string(p.Type))),
			FromRate: p.FromRate,
			ToRate:   p.ToRate,
			Duration: p.Duration,
			Steps:    toRunnerLoadSteps(p.Steps),
			Rate:     p.Rate,
		}
	}
	return result
}

func toRunnerLoadSteps(steps []config.LoadStep) []runner.LoadStep {
	if len(steps) == 0 {
		return nil
	}
	result := make([]runner.LoadStep, len(steps))
	for i, s := range steps {
		result[i] = runner.LoadStep{
			Rate:     s.Rate,
			Duration: s.Duration,
		}
	}
	return result
}
