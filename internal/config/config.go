package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/equinor/canaryload/internal/scenario"
)

// Defaults applied before presets, files and flags.
const (
	DefaultVUs          = 1
	DefaultSleep        = time.Second
	DefaultGracefulStop = 30 * time.Second
	DefaultTimeout      = 60 * time.Second
	DefaultSampleRate   = 1.0
	DefaultScenarioName = "custom"
)

type Config struct {
	Preset       string            `mapstructure:"preset"`
	Scenario     string            `mapstructure:"-"`
	Target       scenario.Target   `mapstructure:"target"`
	Probes       []scenario.Probe  `mapstructure:"probes"`
	VUs          int               `mapstructure:"vus"`
	Duration     time.Duration     `mapstructure:"duration"`
	Iterations   int               `mapstructure:"iterations"`
	Sleep        time.Duration     `mapstructure:"sleep"`
	Rate         int               `mapstructure:"rate"`
	Arrival      ArrivalConfig     `mapstructure:"arrival"`
	LoadPatterns []LoadPattern     `mapstructure:"load_patterns"`
	GracefulStop time.Duration     `mapstructure:"graceful_stop"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Headers      map[string]string `mapstructure:"headers"`
	UserAgent    string            `mapstructure:"user_agent"`
	Thresholds   []string          `mapstructure:"thresholds"`
	JSONOutput   bool              `mapstructure:"json_output"`
	Dashboard    bool              `mapstructure:"dashboard"`
	LogErrors    bool              `mapstructure:"log_errors"`
	HistoryFile  string            `mapstructure:"history_file"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	LogLevel     string            `mapstructure:"log_level"`
	PrettyLog    *bool             `mapstructure:"pretty_log"`
	ConfigFile   string            `mapstructure:"-"`
	ListPresets  bool              `mapstructure:"-"`
}

type LoadPatternType string

const (
	LoadPatternTypeRamp  LoadPatternType = "ramp"
	LoadPatternTypeStep  LoadPatternType = "step"
	LoadPatternTypeSpike LoadPatternType = "spike"
)

// LoadPattern is one segment of an iteration rate profile. Rates are
// iterations started per second.
type LoadPattern struct {
	Name     string          `mapstructure:"name"`
	Type     LoadPatternType `mapstructure:"type"`
	FromRate int             `mapstructure:"from_rate"`
	ToRate   int             `mapstructure:"to_rate"`
	Duration time.Duration   `mapstructure:"duration"`
	Steps    []LoadStep      `mapstructure:"steps"`
	Rate     int             `mapstructure:"rate"`
}

type LoadStep struct {
	Rate     int           `mapstructure:"rate"`
	Duration time.Duration `mapstructure:"duration"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// TracingConfig controls OpenTelemetry export.
type TracingConfig struct {
	Enable      bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" (default) or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether spans should be exported. Setting an endpoint
// implies enabling; Enable alone relies on OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	return t.Enable || strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether traceparent headers go out with probes.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Definition returns the scenario described by the configuration.
func (c Config) Definition() scenario.Definition {
	name := c.Scenario
	if name == "" {
		name = DefaultScenarioName
	}
	return scenario.Definition{
		Name:     name,
		Target:   c.Target,
		Probes:   append([]scenario.Probe(nil), c.Probes...),
		Sleep:    scenario.Interval(c.Sleep),
		VUs:      c.VUs,
		Duration: scenario.Interval(c.Duration),
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

// Issues returns every problem found, in the order they were detected.
func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if _, err := c.Target.BaseURL(); err != nil {
		issues = append(issues, err.Error()+" (use --target, --app/--cluster or --preset)")
	}
	for idx, p := range c.Probes {
		if err := p.Validate(); err != nil {
			issues = append(issues, fmt.Sprintf("probes[%d]: %v", idx, err))
		}
	}

	if c.VUs < 1 {
		issues = append(issues, "vus must be >= 1")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Iterations < 0 {
		issues = append(issues, "iterations must be >= 0")
	}
	if c.Sleep < 0 {
		issues = append(issues, "sleep must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.GracefulStop < 0 {
		issues = append(issues, "graceful_stop must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing sample_rate must be between 0 and 1, got %g", c.Tracing.SampleRate))
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol %q is not supported", c.Tracing.Protocol))
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateLoadPatterns(c.LoadPatterns)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings lists settings that are valid but likely unintended.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("high iteration rate configured (%d/s); make sure the canary owners expect this load", c.Rate))
	}
	if c.VUs > 500 {
		warnings = append(warnings, fmt.Sprintf("high VU count configured (%d); make sure the canary owners expect this load", c.VUs))
	}
	if c.Duration == 0 && c.Iterations == 0 && len(c.LoadPatterns) == 0 {
		warnings = append(warnings, "no duration or iteration limit; the run lasts until interrupted")
	}
	return warnings
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateLoadPatterns(patterns []LoadPattern) []string {
	var issues []string
	for idx, pattern := range patterns {
		typeLabel := strings.TrimSpace(string(pattern.Type))
		if typeLabel == "" {
			issues = append(issues, fmt.Sprintf("load_patterns[%d]: type is required", idx))
			continue
		}
		switch LoadPatternType(strings.ToLower(typeLabel)) {
		case LoadPatternTypeRamp:
			if pattern.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("load_patterns[%d]: duration must be > 0 for ramp", idx))
			}
			if pattern.FromRate < 0 || pattern.ToRate < 0 {
				issues = append(issues, fmt.Sprintf("load_patterns[%d]: from_rate and to_rate must be >= 0", idx))
			}
		case LoadPatternTypeStep:
			if len(pattern.Steps) == 0 {
				issues = append(issues, fmt.Sprintf("load_patterns[%d]: steps are required for step pattern", idx))
			}
			for stepIdx, step := range pattern.Steps {
				if step.Rate < 0 {
					issues = append(issues, fmt.Sprintf("load_patterns[%d].steps[%d]: rate must be >= 0", idx, stepIdx))
				}
				if step.Duration <= 0 {
					issues = append(issues, fmt.Sprintf("load_patterns[%d].steps[%d]: duration must be > 0", idx, stepIdx))
				}
			}
		case LoadPatternTypeSpike:
			if pattern.Rate <= 0 {
				issues = append(issues, fmt.Sprintf("load_patterns[%d]: rate must be > 0 for spike", idx))
			}
			if pattern.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("load_patterns[%d]: duration must be > 0 for spike", idx))
			}
		default:
			issues = append(issues, fmt.Sprintf("load_patterns[%d]: unsupported type %q", idx, pattern.Type))
		}
	}
	return issues
}
