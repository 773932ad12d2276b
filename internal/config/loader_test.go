package config

import (
	"io"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/equinor/canaryload/internal/scenario"
)

func TestLookupSettingSpellings(t *testing.T) {
	settings := map[string]interface{}{"graceful-stop": "5s", "Log_Level": "debug"}
	for _, key := range []string{"graceful_stop", "gracefulStop", "graceful-stop"} {
		if v, ok := lookupSetting(settings, key); !ok || v != "5s" {
			t.Errorf("lookupSetting(%q) = %v, %v", key, v, ok)
		}
	}
	if v, ok := lookupSetting(settings, "missing", "log_level"); !ok || v != "debug" {
		t.Errorf("lookupSetting(missing, log_level) = %v, %v", v, ok)
	}
}

func TestAsString(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    string
		wantErr bool
	}{
		{input: "https://www-radix-canary-golang-qa.playground.radix.equinor.com", want: "https://www-radix-canary-golang-qa.playground.radix.equinor.com"},
		{input: 5000, want: "5000"},
		{input: nil, want: ""},
		{input: []interface{}{"/error"}, wantErr: true},
		{input: map[string]interface{}{"url": "x"}, wantErr: true},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("asString(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    int
		wantErr bool
	}{
		{input: 10, want: 10},
		{input: " 25 ", want: 25},
		{input: int64(50), want: 50},
		{input: uint8(3), want: 3},
		{input: float64(10.0), want: 10},
		{input: nil, want: 0},
		{input: 2.5, wantErr: true},
		{input: 1e300, wantErr: true},
		{input: uint64(1 << 63), wantErr: true},
		{input: "many", wantErr: true},
		{input: true, wantErr: true},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("asInt(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    bool
		wantErr bool
	}{
		{input: true, want: true},
		{input: "true", want: true},
		{input: "0", want: false},
		{input: nil, want: false},
		{input: "sometimes", wantErr: true},
		{input: 1, wantErr: true},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("asBool(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsInterval(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    time.Duration
		wantErr bool
	}{
		{input: time.Second, want: time.Second},
		{input: "30m", want: 30 * time.Minute},
		{input: "1800", want: 30 * time.Minute},
		{input: 1800, want: 30 * time.Minute},
		{input: 1.5, want: 1500 * time.Millisecond},
		{input: nil, want: 0},
		{input: "-1s", wantErr: true},
		{input: -2, wantErr: true},
		{input: 1e20, wantErr: true},
		{input: "inf", wantErr: true},
		{input: []interface{}{"1s"}, wantErr: true},
	}

	for _, tt := range tests {
		got, err := asInterval(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("asInterval(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("asInterval(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsHeaders(t *testing.T) {
	got, err := asHeaders(map[string]interface{}{"x-canary-owner": " radix ", "accept": "application/json"})
	if err != nil {
		t.Fatalf("asHeaders() error = %v", err)
	}
	if got["X-Canary-Owner"] != "radix" || got["Accept"] != "application/json" {
		t.Errorf("asHeaders() = %v", got)
	}
	if _, err := asHeaders(map[string]interface{}{" ": "x"}); err == nil {
		t.Error("asHeaders() with empty key error = nil")
	}
	if _, err := asHeaders([]interface{}{"Accept=x"}); err == nil {
		t.Error("asHeaders(list) error = nil")
	}
}

func TestParseTarget(t *testing.T) {
	base := scenario.Target{Scheme: "https", App: "www-radix-canary-golang-dev", Cluster: "dev.radix.equinor.com"}
	tests := []struct {
		name    string
		input   interface{}
		want    scenario.Target
		wantErr bool
	}{
		{name: "url string", input: "http://localhost:5000", want: scenario.Target{URL: "http://localhost:5000"}},
		{name: "empty string keeps base", input: " ", want: base},
		{name: "field override", input: map[string]interface{}{"cluster_name": "playground.radix.equinor.com"}, want: scenario.Target{Scheme: "https", App: base.App, Cluster: "playground.radix.equinor.com"}},
		{name: "scheme lowered", input: map[string]interface{}{"scheme": "HTTP"}, want: scenario.Target{Scheme: "http", App: base.App, Cluster: base.Cluster}},
		{name: "bad url string", input: "ftp://canary", wantErr: true},
		{name: "bad url field", input: map[string]interface{}{"url": "localhost:5000"}, wantErr: true},
		{name: "list", input: []interface{}{"x"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTarget(tt.input, base)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseTarget() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseScenarioEntriesRejectsBadInput(t *testing.T) {
	tests := map[string]interface{}{
		"probability out of range": []interface{}{map[string]interface{}{"path": "/error", "probability": 1.5}},
		"relative path":            []interface{}{"error=0.5"},
		"nested list":              []interface{}{[]interface{}{"/error"}},
		"not a list":               "/error",
	}
	for name, input := range tests {
		if _, err := parseProbes(input); err == nil {
			t.Errorf("%s: parseProbes() error = nil", name)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := &Config{}
	settings := map[string]interface{}{
		"name": "nightly",
		"target": map[string]interface{}{
			"app":     "www-radix-canary-golang-prod",
			"cluster": "radix.equinor.com",
		},
		"probes": []interface{}{
			map[string]interface{}{"path": "/error", "probability": 0.25},
			"/calculatehashesbcrypt=0.1",
		},
		"vus":           10,
		"sleep":         "2s",
		"graceful_stop": "5s",
		"timeout":       "5s",
		"headers": map[string]interface{}{
			"x-canary-owner": "radix",
		},
		"thresholds": []interface{}{"http_req_failed:rate < 0.5"},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Scenario != "nightly" {
		t.Errorf("Scenario = %q, want nightly", cfg.Scenario)
	}
	if cfg.Target.App != "www-radix-canary-golang-prod" {
		t.Errorf("Target.App = %q", cfg.Target.App)
	}
	if cfg.Target.Cluster != "radix.equinor.com" {
		t.Errorf("Target.Cluster = %q", cfg.Target.Cluster)
	}
	if len(cfg.Probes) != 2 {
		t.Fatalf("len(Probes) = %d, want 2", len(cfg.Probes))
	}
	if cfg.Probes[0].Path != "/error" || cfg.Probes[0].Probability == nil || *cfg.Probes[0].Probability != 0.25 {
		t.Errorf("Probes[0] = %+v, want /error with p=0.25", cfg.Probes[0])
	}
	if cfg.Probes[1].Path != "/calculatehashesbcrypt" || cfg.Probes[1].Probability == nil || *cfg.Probes[1].Probability != 0.1 {
		t.Errorf("Probes[1] = %+v, want /calculatehashesbcrypt with p=0.1", cfg.Probes[1])
	}
	if cfg.VUs != 10 {
		t.Errorf("VUs = %d, want 10", cfg.VUs)
	}
	if cfg.Sleep != 2*time.Second {
		t.Errorf("Sleep = %v, want 2s", cfg.Sleep)
	}
	if cfg.GracefulStop != 5*time.Second {
		t.Errorf("GracefulStop = %v, want 5s", cfg.GracefulStop)
	}
	if cfg.Headers["X-Canary-Owner"] != "radix" {
		t.Errorf("Headers[X-Canary-Owner] = %q, want radix", cfg.Headers["X-Canary-Owner"])
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v, want one entry", cfg.Thresholds)
	}
}

func TestApplyConfigSettingsTargetString(t *testing.T) {
	cfg := &Config{Target: scenario.Target{Scheme: "https", App: "old", Cluster: "old.example"}}
	if err := applyConfigSettings(cfg, map[string]interface{}{"target": "http://localhost:5000"}); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}
	want := scenario.Target{URL: "http://localhost:5000"}
	if cfg.Target != want {
		t.Errorf("Target = %+v, want %+v", cfg.Target, want)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := &Config{
		VUs:    1,
		Target: scenario.Target{URL: "http://canary.example"},
		Probes: []scenario.Probe{scenario.Always("/error")},
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--vus=5",
		"--app=www-radix-canary-golang-qa",
		"--cluster=playground.radix.equinor.com",
		"--probe=/calculatehashesscrypt=0.5",
		"--probe=/error",
		"--header=X-Test=123",
		"--tracing-sample-rate=0.1",
		"--pretty-log",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.VUs != 5 {
		t.Errorf("VUs = %d, want 5", cfg.VUs)
	}
	if cfg.Target.URL != "" {
		t.Errorf("Target.URL = %q, want cleared by --app/--cluster", cfg.Target.URL)
	}
	if cfg.Target.App != "www-radix-canary-golang-qa" {
		t.Errorf("Target.App = %q", cfg.Target.App)
	}
	if len(cfg.Probes) != 2 {
		t.Fatalf("len(Probes) = %d, want 2", len(cfg.Probes))
	}
	if !cfg.Probes[0].Gated() || cfg.Probes[1].Gated() {
		t.Errorf("Probes = %+v, want first gated and second always", cfg.Probes)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if cfg.Tracing.SampleRate != 0.1 {
		t.Errorf("Tracing.SampleRate = %v, want 0.1", cfg.Tracing.SampleRate)
	}
	if cfg.PrettyLog == nil || !*cfg.PrettyLog {
		t.Errorf("PrettyLog = %v, want true", cfg.PrettyLog)
	}
}

func TestApplyFlagOverridesIntervals(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(Config) bool
	}{
		{"bare seconds duration", []string{"-d", "1800"}, func(c Config) bool { return c.Duration == 30*time.Minute }},
		{"go duration", []string{"--duration=30m"}, func(c Config) bool { return c.Duration == 30*time.Minute }},
		{"bare seconds sleep", []string{"--sleep", "2"}, func(c Config) bool { return c.Sleep == 2*time.Second }},
		{"fractional sleep", []string{"--sleep=0.5"}, func(c Config) bool { return c.Sleep == 500*time.Millisecond }},
		{"timeout and graceful stop", []string{"--timeout=10", "--graceful-stop", "5s"}, func(c Config) bool {
			return c.Timeout == 10*time.Second && c.GracefulStop == 5*time.Second
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			configureFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("Parse(%v) error = %v", tt.args, err)
			}
			cfg := Config{Sleep: DefaultSleep}
			if err := applyFlagOverrides(&cfg, fs); err != nil {
				t.Fatalf("applyFlagOverrides() error = %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("args %v gave duration=%s sleep=%s timeout=%s graceful_stop=%s", tt.args, cfg.Duration, cfg.Sleep, cfg.Timeout, cfg.GracefulStop)
			}
		})
	}
}

func TestIntervalFlagRejectsBadValues(t *testing.T) {
	for _, arg := range []string{"--duration=forever", "--sleep=inf", "-d=1e20"} {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.SetOutput(io.Discard)
		configureFlags(fs)
		if err := fs.Parse([]string{arg}); err == nil {
			t.Errorf("Parse(%s) error = nil", arg)
		}
	}
}

func TestApplyFlagOverridesRejectsBadHeader(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"--header=novalue"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(&Config{}, fs); err == nil {
		t.Fatal("applyFlagOverrides() error = nil, want header format error")
	}
}

func TestParseProbe(t *testing.T) {
	tests := []struct {
		raw      string
		wantPath string
		wantP    float64
		gated    bool
		wantErr  bool
	}{
		{raw: "/error", wantPath: "/error"},
		{raw: " /error = 0.2 ", wantPath: "/error", wantP: 0.2, gated: true},
		{raw: "/calculatehashesscrypt=1", wantPath: "/calculatehashesscrypt", wantP: 1, gated: true},
		{raw: "/error=often", wantErr: true},
		{raw: "/error=", wantErr: true},
		{raw: "/error=1.01", wantErr: true},
		{raw: "/error=NaN", wantErr: true},
		{raw: "error", wantErr: true},
		{raw: "  ", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseProbe(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseProbe(%q) error = nil, want error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProbe(%q) error = %v", tt.raw, err)
			continue
		}
		if got.Path != tt.wantPath {
			t.Errorf("ParseProbe(%q).Path = %q, want %q", tt.raw, got.Path, tt.wantPath)
		}
		if got.Gated() != tt.gated {
			t.Errorf("ParseProbe(%q).Gated() = %v, want %v", tt.raw, got.Gated(), tt.gated)
		}
		if tt.gated && *got.Probability != tt.wantP {
			t.Errorf("ParseProbe(%q).Probability = %v, want %v", tt.raw, *got.Probability, tt.wantP)
		}
	}
}

func TestParseTracing(t *testing.T) {
	base := TracingConfig{SampleRate: DefaultSampleRate}
	got, err := parseTracing(map[string]interface{}{
		"enabled":      true,
		"endpoint":     "otel-collector:4317",
		"protocol":     "HTTP",
		"service_name": "canary-load",
		"propagate":    false,
	}, base)
	if err != nil {
		t.Fatalf("parseTracing() error = %v", err)
	}
	if !got.Enable || got.Endpoint != "otel-collector:4317" {
		t.Errorf("parseTracing() = %+v", got)
	}
	if got.Protocol != "http" {
		t.Errorf("Protocol = %q, want http", got.Protocol)
	}
	if got.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %v, want default %v kept", got.SampleRate, DefaultSampleRate)
	}
	if got.ShouldPropagate() {
		t.Error("ShouldPropagate() = true, want false when propagate is off")
	}
}

func TestParseLoadPatterns(t *testing.T) {
	input := []interface{}{
		map[string]interface{}{
			"name":      "ramp-up",
			"type":      "ramp",
			"from_rate": 1,
			"to_rate":   20,
			"duration":  "1m",
		},
		map[string]interface{}{
			"type": "step",
			"steps": []interface{}{
				map[string]interface{}{"rate": 5, "duration": "30s"},
				map[string]interface{}{"rate": 10, "duration": "30s"},
			},
		},
	}

	patterns, err := parseLoadPatterns(input)
	if err != nil {
		t.Fatalf("parseLoadPatterns() error = %v", err)
	}

	if len(patterns) != 2 {
		t.Fatalf("len(patterns) = %d, want 2", len(patterns))
	}

	p := patterns[0]
	if p.Name != "ramp-up" {
		t.Errorf("Name = %q, want ramp-up", p.Name)
	}
	if p.Type != LoadPatternTypeRamp {
		t.Errorf("Type = %q, want ramp", p.Type)
	}
	if p.FromRate != 1 {
		t.Errorf("FromRate = %d, want 1", p.FromRate)
	}
	if p.ToRate != 20 {
		t.Errorf("ToRate = %d, want 20", p.ToRate)
	}
	if p.Duration != time.Minute {
		t.Errorf("Duration = %v, want 1m", p.Duration)
	}
	if len(patterns[1].Steps) != 2 || patterns[1].Steps[1].Rate != 10 {
		t.Errorf("Steps = %+v", patterns[1].Steps)
	}
}

func TestParseArrival(t *testing.T) {
	tests := []struct {
		input   interface{}
		want    ArrivalModel
		wantErr bool
	}{
		{input: "Poisson", want: ArrivalModelPoisson},
		{input: map[string]interface{}{"model": "uniform"}, want: ArrivalModelUniform},
		{input: map[string]interface{}{}, wantErr: true},
		{input: nil, want: ""},
	}
	for _, tt := range tests {
		got, err := parseArrival(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseArrival(%v) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got.Model != tt.want {
			t.Errorf("parseArrival(%v).Model = %q, want %q", tt.input, got.Model, tt.want)
		}
	}
}
