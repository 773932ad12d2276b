package scenario

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"
)

type recordedGet struct {
	name string
	url  string
}

type fakeGetter struct {
	mu    sync.Mutex
	calls []recordedGet
	err   error
}

func (f *fakeGetter) Get(ctx context.Context, name, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedGet{name: name, url: url})
	return f.err
}

func (f *fakeGetter) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.url
	}
	return out
}

func noSleep(context.Context, time.Duration) error { return nil }

var testTarget = Target{URL: "http://canary.test"}

func TestRunIterationIssuesStatusExactlyOnceFirst(t *testing.T) {
	tests := []struct {
		name   string
		probes []Probe
		want   []string
	}{
		{
			name:   "no probes",
			probes: nil,
			want:   []string{"http://canary.test/status"},
		},
		{
			name:   "status listed explicitly",
			probes: []Probe{Always("/error"), Always("/status")},
			want:   []string{"http://canary.test/status", "http://canary.test/error"},
		},
		{
			name:   "gated status still issued",
			probes: []Probe{WithProbability("/status", 0)},
			want:   []string{"http://canary.test/status"},
		},
		{
			name:   "order preserved",
			probes: []Probe{Always("/"), Always("/error"), Always("/calculatehashesbcrypt")},
			want: []string{
				"http://canary.test/status",
				"http://canary.test/",
				"http://canary.test/error",
				"http://canary.test/calculatehashesbcrypt",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGetter{}
			err := RunIteration(context.Background(), testTarget, tt.probes, Options{Client: g, Sleeper: noSleep})
			if err != nil {
				t.Fatalf("RunIteration() error = %v", err)
			}
			got := g.urls()
			if len(got) != len(tt.want) {
				t.Fatalf("urls = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("urls[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRunIterationIgnoresProbeFailures(t *testing.T) {
	g := &fakeGetter{err: errors.New("500 Internal Server Error")}
	probes := []Probe{Always("/error"), Always("/calculatehashesscrypt")}
	if err := RunIteration(context.Background(), testTarget, probes, Options{Client: g, Sleeper: noSleep}); err != nil {
		t.Fatalf("RunIteration() error = %v, want nil", err)
	}
	if len(g.calls) != 3 {
		t.Fatalf("expected all 3 probes issued despite failures, got %d", len(g.calls))
	}
}

func TestRunIterationDrawsOnlyWhenGated(t *testing.T) {
	g := &fakeGetter{}
	draws := 0
	sampler := func() float64 {
		draws++
		return 0.5
	}
	probes := []Probe{Always("/error"), WithProbability("/calculatehashesbcrypt", 0.9), Always("/"), WithProbability("/calculatehashesscrypt", 0.1)}
	if err := RunIteration(context.Background(), testTarget, probes, Options{Client: g, Sampler: sampler, Sleeper: noSleep}); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}
	if draws != 2 {
		t.Errorf("sampler called %d times, want 2", draws)
	}
	want := []string{"http://canary.test/status", "http://canary.test/error", "http://canary.test/calculatehashesbcrypt", "http://canary.test/"}
	if got := g.urls(); len(got) != len(want) || got[2] != want[2] || got[3] != want[3] {
		t.Errorf("urls = %v, want %v", got, want)
	}
}

func TestProbabilityBounds(t *testing.T) {
	g := &fakeGetter{}
	probes := []Probe{WithProbability("/never", 0), WithProbability("/always", 1)}
	rng := rand.New(rand.NewPCG(7, 11))
	opts := Options{Client: g, Sleeper: noSleep, Sampler: rng.Float64}

	const iterations = 500
	for i := 0; i < iterations; i++ {
		if err := RunIteration(context.Background(), testTarget, probes, opts); err != nil {
			t.Fatalf("RunIteration() error = %v", err)
		}
	}

	counts := map[string]int{}
	for _, c := range g.calls {
		counts[c.name]++
	}
	if counts["/never"] != 0 {
		t.Errorf("p=0 probe issued %d times", counts["/never"])
	}
	if counts["/always"] != iterations {
		t.Errorf("p=1 probe issued %d times, want %d", counts["/always"], iterations)
	}
	if counts["/status"] != iterations {
		t.Errorf("/status issued %d times, want %d", counts["/status"], iterations)
	}
}

func TestProbabilityGateIsStrict(t *testing.T) {
	g := &fakeGetter{}
	probes := []Probe{WithProbability("/half", 0.5)}
	opts := Options{Client: g, Sleeper: noSleep, Sampler: func() float64 { return 0.5 }}
	if err := RunIteration(context.Background(), testTarget, probes, opts); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}
	if len(g.calls) != 1 {
		t.Fatalf("r == p must not issue the probe, calls = %v", g.urls())
	}
}

func TestProbabilityConverges(t *testing.T) {
	tests := []float64{0.05, 0.3, 0.75}
	for _, p := range tests {
		g := &fakeGetter{}
		rng := rand.New(rand.NewPCG(42, uint64(p*1000)))
		probes := []Probe{WithProbability("/sampled", p)}
		opts := Options{Client: g, Sleeper: noSleep, Sampler: rng.Float64}

		const iterations = 20000
		for i := 0; i < iterations; i++ {
			_ = RunIteration(context.Background(), testTarget, probes, opts)
		}
		issued := len(g.calls) - iterations
		observed := float64(issued) / iterations
		// Five standard deviations of a binomial proportion.
		tolerance := 5 * math.Sqrt(p*(1-p)/iterations)
		if math.Abs(observed-p) > tolerance {
			t.Errorf("p=%v observed rate %v outside ±%v", p, observed, tolerance)
		}
	}
}

func TestProbabilityDrawsAreIndependentPerProbe(t *testing.T) {
	draws := []float64{0.9, 0.1}
	var mu sync.Mutex
	sampler := func() float64 {
		mu.Lock()
		defer mu.Unlock()
		v := draws[0]
		draws = draws[1:]
		return v
	}
	g := &fakeGetter{}
	probes := []Probe{WithProbability("/a", 0.5), WithProbability("/b", 0.5)}
	if err := RunIteration(context.Background(), testTarget, probes, Options{Client: g, Sleeper: noSleep, Sampler: sampler}); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}
	got := g.urls()
	if len(got) != 2 || got[1] != "http://canary.test/b" {
		t.Fatalf("urls = %v, want /status then /b", got)
	}
}

func TestRunIterationSleepsAfterProbes(t *testing.T) {
	g := &fakeGetter{}
	var slept time.Duration
	var callsAtSleep int
	sleeper := func(ctx context.Context, d time.Duration) error {
		slept = d
		callsAtSleep = len(g.calls)
		return nil
	}
	probes := []Probe{Always("/error")}
	if err := RunIteration(context.Background(), testTarget, probes, Options{Client: g, Sleep: 2 * time.Second, Sleeper: sleeper}); err != nil {
		t.Fatalf("RunIteration() error = %v", err)
	}
	if slept != 2*time.Second {
		t.Errorf("slept %s, want 2s", slept)
	}
	if callsAtSleep != 2 {
		t.Errorf("sleep started after %d requests, want 2", callsAtSleep)
	}
}

func TestRunIterationStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := &cancellingGetter{cancel: cancel}
	probes := []Probe{Always("/error"), Always("/calculatehashesscrypt")}
	err := RunIteration(ctx, testTarget, probes, Options{Client: g, Sleep: time.Hour, Sleeper: noSleep})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunIteration() error = %v, want context.Canceled", err)
	}
	if g.calls != 1 {
		t.Fatalf("expected only /status before cancellation, got %d calls", g.calls)
	}
}

type cancellingGetter struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingGetter) Get(ctx context.Context, name, url string) error {
	c.calls++
	c.cancel()
	return ctx.Err()
}

func TestRunIterationRequiresClientAndTarget(t *testing.T) {
	if err := RunIteration(context.Background(), testTarget, nil, Options{}); err == nil {
		t.Error("expected error without client")
	}
	if err := RunIteration(context.Background(), Target{}, nil, Options{Client: &fakeGetter{}}); err == nil {
		t.Error("expected error without target")
	}
}

func TestScenarioRunsPresetGolangDev(t *testing.T) {
	def, err := Preset("golang-dev")
	if err != nil {
		t.Fatalf("Preset() error = %v", err)
	}
	g := &fakeGetter{}
	s, err := New(def, g)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var slept time.Duration
	s.sleeper = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{
		"https://www-radix-canary-golang-dev.dev.dev.radix.equinor.com/status",
		"https://www-radix-canary-golang-dev.dev.dev.radix.equinor.com/error",
		"https://www-radix-canary-golang-dev.dev.dev.radix.equinor.com/calculatehashesscrypt",
	}
	got := g.urls()
	if len(got) != len(want) {
		t.Fatalf("urls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if slept != 2*time.Second {
		t.Errorf("slept %s, want 2s", slept)
	}
	if def.VUs != 1 || def.Duration.Duration() != 1800*time.Second {
		t.Errorf("run options = {vus %d, duration %s}, want {1, 30m0s}", def.VUs, def.Duration)
	}
}

func TestScenarioRunsPresetPlaygroundDebug(t *testing.T) {
	def, err := Preset("playground-debug")
	if err != nil {
		t.Fatalf("Preset() error = %v", err)
	}
	g := &fakeGetter{}
	s, err := New(def, g)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var slept time.Duration
	s.sleeper = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	base := "http://canary.playground-debug-helm-bugs-st4.dev.radix.equinor.com"
	want := map[string]bool{base + "/": true, base + "/status": true, base + "/error": true}
	got := g.urls()
	if len(got) != 3 {
		t.Fatalf("urls = %v, want 3 requests", got)
	}
	for _, u := range got {
		if !want[u] {
			t.Errorf("unexpected url %q", u)
		}
	}
	if slept != time.Second {
		t.Errorf("slept %s, want 1s", slept)
	}
	if def.VUs != 300 || def.Duration.Duration() != 1800*time.Second {
		t.Errorf("run options = {vus %d, duration %s}, want {300, 30m0s}", def.VUs, def.Duration)
	}
}

func TestScenarioRequests(t *testing.T) {
	s := &Scenario{Probes: []Probe{{Path: "/status", Name: "health"}, {Path: "/calculatehashesbcrypt", Name: "bcrypt"}, Always("/error")}}
	got := s.Requests()
	want := []string{"health", "bcrypt", "/error"}
	if len(got) != len(want) {
		t.Fatalf("Requests() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Requests()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNewRejectsInvalidDefinition(t *testing.T) {
	def := Definition{Name: "bad", Target: testTarget, Probes: []Probe{WithProbability("/x", 1.5)}}
	if _, err := New(def, &fakeGetter{}); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := New(Definition{Target: testTarget}, nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
