package scenario

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/equinor/canaryload/internal/runner"
)

// Getter issues a single GET. Implementations record the outcome themselves;
// the returned error is informational only.
type Getter interface {
	Get(ctx context.Context, name, url string) error
}

// Sampler returns a uniform value in [0,1). It must be safe for concurrent use.
type Sampler func() float64

// Options carry the per-iteration collaborators.
type Options struct {
	Client Getter
	Sleep  time.Duration
	// Sampler defaults to math/rand/v2.
	Sampler Sampler
	// Sleeper defaults to runner.Sleep.
	Sleeper func(ctx context.Context, d time.Duration) error
}

// RunIteration issues /status, then every remaining probe that passes its
// probability gate, then sleeps. Probe failures are never inspected; the only
// error returned is the context's, once it has been cancelled.
func RunIteration(ctx context.Context, target Target, probes []Probe, opts Options) error {
	if opts.Client == nil {
		return fmt.Errorf("scenario: no http client configured")
	}
	statusURL, err := target.Resolve(StatusPath)
	if err != nil {
		return err
	}
	sample := opts.Sampler
	if sample == nil {
		sample = rand.Float64
	}
	sleep := opts.Sleeper
	if sleep == nil {
		sleep = runner.Sleep
	}

	statusName := StatusPath
	for _, p := range probes {
		if isStatus(p) {
			statusName = p.Label()
			break
		}
	}
	_ = opts.Client.Get(ctx, statusName, statusURL)

	for _, p := range probes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if isStatus(p) {
			continue
		}
		if p.Gated() && !(sample() < *p.Probability) {
			continue
		}
		url, err := target.Resolve(p.Path)
		if err != nil {
			return err
		}
		_ = opts.Client.Get(ctx, p.Label(), url)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.Sleep <= 0 {
		return nil
	}
	return sleep(ctx, opts.Sleep)
}

// Scenario is a named, fully configured iteration body. It satisfies
// runner.Iteration.
type Scenario struct {
	Name    string
	Target  Target
	Probes  []Probe
	Sleep   time.Duration
	Client  Getter
	Sampler Sampler
	sleeper func(ctx context.Context, d time.Duration) error
}

// New validates the definition and binds it to client.
func New(def Definition, client Getter) (*Scenario, error) {
	if client == nil {
		return nil, fmt.Errorf("scenario: client is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	probes := make([]Probe, len(def.Probes))
	copy(probes, def.Probes)
	return &Scenario{
		Name:   def.Name,
		Target: def.Target,
		Probes: probes,
		Sleep:  def.Sleep.Duration(),
		Client: client,
	}, nil
}

// Run executes one iteration.
func (s *Scenario) Run(ctx context.Context) error {
	return RunIteration(ctx, s.Target, s.Probes, Options{
		Client:  s.Client,
		Sleep:   s.Sleep,
		Sampler: s.Sampler,
		Sleeper: s.sleeper,
	})
}

// Requests returns the probe labels an iteration may issue, /status first.
func (s *Scenario) Requests() []string {
	names := []string{StatusPath}
	for _, p := range s.Probes {
		if isStatus(p) {
			names[0] = p.Label()
			continue
		}
		names = append(names, p.Label())
	}
	return names
}

var _ runner.Iteration = (*Scenario)(nil)
