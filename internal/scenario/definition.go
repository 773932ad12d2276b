package scenario

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Definition is a scenario as written in a preset or configuration file:
// what to probe plus the {vus, duration} run options it was tuned for.
type Definition struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Target      Target   `yaml:"target"`
	Probes      []Probe  `yaml:"probes,omitempty"`
	Sleep       Interval `yaml:"sleep"`
	VUs         int      `yaml:"vus"`
	Duration    Interval `yaml:"duration"`
}

// Validate reports every problem with the definition at once.
func (d Definition) Validate() error {
	var errs []error
	if _, err := d.Target.BaseURL(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range d.Probes {
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if d.Sleep < 0 {
		errs = append(errs, fmt.Errorf("sleep must be >= 0"))
	}
	if d.VUs < 0 {
		errs = append(errs, fmt.Errorf("vus must be >= 0"))
	}
	if d.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration must be >= 0"))
	}
	if len(errs) == 0 {
		return nil
	}
	name := d.Name
	if name == "" {
		name = "scenario"
	}
	return fmt.Errorf("%s: %w", name, errors.Join(errs...))
}

// Interval is a time.Duration that decodes from "1800s"-style strings or a
// bare number of seconds.
type Interval time.Duration

// Duration converts the interval.
func (i Interval) Duration() time.Duration { return time.Duration(i) }

func (i Interval) String() string { return time.Duration(i).String() }

// IntervalFromSeconds converts a number of seconds. NaN, infinities and
// values beyond the range of time.Duration (about 292 years) are rejected.
func IntervalFromSeconds(secs float64) (Interval, error) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("invalid duration %v: not a finite number of seconds", secs)
	}
	ns := math.Round(secs * float64(time.Second))
	if ns >= math.MaxInt64 || ns <= math.MinInt64 {
		return 0, fmt.Errorf("invalid duration %gs: out of range", secs)
	}
	return Interval(ns), nil
}

// ParseInterval accepts Go duration strings and plain seconds ("2", "1.5").
func ParseInterval(raw string) (Interval, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err == nil {
		return IntervalFromSeconds(secs)
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("invalid duration %q: out of range", raw)
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return Interval(d), nil
}

func (i *Interval) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	v, err := ParseInterval(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*i = v
	return nil
}

func (i Interval) MarshalYAML() (interface{}, error) {
	return time.Duration(i).String(), nil
}
