package scenario

import (
	"fmt"
	"strings"
)

// StatusPath is the health probe every iteration issues first.
const StatusPath = "/status"

// Probe is one endpoint hit by the scenario.
//
// A nil Probability means the probe is issued on every iteration. Otherwise
// the probe is issued when a fresh uniform draw in [0,1) is below it.
type Probe struct {
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Path        string   `yaml:"path" json:"path"`
	Probability *float64 `yaml:"probability,omitempty" json:"probability,omitempty"`
}

// Always returns a probe issued on every iteration.
func Always(path string) Probe {
	return Probe{Path: path}
}

// WithProbability returns a probe issued with probability p per iteration.
func WithProbability(path string, p float64) Probe {
	return Probe{Path: path, Probability: &p}
}

// Label is the name used for metrics, logs and spans.
func (p Probe) Label() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if p.Path == "" {
		return "/"
	}
	return p.Path
}

// Gated reports whether the probe has a trigger probability.
func (p Probe) Gated() bool {
	return p.Probability != nil
}

// Validate checks the path and probability.
func (p Probe) Validate() error {
	if !strings.HasPrefix(p.Path, "/") {
		return fmt.Errorf("probe path %q must start with /", p.Path)
	}
	if strings.ContainsAny(p.Path, " \t\r\n") {
		return fmt.Errorf("probe path %q must not contain whitespace", p.Path)
	}
	if p.Probability != nil {
		v := *p.Probability
		if v != v || v < 0 || v > 1 {
			return fmt.Errorf("probe %s probability must be between 0 and 1, got %v", p.Label(), v)
		}
	}
	return nil
}

func isStatus(p Probe) bool {
	return strings.TrimRight(p.Path, "/") == StatusPath
}
