package scenario

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Target is the canary host probes are issued against.
//
// Either URL is set to a literal base URL, or the base URL is composed as
// Scheme + "://" + App + "." + Cluster.
type Target struct {
	Scheme  string `yaml:"scheme,omitempty" json:"scheme,omitempty"`
	App     string `yaml:"app,omitempty" json:"app,omitempty"`
	Cluster string `yaml:"cluster,omitempty" json:"cluster,omitempty"`
	URL     string `yaml:"url,omitempty" json:"url,omitempty"`
}

// DefaultScheme is used when a Target leaves Scheme empty.
const DefaultScheme = "https"

// ClusterFromEnv returns the cluster domain a Radix workload sees in its own
// environment (RADIX_CLUSTERNAME + "." + RADIX_DNS_ZONE), or "" when either
// variable is unset.
func ClusterFromEnv() string {
	name := strings.TrimSpace(os.Getenv("RADIX_CLUSTERNAME"))
	zone := strings.TrimSpace(os.Getenv("RADIX_DNS_ZONE"))
	if name == "" || zone == "" {
		return ""
	}
	return name + "." + zone
}

// BaseURL returns the target's base URL without a trailing slash.
func (t Target) BaseURL() (string, error) {
	if raw := strings.TrimSpace(t.URL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid target url %q: %w", raw, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return "", fmt.Errorf("target url %q must use http or https", raw)
		}
		if u.Host == "" {
			return "", fmt.Errorf("target url %q has no host", raw)
		}
		return strings.TrimRight(raw, "/"), nil
	}

	app := strings.TrimSpace(t.App)
	cluster := strings.Trim(strings.TrimSpace(t.Cluster), ".")
	if app == "" {
		return "", fmt.Errorf("target app is required when no target url is set")
	}
	if cluster == "" {
		return "", fmt.Errorf("target cluster is required when no target url is set")
	}
	scheme := strings.ToLower(strings.TrimSpace(t.Scheme))
	if scheme == "" {
		scheme = DefaultScheme
	}
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported target scheme %q", t.Scheme)
	}
	return scheme + "://" + app + "." + cluster, nil
}

// Resolve joins the base URL with a probe path.
func (t Target) Resolve(path string) (string, error) {
	base, err := t.BaseURL()
	if err != nil {
		return "", err
	}
	return joinPath(base, path), nil
}

func joinPath(base, path string) string {
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// String returns the base URL, or a description of why it cannot be built.
func (t Target) String() string {
	base, err := t.BaseURL()
	if err != nil {
		return "<invalid target: " + err.Error() + ">"
	}
	return base
}
