package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/equinor/canaryload/internal/scenario"
)

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "canaryload",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("preset", "", "Built-in scenario to run (see --list-presets)")
	flags.Bool("list-presets", false, "Print the built-in scenarios and exit")

	// Target flags
	flags.String("target", "", "Base URL of the canary (overrides app/cluster)")
	flags.String("scheme", "", "URL scheme used with --app/--cluster (http or https)")
	flags.String("app", "", "Canary application host label")
	flags.String("cluster", "", "Cluster DNS suffix (defaults to RADIX_CLUSTERNAME.RADIX_DNS_ZONE)")
	flags.StringSlice("probe", nil, "Probe in path[=probability] form (repeatable, replaces preset probes)")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("user-agent", "", "User-Agent sent with every probe")

	// Load control flags
	flags.IntP("vus", "u", DefaultVUs, "Number of concurrent virtual users")
	flags.VarP(newIntervalValue(0), "duration", "d", "How long to run (e.g. 30m, or 1800 seconds)")
	flags.IntP("iterations", "i", 0, "Total iterations across all VUs (0 means unlimited)")
	flags.Var(newIntervalValue(DefaultSleep), "sleep", "Pause at the end of every iteration (e.g. 1s, or 1.5 seconds)")
	flags.IntP("rate", "r", 0, "Iterations started per second (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model used when pacing iterations (uniform or poisson)")
	flags.Var(newIntervalValue(DefaultGracefulStop), "graceful-stop", "Time in-flight iterations get to finish after the run stops")
	flags.Var(newIntervalValue(DefaultTimeout), "timeout", "Per-request timeout")

	// Output flags
	flags.StringSlice("threshold", nil, "Pass/fail threshold (repeatable, e.g. 'http_req_duration:p95 < 500')")
	flags.Bool("json-output", false, "Emit JSON formatted report")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("log-errors", false, "Log each failed request at warn level")
	flags.String("history-file", "", "Append the run report to this JSON lines file")
	flags.String("log-level", "", "Log level (trace, debug, info, warn, error); defaults to LOG_LEVEL")
	flags.Bool("pretty-log", false, "Human readable console logs; defaults to PRETTY_LOG")

	// Tracing flags
	flags.Bool("tracing", false, "Export OpenTelemetry spans")
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol (grpc or http)")
	flags.String("tracing-service-name", "", "service.name resource attribute")
	flags.Float64("tracing-sample-rate", DefaultSampleRate, "Fraction of iterations traced (0-1)")
	flags.Bool("tracing-insecure", false, "Disable TLS towards the collector")
	flags.Bool("tracing-propagate", false, "Send traceparent headers with probes")
}

// intervalValue is a pflag.Value for durations that also accepts a bare
// number of seconds, the way k6 options are often written.
type intervalValue time.Duration

func newIntervalValue(def time.Duration) *intervalValue {
	v := intervalValue(def)
	return &v
}

func (v *intervalValue) Set(raw string) error {
	i, err := scenario.ParseInterval(raw)
	if err != nil {
		return err
	}
	*v = intervalValue(i)
	return nil
}

func (v *intervalValue) String() string { return time.Duration(*v).String() }

func (v *intervalValue) Type() string { return "duration" }

func intervalFlag(fs *pflag.FlagSet, name string) time.Duration {
	if v, ok := fs.Lookup(name).Value.(*intervalValue); ok {
		return time.Duration(*v)
	}
	return 0
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from presets and the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("list-presets") {
		val, err := fs.GetBool("list-presets")
		if err != nil {
			return err
		}
		cfg.ListPresets = val
	}
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.Target.URL = strings.TrimSpace(val)
	}
	if fs.Changed("scheme") {
		val, err := fs.GetString("scheme")
		if err != nil {
			return err
		}
		cfg.Target.Scheme = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("app") {
		val, err := fs.GetString("app")
		if err != nil {
			return err
		}
		cfg.Target.App = strings.TrimSpace(val)
		// app/cluster on the command line win over a URL from a preset or file.
		if !fs.Changed("target") {
			cfg.Target.URL = ""
		}
	}
	if fs.Changed("cluster") {
		val, err := fs.GetString("cluster")
		if err != nil {
			return err
		}
		cfg.Target.Cluster = strings.TrimSpace(val)
		if !fs.Changed("target") {
			cfg.Target.URL = ""
		}
	}
	if fs.Changed("probe") {
		vals, err := fs.GetStringSlice("probe")
		if err != nil {
			return err
		}
		probes := make([]scenario.Probe, 0, len(vals))
		for _, v := range vals {
			p, err := ParseProbe(v)
			if err != nil {
				return err
			}
			probes = append(probes, p)
		}
		cfg.Probes = probes
	}
	if fs.Changed("user-agent") {
		val, err := fs.GetString("user-agent")
		if err != nil {
			return err
		}
		cfg.UserAgent = strings.TrimSpace(val)
	}

	if fs.Changed("vus") {
		val, err := fs.GetInt("vus")
		if err != nil {
			return err
		}
		cfg.VUs = val
	}
	if fs.Changed("duration") {
		cfg.Duration = intervalFlag(fs, "duration")
	}
	if fs.Changed("iterations") {
		val, err := fs.GetInt("iterations")
		if err != nil {
			return err
		}
		cfg.Iterations = val
	}
	if fs.Changed("sleep") {
		cfg.Sleep = intervalFlag(fs, "sleep")
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("graceful-stop") {
		cfg.GracefulStop = intervalFlag(fs, "graceful-stop")
	}
	if fs.Changed("timeout") {
		cfg.Timeout = intervalFlag(fs, "timeout")
	}

	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if fs.Changed("history-file") {
		val, err := fs.GetString("history-file")
		if err != nil {
			return err
		}
		cfg.HistoryFile = strings.TrimSpace(val)
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.TrimSpace(val)
	}
	if fs.Changed("pretty-log") {
		val, err := fs.GetBool("pretty-log")
		if err != nil {
			return err
		}
		cfg.PrettyLog = &val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return applyTracingFlags(&cfg.Tracing, fs)
}

func applyTracingFlags(tc *TracingConfig, fs *pflag.FlagSet) error {
	if fs.Changed("tracing") {
		val, err := fs.GetBool("tracing")
		if err != nil {
			return err
		}
		tc.Enable = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		tc.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		tc.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		tc.ServiceName = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		tc.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		tc.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		tc.Propagate = &val
	}
	return nil
}
