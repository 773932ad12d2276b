// Package config loads canaryload settings from presets, files and flags.
package config

import (
	"fmt"
	"math"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/equinor/canaryload/internal/scenario"
)

// normalizeKey folds the spellings a setting may be written in, so
// graceful_stop, graceful-stop and gracefulStop all match.
func normalizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(key)))
}

// lookupSetting returns the first candidate present in settings. Keys are
// compared after normalizeKey; on a clash the lexically first key wins.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, candidate := range candidates {
		want := normalizeKey(candidate)
		for _, key := range keys {
			if normalizeKey(key) == want {
				return settings[key], true
			}
		}
	}
	return nil, false
}

// asString accepts scalars only; a list or map where a string belongs is an
// error rather than its fmt rendering.
func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case []interface{}, map[string]interface{}, map[interface{}]interface{}:
		return "", fmt.Errorf("expected a string, got %T", value)
	default:
		return fmt.Sprint(v), nil
	}
}

// asInt accepts whole numbers. YAML and JSON decode numbers as int or
// float64, so 10.0 is fine but 2.5 VUs is not.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case float64:
		return intFromFloat(v)
	case float32:
		return intFromFloat(float64(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		return strconv.Atoi(s)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n > math.MaxInt || n < math.MinInt {
			return 0, fmt.Errorf("%d is out of range", n)
		}
		return int(n), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n := rv.Uint()
		if n > math.MaxInt {
			return 0, fmt.Errorf("%d is out of range", n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("expected a whole number, got %T", value)
}

func intFromFloat(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a whole number", f)
	}
	if f >= math.MaxInt || f < math.MinInt {
		return 0, fmt.Errorf("%v is out of range", f)
	}
	return int(f), nil
}

// asFloat64 accepts any finite number.
func asFloat64(value interface{}) (float64, error) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		n, err := asInt(value)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %T", value)
		}
		f = float64(n)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return false, nil
		}
		return strconv.ParseBool(s)
	default:
		return false, fmt.Errorf("expected true or false, got %T", value)
	}
}

// asInterval reads durations the way scenario files write them: "30m",
// "1800s", or a bare number of seconds. Negative values are rejected.
func asInterval(value interface{}) (time.Duration, error) {
	var (
		iv  scenario.Interval
		err error
	)
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		iv = scenario.Interval(v)
	case string:
		iv, err = scenario.ParseInterval(v)
	default:
		var secs float64
		secs, err = asFloat64(value)
		if err == nil {
			iv, err = scenario.IntervalFromSeconds(secs)
		}
	}
	if err != nil {
		return 0, err
	}
	if iv < 0 {
		return 0, fmt.Errorf("%s must not be negative", iv)
	}
	return iv.Duration(), nil
}

// asProbability reads a probe trigger probability in [0,1].
func asProbability(value interface{}) (float64, error) {
	p, err := asFloat64(value)
	if err != nil {
		return 0, err
	}
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("probability must be between 0 and 1, got %v", p)
	}
	return p, nil
}

// asHeaders reads a header map. Keys are canonicalised; empty keys are
// rejected.
func asHeaders(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	entries := map[interface{}]interface{}{}
	switch v := value.(type) {
	case map[string]string:
		for k, val := range v {
			entries[k] = val
		}
	case map[string]interface{}:
		for k, val := range v {
			entries[k] = val
		}
	case map[interface{}]interface{}:
		entries = v
	default:
		return nil, fmt.Errorf("expected a map of header names to values, got %T", value)
	}
	headers := make(map[string]string, len(entries))
	for k, val := range entries {
		key, err := asString(k)
		if err != nil {
			return nil, err
		}
		key = http.CanonicalHeaderKey(strings.TrimSpace(key))
		if key == "" {
			return nil, fmt.Errorf("header key cannot be empty")
		}
		str, err := asString(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		headers[key] = strings.TrimSpace(str)
	}
	return headers, nil
}

// asStringSlice accepts a list or a single string.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return append([]string(nil), v...), nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	result := make([]string, len(items))
	for i, item := range items {
		str, err := asString(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		result[i] = str
	}
	return result, nil
}

func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
}

// toStringKeyMap returns a copy of a decoded YAML/JSON object with its keys
// passed through normalizeKey.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	result := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			result[normalizeKey(key)] = val
		}
	case map[interface{}]interface{}:
		for key, val := range v {
			str, err := asString(key)
			if err != nil {
				return nil, err
			}
			result[normalizeKey(str)] = val
		}
	default:
		return nil, fmt.Errorf("expected a map, got %T", value)
	}
	return result, nil
}

// parseTarget accepts either a URL string or a {scheme, app, cluster, url}
// map. Map keys override base field by field. A literal URL is checked here;
// app/cluster targets are checked once the cluster env fallback has run.
func parseTarget(value interface{}, base scenario.Target) (scenario.Target, error) {
	if s, ok := value.(string); ok {
		if strings.TrimSpace(s) == "" {
			return base, nil
		}
		target := scenario.Target{URL: strings.TrimSpace(s)}
		if _, err := target.BaseURL(); err != nil {
			return scenario.Target{}, err
		}
		return target, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return scenario.Target{}, err
	}
	target := base
	fields := []struct {
		dst  *string
		keys []string
	}{
		{&target.Scheme, []string{"scheme"}},
		{&target.App, []string{"app", "app_name"}},
		{&target.Cluster, []string{"cluster", "cluster_name"}},
		{&target.URL, []string{"url", "base_url"}},
	}
	for _, f := range fields {
		raw, ok := lookupSetting(entry, f.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return scenario.Target{}, fmt.Errorf("%s: %w", f.keys[0], err)
		}
		*f.dst = strings.TrimSpace(val)
	}
	target.Scheme = strings.ToLower(target.Scheme)
	if target.URL != "" {
		if _, err := target.BaseURL(); err != nil {
			return scenario.Target{}, err
		}
	}
	return target, nil
}

// parseProbes reads a list whose items are either "path[=probability]"
// strings or {name, path, probability} maps.
func parseProbes(value interface{}) ([]scenario.Probe, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	probes := make([]scenario.Probe, 0, len(items))
	for idx, item := range items {
		var probe scenario.Probe
		if s, ok := item.(string); ok {
			probe, err = ParseProbe(s)
		} else {
			probe, err = parseProbeEntry(item)
		}
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		probes = append(probes, probe)
	}
	return probes, nil
}

func parseProbeEntry(item interface{}) (scenario.Probe, error) {
	entry, err := toStringKeyMap(item)
	if err != nil {
		return scenario.Probe{}, err
	}
	var probe scenario.Probe
	if raw, ok := lookupSetting(entry, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return scenario.Probe{}, fmt.Errorf("name: %w", err)
		}
		probe.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return scenario.Probe{}, fmt.Errorf("path: %w", err)
		}
		probe.Path = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "probability", "p"); ok && raw != nil {
		val, err := asProbability(raw)
		if err != nil {
			return scenario.Probe{}, err
		}
		probe.Probability = &val
	}
	return probe, probe.Validate()
}

// ParseProbe parses the "path[=probability]" probe shorthand used by --probe
// and by string entries of a probes list.
func ParseProbe(raw string) (scenario.Probe, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return scenario.Probe{}, fmt.Errorf("probe cannot be empty")
	}
	path, prob, gated := strings.Cut(raw, "=")
	probe := scenario.Probe{Path: strings.TrimSpace(path)}
	if gated {
		if strings.TrimSpace(prob) == "" {
			return scenario.Probe{}, fmt.Errorf("probe %q: missing probability after =", raw)
		}
		p, err := asProbability(prob)
		if err != nil {
			return scenario.Probe{}, fmt.Errorf("probe %q: %w", raw, err)
		}
		probe.Probability = &p
	}
	if err := probe.Validate(); err != nil {
		return scenario.Probe{}, err
	}
	return probe, nil
}
