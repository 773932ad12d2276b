package scenario

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

type presetFile struct {
	Presets []Definition `yaml:"presets"`
}

var (
	presetsOnce sync.Once
	presets     map[string]Definition
	presetsErr  error
)

func loadPresets() {
	defs, err := ParseDefinitions(presetsYAML)
	if err != nil {
		presetsErr = fmt.Errorf("embedded presets: %w", err)
		return
	}
	presets = make(map[string]Definition, len(defs))
	for _, d := range defs {
		presets[d.Name] = d
	}
}

// ParseDefinitions decodes a YAML document with a top-level "presets" list.
// Every definition must have a unique name and validate.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(file.Presets))
	for idx, d := range file.Presets {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("preset at index %d has no name", idx)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate preset %q", name)
		}
		seen[name] = true
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}
	return file.Presets, nil
}

// Preset returns the named built-in scenario.
func Preset(name string) (Definition, error) {
	presetsOnce.Do(loadPresets)
	if presetsErr != nil {
		return Definition{}, presetsErr
	}
	d, ok := presets[strings.TrimSpace(name)]
	if !ok {
		return Definition{}, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}
	d.Probes = append([]Probe(nil), d.Probes...)
	return d, nil
}

// PresetNames lists the built-in scenarios in alphabetical order.
func PresetNames() []string {
	presetsOnce.Do(loadPresets)
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
