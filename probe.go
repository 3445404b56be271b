package ecephys

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProbeMap describes a recording probe loaded from a YAML file: the
// device plus its electrode groups with per-channel geometry. A probe
// map turns into a device, its groups and their electrode table rows
// through AddProbe.
type ProbeMap struct {
	Name         string       `yaml:"name"`
	Description  string       `yaml:"description"`
	Manufacturer string       `yaml:"manufacturer"`
	Groups       []ProbeGroup `yaml:"groups"`
}

// ProbeGroup is one shank or electrode group of a probe.
type ProbeGroup struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Location    string         `yaml:"location"`
	Channels    []ProbeChannel `yaml:"channels"`
}

// ProbeChannel is one recording channel of a probe group.
type ProbeChannel struct {
	Label     string  `yaml:"label"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
	Z         float64 `yaml:"z"`
	Imp       float64 `yaml:"impedance"`
	Filtering string  `yaml:"filtering"`
}

// LoadProbeMap reads and validates a probe map from a YAML file.
func LoadProbeMap(path string) (*ProbeMap, error) {
	//nolint:gosec // G304: caller-provided probe map path is the API
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ioError("probe map read failed", err)
	}
	return ParseProbeMap(data)
}

// ParseProbeMap parses and validates probe map YAML.
func ParseProbeMap(data []byte) (*ProbeMap, error) {
	var p ProbeMap
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("malformed probe map: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the probe map for a usable structure.
func (p *ProbeMap) Validate() error {
	if err := validateName("probe", p.Name); err != nil {
		return err
	}
	if len(p.Groups) == 0 {
		return fmt.Errorf("probe %q has no groups", p.Name)
	}

	seenGroups := make(map[string]bool, len(p.Groups))
	for _, g := range p.Groups {
		if err := validateName("group", g.Name); err != nil {
			return fmt.Errorf("probe %q: %w", p.Name, err)
		}
		if seenGroups[g.Name] {
			return fmt.Errorf("probe %q has duplicate group %q", p.Name, g.Name)
		}
		seenGroups[g.Name] = true
		if len(g.Channels) == 0 {
			return fmt.Errorf("probe %q group %q has no channels", p.Name, g.Name)
		}
	}
	return nil
}

// ChannelCount returns the number of channels across all groups.
func (p *ProbeMap) ChannelCount() int {
	var n int
	for _, g := range p.Groups {
		n += len(g.Channels)
	}
	return n
}

// AddProbe records a whole probe: its device, every electrode group
// and one electrode table row per channel. It returns the electrode
// row indices in probe channel order, ready for WithElectrodes.
func (w *SessionWriter) AddProbe(p *ProbeMap) ([]uint64, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("probe map must not be nil")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := w.AddDevice(p.Name, p.Description, p.Manufacturer); err != nil {
		return nil, err
	}

	rows := make([]uint64, 0, p.ChannelCount())
	for _, g := range p.Groups {
		if err := w.AddElectrodeGroup(g.Name, g.Description, g.Location, p.Name); err != nil {
			return nil, err
		}
		for _, c := range g.Channels {
			row, err := w.AddElectrode(Electrode{
				X:         c.X,
				Y:         c.Y,
				Z:         c.Z,
				Imp:       c.Imp,
				Location:  g.Location,
				Filtering: c.Filtering,
				Group:     g.Name,
				Label:     c.Label,
			})
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}
