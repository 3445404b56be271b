package ecephys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeYAML = `name: neuropixels0
description: simulated 2-shank probe
manufacturer: imec
groups:
  - name: shank0
    description: dorsal shank
    location: CA1
    channels:
      - {label: ch0, x: 0, y: 0, z: 0, impedance: 1.2e6, filtering: "300-6000 Hz"}
      - {label: ch1, x: 0, y: 20, z: 0, impedance: 1.3e6, filtering: "300-6000 Hz"}
  - name: shank1
    description: ventral shank
    location: CA3
    channels:
      - {label: ch2, x: 250, y: 0, z: 0, impedance: 1.1e6, filtering: "300-6000 Hz"}
`

func TestParseProbeMap(t *testing.T) {
	p, err := ParseProbeMap([]byte(probeYAML))
	require.NoError(t, err)

	assert.Equal(t, "neuropixels0", p.Name)
	assert.Equal(t, "imec", p.Manufacturer)
	require.Len(t, p.Groups, 2)
	assert.Equal(t, "shank0", p.Groups[0].Name)
	assert.Equal(t, "CA1", p.Groups[0].Location)
	require.Len(t, p.Groups[0].Channels, 2)
	assert.Equal(t, 20.0, p.Groups[0].Channels[1].Y)
	assert.Equal(t, 1.3e6, p.Groups[0].Channels[1].Imp)
	assert.Equal(t, 3, p.ChannelCount())
}

func TestParseProbeMap_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "not yaml",
			yaml:    "{{{",
			wantErr: "malformed probe map",
		},
		{
			name:    "missing name",
			yaml:    "groups:\n  - name: shank0\n    channels:\n      - {label: ch0}\n",
			wantErr: "probe name",
		},
		{
			name:    "no groups",
			yaml:    "name: probe0\n",
			wantErr: "has no groups",
		},
		{
			name:    "group without channels",
			yaml:    "name: probe0\ngroups:\n  - name: shank0\n",
			wantErr: "has no channels",
		},
		{
			name: "duplicate group",
			yaml: "name: probe0\ngroups:\n" +
				"  - name: shank0\n    channels: [{label: a}]\n" +
				"  - name: shank0\n    channels: [{label: b}]\n",
			wantErr: "duplicate group",
		},
		{
			name:    "slash in group name",
			yaml:    "name: probe0\ngroups:\n  - name: a/b\n    channels: [{label: a}]\n",
			wantErr: "group name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProbeMap([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadProbeMap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(probeYAML), 0o600))

	p, err := LoadProbeMap(path)
	require.NoError(t, err)
	assert.Equal(t, "neuropixels0", p.Name)

	_, err = LoadProbeMap(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrIO)
}

func TestAddProbe(t *testing.T) {
	p, err := ParseProbeMap([]byte(probeYAML))
	require.NoError(t, err)

	w, path := newSessionFile(t)
	rows, err := w.AddProbe(p)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, rows, "rows follow probe channel order")

	s := reopen(t, w, path)

	// Device and group objects exist; each group links back to the device.
	assert.True(t, s.Exists("/general/devices/neuropixels0"))
	assert.True(t, s.Exists("/general/extracellular_ephys/shank0"))
	assert.True(t, s.Exists("/general/extracellular_ephys/shank1"))
	assert.True(t, s.Exists("/general/extracellular_ephys/shank0/device"))

	table, err := s.Electrodes()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), table.Len())

	groups, err := table.Column("group_name")
	require.NoError(t, err)
	arr, err := groups.Materialize()
	require.NoError(t, err)
	names, err := arr.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"shank0", "shank0", "shank1"}, names)

	locations, err := table.Column("location")
	require.NoError(t, err)
	arr, err = locations.Materialize()
	require.NoError(t, err)
	locs, err := arr.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"CA1", "CA1", "CA3"}, locs)

	y, err := table.Column("y")
	require.NoError(t, err)
	arr, err = y.Materialize()
	require.NoError(t, err)
	ys, err := arr.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 20, 0}, ys)
}

func TestAddProbe_DuplicateDevice(t *testing.T) {
	p, err := ParseProbeMap([]byte(probeYAML))
	require.NoError(t, err)

	w, _ := newSessionFile(t)
	defer func() { _ = w.Close() }()
	_, err = w.AddProbe(p)
	require.NoError(t, err)
	_, err = w.AddProbe(p)
	assert.Error(t, err)
}
