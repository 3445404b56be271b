package ecephys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddDevice_Validation(t *testing.T) {
	w, _ := newSessionFile(t)
	defer func() { _ = w.Close() }()

	assert.ErrorContains(t, w.AddDevice("", "", ""), "invalid device name")
	assert.ErrorContains(t, w.AddDevice("a/b", "", ""), "invalid device name")

	require.NoError(t, w.AddDevice("probe0", "", ""))
	assert.ErrorContains(t, w.AddDevice("probe0", "", ""), "already exists")
}

func TestAddElectrodeGroup_Validation(t *testing.T) {
	w, _ := newSessionFile(t)
	defer func() { _ = w.Close() }()

	err := w.AddElectrodeGroup("shank0", "", "CA1", "probe0")
	assert.ErrorIs(t, err, ErrNotFound, "device must exist first")

	require.NoError(t, w.AddDevice("probe0", "", ""))
	assert.ErrorContains(t, w.AddElectrodeGroup("", "", "", "probe0"), "invalid electrode group name")
	require.NoError(t, w.AddElectrodeGroup("shank0", "", "CA1", "probe0"))
	assert.ErrorContains(t, w.AddElectrodeGroup("shank0", "", "CA1", "probe0"), "already exists")
}

func TestAddElectrode_RequiresGroup(t *testing.T) {
	w, _ := newSessionFile(t)
	defer func() { _ = w.Close() }()

	_, err := w.AddElectrode(Electrode{Group: "shank0"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestElectrodes_RoundTrip(t *testing.T) {
	w, path := newSessionFile(t)

	require.NoError(t, w.AddDevice("probe0", "silicon probe", "acme"))
	require.NoError(t, w.AddElectrodeGroup("shank0", "first shank", "CA1", "probe0"))
	require.NoError(t, w.AddElectrodeGroup("shank1", "second shank", "CA3", "probe0"))

	electrodes := []Electrode{
		{X: 0, Y: 0, Z: 0, Imp: 1.1e6, Location: "CA1", Filtering: "none", Group: "shank0", Label: "ch0"},
		{X: 0, Y: 20e-6, Z: 0, Imp: 1.2e6, Location: "CA1", Filtering: "none", Group: "shank0", Label: "ch1"},
		{X: 250e-6, Y: 0, Z: 0, Imp: 1.3e6, Location: "CA3", Filtering: "none", Group: "shank1", Label: "ch2"},
		{X: 250e-6, Y: 20e-6, Z: 0, Imp: 1.4e6, Location: "CA3", Filtering: "none", Group: "shank1", Label: "ch3"},
	}
	for i, e := range electrodes {
		row, err := w.AddElectrode(e)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), row, "rows number sequentially across groups")
	}

	s := reopen(t, w, path)

	// Device metadata.
	value, err := s.Attr("/general/devices/probe0", "manufacturer")
	require.NoError(t, err)
	assert.Equal(t, "acme", value)

	// Group metadata, and the link back to the device.
	value, err = s.Attr("/general/extracellular_ephys/shank1", "location")
	require.NoError(t, err)
	assert.Equal(t, "CA3", value)
	value, err = s.Attr("/general/extracellular_ephys/shank0/device", "neurodata_type")
	require.NoError(t, err)
	assert.Equal(t, "Device", value, "device link resolves to the device object")

	table, err := s.Electrodes()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), table.Len())
	assert.Equal(t,
		[]string{"x", "y", "z", "imp", "location", "filtering", "group_name", "label"},
		table.ColumnNames())

	desc, err := table.Description()
	require.NoError(t, err)
	assert.Equal(t, "metadata about extracellular electrodes", desc)

	imp, err := table.Column("imp")
	require.NoError(t, err)
	arr, err := imp.Materialize()
	require.NoError(t, err)
	imps, err := arr.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.1e6, 1.2e6, 1.3e6, 1.4e6}, imps)

	labels, err := table.Column("label")
	require.NoError(t, err)
	arr, err = labels.Materialize()
	require.NoError(t, err)
	got, err := arr.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"ch0", "ch1", "ch2", "ch3"}, got)
}
