package ecephys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeries_Validation(t *testing.T) {
	samples := mustArray(t, []float64{1, 2, 3, 4, 5, 6}, 3, 2)

	tests := []struct {
		name    string
		series  string
		arr     *Array
		opts    []SeriesOption
		wantErr string
	}{
		{
			name:    "no time base",
			series:  "raw",
			arr:     samples,
			wantErr: "exactly one of",
		},
		{
			name:   "both time bases",
			series: "raw",
			arr:    samples,
			opts: []SeriesOption{
				WithRate(0, 100),
				WithTimestamps([]float64{0, 0.01, 0.02}),
			},
			wantErr: "exactly one of",
		},
		{
			name:    "zero rate",
			series:  "raw",
			arr:     samples,
			opts:    []SeriesOption{WithRate(0, 0)},
			wantErr: "rate must be positive",
		},
		{
			name:    "timestamp count mismatch",
			series:  "raw",
			arr:     samples,
			opts:    []SeriesOption{WithTimestamps([]float64{0, 0.01})},
			wantErr: "2 timestamps for 3 sample rows",
		},
		{
			name:    "electrode count mismatch",
			series:  "raw",
			arr:     samples,
			opts:    []SeriesOption{WithRate(0, 100), WithElectrodes([]uint64{0})},
			wantErr: "electrode references for 2 channels",
		},
		{
			name:    "bad name",
			series:  "a/b",
			arr:     samples,
			opts:    []SeriesOption{WithRate(0, 100)},
			wantErr: "invalid series name",
		},
		{
			name:    "string samples",
			series:  "raw",
			arr:     mustArray(t, []string{"a", "b"}),
			opts:    []SeriesOption{WithRate(0, 100)},
			wantErr: "must be numeric",
		},
		{
			name:    "zero conversion",
			series:  "raw",
			arr:     samples,
			opts:    []SeriesOption{WithRate(0, 100), WithConversion(0)},
			wantErr: "conversion must be positive",
		},
		{
			name:   "valid with rate",
			series: "raw",
			arr:    samples,
			opts:   []SeriesOption{WithRate(0.5, 100)},
		},
		{
			name:   "valid with timestamps",
			series: "raw",
			arr:    samples,
			opts:   []SeriesOption{WithTimestamps([]float64{0, 0.01, 0.02})},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := NewSeries(tt.series, tt.arr, tt.opts...)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, spec)
		})
	}
}

func TestSeries_RoundTrip(t *testing.T) {
	w, path := newSessionFile(t)
	require.NoError(t, w.AddDevice("probe0", "", ""))
	require.NoError(t, w.AddElectrodeGroup("shank0", "", "CA1", "probe0"))
	for i := 0; i < 3; i++ {
		_, err := w.AddElectrode(Electrode{Group: "shank0", Location: "CA1"})
		require.NoError(t, err)
	}

	samples := make([]float64, 50*3)
	for i := range samples {
		samples[i] = float64(i) * 0.25
	}
	spec, err := NewSeries("probe0_lfp", mustArray(t, samples, 50, 3),
		WithRate(1.5, 1250),
		WithElectrodes([]uint64{2, 0, 1}),
		WithUnit("volts"),
		WithConversion(1e-6),
		WithSeriesDescription("LFP from shank0"),
	)
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(spec))

	s := reopen(t, w, path)

	names, err := s.Acquisitions()
	require.NoError(t, err)
	assert.Equal(t, []string{"probe0_lfp"}, names)

	series, err := s.Acquisition("probe0_lfp")
	require.NoError(t, err)
	assert.Equal(t, "probe0_lfp", series.Name())
	assert.Equal(t, "/acquisition/probe0_lfp", series.Path())
	assert.Equal(t, "LFP from shank0", series.Description())
	assert.Equal(t, "volts", series.Unit())
	assert.Equal(t, 1e-6, series.Conversion())
	assert.Equal(t, uint64(50), series.SampleCount())
	assert.Equal(t, uint64(3), series.ChannelCount())

	rate, ok := series.Rate()
	require.True(t, ok)
	assert.Equal(t, 1250.0, rate)
	start, _ := series.StartingTime()
	assert.Equal(t, 1.5, start)

	region := series.Electrodes()
	require.NotNil(t, region)
	assert.Equal(t, electrodesPath, region.TablePath)
	assert.Equal(t, []uint64{2, 0, 1}, region.Indices, "channel order is preserved")

	// Values come back through the lazy handle.
	arr, err := series.Data().MaterializeSlice([]uint64{10, 1}, []uint64{2, 2})
	require.NoError(t, err)
	values, err := arr.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{
		(10*3 + 1) * 0.25, (10*3 + 2) * 0.25,
		(11*3 + 1) * 0.25, (11*3 + 2) * 0.25,
	}, values)
}

func TestSeries_RateTimestampsEquivalence(t *testing.T) {
	const n = 200
	const rate = 200.0

	timestamps := make([]float64, n)
	for k := range timestamps {
		timestamps[k] = float64(k) / rate
	}
	samples := make([]float64, n)
	for k := range samples {
		samples[k] = float64(k)
	}

	w, path := newSessionFile(t)
	regular, err := NewSeries("regular", mustArray(t, samples), WithRate(0, rate))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(regular))
	explicit, err := NewSeries("explicit", mustArray(t, samples), WithTimestamps(timestamps))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(explicit))
	s := reopen(t, w, path)

	a, err := s.Acquisition("regular")
	require.NoError(t, err)
	b, err := s.Acquisition("explicit")
	require.NoError(t, err)

	_, ok := a.Rate()
	assert.True(t, ok)
	_, ok = b.Rate()
	assert.False(t, ok)

	// Sample k is at the same time under both representations.
	for k := uint64(0); k < n; k++ {
		ta, err := a.TimeAt(k)
		require.NoError(t, err)
		tb, err := b.TimeAt(k)
		require.NoError(t, err)
		assert.InDelta(t, ta, tb, 1e-12, "sample %d", k)
	}

	tsA, err := a.Timestamps()
	require.NoError(t, err)
	tsB, err := b.Timestamps()
	require.NoError(t, err)
	require.Len(t, tsA, n)
	for k := range tsA {
		assert.InDelta(t, tsA[k], tsB[k], 1e-12, "sample %d", k)
	}

	_, err = a.TimeAt(n)
	assert.ErrorIs(t, err, ErrOutOfBounds)
	_, err = b.TimeAt(n)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestSeries_ElectrodeValidationAtWrite(t *testing.T) {
	w, _ := newSessionFile(t)
	defer func() { _ = w.Close() }()

	samples := mustArray(t, []float64{1, 2, 3, 4}, 2, 2)

	spec, err := NewSeries("raw", samples, WithRate(0, 100), WithElectrodes([]uint64{0, 1}))
	require.NoError(t, err)
	err = w.AddAcquisition(spec)
	assert.ErrorContains(t, err, "no electrode table")

	require.NoError(t, w.AddDevice("probe0", "", ""))
	require.NoError(t, w.AddElectrodeGroup("shank0", "", "CA1", "probe0"))
	_, err = w.AddElectrode(Electrode{Group: "shank0"})
	require.NoError(t, err)

	spec, err = NewSeries("raw", samples, WithRate(0, 100), WithElectrodes([]uint64{0, 1}))
	require.NoError(t, err)
	err = w.AddAcquisition(spec)
	assert.ErrorContains(t, err, "exceeds 1 table rows")
}

func TestProcessingModules(t *testing.T) {
	w, path := newSessionFile(t)
	require.NoError(t, w.AddProcessingModule("ecephys", "filtered and downsampled signals"))

	lfp, err := NewSeries("lfp", mustArray(t, []float64{5, 6, 7, 8}), WithRate(0, 1250))
	require.NoError(t, err)
	require.NoError(t, w.AddProcessed("ecephys", lfp))

	// A module that was never declared explicitly is created on the fly.
	theta, err := NewSeries("theta", mustArray(t, []float64{1, 2}), WithRate(0, 1250))
	require.NoError(t, err)
	require.NoError(t, w.AddProcessed("bands", theta))

	err = w.AddProcessingModule("ecephys", "duplicate")
	assert.Error(t, err)

	s := reopen(t, w, path)

	modules, err := s.ProcessingModules()
	require.NoError(t, err)
	assert.Equal(t, []string{"ecephys", "bands"}, modules)

	desc, err := s.Attr("/processing/ecephys", "description")
	require.NoError(t, err)
	assert.Equal(t, "filtered and downsampled signals", desc)

	series, err := s.Processing("ecephys", "lfp")
	require.NoError(t, err)
	arr, err := series.Data().Materialize()
	require.NoError(t, err)
	values, err := arr.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 6, 7, 8}, values)
}

func TestSeries_DuplicateName(t *testing.T) {
	w, _ := newSessionFile(t)
	defer func() { _ = w.Close() }()

	first, err := NewSeries("raw", mustArray(t, []float64{1}), WithRate(0, 1))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(first))

	second, err := NewSeries("raw", mustArray(t, []float64{2}), WithRate(0, 1))
	require.NoError(t, err)
	assert.Error(t, w.AddAcquisition(second))
}

func TestSeries_SingleChannel(t *testing.T) {
	w, path := newSessionFile(t)
	spec, err := NewSeries("mono", mustArray(t, []float64{1, 2, 3}), WithRate(0, 10))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(spec))
	s := reopen(t, w, path)

	series, err := s.Acquisition("mono")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), series.SampleCount())
	assert.Equal(t, uint64(1), series.ChannelCount())
	assert.Nil(t, series.Electrodes())
}
