package ecephys

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampSession writes a 4-channel recording at 200 Hz with value
// k*10+c at sample k, channel c, plus three trials of which the
// middle one was answered correctly.
func rampSession(t *testing.T) *Session {
	t.Helper()
	w, path := newSessionFile(t)

	const rows, channels = 1000, 4
	samples := make([]float64, rows*channels)
	for k := 0; k < rows; k++ {
		for c := 0; c < channels; c++ {
			samples[k*channels+c] = float64(k*10 + c)
		}
	}
	spec, err := NewSeries("ramp", mustArray(t, samples, rows, channels), WithRate(0, 200))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(spec))

	tr, err := w.Trials()
	require.NoError(t, err)
	require.NoError(t, tr.AddColumn("correct", ColBool, "response was correct"))
	for i, start := range []float64{0.1, 1.5, 2.5} {
		err := tr.AddTrial(start, start+0.5, Row{
			Bools: map[string]bool{"correct": i == 1},
		})
		require.NoError(t, err)
	}
	return reopen(t, w, path)
}

func TestAlignTrials_FilteredStack(t *testing.T) {
	s := rampSession(t)
	series, err := s.Acquisition("ramp")
	require.NoError(t, err)

	tensor, err := AlignTrials(s, series, Window{Before: 0.05, After: 0.1},
		FilterBool("correct", false))
	require.NoError(t, err)

	nSamples, nChannels, nTrials := tensor.Shape()
	assert.Equal(t, 30, nSamples)
	assert.Equal(t, 4, nChannels)
	assert.Equal(t, 2, nTrials, "trials 0 and 2 were incorrect")
	assert.Equal(t, []int64{0, 2}, tensor.TrialIDs())

	// Trial 0 starts at 0.1 s, so the window begins at sample 10;
	// trial 2 starts at 2.5 s, sample 490.
	for _, tc := range []struct {
		trial int
		k0    int
	}{
		{trial: 0, k0: 10},
		{trial: 1, k0: 490},
	} {
		for _, sample := range []int{0, 7, 29} {
			for c := 0; c < nChannels; c++ {
				got, err := tensor.At(sample, c, tc.trial)
				require.NoError(t, err)
				assert.Equal(t, float64((tc.k0+sample)*10+c), got,
					"sample %d channel %d trial %d", sample, c, tc.trial)
			}
		}
	}

	// Both windows sit inside the recording.
	for _, v := range tensor.Values() {
		assert.False(t, math.IsNaN(v))
	}

	offsets := tensor.Offsets()
	require.Len(t, offsets, 30)
	assert.InDelta(t, -0.05, offsets[0], 1e-12)
	assert.InDelta(t, 0, offsets[10], 1e-12, "trial start falls on sample 10")
	assert.InDelta(t, 0.095, offsets[29], 1e-12)
}

func TestAlignTrials_EmptySelection(t *testing.T) {
	s := rampSession(t)
	series, err := s.Acquisition("ramp")
	require.NoError(t, err)

	// Contradictory filters keep nothing.
	tensor, err := AlignTrials(s, series, Window{Before: 0.05, After: 0.1},
		FilterBool("correct", true), FilterBool("correct", false))
	assert.ErrorIs(t, err, ErrEmptySelection)
	assert.Nil(t, tensor)
}

func TestAlignTrials_FilterErrors(t *testing.T) {
	s := rampSession(t)
	series, err := s.Acquisition("ramp")
	require.NoError(t, err)
	win := Window{Before: 0.05, After: 0.1}

	_, err = AlignTrials(s, series, win, FilterBool("no_such_column", true))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = AlignTrials(s, series, win, FilterFloat("correct", 1))
	assert.ErrorContains(t, err, "want float64")

	_, err = AlignTrials(s, series, win, FilterString("start_time", "0.1"))
	assert.ErrorContains(t, err, "want string")
}

func TestAlignTrials_NaNPadding(t *testing.T) {
	w, path := newSessionFile(t)

	samples := make([]float64, 50)
	for k := range samples {
		samples[k] = float64(k)
	}
	spec, err := NewSeries("short", mustArray(t, samples), WithRate(0, 100))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(spec))

	tr, err := w.Trials()
	require.NoError(t, err)
	require.NoError(t, tr.AddTrial(0.02, 0.04, Row{})) // window reaches before sample 0
	require.NoError(t, tr.AddTrial(0.48, 0.50, Row{})) // window reaches past the end
	s := reopen(t, w, path)

	series, err := s.Acquisition("short")
	require.NoError(t, err)
	tensor, err := AlignTrials(s, series, Window{Before: 0.05, After: 0.05})
	require.NoError(t, err)

	nSamples, _, nTrials := tensor.Shape()
	require.Equal(t, 10, nSamples)
	require.Equal(t, 2, nTrials)

	// Trial 0: window starts 3 samples before the recording.
	for sample := 0; sample < 3; sample++ {
		v, err := tensor.At(sample, 0, 0)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(v), "sample %d", sample)
	}
	for sample := 3; sample < 10; sample++ {
		v, err := tensor.At(sample, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, float64(sample-3), v, "sample %d", sample)
	}

	// Trial 1: the last 3 samples fall past the recording.
	for sample := 0; sample < 7; sample++ {
		v, err := tensor.At(sample, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, float64(43+sample), v, "sample %d", sample)
	}
	for sample := 7; sample < 10; sample++ {
		v, err := tensor.At(sample, 0, 1)
		require.NoError(t, err)
		assert.True(t, math.IsNaN(v), "sample %d", sample)
	}
}

func TestAlignTrials_AppliesConversion(t *testing.T) {
	w, path := newSessionFile(t)

	spec, err := NewSeries("raw", mustArray(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}),
		WithRate(0, 100), WithConversion(0.5))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(spec))
	tr, err := w.Trials()
	require.NoError(t, err)
	require.NoError(t, tr.AddTrial(0.04, 0.06, Row{}))
	s := reopen(t, w, path)

	series, err := s.Acquisition("raw")
	require.NoError(t, err)
	tensor, err := AlignTrials(s, series, Window{Before: 0.02, After: 0.02})
	require.NoError(t, err)

	nSamples, _, _ := tensor.Shape()
	require.Equal(t, 4, nSamples)
	for sample := 0; sample < 4; sample++ {
		v, err := tensor.At(sample, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, float64(2+sample)*0.5, v)
	}
}

func TestAlignTrials_NegativeBefore(t *testing.T) {
	w, path := newSessionFile(t)

	samples := make([]float64, 100)
	for k := range samples {
		samples[k] = float64(k)
	}
	spec, err := NewSeries("raw", mustArray(t, samples), WithRate(0, 100))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(spec))
	tr, err := w.Trials()
	require.NoError(t, err)
	require.NoError(t, tr.AddTrial(0.1, 0.2, Row{}))
	s := reopen(t, w, path)

	series, err := s.Acquisition("raw")
	require.NoError(t, err)

	// A negative Before starts the window after the trial event.
	tensor, err := AlignTrials(s, series, Window{Before: -0.01, After: 0.03})
	require.NoError(t, err)
	nSamples, _, _ := tensor.Shape()
	require.Equal(t, 2, nSamples)
	v, err := tensor.At(0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 11.0, v)

	offsets := tensor.Offsets()
	assert.InDelta(t, 0.01, offsets[0], 1e-12)
}

func TestAlignTrials_WindowValidation(t *testing.T) {
	s := rampSession(t)
	series, err := s.Acquisition("ramp")
	require.NoError(t, err)

	_, err = AlignTrials(s, series, Window{Before: 0.05, After: -0.05})
	assert.ErrorContains(t, err, "spans")

	_, err = AlignTrials(s, series, Window{Before: 0, After: 0.001})
	assert.ErrorContains(t, err, "shorter than one sample")

	_, err = AlignTrials(nil, series, Window{Before: 0.05, After: 0.1})
	assert.Error(t, err)
}

func TestAlignTrials_TimestampsMatchRate(t *testing.T) {
	const n = 400
	const rate = 200.0
	samples := make([]float64, n)
	for k := range samples {
		samples[k] = math.Sin(float64(k) / 17)
	}
	timestamps := make([]float64, n)
	for k := range timestamps {
		timestamps[k] = float64(k) / rate
	}

	w, path := newSessionFile(t)
	regular, err := NewSeries("regular", mustArray(t, samples), WithRate(0, rate))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(regular))
	explicit, err := NewSeries("explicit", mustArray(t, samples), WithTimestamps(timestamps))
	require.NoError(t, err)
	require.NoError(t, w.AddAcquisition(explicit))
	tr, err := w.Trials()
	require.NoError(t, err)
	require.NoError(t, tr.AddTrial(0.5, 0.7, Row{}))
	s := reopen(t, w, path)

	win := Window{Before: 0.05, After: 0.1}
	a, err := s.Acquisition("regular")
	require.NoError(t, err)
	tensorA, err := AlignTrials(s, a, win)
	require.NoError(t, err)
	b, err := s.Acquisition("explicit")
	require.NoError(t, err)
	tensorB, err := AlignTrials(s, b, win)
	require.NoError(t, err)

	// Evenly spaced timestamps align exactly like the declared rate.
	assert.Equal(t, tensorA.Values(), tensorB.Values())
	assert.Equal(t, tensorA.TrialIDs(), tensorB.TrialIDs())
}

func TestTrialTensor_At_Bounds(t *testing.T) {
	s := rampSession(t)
	series, err := s.Acquisition("ramp")
	require.NoError(t, err)
	tensor, err := AlignTrials(s, series, Window{Before: 0.05, After: 0.1})
	require.NoError(t, err)

	for _, idx := range [][3]int{
		{-1, 0, 0}, {30, 0, 0},
		{0, -1, 0}, {0, 4, 0},
		{0, 0, -1}, {0, 0, 3},
	} {
		_, err := tensor.At(idx[0], idx[1], idx[2])
		assert.ErrorIs(t, err, ErrOutOfBounds, "index %v", idx)
	}
}
