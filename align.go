package ecephys

import (
	"errors"
	"fmt"
	"math"
)

// Window is an alignment window around a trial start, in seconds:
// samples from start-Before up to but not including start+After.
// Before may be negative to start after the event; the window must
// span more than zero seconds.
type Window struct {
	Before float64
	After  float64
}

// TrialFilter selects trials by an exact match on one column. Build
// filters with FilterBool, FilterFloat, FilterInt and FilterString.
type TrialFilter struct {
	column string
	match  func(value any) (bool, error)
}

// FilterBool keeps trials whose bool column equals want.
func FilterBool(column string, want bool) TrialFilter {
	return TrialFilter{column: column, match: func(value any) (bool, error) {
		v, ok := value.(int8)
		if !ok {
			return false, fmt.Errorf("column %q holds %T, want bool", column, value)
		}
		return (v != 0) == want, nil
	}}
}

// FilterFloat keeps trials whose float column equals want exactly.
func FilterFloat(column string, want float64) TrialFilter {
	return TrialFilter{column: column, match: func(value any) (bool, error) {
		v, ok := value.(float64)
		if !ok {
			return false, fmt.Errorf("column %q holds %T, want float64", column, value)
		}
		return v == want, nil
	}}
}

// FilterInt keeps trials whose integer column equals want.
func FilterInt(column string, want int64) TrialFilter {
	return TrialFilter{column: column, match: func(value any) (bool, error) {
		switch v := value.(type) {
		case int64:
			return v == want, nil
		case int32:
			return int64(v) == want, nil
		case int16:
			return int64(v) == want, nil
		default:
			return false, fmt.Errorf("column %q holds %T, want integer", column, value)
		}
	}}
}

// FilterString keeps trials whose string column equals want.
func FilterString(column string, want string) TrialFilter {
	return TrialFilter{column: column, match: func(value any) (bool, error) {
		v, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("column %q holds %T, want string", column, value)
		}
		return v == want, nil
	}}
}

// apply clears keep entries for rows the filter rejects.
func (f TrialFilter) apply(t *Table, keep []bool) error {
	col, err := t.Column(f.column)
	if err != nil {
		return err
	}
	arr, err := col.Materialize()
	if err != nil {
		return err
	}

	for i := range keep {
		if !keep[i] {
			continue
		}
		value, err := arr.At(uint64(i))
		if err != nil {
			return err
		}
		ok, err := f.match(value)
		if err != nil {
			return err
		}
		if !ok {
			keep[i] = false
		}
	}
	return nil
}

// TrialTensor holds trial-aligned samples as a dense row-major block
// with shape (samples, channels, trials). Samples outside the recorded
// range are NaN; stored values are scaled by the series conversion
// factor.
type TrialTensor struct {
	values   []float64
	samples  int
	channels int
	trials   int
	trialIDs []int64
	offsets  []float64
}

// Shape returns the tensor extents.
func (t *TrialTensor) Shape() (samples, channels, trials int) {
	return t.samples, t.channels, t.trials
}

// At returns the value at sample s, channel c, trial i.
func (t *TrialTensor) At(s, c, i int) (float64, error) {
	if s < 0 || s >= t.samples || c < 0 || c >= t.channels || i < 0 || i >= t.trials {
		return 0, fmt.Errorf("index (%d, %d, %d) outside shape (%d, %d, %d): %w",
			s, c, i, t.samples, t.channels, t.trials, ErrOutOfBounds)
	}
	return t.values[(s*t.channels+c)*t.trials+i], nil
}

// Values returns the tensor's backing array in row-major
// (samples, channels, trials) order. Not a copy.
func (t *TrialTensor) Values() []float64 { return t.values }

// TrialIDs returns the row identifiers of the included trials, in
// trial axis order.
func (t *TrialTensor) TrialIDs() []int64 {
	out := make([]int64, len(t.trialIDs))
	copy(out, t.trialIDs)
	return out
}

// Offsets returns the time of each sample row relative to the trial
// start, in seconds.
func (t *TrialTensor) Offsets() []float64 {
	out := make([]float64, len(t.offsets))
	copy(out, t.offsets)
	return out
}

// AlignTrials cuts the series into windows around the start of every
// trial that passes all filters and stacks them on a trial axis. Trial
// order follows the table; windows reaching before the first or past
// the last recorded sample are padded with NaN.
//
// ErrEmptySelection when no trial passes the filters.
func AlignTrials(sess *Session, series *Series, win Window, filters ...TrialFilter) (*TrialTensor, error) {
	if sess == nil || series == nil {
		return nil, errors.New("session and series must not be nil")
	}
	width := win.Before + win.After
	if width <= 0 {
		return nil, fmt.Errorf("alignment window spans %g seconds", width)
	}

	trials, err := sess.Trials()
	if err != nil {
		return nil, err
	}

	keep := make([]bool, trials.Len())
	for i := range keep {
		keep[i] = true
	}
	for _, f := range filters {
		if err := f.apply(trials, keep); err != nil {
			return nil, err
		}
	}

	var selected []int
	for i, k := range keep {
		if k {
			selected = append(selected, i)
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("no trials match the filters: %w", ErrEmptySelection)
	}

	starts, err := trials.floats("start_time")
	if err != nil {
		return nil, err
	}
	ids, err := trials.IDs()
	if err != nil {
		return nil, err
	}

	base, rate, err := series.timeBase()
	if err != nil {
		return nil, err
	}
	samples := int(math.Round(width * rate))
	if samples < 1 {
		return nil, fmt.Errorf("window of %g seconds is shorter than one sample at %g Hz", width, rate)
	}

	//nolint:gosec // G115: channel counts are far below int range
	channels := int(series.ChannelCount())
	tensor := &TrialTensor{
		values:   make([]float64, samples*channels*len(selected)),
		samples:  samples,
		channels: channels,
		trials:   len(selected),
		trialIDs: make([]int64, len(selected)),
		offsets:  make([]float64, samples),
	}
	for i := range tensor.values {
		tensor.values[i] = math.NaN()
	}
	for s := range tensor.offsets {
		tensor.offsets[s] = -win.Before + float64(s)/rate
	}

	data := series.Data()
	//nolint:gosec // G115: sample counts are far below int64 range
	totalRows := int64(data.Len())
	conversion := series.Conversion()

	for t, row := range selected {
		tensor.trialIDs[t] = ids[row]

		k0 := int64(math.Round((starts[row] - win.Before - base) * rate))
		kLo, kHi := k0, k0+int64(samples)
		if kLo < 0 {
			kLo = 0
		}
		if kHi > totalRows {
			kHi = totalRows
		}
		if kLo >= kHi {
			continue // window entirely outside the recording
		}

		block, err := readSampleBlock(data, uint64(kLo), uint64(kHi-kLo), channels)
		if err != nil {
			return nil, err
		}

		for si := 0; si < int(kHi-kLo); si++ {
			s := int(kLo-k0) + si
			for c := 0; c < channels; c++ {
				tensor.values[(s*channels+c)*tensor.trials+t] = block[si*channels+c] * conversion
			}
		}
	}
	return tensor, nil
}

// readSampleBlock materializes rows [start, start+count) across all
// channels as a flat row-major block.
func readSampleBlock(data *Dataset, start, count uint64, channels int) ([]float64, error) {
	var arr *Array
	var err error
	if data.Rank() == 2 {
		//nolint:gosec // G115: channel counts are far below uint64 range
		arr, err = data.MaterializeSlice([]uint64{start, 0}, []uint64{count, uint64(channels)})
	} else {
		arr, err = data.MaterializeSlice([]uint64{start}, []uint64{count})
	}
	if err != nil {
		return nil, err
	}
	return arr.Float64s()
}
