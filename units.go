package ecephys

import (
	"fmt"

	"github.com/scigolib/ecephys/internal/core"
)

// UnitsWriter accumulates sorted units for the table at /units. Each
// unit is a ragged vector of spike times; on disk they are stored
// flattened with an index of per-unit end offsets.
type UnitsWriter struct {
	w          *SessionWriter
	spikeTimes [][]float64
}

// Units returns the writer for the units table, creating it on first
// use.
func (w *SessionWriter) Units() *UnitsWriter {
	if w.units == nil {
		w.units = &UnitsWriter{w: w}
	}
	return w.units
}

// AddUnit appends one unit with its spike times in seconds and returns
// the unit's row index. Times are stored as given.
func (u *UnitsWriter) AddUnit(spikeTimes []float64) (uint64, error) {
	if err := u.w.checkOpen(); err != nil {
		return 0, err
	}
	times := make([]float64, len(spikeTimes))
	copy(times, spikeTimes)
	u.spikeTimes = append(u.spikeTimes, times)
	return uint64(len(u.spikeTimes) - 1), nil
}

// Len returns the number of appended units.
func (u *UnitsWriter) Len() uint64 { return uint64(len(u.spikeTimes)) }

// settle writes the units table: id, the flattened spike_times vector
// and the spike_times_index end offsets that delimit each unit's span.
func (u *UnitsWriter) settle(w *SessionWriter) error {
	group, err := w.ensureGroupAt(unitsPath)
	if err != nil {
		return err
	}
	group.attrs = append(group.attrs,
		core.NewStringListAttribute("colnames", []string{"spike_times"}),
		core.NewStringAttribute("description", "spike times of sorted units"),
	)

	n := len(u.spikeTimes)
	ids := make([]int64, n)
	index := make([]int64, n)
	var flat []float64
	for i, times := range u.spikeTimes {
		ids[i] = int64(i)
		flat = append(flat, times...)
		index[i] = int64(len(flat))
	}

	idArr, err := NewArray(ids)
	if err != nil {
		return err
	}
	if err := w.stageDatasetAt(unitsPath+"/id", idArr); err != nil {
		return err
	}

	flatArr, err := NewArray(flat)
	if err != nil {
		return err
	}
	err = w.stageDatasetAt(unitsPath+"/spike_times", flatArr,
		core.NewStringAttribute("description", "spike times of all units, flattened"),
		core.NewStringAttribute("unit", "seconds"),
	)
	if err != nil {
		return err
	}

	indexArr, err := NewArray(index)
	if err != nil {
		return err
	}
	return w.stageDatasetAt(unitsPath+"/spike_times_index", indexArr,
		core.NewStringAttribute("description", "end offset of each unit in spike_times"),
		core.NewStringAttribute("target", unitsPath+"/spike_times"),
	)
}

// Units is a read handle to the units table. The per-unit end offsets
// load at open; spike times load per unit on demand.
type Units struct {
	sess  *Session
	table *Table
	times *Dataset
	index []int64
}

// Units opens the units table at /units.
func (s *Session) Units() (*Units, error) {
	table, err := s.Table(unitsPath)
	if err != nil {
		return nil, err
	}
	times, err := s.Dataset(unitsPath + "/spike_times")
	if err != nil {
		return nil, err
	}
	indexDS, err := s.Dataset(unitsPath + "/spike_times_index")
	if err != nil {
		return nil, err
	}

	arr, err := indexDS.Materialize()
	if err != nil {
		return nil, err
	}
	index, err := arr.Int64s()
	if err != nil {
		return nil, err
	}

	if uint64(len(index)) != table.Len() {
		return nil, fmt.Errorf("units index has %d entries for %d rows", len(index), table.Len())
	}
	var prev int64
	for i, end := range index {
		if end < prev {
			return nil, fmt.Errorf("units index decreases at entry %d", i)
		}
		prev = end
	}
	//nolint:gosec // G115: validated non-negative above
	if n := times.Len(); len(index) > 0 && uint64(prev) != n {
		return nil, fmt.Errorf("units index ends at %d, spike_times holds %d", prev, n)
	}

	return &Units{sess: s, table: table, times: times, index: index}, nil
}

// Count returns the number of units.
func (u *Units) Count() uint64 { return u.table.Len() }

// IDs returns the unit row identifiers in row order.
func (u *Units) IDs() ([]int64, error) { return u.table.IDs() }

// SpikeCount returns the number of spikes of unit i without reading
// the times. ErrIndexOutOfRange when i is at or past the unit count.
func (u *Units) SpikeCount(i uint64) (uint64, error) {
	start, end, err := u.span(i)
	if err != nil {
		return 0, err
	}
	return end - start, nil
}

// SpikeTimes reads the spike times of unit i in seconds.
// ErrIndexOutOfRange when i is at or past the unit count.
func (u *Units) SpikeTimes(i uint64) ([]float64, error) {
	start, end, err := u.span(i)
	if err != nil {
		return nil, err
	}
	if end == start {
		return []float64{}, nil
	}

	arr, err := u.times.MaterializeSlice([]uint64{start}, []uint64{end - start})
	if err != nil {
		return nil, err
	}
	return arr.Float64s()
}

func (u *Units) span(i uint64) (start, end uint64, err error) {
	if i >= u.Count() {
		return 0, 0, fmt.Errorf("unit %d exceeds count %d: %w", i, u.Count(), ErrIndexOutOfRange)
	}
	if i > 0 {
		start = uint64(u.index[i-1])
	}
	return start, uint64(u.index[i]), nil
}
