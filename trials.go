package ecephys

import (
	"fmt"
)

// TrialsWriter accumulates trial intervals for the table at
// /intervals/trials. Every trial has a start and stop time; extra
// columns are declared before the first trial and filled per trial.
type TrialsWriter struct {
	table *TableWriter
}

// Trials returns the writer for the trial table, creating the table
// with its start_time and stop_time columns on first use.
func (w *SessionWriter) Trials() (*TrialsWriter, error) {
	if err := w.checkOpen(); err != nil {
		return nil, err
	}
	if tw := w.tableByPath(trialsPath); tw != nil {
		return &TrialsWriter{table: tw}, nil
	}

	tw, err := w.CreateTable(trialsPath, "experimental trials")
	if err != nil {
		return nil, err
	}
	if err := tw.AddColumn("start_time", ColFloat64, "start of the trial in seconds"); err != nil {
		return nil, err
	}
	if err := tw.AddColumn("stop_time", ColFloat64, "end of the trial in seconds"); err != nil {
		return nil, err
	}
	return &TrialsWriter{table: tw}, nil
}

// AddColumn declares an extra per-trial column. start_time and
// stop_time are already declared.
func (t *TrialsWriter) AddColumn(name string, kind ColumnKind, description string) error {
	return t.table.AddColumn(name, kind, description)
}

// AddRegionColumn declares an extra per-trial column referencing rows
// of another table.
func (t *TrialsWriter) AddRegionColumn(name, description, targetPath string) error {
	return t.table.AddRegionColumn(name, description, targetPath)
}

// AddTrial appends a trial spanning [start, stop) seconds. extra fills
// the declared extra columns and must not set start_time or stop_time.
func (t *TrialsWriter) AddTrial(start, stop float64, extra Row) error {
	if stop < start {
		return fmt.Errorf("trial stops at %g before it starts at %g", stop, start)
	}
	if _, ok := extra.Floats["start_time"]; ok {
		return fmt.Errorf("column %q is set from the start argument", "start_time")
	}
	if _, ok := extra.Floats["stop_time"]; ok {
		return fmt.Errorf("column %q is set from the stop argument", "stop_time")
	}

	row := Row{
		Floats:  map[string]float64{"start_time": start, "stop_time": stop},
		Ints:    extra.Ints,
		Strings: extra.Strings,
		Bools:   extra.Bools,
		Regions: extra.Regions,
	}
	for name, value := range extra.Floats {
		row.Floats[name] = value
	}
	return t.table.Append(row)
}

// Len returns the number of appended trials.
func (t *TrialsWriter) Len() uint64 { return t.table.Len() }

// TrialTimes reads the trial intervals back as parallel start and stop
// slices, in row order.
func (s *Session) TrialTimes() (starts, stops []float64, err error) {
	table, err := s.Trials()
	if err != nil {
		return nil, nil, err
	}
	if starts, err = table.floats("start_time"); err != nil {
		return nil, nil, err
	}
	if stops, err = table.floats("stop_time"); err != nil {
		return nil, nil, err
	}
	return starts, stops, nil
}
