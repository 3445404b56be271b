package ecephys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/scigolib/ecephys/internal/core"
)

// SeriesSpec describes a sampled series to be added to a session: a
// block of samples plus its time base. Build one with NewSeries.
type SeriesSpec struct {
	name          string
	samples       *Array
	description   string
	unit          string
	conversion    float64
	startingTime  float64
	rate          float64
	hasRate       bool
	timestamps    []float64
	hasTimestamps bool
	electrodes    []uint64
	hasElectrodes bool
}

// SeriesOption configures a series built with NewSeries.
type SeriesOption func(*SeriesSpec) error

// WithRate gives the series a regular time base: sample k is at
// startingTime + k/rate seconds.
func WithRate(startingTime, rate float64) SeriesOption {
	return func(spec *SeriesSpec) error {
		if rate <= 0 {
			return fmt.Errorf("rate must be positive, got %g", rate)
		}
		spec.startingTime = startingTime
		spec.rate = rate
		spec.hasRate = true
		return nil
	}
}

// WithTimestamps gives the series an explicit time base: one timestamp
// in seconds per sample row.
func WithTimestamps(timestamps []float64) SeriesOption {
	return func(spec *SeriesSpec) error {
		spec.timestamps = make([]float64, len(timestamps))
		copy(spec.timestamps, timestamps)
		spec.hasTimestamps = true
		return nil
	}
}

// WithElectrodes records which electrode table rows the series
// channels come from, one row index per channel in channel order.
func WithElectrodes(indices []uint64) SeriesOption {
	return func(spec *SeriesSpec) error {
		spec.electrodes = make([]uint64, len(indices))
		copy(spec.electrodes, indices)
		spec.hasElectrodes = true
		return nil
	}
}

// WithUnit sets the unit of the stored samples. Default "volts".
func WithUnit(unit string) SeriesOption {
	return func(spec *SeriesSpec) error {
		if unit == "" {
			return errors.New("unit must not be empty")
		}
		spec.unit = unit
		return nil
	}
}

// WithConversion sets the factor that scales stored samples to the
// unit. Default 1.
func WithConversion(conversion float64) SeriesOption {
	return func(spec *SeriesSpec) error {
		if conversion <= 0 {
			return fmt.Errorf("conversion must be positive, got %g", conversion)
		}
		spec.conversion = conversion
		return nil
	}
}

// WithSeriesDescription sets the series description.
func WithSeriesDescription(desc string) SeriesOption {
	return func(spec *SeriesSpec) error {
		spec.description = desc
		return nil
	}
}

// NewSeries builds a series from a block of samples. samples is 1-D
// (one channel) or 2-D with shape (samples, channels). Exactly one of
// WithRate and WithTimestamps must be given; a timestamps vector must
// have one entry per sample row.
func NewSeries(name string, samples *Array, opts ...SeriesOption) (*SeriesSpec, error) {
	if name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid series name %q", name)
	}
	if samples == nil {
		return nil, errors.New("samples must not be nil")
	}
	if rank := len(samples.shape); rank < 1 || rank > 2 {
		return nil, fmt.Errorf("samples must be 1-D or 2-D, got rank %d", rank)
	}
	if samples.Dtype() == "string" {
		return nil, errors.New("samples must be numeric")
	}

	spec := &SeriesSpec{
		name:       name,
		samples:    samples,
		unit:       "volts",
		conversion: 1.0,
	}
	for _, opt := range opts {
		if err := opt(spec); err != nil {
			return nil, err
		}
	}

	if spec.hasRate == spec.hasTimestamps {
		return nil, errors.New("exactly one of WithRate and WithTimestamps must be set")
	}
	if spec.hasTimestamps && uint64(len(spec.timestamps)) != samples.shape[0] {
		return nil, fmt.Errorf("%d timestamps for %d sample rows", len(spec.timestamps), samples.shape[0])
	}
	if spec.hasElectrodes {
		channels := uint64(1)
		if len(samples.shape) == 2 {
			channels = samples.shape[1]
		}
		if uint64(len(spec.electrodes)) != channels {
			return nil, fmt.Errorf("%d electrode references for %d channels", len(spec.electrodes), channels)
		}
	}
	return spec, nil
}

// AddAcquisition stores a series under /acquisition.
func (w *SessionWriter) AddAcquisition(spec *SeriesSpec) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	return w.addSeries(acquisitionPath, spec)
}

// AddProcessingModule creates a processing module group under
// /processing to hold derived series.
func (w *SessionWriter) AddProcessingModule(name, description string) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid module name %q", name)
	}
	path := joinObjectPath(processingPath, name)
	if _, err := w.findStaged(path); err == nil {
		return fmt.Errorf("path %q already exists", path)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	group, err := w.ensureGroupAt(path)
	if err != nil {
		return err
	}
	group.attrs = append(group.attrs, core.NewStringAttribute("description", description))
	return nil
}

// AddProcessed stores a derived series under /processing/<module>. The
// module group is created if it does not exist yet.
func (w *SessionWriter) AddProcessed(module string, spec *SeriesSpec) error {
	if err := w.checkOpen(); err != nil {
		return err
	}
	if module == "" || strings.Contains(module, "/") {
		return fmt.Errorf("invalid module name %q", module)
	}
	return w.addSeries(joinObjectPath(processingPath, module), spec)
}

func (w *SessionWriter) addSeries(parentPath string, spec *SeriesSpec) error {
	if spec == nil {
		return errors.New("series spec must not be nil")
	}
	path := joinObjectPath(parentPath, spec.name)
	if _, err := w.findStaged(path); err == nil {
		return fmt.Errorf("path %q already exists", path)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if spec.hasElectrodes {
		if err := w.checkElectrodeRefs(spec.electrodes); err != nil {
			return fmt.Errorf("series %q: %w", spec.name, err)
		}
	}

	group, err := w.ensureGroupAt(path)
	if err != nil {
		return err
	}
	group.attrs = append(group.attrs,
		core.NewStringAttribute("neurodata_type", "ElectricalSeries"),
		core.NewStringAttribute("description", spec.description),
	)

	err = w.stageDatasetAt(joinObjectPath(path, "data"), spec.samples,
		core.NewStringAttribute("unit", spec.unit),
		core.NewFloat64Attribute("conversion", spec.conversion),
	)
	if err != nil {
		return err
	}

	if spec.hasRate {
		err = w.stageScalarAt(joinObjectPath(path, "starting_time"), spec.startingTime,
			core.NewFloat64Attribute("rate", spec.rate),
			core.NewStringAttribute("unit", "seconds"),
		)
		if err != nil {
			return err
		}
	} else {
		arr, err := NewArray(spec.timestamps)
		if err != nil {
			return err
		}
		err = w.stageDatasetAt(joinObjectPath(path, "timestamps"), arr,
			core.NewStringAttribute("unit", "seconds"),
			core.NewInt64Attribute("interval", 1),
		)
		if err != nil {
			return err
		}
	}

	if spec.hasElectrodes {
		//nolint:gosec // G115: electrode counts are far below int64 range
		indices := make([]int64, len(spec.electrodes))
		for i, idx := range spec.electrodes {
			indices[i] = int64(idx)
		}
		arr, err := NewArray(indices)
		if err != nil {
			return err
		}
		err = w.stageDatasetAt(joinObjectPath(path, "electrodes"), arr,
			core.NewStringAttribute("table", electrodesPath),
			core.NewStringAttribute("description", "electrode table rows of the series channels"),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// checkElectrodeRefs validates channel references against the pending
// electrode table.
func (w *SessionWriter) checkElectrodeRefs(indices []uint64) error {
	tw := w.tableByPath(electrodesPath)
	if tw == nil {
		return errors.New("no electrode table; add electrodes first")
	}
	for _, idx := range indices {
		if idx >= tw.Len() {
			return fmt.Errorf("electrode reference %d exceeds %d table rows", idx, tw.Len())
		}
	}
	return nil
}

// Series is a read handle to a stored series. Samples stay on disk
// until materialized through Data.
type Series struct {
	sess         *Session
	path         string
	name         string
	data         *Dataset
	description  string
	unit         string
	conversion   float64
	hasRate      bool
	startingTime float64
	rate         float64
	timestamps   *Dataset
	electrodes   *TableRegion
}

func (s *Session) openSeries(path string) (*Series, error) {
	if _, err := s.header(path); err != nil {
		return nil, err
	}

	data, err := s.Dataset(joinObjectPath(path, "data"))
	if err != nil {
		return nil, fmt.Errorf("series %q has no data dataset: %w", path, err)
	}

	sr := &Series{
		sess:       s,
		path:       path,
		name:       path[strings.LastIndex(path, "/")+1:],
		data:       data,
		unit:       "volts",
		conversion: 1.0,
	}

	if err := readStringAttr(data, "unit", &sr.unit); err != nil {
		return nil, fmt.Errorf("series %q: %w", path, err)
	}
	if err := readFloatAttr(data, "conversion", &sr.conversion); err != nil {
		return nil, fmt.Errorf("series %q: %w", path, err)
	}
	if desc, err := s.Attr(path, "description"); err == nil {
		if str, ok := desc.(string); ok {
			sr.description = str
		}
	}

	switch {
	case s.Exists(joinObjectPath(path, "starting_time")):
		if err := sr.readTimeBase(); err != nil {
			return nil, fmt.Errorf("series %q: %w", path, err)
		}
	case s.Exists(joinObjectPath(path, "timestamps")):
		ts, err := s.Dataset(joinObjectPath(path, "timestamps"))
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", path, err)
		}
		sr.timestamps = ts
	default:
		return nil, fmt.Errorf("series %q has neither starting_time nor timestamps", path)
	}

	if s.Exists(joinObjectPath(path, "electrodes")) {
		ds, err := s.Dataset(joinObjectPath(path, "electrodes"))
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", path, err)
		}
		region, err := regionFromDataset(ds)
		if err != nil {
			return nil, fmt.Errorf("series %q: %w", path, err)
		}
		sr.electrodes = region
	}
	return sr, nil
}

func (sr *Series) readTimeBase() error {
	st, err := sr.sess.Dataset(joinObjectPath(sr.path, "starting_time"))
	if err != nil {
		return err
	}
	arr, err := st.Materialize()
	if err != nil {
		return err
	}
	values, err := arr.Float64s()
	if err != nil || len(values) == 0 {
		return fmt.Errorf("malformed starting_time: %w", err)
	}

	rate, err := st.Attr("rate")
	if err != nil {
		return fmt.Errorf("starting_time has no rate: %w", err)
	}
	rateValue, ok := rate.(float64)
	if !ok {
		return fmt.Errorf("rate is %T, want float64", rate)
	}
	if rateValue <= 0 {
		return fmt.Errorf("rate must be positive, got %g", rateValue)
	}

	sr.hasRate = true
	sr.startingTime = values[0]
	sr.rate = rateValue
	return nil
}

func readStringAttr(d *Dataset, name string, out *string) error {
	value, err := d.Attr(name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("attribute %q is %T, want string", name, value)
	}
	*out = str
	return nil
}

func readFloatAttr(d *Dataset, name string, out *float64) error {
	value, err := d.Attr(name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	f, ok := value.(float64)
	if !ok {
		return fmt.Errorf("attribute %q is %T, want float64", name, value)
	}
	*out = f
	return nil
}

// Name returns the series name, the last path component.
func (sr *Series) Name() string { return sr.name }

// Path returns the series location in the file.
func (sr *Series) Path() string { return sr.path }

// Description returns the series description.
func (sr *Series) Description() string { return sr.description }

// Unit returns the unit stored samples are scaled to by Conversion.
func (sr *Series) Unit() string { return sr.unit }

// Conversion returns the factor scaling stored samples to the unit.
func (sr *Series) Conversion() float64 { return sr.conversion }

// Data returns the lazy handle to the sample block.
func (sr *Series) Data() *Dataset { return sr.data }

// SampleCount returns the number of sample rows.
func (sr *Series) SampleCount() uint64 { return sr.data.Len() }

// ChannelCount returns the number of channels.
func (sr *Series) ChannelCount() uint64 {
	shape := sr.data.Shape()
	if len(shape) == 2 {
		return shape[1]
	}
	return 1
}

// Rate returns the sampling rate and whether the series has a regular
// time base.
func (sr *Series) Rate() (float64, bool) {
	return sr.rate, sr.hasRate
}

// StartingTime returns the time of sample 0 and whether the series has
// a regular time base.
func (sr *Series) StartingTime() (float64, bool) {
	return sr.startingTime, sr.hasRate
}

// Electrodes returns the electrode table reference of the series, or
// nil when it has none.
func (sr *Series) Electrodes() *TableRegion {
	if sr.electrodes == nil {
		return nil
	}
	region := NewRegion(sr.electrodes.TablePath, sr.electrodes.Indices)
	return &region
}

// TimeAt returns the time of sample k in seconds. For a regular time
// base it is computed; otherwise the single timestamp is read from
// disk.
func (sr *Series) TimeAt(k uint64) (float64, error) {
	if k >= sr.SampleCount() {
		return 0, fmt.Errorf("sample %d exceeds count %d: %w", k, sr.SampleCount(), ErrOutOfBounds)
	}
	if sr.hasRate {
		return sr.startingTime + float64(k)/sr.rate, nil
	}

	arr, err := sr.timestamps.MaterializeSlice([]uint64{k}, []uint64{1})
	if err != nil {
		return 0, err
	}
	values, err := arr.Float64s()
	if err != nil {
		return 0, err
	}
	return values[0], nil
}

// Timestamps returns the full time vector in seconds. For a regular
// time base it is synthesized from the starting time and rate.
func (sr *Series) Timestamps() ([]float64, error) {
	if sr.hasRate {
		out := make([]float64, sr.SampleCount())
		for k := range out {
			out[k] = sr.startingTime + float64(k)/sr.rate
		}
		return out, nil
	}

	arr, err := sr.timestamps.Materialize()
	if err != nil {
		return nil, err
	}
	return arr.Float64s()
}

// timeBase returns the starting time and rate used for sample-index
// arithmetic. Irregular series get an effective rate fitted over the
// full timestamp span.
func (sr *Series) timeBase() (start, rate float64, err error) {
	if sr.hasRate {
		return sr.startingTime, sr.rate, nil
	}

	ts, err := sr.Timestamps()
	if err != nil {
		return 0, 0, err
	}
	if len(ts) < 2 {
		return 0, 0, fmt.Errorf("series %q needs at least 2 timestamps for a time base", sr.path)
	}
	span := ts[len(ts)-1] - ts[0]
	if span <= 0 {
		return 0, 0, fmt.Errorf("series %q timestamps do not advance", sr.path)
	}
	return ts[0], float64(len(ts)-1) / span, nil
}
