package ecephys

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/scigolib/ecephys/internal/core"
	"github.com/scigolib/ecephys/internal/utils"
)

// Dataset is a lazy handle to one stored array. Opening it reads only
// header metadata; the shape, element kind and attributes are cached
// and immutable for the life of the handle. Values are read on demand
// through Materialize and MaterializeSlice.
type Dataset struct {
	sess   *Session
	path   string
	dtype  string
	elem   uint64
	shape  []uint64
	layout *core.DataLayoutMessage
	attrs  []*core.Attribute
}

func newDataset(sess *Session, path string, header *core.ObjectHeader) (*Dataset, error) {
	dtMsg := header.FindMessage(core.MsgDatatype)
	dsMsg := header.FindMessage(core.MsgDataspace)
	layoutMsg := header.FindMessage(core.MsgDataLayout)
	if dtMsg == nil || dsMsg == nil || layoutMsg == nil {
		return nil, fmt.Errorf("dataset %q: object header is missing dataset messages", path)
	}

	dt, err := core.ParseDatatypeMessage(dtMsg.Data)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", path, err)
	}
	dtype, err := dt.DtypeName()
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", path, err)
	}

	ds, err := core.ParseDataspaceMessage(dsMsg.Data)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", path, err)
	}

	layout, err := core.ParseDataLayoutMessage(layoutMsg.Data)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", path, err)
	}

	var shape []uint64
	if !ds.IsScalar() {
		shape = make([]uint64, len(ds.Dimensions))
		copy(shape, ds.Dimensions)
	}

	return &Dataset{
		sess:   sess,
		path:   path,
		dtype:  dtype,
		elem:   uint64(dt.Size),
		shape:  shape,
		layout: layout,
		attrs:  header.Attributes,
	}, nil
}

// Path returns the dataset's absolute path within the session.
func (d *Dataset) Path() string { return d.path }

// Dtype returns the element kind: "float64", "float32", "int64",
// "int32", "int16", "int8", unsigned variants, or "string".
func (d *Dataset) Dtype() string { return d.dtype }

// Rank returns the number of dimensions. Scalars have rank 0.
func (d *Dataset) Rank() int { return len(d.shape) }

// Shape returns a copy of the dimensions. No value I/O happens.
func (d *Dataset) Shape() []uint64 {
	shape := make([]uint64, len(d.shape))
	copy(shape, d.shape)
	return shape
}

// Len returns the extent of the first dimension, or 1 for scalars.
func (d *Dataset) Len() uint64 {
	if len(d.shape) == 0 {
		return 1
	}
	return d.shape[0]
}

// NumElements returns the total element count.
func (d *Dataset) NumElements() uint64 {
	if len(d.shape) == 0 {
		return 1
	}
	count, err := utils.ElementCount(d.shape)
	if err != nil {
		return 0
	}
	return count
}

// Attr returns a decoded attribute value. ErrNotFound when absent.
func (d *Dataset) Attr(name string) (any, error) {
	for _, attr := range d.attrs {
		if attr.Name == name {
			return attr.ReadValue()
		}
	}
	return nil, fmt.Errorf("dataset %q attribute %q: %w", d.path, name, ErrNotFound)
}

// AttrNames returns the attribute names in stored order.
func (d *Dataset) AttrNames() []string {
	names := make([]string, len(d.attrs))
	for i, attr := range d.attrs {
		names[i] = attr.Name
	}
	return names
}

// Materialize reads the full extent into memory.
func (d *Dataset) Materialize() (*Array, error) {
	count := d.NumElements()
	raw, err := d.readRange(0, count*d.elem)
	if err != nil {
		return nil, err
	}

	values, err := decodeValues(d.dtype, d.elem, raw, count)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", d.path, err)
	}
	return &Array{dtype: d.dtype, shape: d.Shape(), values: values}, nil
}

// MaterializeSlice reads the rectangular block starting at start with
// extent count, one pair per dimension: rows [start_i, start_i+count_i)
// along each axis. The block must lie fully inside the dataset and
// counts must be positive; violations return ErrOutOfBounds before any
// value I/O.
func (d *Dataset) MaterializeSlice(start, count []uint64) (*Array, error) {
	rank := len(d.shape)
	if len(start) != rank || len(count) != rank {
		return nil, fmt.Errorf("dataset %q: block rank %d/%d does not match shape rank %d: %w",
			d.path, len(start), len(count), rank, ErrOutOfBounds)
	}
	if rank == 0 {
		return d.Materialize()
	}

	for i := 0; i < rank; i++ {
		if count[i] == 0 {
			return nil, fmt.Errorf("dataset %q: zero count in dimension %d: %w", d.path, i, ErrOutOfBounds)
		}
		if start[i] > d.shape[i] || count[i] > d.shape[i]-start[i] {
			return nil, fmt.Errorf("dataset %q: block [%d, %d) exceeds extent %d in dimension %d: %w",
				d.path, start[i], start[i]+count[i], d.shape[i], i, ErrOutOfBounds)
		}
	}

	total, err := utils.ElementCount(count)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", d.path, err)
	}

	// Element strides for row-major storage: last dimension fastest.
	strides := make([]uint64, rank)
	strides[rank-1] = 1
	for i := rank - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * d.shape[i+1]
	}

	// Each inner run is count[rank-1] contiguous elements. The odometer
	// walks the outer dimensions of the block.
	runElems := count[rank-1]
	raw := make([]byte, 0, total*d.elem)
	odometer := make([]uint64, rank-1)

	for {
		offset := start[rank-1]
		for i := 0; i < rank-1; i++ {
			offset += (start[i] + odometer[i]) * strides[i]
		}

		run, err := d.readRange(offset*d.elem, runElems*d.elem)
		if err != nil {
			return nil, err
		}
		raw = append(raw, run...)

		// Advance, rightmost outer dimension first.
		i := rank - 2
		for ; i >= 0; i-- {
			odometer[i]++
			if odometer[i] < count[i] {
				break
			}
			odometer[i] = 0
		}
		if i < 0 {
			break
		}
	}

	values, err := decodeValues(d.dtype, d.elem, raw, total)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", d.path, err)
	}

	shape := make([]uint64, rank)
	copy(shape, count)
	return &Array{dtype: d.dtype, shape: shape, values: values}, nil
}

// readRange fetches length raw bytes starting at a byte offset within
// the dataset's stored values.
func (d *Dataset) readRange(offset, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if offset+length > d.layout.Size {
		return nil, fmt.Errorf("dataset %q: range [%d, %d) exceeds stored size %d: %w",
			d.path, offset, offset+length, d.layout.Size, ErrOutOfBounds)
	}

	if d.layout.Class == core.LayoutCompact {
		out := make([]byte, length)
		copy(out, d.layout.CompactData[offset:offset+length])
		return out, nil
	}

	buf := make([]byte, length)
	if err := d.sess.readAt(buf, d.layout.Address+offset); err != nil {
		return nil, ioError(fmt.Sprintf("read dataset %q", d.path), err)
	}
	return buf, nil
}

// Array holds materialized values together with the block shape they
// were read as.
type Array struct {
	dtype  string
	shape  []uint64
	values any
}

// NewArray wraps a typed slice with a shape, for handing values to a
// SessionWriter. values may be []float64, []float32, []int64, []int32,
// []int16, []int8, []bool or []string; bools are normalized to int8,
// the kind they are stored as. The element count must equal the
// product of the extents; with no extents the values are taken as 1-D.
func NewArray(values any, shape ...uint64) (*Array, error) {
	if v, ok := values.([]bool); ok {
		conv := make([]int8, len(v))
		for i, x := range v {
			if x {
				conv[i] = 1
			}
		}
		values = conv
	}

	dtype, n, err := valuesKind(values)
	if err != nil {
		return nil, err
	}

	if len(shape) == 0 {
		shape = []uint64{uint64(n)}
	}
	count, err := utils.ElementCount(shape)
	if err != nil {
		return nil, err
	}
	if count != uint64(n) {
		return nil, fmt.Errorf("shape %v holds %d elements, values hold %d", shape, count, n)
	}

	dims := make([]uint64, len(shape))
	copy(dims, shape)
	return &Array{dtype: dtype, shape: dims, values: values}, nil
}

func valuesKind(values any) (string, int, error) {
	switch v := values.(type) {
	case []float64:
		return "float64", len(v), nil
	case []float32:
		return "float32", len(v), nil
	case []int64:
		return "int64", len(v), nil
	case []int32:
		return "int32", len(v), nil
	case []int16:
		return "int16", len(v), nil
	case []int8:
		return "int8", len(v), nil
	case []string:
		return "string", len(v), nil
	default:
		return "", 0, fmt.Errorf("unsupported value type %T", values)
	}
}

// Dtype returns the element kind.
func (a *Array) Dtype() string { return a.dtype }

// Shape returns a copy of the block shape.
func (a *Array) Shape() []uint64 {
	shape := make([]uint64, len(a.shape))
	copy(shape, a.shape)
	return shape
}

// NumElements returns the element count.
func (a *Array) NumElements() uint64 {
	if len(a.shape) == 0 {
		return 1
	}
	count, err := utils.ElementCount(a.shape)
	if err != nil {
		return 0
	}
	return count
}

// Value returns the underlying typed slice.
func (a *Array) Value() any { return a.values }

// Float64s returns the values widened to float64. Works for every
// numeric element kind; strings are rejected.
func (a *Array) Float64s() ([]float64, error) {
	switch v := a.values.(type) {
	case []float64:
		out := make([]float64, len(v))
		copy(out, v)
		return out, nil
	case []float32:
		return widenToFloat64(v), nil
	case []int64:
		return widenToFloat64(v), nil
	case []int32:
		return widenToFloat64(v), nil
	case []int16:
		return widenToFloat64(v), nil
	case []int8:
		return widenToFloat64(v), nil
	case []uint64:
		return widenToFloat64(v), nil
	case []uint32:
		return widenToFloat64(v), nil
	case []uint16:
		return widenToFloat64(v), nil
	case []uint8:
		return widenToFloat64(v), nil
	default:
		return nil, fmt.Errorf("cannot convert %s values to float64", a.dtype)
	}
}

func widenToFloat64[T int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32](v []T) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Int64s returns the values widened to int64. Integer kinds only.
func (a *Array) Int64s() ([]int64, error) {
	switch v := a.values.(type) {
	case []int64:
		out := make([]int64, len(v))
		copy(out, v)
		return out, nil
	case []int32:
		return widenToInt64(v), nil
	case []int16:
		return widenToInt64(v), nil
	case []int8:
		return widenToInt64(v), nil
	case []uint32:
		return widenToInt64(v), nil
	case []uint16:
		return widenToInt64(v), nil
	case []uint8:
		return widenToInt64(v), nil
	default:
		return nil, fmt.Errorf("cannot convert %s values to int64", a.dtype)
	}
}

func widenToInt64[T int8 | int16 | int32 | uint8 | uint16 | uint32](v []T) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

// Strings returns string values. String element kind only.
func (a *Array) Strings() ([]string, error) {
	v, ok := a.values.([]string)
	if !ok {
		return nil, fmt.Errorf("cannot convert %s values to string", a.dtype)
	}
	out := make([]string, len(v))
	copy(out, v)
	return out, nil
}

// Bools interprets int8 values as booleans (zero is false).
func (a *Array) Bools() ([]bool, error) {
	v, ok := a.values.([]int8)
	if !ok {
		return nil, fmt.Errorf("cannot convert %s values to bool", a.dtype)
	}
	out := make([]bool, len(v))
	for i, x := range v {
		out[i] = x != 0
	}
	return out, nil
}

// At returns the element at the given row-major indices.
func (a *Array) At(indices ...uint64) (any, error) {
	if len(indices) != len(a.shape) {
		return nil, fmt.Errorf("index rank %d does not match shape rank %d: %w",
			len(indices), len(a.shape), ErrOutOfBounds)
	}

	var linear uint64
	for i, idx := range indices {
		if idx >= a.shape[i] {
			return nil, fmt.Errorf("index %d exceeds extent %d in dimension %d: %w",
				idx, a.shape[i], i, ErrOutOfBounds)
		}
		linear = linear*a.shape[i] + idx
	}

	switch v := a.values.(type) {
	case []float64:
		return v[linear], nil
	case []float32:
		return v[linear], nil
	case []int64:
		return v[linear], nil
	case []int32:
		return v[linear], nil
	case []int16:
		return v[linear], nil
	case []int8:
		return v[linear], nil
	case []uint64:
		return v[linear], nil
	case []uint32:
		return v[linear], nil
	case []uint16:
		return v[linear], nil
	case []uint8:
		return v[linear], nil
	case []string:
		return v[linear], nil
	default:
		return nil, fmt.Errorf("unsupported element kind %s", a.dtype)
	}
}

// decodeValues turns little-endian raw bytes into a typed slice.
func decodeValues(dtype string, elem uint64, raw []byte, count uint64) (any, error) {
	if uint64(len(raw)) < count*elem {
		return nil, fmt.Errorf("short value read: have %d bytes, need %d", len(raw), count*elem)
	}

	switch dtype {
	case "float64":
		out := make([]float64, count)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, nil
	case "float32":
		out := make([]float32, count)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case "int64":
		out := make([]int64, count)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(raw[i*8:]))
		}
		return out, nil
	case "int32":
		out := make([]int32, count)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case "int16":
		out := make([]int16, count)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		return out, nil
	case "int8":
		out := make([]int8, count)
		for i := range out {
			out[i] = int8(raw[i])
		}
		return out, nil
	case "uint64":
		out := make([]uint64, count)
		for i := range out {
			out[i] = binary.LittleEndian.Uint64(raw[i*8:])
		}
		return out, nil
	case "uint32":
		out := make([]uint32, count)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(raw[i*4:])
		}
		return out, nil
	case "uint16":
		out := make([]uint16, count)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(raw[i*2:])
		}
		return out, nil
	case "uint8":
		out := make([]uint8, count)
		copy(out, raw[:count])
		return out, nil
	case "string":
		out := make([]string, count)
		for i := uint64(0); i < count; i++ {
			out[i] = core.TrimNulls(raw[i*elem : (i+1)*elem])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported element kind %s", dtype)
	}
}

// encodeValues turns a typed slice into little-endian raw bytes,
// returning the bytes, the element kind and the element size. Booleans
// are stored as int8.
func encodeValues(values any) ([]byte, string, uint64, error) {
	switch v := values.(type) {
	case []float64:
		buf := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
		}
		return buf, "float64", 8, nil
	case []float32:
		buf := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
		}
		return buf, "float32", 4, nil
	case []int64:
		buf := make([]byte, 8*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(x))
		}
		return buf, "int64", 8, nil
	case []int32:
		buf := make([]byte, 4*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(x))
		}
		return buf, "int32", 4, nil
	case []int16:
		buf := make([]byte, 2*len(v))
		for i, x := range v {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(x))
		}
		return buf, "int16", 2, nil
	case []int8:
		buf := make([]byte, len(v))
		for i, x := range v {
			buf[i] = byte(x)
		}
		return buf, "int8", 1, nil
	case []bool:
		buf := make([]byte, len(v))
		for i, x := range v {
			if x {
				buf[i] = 1
			}
		}
		return buf, "int8", 1, nil
	case []string:
		width := 1
		for _, s := range v {
			if len(s) > width {
				width = len(s)
			}
		}
		buf := make([]byte, width*len(v))
		for i, s := range v {
			copy(buf[i*width:(i+1)*width], s)
		}
		return buf, "string", uint64(width), nil
	default:
		return nil, "", 0, fmt.Errorf("unsupported value type %T", values)
	}
}
