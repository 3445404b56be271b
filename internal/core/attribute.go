package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/scigolib/ecephys/internal/utils"
)

// Attribute is a parsed attribute message: a small named value attached
// to an object header.
type Attribute struct {
	Name      string
	Datatype  *DatatypeMessage
	Dataspace *DataspaceMessage
	Data      []byte
}

// ParseAttributeMessage parses an attribute message (type 0x000C).
//
// Format:
//   - Version (1 byte)
//   - Flags (1 byte, version 2+; reserved in version 1)
//   - Name size (2 bytes, includes null terminator)
//   - Datatype size (2 bytes)
//   - Dataspace size (2 bytes)
//   - Name encoding (1 byte, version 3 only)
//   - Name, datatype, dataspace, value
//
// Version 1 pads name, datatype and dataspace to 8-byte multiples;
// versions 2 and 3 pack them tightly.
func ParseAttributeMessage(data []byte) (*Attribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("attribute message too short: %d bytes", len(data))
	}

	version := data[0]
	flags := data[1]
	nameSize := int(binary.LittleEndian.Uint16(data[2:4]))
	datatypeSize := int(binary.LittleEndian.Uint16(data[4:6]))
	dataspaceSize := int(binary.LittleEndian.Uint16(data[6:8]))
	offset := 8

	switch version {
	case 1:
		// Flags byte is reserved in version 1.
	case 2, 3:
		if flags&0x03 != 0 {
			return nil, errors.New("shared attribute datatypes not supported")
		}
		if version == 3 {
			offset++ // Name encoding byte
		}
	default:
		return nil, fmt.Errorf("unsupported attribute message version: %d", version)
	}

	// Version 1 pads each of the three variable parts to 8 bytes.
	padded := func(size int) int {
		if version == 1 && size%8 != 0 {
			return size + 8 - size%8
		}
		return size
	}

	attr := &Attribute{}

	if offset+nameSize > len(data) {
		return nil, fmt.Errorf("attribute name extends beyond message (offset=%d, size=%d, len=%d)",
			offset, nameSize, len(data))
	}
	if nameSize > 0 {
		// Name is null-terminated.
		attr.Name = string(data[offset : offset+nameSize-1])
	}
	offset += padded(nameSize)

	if offset+datatypeSize > len(data) {
		return nil, errors.New("attribute datatype extends beyond message")
	}
	dt, err := ParseDatatypeMessage(data[offset : offset+datatypeSize])
	if err != nil {
		return nil, utils.WrapError("attribute datatype parse failed", err)
	}
	attr.Datatype = dt
	offset += padded(datatypeSize)

	if offset+dataspaceSize > len(data) {
		return nil, errors.New("attribute dataspace extends beyond message")
	}
	ds, err := ParseDataspaceMessage(data[offset : offset+dataspaceSize])
	if err != nil {
		return nil, utils.WrapError("attribute dataspace parse failed", err)
	}
	attr.Dataspace = ds
	offset += padded(dataspaceSize)

	if offset < len(data) {
		attr.Data = make([]byte, len(data)-offset)
		copy(attr.Data, data[offset:])
	}

	return attr, nil
}

// EncodeAttributeMessage encodes an attribute as a version 3 message.
func EncodeAttributeMessage(attr *Attribute) ([]byte, error) {
	if attr == nil {
		return nil, errors.New("attribute is nil")
	}
	if attr.Datatype == nil || attr.Dataspace == nil {
		return nil, errors.New("attribute missing datatype or dataspace")
	}

	dtBytes, err := encodeDatatypeMessage(attr.Datatype)
	if err != nil {
		return nil, utils.WrapError("attribute datatype encode failed", err)
	}
	dsBytes, err := encodeDataspaceFromMessage(attr.Dataspace)
	if err != nil {
		return nil, utils.WrapError("attribute dataspace encode failed", err)
	}

	nameSize := len(attr.Name) + 1 // Null terminator
	if nameSize > 0xFFFF || len(dtBytes) > 0xFFFF || len(dsBytes) > 0xFFFF {
		return nil, errors.New("attribute component exceeds 2-byte size encoding")
	}
	if len(attr.Data) > 0 {
		if err := utils.ValidateBufferSize(uint64(len(attr.Data)), utils.MaxAttributeSize, "attribute value"); err != nil {
			return nil, err
		}
	}

	total := 9 + nameSize + len(dtBytes) + len(dsBytes) + len(attr.Data)
	buf := make([]byte, 0, total)

	header := make([]byte, 9)
	header[0] = 3 // Version
	header[1] = 0 // Flags
	binary.LittleEndian.PutUint16(header[2:4], uint16(nameSize))
	binary.LittleEndian.PutUint16(header[4:6], uint16(len(dtBytes)))
	binary.LittleEndian.PutUint16(header[6:8], uint16(len(dsBytes)))
	header[8] = 0 // Name encoding: ASCII

	buf = append(buf, header...)
	buf = append(buf, attr.Name...)
	buf = append(buf, 0)
	buf = append(buf, dtBytes...)
	buf = append(buf, dsBytes...)
	buf = append(buf, attr.Data...)

	return buf, nil
}

// encodeDatatypeMessage re-encodes a datatype message for embedding in
// an attribute. Only the store's own element kinds round-trip.
func encodeDatatypeMessage(dt *DatatypeMessage) ([]byte, error) {
	switch dt.Class {
	case DatatypeFixed:
		return EncodeFixedDatatype(dt.Size, dt.Signed()), nil
	case DatatypeFloat:
		return EncodeFloatDatatype(dt.Size)
	case DatatypeString:
		return EncodeStringDatatype(dt.Size), nil
	default:
		return nil, fmt.Errorf("unsupported datatype class for encoding: %d", dt.Class)
	}
}

// encodeDataspaceFromMessage re-encodes a dataspace message for
// embedding in an attribute.
func encodeDataspaceFromMessage(ds *DataspaceMessage) ([]byte, error) {
	if ds.IsScalar() {
		return EncodeScalarDataspace(), nil
	}
	return EncodeSimpleDataspace(ds.Dimensions)
}

// NewStringAttribute creates a scalar fixed-length string attribute.
func NewStringAttribute(name, value string) *Attribute {
	size := len(value)
	if size == 0 {
		size = 1 // Zero-size string datatypes are invalid
	}
	data := make([]byte, size)
	copy(data, value)

	return &Attribute{
		Name:      name,
		Datatype:  mustParseDatatype(EncodeStringDatatype(uint32(size))),
		Dataspace: mustParseDataspace(EncodeScalarDataspace()),
		Data:      data,
	}
}

// NewStringListAttribute creates a 1-D fixed-length string attribute.
// All elements share the width of the longest value, null-padded.
func NewStringListAttribute(name string, values []string) *Attribute {
	width := 1
	for _, v := range values {
		if len(v) > width {
			width = len(v)
		}
	}

	data := make([]byte, width*len(values))
	for i, v := range values {
		copy(data[i*width:(i+1)*width], v)
	}

	dims := []uint64{uint64(len(values))}
	dsBytes, _ := EncodeSimpleDataspace(dims)

	return &Attribute{
		Name:      name,
		Datatype:  mustParseDatatype(EncodeStringDatatype(uint32(width))),
		Dataspace: mustParseDataspace(dsBytes),
		Data:      data,
	}
}

// NewFloat64Attribute creates a scalar float64 attribute.
func NewFloat64Attribute(name string, value float64) *Attribute {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, math.Float64bits(value))

	dtBytes, _ := EncodeFloatDatatype(8)
	return &Attribute{
		Name:      name,
		Datatype:  mustParseDatatype(dtBytes),
		Dataspace: mustParseDataspace(EncodeScalarDataspace()),
		Data:      data,
	}
}

// NewInt64Attribute creates a scalar int64 attribute.
func NewInt64Attribute(name string, value int64) *Attribute {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, uint64(value))

	return &Attribute{
		Name:      name,
		Datatype:  mustParseDatatype(EncodeFixedDatatype(8, true)),
		Dataspace: mustParseDataspace(EncodeScalarDataspace()),
		Data:      data,
	}
}

func mustParseDatatype(encoded []byte) *DatatypeMessage {
	dt, err := ParseDatatypeMessage(encoded)
	if err != nil {
		panic(fmt.Sprintf("invalid generated datatype: %v", err))
	}
	return dt
}

func mustParseDataspace(encoded []byte) *DataspaceMessage {
	ds, err := ParseDataspaceMessage(encoded)
	if err != nil {
		panic(fmt.Sprintf("invalid generated dataspace: %v", err))
	}
	return ds
}

// ReadValue decodes the attribute value into a Go value: float64,
// int64, string, or a slice of those for 1-D attributes.
func (a *Attribute) ReadValue() (any, error) {
	if a.Datatype == nil || a.Dataspace == nil {
		return nil, errors.New("attribute missing datatype or dataspace")
	}

	count, err := a.Dataspace.NumElements()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	scalar := a.Dataspace.IsScalar()
	elemSize := uint64(a.Datatype.Size)
	if elemSize == 0 {
		return nil, errors.New("attribute datatype has zero size")
	}
	if uint64(len(a.Data)) < count*elemSize {
		return nil, fmt.Errorf("attribute value too short: have %d bytes, need %d", len(a.Data), count*elemSize)
	}

	switch a.Datatype.Class {
	case DatatypeFloat:
		values := make([]float64, count)
		for i := uint64(0); i < count; i++ {
			chunk := a.Data[i*elemSize : (i+1)*elemSize]
			switch elemSize {
			case 8:
				values[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
			case 4:
				values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
			default:
				return nil, fmt.Errorf("unsupported float size: %d", elemSize)
			}
		}
		if scalar {
			return values[0], nil
		}
		return values, nil

	case DatatypeFixed:
		values := make([]int64, count)
		for i := uint64(0); i < count; i++ {
			chunk := a.Data[i*elemSize : (i+1)*elemSize]
			switch elemSize {
			case 8:
				values[i] = int64(binary.LittleEndian.Uint64(chunk))
			case 4:
				values[i] = int64(int32(binary.LittleEndian.Uint32(chunk)))
			case 2:
				values[i] = int64(int16(binary.LittleEndian.Uint16(chunk)))
			case 1:
				values[i] = int64(int8(chunk[0]))
			default:
				return nil, fmt.Errorf("unsupported fixed-point size: %d", elemSize)
			}
		}
		if scalar {
			return values[0], nil
		}
		return values, nil

	case DatatypeString:
		values := make([]string, count)
		for i := uint64(0); i < count; i++ {
			values[i] = TrimNulls(a.Data[i*elemSize : (i+1)*elemSize])
		}
		if scalar {
			return values[0], nil
		}
		return values, nil

	default:
		return nil, fmt.Errorf("unsupported attribute datatype class: %d", a.Datatype.Class)
	}
}

// TrimNulls strips trailing null padding from a fixed-length string.
func TrimNulls(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
