package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/scigolib/ecephys/internal/utils"
)

// Dataspace type values for version 2 messages.
const (
	DataspaceScalar uint8 = 0
	DataspaceSimple uint8 = 1
	DataspaceNull   uint8 = 2
)

// DataspaceMessage is a parsed dataspace message: the rank and extent
// of a dataset or attribute value.
type DataspaceMessage struct {
	Version        uint8
	Dimensionality uint8
	Flags          uint8
	Type           uint8
	Dimensions     []uint64
	MaxDimensions  []uint64
}

// ParseDataspaceMessage parses a dataspace message from header message
// data. Versions 1 and 2 are accepted.
func ParseDataspaceMessage(data []byte) (*DataspaceMessage, error) {
	if len(data) < 2 {
		return nil, errors.New("dataspace message too short")
	}

	ds := &DataspaceMessage{
		Version:        data[0],
		Dimensionality: data[1],
	}

	var offset int
	switch ds.Version {
	case 1:
		// Version, dimensionality, flags, reserved (5 bytes).
		if len(data) < 8 {
			return nil, errors.New("dataspace message v1 too short")
		}
		ds.Flags = data[2]
		ds.Type = DataspaceSimple
		if ds.Dimensionality == 0 {
			ds.Type = DataspaceScalar
		}
		offset = 8
	case 2:
		// Version, dimensionality, flags, type.
		if len(data) < 4 {
			return nil, errors.New("dataspace message v2 too short")
		}
		ds.Flags = data[2]
		ds.Type = data[3]
		offset = 4
	default:
		return nil, fmt.Errorf("unsupported dataspace version: %d", ds.Version)
	}

	rank := int(ds.Dimensionality)
	if len(data) < offset+rank*8 {
		return nil, errors.New("dataspace message truncated (missing dimensions)")
	}
	ds.Dimensions = make([]uint64, rank)
	for i := 0; i < rank; i++ {
		ds.Dimensions[i] = binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8
	}

	// Max dimensions follow when flag bit 0 is set.
	if ds.Flags&0x01 != 0 {
		if len(data) < offset+rank*8 {
			return nil, errors.New("dataspace message truncated (missing max dimensions)")
		}
		ds.MaxDimensions = make([]uint64, rank)
		for i := 0; i < rank; i++ {
			ds.MaxDimensions[i] = binary.LittleEndian.Uint64(data[offset : offset+8])
			offset += 8
		}
	}

	return ds, nil
}

// IsScalar reports whether the dataspace holds a single element with no
// dimensions.
func (ds *DataspaceMessage) IsScalar() bool {
	return ds.Type == DataspaceScalar || ds.Dimensionality == 0
}

// NumElements returns the total element count across all dimensions.
// Scalar dataspaces count as one element.
func (ds *DataspaceMessage) NumElements() (uint64, error) {
	if ds.IsScalar() {
		return 1, nil
	}
	return utils.ElementCount(ds.Dimensions)
}

// EncodeScalarDataspace encodes a version 2 scalar dataspace message.
func EncodeScalarDataspace() []byte {
	return []byte{2, 0, 0, DataspaceScalar}
}

// EncodeSimpleDataspace encodes a version 2 simple dataspace message
// with the given dimensions. Max dimensions are omitted: extents are
// fixed at creation.
func EncodeSimpleDataspace(dims []uint64) ([]byte, error) {
	if len(dims) == 0 {
		return EncodeScalarDataspace(), nil
	}
	if len(dims) > 0xFF {
		return nil, fmt.Errorf("dataspace rank %d exceeds 1-byte encoding", len(dims))
	}

	buf := make([]byte, 4+8*len(dims))
	buf[0] = 2
	buf[1] = uint8(len(dims))
	buf[2] = 0
	buf[3] = DataspaceSimple
	for i, dim := range dims {
		binary.LittleEndian.PutUint64(buf[4+8*i:], dim)
	}
	return buf, nil
}
