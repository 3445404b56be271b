package core

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Data layout classes.
const (
	LayoutCompact    uint8 = 0
	LayoutContiguous uint8 = 1
	LayoutChunked    uint8 = 2
)

// DataLayoutMessage is a parsed version 3 data layout message. It
// locates a dataset's raw values: inline for compact layout, at a file
// address for contiguous layout.
type DataLayoutMessage struct {
	Version     uint8
	Class       uint8
	Address     uint64
	Size        uint64
	CompactData []byte
}

// ParseDataLayoutMessage parses a data layout message from header
// message data. Chunked layout is outside the store's subset and is
// rejected.
func ParseDataLayoutMessage(data []byte) (*DataLayoutMessage, error) {
	if len(data) < 2 {
		return nil, errors.New("data layout message too short")
	}

	dl := &DataLayoutMessage{
		Version: data[0],
		Class:   data[1],
	}
	if dl.Version != 3 {
		return nil, fmt.Errorf("unsupported data layout version: %d", dl.Version)
	}

	switch dl.Class {
	case LayoutCompact:
		if len(data) < 4 {
			return nil, errors.New("compact layout message too short")
		}
		size := binary.LittleEndian.Uint16(data[2:4])
		if len(data) < 4+int(size) {
			return nil, errors.New("compact layout message truncated")
		}
		dl.Size = uint64(size)
		dl.CompactData = data[4 : 4+int(size)]
		return dl, nil

	case LayoutContiguous:
		if len(data) < 18 {
			return nil, errors.New("contiguous layout message too short")
		}
		dl.Address = binary.LittleEndian.Uint64(data[2:10])
		dl.Size = binary.LittleEndian.Uint64(data[10:18])
		return dl, nil

	case LayoutChunked:
		return nil, errors.New("chunked layout not supported")

	default:
		return nil, fmt.Errorf("unsupported data layout class: %d", dl.Class)
	}
}

// EncodeContiguousLayout encodes a version 3 contiguous data layout
// message pointing at size bytes of raw data at address.
func EncodeContiguousLayout(address, size uint64) []byte {
	buf := make([]byte, 18)
	buf[0] = 3
	buf[1] = LayoutContiguous
	binary.LittleEndian.PutUint64(buf[2:10], address)
	binary.LittleEndian.PutUint64(buf[10:18], size)
	return buf
}
