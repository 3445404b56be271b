package core

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DatatypeClass represents an HDF5 datatype class.
type DatatypeClass uint8

// Datatype class constants from the HDF5 format specification. The
// session store only writes Fixed, Float and String, but the parser
// names the rest so unsupported files fail with a useful error.
const (
	DatatypeFixed     DatatypeClass = 0
	DatatypeFloat     DatatypeClass = 1
	DatatypeTime      DatatypeClass = 2
	DatatypeString    DatatypeClass = 3
	DatatypeBitfield  DatatypeClass = 4
	DatatypeOpaque    DatatypeClass = 5
	DatatypeCompound  DatatypeClass = 6
	DatatypeReference DatatypeClass = 7
	DatatypeEnum      DatatypeClass = 8
	DatatypeVarLen    DatatypeClass = 9
	DatatypeArray     DatatypeClass = 10
)

// String padding modes for the string datatype class.
const (
	StringPadNullTerm uint8 = 0
	StringPadNullPad  uint8 = 1
	StringPadSpacePad uint8 = 2
)

// Class bit field values used by the encoders.
const (
	stringCharsetUTF8 uint32 = 1
	fixedBitSigned    uint32 = 0x08
	floatBitfield64   uint32 = 0x3F20 // LE, implied msb normalization, sign bit 63
	floatBitfield32   uint32 = 0x1F20 // LE, implied msb normalization, sign bit 31
)

// DatatypeMessage is a parsed datatype message.
type DatatypeMessage struct {
	Class         DatatypeClass
	Version       uint8
	Size          uint32
	ClassBitField uint32
	Properties    []byte
}

// ParseDatatypeMessage parses a datatype message from header message data.
func ParseDatatypeMessage(data []byte) (*DatatypeMessage, error) {
	if len(data) < 8 {
		return nil, errors.New("datatype message too short")
	}

	// Bytes 0-3 pack class (low nibble), version (next nibble) and the
	// 24-bit class bit field.
	classAndVersion := binary.LittleEndian.Uint32(data[0:4])

	return &DatatypeMessage{
		Class:         DatatypeClass(classAndVersion & 0x0F),
		Version:       uint8((classAndVersion >> 4) & 0x0F),
		ClassBitField: (classAndVersion >> 8) & 0x00FFFFFF,
		Size:          binary.LittleEndian.Uint32(data[4:8]),
		Properties:    data[8:],
	}, nil
}

// Signed reports whether a fixed-point datatype is two's complement
// signed.
func (dt *DatatypeMessage) Signed() bool {
	return dt.Class == DatatypeFixed && dt.ClassBitField&fixedBitSigned != 0
}

// LittleEndian reports whether the element byte order is little-endian.
func (dt *DatatypeMessage) LittleEndian() bool {
	return dt.ClassBitField&0x01 == 0
}

// GetStringPadding returns the string padding mode for string datatypes.
func (dt *DatatypeMessage) GetStringPadding() uint8 {
	return uint8(dt.ClassBitField & 0x0F)
}

// DtypeName maps the datatype onto one of the element kinds the session
// store handles. Classes outside the store's subset return an error.
func (dt *DatatypeMessage) DtypeName() (string, error) {
	switch dt.Class {
	case DatatypeFloat:
		switch dt.Size {
		case 8:
			return "float64", nil
		case 4:
			return "float32", nil
		}
		return "", fmt.Errorf("unsupported float size: %d", dt.Size)

	case DatatypeFixed:
		prefix := "uint"
		if dt.Signed() {
			prefix = "int"
		}
		switch dt.Size {
		case 1, 2, 4, 8:
			return fmt.Sprintf("%s%d", prefix, dt.Size*8), nil
		}
		return "", fmt.Errorf("unsupported fixed-point size: %d", dt.Size)

	case DatatypeString:
		if dt.Size == 0 {
			return "", errors.New("variable-length strings not supported")
		}
		return "string", nil

	default:
		return "", fmt.Errorf("unsupported datatype class: %d", dt.Class)
	}
}

// encodeDatatypeHeader packs the common 8-byte datatype message prefix.
func encodeDatatypeHeader(class DatatypeClass, bitfield uint32, size uint32) []byte {
	buf := make([]byte, 8)
	packed := uint32(class) | uint32(1)<<4 | (bitfield&0x00FFFFFF)<<8
	binary.LittleEndian.PutUint32(buf[0:4], packed)
	binary.LittleEndian.PutUint32(buf[4:8], size)
	return buf
}

// EncodeFixedDatatype encodes a little-endian fixed-point datatype
// message of the given byte size.
//
// Properties: bit offset (2 bytes, 0) and bit precision (2 bytes,
// 8*size).
func EncodeFixedDatatype(size uint32, signed bool) []byte {
	var bitfield uint32
	if signed {
		bitfield = fixedBitSigned
	}

	buf := encodeDatatypeHeader(DatatypeFixed, bitfield, size)
	props := make([]byte, 4)
	binary.LittleEndian.PutUint16(props[2:4], uint16(size*8))
	return append(buf, props...)
}

// EncodeFloatDatatype encodes an IEEE 754 little-endian floating-point
// datatype message. Size must be 4 or 8.
//
// Properties: bit offset, bit precision, exponent location/size,
// mantissa location/size, exponent bias.
func EncodeFloatDatatype(size uint32) ([]byte, error) {
	var (
		bitfield uint32
		expLoc   uint8
		expSize  uint8
		mantSize uint8
		bias     uint32
	)
	switch size {
	case 8:
		bitfield, expLoc, expSize, mantSize, bias = floatBitfield64, 52, 11, 52, 1023
	case 4:
		bitfield, expLoc, expSize, mantSize, bias = floatBitfield32, 23, 8, 23, 127
	default:
		return nil, fmt.Errorf("unsupported float size: %d", size)
	}

	buf := encodeDatatypeHeader(DatatypeFloat, bitfield, size)
	props := make([]byte, 12)
	binary.LittleEndian.PutUint16(props[2:4], uint16(size*8)) // Bit precision
	props[4] = expLoc
	props[5] = expSize
	props[6] = 0 // Mantissa location
	props[7] = mantSize
	binary.LittleEndian.PutUint32(props[8:12], bias)
	return append(buf, props...), nil
}

// EncodeStringDatatype encodes a fixed-length UTF-8 string datatype
// message. Values shorter than size are null-padded.
func EncodeStringDatatype(size uint32) []byte {
	bitfield := uint32(StringPadNullPad) | stringCharsetUTF8<<4
	return encodeDatatypeHeader(DatatypeString, bitfield, size)
}
