package core

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// LinkType defines the type of link stored in a group.
type LinkType uint8

// Link type constants from the HDF5 format specification.
const (
	LinkTypeHard LinkType = 0
	LinkTypeSoft LinkType = 1
)

// String returns the string representation of the link type.
func (lt LinkType) String() string {
	switch lt {
	case LinkTypeHard:
		return "Hard"
	case LinkTypeSoft:
		return "Soft"
	default:
		return fmt.Sprintf("Unknown(%d)", lt)
	}
}

// Link message flags.
const (
	LinkFlagNameLengthMask   uint8 = 0x03 // Bits 0-1: width of the name length field
	LinkFlagCreationOrderBit uint8 = 0x04 // Bit 2: creation order field present
	LinkFlagLinkTypeFieldBit uint8 = 0x08 // Bit 3: link type field present
	LinkFlagCharSetBit       uint8 = 0x10 // Bit 4: character set field present
)

// LinkMessage is a version 1 link message: one named edge from a group
// to another object.
//
// For hard links LinkValue holds the 8-byte object header address. For
// soft links it holds the target path bytes without the length prefix;
// EncodeLinkMessage restores the prefix on write.
//
// Reference: H5Oint.c - H5O__link_decode() / H5O__link_encode().
type LinkMessage struct {
	Version       uint8
	Flags         uint8
	Type          LinkType
	CreationOrder uint64
	CharSet       uint8
	Name          string
	LinkValue     []byte
}

// NewHardLink creates a hard link message pointing at an object header
// address. The link type field is omitted: hard is the default type.
func NewHardLink(name string, address uint64) *LinkMessage {
	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, address)

	return &LinkMessage{
		Version:   1,
		Flags:     nameLengthCode(len(name)),
		Type:      LinkTypeHard,
		Name:      name,
		LinkValue: value,
	}
}

// NewSoftLink creates a soft link message holding a target path.
func NewSoftLink(name, target string) *LinkMessage {
	return &LinkMessage{
		Version:   1,
		Flags:     nameLengthCode(len(name)) | LinkFlagLinkTypeFieldBit,
		Type:      LinkTypeSoft,
		Name:      name,
		LinkValue: []byte(target),
	}
}

// nameLengthCode picks the narrowest name length encoding for flag
// bits 0-1.
func nameLengthCode(nameLen int) uint8 {
	if nameLen <= 0xFF {
		return 0
	}
	return 1
}

// HasCreationOrder reports whether the creation order field is present.
func (lm *LinkMessage) HasCreationOrder() bool {
	return (lm.Flags & LinkFlagCreationOrderBit) != 0
}

// HasLinkTypeField reports whether the link type field is present.
func (lm *LinkMessage) HasLinkTypeField() bool {
	return (lm.Flags & LinkFlagLinkTypeFieldBit) != 0
}

// HasCharSetField reports whether the character set field is present.
func (lm *LinkMessage) HasCharSetField() bool {
	return (lm.Flags & LinkFlagCharSetBit) != 0
}

// nameLengthWidth returns the width of the name length field in bytes.
func (lm *LinkMessage) nameLengthWidth() int {
	return 1 << (lm.Flags & LinkFlagNameLengthMask)
}

// ParseLinkMessage parses a link message from header message data.
func ParseLinkMessage(data []byte) (*LinkMessage, error) {
	lm, offset, err := parseLinkMessageHeader(data)
	if err != nil {
		return nil, err
	}

	nameLength, offset, err := parseLinkNameLength(data, offset, lm)
	if err != nil {
		return nil, err
	}

	lm.Name, offset, err = parseLinkName(data, offset, nameLength)
	if err != nil {
		return nil, err
	}

	if err := parseLinkValue(data, offset, lm); err != nil {
		return nil, err
	}

	return lm, nil
}

func parseLinkMessageHeader(data []byte) (*LinkMessage, int, error) {
	if len(data) < 2 {
		return nil, 0, errors.New("link message too short (need version and flags)")
	}

	lm := &LinkMessage{
		Version: data[0],
		Flags:   data[1],
	}
	offset := 2

	if lm.Version != 1 {
		return nil, 0, fmt.Errorf("unsupported link message version: %d", lm.Version)
	}

	if lm.HasLinkTypeField() {
		if len(data) < offset+1 {
			return nil, 0, errors.New("link message truncated (missing link type field)")
		}
		lm.Type = LinkType(data[offset])
		offset++
	} else {
		lm.Type = LinkTypeHard
	}

	if lm.HasCreationOrder() {
		if len(data) < offset+8 {
			return nil, 0, errors.New("link message truncated (missing creation order field)")
		}
		lm.CreationOrder = binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8
	}

	if lm.HasCharSetField() {
		if len(data) < offset+1 {
			return nil, 0, errors.New("link message truncated (missing character set field)")
		}
		lm.CharSet = data[offset]
		offset++
	}

	return lm, offset, nil
}

func parseLinkNameLength(data []byte, offset int, lm *LinkMessage) (uint64, int, error) {
	width := lm.nameLengthWidth()
	if len(data) < offset+width {
		return 0, 0, errors.New("link message truncated (missing name length)")
	}

	var nameLength uint64
	switch width {
	case 1:
		nameLength = uint64(data[offset])
	case 2:
		nameLength = uint64(binary.LittleEndian.Uint16(data[offset : offset+2]))
	case 4:
		nameLength = uint64(binary.LittleEndian.Uint32(data[offset : offset+4]))
	case 8:
		nameLength = binary.LittleEndian.Uint64(data[offset : offset+8])
	}

	return nameLength, offset + width, nil
}

func parseLinkName(data []byte, offset int, nameLength uint64) (string, int, error) {
	if nameLength > 1024*1024 {
		return "", 0, fmt.Errorf("link name length too large: %d bytes", nameLength)
	}

	end := offset + int(nameLength)
	if len(data) < end {
		return "", 0, errors.New("link message truncated (missing name)")
	}

	return string(data[offset:end]), end, nil
}

func parseLinkValue(data []byte, offset int, lm *LinkMessage) error {
	switch lm.Type {
	case LinkTypeHard:
		if len(data) < offset+8 {
			return errors.New("link message truncated (missing hard link address)")
		}
		lm.LinkValue = make([]byte, 8)
		copy(lm.LinkValue, data[offset:offset+8])
		return nil

	case LinkTypeSoft:
		if len(data) < offset+2 {
			return errors.New("link message truncated (missing soft link length)")
		}
		pathLength := binary.LittleEndian.Uint16(data[offset : offset+2])
		offset += 2

		if len(data) < offset+int(pathLength) {
			return errors.New("link message truncated (missing soft link path)")
		}
		lm.LinkValue = make([]byte, pathLength)
		copy(lm.LinkValue, data[offset:offset+int(pathLength)])
		return nil

	default:
		return fmt.Errorf("unsupported link type: %d", lm.Type)
	}
}

// EncodeLinkMessage encodes a link message for writing.
func EncodeLinkMessage(lm *LinkMessage) ([]byte, error) {
	if lm == nil {
		return nil, errors.New("link message is nil")
	}
	if lm.Version != 1 {
		return nil, fmt.Errorf("unsupported link message version: %d", lm.Version)
	}
	if lm.Type == LinkTypeHard && len(lm.LinkValue) != 8 {
		return nil, fmt.Errorf("invalid hard link value size: got %d, expected 8", len(lm.LinkValue))
	}
	if lm.Type == LinkTypeSoft && len(lm.LinkValue) > 0xFFFF {
		return nil, fmt.Errorf("soft link path too long: %d bytes", len(lm.LinkValue))
	}

	size := 2 // Version + flags
	if lm.HasLinkTypeField() {
		size++
	}
	if lm.HasCreationOrder() {
		size += 8
	}
	if lm.HasCharSetField() {
		size++
	}
	size += lm.nameLengthWidth()
	size += len(lm.Name)
	if lm.Type == LinkTypeSoft {
		size += 2 // Path length prefix
	}
	size += len(lm.LinkValue)

	buf := make([]byte, size)
	offset := 0

	buf[offset] = lm.Version
	offset++
	buf[offset] = lm.Flags
	offset++

	if lm.HasLinkTypeField() {
		buf[offset] = uint8(lm.Type)
		offset++
	}
	if lm.HasCreationOrder() {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], lm.CreationOrder)
		offset += 8
	}
	if lm.HasCharSetField() {
		buf[offset] = lm.CharSet
		offset++
	}

	if err := writeLinkNameLength(buf, offset, uint64(len(lm.Name)), lm.nameLengthWidth()); err != nil {
		return nil, err
	}
	offset += lm.nameLengthWidth()

	copy(buf[offset:], lm.Name)
	offset += len(lm.Name)

	if lm.Type == LinkTypeSoft {
		binary.LittleEndian.PutUint16(buf[offset:offset+2], uint16(len(lm.LinkValue)))
		offset += 2
	}
	copy(buf[offset:], lm.LinkValue)

	return buf, nil
}

func writeLinkNameLength(buf []byte, offset int, nameLength uint64, width int) error {
	switch width {
	case 1:
		if nameLength > 0xFF {
			return fmt.Errorf("name length %d exceeds 1-byte maximum", nameLength)
		}
		buf[offset] = uint8(nameLength)
	case 2:
		if nameLength > 0xFFFF {
			return fmt.Errorf("name length %d exceeds 2-byte maximum", nameLength)
		}
		binary.LittleEndian.PutUint16(buf[offset:offset+2], uint16(nameLength))
	case 4:
		if nameLength > 0xFFFFFFFF {
			return fmt.Errorf("name length %d exceeds 4-byte maximum", nameLength)
		}
		binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(nameLength))
	case 8:
		binary.LittleEndian.PutUint64(buf[offset:offset+8], nameLength)
	default:
		return fmt.Errorf("invalid name length width: %d", width)
	}
	return nil
}

// GetHardLinkAddress extracts the object header address from a hard
// link's value.
func (lm *LinkMessage) GetHardLinkAddress() (uint64, error) {
	if lm.Type != LinkTypeHard {
		return 0, fmt.Errorf("not a hard link (type=%s)", lm.Type)
	}
	if len(lm.LinkValue) != 8 {
		return 0, fmt.Errorf("invalid hard link value size: got %d, expected 8", len(lm.LinkValue))
	}
	return binary.LittleEndian.Uint64(lm.LinkValue), nil
}

// GetSoftLinkPath extracts the target path from a soft link's value.
func (lm *LinkMessage) GetSoftLinkPath() (string, error) {
	if lm.Type != LinkTypeSoft {
		return "", fmt.Errorf("not a soft link (type=%s)", lm.Type)
	}
	if len(lm.LinkValue) == 0 {
		return "", errors.New("empty soft link path")
	}
	return string(lm.LinkValue), nil
}
