package core

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/scigolib/ecephys/internal/utils"
)

// ObjectType identifies the type of object a header describes.
type ObjectType uint8

// Object type constants.
const (
	ObjectTypeGroup ObjectType = iota
	ObjectTypeDataset
	ObjectTypeDatatype
	ObjectTypeUnknown
)

// MessageType identifies the type of message in an object header.
type MessageType uint16

// Header message type constants from the HDF5 format specification.
const (
	MsgNil            MessageType = 0
	MsgDataspace      MessageType = 1
	MsgLinkInfo       MessageType = 2
	MsgDatatype       MessageType = 3
	MsgFillValueOld   MessageType = 4
	MsgFillValue      MessageType = 5
	MsgLinkMessage    MessageType = 6
	MsgDataLayout     MessageType = 8
	MsgFilterPipeline MessageType = 11
	MsgAttribute      MessageType = 12
	MsgName           MessageType = 13
	MsgAttributeInfo  MessageType = 15
	MsgContinuation   MessageType = 16
	MsgSymbolTable    MessageType = 17
)

// ObjectHeader is a parsed version 2 object header.
type ObjectHeader struct {
	Version    uint8
	Flags      uint8
	Type       ObjectType
	Messages   []*HeaderMessage
	Attributes []*Attribute
}

// HeaderMessage is a single message within an object header.
type HeaderMessage struct {
	Type   MessageType
	Offset uint64
	Data   []byte
}

// ReadObjectHeader reads and parses a version 2 object header at the
// given address. The trailing chunk checksum is not verified.
func ReadObjectHeader(r io.ReaderAt, address uint64) (*ObjectHeader, error) {
	//nolint:gosec // G115: file addresses fit in int64 for io.ReaderAt
	offset := int64(address)
	if offset < 0 {
		return nil, fmt.Errorf("negative offset: %d", offset)
	}

	prefix := make([]byte, 6)
	if _, err := r.ReadAt(prefix, offset); err != nil {
		return nil, utils.WrapError("object header read failed", err)
	}

	if string(prefix[0:4]) != ObjectHeaderSignature {
		return nil, fmt.Errorf("invalid object header signature: % x", prefix[0:4])
	}
	if prefix[4] != 2 {
		return nil, fmt.Errorf("unsupported object header version: %d", prefix[4])
	}

	header := &ObjectHeader{
		Version: 2,
		Flags:   prefix[5],
	}

	messages, err := parseV2Header(r, address, header.Flags)
	if err != nil {
		return nil, utils.WrapError("v2 header parse failed", err)
	}
	header.Messages = messages
	header.Type = determineObjectType(messages)

	for _, msg := range messages {
		if msg.Type != MsgAttribute {
			continue
		}
		attr, err := ParseAttributeMessage(msg.Data)
		if err != nil {
			return nil, utils.WrapError("attribute message parse failed", err)
		}
		header.Attributes = append(header.Attributes, attr)
	}

	return header, nil
}

// Attr returns the named attribute, or nil if the header has none.
func (h *ObjectHeader) Attr(name string) *Attribute {
	for _, attr := range h.Attributes {
		if attr.Name == name {
			return attr
		}
	}
	return nil
}

// FindMessage returns the first message of the given type, or nil.
func (h *ObjectHeader) FindMessage(t MessageType) *HeaderMessage {
	for _, msg := range h.Messages {
		if msg.Type == t {
			return msg
		}
	}
	return nil
}

func determineObjectType(messages []*HeaderMessage) ObjectType {
	// Dataspace is definitive: datasets carry both Dataspace and
	// Datatype messages, so check for it before standalone datatypes.
	for _, msg := range messages {
		switch msg.Type {
		case MsgSymbolTable, MsgLinkInfo, MsgLinkMessage:
			return ObjectTypeGroup
		case MsgDataspace:
			return ObjectTypeDataset
		}
	}

	for _, msg := range messages {
		if msg.Type == MsgDatatype {
			return ObjectTypeDatatype
		}
	}

	return ObjectTypeUnknown
}

func parseV2Header(r io.ReaderAt, headerAddr uint64, flags uint8) ([]*HeaderMessage, error) {
	var messages []*HeaderMessage

	// Signature (4) + version (1) + flags (1)
	current := headerAddr + 6

	// Flag bits per H5Opublic.h:
	// Bits 0-1: chunk 0 size field width (1 << value bytes)
	// Bit 2:    attribute creation order tracked
	// Bit 3:    attribute creation order indexed
	// Bit 4:    non-default attribute storage phase change
	// Bit 5:    access/modification/change/birth times stored
	if flags&0x20 != 0 {
		current += 16
	}
	if flags&0x10 != 0 {
		current += 4
	}

	chunkSizeBytes := 1 << (flags & 0x03)
	sizeBuf := make([]byte, chunkSizeBytes)
	//nolint:gosec // G115: file addresses fit in int64 for io.ReaderAt
	if _, err := r.ReadAt(sizeBuf, int64(current)); err != nil {
		return nil, utils.WrapError("chunk size read failed", err)
	}

	var chunkSize uint64
	switch chunkSizeBytes {
	case 1:
		chunkSize = uint64(sizeBuf[0])
	case 2:
		chunkSize = uint64(binary.LittleEndian.Uint16(sizeBuf))
	case 4:
		chunkSize = uint64(binary.LittleEndian.Uint32(sizeBuf))
	case 8:
		chunkSize = binary.LittleEndian.Uint64(sizeBuf)
	}

	current += uint64(chunkSizeBytes)
	end := current + chunkSize

	// Messages tracked by creation order carry two extra header bytes.
	msgHeaderSize := uint64(4)
	if flags&0x04 != 0 {
		msgHeaderSize = 6
	}

	for current+msgHeaderSize <= end {
		msgHeader := make([]byte, 4)
		//nolint:gosec // G115: file addresses fit in int64 for io.ReaderAt
		if _, err := r.ReadAt(msgHeader, int64(current)); err != nil {
			return nil, utils.WrapError("message header read failed", err)
		}

		msgType := MessageType(msgHeader[0])
		msgSize := binary.LittleEndian.Uint16(msgHeader[1:3])

		if msgSize > 0 {
			data := make([]byte, msgSize)
			//nolint:gosec // G115: file addresses fit in int64 for io.ReaderAt
			if _, err := r.ReadAt(data, int64(current+msgHeaderSize)); err != nil {
				return nil, utils.WrapError("message data read failed", err)
			}
			messages = append(messages, &HeaderMessage{
				Type:   msgType,
				Offset: current,
				Data:   data,
			})
		}

		current += msgHeaderSize + uint64(msgSize)
	}

	return messages, nil
}
