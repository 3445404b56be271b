package core

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ObjectHeaderSignature marks the start of a version 2 object header.
const ObjectHeaderSignature = "OHDR"

// ObjectHeaderWriter assembles a version 2 object header in memory.
// Messages are accumulated first and the header is written once, so the
// chunk size field width can be chosen from the final message size.
type ObjectHeaderWriter struct {
	Messages []MessageWriter
}

// MessageWriter is a single encoded message queued for writing.
type MessageWriter struct {
	Type MessageType
	Data []byte
}

// NewGroupHeader creates an object header for a group with compact link
// storage. Link messages and attributes are appended by the caller.
//
// The Link Info message pins the group to compact storage:
//
//	Byte 0:     Version (0)
//	Byte 1:     Flags (0, no creation order tracking)
//	Bytes 2-9:  Fractal heap address (undefined)
//	Bytes 10-17: Name index B-tree address (undefined)
func NewGroupHeader() *ObjectHeaderWriter {
	linkInfo := make([]byte, 18)
	binary.LittleEndian.PutUint64(linkInfo[2:10], UndefinedAddress)
	binary.LittleEndian.PutUint64(linkInfo[10:18], UndefinedAddress)

	ohw := &ObjectHeaderWriter{}
	ohw.AddMessage(MsgLinkInfo, linkInfo)
	return ohw
}

// NewDatasetHeader creates an object header for a dataset from encoded
// dataspace, datatype and data layout messages.
func NewDatasetHeader(dataspace, datatype, layout []byte) *ObjectHeaderWriter {
	ohw := &ObjectHeaderWriter{}
	ohw.AddMessage(MsgDataspace, dataspace)
	ohw.AddMessage(MsgDatatype, datatype)
	ohw.AddMessage(MsgDataLayout, layout)
	return ohw
}

// AddMessage appends an encoded message to the header.
func (ohw *ObjectHeaderWriter) AddMessage(t MessageType, data []byte) {
	ohw.Messages = append(ohw.Messages, MessageWriter{Type: t, Data: data})
}

// messagesSize returns the byte size of all messages including their
// 4-byte message headers.
func (ohw *ObjectHeaderWriter) messagesSize() uint64 {
	var size uint64
	for _, msg := range ohw.Messages {
		size += 4 + uint64(len(msg.Data))
	}
	return size
}

// chunkSizeWidth selects the narrowest chunk 0 size encoding that holds
// chunkSize. The code goes into flag bits 0-1, the width is 1<<code.
func chunkSizeWidth(chunkSize uint64) (code uint8, width int) {
	switch {
	case chunkSize <= 0xFF:
		return 0, 1
	case chunkSize <= 0xFFFF:
		return 1, 2
	default:
		return 2, 4
	}
}

// Size returns the total on-disk size of the header in bytes, for
// allocation before writing.
//
// Layout: signature (4) + version (1) + flags (1) + chunk size field
// (1, 2 or 4) + messages + checksum (4).
func (ohw *ObjectHeaderWriter) Size() uint64 {
	chunkSize := ohw.messagesSize()
	_, width := chunkSizeWidth(chunkSize)
	return 4 + 1 + 1 + uint64(width) + chunkSize + 4
}

// WriteTo writes the object header at the given address and returns the
// number of bytes written. The trailing 4 bytes are the lookup3 checksum
// of everything from the signature through the last message.
func (ohw *ObjectHeaderWriter) WriteTo(w io.WriterAt, address uint64) (uint64, error) {
	chunkSize := ohw.messagesSize()
	if chunkSize > 0xFFFFFFFF {
		return 0, fmt.Errorf("object header chunk size %d exceeds 4-byte encoding", chunkSize)
	}
	sizeCode, sizeWidth := chunkSizeWidth(chunkSize)

	totalSize := 4 + 1 + 1 + sizeWidth + int(chunkSize) + 4
	buf := make([]byte, totalSize)

	offset := 0
	copy(buf[offset:offset+4], ObjectHeaderSignature)
	offset += 4

	buf[offset] = 2 // Version
	offset++

	// Flags: chunk size width in bits 0-1, no times, no phase change.
	buf[offset] = sizeCode
	offset++

	switch sizeWidth {
	case 1:
		buf[offset] = uint8(chunkSize)
	case 2:
		binary.LittleEndian.PutUint16(buf[offset:offset+2], uint16(chunkSize))
	case 4:
		binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(chunkSize))
	}
	offset += sizeWidth

	for _, msg := range ohw.Messages {
		if len(msg.Data) > 0xFFFF {
			return 0, fmt.Errorf("message type %d size %d exceeds 2-byte encoding", msg.Type, len(msg.Data))
		}

		buf[offset] = uint8(msg.Type) //nolint:gosec // G115: message types are a small enum
		offset++

		binary.LittleEndian.PutUint16(buf[offset:offset+2], uint16(len(msg.Data)))
		offset += 2

		buf[offset] = 0 // Message flags
		offset++

		copy(buf[offset:offset+len(msg.Data)], msg.Data)
		offset += len(msg.Data)
	}

	checksum := ChecksumLookup3(buf[:offset])
	binary.LittleEndian.PutUint32(buf[offset:offset+4], checksum)

	//nolint:gosec // G115: file addresses fit in int64 for io.WriterAt
	n, err := w.WriteAt(buf, int64(address))
	if err != nil {
		return 0, fmt.Errorf("failed to write object header at address %d: %w", address, err)
	}
	if n != len(buf) {
		return 0, fmt.Errorf("incomplete object header write: wrote %d bytes, expected %d", n, len(buf))
	}

	return uint64(totalSize), nil
}
