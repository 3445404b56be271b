// Package core implements the on-disk format of the session store: a
// strict subset of HDF5 (superblock v2, version 2 object headers,
// compact-link groups, contiguous datasets, compact attributes) that
// standard HDF5 tooling can read back.
package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/scigolib/ecephys/internal/utils"
)

// File signature and supported superblock versions.
const (
	Signature = "\x89HDF\r\n\x1a\n"
	Version2  = 2
	Version3  = 3

	// SuperblockSize is the fixed size of a version 2 superblock.
	SuperblockSize = 48

	// UndefinedAddress marks an absent address field.
	UndefinedAddress = 0xFFFFFFFFFFFFFFFF
)

// Superblock holds the file-level metadata read from or written to the
// first bytes of a session file.
type Superblock struct {
	Version    uint8
	OffsetSize uint8
	LengthSize uint8
	BaseAddr   uint64
	RootGroup  uint64
	EndOfFile  uint64
}

// ReadSuperblock reads and parses the superblock. Versions 2 and 3 are
// accepted; both use the same fixed layout for the fields this engine
// needs. Little-endian files only.
func ReadSuperblock(r io.ReaderAt) (*Superblock, error) {
	buf := make([]byte, SuperblockSize)

	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, utils.WrapError("superblock read failed", err)
	}
	if n < SuperblockSize {
		return nil, errors.New("file too small to contain a superblock")
	}

	if string(buf[:8]) != Signature {
		return nil, errors.New("invalid HDF5 signature")
	}

	version := buf[8]
	if version != Version2 && version != Version3 {
		return nil, fmt.Errorf("unsupported superblock version: %d", version)
	}

	offsetSize := buf[9]
	lengthSize := buf[10]
	if offsetSize != 8 || lengthSize != 8 {
		return nil, fmt.Errorf("unsupported offset/length sizes: offset=%d, length=%d",
			offsetSize, lengthSize)
	}

	sb := &Superblock{
		Version:    version,
		OffsetSize: offsetSize,
		LengthSize: lengthSize,
		BaseAddr:   binary.LittleEndian.Uint64(buf[12:20]),
		EndOfFile:  binary.LittleEndian.Uint64(buf[28:36]),
		RootGroup:  binary.LittleEndian.Uint64(buf[36:44]),
	}

	if sb.RootGroup == UndefinedAddress {
		return nil, errors.New("superblock has no root group address")
	}

	return sb, nil
}

// WriteTo writes a version 2 superblock at offset 0.
//
// Superblock v2 layout (48 bytes):
//
//	Bytes 0-7:   Signature
//	Byte 8:      Version (2)
//	Byte 9:      Size of offsets (8)
//	Byte 10:     Size of lengths (8)
//	Byte 11:     File consistency flags (0)
//	Bytes 12-19: Base address (0)
//	Bytes 20-27: Superblock extension address (undefined)
//	Bytes 28-35: End-of-file address
//	Bytes 36-43: Root group object header address
//	Bytes 44-47: Checksum (lookup3 of bytes 0-43)
func (sb *Superblock) WriteTo(w io.WriterAt, eofAddress uint64) error {
	if sb.Version != Version2 {
		return fmt.Errorf("only superblock version 2 is supported for writing, got version %d", sb.Version)
	}

	buf := make([]byte, SuperblockSize)

	copy(buf[0:8], Signature)
	buf[8] = Version2
	buf[9] = 8
	buf[10] = 8
	buf[11] = 0

	binary.LittleEndian.PutUint64(buf[12:20], sb.BaseAddr)
	binary.LittleEndian.PutUint64(buf[20:28], UndefinedAddress)
	binary.LittleEndian.PutUint64(buf[28:36], eofAddress)
	binary.LittleEndian.PutUint64(buf[36:44], sb.RootGroup)

	checksum := ChecksumLookup3(buf[0:44])
	binary.LittleEndian.PutUint32(buf[44:48], checksum)

	n, err := w.WriteAt(buf, 0)
	if err != nil {
		return fmt.Errorf("failed to write superblock: %w", err)
	}
	if n != SuperblockSize {
		return fmt.Errorf("incomplete superblock write: wrote %d bytes, expected %d", n, SuperblockSize)
	}

	return nil
}
