// Package writer provides file writing infrastructure for the session store.
//
// A FileWriter owns the output file handle and an end-of-file Allocator.
// Callers allocate space, write at the returned addresses, and flush once
// the object tree is complete.
package writer

import (
	"fmt"
	"io"
	"os"
)

// CreateMode controls how the output file is created.
type CreateMode int

// File creation modes.
const (
	// ModeTruncate creates the file, replacing any existing file.
	ModeTruncate CreateMode = iota
	// ModeExclusive creates the file and fails if it already exists.
	ModeExclusive
)

// FileWriter wraps an os.File with address-based writes and space allocation.
//
// Not safe for concurrent use.
type FileWriter struct {
	file      *os.File
	allocator *Allocator
}

// NewFileWriter creates the output file and an allocator whose first
// allocation lands at initialOffset (the end of the fixed file header).
func NewFileWriter(filename string, mode CreateMode, initialOffset uint64) (*FileWriter, error) {
	flags := os.O_RDWR | os.O_CREATE
	switch mode {
	case ModeTruncate:
		flags |= os.O_TRUNC
	case ModeExclusive:
		flags |= os.O_EXCL
	default:
		return nil, fmt.Errorf("invalid create mode: %d", mode)
	}

	file, err := os.OpenFile(filename, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", filename, err)
	}

	return &FileWriter{
		file:      file,
		allocator: NewAllocator(initialOffset),
	}, nil
}

// Allocate reserves size bytes and returns the address of the block.
func (fw *FileWriter) Allocate(size uint64) (uint64, error) {
	return fw.allocator.Allocate(size)
}

// WriteAt writes data at the given offset, enforcing a complete write.
func (fw *FileWriter) WriteAt(data []byte, off int64) (int, error) {
	n, err := fw.file.WriteAt(data, off)
	if err != nil {
		return n, fmt.Errorf("write at offset %d failed: %w", off, err)
	}
	if n != len(data) {
		return n, fmt.Errorf("incomplete write at offset %d: wrote %d of %d bytes", off, n, len(data))
	}
	return n, nil
}

// WriteAtAddress writes data at a previously allocated address.
func (fw *FileWriter) WriteAtAddress(data []byte, addr uint64) error {
	//nolint:gosec // G115: file addresses fit in int64 for io.WriterAt
	_, err := fw.WriteAt(data, int64(addr))
	return err
}

// WriteAtWithAllocation allocates space for data, writes it, and returns
// the address of the written block.
func (fw *FileWriter) WriteAtWithAllocation(data []byte) (uint64, error) {
	addr, err := fw.Allocate(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if err := fw.WriteAtAddress(data, addr); err != nil {
		return 0, err
	}
	return addr, nil
}

// ReadAt implements io.ReaderAt over the output file.
func (fw *FileWriter) ReadAt(p []byte, off int64) (int, error) {
	return fw.file.ReadAt(p, off)
}

// EndOfFile returns the current end-of-file address (next allocation point).
func (fw *FileWriter) EndOfFile() uint64 {
	return fw.allocator.EndOfFile()
}

// Flush forces buffered writes to stable storage.
func (fw *FileWriter) Flush() error {
	if err := fw.file.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// Close closes the underlying file. Safe to call on a nil receiver.
func (fw *FileWriter) Close() error {
	if fw == nil || fw.file == nil {
		return nil
	}
	err := fw.file.Close()
	fw.file = nil
	return err
}

// Name returns the path of the output file.
func (fw *FileWriter) Name() string {
	return fw.file.Name()
}

var (
	_ io.ReaderAt = (*FileWriter)(nil)
	_ io.WriterAt = (*FileWriter)(nil)
)
