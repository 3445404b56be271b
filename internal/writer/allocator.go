package writer

import (
	"fmt"
	"sort"
)

// AllocatedBlock tracks an allocated region of the file.
type AllocatedBlock struct {
	Offset uint64 // Starting address in file
	Size   uint64 // Size of allocated block in bytes
}

// Allocator manages space allocation in the output file.
//
// Strategy: end-of-file allocation only. Space is never reclaimed, so a
// finished file is a perfect sequential layout of everything written.
// All allocations are tracked so overlap bugs can be caught in tests.
//
// Not thread-safe; designed for the single-threaded FileWriter.
type Allocator struct {
	blocks     []AllocatedBlock // All allocated blocks (append-only)
	nextOffset uint64           // Next available address (end-of-file)
}

// NewAllocator creates an allocator starting at initialOffset, typically
// the size of the fixed file header.
func NewAllocator(initialOffset uint64) *Allocator {
	return &Allocator{
		blocks:     make([]AllocatedBlock, 0, 16),
		nextOffset: initialOffset,
	}
}

// Allocate reserves a block at the end of the file and returns its address.
func (a *Allocator) Allocate(size uint64) (uint64, error) {
	if size == 0 {
		return 0, fmt.Errorf("cannot allocate zero bytes")
	}

	addr := a.nextOffset
	a.blocks = append(a.blocks, AllocatedBlock{Offset: addr, Size: size})
	a.nextOffset = addr + size

	return addr, nil
}

// IsAllocated reports whether the range [offset, offset+size) overlaps any
// allocated block. Adjacent blocks do not overlap; zero-size ranges never do.
func (a *Allocator) IsAllocated(offset, size uint64) bool {
	if size == 0 {
		return false
	}

	rangeEnd := offset + size
	for _, block := range a.blocks {
		blockEnd := block.Offset + block.Size
		if offset < blockEnd && block.Offset < rangeEnd {
			return true
		}
	}

	return false
}

// EndOfFile returns the address where the next allocation would occur,
// which equals the total file size.
func (a *Allocator) EndOfFile() uint64 {
	return a.nextOffset
}

// Blocks returns a copy of all allocated blocks, sorted by offset.
func (a *Allocator) Blocks() []AllocatedBlock {
	blocks := make([]AllocatedBlock, len(a.blocks))
	copy(blocks, a.blocks)

	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].Offset < blocks[j].Offset
	})

	return blocks
}

// ValidateNoOverlaps checks that no allocated blocks overlap. With
// end-of-file allocation this should never fail; it exists to catch
// allocator bugs in tests.
func (a *Allocator) ValidateNoOverlaps() error {
	blocks := a.Blocks()

	for i := 0; i < len(blocks)-1; i++ {
		current := blocks[i]
		next := blocks[i+1]

		if current.Offset+current.Size > next.Offset {
			return fmt.Errorf("overlap detected: block at %d (size %d) overlaps block at %d",
				current.Offset, current.Size, next.Offset)
		}
	}

	return nil
}
