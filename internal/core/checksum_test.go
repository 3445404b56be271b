package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestChecksumLookup3_KnownVectors checks published lookup3 results.
func TestChecksumLookup3_KnownVectors(t *testing.T) {
	// Empty input returns the raw seed.
	require.Equal(t, uint32(0xdeadbeef), ChecksumLookup3(nil))
	require.Equal(t, uint32(0xdeadbeef), ChecksumLookup3([]byte{}))

	// Reference value from lookup3.c driver5().
	require.Equal(t, uint32(0x17770551), ChecksumLookup3([]byte("Four score and seven years ago")))
}

// TestChecksumLookup3_Sensitivity checks that single-byte changes move
// the checksum.
func TestChecksumLookup3_Sensitivity(t *testing.T) {
	base := make([]byte, 44)
	for i := range base {
		base[i] = byte(i * 7)
	}
	original := ChecksumLookup3(base)

	for _, i := range []int{0, 11, 12, 43} {
		modified := make([]byte, len(base))
		copy(modified, base)
		modified[i] ^= 0xFF
		require.NotEqual(t, original, ChecksumLookup3(modified), "flipping byte %d", i)
	}
}

// TestChecksumLookup3_BlockBoundaries covers lengths around the 12-byte
// mixing block size.
func TestChecksumLookup3_BlockBoundaries(t *testing.T) {
	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i + 1)
	}

	seen := make(map[uint32]int)
	for _, n := range []int{1, 11, 12, 13, 23, 24, 25, 36} {
		sum := ChecksumLookup3(data[:n])
		prev, dup := seen[sum]
		require.False(t, dup, "length %d collides with length %d", n, prev)
		seen[sum] = n
	}
}
