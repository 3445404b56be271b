package core

import "encoding/binary"

// ChecksumLookup3 computes the Bob Jenkins lookup3 hash over data.
//
// This is the metadata checksum HDF5 stores at the end of version 2
// superblocks and version 2 object headers.
//
// Reference:
//   - H5checksum.c - H5_checksum_lookup3()
//   - http://burtleburtle.net/bob/hash/doobs.html
func ChecksumLookup3(data []byte) uint32 {
	length := len(data)
	//nolint:gosec // G115: hash seed derives from buffer length
	a := uint32(0xdeadbeef) + uint32(length)
	b, c := a, a

	// Process 12-byte blocks, leaving the final block for the tail switch.
	i := 0
	for length > 12 {
		a += binary.LittleEndian.Uint32(data[i:])
		b += binary.LittleEndian.Uint32(data[i+4:])
		c += binary.LittleEndian.Uint32(data[i+8:])

		// Mix
		a -= c
		a ^= (c << 4) | (c >> 28)
		c += b
		b -= a
		b ^= (a << 6) | (a >> 26)
		a += c
		c -= b
		c ^= (b << 8) | (b >> 24)
		b += a
		a -= c
		a ^= (c << 16) | (c >> 16)
		c += b
		b -= a
		b ^= (a << 19) | (a >> 13)
		a += c
		c -= b
		c ^= (b << 4) | (b >> 28)
		b += a

		i += 12
		length -= 12
	}

	// Tail bytes
	switch length {
	case 12:
		c += uint32(data[i+11]) << 24
		fallthrough
	case 11:
		c += uint32(data[i+10]) << 16
		fallthrough
	case 10:
		c += uint32(data[i+9]) << 8
		fallthrough
	case 9:
		c += uint32(data[i+8])
		fallthrough
	case 8:
		b += uint32(data[i+7]) << 24
		fallthrough
	case 7:
		b += uint32(data[i+6]) << 16
		fallthrough
	case 6:
		b += uint32(data[i+5]) << 8
		fallthrough
	case 5:
		b += uint32(data[i+4])
		fallthrough
	case 4:
		a += uint32(data[i+3]) << 24
		fallthrough
	case 3:
		a += uint32(data[i+2]) << 16
		fallthrough
	case 2:
		a += uint32(data[i+1]) << 8
		fallthrough
	case 1:
		a += uint32(data[i])
	case 0:
		return c
	}

	// Final mix
	c ^= b
	c -= (b << 14) | (b >> 18)
	a ^= c
	a -= (c << 11) | (c >> 21)
	b ^= a
	b -= (a << 25) | (a >> 7)
	c ^= b
	c -= (b << 16) | (b >> 16)
	a ^= c
	a -= (c << 4) | (c >> 28)
	b ^= a
	b -= (a << 14) | (a >> 18)
	c ^= b
	c -= (b << 24) | (b >> 8)

	return c
}
