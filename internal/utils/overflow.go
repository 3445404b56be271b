package utils

import (
	"fmt"
	"math"
)

// CheckMultiplyOverflow checks if multiplying two uint64 values would overflow.
// Returns an error if overflow would occur.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil // No overflow when either is zero
	}

	if a > math.MaxUint64/b {
		return fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}

	return nil
}

// SafeMultiply multiplies two uint64 values and returns the result if no overflow occurs.
// Returns 0 and an error if overflow would occur.
func SafeMultiply(a, b uint64) (uint64, error) {
	if err := CheckMultiplyOverflow(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}

// ElementCount calculates the total number of elements spanned by the given
// dimensions, with overflow checking. An empty dimension list is an error;
// a zero dimension yields zero elements.
func ElementCount(dims []uint64) (uint64, error) {
	if len(dims) == 0 {
		return 0, fmt.Errorf("no dimensions provided")
	}

	total := uint64(1)
	for i, dim := range dims {
		if err := CheckMultiplyOverflow(total, dim); err != nil {
			return 0, fmt.Errorf("element count overflow at dimension %d: %w", i, err)
		}
		total *= dim
	}

	return total, nil
}

// ValidateBufferSize validates that a buffer size is within reasonable limits.
// maxSize parameter allows different limits for different use cases.
func ValidateBufferSize(size, maxSize uint64, description string) error {
	if size == 0 {
		return fmt.Errorf("%s: size cannot be zero", description)
	}

	if size > maxSize {
		return fmt.Errorf("%s: size %d exceeds maximum %d", description, size, maxSize)
	}

	return nil
}

// Common buffer size limits.
const (
	// MaxAttributeSize limits attribute value size to 64MB.
	MaxAttributeSize = 64 * 1024 * 1024

	// MaxStringSize limits fixed string width to 16MB.
	MaxStringSize = 16 * 1024 * 1024

	// MaxSliceElements limits a single materialized selection to 1 billion elements.
	MaxSliceElements = 1_000_000_000
)
