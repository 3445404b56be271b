package ecephys

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds callers are expected to branch
// on. Match with errors.Is; returned errors carry additional context.
var (
	// ErrOutOfBounds reports a block selection that does not fit the
	// dataset extent, or whose rank does not match.
	ErrOutOfBounds = errors.New("selection out of bounds")

	// ErrBrokenReference reports a region reference whose target table
	// no longer exists.
	ErrBrokenReference = errors.New("broken region reference")

	// ErrIndexOutOfRange reports a region reference index beyond the
	// target table's row count.
	ErrIndexOutOfRange = errors.New("region index out of range")

	// ErrEmptySelection reports a trial filter that matched no rows.
	ErrEmptySelection = errors.New("empty selection")

	// ErrIO reports an underlying storage failure.
	ErrIO = errors.New("i/o failure")

	// ErrNotFound reports a path that resolves to no object.
	ErrNotFound = errors.New("object not found")
)

// ioError tags an underlying failure as ErrIO while keeping the cause
// in the chain for errors.Is / errors.As.
func ioError(context string, cause error) error {
	return fmt.Errorf("%s: %w", context, errors.Join(ErrIO, cause))
}
