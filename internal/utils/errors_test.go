package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreError_Error(t *testing.T) {
	tests := []struct {
		name     string
		context  string
		cause    error
		expected string
	}{
		{
			name:     "simple error",
			context:  "reading superblock",
			cause:    errors.New("invalid signature"),
			expected: "reading superblock: invalid signature",
		},
		{
			name:     "nested error",
			context:  "parsing dataset header",
			cause:    errors.New("dimension mismatch"),
			expected: "parsing dataset header: dimension mismatch",
		},
		{
			name:     "empty context",
			context:  "",
			cause:    errors.New("some error"),
			expected: ": some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &StoreError{
				Context: tt.context,
				Cause:   tt.cause,
			}
			require.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name    string
		context string
		cause   error
		wantNil bool
	}{
		{
			name:    "wrap non-nil error",
			context: "reading data",
			cause:   errors.New("IO error"),
			wantNil: false,
		},
		{
			name:    "wrap nil error returns nil",
			context: "some operation",
			cause:   nil,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapError(tt.context, tt.cause)

			if tt.wantNil {
				require.Nil(t, err)
				return
			}

			require.NotNil(t, err)

			var se *StoreError
			require.ErrorAs(t, err, &se)
			require.Equal(t, tt.context, se.Context)
			require.Equal(t, tt.cause, se.Cause)
		})
	}
}

func TestWrapError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := WrapError("outer context", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, cause, errors.Unwrap(err))
}
