package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFileWriter_Modes(t *testing.T) {
	tests := []struct {
		name    string
		mode    CreateMode
		setup   func(t *testing.T, path string)
		wantErr bool
	}{
		{
			name: "truncate creates new file",
			mode: ModeTruncate,
		},
		{
			name: "truncate replaces existing file",
			mode: ModeTruncate,
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("old content"), 0o644))
			},
		},
		{
			name: "exclusive creates new file",
			mode: ModeExclusive,
		},
		{
			name: "exclusive fails on existing file",
			mode: ModeExclusive,
			setup: func(t *testing.T, path string) {
				require.NoError(t, os.WriteFile(path, []byte("existing"), 0o644))
			},
			wantErr: true,
		},
		{
			name:    "invalid mode",
			mode:    CreateMode(99),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.bin")
			if tt.setup != nil {
				tt.setup(t, path)
			}

			fw, err := NewFileWriter(path, tt.mode, 48)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NoError(t, fw.Close())
		})
	}
}

func TestFileWriter_WriteAtWithAllocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	fw, err := NewFileWriter(path, ModeTruncate, 48)
	require.NoError(t, err)
	defer fw.Close()

	payload := []byte("session payload")
	addr, err := fw.WriteAtWithAllocation(payload)
	require.NoError(t, err)
	require.Equal(t, uint64(48), addr)
	require.Equal(t, uint64(48+len(payload)), fw.EndOfFile())

	got := make([]byte, len(payload))
	//nolint:gosec // G115: test addresses are small
	_, err = fw.ReadAt(got, int64(addr))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFileWriter_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	fw, err := NewFileWriter(path, ModeTruncate, 0)
	require.NoError(t, err)

	require.NoError(t, fw.Close())
	require.NoError(t, fw.Close())

	var nilWriter *FileWriter
	require.NoError(t, nilWriter.Close())
}
