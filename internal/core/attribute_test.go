package core

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeParseRoundTrip(t *testing.T, attr *Attribute) *Attribute {
	t.Helper()

	encoded, err := EncodeAttributeMessage(attr)
	require.NoError(t, err)

	got, err := ParseAttributeMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, attr.Name, got.Name)
	return got
}

// TestAttribute_StringRoundTrip checks scalar string attributes.
func TestAttribute_StringRoundTrip(t *testing.T) {
	got := encodeParseRoundTrip(t, NewStringAttribute("unit", "volts"))

	value, err := got.ReadValue()
	require.NoError(t, err)
	require.Equal(t, "volts", value)
}

// TestAttribute_EmptyString keeps zero-length values representable.
func TestAttribute_EmptyString(t *testing.T) {
	got := encodeParseRoundTrip(t, NewStringAttribute("comments", ""))

	value, err := got.ReadValue()
	require.NoError(t, err)
	require.Equal(t, "", value)
}

// TestAttribute_StringListRoundTrip checks 1-D string attributes with
// mixed-width values.
func TestAttribute_StringListRoundTrip(t *testing.T) {
	columns := []string{"location", "group", "group_name", "label"}
	got := encodeParseRoundTrip(t, NewStringListAttribute("colnames", columns))

	value, err := got.ReadValue()
	require.NoError(t, err)
	require.Equal(t, columns, value)
}

// TestAttribute_Float64RoundTrip checks scalar float64 attributes.
func TestAttribute_Float64RoundTrip(t *testing.T) {
	got := encodeParseRoundTrip(t, NewFloat64Attribute("rate", 30000.0))

	value, err := got.ReadValue()
	require.NoError(t, err)
	require.Equal(t, 30000.0, value)
}

// TestAttribute_Int64RoundTrip checks scalar int64 attributes.
func TestAttribute_Int64RoundTrip(t *testing.T) {
	got := encodeParseRoundTrip(t, NewInt64Attribute("channel_count", -7))

	value, err := got.ReadValue()
	require.NoError(t, err)
	require.Equal(t, int64(-7), value)
}

// TestParseAttributeMessage_V1Padding parses the padded version 1 form
// written by older tools.
func TestParseAttributeMessage_V1Padding(t *testing.T) {
	dtBytes := EncodeStringDatatype(5)
	dsBytes := EncodeScalarDataspace()

	// Header, then name/datatype/dataspace each padded to 8 bytes,
	// then the raw value.
	buf := make([]byte, 8+8+8+8+5)
	buf[0] = 1
	binary.LittleEndian.PutUint16(buf[2:4], 5) // "unit" + null
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(dtBytes)))
	binary.LittleEndian.PutUint16(buf[6:8], uint16(len(dsBytes)))
	copy(buf[8:], "unit\x00")
	copy(buf[16:], dtBytes)
	copy(buf[24:], dsBytes)
	copy(buf[32:], "volts")

	attr, err := ParseAttributeMessage(buf)
	require.NoError(t, err)
	require.Equal(t, "unit", attr.Name)

	value, err := attr.ReadValue()
	require.NoError(t, err)
	require.Equal(t, "volts", value)
}

// TestParseAttributeMessage_Errors covers malformed messages.
func TestParseAttributeMessage_Errors(t *testing.T) {
	valid, err := EncodeAttributeMessage(NewStringAttribute("description", "probe drive"))
	require.NoError(t, err)

	tests := []struct {
		name        string
		mutate      func([]byte) []byte
		errContains string
	}{
		{
			name:        "too short",
			mutate:      func(b []byte) []byte { return b[:4] },
			errContains: "too short",
		},
		{
			name: "unsupported version",
			mutate: func(b []byte) []byte {
				b[0] = 9
				return b
			},
			errContains: "unsupported attribute message version",
		},
		{
			name: "shared datatype",
			mutate: func(b []byte) []byte {
				b[1] = 0x01
				return b
			},
			errContains: "shared attribute",
		},
		{
			name: "name beyond message",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint16(b[2:4], 0xFFFF)
				return b
			},
			errContains: "name extends beyond message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, len(valid))
			copy(buf, valid)

			_, err := ParseAttributeMessage(tt.mutate(buf))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errContains)
		})
	}
}

// TestAttribute_ReadValue_ShortData rejects values shorter than the
// declared extent.
func TestAttribute_ReadValue_ShortData(t *testing.T) {
	attr := NewFloat64Attribute("rate", 1.0)
	attr.Data = attr.Data[:4]

	_, err := attr.ReadValue()
	require.Error(t, err)
	require.Contains(t, err.Error(), "too short")
}
