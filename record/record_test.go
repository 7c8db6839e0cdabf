package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDef = Define("test record",
	Field{Name: "signature", Width: 4, Literal: 0x07064b50},
	Field{Name: "disk number", Width: 2},
	Field{Name: "offset", Width: 8},
	Field{Name: "count", Width: 4},
)

func TestDefine_Size(t *testing.T) {
	assert.Equal(t, 18, testDef.Size())
}

func TestEncode_Decode_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		values   Values
		expected Values
	}{
		{
			name:   "all fields supplied",
			values: Values{"signature": 0x07064b50, "disk number": 1, "offset": 0x1_0000_0001, "count": 42},
			expected: Values{
				"signature":   0x07064b50,
				"disk number": 1,
				"offset":      0x1_0000_0001,
				"count":       42,
			},
		},
		{
			name:   "omitted fields fall back to literal or zero",
			values: Values{"count": 3},
			expected: Values{
				"signature":   0x07064b50,
				"disk number": 0,
				"offset":      0,
				"count":       3,
			},
		},
		{
			name:   "64-bit value above 2^53 survives",
			values: Values{"offset": 0xFFFF_FFFF_FFFF_FFFE},
			expected: Values{
				"signature":   0x07064b50,
				"disk number": 0,
				"offset":      0xFFFF_FFFF_FFFF_FFFE,
				"count":       0,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, n := testDef.Encode(tt.values)
			assert.Equal(t, testDef.Size(), n)

			values, next, err := testDef.Decode(buf, 0)
			require.NoError(t, err)
			assert.Equal(t, testDef.Size(), next)
			assert.Equal(t, tt.expected, values)
		})
	}
}

func TestEncode_WithPadding(t *testing.T) {
	buf, n := testDef.Encode(Values{"count": 7}, WithPadding(3, 5))
	assert.Equal(t, 3+testDef.Size()+5, n)
	assert.Equal(t, []byte{0, 0, 0}, buf[:3])
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, buf[n-5:])

	// record starts after the leading padding.
	values, _, err := testDef.Decode(buf, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), values["count"])
}

func TestEncode_LittleEndianWireOrder(t *testing.T) {
	buf, _ := testDef.Encode(Values{"disk number": 0x0201, "count": 0x04030201})
	assert.Equal(t, []byte{0x50, 0x4b, 0x06, 0x07}, buf[:4])
	assert.Equal(t, []byte{0x01, 0x02}, buf[4:6])
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf[14:18])
}

func TestDecode_ShortBuffer(t *testing.T) {
	buf := make([]byte, testDef.Size())

	tests := []struct {
		name string
		buf  []byte
		off  int
	}{
		{name: "empty buffer", buf: nil, off: 0},
		{name: "one byte short", buf: buf[:testDef.Size()-1], off: 0},
		{name: "offset past usable range", buf: buf, off: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := testDef.Decode(tt.buf, tt.off)

			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, "test record", de.Definition)
			assert.Equal(t, testDef.Size(), de.Need)
		})
	}
}

func TestOffset_Remaining(t *testing.T) {
	tests := []struct {
		field                    string
		offset, offsetIncl       int
		remaining, remainingIncl int
	}{
		{field: "signature", offset: 0, offsetIncl: 4, remaining: 14, remainingIncl: 18},
		{field: "disk number", offset: 4, offsetIncl: 6, remaining: 12, remainingIncl: 14},
		{field: "offset", offset: 6, offsetIncl: 14, remaining: 4, remainingIncl: 12},
		{field: "count", offset: 14, offsetIncl: 18, remaining: 0, remainingIncl: 4},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			n, err := testDef.Offset(tt.field, false)
			require.NoError(t, err)
			assert.Equal(t, tt.offset, n)

			n, err = testDef.Offset(tt.field, true)
			require.NoError(t, err)
			assert.Equal(t, tt.offsetIncl, n)

			n, err = testDef.Remaining(tt.field, false)
			require.NoError(t, err)
			assert.Equal(t, tt.remaining, n)

			n, err = testDef.Remaining(tt.field, true)
			require.NoError(t, err)
			assert.Equal(t, tt.remainingIncl, n)
		})
	}
}

func TestOffset_UnknownField(t *testing.T) {
	_, err := testDef.Offset("no such field", false)
	assert.ErrorIs(t, err, ErrFieldNotFound)

	_, err = testDef.Remaining("no such field", true)
	assert.ErrorIs(t, err, ErrFieldNotFound)
}

func TestDefine_PanicsOnBadDeclaration(t *testing.T) {
	assert.Panics(t, func() {
		Define("bad width", Field{Name: "a", Width: 3})
	})
	assert.Panics(t, func() {
		Define("dup", Field{Name: "a", Width: 2}, Field{Name: "a", Width: 4})
	})
}
