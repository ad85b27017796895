package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVLQRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 31, -32, 95, 96, 127, -127, 128, 1000, -1000, 65535, -65535, 1000000, -1000000, 1 << 30, -(1 << 30)}

	for _, want := range values {
		enc := AppendVLQ(nil, want)
		data := enc
		got, err := DecodeVLQ(&data)
		require.NoError(t, err, "value %d", want)
		assert.Equal(t, want, got, "encoded as %x", enc)
		assert.Empty(t, data, "value %d left bytes", want)
	}
}

func TestVLQEncodingLength(t *testing.T) {
	assert.Len(t, AppendVLQ(nil, 0), 1)
	assert.Len(t, AppendVLQ(nil, 95), 1)
	assert.Len(t, AppendVLQ(nil, -32), 1)
	assert.Len(t, AppendVLQ(nil, 96), 2)
	assert.Len(t, AppendUint(nil, 0x81), 2)
	assert.Len(t, AppendUint(nil, 0xFFFFFFFF), 1, "all-ones decodes as -1")
}

func TestVLQSequence(t *testing.T) {
	buf := AppendUint(nil, 7)
	buf = AppendBytes(buf, []byte{0xde, 0xad})
	buf = AppendUint(buf, 0x81)

	id, err := DecodeUint(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)

	b, err := DecodeBytes(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, b)

	c, err := DecodeByte(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 0x81, c)
	assert.Empty(t, buf)
}

func TestVLQShortBuffer(t *testing.T) {
	data := []byte{0x80}
	_, err := DecodeVLQ(&data)
	assert.ErrorIs(t, err, ErrShortBuffer)
	assert.Equal(t, []byte{0x80}, data, "failed decode must not advance")

	empty := []byte{}
	_, err = DecodeVLQ(&empty)
	assert.ErrorIs(t, err, ErrShortBuffer)

	truncated := AppendUint(nil, 4)
	truncated = append(truncated, 1, 2)
	_, err = DecodeBytes(&truncated)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestDecodeByteRange(t *testing.T) {
	data := AppendUint(nil, 0xff)
	data = AppendUint(data, 0x150)
	data = AppendVLQ(data, -1)
	data = AppendUint(data, 7)

	c, err := DecodeByte(&data)
	require.NoError(t, err)
	assert.EqualValues(t, 0xff, c)

	c, err = DecodeByte(&data)
	assert.ErrorIs(t, err, ErrValueRange)
	assert.Zero(t, c)

	_, err = DecodeByte(&data)
	assert.ErrorIs(t, err, ErrValueRange)

	c, err = DecodeByte(&data)
	require.NoError(t, err, "a rejected value is still consumed")
	assert.EqualValues(t, 7, c)
	assert.Empty(t, data)
}
