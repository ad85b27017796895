package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameTooLarge(t *testing.T) {
	_, err := EncodeFrame(DestBits, make([]byte, FrameMax))
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	frame, err := EncodeFrame(DestBits, make([]byte, FrameMax-FrameMin))
	require.NoError(t, err)
	assert.Len(t, frame, FrameMax)
}

func TestFrameReaderSplitInput(t *testing.T) {
	frame, err := EncodeFrame(0x13, []byte{1, 2, 3})
	require.NoError(t, err)

	r := newFrameReader()
	r.feed(frame[:4])
	_, ok, _ := r.next()
	assert.False(t, ok, "partial frame must wait for more input")

	r.feed(frame[4:])
	f, ok, resynced := r.next()
	require.True(t, ok)
	assert.False(t, resynced)
	assert.Equal(t, uint8(0x13), f.Seq)
	assert.Equal(t, []byte{1, 2, 3}, f.Payload)
}

func TestFrameReaderResync(t *testing.T) {
	good, err := EncodeFrame(0x10, []byte{9})
	require.NoError(t, err)
	bad := append([]byte(nil), good...)
	bad[2] ^= 0xff // corrupt payload, CRC no longer matches

	r := newFrameReader()
	r.feed(bad)
	r.feed(good)

	f, ok, resynced := r.next()
	require.True(t, ok)
	assert.True(t, resynced)
	assert.Equal(t, []byte{9}, f.Payload)

	_, ok, _ = r.next()
	assert.False(t, ok)
}

func TestFrameReaderSkipsLeadingSync(t *testing.T) {
	frame, err := EncodeFrame(0x10, nil)
	require.NoError(t, err)

	r := newFrameReader()
	r.feed(append([]byte{SyncByte, SyncByte}, frame...))
	f, ok, _ := r.next()
	require.True(t, ok)
	assert.True(t, f.IsAck())
}

func TestNextSeqWraps(t *testing.T) {
	assert.Equal(t, uint8(0x11), NextSeq(0x10))
	assert.Equal(t, uint8(0x10), NextSeq(0x1F))
}
