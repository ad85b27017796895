package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frames(t *testing.T, raw []byte) []Frame {
	t.Helper()
	r := newFrameReader()
	r.feed(raw)
	var out []Frame
	for {
		f, ok, _ := r.next()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func TestTransportDispatchAndAck(t *testing.T) {
	var out bytes.Buffer
	var got []uint32
	var tr *Transport
	tr = NewTransport(&out, func(id uint16, data *[]byte) error {
		v, _ := DecodeUint(data)
		got = append(got, uint32(id), v)
		return tr.Send(id+1, AppendUint(nil, v*2))
	})

	frame, err := EncodeFrame(0x10, AppendUint(AppendUint(nil, 4), 21))
	require.NoError(t, err)
	tr.Receive(frame)

	assert.Equal(t, []uint32{4, 21}, got)

	fs := frames(t, out.Bytes())
	require.Len(t, fs, 2)
	resp := fs[0].Payload
	id, _ := DecodeUint(&resp)
	v, _ := DecodeUint(&resp)
	assert.EqualValues(t, 5, id)
	assert.EqualValues(t, 42, v)
	assert.True(t, fs[1].IsAck())
	assert.Equal(t, uint8(0x11), fs[1].Seq)
}

func TestTransportIgnoresStaleSequence(t *testing.T) {
	var out bytes.Buffer
	calls := 0
	tr := NewTransport(&out, func(id uint16, data *[]byte) error {
		calls++
		return nil
	})

	stale, _ := EncodeFrame(0x12, AppendUint(nil, 1))
	tr.Receive(stale)

	assert.Equal(t, 0, calls)
	fs := frames(t, out.Bytes())
	require.Len(t, fs, 1)
	assert.Equal(t, uint8(0x10), fs[0].Seq, "NAK names the expected sequence")
}

func TestTransportReportsHandlerErrors(t *testing.T) {
	var out bytes.Buffer
	boom := errors.New("boom")
	tr := NewTransport(&out, func(id uint16, data *[]byte) error { return boom })
	var reported error
	tr.SetErrorCallback(func(err error) { reported = err })

	frame, _ := EncodeFrame(0x10, AppendUint(nil, 3))
	tr.Receive(frame)
	assert.ErrorIs(t, reported, boom)
}

func TestTransportHostReset(t *testing.T) {
	var out bytes.Buffer
	tr := NewTransport(&out, func(id uint16, data *[]byte) error { return nil })
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	f1, _ := EncodeFrame(0x10, AppendUint(nil, 0))
	f2, _ := EncodeFrame(0x11, AppendUint(nil, 0))
	tr.Receive(f1)
	tr.Receive(f2)
	tr.Receive(f1)
	assert.Equal(t, 1, resets)
}
