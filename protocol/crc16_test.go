package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16Empty(t *testing.T) {
	assert.Equal(t, uint16(0xFFFF), CRC16(nil))
}

func TestCRC16KnownAck(t *testing.T) {
	// ACK frame for sequence 0x10 as sent by the firmware.
	crc := CRC16([]byte{5, 0x10})
	frame, err := EncodeFrame(0x10, nil)
	assert.NoError(t, err)
	assert.Equal(t, []byte{5, 0x10, byte(crc >> 8), byte(crc), SyncByte}, frame)
}

func TestCRC16Sensitivity(t *testing.T) {
	a := CRC16([]byte{0x01, 0x02, 0x03})
	b := CRC16([]byte{0x01, 0x02, 0x04})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, CRC16([]byte{0x01, 0x02, 0x03}))
}
