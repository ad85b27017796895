// Package protocol implements the framed command link between the host and
// the bus bridge firmware.
//
// A frame is
//
//	len | seq | payload ... | crc hi | crc lo | 0x7E
//
// where len counts the whole frame, seq carries 0x10 in its high nibble and a
// 4-bit sequence number, and the payload is a run of VLQ-encoded command IDs
// and arguments. An empty payload is an ACK/NAK carrying the next expected
// sequence number.
package protocol

// Version is reported by the firmware in its dictionary.
const Version = "avrbus-0.1.0"

const (
	HeaderSize  = 2
	TrailerSize = 3
	FrameMin    = HeaderSize + TrailerSize
	FrameMax    = 64

	posLen = 0
	posSeq = 1

	SyncByte = 0x7E
	DestBits = 0x10
	SeqMask  = 0x0F
)

// Frame is a decoded, CRC-checked frame.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether the frame carries no messages.
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// NextSeq returns the sequence number following seq.
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | DestBits
}
