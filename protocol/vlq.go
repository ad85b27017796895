package protocol

import "errors"

var (
	ErrShortBuffer   = errors.New("protocol: buffer too short")
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	ErrValueRange    = errors.New("protocol: value does not fit in a byte")
)

// AppendVLQ appends v in the link's variable length encoding: 7 bits per
// byte, most significant group first, continuation in bit 7, and a sign
// convention that keeps small negative numbers to a single byte.
func AppendVLQ(dst []byte, v int32) []byte {
	if v < -(1<<26) || v >= 3<<26 {
		dst = append(dst, byte(v>>28)&0x7F|0x80)
	}
	if v < -(1<<19) || v >= 3<<19 {
		dst = append(dst, byte(v>>21)&0x7F|0x80)
	}
	if v < -(1<<12) || v >= 3<<12 {
		dst = append(dst, byte(v>>14)&0x7F|0x80)
	}
	if v < -(1<<5) || v >= 3<<5 {
		dst = append(dst, byte(v>>7)&0x7F|0x80)
	}
	return append(dst, byte(v)&0x7F)
}

// AppendUint appends an unsigned value.
func AppendUint(dst []byte, v uint32) []byte {
	return AppendVLQ(dst, int32(v))
}

// AppendBytes appends a length-prefixed byte string.
func AppendBytes(dst []byte, b []byte) []byte {
	dst = AppendUint(dst, uint32(len(b)))
	return append(dst, b...)
}

// DecodeVLQ decodes one value from the front of *data and advances it.
func DecodeVLQ(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrShortBuffer
	}
	c := uint32(buf[0])
	buf = buf[1:]
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(buf) == 0 {
			return 0, ErrShortBuffer
		}
		c = uint32(buf[0])
		buf = buf[1:]
		v = v<<7 | c&0x7F
	}
	*data = buf
	return int32(v), nil
}

// DecodeUint decodes an unsigned value.
func DecodeUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQ(data)
	return uint32(v), err
}

// DecodeByte decodes a value that must fit in 8 bits (a %c argument).
// A wider value is consumed and reported as ErrValueRange.
func DecodeByte(data *[]byte) (uint8, error) {
	v, err := DecodeVLQ(data)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 0xff {
		return 0, ErrValueRange
	}
	return uint8(v), nil
}

// DecodeBytes decodes a length-prefixed byte string. The result aliases
// *data.
func DecodeBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrShortBuffer
	}
	b := (*data)[:n]
	*data = (*data)[n:]
	return b, nil
}
