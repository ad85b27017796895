package protocol

// EncodeFrame wraps payload in a header and CRC trailer.
func EncodeFrame(seq uint8, payload []byte) ([]byte, error) {
	n := HeaderSize + len(payload) + TrailerSize
	if n > FrameMax {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, 0, n)
	buf = append(buf, uint8(n), seq)
	buf = append(buf, payload...)
	crc := CRC16(buf)
	return append(buf, uint8(crc>>8), uint8(crc), SyncByte), nil
}

// frameReader accumulates raw link bytes and cuts them into frames. After a
// malformed frame it discards input up to the next sync byte.
type frameReader struct {
	buf    []byte
	synced bool
}

func newFrameReader() *frameReader {
	return &frameReader{synced: true}
}

func (r *frameReader) feed(data []byte) {
	r.buf = append(r.buf, data...)
}

// next returns the next valid frame, or false when more input is needed.
// resynced reports that garbage was skipped on the way.
func (r *frameReader) next() (f Frame, ok bool, resynced bool) {
	for len(r.buf) > 0 {
		if !r.synced {
			i := indexByte(r.buf, SyncByte)
			if i < 0 {
				r.buf = r.buf[:0]
				return Frame{}, false, resynced
			}
			r.buf = r.buf[i+1:]
			r.synced = true
			resynced = true
			continue
		}
		if r.buf[0] == SyncByte {
			r.buf = r.buf[1:]
			continue
		}
		if len(r.buf) < FrameMin {
			break
		}
		n := int(r.buf[posLen])
		if n < FrameMin || n > FrameMax || r.buf[posSeq]&^SeqMask != DestBits {
			r.synced = false
			continue
		}
		if len(r.buf) < n {
			break
		}
		if r.buf[n-1] != SyncByte {
			r.synced = false
			continue
		}
		crc := uint16(r.buf[n-TrailerSize])<<8 | uint16(r.buf[n-TrailerSize+1])
		if crc != CRC16(r.buf[:n-TrailerSize]) {
			r.synced = false
			continue
		}
		payload := make([]byte, n-FrameMin)
		copy(payload, r.buf[HeaderSize:n-TrailerSize])
		f = Frame{Seq: r.buf[posSeq], Payload: payload}
		r.buf = r.buf[n:]
		return f, true, resynced
	}
	r.compact()
	return Frame{}, false, resynced
}

// compact moves a partial frame to the front of the buffer so the backing
// array does not grow without bound.
func (r *frameReader) compact() {
	if cap(r.buf) > 4*FrameMax && len(r.buf) < FrameMax {
		r.buf = append([]byte(nil), r.buf...)
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
