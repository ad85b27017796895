package protocol

import "io"

// CommandHandler handles one decoded command. It must consume its own
// arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link: it validates incoming frames,
// dispatches their commands in order, answers every frame with an ACK/NAK
// and frames outgoing responses.
type Transport struct {
	out     io.Writer
	handler CommandHandler
	reader  *frameReader

	// next sequence number expected from the host; also stamped on ACKs
	// and responses
	nextSeq uint8

	resetCallback func()
	errorCallback func(error)
}

// NewTransport creates a transport that writes to out.
func NewTransport(out io.Writer, handler CommandHandler) *Transport {
	return &Transport{
		out:     out,
		handler: handler,
		reader:  newFrameReader(),
		nextSeq: DestBits,
	}
}

// SetResetCallback is called when the host restarts its sequence at 0x10.
func (t *Transport) SetResetCallback(fn func()) {
	t.resetCallback = fn
}

// SetErrorCallback receives handler and write errors. Errors never stop
// frame processing.
func (t *Transport) SetErrorCallback(fn func(error)) {
	t.errorCallback = fn
}

// Receive consumes raw bytes from the link.
func (t *Transport) Receive(data []byte) {
	t.reader.feed(data)
	for {
		f, ok, resynced := t.reader.next()
		if resynced {
			t.sendAck()
		}
		if !ok {
			return
		}
		if f.Seq == DestBits && t.nextSeq != DestBits {
			t.nextSeq = DestBits
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}
		if f.Seq == t.nextSeq {
			t.nextSeq = NextSeq(f.Seq)
			t.dispatch(f.Payload)
		}
		// A stale sequence gets the expected one back, which the host
		// treats as a NAK.
		t.sendAck()
	}
}

func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.reader.synced = false
		}
	}()
	for len(payload) > 0 {
		id, err := DecodeUint(&payload)
		if err != nil {
			t.report(err)
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(id), &payload); err != nil {
			t.report(err)
			return
		}
	}
}

func (t *Transport) sendAck() {
	frame, _ := EncodeFrame(t.nextSeq, nil)
	t.write(frame)
}

// Send frames a single response message.
func (t *Transport) Send(cmdID uint16, args []byte) error {
	payload := AppendUint(make([]byte, 0, len(args)+3), uint32(cmdID))
	payload = append(payload, args...)
	frame, err := EncodeFrame(t.nextSeq, payload)
	if err != nil {
		return err
	}
	t.write(frame)
	return nil
}

func (t *Transport) write(frame []byte) {
	if _, err := t.out.Write(frame); err != nil {
		t.report(err)
	}
}

func (t *Transport) report(err error) {
	if t.errorCallback != nil {
		t.errorCallback(err)
	}
}

// Reset returns the transport to its power-on state.
func (t *Transport) Reset() {
	t.reader = newFrameReader()
	t.nextSeq = DestBits
	if t.resetCallback != nil {
		t.resetCallback()
	}
}
