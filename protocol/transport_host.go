package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ErrClosed is returned by calls on a closed HostTransport.
var ErrClosed = errors.New("protocol: transport closed")

// Message is a response frame received from the firmware, split into its
// command ID and argument bytes.
type Message struct {
	Seq  uint8
	ID   uint16
	Args []byte
}

// HostTransport is the host side of the link: it sends one command frame at
// a time, waits for the matching ACK and queues response messages.
type HostTransport struct {
	port io.ReadWriteCloser

	writeMu sync.Mutex
	seq     uint8

	reader *frameReader

	ackCh  chan uint8
	respCh chan Message

	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}

	errMu   sync.Mutex
	readErr error
}

// NewHostTransport starts reading from port in the background.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:   port,
		seq:    DestBits,
		reader: newFrameReader(),
		ackCh:  make(chan uint8, 4),
		respCh: make(chan Message, 16),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Send frames cmdID with its encoded arguments and waits for the ACK. A NAK
// (an ACK carrying the wrong sequence) is reported as an error.
func (t *HostTransport) Send(cmdID uint16, args []byte, timeout time.Duration) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	payload := AppendUint(make([]byte, 0, len(args)+3), uint32(cmdID))
	payload = append(payload, args...)
	frame, err := EncodeFrame(t.seq, payload)
	if err != nil {
		return err
	}
	if _, err := t.port.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	want := NextSeq(t.seq)
	deadline := time.After(timeout)
	for {
		select {
		case got := <-t.ackCh:
			if got == want {
				t.seq = want
				return nil
			}
			// Stale ACKs from an earlier resync are skipped; a NAK names
			// the sequence the firmware still expects.
			if got == t.seq {
				return fmt.Errorf("nak: firmware expects seq 0x%02x", got)
			}
		case <-deadline:
			return fmt.Errorf("ack timeout after %v", timeout)
		case <-t.stopCh:
			return ErrClosed
		}
	}
}

// Receive returns the next response message.
func (t *HostTransport) Receive(timeout time.Duration) (Message, error) {
	select {
	case msg := <-t.respCh:
		return msg, nil
	case <-time.After(timeout):
		if err := t.Err(); err != nil {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("response timeout after %v", timeout)
	case <-t.stopCh:
		return Message{}, ErrClosed
	}
}

// Drain discards queued responses.
func (t *HostTransport) Drain() {
	for {
		select {
		case <-t.respCh:
		case <-t.ackCh:
		default:
			return
		}
	}
}

// Err returns the error that stopped the read loop, if any.
func (t *HostTransport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.readErr
}

func (t *HostTransport) readLoop() {
	defer close(t.doneCh)

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.reader.feed(buf[:n])
			t.drainFrames()
		}
		if err != nil {
			select {
			case <-t.stopCh:
				return
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				t.errMu.Lock()
				t.readErr = err
				t.errMu.Unlock()
				return
			}
			// Serial drivers report read timeouts as errors; keep polling.
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) drainFrames() {
	for {
		f, ok, _ := t.reader.next()
		if !ok {
			return
		}
		if f.IsAck() {
			select {
			case t.ackCh <- f.Seq:
			default:
			}
			continue
		}
		payload := f.Payload
		for len(payload) > 0 {
			id, err := DecodeUint(&payload)
			if err != nil {
				break
			}
			// A response frame carries exactly one message; its arguments
			// are the remainder of the payload.
			msg := Message{Seq: f.Seq, ID: uint16(id), Args: payload}
			payload = nil
			select {
			case t.respCh <- msg:
			default:
				// drop the oldest to make room
				select {
				case <-t.respCh:
				default:
				}
				t.respCh <- msg
			}
		}
	}
}

// Close stops the read loop and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stopCh)
		err = t.port.Close()
		<-t.doneCh
	})
	return err
}
