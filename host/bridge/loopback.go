package bridge

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"avrbus/core"
)

// Loopback runs the firmware side of the link in-process against regs and
// returns a client connected to it. With a sim.AVR as regs, the whole stack
// from Client down to register writes runs without hardware.
func Loopback(regs core.Registers, opts ...Option) *Client {
	fwConn, hostConn := net.Pipe()
	transport, _ := core.NewLink(regs, fwConn)

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 64)
		for {
			n, err := fwConn.Read(buf)
			if n > 0 {
				transport.Receive(buf[:n])
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
					slog.Warn("Loopback firmware read failed", "error", err)
				}
				return
			}
		}
	}()

	c := NewClient(hostConn, opts...)
	c.closers = append(c.closers, func() error {
		err := fwConn.Close()
		<-done
		return err
	})
	return c
}
