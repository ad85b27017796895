//go:build avr

package main

import (
	"machine"

	"avrbus/core"
)

const baudRate = 250000

// uartWriter adapts the UART to io.Writer for the transport.
type uartWriter struct {
	uart *machine.UART
}

func (w uartWriter) Write(p []byte) (int, error) {
	return w.uart.Write(p)
}

func main() {
	uart := machine.DefaultUART
	uart.Configure(machine.UARTConfig{BaudRate: baudRate})

	// The UART carries framed traffic only, so no debug writer is set.
	transport, _ := core.NewLink(newMMIO(), uartWriter{uart})

	var buf [32]byte
	for {
		n := 0
		for n < len(buf) && uart.Buffered() > 0 {
			b, err := uart.ReadByte()
			if err != nil {
				break
			}
			buf[n] = b
			n++
		}
		if n > 0 {
			transport.Receive(buf[:n])
		}
	}
}
