package serial

import (
	"io"
	"time"
)

// Port is the byte link to the bridge firmware. The native implementation
// wraps github.com/tarm/serial; tests use an in-memory pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush drops anything queued in either direction.
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate; the ATmega2560 USART runs the bridge at 250000
	Baud int

	// ReadTimeout bounds each Read so the host read loop can notice Close
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration the firmware is built for.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}
