// Package gpio drives the ATmega reset line from a Raspberry Pi header, so
// the host can put the bridge firmware in a known state before connecting.
package gpio

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

// Line is an output pin. rpio.Pin satisfies it.
type Line interface {
	Output()
	High()
	Low()
}

// Reset holds the active-low reset line of the MCU.
type Reset struct {
	line   Line
	pulse  time.Duration
	sleep  func(time.Duration)
	closer func() error
}

// NewReset parks line high. pulse is how long Pulse holds it low.
func NewReset(line Line, pulse time.Duration) *Reset {
	line.Output()
	line.High()
	return &Reset{line: line, pulse: pulse, sleep: time.Sleep}
}

// OpenReset maps the Pi GPIO registers and claims BCM pin.
func OpenReset(pin int, pulse time.Duration) (*Reset, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio: %w", err)
	}
	r := NewReset(rpio.Pin(pin), pulse)
	r.closer = rpio.Close
	slog.Debug("Reset line ready", "pin", pin, "pulse", pulse)
	return r, nil
}

// Pulse pulls the line low for the configured time and releases it.
func (r *Reset) Pulse() {
	slog.Info("Resetting MCU", "pulse", r.pulse)
	r.line.Low()
	r.sleep(r.pulse)
	r.line.High()
}

// Close releases the GPIO mapping. The line stays high.
func (r *Reset) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer()
	r.closer = nil
	return err
}
