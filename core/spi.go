// SPI controller support: validated configuration, chip select and blocking
// byte transfers on the ATmega SPI peripheral.
package core

// SPI drives the SPI controller through an injected register set.
type SPI struct {
	regs Registers
	gpio GPIODriver
	wait Waiter

	// last applied pattern, for inspection only
	applied SPIControl
}

// SPIOption customizes an SPI controller.
type SPIOption func(*SPI)

// WithSPIWaiter replaces the busy-wait used for the completion flag.
func WithSPIWaiter(w Waiter) SPIOption {
	return func(s *SPI) { s.wait = w }
}

// WithSPIGPIO replaces the pin collaborator used for line direction and
// chip select. By default port B on the same register set is used.
func WithSPIGPIO(g GPIODriver) SPIOption {
	return func(s *SPI) { s.gpio = g }
}

// NewSPI returns a controller on regs.
func NewSPI(regs Registers, opts ...SPIOption) *SPI {
	s := &SPI{
		regs: regs,
		wait: BusyWait{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.gpio == nil {
		s.gpio = NewPortB(regs)
	}
	return s
}

// Configure validates cfg and programs the controller. Nothing is written
// unless the whole configuration is valid. The pin directions, SPSR and SPCR
// are written inside one critical section, SPCR last and in a single write.
// A pin failure leaves SPSR and SPCR untouched.
func (s *SPI) Configure(cfg *SPIConfig) error {
	if cfg == nil {
		return ErrNullConfig
	}
	pattern, err := ControlPattern(*cfg)
	if err != nil {
		return err
	}

	var pinErr error
	critical(func() {
		pinErr = s.configurePins(cfg.Master)
		if pinErr != nil {
			return
		}
		s.regs.Write(SPSR, pattern.Status())
		s.regs.Write(SPCR, pattern.Control())
	})
	if pinErr != nil {
		return pinErr
	}

	s.applied = pattern
	RecordBusEvent(EvtSPIConfigure, pattern.Control(), pattern.Status())
	return nil
}

// configurePins sets the line directions the controller expects. In master
// mode SCK, MOSI and SS are outputs with SS parked high and MISO pulled up;
// in slave mode only MISO is driven.
func (s *SPI) configurePins(master bool) error {
	if !master {
		return s.gpio.ConfigureOutput(PinMISO)
	}
	for _, pin := range []Pin{PinMOSI, PinSCK, PinSS} {
		if err := s.gpio.ConfigureOutput(pin); err != nil {
			return err
		}
	}
	if err := s.gpio.SetPin(PinSS, true); err != nil {
		return err
	}
	return s.gpio.ConfigureInputPullUp(PinMISO)
}

// Applied returns the pattern written by the last successful Configure.
func (s *SPI) Applied() SPIControl {
	return s.applied
}

// Select pulls the chip-select line low.
func (s *SPI) Select(cs Pin) error {
	RecordBusEvent(EvtSPISelect, uint8(cs), 0)
	return s.gpio.SetPin(cs, false)
}

// Deselect drives the chip-select line high. Calling it on an already
// deselected line leaves it high.
func (s *SPI) Deselect(cs Pin) error {
	RecordBusEvent(EvtSPIDeselect, uint8(cs), 1)
	return s.gpio.SetPin(cs, true)
}

// Transfer shifts b out and returns the byte shifted in. It blocks until
// SPIF is set; the final SPDR read is what clears SPIF.
func (s *SPI) Transfer(b byte) byte {
	s.regs.Write(SPDR, b)
	pollUntilSet(s.regs, s.wait, SPSR, SPIF)
	rx := s.regs.Read(SPDR)
	RecordBusEvent(EvtSPITransfer, b, rx)
	return rx
}

// Send shifts b out and discards the received byte. SPDR is still read so
// SPIF is cleared for the next transfer.
func (s *SPI) Send(b byte) {
	s.regs.Write(SPDR, b)
	pollUntilSet(s.regs, s.wait, SPSR, SPIF)
	_ = s.regs.Read(SPDR)
	RecordBusEvent(EvtSPITransfer, b, 0)
}
