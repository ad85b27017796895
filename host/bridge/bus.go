package bridge

import (
	"errors"

	"tinygo.org/x/drivers"

	"avrbus/core"
)

// remoteSequencer runs the TWI primitives through a Client. Link failures
// cannot be expressed as a bus status, so the first one is kept and the
// primitive reports a bus error instead.
type remoteSequencer struct {
	c   *Client
	err error
}

var _ core.Sequencer = (*remoteSequencer)(nil)

func (s *remoteSequencer) fail(err error) bool {
	if err != nil && s.err == nil {
		s.err = err
	}
	return err != nil
}

func (s *remoteSequencer) Start() core.Status {
	st, err := s.c.Start()
	if s.fail(err) {
		return core.StatusBusError
	}
	return st
}

func (s *remoteSequencer) AddressSlave(addr core.I2CAddress, dir core.Direction) (core.Status, error) {
	st, err := s.c.AddressSlave(addr, dir)
	if errors.Is(err, core.ErrBadSlaveAddress) || errors.Is(err, core.ErrBadDirectionBit) {
		return st, err
	}
	if s.fail(err) {
		return core.StatusBusError, nil
	}
	return st, nil
}

func (s *remoteSequencer) SendByte(data byte) core.Status {
	st, err := s.c.SendByte(data)
	if s.fail(err) {
		return core.StatusBusError
	}
	return st
}

func (s *remoteSequencer) ReadByteAck() byte {
	b, _, err := s.c.ReadByteAck()
	s.fail(err)
	return b
}

func (s *remoteSequencer) ReadByteNack() byte {
	b, _, err := s.c.ReadByteNack()
	s.fail(err)
	return b
}

func (s *remoteSequencer) Stop() {
	s.fail(s.c.Stop())
}

// Bus runs whole I2C transactions on the firmware and satisfies the TinyGo
// driver interface, so TinyGo device drivers can be exercised from the host.
type Bus struct {
	seq *remoteSequencer
	bus *core.I2CBus
}

var _ drivers.I2C = (*Bus)(nil)

// I2C returns a transaction-level view of the client's TWI bus.
func (c *Client) I2C() *Bus {
	seq := &remoteSequencer{c: c}
	return &Bus{seq: seq, bus: core.NewI2CBus(seq)}
}

// Tx writes w and reads len(r) bytes from addr. A link failure takes
// precedence over the bus status it caused.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	err := b.bus.Tx(addr, w, r)
	if b.seq.err != nil {
		err = b.seq.err
		b.seq.err = nil
	}
	return err
}

// ReadRegister reads len(buf) bytes starting at register reg.
func (b *Bus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

// WriteRegister writes buf starting at register reg.
func (b *Bus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	w := make([]byte, 0, len(buf)+1)
	w = append(w, reg)
	w = append(w, buf...)
	return b.Tx(uint16(addr), w, nil)
}
