package core

import (
	"strconv"

	"tinygo.org/x/drivers"
)

// BusError reports a TWI transaction that ended on an unexpected status.
type BusError struct {
	Phase  string
	Addr   I2CAddress
	Status Status
}

func (e *BusError) Error() string {
	return "i2c: " + e.Phase + " to 0x" + hexByte(uint8(e.Addr)) + ": " + e.Status.String()
}

// Sequencer is the set of TWI master primitives. *I2C implements it on the
// chip; the host bridge client implements it over the serial link.
type Sequencer interface {
	Start() Status
	AddressSlave(addr I2CAddress, dir Direction) (Status, error)
	SendByte(data byte) Status
	ReadByteAck() byte
	ReadByteNack() byte
	Stop()
}

var _ Sequencer = (*I2C)(nil)

// I2CBus runs whole write/read transactions on top of a sequencer, in the
// shape TinyGo device drivers expect. It is a caller of the primitives: it
// checks every status and always releases the bus with a stop.
type I2CBus struct {
	seq Sequencer
}

var _ drivers.I2C = (*I2CBus)(nil)

// NewI2CBus wraps seq.
func NewI2CBus(seq Sequencer) *I2CBus {
	return &I2CBus{seq: seq}
}

// Tx writes w and then reads len(r) bytes, with a repeated start in between
// when both are non-empty. An address outside 1-127 is rejected before the
// bus is touched.
func (b *I2CBus) Tx(addr uint16, w, r []byte) error {
	if addr == 0 || addr > 0x7f {
		return ErrBadSlaveAddress
	}
	a := I2CAddress(addr)
	err := b.tx(a, w, r)
	b.seq.Stop()
	return err
}

func (b *I2CBus) tx(addr I2CAddress, w, r []byte) error {
	if len(w) > 0 || len(r) == 0 {
		if err := b.begin(addr, Write); err != nil {
			return err
		}
		for i, c := range w {
			if st := b.seq.SendByte(c); st != StatusDataSentAck {
				// The last byte may legitimately be NACKed by a full slave.
				if st == StatusDataSentNack && i == len(w)-1 {
					break
				}
				return &BusError{Phase: "write byte " + strconv.Itoa(i), Addr: addr, Status: st}
			}
		}
	}
	if len(r) == 0 {
		return nil
	}
	if err := b.begin(addr, Read); err != nil {
		return err
	}
	for i := range r {
		if i == len(r)-1 {
			r[i] = b.seq.ReadByteNack()
		} else {
			r[i] = b.seq.ReadByteAck()
		}
	}
	return nil
}

func (b *I2CBus) begin(addr I2CAddress, dir Direction) error {
	if st := b.seq.Start(); st != StatusStart && st != StatusRepeatedStart {
		return &BusError{Phase: "start", Addr: addr, Status: st}
	}
	want := StatusSLAWAck
	if dir == Read {
		want = StatusSLARAck
	}
	st, err := b.seq.AddressSlave(addr, dir)
	if err != nil {
		return err
	}
	if st != want {
		return &BusError{Phase: "address " + dir.String(), Addr: addr, Status: st}
	}
	return nil
}

// ReadRegister reads len(buf) bytes starting at register reg.
func (b *I2CBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

// WriteRegister writes buf starting at register reg.
func (b *I2CBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	w := make([]byte, 0, len(buf)+1)
	w = append(w, reg)
	w = append(w, buf...)
	return b.Tx(uint16(addr), w, nil)
}

// SPIBus adapts the SPI controller to the TinyGo driver interface. Chip
// select stays with the caller, as TinyGo drivers expect.
type SPIBus struct {
	spi *SPI
}

var _ drivers.SPI = (*SPIBus)(nil)

// NewSPIBus wraps spi.
func NewSPIBus(spi *SPI) *SPIBus {
	return &SPIBus{spi: spi}
}

// Tx exchanges w for r byte by byte. Either may be nil; a nil w clocks out
// zeros, a nil r discards what comes back.
func (b *SPIBus) Tx(w, r []byte) error {
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	if w != nil && r != nil && len(w) != len(r) {
		return errTxLength
	}
	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		}
		if r != nil {
			r[i] = b.spi.Transfer(out)
		} else {
			b.spi.Send(out)
		}
	}
	return nil
}

// Transfer exchanges a single byte.
func (b *SPIBus) Transfer(c byte) (byte, error) {
	return b.spi.Transfer(c), nil
}

var errTxLength = newError(0, "spi: tx and rx buffer lengths must match")
