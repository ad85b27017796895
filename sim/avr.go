// Package sim models the ATmega SPI and TWI peripherals in software, so the
// drivers in core can run against something that behaves like the silicon:
// SPIF is cleared by reading SPDR, TWINT is set after every bus action except
// a stop, and TWSR carries the datasheet status codes.
package sim

import "avrbus/core"

// Write records one register write.
type Write struct {
	Reg   core.Reg
	Value uint8
}

type twiState uint8

const (
	twiIdle twiState = iota
	twiStarted
	twiTransmit
	twiReceive
	twiNacked
)

// AVR is a simulated register file. It is not safe for concurrent use, just
// like the hardware it stands in for.
type AVR struct {
	regs [core.NumRegs]uint8
	log  []Write

	spiRx     uint8
	spiTarget SPITarget
	spiCS     core.Pin

	twi        twiState
	twiTarget  I2CTarget
	i2cTargets map[core.I2CAddress]I2CTarget
	loseArb    bool
	stops      int
}

// New returns a simulator in its reset state.
func New() *AVR {
	a := &AVR{i2cTargets: make(map[core.I2CAddress]I2CTarget)}
	a.regs[core.TWSR] = uint8(core.StatusNoInfo)
	a.regs[core.TWAR] = 0xFE
	return a
}

// AttachSPI connects a slave whose chip select is cs on port B.
func (a *AVR) AttachSPI(t SPITarget, cs core.Pin) {
	a.spiTarget = t
	a.spiCS = cs
}

// AttachI2C connects a slave at addr.
func (a *AVR) AttachI2C(addr core.I2CAddress, t I2CTarget) {
	a.i2cTargets[addr] = t
}

// LoseArbitration makes the next start or address phase report lost
// arbitration, as if another master had won the bus.
func (a *AVR) LoseArbitration() {
	a.loseArb = true
}

// Stops returns how many stop conditions were put on the bus.
func (a *AVR) Stops() int {
	return a.stops
}

// BusBusy reports whether a TWI transaction is open.
func (a *AVR) BusBusy() bool {
	return a.twi != twiIdle
}

// Peek returns a register value without read side effects.
func (a *AVR) Peek(r core.Reg) uint8 {
	return a.regs[r]
}

// Writes returns every register write since New or the last ResetLog.
func (a *AVR) Writes() []Write {
	return append([]Write(nil), a.log...)
}

// WritesTo returns the values written to r, in order.
func (a *AVR) WritesTo(r core.Reg) []uint8 {
	var vals []uint8
	for _, w := range a.log {
		if w.Reg == r {
			vals = append(vals, w.Value)
		}
	}
	return vals
}

// ResetLog clears the write log.
func (a *AVR) ResetLog() {
	a.log = a.log[:0]
}

// Read implements core.Registers.
func (a *AVR) Read(r core.Reg) uint8 {
	switch r {
	case core.SPDR:
		a.regs[core.SPSR] &^= core.SPIF | core.WCOL
		return a.spiRx
	case core.PINB:
		return a.regs[core.PORTB]
	}
	return a.regs[r]
}

// Write implements core.Registers.
func (a *AVR) Write(r core.Reg, v uint8) {
	a.log = append(a.log, Write{Reg: r, Value: v})

	switch r {
	case core.SPSR:
		a.regs[r] = a.regs[r]&^core.SPI2X | v&core.SPI2X
	case core.SPDR:
		a.regs[r] = v
		a.spiShift(v)
	case core.TWSR:
		a.regs[r] = a.regs[r]&core.TWStatusMask | v&(core.TWPS1|core.TWPS0)
	case core.TWCR:
		a.twiControl(v)
	case core.PINB:
		a.regs[core.PORTB] ^= v
	default:
		a.regs[r] = v
	}
}

func (a *AVR) spiShift(mosi uint8) {
	ctl := a.regs[core.SPCR]
	if ctl&core.SPE == 0 || ctl&core.MSTR == 0 {
		// nothing clocks the shift register
		return
	}
	miso := uint8(0xFF)
	if a.spiTarget != nil && a.regs[core.PORTB]&(1<<a.spiCS) == 0 {
		miso = a.spiTarget.Exchange(mosi)
	}
	a.spiRx = miso
	a.regs[core.SPSR] |= core.SPIF
}

func (a *AVR) setStatus(s core.Status) {
	a.regs[core.TWSR] = uint8(s) | a.regs[core.TWSR]&(core.TWPS1|core.TWPS0)
}

func (a *AVR) twiControl(v uint8) {
	if v&core.TWINT == 0 {
		// No action; TWINT itself cannot be set by software.
		a.regs[core.TWCR] = v | a.regs[core.TWCR]&core.TWINT
		return
	}
	a.regs[core.TWCR] = v &^ core.TWINT
	if v&core.TWEN == 0 {
		return
	}

	switch {
	case v&core.TWSTA != 0:
		a.twiStart()
	case v&core.TWSTO != 0:
		a.twiStop()
		// Hardware clears TWSTO and leaves TWINT alone.
		a.regs[core.TWCR] &^= core.TWSTO
		return
	default:
		a.twiStep(v&core.TWEA != 0)
	}
	a.regs[core.TWCR] |= core.TWINT
}

func (a *AVR) twiStart() {
	if a.loseArb {
		a.loseArb = false
		a.endTransaction()
		a.setStatus(core.StatusArbitrationLost)
		return
	}
	if a.twi == twiIdle {
		a.setStatus(core.StatusStart)
	} else {
		a.setStatus(core.StatusRepeatedStart)
	}
	a.twi = twiStarted
	a.twiTarget = nil
}

func (a *AVR) twiStop() {
	a.stops++
	a.endTransaction()
	a.setStatus(core.StatusNoInfo)
}

func (a *AVR) endTransaction() {
	if a.twiTarget != nil {
		a.twiTarget.Stop()
		a.twiTarget = nil
	}
	a.twi = twiIdle
}

func (a *AVR) twiStep(ack bool) {
	switch a.twi {
	case twiStarted:
		a.twiAddress(a.regs[core.TWDR])
	case twiTransmit:
		if a.twiTarget.WriteByte(a.regs[core.TWDR]) {
			a.setStatus(core.StatusDataSentAck)
		} else {
			a.setStatus(core.StatusDataSentNack)
		}
	case twiReceive:
		a.regs[core.TWDR] = a.twiTarget.ReadByte(ack)
		if ack {
			a.setStatus(core.StatusDataRecvAck)
		} else {
			a.setStatus(core.StatusDataRecvNack)
		}
	case twiNacked:
		// Nobody is listening; SDA floats high and nothing acknowledges.
		a.regs[core.TWDR] = 0xFF
		a.setStatus(core.StatusDataSentNack)
	default:
		a.setStatus(core.StatusBusError)
	}
}

func (a *AVR) twiAddress(sla uint8) {
	if a.loseArb {
		a.loseArb = false
		a.endTransaction()
		a.setStatus(core.StatusArbitrationLost)
		return
	}
	addr := core.I2CAddress(sla >> 1)
	read := sla&1 != 0

	t, ok := a.i2cTargets[addr]
	acked := ok && t.Address(read)
	switch {
	case acked && read:
		a.twi, a.twiTarget = twiReceive, t
		a.setStatus(core.StatusSLARAck)
	case acked:
		a.twi, a.twiTarget = twiTransmit, t
		a.setStatus(core.StatusSLAWAck)
	case read:
		a.twi = twiNacked
		a.setStatus(core.StatusSLARNack)
	default:
		a.twi = twiNacked
		a.setStatus(core.StatusSLAWNack)
	}
}
