//go:build avr

package main

import (
	"device/avr"
	"runtime/volatile"

	"avrbus/core"
)

// mmio maps the register names the core drivers use onto the ATmega's
// memory-mapped I/O registers.
type mmio [core.NumRegs]*volatile.Register8

func newMMIO() *mmio {
	return &mmio{
		core.SPCR:  avr.SPCR,
		core.SPSR:  avr.SPSR,
		core.SPDR:  avr.SPDR,
		core.TWBR:  avr.TWBR,
		core.TWSR:  avr.TWSR,
		core.TWAR:  avr.TWAR,
		core.TWDR:  avr.TWDR,
		core.TWCR:  avr.TWCR,
		core.DDRB:  avr.DDRB,
		core.PORTB: avr.PORTB,
		core.PINB:  avr.PINB,
	}
}

func (m *mmio) Read(r core.Reg) uint8 {
	return m[r].Get()
}

func (m *mmio) Write(r core.Reg, v uint8) {
	m[r].Set(v)
}
