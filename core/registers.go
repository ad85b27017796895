package core

import "strconv"

// Reg names an 8-bit peripheral register on the ATmega SPI, TWI and port B
// register sets.
type Reg uint8

const (
	SPCR Reg = iota // SPI control
	SPSR            // SPI status (SPIF, WCOL, SPI2X)
	SPDR            // SPI data
	TWBR            // TWI bit rate
	TWSR            // TWI status + prescaler
	TWAR            // TWI own slave address
	TWDR            // TWI data
	TWCR            // TWI control
	DDRB            // Port B data direction
	PORTB           // Port B output / pull-up
	PINB            // Port B input

	NumRegs int = iota
)

var regNames = [...]string{
	SPCR:  "SPCR",
	SPSR:  "SPSR",
	SPDR:  "SPDR",
	TWBR:  "TWBR",
	TWSR:  "TWSR",
	TWAR:  "TWAR",
	TWDR:  "TWDR",
	TWCR:  "TWCR",
	DDRB:  "DDRB",
	PORTB: "PORTB",
	PINB:  "PINB",
}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "REG(" + strconv.Itoa(int(r)) + ")"
}

// Valid reports whether r names a known register.
func (r Reg) Valid() bool {
	return int(r) < NumRegs
}

// RegByName looks up a register by its datasheet name.
func RegByName(name string) (Reg, bool) {
	for i, n := range regNames {
		if n == name {
			return Reg(i), true
		}
	}
	return 0, false
}

// SPCR bits
const (
	SPR0 = 1 << 0 // divider select, low
	SPR1 = 1 << 1 // divider select, high
	CPHA = 1 << 2 // clock phase
	CPOL = 1 << 3 // clock polarity
	MSTR = 1 << 4 // master role
	DORD = 1 << 5 // data order, 1 = LSB first
	SPE  = 1 << 6 // peripheral enable
	SPIE = 1 << 7 // interrupt enable
)

// SPSR bits
const (
	SPI2X = 1 << 0 // speed doubling
	WCOL  = 1 << 6 // write collision
	SPIF  = 1 << 7 // transfer complete; cleared by reading SPDR
)

// TWCR bits
const (
	TWIE  = 1 << 0 // interrupt enable
	TWEN  = 1 << 2 // peripheral enable
	TWWC  = 1 << 3 // write collision
	TWSTO = 1 << 4 // stop condition
	TWSTA = 1 << 5 // start condition
	TWEA  = 1 << 6 // acknowledge enable
	TWINT = 1 << 7 // operation complete; writing 1 clears it and starts the next action
)

// TWSR / TWAR fields
const (
	TWPS0 = 1 << 0
	TWPS1 = 1 << 1

	// TWStatusMask keeps the status code and drops the prescaler bits.
	TWStatusMask = 0xF8

	TWGCE = 1 << 0 // general call recognition
)

// Port B pin assignment of the SPI controller (ATmega2560 / ATmega32U4).
const (
	PinSS   Pin = 0
	PinSCK  Pin = 1
	PinMOSI Pin = 2
	PinMISO Pin = 3
)

// Registers is the register access capability every driver in this package
// is built on. The target implements it over memory-mapped I/O, tests over
// a simulated peripheral. Reads may have hardware side effects (reading SPDR
// clears SPIF), so implementations must not cache.
type Registers interface {
	Read(r Reg) uint8
	Write(r Reg, v uint8)
}

// setBits performs a read-modify-write that sets mask in r.
func setBits(regs Registers, r Reg, mask uint8) {
	regs.Write(r, regs.Read(r)|mask)
}

// clearBits performs a read-modify-write that clears mask in r.
func clearBits(regs Registers, r Reg, mask uint8) {
	regs.Write(r, regs.Read(r)&^mask)
}
