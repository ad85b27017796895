package core

// Divider is the SCK prescaling factor relative to the core clock.
type Divider uint8

const (
	Div2   Divider = 2
	Div4   Divider = 4
	Div8   Divider = 8
	Div16  Divider = 16
	Div32  Divider = 32
	Div64  Divider = 64
	Div128 Divider = 128
)

// AllDividers lists every divider the controller can produce.
var AllDividers = []Divider{Div2, Div4, Div8, Div16, Div32, Div64, Div128}

// SPIMode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type SPIMode uint8

// CPHA reports the phase bit (bit 0 of the mode).
func (m SPIMode) CPHA() bool { return m&0x01 != 0 }

// CPOL reports the polarity bit (bit 1 of the mode).
func (m SPIMode) CPOL() bool { return m&0x02 != 0 }

// BitOrder selects which end of a byte is shifted out first.
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// SPIConfig holds the configuration for the SPI controller.
type SPIConfig struct {
	Divider         Divider
	Master          bool
	Mode            SPIMode
	DoubleSpeed     bool
	Order           BitOrder
	InterruptEnable bool
}

// SPIControl is the composed register pattern for a validated SPIConfig.
// It is always computed whole from a config, never edited field by field.
type SPIControl struct {
	control uint8 // SPCR
	status  uint8 // SPSR (SPI2X only)
}

// Control returns the SPCR value.
func (c SPIControl) Control() uint8 { return c.control }

// Status returns the SPSR value; only SPI2X is writable.
func (c SPIControl) Status() uint8 { return c.status }

// DividerBits returns the SPR1:SPR0 selection.
func (c SPIControl) DividerBits() uint8 { return c.control & (SPR1 | SPR0) }

// ModeBits returns the CPOL/CPHA bits folded back into a mode number.
func (c SPIControl) ModeBits() SPIMode {
	var m SPIMode
	if c.control&CPHA != 0 {
		m |= 0x01
	}
	if c.control&CPOL != 0 {
		m |= 0x02
	}
	return m
}
