package core

// Divider classes index the rows of spiControlTable.
const (
	divClass2_4 = iota
	divClass8_16
	divClass32
	divClass64_128
)

// spiControlTable holds SPR1:SPR0 plus CPOL:CPHA for every divider class and
// mode, laid out like the datasheet's SCK frequency table. Divider 64 shares
// the last row with 128 in both speed classes; SPI2X alone tells them apart.
var spiControlTable = [4][4]uint8{
	divClass2_4:    {0, CPHA, CPOL, CPOL | CPHA},
	divClass8_16:   {SPR0, SPR0 | CPHA, SPR0 | CPOL, SPR0 | CPOL | CPHA},
	divClass32:     {SPR1, SPR1 | CPHA, SPR1 | CPOL, SPR1 | CPOL | CPHA},
	divClass64_128: {SPR1 | SPR0, SPR1 | SPR0 | CPHA, SPR1 | SPR0 | CPOL, SPR1 | SPR0 | CPOL | CPHA},
}

func dividerClass(d Divider) (int, bool) {
	switch d {
	case Div2, Div4:
		return divClass2_4, true
	case Div8, Div16:
		return divClass8_16, true
	case Div32:
		return divClass32, true
	case Div64, Div128:
		return divClass64_128, true
	}
	return 0, false
}

// ValidateDivider reports whether d is legal for the requested speed class:
// {2, 8, 32, 64} with speed doubling, {4, 16, 64, 128} without.
func ValidateDivider(doubleSpeed bool, d Divider) error {
	switch d {
	case Div64:
		return nil
	case Div2, Div8, Div32:
		if doubleSpeed {
			return nil
		}
	case Div4, Div16, Div128:
		if !doubleSpeed {
			return nil
		}
	}
	return ErrSpeedMismatch
}

// tableBits returns the table cell for d and mode. Both must already be valid.
func tableBits(d Divider, mode SPIMode) uint8 {
	row, _ := dividerClass(d)
	return spiControlTable[row][mode]
}

// ControlPattern validates cfg and composes the register pattern for it.
// It touches no hardware.
func ControlPattern(cfg SPIConfig) (SPIControl, error) {
	if cfg.Mode > 3 {
		return SPIControl{}, ErrInvalidMode
	}
	if err := ValidateDivider(cfg.DoubleSpeed, cfg.Divider); err != nil {
		return SPIControl{}, err
	}

	ctl := tableBits(cfg.Divider, cfg.Mode)
	if cfg.Master {
		ctl |= MSTR
	}
	if cfg.Order == LSBFirst {
		ctl |= DORD
	}
	if cfg.InterruptEnable {
		ctl |= SPIE
	}
	ctl |= SPE

	var st uint8
	if cfg.DoubleSpeed {
		st = SPI2X
	}
	return SPIControl{control: ctl, status: st}, nil
}
