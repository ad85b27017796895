package core

// Pin identifies a bit of the GPIO port the SPI lines live on.
type Pin uint8

// GPIODriver is the pin-direction and pin-level collaborator used by the SPI
// configurator and the chip-select primitives. Pin mapping is owned by the
// platform; core code only says which logical line it wants driven.
type GPIODriver interface {
	// ConfigureOutput makes pin a push-pull output.
	ConfigureOutput(pin Pin) error

	// ConfigureInputPullUp makes pin an input with its pull-up enabled.
	ConfigureInputPullUp(pin Pin) error

	// SetPin drives an output pin high (true) or low (false).
	SetPin(pin Pin, high bool) error

	// GetPin reads the level currently present on pin.
	GetPin(pin Pin) (bool, error)
}

// PortB drives port B through the DDRB/PORTB/PINB registers.
type PortB struct {
	Regs Registers
}

// NewPortB returns a GPIO driver for port B on regs.
func NewPortB(regs Registers) *PortB {
	return &PortB{Regs: regs}
}

func (p *PortB) ConfigureOutput(pin Pin) error {
	if pin > 7 {
		return ErrInvalidPin
	}
	setBits(p.Regs, DDRB, 1<<pin)
	return nil
}

func (p *PortB) ConfigureInputPullUp(pin Pin) error {
	if pin > 7 {
		return ErrInvalidPin
	}
	clearBits(p.Regs, DDRB, 1<<pin)
	setBits(p.Regs, PORTB, 1<<pin)
	return nil
}

func (p *PortB) SetPin(pin Pin, high bool) error {
	if pin > 7 {
		return ErrInvalidPin
	}
	if high {
		setBits(p.Regs, PORTB, 1<<pin)
	} else {
		clearBits(p.Regs, PORTB, 1<<pin)
	}
	return nil
}

func (p *PortB) GetPin(pin Pin) (bool, error) {
	if pin > 7 {
		return false, ErrInvalidPin
	}
	return p.Regs.Read(PINB)&(1<<pin) != 0, nil
}
