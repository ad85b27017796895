// I2C (TWI) master support: a blocking bus sequencer that exposes start,
// address, data and stop primitives and surfaces the raw status codes.
package core

// I2C sequences master transactions on the TWI peripheral. It does not
// interpret status codes; the caller decides how to react to a NACK or lost
// arbitration.
type I2C struct {
	regs Registers
	wait Waiter

	state BusState
	dir   Direction
}

// I2COption customizes an I2C sequencer.
type I2COption func(*I2C)

// WithI2CWaiter replaces the busy-wait used for TWINT.
func WithI2CWaiter(w Waiter) I2COption {
	return func(t *I2C) { t.wait = w }
}

// NewI2C returns a sequencer on regs. The peripheral is not touched until
// Configure or the first bus action.
func NewI2C(regs Registers, opts ...I2COption) *I2C {
	t := &I2C{regs: regs, wait: BusyWait{}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// BitRate computes TWBR for the target SCL frequency with prescaler 1:
// TWBR = (coreClockHz / targetHz - 16) / 2.
func BitRate(coreClockHz, targetHz uint32) (uint8, error) {
	if targetHz == 0 || coreClockHz/targetHz < 16 {
		return 0, ErrBitRate
	}
	twbr := (coreClockHz/targetHz - 16) / 2
	if twbr > 0xff {
		return 0, ErrBitRate
	}
	return uint8(twbr), nil
}

// Configure sets the bit rate, optional own address and enables the
// peripheral. Everything is validated before the first write.
func (t *I2C) Configure(cfg I2CConfig) error {
	coreClock := cfg.CoreClockHz
	if coreClock == 0 {
		coreClock = DefaultCoreClockHz
	}
	freq := cfg.FrequencyHz
	if freq == 0 {
		freq = DefaultI2CFrequency
	}
	twbr, err := BitRate(coreClock, freq)
	if err != nil {
		return err
	}
	var twar uint8
	if cfg.OwnAddress != 0 {
		if twar, err = ownAddressBits(cfg.OwnAddress, cfg.GeneralCall); err != nil {
			return err
		}
	}

	ctl := uint8(TWEN)
	if cfg.InterruptEnable {
		ctl |= TWIE
	}
	critical(func() {
		t.regs.Write(TWSR, 0)
		t.regs.Write(TWBR, twbr)
		if cfg.OwnAddress != 0 {
			t.regs.Write(TWAR, twar)
		}
		t.regs.Write(TWCR, ctl)
	})
	t.state = BusIdle
	RecordBusEvent(EvtI2CConfigure, twbr, twar)
	return nil
}

// SetOwnAddress stores the address this device responds to as a slave. It
// carries no protocol logic.
func (t *I2C) SetOwnAddress(addr I2CAddress, generalCall bool) error {
	twar, err := ownAddressBits(addr, generalCall)
	if err != nil {
		return err
	}
	t.regs.Write(TWAR, twar)
	return nil
}

func ownAddressBits(addr I2CAddress, generalCall bool) (uint8, error) {
	if addr == 0 || addr > 0x7f {
		return 0, ErrBadSlaveAddress
	}
	twar := uint8(addr) << 1
	if generalCall {
		twar |= TWGCE
	}
	return twar, nil
}

// SLA composes the address byte sent after a start condition.
func SLA(addr I2CAddress, dir Direction) (uint8, error) {
	if addr == 0 || addr > 0x7f {
		return 0, ErrBadSlaveAddress
	}
	if dir > Read {
		return 0, ErrBadDirectionBit
	}
	return uint8(addr)<<1 | uint8(dir), nil
}

// command clears TWINT with the given extra control bits and waits for the
// peripheral to set it again.
func (t *I2C) command(bits uint8) {
	t.regs.Write(TWCR, TWINT|TWEN|bits)
	pollUntilSet(t.regs, t.wait, TWCR, TWINT)
}

// Start issues a start condition, or a repeated start when a transaction
// is already in progress.
func (t *I2C) Start() Status {
	t.command(TWSTA)
	t.state = BusStartSent
	st := t.Status()
	RecordBusEvent(EvtI2CStart, 0, uint8(st))
	return st
}

// AddressSlave transmits SLA+R/W. Invalid addresses and direction bits are
// rejected before the peripheral is touched.
func (t *I2C) AddressSlave(addr I2CAddress, dir Direction) (Status, error) {
	sla, err := SLA(addr, dir)
	if err != nil {
		return 0, err
	}
	t.regs.Write(TWDR, sla)
	t.command(0)
	t.state = BusAddressed
	t.dir = dir
	st := t.Status()
	RecordBusEvent(EvtI2CAddress, sla, uint8(st))
	return st, nil
}

// SendByte transmits one data byte to an addressed slave.
func (t *I2C) SendByte(data byte) Status {
	t.regs.Write(TWDR, data)
	t.command(0)
	t.state = BusDataPhase
	st := t.Status()
	RecordBusEvent(EvtI2CWrite, data, uint8(st))
	return st
}

// ReadByteAck receives one byte and acknowledges it, asking the slave for
// more.
func (t *I2C) ReadByteAck() byte {
	return t.receive(TWEA)
}

// ReadByteNack receives one byte without acknowledging it, ending the read.
func (t *I2C) ReadByteNack() byte {
	return t.receive(0)
}

func (t *I2C) receive(ack uint8) byte {
	t.command(ack)
	t.state = BusDataPhase
	b := t.regs.Read(TWDR)
	RecordBusEvent(EvtI2CRead, ack, b)
	return b
}

// Stop issues a stop condition and returns immediately. The peripheral does
// not set TWINT for a stop, so there is nothing to wait on; the caller owns
// any settling delay before the next start.
func (t *I2C) Stop() {
	t.regs.Write(TWCR, TWINT|TWEN|TWSTO)
	t.state = BusIdle
	RecordBusEvent(EvtI2CStop, 0, 0)
}

// Status reads TWSR with the prescaler bits masked off.
func (t *I2C) Status() Status {
	return Status(t.regs.Read(TWSR) & TWStatusMask)
}

// State returns the transaction phase as driven by the caller.
func (t *I2C) State() BusState {
	return t.state
}

// Direction returns the R/W bit of the last addressed slave.
func (t *I2C) Direction() Direction {
	return t.dir
}
