package core

import "strconv"

// I2CAddress is a 7-bit I2C device address.
type I2CAddress uint8

// Direction is the R/W bit appended to a slave address.
type Direction uint8

const (
	Write Direction = 0
	Read  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case Write:
		return "W"
	case Read:
		return "R"
	}
	return "dir(" + strconv.Itoa(int(d)) + ")"
}

// Status is the TWI status register with the prescaler bits masked off.
type Status uint8

// Master mode status codes
const (
	StatusBusError        Status = 0x00
	StatusStart           Status = 0x08
	StatusRepeatedStart   Status = 0x10
	StatusSLAWAck         Status = 0x18
	StatusSLAWNack        Status = 0x20
	StatusDataSentAck     Status = 0x28
	StatusDataSentNack    Status = 0x30
	StatusArbitrationLost Status = 0x38
	StatusSLARAck         Status = 0x40
	StatusSLARNack        Status = 0x48
	StatusDataRecvAck     Status = 0x50
	StatusDataRecvNack    Status = 0x58
	StatusNoInfo          Status = 0xF8
)

var statusNames = map[Status]string{
	StatusBusError:        "bus error",
	StatusStart:           "start sent",
	StatusRepeatedStart:   "repeated start sent",
	StatusSLAWAck:         "SLA+W sent, ACK received",
	StatusSLAWNack:        "SLA+W sent, NACK received",
	StatusDataSentAck:     "data sent, ACK received",
	StatusDataSentNack:    "data sent, NACK received",
	StatusArbitrationLost: "arbitration lost",
	StatusSLARAck:         "SLA+R sent, ACK received",
	StatusSLARNack:        "SLA+R sent, NACK received",
	StatusDataRecvAck:     "data received, ACK returned",
	StatusDataRecvNack:    "data received, NACK returned",
	StatusNoInfo:          "no state information",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "status 0x" + hexByte(uint8(s))
}

// Nack reports whether the status records a NACK from the slave.
func (s Status) Nack() bool {
	return s == StatusSLAWNack || s == StatusSLARNack || s == StatusDataSentNack
}

// BusState tracks the transaction phase driven by the caller.
type BusState uint8

const (
	BusIdle BusState = iota
	BusStartSent
	BusAddressed
	BusDataPhase
)

func (s BusState) String() string {
	switch s {
	case BusIdle:
		return "idle"
	case BusStartSent:
		return "start"
	case BusAddressed:
		return "addressed"
	case BusDataPhase:
		return "data"
	}
	return "unknown"
}

// I2CConfig configures the TWI peripheral.
type I2CConfig struct {
	CoreClockHz uint32 // F_CPU
	FrequencyHz uint32 // SCL target

	// OwnAddress is the slave address this device answers to; 0 leaves TWAR
	// untouched.
	OwnAddress  I2CAddress
	GeneralCall bool

	InterruptEnable bool
}

// Default bus settings for a 16 MHz part on a standard-mode bus.
const (
	DefaultCoreClockHz  = 16000000
	DefaultI2CFrequency = 100000
)
