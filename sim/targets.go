package sim

import "github.com/gammazero/deque"

// SPITarget is a slave on the simulated SPI bus. Exchange is called once per
// byte while the slave is selected and returns the byte it shifts out.
type SPITarget interface {
	Exchange(mosi byte) byte
}

// SPIFunc adapts a function to SPITarget.
type SPIFunc func(mosi byte) byte

func (f SPIFunc) Exchange(mosi byte) byte { return f(mosi) }

// EchoTarget shifts back the byte it latched on the previous exchange, like
// a slave whose shift register is looped back on itself.
type EchoTarget struct {
	latched  byte
	Received []byte
}

func (e *EchoTarget) Exchange(mosi byte) byte {
	out := e.latched
	e.latched = mosi
	e.Received = append(e.Received, mosi)
	return out
}

// ScriptedTarget answers with queued bytes and Idle once the queue runs dry.
type ScriptedTarget struct {
	Idle     byte
	Received []byte

	replies deque.Deque[byte]
}

// Queue appends replies.
func (s *ScriptedTarget) Queue(b ...byte) {
	for _, c := range b {
		s.replies.PushBack(c)
	}
}

// Pending returns the number of replies not yet shifted out.
func (s *ScriptedTarget) Pending() int {
	return s.replies.Len()
}

func (s *ScriptedTarget) Exchange(mosi byte) byte {
	s.Received = append(s.Received, mosi)
	if s.replies.Len() == 0 {
		return s.Idle
	}
	return s.replies.PopFront()
}

// I2CTarget is a slave on the simulated TWI bus.
type I2CTarget interface {
	// Address is called for SLA+R/W and returns whether to ACK.
	Address(read bool) bool
	// WriteByte receives a byte from the master and returns whether to ACK.
	WriteByte(b byte) bool
	// ReadByte returns the next byte for the master; ack is the master's
	// acknowledge for it.
	ReadByte(ack bool) byte
	// Stop ends the transaction, on a stop condition or lost arbitration.
	Stop()
}

// Memory is a 24Cxx-style EEPROM: the first byte written after SLA+W sets
// the word address, further bytes are stored and reads continue from the
// current address, wrapping at the end.
type Memory struct {
	Data []byte

	addr       int
	addrLoaded bool
}

// NewMemory returns a zero-filled memory of size bytes.
func NewMemory(size int) *Memory {
	return &Memory{Data: make([]byte, size)}
}

func (m *Memory) Address(read bool) bool {
	m.addrLoaded = read
	return true
}

func (m *Memory) WriteByte(b byte) bool {
	if !m.addrLoaded {
		m.addr = int(b) % len(m.Data)
		m.addrLoaded = true
		return true
	}
	m.Data[m.addr] = b
	m.addr = (m.addr + 1) % len(m.Data)
	return true
}

func (m *Memory) ReadByte(ack bool) byte {
	b := m.Data[m.addr]
	m.addr = (m.addr + 1) % len(m.Data)
	return b
}

func (m *Memory) Stop() {
	m.addrLoaded = false
}

// ScriptedI2C acknowledges its address, records writes and answers reads
// from a queue. NackWritesAfter > 0 makes it NACK every write byte past that
// count within a transaction.
type ScriptedI2C struct {
	Written         []byte
	NackWritesAfter int
	Transactions    int

	reads   deque.Deque[byte]
	written int
}

// Queue appends bytes to be returned by reads.
func (s *ScriptedI2C) Queue(b ...byte) {
	for _, c := range b {
		s.reads.PushBack(c)
	}
}

func (s *ScriptedI2C) Address(read bool) bool {
	return true
}

func (s *ScriptedI2C) WriteByte(b byte) bool {
	s.Written = append(s.Written, b)
	s.written++
	return s.NackWritesAfter == 0 || s.written <= s.NackWritesAfter
}

func (s *ScriptedI2C) ReadByte(ack bool) byte {
	if s.reads.Len() == 0 {
		return 0xFF
	}
	return s.reads.PopFront()
}

func (s *ScriptedI2C) Stop() {
	s.Transactions++
	s.written = 0
}
