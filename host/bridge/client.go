// Package bridge is the host side of the bus bridge: a client that runs the
// SPI and TWI primitives on the firmware over the framed serial link.
package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"avrbus/core"
	"avrbus/host/serial"
	"avrbus/protocol"
)

// MaxTransferChunk is the largest SPI payload sent in one frame.
const MaxTransferChunk = 48

// ErrDictionaryMismatch is returned by Identify when the firmware was built
// with a different command table.
var ErrDictionaryMismatch = errors.New("bridge: firmware dictionary does not match host command table")

// Client issues bridge commands. Calls are serialized; each one waits for
// the firmware's response.
type Client struct {
	transport *protocol.HostTransport
	table     *core.CommandRegistry
	timeout   time.Duration

	mu         sync.Mutex
	dictionary []byte

	closers []func() error
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets how long each command waits for its ACK and response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient starts a client on an open link.
func NewClient(port io.ReadWriteCloser, opts ...Option) *Client {
	c := &Client{
		transport: protocol.NewHostTransport(port),
		table:     core.NewBridgeRegistry(),
		timeout:   time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect opens the serial device and starts a client on it.
func Connect(cfg *serial.Config, opts ...Option) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := port.Flush(); err != nil {
		slog.Warn("Flushing serial port failed", "device", cfg.Device, "error", err)
	}
	slog.Info("Serial link open", "device", cfg.Device, "baud", cfg.Baud)
	return NewClient(port, opts...), nil
}

// Close stops the link.
func (c *Client) Close() error {
	err := c.transport.Close()
	for _, fn := range c.closers {
		if cerr := fn(); cerr != nil && err == nil {
			err = cerr
		}
	}
	c.closers = nil
	return err
}

// Table returns the host's copy of the command table.
func (c *Client) Table() *core.CommandRegistry {
	return c.table
}

// Identify downloads the firmware dictionary and checks it against the
// host command table.
func (c *Client) Identify() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dict bytes.Buffer
	for {
		args := protocol.AppendUint(nil, uint32(dict.Len()))
		args = protocol.AppendUint(args, core.IdentifyChunkSize)
		msg, err := c.roundTrip(core.CmdIdentify, args, core.CmdIdentifyResponse)
		if err != nil {
			return fmt.Errorf("identify at offset %d: %w", dict.Len(), err)
		}
		payload := msg.Args
		offset, err := protocol.DecodeUint(&payload)
		if err != nil {
			return fmt.Errorf("identify: %w", err)
		}
		if offset != uint32(dict.Len()) {
			return fmt.Errorf("identify: offset mismatch: expected %d, got %d", dict.Len(), offset)
		}
		chunk, err := protocol.DecodeBytes(&payload)
		if err != nil {
			return fmt.Errorf("identify: %w", err)
		}
		if len(chunk) == 0 {
			break
		}
		dict.Write(chunk)
	}
	c.dictionary = dict.Bytes()
	slog.Debug("Dictionary retrieved", "bytes", len(c.dictionary))

	if string(c.dictionary) != core.BridgeDictionary(c.table) {
		return ErrDictionaryMismatch
	}
	return nil
}

// Dictionary returns the text retrieved by the last Identify.
func (c *Client) Dictionary() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dictionary
}

func (c *Client) lookup(name string) (uint16, error) {
	cmd, ok := c.table.Lookup(name)
	if !ok {
		return 0, fmt.Errorf("unknown command: %s", name)
	}
	return cmd.ID, nil
}

// roundTrip sends one command and waits for the named response, skipping
// anything else the firmware sent in between. Callers hold c.mu.
func (c *Client) roundTrip(cmd string, args []byte, resp string) (protocol.Message, error) {
	cmdID, err := c.lookup(cmd)
	if err != nil {
		return protocol.Message{}, err
	}
	respID, err := c.lookup(resp)
	if err != nil {
		return protocol.Message{}, err
	}

	if err := c.transport.Send(cmdID, args, c.timeout); err != nil {
		return protocol.Message{}, fmt.Errorf("%s: %w", cmd, err)
	}
	deadline := time.Now().Add(c.timeout)
	for {
		wait := time.Until(deadline)
		if wait <= 0 {
			return protocol.Message{}, fmt.Errorf("%s: no %s response", cmd, resp)
		}
		msg, err := c.transport.Receive(wait)
		if err != nil {
			return protocol.Message{}, fmt.Errorf("%s: %w", cmd, err)
		}
		if msg.ID == respID {
			return msg, nil
		}
		slog.Debug("Skipping unexpected response", "cmd", cmd, "id", msg.ID)
	}
}

// call sends a command whose reply is the generic result response and maps
// its code to an error.
func (c *Client) call(cmd string, args []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.roundTrip(cmd, args, core.CmdResult)
	if err != nil {
		return err
	}
	vals, err := decodeUints(msg.Args, 2)
	if err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	if want, _ := c.lookup(cmd); vals[0] != uint32(want) {
		return fmt.Errorf("%s: result for command %d", cmd, vals[0])
	}
	return core.ErrorForCode(uint8(vals[1]))
}

// statusCall sends a command answered by i2c_status.
func (c *Client) statusCall(cmd string, args []byte) (core.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.roundTrip(cmd, args, core.CmdI2CStatus)
	if err != nil {
		return 0, err
	}
	vals, err := decodeUints(msg.Args, 2)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	return core.Status(vals[1]), core.ErrorForCode(uint8(vals[0]))
}

func decodeUints(args []byte, n int) ([]uint32, error) {
	vals := make([]uint32, n)
	for i := range vals {
		v, err := protocol.DecodeUint(&args)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

// ConfigureSPI validates and applies cfg on the firmware.
func (c *Client) ConfigureSPI(cfg core.SPIConfig) error {
	args := protocol.AppendUint(nil, uint32(cfg.Divider))
	args = protocol.AppendUint(args, uint32(cfg.Mode))
	args = protocol.AppendUint(args, uint32(core.SPIFlags(cfg)))
	return c.call(core.CmdSPIConfigure, args)
}

// Select pulls cs low.
func (c *Client) Select(cs core.Pin) error {
	return c.call(core.CmdSPISelect, protocol.AppendUint(nil, uint32(cs)))
}

// Deselect drives cs high.
func (c *Client) Deselect(cs core.Pin) error {
	return c.call(core.CmdSPIDeselect, protocol.AppendUint(nil, uint32(cs)))
}

// Transfer exchanges tx for the same number of bytes, split into frames of
// at most MaxTransferChunk.
func (c *Client) Transfer(tx []byte) ([]byte, error) {
	rx := make([]byte, 0, len(tx))
	for len(tx) > 0 {
		n := min(len(tx), MaxTransferChunk)
		part, err := c.transferChunk(tx[:n])
		if err != nil {
			return rx, err
		}
		if len(part) != n {
			return rx, fmt.Errorf("spi_transfer: sent %d bytes, got %d back", n, len(part))
		}
		rx = append(rx, part...)
		tx = tx[n:]
	}
	return rx, nil
}

func (c *Client) transferChunk(tx []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.roundTrip(core.CmdSPITransfer, protocol.AppendBytes(nil, tx), core.CmdSPITransferResponse)
	if err != nil {
		return nil, err
	}
	payload := msg.Args
	rx, err := protocol.DecodeBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("spi_transfer: %w", err)
	}
	return append([]byte(nil), rx...), nil
}

// Send shifts tx out and discards what comes back.
func (c *Client) Send(tx []byte) error {
	for len(tx) > 0 {
		n := min(len(tx), MaxTransferChunk)
		if err := c.call(core.CmdSPISend, protocol.AppendBytes(nil, tx[:n])); err != nil {
			return err
		}
		tx = tx[n:]
	}
	return nil
}

// ConfigureI2C sets the bit rate and own address on the firmware.
func (c *Client) ConfigureI2C(cfg core.I2CConfig) error {
	var flags uint32
	if cfg.GeneralCall {
		flags |= core.I2CFlagGeneralCall
	}
	if cfg.InterruptEnable {
		flags |= core.I2CFlagInterrupt
	}
	args := protocol.AppendUint(nil, cfg.CoreClockHz)
	args = protocol.AppendUint(args, cfg.FrequencyHz)
	args = protocol.AppendUint(args, uint32(cfg.OwnAddress))
	args = protocol.AppendUint(args, flags)
	return c.call(core.CmdI2CConfigure, args)
}

// Start issues a start or repeated start.
func (c *Client) Start() (core.Status, error) {
	return c.statusCall(core.CmdI2CStart, nil)
}

// AddressSlave sends SLA+R/W. Address and direction are checked locally
// first, so an invalid request never reaches the link.
func (c *Client) AddressSlave(addr core.I2CAddress, dir core.Direction) (core.Status, error) {
	if _, err := core.SLA(addr, dir); err != nil {
		return 0, err
	}
	args := protocol.AppendUint(nil, uint32(addr))
	args = protocol.AppendUint(args, uint32(dir))
	return c.statusCall(core.CmdI2CAddress, args)
}

// SendByte transmits one data byte.
func (c *Client) SendByte(b byte) (core.Status, error) {
	return c.statusCall(core.CmdI2CWrite, protocol.AppendUint(nil, uint32(b)))
}

// ReadByteAck receives a byte and acknowledges it.
func (c *Client) ReadByteAck() (byte, core.Status, error) {
	return c.read(true)
}

// ReadByteNack receives a byte without acknowledging it.
func (c *Client) ReadByteNack() (byte, core.Status, error) {
	return c.read(false)
}

func (c *Client) read(ack bool) (byte, core.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var a uint32
	if ack {
		a = 1
	}
	msg, err := c.roundTrip(core.CmdI2CRead, protocol.AppendUint(nil, a), core.CmdI2CReadResponse)
	if err != nil {
		return 0, 0, err
	}
	vals, err := decodeUints(msg.Args, 2)
	if err != nil {
		return 0, 0, fmt.Errorf("i2c_read: %w", err)
	}
	return byte(vals[0]), core.Status(vals[1]), nil
}

// Stop issues a stop condition.
func (c *Client) Stop() error {
	return c.call(core.CmdI2CStop, nil)
}

// Status reads the masked TWI status.
func (c *Client) Status() (core.Status, error) {
	return c.statusCall(core.CmdI2CGetStatus, nil)
}

// ReadReg reads a raw peripheral register.
func (c *Client) ReadReg(r core.Reg) (uint8, error) {
	if !r.Valid() {
		return 0, core.ErrBadRegister
	}
	c.mu.Lock()
	msg, err := c.roundTrip(core.CmdRegRead, protocol.AppendUint(nil, uint32(r)), core.CmdRegValue)
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}
	vals, err := decodeUints(msg.Args, 2)
	if err != nil {
		return 0, fmt.Errorf("reg_read: %w", err)
	}
	return uint8(vals[1]), nil
}

// WriteReg writes a raw peripheral register.
func (c *Client) WriteReg(r core.Reg, v uint8) error {
	args := protocol.AppendUint(nil, uint32(r))
	args = protocol.AppendUint(args, uint32(v))
	return c.call(core.CmdRegWrite, args)
}
