package core

import (
	"errors"
	"io"

	"avrbus/protocol"
)

// Bridge command names. The order of bridgeTable fixes the command IDs on
// both ends of the link.
const (
	CmdIdentifyResponse    = "identify_response"
	CmdIdentify            = "identify"
	CmdResult              = "result"
	CmdSPIConfigure        = "spi_configure"
	CmdSPISelect           = "spi_select"
	CmdSPIDeselect         = "spi_deselect"
	CmdSPITransfer         = "spi_transfer"
	CmdSPITransferResponse = "spi_transfer_response"
	CmdSPISend             = "spi_send"
	CmdI2CConfigure        = "i2c_configure"
	CmdI2CStart            = "i2c_start"
	CmdI2CAddress          = "i2c_address"
	CmdI2CWrite            = "i2c_write"
	CmdI2CRead             = "i2c_read"
	CmdI2CReadResponse     = "i2c_read_response"
	CmdI2CStop             = "i2c_stop"
	CmdI2CGetStatus        = "i2c_get_status"
	CmdI2CStatus           = "i2c_status"
	CmdRegRead             = "reg_read"
	CmdRegValue            = "reg_value"
	CmdRegWrite            = "reg_write"
)

// spi_configure flag bits
const (
	SPIFlagMaster = 1 << iota
	SPIFlagDoubleSpeed
	SPIFlagLSBFirst
	SPIFlagInterrupt
)

// i2c_configure flag bits
const (
	I2CFlagGeneralCall = 1 << iota
	I2CFlagInterrupt
)

// IdentifyChunkSize is the largest dictionary chunk that fits one frame.
const IdentifyChunkSize = 40

var bridgeTable = []struct {
	name, format string
}{
	{CmdIdentifyResponse, "offset=%u data=%*s"},
	{CmdIdentify, "offset=%u count=%c"},
	{CmdResult, "cmd=%u code=%c"},
	{CmdSPIConfigure, "divider=%c mode=%c flags=%c"},
	{CmdSPISelect, "pin=%c"},
	{CmdSPIDeselect, "pin=%c"},
	{CmdSPITransfer, "data=%*s"},
	{CmdSPITransferResponse, "data=%*s"},
	{CmdSPISend, "data=%*s"},
	{CmdI2CConfigure, "clock=%u freq=%u addr=%c flags=%c"},
	{CmdI2CStart, ""},
	{CmdI2CAddress, "addr=%c dir=%c"},
	{CmdI2CWrite, "data=%c"},
	{CmdI2CRead, "ack=%c"},
	{CmdI2CReadResponse, "data=%c status=%c"},
	{CmdI2CStop, ""},
	{CmdI2CGetStatus, ""},
	{CmdI2CStatus, "code=%c status=%c"},
	{CmdRegRead, "reg=%c"},
	{CmdRegValue, "reg=%c value=%c"},
	{CmdRegWrite, "reg=%c value=%c"},
}

// NewBridgeRegistry returns the bridge command table with no handlers. The
// host uses it to resolve IDs and to check the firmware's dictionary.
func NewBridgeRegistry() *CommandRegistry {
	r := NewCommandRegistry()
	for _, c := range bridgeTable {
		r.RegisterResponse(c.name, c.format)
	}
	return r
}

// BridgeDictionary is the identify payload: a version line followed by the
// command table.
func BridgeDictionary(r *CommandRegistry) string {
	return "version " + protocol.Version + "\n" + r.Dictionary()
}

// Responder sends one response message to the host.
type Responder interface {
	Send(cmdID uint16, args []byte) error
}

// Bridge exposes the SPI controller, the TWI sequencer and raw register
// access as link commands. Every command answers with exactly one response.
type Bridge struct {
	registry *CommandRegistry
	regs     Registers
	spi      *SPI
	i2c      *I2C
	out      Responder
	dict     []byte

	idIdentifyResponse uint16
	idResult           uint16
	idSPITransferResp  uint16
	idI2CReadResp      uint16
	idI2CStatus        uint16
	idRegValue         uint16
}

// NewBridge builds the command handlers over regs. Responses go to out,
// which may be set later with SetResponder.
func NewBridge(regs Registers, spi *SPI, i2c *I2C, out Responder) *Bridge {
	b := &Bridge{
		registry: NewBridgeRegistry(),
		regs:     regs,
		spi:      spi,
		i2c:      i2c,
		out:      out,
	}
	b.idIdentifyResponse = b.id(CmdIdentifyResponse)
	b.idResult = b.id(CmdResult)
	b.idSPITransferResp = b.id(CmdSPITransferResponse)
	b.idI2CReadResp = b.id(CmdI2CReadResponse)
	b.idI2CStatus = b.id(CmdI2CStatus)
	b.idRegValue = b.id(CmdRegValue)

	b.handle(CmdIdentify, b.handleIdentify)
	b.handle(CmdSPIConfigure, b.handleSPIConfigure)
	b.handle(CmdSPISelect, b.handleSPISelect)
	b.handle(CmdSPIDeselect, b.handleSPIDeselect)
	b.handle(CmdSPITransfer, b.handleSPITransfer)
	b.handle(CmdSPISend, b.handleSPISend)
	b.handle(CmdI2CConfigure, b.handleI2CConfigure)
	b.handle(CmdI2CStart, b.handleI2CStart)
	b.handle(CmdI2CAddress, b.handleI2CAddress)
	b.handle(CmdI2CWrite, b.handleI2CWrite)
	b.handle(CmdI2CRead, b.handleI2CRead)
	b.handle(CmdI2CStop, b.handleI2CStop)
	b.handle(CmdI2CGetStatus, b.handleI2CGetStatus)
	b.handle(CmdRegRead, b.handleRegRead)
	b.handle(CmdRegWrite, b.handleRegWrite)

	b.dict = []byte(BridgeDictionary(b.registry))
	return b
}

// NewLink builds the firmware end of the link: a bridge over regs with the
// SPI controller and TWI sequencer on the same register set, answering
// through a transport that writes frames to out.
func NewLink(regs Registers, out io.Writer) (*protocol.Transport, *Bridge) {
	b := NewBridge(regs, NewSPI(regs), NewI2C(regs), nil)
	t := protocol.NewTransport(out, b.Handle)
	t.SetErrorCallback(func(err error) {
		DebugPrintln("[LINK] " + err.Error())
	})
	b.SetResponder(t)
	return t, b
}

// handle attaches fn to an entry of the command table.
func (b *Bridge) handle(name string, fn CommandHandler) {
	cmd, _ := b.registry.Lookup(name)
	b.registry.Register(name, cmd.Format, fn)
}

func (b *Bridge) id(name string) uint16 {
	cmd, _ := b.registry.Lookup(name)
	return cmd.ID
}

// SetResponder sets where responses are sent.
func (b *Bridge) SetResponder(out Responder) {
	b.out = out
}

// Registry returns the command table with its handlers.
func (b *Bridge) Registry() *CommandRegistry {
	return b.registry
}

// Handle dispatches one command. Its signature matches
// protocol.CommandHandler.
func (b *Bridge) Handle(cmdID uint16, data *[]byte) error {
	return b.registry.Dispatch(cmdID, data)
}

func (b *Bridge) send(id uint16, args []byte) error {
	if b.out == nil {
		return nil
	}
	return b.out.Send(id, args)
}

func (b *Bridge) result(cmd string, err error) error {
	if err != nil {
		DebugPrintln("[BRIDGE] " + cmd + ": " + err.Error())
	}
	args := protocol.AppendUint(nil, uint32(b.id(cmd)))
	args = protocol.AppendUint(args, uint32(ResultCode(err)))
	return b.send(b.idResult, args)
}

func (b *Bridge) i2cStatus(err error, st Status) error {
	args := protocol.AppendUint(nil, uint32(ResultCode(err)))
	args = protocol.AppendUint(args, uint32(st))
	return b.send(b.idI2CStatus, args)
}

// decodeByteArgs decodes n %c arguments. All of them are consumed even when
// one does not fit in a byte, which is reported as ErrArgRange.
func decodeByteArgs(data *[]byte, n int) ([]uint8, error) {
	vals := make([]uint8, n)
	var rangeErr error
	for i := range vals {
		v, err := protocol.DecodeByte(data)
		if errors.Is(err, protocol.ErrValueRange) {
			rangeErr = ErrArgRange
			continue
		}
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, rangeErr
}

func (b *Bridge) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeUint(data)
	if err != nil {
		return err
	}
	if count > IdentifyChunkSize {
		count = IdentifyChunkSize
	}

	var chunk []byte
	if offset < uint32(len(b.dict)) {
		end := offset + uint32(count)
		if end > uint32(len(b.dict)) {
			end = uint32(len(b.dict))
		}
		chunk = b.dict[offset:end]
	}
	args := protocol.AppendUint(nil, offset)
	args = protocol.AppendBytes(args, chunk)
	return b.send(b.idIdentifyResponse, args)
}

func (b *Bridge) handleSPIConfigure(data *[]byte) error {
	args, err := decodeByteArgs(data, 3)
	if errors.Is(err, ErrArgRange) {
		return b.result(CmdSPIConfigure, err)
	}
	if err != nil {
		return err
	}
	cfg := SPIConfigFromFlags(Divider(args[0]), SPIMode(args[1]), args[2])
	return b.result(CmdSPIConfigure, b.spi.Configure(&cfg))
}

// SPIConfigFromFlags assembles an SPIConfig from spi_configure arguments.
func SPIConfigFromFlags(divider Divider, mode SPIMode, flags uint8) SPIConfig {
	cfg := SPIConfig{
		Divider:         divider,
		Mode:            mode,
		Master:          flags&SPIFlagMaster != 0,
		DoubleSpeed:     flags&SPIFlagDoubleSpeed != 0,
		InterruptEnable: flags&SPIFlagInterrupt != 0,
	}
	if flags&SPIFlagLSBFirst != 0 {
		cfg.Order = LSBFirst
	}
	return cfg
}

// SPIFlags is the inverse of SPIConfigFromFlags.
func SPIFlags(cfg SPIConfig) uint8 {
	var flags uint8
	if cfg.Master {
		flags |= SPIFlagMaster
	}
	if cfg.DoubleSpeed {
		flags |= SPIFlagDoubleSpeed
	}
	if cfg.Order == LSBFirst {
		flags |= SPIFlagLSBFirst
	}
	if cfg.InterruptEnable {
		flags |= SPIFlagInterrupt
	}
	return flags
}

func (b *Bridge) handleSPISelect(data *[]byte) error {
	pin, err := protocol.DecodeByte(data)
	if errors.Is(err, protocol.ErrValueRange) {
		return b.result(CmdSPISelect, ErrArgRange)
	}
	if err != nil {
		return err
	}
	return b.result(CmdSPISelect, b.spi.Select(Pin(pin)))
}

func (b *Bridge) handleSPIDeselect(data *[]byte) error {
	pin, err := protocol.DecodeByte(data)
	if errors.Is(err, protocol.ErrValueRange) {
		return b.result(CmdSPIDeselect, ErrArgRange)
	}
	if err != nil {
		return err
	}
	return b.result(CmdSPIDeselect, b.spi.Deselect(Pin(pin)))
}

func (b *Bridge) handleSPITransfer(data *[]byte) error {
	tx, err := protocol.DecodeBytes(data)
	if err != nil {
		return err
	}
	rx := make([]byte, len(tx))
	for i, c := range tx {
		rx[i] = b.spi.Transfer(c)
	}
	return b.send(b.idSPITransferResp, protocol.AppendBytes(nil, rx))
}

func (b *Bridge) handleSPISend(data *[]byte) error {
	tx, err := protocol.DecodeBytes(data)
	if err != nil {
		return err
	}
	for _, c := range tx {
		b.spi.Send(c)
	}
	return b.result(CmdSPISend, nil)
}

func (b *Bridge) handleI2CConfigure(data *[]byte) error {
	clock, err := protocol.DecodeUint(data)
	if err != nil {
		return err
	}
	freq, err := protocol.DecodeUint(data)
	if err != nil {
		return err
	}
	args, err := decodeByteArgs(data, 2)
	if errors.Is(err, ErrArgRange) {
		return b.result(CmdI2CConfigure, err)
	}
	if err != nil {
		return err
	}
	cfg := I2CConfig{
		CoreClockHz:     clock,
		FrequencyHz:     freq,
		OwnAddress:      I2CAddress(args[0]),
		GeneralCall:     args[1]&I2CFlagGeneralCall != 0,
		InterruptEnable: args[1]&I2CFlagInterrupt != 0,
	}
	return b.result(CmdI2CConfigure, b.i2c.Configure(cfg))
}

func (b *Bridge) handleI2CStart(data *[]byte) error {
	return b.i2cStatus(nil, b.i2c.Start())
}

func (b *Bridge) handleI2CAddress(data *[]byte) error {
	args, err := decodeByteArgs(data, 2)
	if errors.Is(err, ErrArgRange) {
		return b.i2cStatus(err, b.i2c.Status())
	}
	if err != nil {
		return err
	}
	st, err := b.i2c.AddressSlave(I2CAddress(args[0]), Direction(args[1]))
	if err != nil {
		st = b.i2c.Status()
	}
	return b.i2cStatus(err, st)
}

func (b *Bridge) handleI2CWrite(data *[]byte) error {
	c, err := protocol.DecodeByte(data)
	if errors.Is(err, protocol.ErrValueRange) {
		return b.i2cStatus(ErrArgRange, b.i2c.Status())
	}
	if err != nil {
		return err
	}
	return b.i2cStatus(nil, b.i2c.SendByte(c))
}

func (b *Bridge) handleI2CRead(data *[]byte) error {
	ack, err := protocol.DecodeUint(data)
	if err != nil {
		return err
	}
	var c byte
	if ack != 0 {
		c = b.i2c.ReadByteAck()
	} else {
		c = b.i2c.ReadByteNack()
	}
	args := protocol.AppendUint(nil, uint32(c))
	args = protocol.AppendUint(args, uint32(b.i2c.Status()))
	return b.send(b.idI2CReadResp, args)
}

func (b *Bridge) handleI2CStop(data *[]byte) error {
	b.i2c.Stop()
	return b.result(CmdI2CStop, nil)
}

func (b *Bridge) handleI2CGetStatus(data *[]byte) error {
	return b.i2cStatus(nil, b.i2c.Status())
}

func (b *Bridge) handleRegRead(data *[]byte) error {
	r, err := protocol.DecodeByte(data)
	if errors.Is(err, protocol.ErrValueRange) {
		return b.result(CmdRegRead, ErrArgRange)
	}
	if err != nil {
		return err
	}
	reg := Reg(r)
	if !reg.Valid() {
		return b.result(CmdRegRead, ErrBadRegister)
	}
	args := protocol.AppendUint(nil, uint32(reg))
	args = protocol.AppendUint(args, uint32(b.regs.Read(reg)))
	return b.send(b.idRegValue, args)
}

func (b *Bridge) handleRegWrite(data *[]byte) error {
	args, err := decodeByteArgs(data, 2)
	if errors.Is(err, ErrArgRange) {
		return b.result(CmdRegWrite, err)
	}
	if err != nil {
		return err
	}
	reg, v := Reg(args[0]), args[1]
	if !reg.Valid() {
		return b.result(CmdRegWrite, ErrBadRegister)
	}
	b.regs.Write(reg, v)
	return b.result(CmdRegWrite, nil)
}
