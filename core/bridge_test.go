package core_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avrbus/core"
	"avrbus/protocol"
	"avrbus/sim"
)

type sent struct {
	id   uint16
	args []byte
}

type recorder struct {
	msgs []sent
}

func (r *recorder) Send(cmdID uint16, args []byte) error {
	r.msgs = append(r.msgs, sent{cmdID, append([]byte(nil), args...)})
	return nil
}

func (r *recorder) last(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, r.msgs)
	return r.msgs[len(r.msgs)-1]
}

type bridgeFixture struct {
	avr    *sim.AVR
	bridge *core.Bridge
	out    *recorder
	table  *core.CommandRegistry
}

func newBridgeFixture() *bridgeFixture {
	avr := sim.New()
	out := &recorder{}
	b := core.NewBridge(avr, core.NewSPI(avr), core.NewI2C(avr), out)
	return &bridgeFixture{avr: avr, bridge: b, out: out, table: core.NewBridgeRegistry()}
}

func (f *bridgeFixture) call(t *testing.T, name string, args ...uint32) sent {
	t.Helper()
	cmd, ok := f.table.Lookup(name)
	require.True(t, ok, name)
	var data []byte
	for _, a := range args {
		data = protocol.AppendUint(data, a)
	}
	require.NoError(t, f.bridge.Handle(cmd.ID, &data))
	assert.Empty(t, data, "%s left arguments undecoded", name)
	return f.out.last(t)
}

func (f *bridgeFixture) callBytes(t *testing.T, name string, payload []byte) sent {
	t.Helper()
	cmd, ok := f.table.Lookup(name)
	require.True(t, ok, name)
	data := protocol.AppendBytes(nil, payload)
	require.NoError(t, f.bridge.Handle(cmd.ID, &data))
	return f.out.last(t)
}

func (f *bridgeFixture) id(name string) uint16 {
	cmd, _ := f.table.Lookup(name)
	return cmd.ID
}

func decodeAll(t *testing.T, args []byte, n int) []uint32 {
	t.Helper()
	vals := make([]uint32, n)
	for i := range vals {
		v, err := protocol.DecodeUint(&args)
		require.NoError(t, err)
		vals[i] = v
	}
	assert.Empty(t, args)
	return vals
}

func TestBridgeTableOrder(t *testing.T) {
	table := core.NewBridgeRegistry()

	cmd, ok := table.Get(0)
	require.True(t, ok)
	assert.Equal(t, core.CmdIdentifyResponse, cmd.Name)
	cmd, ok = table.Get(1)
	require.True(t, ok)
	assert.Equal(t, core.CmdIdentify, cmd.Name)
	assert.Equal(t, 21, table.Count())
}

func TestBridgeDictionaryMatchesHostTable(t *testing.T) {
	f := newBridgeFixture()
	assert.Equal(t, core.BridgeDictionary(f.table), core.BridgeDictionary(f.bridge.Registry()))
	assert.True(t, strings.HasPrefix(core.BridgeDictionary(f.table), "version "+protocol.Version+"\n"))
}

func TestBridgeIdentifyChunks(t *testing.T) {
	f := newBridgeFixture()
	want := core.BridgeDictionary(f.table)

	var got []byte
	for {
		msg := f.call(t, core.CmdIdentify, uint32(len(got)), core.IdentifyChunkSize)
		require.Equal(t, f.id(core.CmdIdentifyResponse), msg.id)
		args := msg.args
		offset, err := protocol.DecodeUint(&args)
		require.NoError(t, err)
		assert.Equal(t, uint32(len(got)), offset)
		chunk, err := protocol.DecodeBytes(&args)
		require.NoError(t, err)
		if len(chunk) == 0 {
			break
		}
		assert.LessOrEqual(t, len(chunk), core.IdentifyChunkSize)
		got = append(got, chunk...)
	}
	assert.Equal(t, want, string(got))
}

func TestBridgeSPIConfigure(t *testing.T) {
	f := newBridgeFixture()

	msg := f.call(t, core.CmdSPIConfigure, 8, 0, core.SPIFlagMaster|core.SPIFlagDoubleSpeed)
	require.Equal(t, f.id(core.CmdResult), msg.id)
	vals := decodeAll(t, msg.args, 2)
	assert.Equal(t, uint32(f.id(core.CmdSPIConfigure)), vals[0])
	assert.Equal(t, uint32(core.ResultOK), vals[1])
	assert.Equal(t, uint8(core.SPR0|core.MSTR|core.SPE), f.avr.Peek(core.SPCR))

	f.avr.ResetLog()
	msg = f.call(t, core.CmdSPIConfigure, 16, 0, core.SPIFlagMaster|core.SPIFlagDoubleSpeed)
	vals = decodeAll(t, msg.args, 2)
	assert.Equal(t, uint32(0xd0), vals[1])
	assert.Empty(t, f.avr.Writes())
}

func TestBridgeSPITransfer(t *testing.T) {
	f := newBridgeFixture()
	echo := &sim.EchoTarget{}
	f.avr.AttachSPI(echo, core.PinSS)

	f.call(t, core.CmdSPIConfigure, 16, 0, core.SPIFlagMaster)
	f.call(t, core.CmdSPISelect, uint32(core.PinSS))

	msg := f.callBytes(t, core.CmdSPITransfer, []byte{1, 2, 3})
	require.Equal(t, f.id(core.CmdSPITransferResponse), msg.id)
	args := msg.args
	rx, err := protocol.DecodeBytes(&args)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, rx)

	msg = f.callBytes(t, core.CmdSPISend, []byte{9})
	assert.Equal(t, f.id(core.CmdResult), msg.id)
	assert.Equal(t, []byte{1, 2, 3, 9}, echo.Received)

	msg = f.call(t, core.CmdSPIDeselect, 12)
	assert.Equal(t, uint32(0xd6), decodeAll(t, msg.args, 2)[1])
}

func TestBridgeI2CSequence(t *testing.T) {
	f := newBridgeFixture()
	mem := sim.NewMemory(16)
	mem.Data[2] = 0x5a
	f.avr.AttachI2C(0x50, mem)

	msg := f.call(t, core.CmdI2CConfigure, 16000000, 400000, 0, 0)
	assert.Equal(t, uint32(core.ResultOK), decodeAll(t, msg.args, 2)[1])
	assert.Equal(t, uint8(12), f.avr.Peek(core.TWBR))

	msg = f.call(t, core.CmdI2CStart)
	require.Equal(t, f.id(core.CmdI2CStatus), msg.id)
	assert.Equal(t, []uint32{0, uint32(core.StatusStart)}, decodeAll(t, msg.args, 2))

	msg = f.call(t, core.CmdI2CAddress, 0x50, uint32(core.Write))
	assert.Equal(t, []uint32{0, uint32(core.StatusSLAWAck)}, decodeAll(t, msg.args, 2))

	msg = f.call(t, core.CmdI2CWrite, 2)
	assert.Equal(t, []uint32{0, uint32(core.StatusDataSentAck)}, decodeAll(t, msg.args, 2))

	f.call(t, core.CmdI2CStart)
	f.call(t, core.CmdI2CAddress, 0x50, uint32(core.Read))
	msg = f.call(t, core.CmdI2CRead, 0)
	require.Equal(t, f.id(core.CmdI2CReadResponse), msg.id)
	assert.Equal(t, []uint32{0x5a, uint32(core.StatusDataRecvNack)}, decodeAll(t, msg.args, 2))

	msg = f.call(t, core.CmdI2CStop)
	assert.Equal(t, f.id(core.CmdResult), msg.id)
	assert.Equal(t, 1, f.avr.Stops())

	msg = f.call(t, core.CmdI2CGetStatus)
	assert.Equal(t, []uint32{0, uint32(core.StatusNoInfo)}, decodeAll(t, msg.args, 2))
}

func TestBridgeI2CAddressRejected(t *testing.T) {
	f := newBridgeFixture()
	f.call(t, core.CmdI2CConfigure, 0, 0, 0, 0)

	msg := f.call(t, core.CmdI2CAddress, 0, uint32(core.Write))
	vals := decodeAll(t, msg.args, 2)
	assert.Equal(t, uint32(0xd3), vals[0])

	msg = f.call(t, core.CmdI2CAddress, 0x20, 2)
	vals = decodeAll(t, msg.args, 2)
	assert.Equal(t, uint32(0xd4), vals[0])
}

func TestBridgeRejectsWideByteArguments(t *testing.T) {
	f := newBridgeFixture()
	f.call(t, core.CmdI2CConfigure, 0, 0, 0, 0)
	f.call(t, core.CmdI2CStart)
	f.avr.ResetLog()

	msg := f.call(t, core.CmdI2CAddress, 0x150, uint32(core.Write))
	require.Equal(t, f.id(core.CmdI2CStatus), msg.id)
	assert.Equal(t, []uint32{0xd8, uint32(core.StatusStart)}, decodeAll(t, msg.args, 2))
	assert.Empty(t, f.avr.WritesTo(core.TWDR))

	msg = f.call(t, core.CmdI2CWrite, 0x1ff)
	assert.Equal(t, uint32(0xd8), decodeAll(t, msg.args, 2)[0])

	msg = f.call(t, core.CmdRegWrite, 0x101, 0x55)
	require.Equal(t, f.id(core.CmdResult), msg.id)
	assert.Equal(t, []uint32{uint32(f.id(core.CmdRegWrite)), 0xd8}, decodeAll(t, msg.args, 2))

	msg = f.call(t, core.CmdRegRead, 0x101)
	require.Equal(t, f.id(core.CmdResult), msg.id)
	assert.Equal(t, uint32(0xd8), decodeAll(t, msg.args, 2)[1])

	msg = f.call(t, core.CmdSPIConfigure, 0x104, 0, uint32(core.SPIFlagMaster))
	assert.Equal(t, uint32(0xd8), decodeAll(t, msg.args, 2)[1])

	msg = f.call(t, core.CmdSPISelect, 0x100)
	assert.Equal(t, uint32(0xd8), decodeAll(t, msg.args, 2)[1])

	assert.Empty(t, f.avr.Writes())
	assert.ErrorIs(t, core.ErrorForCode(0xd8), core.ErrArgRange)
}

func TestBridgeRegisterAccess(t *testing.T) {
	f := newBridgeFixture()

	msg := f.call(t, core.CmdRegWrite, uint32(core.TWBR), 0x48)
	assert.Equal(t, uint32(core.ResultOK), decodeAll(t, msg.args, 2)[1])

	msg = f.call(t, core.CmdRegRead, uint32(core.TWBR))
	require.Equal(t, f.id(core.CmdRegValue), msg.id)
	assert.Equal(t, []uint32{uint32(core.TWBR), 0x48}, decodeAll(t, msg.args, 2))

	msg = f.call(t, core.CmdRegRead, 200)
	assert.Equal(t, uint32(0xd7), decodeAll(t, msg.args, 2)[1])
}

func TestBridgeResponseOnlyIDsDoNotDispatch(t *testing.T) {
	f := newBridgeFixture()
	var data []byte
	err := f.bridge.Handle(f.id(core.CmdResult), &data)
	assert.ErrorIs(t, err, core.ErrUnknownCommand)
}

func TestSPIFlagsRoundTrip(t *testing.T) {
	cfg := core.SPIConfig{Divider: core.Div32, Mode: 2, Master: true, DoubleSpeed: true, Order: core.LSBFirst}
	assert.Equal(t, cfg, core.SPIConfigFromFlags(cfg.Divider, cfg.Mode, core.SPIFlags(cfg)))
}
