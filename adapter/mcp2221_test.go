package adapter

import (
	"context"
	"fmt"
	"testing"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/emulator"
	"github.com/mklimuk/halnode/i2c"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	periphi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// bridge answers HID reports the way the MCP2221 firmware does, forwarding
// the I2C traffic to an emulated bus.
type bridge struct {
	bus      *emulator.Bus
	requests [][]byte
	reply    []byte
	pending  []byte
	nack     bool
	busy     bool
	closed   bool
}

func newBridge() *bridge {
	return &bridge{bus: emulator.NewBus()}
}

func (b *bridge) Write(p []byte) (int, error) {
	req := append([]byte(nil), p...)
	b.requests = append(b.requests, req)
	b.reply = make([]byte, reportSize)
	b.reply[0] = req[0]
	if b.busy && req[0] != cmdStatus {
		b.reply[1] = engineBusy
		return len(p), nil
	}
	size := int(req[1]) | int(req[2])<<8
	addr := uint16(req[3] >> 1)
	switch req[0] {
	case cmdWrite, cmdWriteNoStop:
		b.nack = b.bus.Tx(addr, req[4:4+size], nil) != nil
	case cmdRead, cmdReadRepeated:
		b.pending = make([]byte, size)
		b.nack = b.bus.Tx(addr, nil, b.pending) != nil
	case cmdGetData:
		if b.nack {
			b.reply[1] = getDataFailed
			b.reply[3] = dataSizeInvalid
			break
		}
		b.reply[3] = byte(len(b.pending))
		copy(b.reply[4:], b.pending)
	case cmdStatus:
		if req[3] == statusSetSpeed {
			b.reply[3] = speedAccepted
			b.reply[statusDivByte] = req[4]
		}
		if b.nack {
			b.reply[statusAckByte] = ackStatusNACK
		}
	}
	return len(p), nil
}

func (b *bridge) Read(p []byte) (int, error) {
	return copy(p, b.reply), nil
}

func (b *bridge) Close() error {
	b.closed = true
	return nil
}

func newTestAdapter(b *bridge) *MCP2221 {
	return NewMCP2221(b, "mcp2221(test)", WithResponseWait(0))
}

func TestMCP2221_Tx(t *testing.T) {
	b := newBridge()
	regs := emulator.NewRegisters().Load(0xD0, 0x60)
	b.bus.Attach(0x76, regs)
	d := newTestAdapter(b)

	r := make([]byte, 1)
	require.NoError(t, d.Tx(0x76, []byte{0xD0}, r))
	assert.Equal(t, []byte{0x60}, r)
	require.Len(t, b.requests, 4)
	assert.Equal(t, []byte{cmdWriteNoStop, 0x01, 0x00, 0x76 << 1, 0xD0}, b.requests[0][:5])
	// write is followed by a status check, then the repeated start read
	assert.Equal(t, byte(cmdStatus), b.requests[1][0])
	assert.Equal(t, []byte{cmdReadRepeated, 0x01, 0x00, 0x76<<1 + 1}, b.requests[2][:4])
	assert.Equal(t, byte(cmdGetData), b.requests[3][0])

	b.requests = nil
	require.NoError(t, d.Tx(0x76, []byte{0xF4, 0x27}, nil))
	assert.Equal(t, []byte{0x27}, regs.Peek(0xF4, 1))
	assert.Equal(t, byte(cmdWrite), b.requests[0][0])
}

func TestMCP2221_NACK(t *testing.T) {
	b := newBridge()
	d := newTestAdapter(b)
	assert.ErrorIs(t, d.Tx(0x50, nil, nil), ErrNACK)
	assert.ErrorIs(t, d.Tx(0x50, nil, make([]byte, 2)), ErrNACK)
}

func TestMCP2221_Busy(t *testing.T) {
	b := newBridge()
	b.busy = true
	d := newTestAdapter(b)
	assert.ErrorIs(t, d.Tx(0x50, []byte{0x01}, nil), halnode.ErrBusBusy)
}

func TestMCP2221_TooLong(t *testing.T) {
	d := newTestAdapter(newBridge())
	assert.Error(t, d.Tx(0x50, make([]byte, MaxTransfer+1), nil))
}

func TestMCP2221_SetSpeed(t *testing.T) {
	b := newBridge()
	d := newTestAdapter(b)
	require.NoError(t, d.SetSpeed(100*physic.KiloHertz))
	assert.Equal(t, byte(117), b.requests[0][4])
	assert.Error(t, d.SetSpeed(10*physic.KiloHertz))
	assert.Error(t, d.SetSpeed(0))

	status, err := d.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.AddressNACK)
}

func TestMCP2221_ReleaseBus(t *testing.T) {
	b := newBridge()
	d := newTestAdapter(b)
	_, err := d.ReleaseBus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(statusCancel), b.requests[0][2])
}

func TestMCP2221_Manager(t *testing.T) {
	b := newBridge()
	b.bus.Attach(0x23, emulator.NewRegisters())
	b.bus.Attach(0x48, emulator.NewRegisters())
	m := i2c.NewManager(func(ctx context.Context) (periphi2c.BusCloser, error) {
		return newTestAdapter(b), nil
	}, i2c.WithTimeout(0))
	ctx := context.Background()
	require.NoError(t, m.Acquire(ctx))
	found, err := m.Scan(ctx, 32)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x23, 0x48}, found)
	require.NoError(t, m.Release(ctx))
	assert.True(t, b.closed)
}

func TestBufferToStatus(t *testing.T) {
	buf := make([]byte, reportSize)
	buf[9], buf[10] = 0x10, 0x00
	buf[11], buf[12] = 0x08, 0x00
	buf[13] = 2
	buf[14] = 117
	buf[15] = 3
	buf[16], buf[17] = 0xEC, 0x00
	buf[20] = ackStatusNACK
	buf[25] = 1
	assert.Equal(t, &MCP2221Status{
		I2CDataBufferCounter:   2,
		I2CSpeedDivider:        117,
		I2CTimeout:             3,
		CurrentAddress:         "ec00",
		LastWriteRequestedSize: 16,
		LastWriteSentSize:      8,
		ReadPending:            1,
		AddressNACK:            true,
	}, bufferToStatus(buf))
	assert.Equal(t, "mcp2221(test)", fmt.Sprint(newTestAdapter(newBridge())))
}
