package emulator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Routing(t *testing.T) {
	bus := NewBus()
	regs := NewRegisters().Load(0xD0, 0x60)
	bus.Attach(0x76, regs)

	err := bus.Tx(0x77, nil, nil)
	assert.ErrorIs(t, err, ErrNACK)

	r := make([]byte, 1)
	require.NoError(t, bus.Tx(0x76, []byte{0xD0}, r))
	assert.Equal(t, byte(0x60), r[0])

	bus.Detach(0x76)
	assert.ErrorIs(t, bus.Tx(0x76, nil, nil), ErrNACK)
	assert.Empty(t, bus.Addresses())
}

func TestBus_Reopen(t *testing.T) {
	bus := NewBus()
	for range 2 {
		b, err := bus.Open(context.Background())
		require.NoError(t, err)
		require.NoError(t, b.Close())
	}
	opened, closed, _ := bus.Stats()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 2, closed)
}

func TestRegisters_AutoIncrement(t *testing.T) {
	var written []byte
	regs := NewRegisters()
	regs.OnWrite = func(reg byte, data []byte) {
		written = append([]byte{reg}, data...)
	}
	require.NoError(t, regs.Tx([]byte{0xF2, 0x01, 0x02, 0x03}, nil))
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, regs.Peek(0xF2, 3))
	assert.Equal(t, []byte{0xF2, 0x01, 0x02, 0x03}, written)

	r := make([]byte, 2)
	require.NoError(t, regs.Tx([]byte{0xF3}, r))
	assert.Equal(t, []byte{0x02, 0x03}, r)
}

func TestSSD1306_Window(t *testing.T) {
	d := NewSSD1306()
	require.NoError(t, d.Tx([]byte{0x00, 0xA8, 0x1F, 0xDA, 0x02, 0xAF}, nil))
	mux, com := d.Geometry()
	assert.Equal(t, byte(0x1F), mux)
	assert.Equal(t, byte(0x02), com)
	assert.True(t, d.On())

	// window on page 2 only, wrapping back to its first column
	require.NoError(t, d.Tx([]byte{0x00, 0x21, 0x00, 0x7F, 0x22, 0x02, 0x02}, nil))
	require.NoError(t, d.Tx([]byte{0x40, 0x81, 0x01}, nil))
	assert.True(t, d.Pixel(0, 16))
	assert.True(t, d.Pixel(0, 23))
	assert.False(t, d.Pixel(0, 17))
	assert.True(t, d.Pixel(1, 16))
	assert.True(t, d.Blank(0))
	assert.False(t, d.Blank(2))

	err := d.Tx([]byte{0x80, 0x00}, nil)
	assert.Error(t, err)
}

func TestBench(t *testing.T) {
	b := NewBench()
	assert.Equal(t, []uint16{0x23, 0x3C, 0x44, 0x48, 0x76}, b.Addresses())

	r := make([]byte, 6)
	require.NoError(t, b.Tx(0x44, []byte{0x2C, 0x06}, nil))
	require.NoError(t, b.Tx(0x44, nil, r))
	assert.Equal(t, []byte{0x66, 0x66, 0x00, 0x80, 0x00, 0x00}, r)

	r = r[:2]
	require.NoError(t, b.Tx(0x23, nil, r))
	assert.Equal(t, []byte{0x01, 0x2C}, r)
	require.NoError(t, b.Tx(0x48, []byte{0x00}, r))
	assert.Equal(t, []byte{0x20, 0x00}, r)

	r = r[:1]
	require.NoError(t, b.Tx(0x76, []byte{0xD0}, r))
	assert.Equal(t, []byte{0x60}, r)
}

func TestADS1115_PointerRegister(t *testing.T) {
	a := NewADS1115(0x2000)
	a.SetInput(1, 0x1234)
	r := make([]byte, 2)

	require.NoError(t, a.Tx([]byte{0x00}, r))
	assert.Equal(t, []byte{0x20, 0x00}, r)

	// single shot of AIN1, ±4.096 V, 128 SPS
	require.NoError(t, a.Tx([]byte{0x01, 0xD3, 0x80}, nil))
	assert.Equal(t, uint16(0xD380), a.Register(0x01))
	require.NoError(t, a.Tx([]byte{0x00}, r))
	assert.Equal(t, []byte{0x12, 0x34}, r)

	// the config word lives in its own register
	require.NoError(t, a.Tx([]byte{0x01}, r))
	assert.Equal(t, []byte{0xD3, 0x80}, r)

	// without the OS bit nothing is converted
	require.NoError(t, a.Tx([]byte{0x01, 0x43, 0x80}, nil))
	require.NoError(t, a.Tx([]byte{0x00}, r))
	assert.Equal(t, []byte{0x12, 0x34}, r)
	assert.Equal(t, uint16(0x4380), a.Register(0x01))
}
