package adc

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/emulator"
	"github.com/mklimuk/halnode/i2c"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestMux(t *testing.T) {
	for ch := range Channels {
		assert.Equal(t, uint16(4+ch), Mux(ch), "channel %d", ch)
	}
	assert.Equal(t, uint16(0xC380), Config(0))
	assert.Equal(t, uint16(0xF380), Config(3))
}

func TestMillivolts(t *testing.T) {
	tests := []struct {
		given    []byte
		expected float32
	}{
		{[]byte{0x20, 0x00}, 1024.0},
		{[]byte{0x00, 0x01}, 0.125},
		{[]byte{0x7F, 0xFF}, 4095.875},
		{[]byte{0xFF, 0xFF}, -0.125},
		{[]byte{0x80, 0x00}, -4096.0},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString(test.given), func(t *testing.T) {
			assert.Equal(t, test.expected, Millivolts(test.given))
		})
	}
}

func TestADS1115_Read(t *testing.T) {
	ctx := context.Background()
	for ch := range Channels {
		t.Run(fmt.Sprintf("AIN%d", ch), func(t *testing.T) {
			cfg := Config(ch)
			pb := &i2ctest.Playback{
				Ops: []i2ctest.IO{
					{Addr: ADS1115AddrGND, W: []byte{0x01, byte(cfg >> 8), byte(cfg)}},
					{Addr: ADS1115AddrGND, W: []byte{0x00}, R: []byte{0x20, 0x00}},
				},
				DontPanic: true,
			}
			m := i2c.NewManager(i2c.Static(pb), i2c.WithTimeout(0))
			require.NoError(t, m.Acquire(ctx))

			var slept time.Duration
			a := NewADS1115(m, WithSleep(func(d time.Duration) { slept += d }))
			mv, err := a.Read(ctx, ADS1115AddrGND, ch)
			require.NoError(t, err)
			assert.Equal(t, float32(1024.0), mv)
			assert.Equal(t, 10*time.Millisecond, slept)
			require.NoError(t, m.Release(ctx))
			assert.Equal(t, len(pb.Ops), pb.Count)
		})
	}
}

func TestADS1115_Failures(t *testing.T) {
	ctx := context.Background()
	bus := emulator.NewBus()
	m := i2c.NewManager(bus.Open)
	a := NewADS1115(m, WithSleep(func(time.Duration) {}))

	v, err := a.Read(ctx, ADS1115AddrGND, 0)
	assert.ErrorIs(t, err, halnode.ErrBusInactive)
	assert.True(t, math.IsNaN(float64(v)))

	require.NoError(t, m.Acquire(ctx))
	_, err = a.Read(ctx, ADS1115AddrGND, 4)
	assert.ErrorIs(t, err, halnode.ErrInvalidChannel)
	_, err = a.Read(ctx, ADS1115AddrGND, 0)
	assert.ErrorIs(t, err, halnode.ErrTransaction)
}
