package i2c

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/emulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func playbackOpener(pb *i2ctest.Playback, opened *int) Opener {
	return func(ctx context.Context) (i2c.BusCloser, error) {
		*opened++
		return pb, nil
	}
}

func TestManager_Refcount(t *testing.T) {
	ctx := context.Background()
	bus := emulator.NewBus()
	m := NewManager(bus.Open)

	assert.False(t, m.Active())
	require.NoError(t, m.Acquire(ctx))
	require.NoError(t, m.Acquire(ctx))
	assert.Equal(t, 2, m.Refs())

	require.NoError(t, m.Release(ctx))
	assert.True(t, m.Active())
	require.NoError(t, m.Release(ctx))
	assert.False(t, m.Active())
	// extra release on an inactive bus is harmless
	require.NoError(t, m.Release(ctx))
	assert.Equal(t, 0, m.Refs())

	opened, closed, _ := bus.Stats()
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
	assert.Equal(t, DefaultSpeed, bus.Speed())
}

func TestManager_Inactive(t *testing.T) {
	ctx := context.Background()
	bus := emulator.NewBus()
	bus.Attach(0x76, emulator.NewRegisters())
	m := NewManager(bus.Open)

	assert.False(t, m.Detect(ctx, 0x76))
	_, err := m.Scan(ctx, 32)
	assert.ErrorIs(t, err, halnode.ErrBusInactive)
	assert.ErrorIs(t, m.ReadRegister(ctx, 0x76, 0xD0, make([]byte, 1)), halnode.ErrBusInactive)
	assert.ErrorIs(t, m.WriteRegister(ctx, 0x76, 0xE0, []byte{0xB6}), halnode.ErrBusInactive)
	assert.ErrorIs(t, m.ReadFromAddr(ctx, 0x76, make([]byte, 1)), halnode.ErrBusInactive)
	assert.ErrorIs(t, m.WriteToAddr(ctx, 0x76, []byte{0x01}), halnode.ErrBusInactive)

	_, _, txs := bus.Stats()
	assert.Zero(t, txs)
}

func TestManager_Scan(t *testing.T) {
	ctx := context.Background()
	bus := emulator.NewBus()
	for _, a := range []uint16{0x76, 0x23, 0x48} {
		bus.Attach(a, emulator.NewRegisters())
	}
	m := NewManager(bus.Open)
	require.NoError(t, m.Acquire(ctx))

	found, err := m.Scan(ctx, 32)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x23, 0x48, 0x76}, found)

	found, err = m.Scan(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x23, 0x48}, found)

	assert.True(t, m.Detect(ctx, 0x48))
	assert.False(t, m.Detect(ctx, 0x49))
}

func TestManager_RegisterAccess(t *testing.T) {
	ctx := context.Background()
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x76, W: []byte{0xD0}, R: []byte{0x60}},
			{Addr: 0x76, W: []byte{0xF2, 0x01}},
			{Addr: 0x23, W: []byte{0x10}},
			{Addr: 0x23, R: []byte{0x01, 0x2C}},
		},
		DontPanic: true,
	}
	var opened int
	m := NewManager(playbackOpener(pb, &opened), WithSpeed(400*physic.KiloHertz))
	require.NoError(t, m.Acquire(ctx))

	id := make([]byte, 1)
	require.NoError(t, m.ReadRegister(ctx, 0x76, 0xD0, id))
	assert.Equal(t, byte(0x60), id[0])
	require.NoError(t, m.WriteRegister(ctx, 0x76, 0xF2, []byte{0x01}))
	require.NoError(t, m.WriteToAddr(ctx, 0x23, []byte{0x10}))
	raw := make([]byte, 2)
	require.NoError(t, m.ReadFromAddr(ctx, 0x23, raw))
	assert.Equal(t, []byte{0x01, 0x2C}, raw)

	assert.Error(t, m.ReadRegister(ctx, 0x76, 0x88, make([]byte, MaxTransfer+1)))
	assert.Error(t, m.ReadRegister(ctx, 0x76, 0x88, nil))

	require.NoError(t, m.Release(ctx))
	assert.Equal(t, 1, opened)
	assert.Equal(t, len(pb.Ops), pb.Count)
}

func TestManager_TransactionFailure(t *testing.T) {
	ctx := context.Background()
	bus := emulator.NewBus()
	m := NewManager(bus.Open)
	require.NoError(t, m.Acquire(ctx))

	err := m.ReadRegister(ctx, 0x40, 0x00, make([]byte, 2))
	assert.ErrorIs(t, err, halnode.ErrTransaction)
	assert.ErrorIs(t, err, emulator.ErrNACK)
}

func TestManager_Timeout(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	var mx sync.Mutex
	calls := 0
	bus := emulator.NewBus()
	bus.Attach(0x44, emulator.DeviceFunc(func(w, r []byte) error {
		mx.Lock()
		calls++
		first := calls == 1
		mx.Unlock()
		if first {
			<-release
		}
		copy(r, []byte{0xAA})
		return nil
	}))
	m := NewManager(bus.Open, WithTimeout(10*time.Millisecond))
	require.NoError(t, m.Acquire(ctx))

	r := make([]byte, 1)
	err := m.ReadFromAddr(ctx, 0x44, r)
	assert.ErrorIs(t, err, halnode.ErrTimeout)
	assert.Equal(t, byte(0), r[0])

	// the hardware is still busy with the stuck transfer
	err = m.ReadFromAddr(ctx, 0x44, r)
	assert.ErrorIs(t, err, halnode.ErrTimeout)

	close(release)
	require.Eventually(t, func() bool {
		return m.ReadFromAddr(ctx, 0x44, r) == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, byte(0xAA), r[0])
}

func TestManager_With(t *testing.T) {
	ctx := context.Background()
	bus := emulator.NewBus()
	bus.Attach(0x3C, emulator.NewSSD1306())
	m := NewManager(bus.Open)

	var detected bool
	err := m.With(ctx, func() error {
		detected = m.Detect(ctx, 0x3C)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, detected)
	assert.False(t, m.Active())

	require.NoError(t, m.Acquire(ctx))
	require.NoError(t, m.With(ctx, func() error { return nil }))
	assert.Equal(t, 1, m.Refs())
}

type countingPin struct {
	*gpiotest.Pin
	mx     sync.Mutex
	levels []gpio.Level
}

func (p *countingPin) Out(l gpio.Level) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.levels = append(p.levels, l)
	return nil
}

func TestManager_Recover(t *testing.T) {
	ctx := context.Background()
	bus := emulator.NewBus()
	scl := &countingPin{Pin: &gpiotest.Pin{N: "SCL", Num: 22}}
	var slept time.Duration
	m := NewManager(bus.Open, WithSCL(scl), WithSleep(func(d time.Duration) { slept += d }))
	require.NoError(t, m.Acquire(ctx))

	require.NoError(t, m.Recover(ctx))
	require.Len(t, scl.levels, 2*recoveryPulses)
	for i, l := range scl.levels {
		assert.Equal(t, i%2 == 1, bool(l), "edge %d", i)
	}
	assert.Equal(t, 2*recoveryPulses*recoveryHalfPeriod, slept)
	assert.True(t, m.Active())
	opened, closed, _ := bus.Stats()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 1, closed)

	require.NoError(t, m.Release(ctx))
	require.NoError(t, m.Recover(ctx))
	assert.False(t, m.Active())
	opened, _, _ = bus.Stats()
	assert.Equal(t, 2, opened)
}

type stuckPin struct {
	*gpiotest.Pin
}

func (p *stuckPin) Out(gpio.Level) error {
	return errors.New("pin busy")
}

func TestManager_RecoverPinFailure(t *testing.T) {
	ctx := context.Background()
	bench := emulator.NewBench()
	m := NewManager(bench.Open, WithSCL(&stuckPin{Pin: &gpiotest.Pin{N: "SCL", Num: 22}}), WithSleep(func(time.Duration) {}))
	require.NoError(t, m.Acquire(ctx))

	err := m.Recover(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pin busy")
	assert.True(t, m.Active())
	assert.True(t, m.Detect(ctx, 0x3C))
	opened, closed, _ := bench.Stats()
	assert.Equal(t, 2, opened)
	assert.Equal(t, 1, closed)
}

func TestManager_RecoverPinAndReopenFailure(t *testing.T) {
	ctx := context.Background()
	bench := emulator.NewBench()
	calls := 0
	open := func(ctx context.Context) (i2c.BusCloser, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("no such device")
		}
		return bench.Open(ctx)
	}
	m := NewManager(open, WithSCL(&stuckPin{Pin: &gpiotest.Pin{N: "SCL", Num: 22}}), WithSleep(func(time.Duration) {}))
	require.NoError(t, m.Acquire(ctx))

	err := m.Recover(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pin busy")
	assert.False(t, m.Active())
	assert.False(t, m.Detect(ctx, 0x3C))
	assert.ErrorIs(t, m.ReadRegister(ctx, 0x3C, 0x00, make([]byte, 1)), halnode.ErrBusInactive)
	assert.ErrorIs(t, m.Tx(0x3C, nil, nil), halnode.ErrBusInactive)
}

func TestManager_RecoverUnsupported(t *testing.T) {
	m := NewManager(emulator.NewBus().Open)
	assert.ErrorIs(t, m.Recover(context.Background()), halnode.ErrRecoveryUnsupported)
}

func TestManager_RecoverFromBusPins(t *testing.T) {
	ctx := context.Background()
	scl := &countingPin{Pin: &gpiotest.Pin{N: "SCL", Num: 3}}
	pb := &i2ctest.Playback{SCLPin: scl, DontPanic: true}
	var opened int
	m := NewManager(playbackOpener(pb, &opened), WithSleep(func(time.Duration) {}))
	require.NoError(t, m.Acquire(ctx))
	require.NoError(t, m.Recover(ctx))
	assert.Len(t, scl.levels, 2*recoveryPulses)
	assert.Equal(t, 2, opened)
}

func TestPinsFor(t *testing.T) {
	assert.Equal(t, Pins{SDA: 6, SCL: 7}, PinsFor(VariantESP32C6))
	assert.Equal(t, Pins{SDA: 8, SCL: 9}, PinsFor(VariantESP32S3))
	assert.Equal(t, Pins{SDA: 4, SCL: 6}, PinsFor(VariantESP32C3))
	assert.Equal(t, Pins{SDA: 21, SCL: 22}, PinsFor("unknown"))
	assert.Equal(t, "SDA=GPIO21 SCL=GPIO22", PinsFor(VariantESP32).String())
}
