package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/halnode"
)

const BH1750AddrHigh = 0b1011100
const BH1750AddrLow = 0b0100011

const (
	opCodePowerOn                  = 0b00000001
	opCodeContinuousHighResolution = 0b00010000
)

type bh1750Slot struct {
	addr  byte
	ready bool
}

// BH1750 reads ambient light in lux. Each chip is powered on and switched to
// continuous high resolution mode on first access; later reads only fetch
// the latest conversion.
type BH1750 struct {
	transport halnode.I2CBus
	mx        sync.Mutex
	slots     []bh1750Slot
}

func NewBH1750(transport halnode.I2CBus, opts ...Option) *BH1750 {
	c := newConfig(DefaultLightSlots, opts)
	return &BH1750{
		transport: transport,
		slots:     make([]bh1750Slot, c.slots),
	}
}

func (sensor *BH1750) GetLux(ctx context.Context, addr byte) (float32, error) {
	if !sensor.transport.Active() {
		return nan, halnode.ErrBusInactive
	}
	if err := sensor.init(ctx, addr); err != nil {
		return nan, err
	}
	buf := make([]byte, 2)
	err := sensor.transport.ReadFromAddr(ctx, addr, buf)
	if err != nil {
		return nan, fmt.Errorf("bh1750: could not read data: %w", err)
	}
	return convertLux(buf), nil
}

func (sensor *BH1750) init(ctx context.Context, addr byte) error {
	sensor.mx.Lock()
	defer sensor.mx.Unlock()
	slot := sensor.slot(addr)
	if slot == nil {
		return fmt.Errorf("bh1750: cannot track %#02x: %w", addr, halnode.ErrCapacityExhausted)
	}
	if slot.ready {
		return nil
	}
	// no wait for the first conversion: the first sample after init may be 0
	for _, op := range []byte{opCodePowerOn, opCodeContinuousHighResolution} {
		err := sensor.transport.WriteToAddr(ctx, addr, []byte{op})
		if err != nil {
			return fmt.Errorf("bh1750: could not write command %#02x: %w", op, err)
		}
	}
	slot.ready = true
	slog.Info("bh1750: initialized", "addr", fmt.Sprintf("%#02x", addr))
	return nil
}

// slot returns the slot bound to addr, binding a free one if needed.
func (sensor *BH1750) slot(addr byte) *bh1750Slot {
	for i := range sensor.slots {
		if sensor.slots[i].addr == addr {
			return &sensor.slots[i]
		}
	}
	for i := range sensor.slots {
		if sensor.slots[i].addr == 0 {
			sensor.slots[i].addr = addr
			return &sensor.slots[i]
		}
	}
	return nil
}

func convertLux(raw []byte) float32 {
	return float32(binary.BigEndian.Uint16(raw)) / 1.2
}
