// Package emulator provides an in-memory I2C bus and device models used to
// exercise drivers without hardware.
package emulator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

var _ i2c.BusCloser = &Bus{}

// ErrNACK is returned for transactions addressed to an empty slot.
var ErrNACK = fmt.Errorf("emulator: address not acknowledged")

// Device answers the transactions addressed to it. w is the full write
// payload and r must be filled completely.
type Device interface {
	Tx(w, r []byte) error
}

// DeviceFunc adapts a function to the Device interface.
type DeviceFunc func(w, r []byte) error

func (f DeviceFunc) Tx(w, r []byte) error { return f(w, r) }

// Bus routes transactions to attached devices by address. It survives Close
// so that it can be reopened, e.g. after a bus recovery.
type Bus struct {
	mx      sync.Mutex
	devices map[uint16]Device
	speed   physic.Frequency
	opened  int
	closed  int
	txs     int
}

func NewBus() *Bus {
	return &Bus{devices: make(map[uint16]Device)}
}

func (b *Bus) Attach(addr uint16, dev Device) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.devices[addr] = dev
}

func (b *Bus) Detach(addr uint16) {
	b.mx.Lock()
	defer b.mx.Unlock()
	delete(b.devices, addr)
}

// Addresses lists the attached addresses in ascending order.
func (b *Bus) Addresses() []uint16 {
	b.mx.Lock()
	defer b.mx.Unlock()
	addrs := make([]uint16, 0, len(b.devices))
	for a := range b.devices {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Open has the signature of an i2c.Opener.
func (b *Bus) Open(ctx context.Context) (i2c.BusCloser, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.opened++
	return b, nil
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mx.Lock()
	dev, ok := b.devices[addr]
	b.txs++
	b.mx.Unlock()
	if !ok {
		return fmt.Errorf("%w: %#02x", ErrNACK, addr)
	}
	return dev.Tx(w, r)
}

func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.speed = f
	return nil
}

func (b *Bus) Speed() physic.Frequency {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.speed
}

func (b *Bus) String() string { return "emulator" }

func (b *Bus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.closed++
	return nil
}

// Stats returns how many times the bus was opened and closed and the number
// of transactions it routed.
func (b *Bus) Stats() (opened, closed, txs int) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.opened, b.closed, b.txs
}
