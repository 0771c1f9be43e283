package i2c

import (
	"context"
	"fmt"
	"log/slog"

	gobotI2C "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

var _ i2c.BusCloser = &GobotBus{}

// GobotBus adapts a gobot I2C connector to the periph bus contract. A generic
// driver is started lazily for every address that is talked to.
type GobotBus struct {
	connector gobotI2C.Connector
	busNr     int
	drivers   map[uint16]*gobotI2C.GenericDriver
	finalize  func() error
}

func NewGobotBus(connector gobotI2C.Connector, busNr int, finalize func() error) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		drivers:   make(map[uint16]*gobotI2C.GenericDriver),
		finalize:  finalize,
	}
}

// OpenNanoPi returns an Opener for the given bus of a NanoPi NEO board.
func OpenNanoPi(busNr int) Opener {
	return func(ctx context.Context) (i2c.BusCloser, error) {
		npi := nanopi.NewNeoAdaptor()
		err := npi.I2cBusAdaptor.Connect()
		if err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		return NewGobotBus(npi, busNr, npi.I2cBusAdaptor.Finalize), nil
	}
}

func (b *GobotBus) driver(addr uint16) (*gobotI2C.GenericDriver, error) {
	if d, ok := b.drivers[addr]; ok {
		return d, nil
	}
	d := gobotI2C.NewGenericDriver(b.connector, fmt.Sprintf("dev-%#02x", addr), int(addr), func(c gobotI2C.Config) {
		c.SetBus(b.busNr)
	})
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("start error: %w", err)
	}
	b.drivers[addr] = d
	return d, nil
}

// Tx issues the write and the read as two separate messages; gobot exposes no
// combined transfer. An empty transaction is probed with a one byte read.
func (b *GobotBus) Tx(addr uint16, w, r []byte) error {
	d, err := b.driver(addr)
	if err != nil {
		return err
	}
	if len(w) == 0 && len(r) == 0 {
		return d.Read(make([]byte, 1))
	}
	if len(w) > 0 {
		if err := d.Write(w); err != nil {
			return fmt.Errorf("write error: %w", err)
		}
	}
	if len(r) > 0 {
		if err := d.Read(r); err != nil {
			return fmt.Errorf("read error: %w", err)
		}
	}
	return nil
}

// SetSpeed is accepted and ignored: the clock is fixed by the kernel driver.
func (b *GobotBus) SetSpeed(f physic.Frequency) error {
	slog.Debug("gobot bus speed is fixed by the platform", "requested", f.String())
	return nil
}

func (b *GobotBus) String() string {
	return fmt.Sprintf("gobot-i2c-%d", b.busNr)
}

func (b *GobotBus) Close() error {
	for addr, d := range b.drivers {
		if err := d.Halt(); err != nil {
			slog.Warn("gobot driver halt failed", "addr", fmt.Sprintf("%#02x", addr), "err", err)
		}
	}
	clear(b.drivers)
	if b.finalize == nil {
		return nil
	}
	return b.finalize()
}
