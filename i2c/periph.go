package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var (
	hostInit sync.Once
	hostErr  error
)

// OpenPeriph returns an Opener for a host bus registered with periph, e.g.
// "/dev/i2c-1", "I2C1" or "" for the first available bus.
func OpenPeriph(dev string) Opener {
	return func(ctx context.Context) (i2c.BusCloser, error) {
		hostInit.Do(func() {
			state, err := host.Init()
			if err != nil {
				hostErr = fmt.Errorf("could not init host: %w", err)
				return
			}
			for _, driver := range state.Loaded {
				slog.Debug("periph driver loaded", "driver", driver.String())
			}
		})
		if hostErr != nil {
			return nil, hostErr
		}
		bus, err := i2creg.Open(dev)
		if err != nil {
			return nil, fmt.Errorf("could not open i2c bus %q: %w", dev, err)
		}
		return bus, nil
	}
}

// Static wraps an already open bus so that the Manager can own its lifecycle.
// The bus is closed on release and cannot be reopened afterwards.
func Static(bus i2c.BusCloser) Opener {
	var used bool
	return func(ctx context.Context) (i2c.BusCloser, error) {
		if used {
			return nil, fmt.Errorf("static bus %s already closed", bus)
		}
		used = true
		return bus, nil
	}
}
