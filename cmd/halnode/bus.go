package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mklimuk/halnode/adapter"
	"github.com/mklimuk/halnode/cmd/halnode/console"
	"github.com/mklimuk/halnode/emulator"
	"github.com/mklimuk/halnode/hub"
	"github.com/mklimuk/halnode/i2c"
	"github.com/mklimuk/halnode/snsctx"
	"github.com/urfave/cli/v2"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	adapterPeriph   = "periph"
	adapterNanoPi   = "nanopi"
	adapterMCP2221  = "mcp2221"
	adapterEmulator = "emulator"
)

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

func opener(c *cli.Context) (i2c.Opener, error) {
	device := c.String("device")
	switch c.String("adapter") {
	case adapterPeriph:
		return i2c.OpenPeriph(device), nil
	case adapterNanoPi:
		busNr, err := strconv.Atoi(device)
		if err != nil {
			return nil, fmt.Errorf("nanopi adapter needs a bus number, got %q", device)
		}
		return i2c.OpenNanoPi(busNr), nil
	case adapterMCP2221:
		// the default device path selects the first bridge
		id, err := strconv.Atoi(device)
		if err != nil {
			id = 0
		}
		return adapter.Opener(id), nil
	case adapterEmulator:
		return emulator.NewBench().Open, nil
	}
	return nil, fmt.Errorf("unknown adapter %q", c.String("adapter"))
}

func managerOptions(c *cli.Context) ([]i2c.Option, error) {
	opts := []i2c.Option{
		i2c.WithTimeout(c.Duration("timeout")),
		i2c.WithSpeed(physic.Frequency(c.Int("speed")) * physic.KiloHertz),
	}
	scl := c.String("scl")
	if scl == "" && c.String("variant") != "" {
		scl = fmt.Sprintf("GPIO%d", i2c.PinsFor(i2c.Variant(c.String("variant"))).SCL)
	}
	if scl != "" {
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("could not init host GPIO: %w", err)
		}
		pin := gpioreg.ByName(scl)
		if pin == nil {
			return nil, fmt.Errorf("unknown SCL pin %q", scl)
		}
		opts = append(opts, i2c.WithSCL(pin))
	}
	return opts, nil
}

func newManager(c *cli.Context) (*i2c.Manager, error) {
	open, err := opener(c)
	if err != nil {
		return nil, err
	}
	opts, err := managerOptions(c)
	if err != nil {
		return nil, err
	}
	return i2c.NewManager(open, opts...), nil
}

// withBus runs fn with an acquired bus that is released afterwards.
func withBus(c *cli.Context, fn func(ctx context.Context, m *i2c.Manager) error) error {
	m, err := newManager(c)
	if err != nil {
		return console.Fail("bus configuration error", err)
	}
	ctx := commandContext(c)
	err = m.With(ctx, func() error {
		return fn(ctx, m)
	})
	if err != nil {
		if _, ok := err.(cli.ExitCoder); ok {
			return err
		}
		return console.Fail("bus error", err)
	}
	return nil
}

func withHub(c *cli.Context, fn func(ctx context.Context, h *hub.Hub) error) error {
	return withBus(c, func(ctx context.Context, m *i2c.Manager) error {
		return fn(ctx, hub.New(m))
	})
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q: %w", s, err)
	}
	return byte(v), nil
}

// byteArgs parses positional arguments starting at index from.
func byteArgs(c *cli.Context, from int, names ...string) ([]byte, error) {
	out := make([]byte, len(names))
	for i, name := range names {
		arg := c.Args().Get(from + i)
		if arg == "" {
			return nil, console.Exit(1, "missing %s argument", name)
		}
		v, err := parseByte(arg)
		if err != nil {
			return nil, console.Exit(1, "%s: %s", name, console.Red(err))
		}
		out[i] = v
	}
	return out, nil
}
