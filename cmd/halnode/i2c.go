package main

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/mklimuk/halnode/cmd/halnode/console"
	"github.com/mklimuk/halnode/i2c"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var i2cCmd = cli.Command{
	Name:  "i2c",
	Usage: "raw bus operations",
	Subcommands: []*cli.Command{
		&i2cScanCmd,
		&i2cDetectCmd,
		&i2cReadCmd,
		&i2cWriteCmd,
		&i2cRecoverCmd,
		&i2cPinsCmd,
	},
}

var i2cScanCmd = cli.Command{
	Name:  "scan",
	Usage: "list responding addresses",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "max", Value: 32, Usage: "maximum number of results"},
		&cli.BoolFlag{Name: "yaml", Usage: "print the result as YAML"},
	},
	Action: func(c *cli.Context) error {
		return withBus(c, func(ctx context.Context, m *i2c.Manager) error {
			found, err := m.Scan(ctx, c.Int("max"))
			if err != nil {
				return err
			}
			if c.Bool("yaml") {
				addrs := make([]string, len(found))
				for i, a := range found {
					addrs[i] = hex.EncodeToString([]byte{a})
				}
				return yaml.NewEncoder(console.Output()).Encode(map[string][]string{"addresses": addrs})
			}
			if len(found) == 0 {
				console.Warnf("no device responded")
				return nil
			}
			for _, a := range found {
				console.Print(console.Addr(a))
			}
			return nil
		})
	},
}

var i2cDetectCmd = cli.Command{
	Name:      "detect",
	Usage:     "check whether an address acknowledges",
	ArgsUsage: "ADDR",
	Action: func(c *cli.Context) error {
		args, err := byteArgs(c, 0, "ADDR")
		if err != nil {
			return err
		}
		return withBus(c, func(ctx context.Context, m *i2c.Manager) error {
			if !m.Detect(ctx, args[0]) {
				return console.Exit(1, "%s did not acknowledge", console.Addr(args[0]))
			}
			console.Printf("%s %s\n", console.Addr(args[0]), console.Green("present"))
			return nil
		})
	},
}

var i2cReadCmd = cli.Command{
	Name:      "read",
	Usage:     "read bytes from a register",
	ArgsUsage: "ADDR REG",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "len", Aliases: []string{"n"}, Value: 1},
	},
	Action: func(c *cli.Context) error {
		args, err := byteArgs(c, 0, "ADDR", "REG")
		if err != nil {
			return err
		}
		return withBus(c, func(ctx context.Context, m *i2c.Manager) error {
			buf := make([]byte, c.Int("len"))
			if err := m.ReadRegister(ctx, args[0], args[1], buf); err != nil {
				return err
			}
			console.Print(hex.EncodeToString(buf))
			return nil
		})
	},
}

var i2cWriteCmd = cli.Command{
	Name:      "write",
	Usage:     "write bytes to a register",
	ArgsUsage: "ADDR REG [BYTE...]",
	Action: func(c *cli.Context) error {
		args, err := byteArgs(c, 0, "ADDR", "REG")
		if err != nil {
			return err
		}
		data := make([]byte, 0, c.NArg()-2)
		for _, arg := range c.Args().Slice()[2:] {
			v, err := parseByte(arg)
			if err != nil {
				return console.Fail("invalid data", err)
			}
			data = append(data, v)
		}
		return withBus(c, func(ctx context.Context, m *i2c.Manager) error {
			if err := m.WriteRegister(ctx, args[0], args[1], data); err != nil {
				return err
			}
			console.Infof("wrote %d bytes to %s", len(data), console.Addr(args[0]))
			return nil
		})
	},
}

var i2cRecoverCmd = cli.Command{
	Name:  "recover",
	Usage: "clock SCL to release a slave holding SDA low",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			ok, err := console.Confirm("drive SCL manually; devices on the bus may see a partial transfer. continue?")
			if err != nil {
				return console.Fail("prompt error", err)
			}
			if !ok {
				return nil
			}
		}
		return withBus(c, func(ctx context.Context, m *i2c.Manager) error {
			if err := m.Recover(ctx); err != nil {
				return err
			}
			console.Infof("bus recovery attempted on %s", m)
			return nil
		})
	},
}

var i2cPinsCmd = cli.Command{
	Name:      "pins",
	Usage:     "print the fixed bus pins of a chip variant",
	ArgsUsage: "[VARIANT]",
	Action: func(c *cli.Context) error {
		variants := []i2c.Variant{i2c.VariantESP32, i2c.VariantESP32C3, i2c.VariantESP32C6, i2c.VariantESP32S3}
		if c.NArg() > 0 {
			variants = []i2c.Variant{i2c.Variant(strings.ToLower(c.Args().First()))}
		}
		for _, v := range variants {
			console.PInfof(console.PictoPin, "%-8s %s", v, i2c.PinsFor(v))
		}
		return nil
	},
}
