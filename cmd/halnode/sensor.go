package main

import (
	"context"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/adc"
	"github.com/mklimuk/halnode/cmd/halnode/console"
	"github.com/mklimuk/halnode/environment"
	"github.com/mklimuk/halnode/hub"
	"github.com/urfave/cli/v2"
)

var sensorCmd = cli.Command{
	Name:  "sensor",
	Usage: "read a sensor",
	Subcommands: []*cli.Command{
		&sensorGenericCmd,
		&sensorBME280Cmd,
		&sensorBH1750Cmd,
		&sensorSHT31Cmd,
		&sensorADS1115Cmd,
	},
}

var sensorGenericCmd = cli.Command{
	Name:      "generic",
	Usage:     "read a 1 or 2 byte big-endian register and scale it",
	ArgsUsage: "ADDR REG",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "len", Aliases: []string{"n"}, Value: 2},
		&cli.Float64Flag{Name: "scale", Value: 1},
	},
	Action: func(c *cli.Context) error {
		args, err := byteArgs(c, 0, "ADDR", "REG")
		if err != nil {
			return err
		}
		return withHub(c, func(ctx context.Context, h *hub.Hub) error {
			v, err := h.Read(ctx, halnode.SensorRef{
				Kind:   halnode.KindGeneric,
				Addr:   args[0],
				Reg:    args[1],
				RegLen: c.Int("len"),
				Scale:  float32(c.Float64("scale")),
			})
			if err != nil {
				return err
			}
			console.Print(console.Reading(v, ""))
			return nil
		})
	},
}

var sensorBME280Cmd = cli.Command{
	Name:      "bme280",
	Usage:     "read temperature, humidity and pressure",
	ArgsUsage: "[ADDR]",
	Action: func(c *cli.Context) error {
		addr, err := optionalAddr(c, environment.BME280AddrLow)
		if err != nil {
			return err
		}
		return withHub(c, func(ctx context.Context, h *hub.Hub) error {
			m, err := h.BME280.Measure(ctx, addr)
			if err != nil {
				return err
			}
			console.PInfof(console.PictoThermometer, "temperature: %s", console.Reading(m.Temperature, "°C"))
			console.PInfof(console.PictoHumidity, "humidity: %s", console.Reading(m.Humidity, "%"))
			console.PInfof(console.PictoPressure, "pressure: %s", console.Reading(m.Pressure, "hPa"))
			return nil
		})
	},
}

var sensorBH1750Cmd = cli.Command{
	Name:      "bh1750",
	Usage:     "read illuminance",
	ArgsUsage: "[ADDR]",
	Action: func(c *cli.Context) error {
		addr, err := optionalAddr(c, environment.BH1750AddrLow)
		if err != nil {
			return err
		}
		return withHub(c, func(ctx context.Context, h *hub.Hub) error {
			lux, err := h.BH1750.GetLux(ctx, addr)
			if err != nil {
				return err
			}
			console.PInfof(console.PictoLight, "illuminance: %s", console.Reading(lux, "lx"))
			return nil
		})
	},
}

var sensorSHT31Cmd = cli.Command{
	Name:      "sht31",
	Usage:     "read temperature and humidity",
	ArgsUsage: "[ADDR]",
	Action: func(c *cli.Context) error {
		addr, err := optionalAddr(c, environment.SHT31AddrLow)
		if err != nil {
			return err
		}
		return withHub(c, func(ctx context.Context, h *hub.Hub) error {
			temp, hum, err := h.SHT31.GetTempAndHum(ctx, addr)
			if err != nil {
				return err
			}
			console.PInfof(console.PictoThermometer, "temperature: %s", console.Reading(temp, "°C"))
			console.PInfof(console.PictoHumidity, "humidity: %s", console.Reading(hum, "%"))
			return nil
		})
	},
}

var sensorADS1115Cmd = cli.Command{
	Name:      "ads1115",
	Usage:     "read a single-ended channel in millivolts",
	ArgsUsage: "[ADDR]",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "channel", Aliases: []string{"c"}},
	},
	Action: func(c *cli.Context) error {
		addr, err := optionalAddr(c, adc.ADS1115AddrGND)
		if err != nil {
			return err
		}
		return withHub(c, func(ctx context.Context, h *hub.Hub) error {
			mv, err := h.Read(ctx, halnode.SensorRef{Kind: halnode.KindADS1115, Addr: addr, Channel: c.Int("channel")})
			if err != nil {
				return err
			}
			console.PInfof(console.PictoVoltage, "AIN%d: %s", c.Int("channel"), console.Reading(mv, "mV"))
			return nil
		})
	},
}

func optionalAddr(c *cli.Context, def byte) (byte, error) {
	if c.NArg() == 0 {
		return def, nil
	}
	args, err := byteArgs(c, 0, "ADDR")
	if err != nil {
		return 0, err
	}
	return args[0], nil
}
