package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run())
}

func run() int {
	err := newApp().Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		return 1
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "halnode"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "I2C sensor and display bench tool"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable debug logging and bus transaction dumps",
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Value:   adapterPeriph,
			Usage:   "bus adapter: periph, nanopi, mcp2221 or emulator",
			EnvVars: []string{"HALNODE_ADAPTER"},
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Value:   "/dev/i2c-1",
			Usage:   "periph bus name, nanopi bus number or mcp2221 index",
			EnvVars: []string{"HALNODE_DEVICE"},
		},
		&cli.StringFlag{
			Name:    "registry",
			Aliases: []string{"r"},
			Value:   "devices.yaml",
			Usage:   "device registry file",
			EnvVars: []string{"HALNODE_REGISTRY"},
		},
		&cli.IntFlag{
			Name:  "speed",
			Value: 100,
			Usage: "bus clock in kHz",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: 50 * time.Millisecond,
			Usage: "per transaction timeout, 0 disables it",
		},
		&cli.StringFlag{
			Name:  "scl",
			Usage: "host GPIO driving SCL during bus recovery, e.g. GPIO22",
		},
		&cli.StringFlag{
			Name:  "variant",
			Usage: "chip variant whose fixed SCL pin is used for recovery (esp32, esp32c3, esp32c6, esp32s3)",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&i2cCmd,
		&sensorCmd,
		&displayCmd,
		&pollCmd,
		&mcp2221Cmd,
		&usbCmd,
	}
	return app
}
