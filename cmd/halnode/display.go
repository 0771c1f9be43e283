package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/cmd/halnode/console"
	"github.com/mklimuk/halnode/display"
	"github.com/mklimuk/halnode/emulator"
	"github.com/mklimuk/halnode/hub"
	"github.com/mklimuk/halnode/i2c"
	"github.com/mklimuk/halnode/registry"
	"github.com/mklimuk/halnode/sysinfo"
	"github.com/urfave/cli/v2"
)

var heightFlag = &cli.IntFlag{Name: "height", Value: 64, Usage: "panel height in pixels (32 or 64)"}

var templateFlag = &cli.StringFlag{
	Name:    "template",
	Aliases: []string{"t"},
	Usage:   `display template, \n separates lines; prompted for when empty`,
}

var displayCmd = cli.Command{
	Name:  "display",
	Usage: "drive an SSD1306 panel",
	Subcommands: []*cli.Command{
		&displayInitCmd,
		&displayDeinitCmd,
		&displayClearCmd,
		&displayTextCmd,
		&displayRenderCmd,
		&displayPreviewCmd,
	},
}

var displayInitCmd = cli.Command{
	Name:      "init",
	ArgsUsage: "[ADDR]",
	Flags:     []cli.Flag{heightFlag},
	Action: func(c *cli.Context) error {
		return withDisplay(c, func(ctx context.Context, h *hub.Hub, addr byte) error {
			return h.Display.Init(ctx, addr, c.Int("height"))
		})
	},
}

var displayDeinitCmd = cli.Command{
	Name:      "deinit",
	ArgsUsage: "[ADDR]",
	Action: func(c *cli.Context) error {
		return withDisplay(c, func(ctx context.Context, h *hub.Hub, addr byte) error {
			return h.Display.Deinit(ctx, addr)
		})
	},
}

var displayClearCmd = cli.Command{
	Name:      "clear",
	ArgsUsage: "[ADDR]",
	Action: func(c *cli.Context) error {
		return withDisplay(c, func(ctx context.Context, h *hub.Hub, addr byte) error {
			return h.Display.Clear(ctx, addr)
		})
	},
}

var displayTextCmd = cli.Command{
	Name:      "text",
	Usage:     "write one line of text",
	ArgsUsage: "ADDR LINE TEXT",
	Action: func(c *cli.Context) error {
		args, err := byteArgs(c, 0, "ADDR")
		if err != nil {
			return err
		}
		if c.NArg() < 2 {
			return console.Exit(1, "missing LINE argument")
		}
		line, err := strconv.Atoi(c.Args().Get(1))
		if err != nil {
			return console.Fail("invalid line", err)
		}
		text := strings.Join(c.Args().Slice()[2:], " ")
		return withHub(c, func(ctx context.Context, h *hub.Hub) error {
			return h.Display.WriteText(ctx, args[0], line, text)
		})
	},
}

var displayRenderCmd = cli.Command{
	Name:      "render",
	Usage:     "expand a template and render it",
	ArgsUsage: "[ADDR]",
	Flags: []cli.Flag{
		heightFlag,
		templateFlag,
		&cli.BoolFlag{Name: "init", Usage: "initialize the panel first"},
	},
	Action: func(c *cli.Context) error {
		tmpl, err := readTemplate(c)
		if err != nil {
			return err
		}
		return withDisplay(c, func(ctx context.Context, h *hub.Hub, addr byte) error {
			if c.Bool("init") {
				if err := h.Display.Init(ctx, addr, c.Int("height")); err != nil {
					return err
				}
			}
			devices, err := loadRegistry(c, h)
			if err != nil {
				return err
			}
			return h.Renderer(devices, sysinfo.New()).Render(ctx, addr, tmpl, c.Int("height"))
		})
	},
}

var displayPreviewCmd = cli.Command{
	Name:  "preview",
	Usage: "render a template on an emulated panel and print it",
	Flags: []cli.Flag{heightFlag, templateFlag},
	Action: func(c *cli.Context) error {
		tmpl, err := readTemplate(c)
		if err != nil {
			return err
		}
		bench := emulator.NewBench()
		m := i2c.NewManager(bench.Open)
		ctx := commandContext(c)
		if err := m.Acquire(ctx); err != nil {
			return console.Fail("emulator error", err)
		}
		defer func() {
			if err := m.Release(ctx); err != nil {
				slog.Warn("could not release emulated bus", "err", err)
			}
		}()
		h := hub.New(m)
		height := c.Int("height")
		if err := h.Display.Init(ctx, display.SSD1306Addr, height); err != nil {
			return console.Fail("emulated display error", err)
		}
		devices, err := loadRegistry(c, h)
		if err != nil {
			return err
		}
		if err := h.Renderer(devices, sysinfo.New()).Render(ctx, display.SSD1306Addr, tmpl, height); err != nil {
			return console.Fail("render error", err)
		}
		if height != 32 {
			height = 64
		}
		console.PInfof(console.PictoDisplay, "%dx%d", display.Width, height)
		console.Printf("%s", bench.Display.Render(height))
		return nil
	},
}

func withDisplay(c *cli.Context, fn func(ctx context.Context, h *hub.Hub, addr byte) error) error {
	addr, err := optionalAddr(c, display.SSD1306Addr)
	if err != nil {
		return err
	}
	return withHub(c, func(ctx context.Context, h *hub.Hub) error {
		return fn(ctx, h, addr)
	})
}

func readTemplate(c *cli.Context) (string, error) {
	tmpl := c.String("template")
	if tmpl == "" {
		var err error
		tmpl, err = console.Template("template")
		if err != nil {
			return "", console.Fail("prompt error", err)
		}
	}
	return strings.ReplaceAll(tmpl, `\n`, "\n"), nil
}

// loadRegistry returns the registry named by the global flag, or an empty
// one when the file does not exist.
func loadRegistry(c *cli.Context, reader halnode.SensorReader) (*registry.Registry, error) {
	r, err := registry.Load(c.String("registry"), reader)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no registry file, template tokens will not resolve", "path", c.String("registry"))
		return registry.New(reader)
	}
	if err != nil {
		return nil, console.Fail("registry error", err)
	}
	return r, nil
}
