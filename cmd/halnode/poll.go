package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/mklimuk/halnode/cmd/halnode/console"
	"github.com/mklimuk/halnode/dashboard"
	"github.com/mklimuk/halnode/hub"
	"github.com/mklimuk/halnode/sysinfo"
	"github.com/urfave/cli/v2"
)

var pollCmd = cli.Command{
	Name:  "poll",
	Usage: "refresh every registered display until interrupted",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "interval", Value: dashboard.DefaultInterval},
		&cli.StringFlag{Name: "name", Usage: "device name shown by {name}, defaults to the hostname"},
		&cli.BoolFlag{Name: "init", Value: true, Usage: "initialize the registered displays first"},
	},
	Action: func(c *cli.Context) error {
		return withHub(c, func(ctx context.Context, h *hub.Hub) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			reg, err := loadRegistry(c, h)
			if err != nil {
				return err
			}
			displays := reg.Displays()
			if len(displays) == 0 {
				return console.Exit(1, "no display in %s", c.String("registry"))
			}
			if c.Bool("init") {
				for _, d := range displays {
					if err := h.Display.Init(ctx, d.Addr, d.Height()); err != nil {
						console.Warnf("display %s: %s", d.Name, console.Red(err))
					}
				}
			}
			var opts []sysinfo.Option
			if name := c.String("name"); name != "" {
				opts = append(opts, sysinfo.WithName(name))
			}
			console.Infof("refreshing %d displays every %s", len(displays), c.Duration("interval"))
			p := h.Poller(reg, reg, sysinfo.New(opts...), dashboard.WithInterval(c.Duration("interval")))
			err = p.Run(ctx, 0)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}
