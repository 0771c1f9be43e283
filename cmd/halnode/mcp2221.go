package main

import (
	"context"

	"github.com/mklimuk/halnode/adapter"
	"github.com/mklimuk/halnode/cmd/halnode/console"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var idFlag = &cli.IntFlag{Name: "id", Usage: "bridge index as listed by usb detect"}

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "inspect the MCP2221 USB bridge",
	Subcommands: []*cli.Command{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Flags: []cli.Flag{idFlag},
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.Status(ctx)
		})
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current transfer and free the bus",
	Flags: []cli.Flag{idFlag},
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.ReleaseBus(ctx)
		})
	},
}

func withMCP2221(c *cli.Context, fn func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error)) error {
	a, err := adapter.Open(c.Int("id"), adapter.WithVerbose(c.Bool("verbose")))
	if err != nil {
		return console.Fail("adapter initialization error", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			console.Warnf("error closing adapter: %s", console.Red(err))
		}
	}()
	status, err := fn(commandContext(c), a)
	if err != nil {
		return console.Fail("adapter communication error", err)
	}
	if err := yaml.NewEncoder(console.Output()).Encode(status); err != nil {
		return console.Fail("encoding error", err)
	}
	return nil
}
