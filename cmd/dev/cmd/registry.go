package cmd

import (
	"fmt"
	"log/slog"

	"github.com/mklimuk/halnode"
	"github.com/mklimuk/halnode/registry"
	"github.com/spf13/cobra"
)

// sampleDevices matches the chips of the emulated bench so that the sample
// file works with --adapter emulator out of the box.
var sampleDevices = []registry.Entry{
	{Name: "temp", Kind: string(halnode.KindBME280), Addr: 0x76, Channel: 0},
	{Name: "hum", Kind: string(halnode.KindBME280), Addr: 0x76, Channel: 1},
	{Name: "press", Kind: string(halnode.KindBME280), Addr: 0x76, Channel: 2},
	{Name: "lux", Kind: string(halnode.KindBH1750), Addr: 0x23},
	{Name: "rh", Kind: string(halnode.KindSHT31), Addr: 0x44, Channel: 1},
	{Name: "ain0", Kind: string(halnode.KindADS1115), Addr: 0x48},
	{Name: "relay", Kind: registry.KindActuator},
	{Name: "oled", Kind: registry.KindSSD1306, Addr: 0x3C, Pin: 1, Template: "{name} {ip}\nT={temp} H={hum}\nP={press}\nup {uptime}"},
}

func RegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample-registry",
		Short: "Write a sample device registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := cmd.Flags().GetString("output")
			if err != nil {
				return fmt.Errorf("could not get output flag: %w", err)
			}
			reg, err := registry.New(nil, sampleDevices...)
			if err != nil {
				return fmt.Errorf("invalid sample registry: %w", err)
			}
			if err := reg.Save(path); err != nil {
				return err
			}
			slog.Info("sample registry written", "path", path, "devices", len(sampleDevices))
			return nil
		},
	}
	cmd.Flags().String("output", "devices.yaml", "registry file to write")
	return cmd
}
