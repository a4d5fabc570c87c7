package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"dapsync/transport"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Inspect the connected device",
}

var deviceInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print identifying properties of the device",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		adb := transport.NewADBClient(cfg.ADBPath, cfg.DeviceAddr(), cfg.PushTimeout, cfg.ShellTimeout)
		ctx := context.Background()
		if err := adb.Connect(ctx); err != nil {
			return err
		}
		defer adb.Disconnect()

		info, err := adb.DeviceInfo(ctx)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(info))
		for k := range info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-14s %s\n", k, info[k])
		}
		return nil
	},
}

var deviceDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "List device files no sync record accounts for",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}

		engine, cleanup, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		drift, err := engine.Drift(context.Background())
		if err != nil {
			return err
		}
		if len(drift) == 0 {
			fmt.Println("no drift detected")
			return nil
		}
		for _, file := range drift {
			fmt.Println(file)
		}
		os.Exit(1)
		return nil
	},
}

func init() {
	deviceCmd.AddCommand(deviceInfoCmd)
	deviceCmd.AddCommand(deviceDriftCmd)
	rootCmd.AddCommand(deviceCmd)
}
