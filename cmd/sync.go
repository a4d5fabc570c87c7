package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var syncDryRun bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronization pass against the device",
	Long: `Resolves the configured selection criteria, computes the incremental
transfer plan against recorded device state and executes it. Exit code 0
means every entry succeeded, 1 means the run completed with failed
entries, 2 means a precondition (unreadable library, unreachable device)
prevented the run.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := setup()
		if err != nil {
			cmd.PrintErrln(err)
			os.Exit(2)
		}

		engine, cleanup, err := buildEngine(cfg)
		if err != nil {
			cmd.PrintErrln(err)
			os.Exit(2)
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report := engine.Run(ctx, syncDryRun)
		printReport(report)
		os.Exit(report.Status.ExitCode())
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false,
		"compute and print the plan without touching the device or state store")
	rootCmd.AddCommand(syncCmd)
}
