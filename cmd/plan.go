package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the transfer plan for the current criteria without executing it",
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

		report := engine.Run(context.Background(), true)
		printReport(report)
		os.Exit(report.Status.ExitCode())
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
