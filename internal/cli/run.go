package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"payment-sentinel/internal/app"
)

var (
	runInput        string
	runSkipBaseline bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate a transaction batch and record decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runInput == "" {
			return fmt.Errorf("--input is required")
		}

		opts := app.RunOptions{
			InputPath:    runInput,
			SkipBaseline: runSkipBaseline,
		}
		return getApp().Run(cmd.Context(), opts)
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "Path to the transaction batch (JSON array)")
	runCmd.Flags().BoolVar(&runSkipBaseline, "skip-baseline", false, "Skip the naive reroute-everything comparison")
}
