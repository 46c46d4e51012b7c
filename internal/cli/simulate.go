package cli

import (
	"github.com/spf13/cobra"

	"payment-sentinel/internal/app"
)

var (
	simCounterparty string
	simInstrument   string
	simAvgAmount    float64
	simCount        int
	simFailureRate  float64
	simSignal       string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one synthetic cluster through the arbitration pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Counterparty:   simCounterparty,
			InstrumentType: simInstrument,
			AvgAmount:      simAvgAmount,
			Count:          simCount,
			FailureRate:    simFailureRate,
			Signal:         simSignal,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simCounterparty, "counterparty", "TESTBANK", "Counterparty for the synthetic cluster")
	simulateCmd.Flags().StringVar(&simInstrument, "instrument", "credit_card", "Instrument type for the synthetic cluster")
	simulateCmd.Flags().Float64Var(&simAvgAmount, "avg-amount", 7842.50, "Average failed amount")
	simulateCmd.Flags().IntVar(&simCount, "count", 50, "Number of failed transactions")
	simulateCmd.Flags().Float64Var(&simFailureRate, "failure-rate", 0.18, "Segment failure rate within (0,1]")
	simulateCmd.Flags().StringVar(&simSignal, "signal", "stable", "Temporal signal: stable, spike_detected, or declining")
}
