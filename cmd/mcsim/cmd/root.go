// Package cmd implements the mcsim command line.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree. Each call returns independent flag state.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcsim",
		Short: "Monte Carlo simulator for trading strategies",
		Long: `mcsim simulates thousands of possible trade sequences for a strategy described by
its win rate, reward/risk ratio and commission, and reports the spread of outcomes,
drawdowns, losing streaks and Kelly sizing.

Examples:
  mcsim run --win-rate 45 --rr 2 --trades 200 --sims 10000
  mcsim run --model balance --balance 25000 --risk 1 --risk-type percentage
  mcsim run --params strategy.yaml --output yaml
  mcsim kelly --win-rate 55 --rr 1.5 --balance 10000`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newRunCmd(), newKellyCmd(), newVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
