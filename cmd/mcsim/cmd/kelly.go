package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/atlas-desktop/journal-backend/internal/sizing"
)

type kellyOptions struct {
	winRate float64
	rr      float64
	balance float64
}

func newKellyCmd() *cobra.Command {
	opts := &kellyOptions{}

	cmd := &cobra.Command{
		Use:   "kelly",
		Short: "Compute Kelly Criterion position sizing",
		Long: `Kelly computes the full, half and quarter Kelly fractions for a win rate and
reward/risk ratio, and optionally the dollar risk for an account balance.

Example:
  mcsim kelly --win-rate 50 --rr 2 --balance 10000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKelly(cmd, opts)
		},
	}

	cmd.Flags().Float64VarP(&opts.winRate, "win-rate", "w", 50, "win rate in percent (0-100)")
	cmd.Flags().Float64Var(&opts.rr, "rr", 2, "reward/risk ratio")
	cmd.Flags().Float64VarP(&opts.balance, "balance", "b", 0, "account balance for a dollar risk figure (optional)")
	return cmd
}

func runKelly(cmd *cobra.Command, opts *kellyOptions) error {
	if opts.winRate < 0 || opts.winRate > 100 {
		return fmt.Errorf("win-rate must be between 0 and 100, got %v", opts.winRate)
	}
	if opts.rr <= 0 {
		return fmt.Errorf("rr must be greater than 0, got %v", opts.rr)
	}

	k := sizing.Kelly(opts.winRate, opts.rr)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Full Kelly:    %.2f%%\n", k.Full)
	fmt.Fprintf(out, "Half Kelly:    %.2f%%\n", k.Half)
	fmt.Fprintf(out, "Quarter Kelly: %.2f%%\n", k.Quarter)
	fmt.Fprintf(out, "Level:         %s\n", k.Level)
	if opts.balance > 0 {
		risk := sizing.SuggestRisk(decimal.NewFromFloat(opts.balance), k.RecommendedFraction())
		fmt.Fprintf(out, "Suggested risk: $%s per trade\n", risk.StringFixed(2))
	}
	fmt.Fprintf(out, "\n%s\n", k.Recommendation)
	return nil
}
