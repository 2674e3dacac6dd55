package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/atlas-desktop/journal-backend/internal/insights"
	"github.com/atlas-desktop/journal-backend/internal/logging"
	"github.com/atlas-desktop/journal-backend/internal/montecarlo"
)

type runOptions struct {
	params     montecarlo.SimulationParams
	paramsFile string
	seed       int64
	workers    int
	output     string
	quiet      bool
}

// runReport is what run prints in json and yaml mode.
type runReport struct {
	Result   *montecarlo.MonteCarloResult `json:"result"`
	Insights insights.Insights            `json:"insights"`
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Monte Carlo simulation",
		Long: `Run simulates --sims independent sequences of --trades trades and prints
outcome percentiles, drawdowns, streaks, risk ratios and Kelly sizing.

Parameters can come from a YAML or JSON file (--params); flags given on the
command line override the file.

Example params file:
  numberOfTrades: 200
  simulationCount: 10000
  winRate: 45
  rewardRiskRatio: 2
  commissionImpact: 0.05
  model: balance
  initialBalance: 25000
  riskPerTrade: 1
  riskType: percentage`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.params.NumberOfTrades, "trades", "t", 100, "trades per simulation")
	f.IntVarP(&opts.params.SimulationCount, "sims", "n", 1000, "number of simulations")
	f.Float64VarP(&opts.params.WinRate, "win-rate", "w", 50, "win rate in percent (0-100)")
	f.Float64Var(&opts.params.RewardRiskRatio, "rr", 2, "reward/risk ratio")
	f.Float64VarP(&opts.params.CommissionImpact, "commission", "c", 0, "commission per trade (R, or currency for the balance model)")
	f.StringVarP((*string)(&opts.params.Model), "model", "m", string(montecarlo.ModelRMultiple), "risk model (r_multiple, balance)")
	f.Float64VarP(&opts.params.InitialBalance, "balance", "b", 10_000, "balance model: starting balance")
	f.Float64Var(&opts.params.RiskPerTrade, "risk", 1, "balance model: risk per trade")
	f.StringVar((*string)(&opts.params.RiskType), "risk-type", string(montecarlo.RiskPercentage), "balance model: risk type (fixed, percentage)")
	f.StringVarP(&opts.paramsFile, "params", "p", "", "YAML or JSON file with simulation parameters")
	f.Int64Var(&opts.seed, "seed", 0, "random seed (0 picks one and reports it)")
	f.IntVar(&opts.workers, "workers", 0, "parallel workers (0 means one per CPU)")
	f.StringVarP(&opts.output, "output", "o", "text", "output format (text, json, yaml)")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "omit the sample run trade list")

	return cmd
}

func runSimulation(cmd *cobra.Command, opts *runOptions) error {
	params, err := resolveParams(cmd, opts)
	if err != nil {
		return err
	}
	if params.Kind() != montecarlo.ModelBalance {
		params.InitialBalance, params.RiskPerTrade, params.RiskType = 0, 0, ""
	}

	switch opts.output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (supported: text, json, yaml)", opts.output)
	}

	level, _ := cmd.Flags().GetString("log-level")
	logger, err := logging.New(level, "stderr")
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	config := montecarlo.DefaultSimulatorConfig()
	config.Seed = opts.seed
	config.ParallelWorkers = opts.workers
	simulator := montecarlo.NewSimulator(logger, config, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := simulator.RunSimulation(ctx, params)
	if err != nil {
		return err
	}
	if opts.quiet {
		result.SampleRun.Trades = nil
	}

	report := runReport{Result: result, Insights: insights.Generate(result)}
	out := cmd.OutOrStdout()

	switch opts.output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		return writeYAML(out, report)
	default:
		return writeText(out, report)
	}
}

// resolveParams loads the params file, if any, and applies explicitly set flags
// on top of it.
func resolveParams(cmd *cobra.Command, opts *runOptions) (montecarlo.SimulationParams, error) {
	if opts.paramsFile == "" {
		return opts.params, nil
	}

	data, err := os.ReadFile(opts.paramsFile)
	if err != nil {
		return montecarlo.SimulationParams{}, fmt.Errorf("read params file: %w", err)
	}
	var params montecarlo.SimulationParams
	if err := yaml.Unmarshal(data, &params); err != nil {
		return montecarlo.SimulationParams{}, fmt.Errorf("parse params file: %w", err)
	}

	f := cmd.Flags()
	overrides := []struct {
		flag  string
		apply func()
	}{
		{"trades", func() { params.NumberOfTrades = opts.params.NumberOfTrades }},
		{"sims", func() { params.SimulationCount = opts.params.SimulationCount }},
		{"win-rate", func() { params.WinRate = opts.params.WinRate }},
		{"rr", func() { params.RewardRiskRatio = opts.params.RewardRiskRatio }},
		{"commission", func() { params.CommissionImpact = opts.params.CommissionImpact }},
		{"model", func() { params.Model = opts.params.Model }},
		{"balance", func() { params.InitialBalance = opts.params.InitialBalance }},
		{"risk", func() { params.RiskPerTrade = opts.params.RiskPerTrade }},
		{"risk-type", func() { params.RiskType = opts.params.RiskType }},
	}
	for _, o := range overrides {
		if f.Changed(o.flag) {
			o.apply()
		}
	}
	return params, nil
}

// writeYAML emits the report with the same camelCase keys and field order as
// the JSON output.
func writeYAML(w io.Writer, report runReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return err
	}
	clearStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

// clearStyle drops the flow and quoting styles inherited from JSON.
func clearStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		clearStyle(c)
	}
}

func writeText(w io.Writer, report runReport) error {
	r := report.Result
	s := r.Statistics
	p := r.Params
	balance := p.Kind() == montecarlo.ModelBalance

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	unit := "R"
	if balance {
		unit = ""
	}

	fmt.Fprintf(tw, "Monte Carlo simulation\t\n")
	fmt.Fprintf(tw, "  Model\t%s\n", p.Kind())
	fmt.Fprintf(tw, "  Simulations x trades\t%d x %d\n", p.SimulationCount, p.NumberOfTrades)
	fmt.Fprintf(tw, "  Win rate / RR\t%.1f%% / %.2f\n", p.WinRate, p.RewardRiskRatio)
	fmt.Fprintf(tw, "  Seed\t%d\n", r.Seed)
	fmt.Fprintf(tw, "\t\n")

	fmt.Fprintf(tw, "Outcomes\t\n")
	fmt.Fprintf(tw, "  Median\t%.2f%s\n", s.MedianOutcome, unit)
	fmt.Fprintf(tw, "  Mean\t%.2f%s\n", s.MeanOutcome, unit)
	fmt.Fprintf(tw, "  5th / 95th percentile\t%.2f%s / %.2f%s\n", s.P5Outcome, unit, s.P95Outcome, unit)
	fmt.Fprintf(tw, "  Worst / best\t%.2f%s / %.2f%s\n", s.WorstOutcome, unit, s.BestOutcome, unit)
	fmt.Fprintf(tw, "  Profitable\t%.1f%%\n", s.ProfitablePct)
	fmt.Fprintf(tw, "\t\n")

	fmt.Fprintf(tw, "Drawdown\t\n")
	fmt.Fprintf(tw, "  Median max\t%.2f%s\n", s.MedianMaxDrawdown, unit)
	fmt.Fprintf(tw, "  95th percentile max\t%.2f%s\n", s.P95MaxDrawdown, unit)
	fmt.Fprintf(tw, "  Worst\t%.2f%s\n", s.WorstMaxDrawdown, unit)
	if balance {
		fmt.Fprintf(tw, "  Mean max drawdown\t%.1f%%\n", s.MeanMaxDrawdownPct)
		fmt.Fprintf(tw, "  Median final balance\t%.2f\n", s.MedianFinalBalance)
		fmt.Fprintf(tw, "  Lost half or more\t%.1f%%\n", s.RuinPct)
		fmt.Fprintf(tw, "  Wiped out\t%.1f%%\n", s.RuinedRunPct)
	}
	fmt.Fprintf(tw, "\t\n")

	fmt.Fprintf(tw, "Risk\t\n")
	fmt.Fprintf(tw, "  Expectancy per trade\t%.3fR\n", s.ExpectancyPerTrade)
	fmt.Fprintf(tw, "  Sharpe / Sortino\t%.3f / %.3f\n", s.SharpeRatio, s.SortinoRatio)
	fmt.Fprintf(tw, "  Profit factor\t%s\n", formatProfitFactor(s.ProfitFactor))
	fmt.Fprintf(tw, "  Avg max losing streak\t%.1f (worst %d)\n", s.AvgMaxLossStreak, s.WorstMaxLossStreak)
	fmt.Fprintf(tw, "  Kelly full / half / quarter\t%.1f%% / %.1f%% / %.1f%%\n", s.Kelly.Full, s.Kelly.Half, s.Kelly.Quarter)
	fmt.Fprintf(tw, "\t\n")

	in := report.Insights
	fmt.Fprintf(tw, "Verdict\t%s\n", strings.ToUpper(string(in.Verdict)))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "  %s\n", in.Summary)
	fmt.Fprintf(w, "  %s\n", in.LossStreak.Message)
	fmt.Fprintf(w, "  %s\n", in.CommissionImpact.Message)
	fmt.Fprintf(w, "  %s\n", in.Kelly.Recommendation)
	if in.Kelly.SuggestedRisk != nil {
		fmt.Fprintf(w, "  Suggested risk per trade: $%s\n", in.Kelly.SuggestedRisk.StringFixed(2))
	}
	for _, note := range in.Notes {
		fmt.Fprintf(w, "  %s\n", note)
	}
	return nil
}

func formatProfitFactor(pf montecarlo.ProfitFactor) string {
	data, err := json.Marshal(pf)
	if err != nil {
		return "n/a"
	}
	return strings.Trim(string(data), `"`)
}
