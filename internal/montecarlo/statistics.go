package montecarlo

import (
	"encoding/json"
	"math"

	"github.com/atlas-desktop/journal-backend/internal/sizing"
	"github.com/atlas-desktop/journal-backend/pkg/stats"
)

// RuinReturnPct is the batch return at or below which a balance run counts
// toward RuinPct. Policy value.
const RuinReturnPct = -50.0

// ProfitFactor is gross profit over gross loss. +Inf (wins, no losses) is
// encoded in JSON as the string "Infinity".
type ProfitFactor float64

func (pf ProfitFactor) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(pf), 1) {
		return []byte(`"Infinity"`), nil
	}
	return json.Marshal(float64(pf))
}

func (pf *ProfitFactor) UnmarshalJSON(data []byte) error {
	if string(data) == `"Infinity"` {
		*pf = ProfitFactor(math.Inf(1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*pf = ProfitFactor(v)
	return nil
}

// SimulationStatistics is the cross-run aggregate of a batch.
type SimulationStatistics struct {
	// Final outcomes
	MedianOutcome float64 `json:"medianOutcome"`
	MeanOutcome   float64 `json:"meanOutcome"`
	P5Outcome     float64 `json:"p5Outcome"`
	P95Outcome    float64 `json:"p95Outcome"`
	BestOutcome   float64 `json:"bestOutcome"`
	WorstOutcome  float64 `json:"worstOutcome"`
	ProfitablePct float64 `json:"profitablePct"`

	// Drawdowns
	MedianMaxDrawdown float64 `json:"medianMaxDrawdown"`
	MeanMaxDrawdown   float64 `json:"meanMaxDrawdown"`
	P95MaxDrawdown    float64 `json:"p95MaxDrawdown"`
	WorstMaxDrawdown  float64 `json:"worstMaxDrawdown"`

	// ModelBalance only
	RuinPct            float64 `json:"ruinPct"`
	RuinedRunPct       float64 `json:"ruinedRunPct"`
	MedianFinalBalance float64 `json:"medianFinalBalance"`
	MeanFinalBalance   float64 `json:"meanFinalBalance"`
	MeanReturnPct      float64 `json:"meanReturnPct"`
	MeanMaxDrawdownPct float64 `json:"meanMaxDrawdownPct"`
	AvgTotalCommission float64 `json:"avgTotalCommission"`
	AvgUnderwaterPct   float64 `json:"avgUnderwaterPct"`

	// Pooled per-trade results
	TotalTrades        int64        `json:"totalTrades"`
	MeanPerTrade       float64      `json:"meanPerTrade"`
	StdDevPerTrade     float64      `json:"stdDevPerTrade"`
	DownsideDeviation  float64      `json:"downsideDeviation"`
	ExpectancyPerTrade float64      `json:"expectancyPerTrade"` // theoretical, in risk units
	SharpeRatio        float64      `json:"sharpeRatio"`
	SortinoRatio       float64      `json:"sortinoRatio"`
	CalmarRatio        float64      `json:"calmarRatio"`
	ProfitFactor       ProfitFactor `json:"profitFactor"`

	Kelly sizing.KellyResult `json:"kelly"`

	// Streaks
	AvgMaxWinStreak    float64 `json:"avgMaxWinStreak"`
	AvgMaxLossStreak   float64 `json:"avgMaxLossStreak"`
	WorstMaxLossStreak int     `json:"worstMaxLossStreak"`
	AvgWinStreak       float64 `json:"avgWinStreak"`
	AvgLossStreak      float64 `json:"avgLossStreak"`
}

// Aggregate reduces a batch of runs to SimulationStatistics.
func Aggregate(runs []SimulationRun, params SimulationParams) SimulationStatistics {
	var s SimulationStatistics
	s.Kelly = sizing.Kelly(params.WinRate, params.RewardRiskRatio)

	model := params.RiskModel()
	unit := model.RiskUnit(model.StartingBalance())
	w := params.WinRate / 100
	s.ExpectancyPerTrade = w*params.RewardRiskRatio - (1 - w) - stats.SafeDiv(params.CommissionImpact, unit)

	n := len(runs)
	if n == 0 {
		return s
	}

	outcomes := make([]float64, n)
	drawdowns := make([]float64, n)
	var (
		moments                 stats.Moments
		grossWin, grossLoss     float64
		profitable              int
		sumMaxWin, sumMaxLoss   int
		winStreaks, lossStreaks streakTally
	)

	for i := range runs {
		run := &runs[i]
		outcomes[i] = run.FinalOutcome
		drawdowns[i] = run.MaxDrawdown
		if run.FinalOutcome > 0 {
			profitable++
		}

		sumMaxWin += run.MaxWinStreak
		sumMaxLoss += run.MaxLossStreak
		if run.MaxLossStreak > s.WorstMaxLossStreak {
			s.WorstMaxLossStreak = run.MaxLossStreak
		}

		for _, trade := range run.Trades {
			moments.Add(trade.Result)
			if trade.Result > 0 {
				grossWin += trade.Result
			} else if trade.Result < 0 {
				grossLoss -= trade.Result
			}
		}
		tallyStreaks(run.Trades, &winStreaks, &lossStreaks)
	}

	sortedOutcomes := stats.Sorted(outcomes)
	sortedDrawdowns := stats.Sorted(drawdowns)

	s.MedianOutcome = stats.Median(sortedOutcomes)
	s.MeanOutcome = stats.Mean(outcomes)
	s.P5Outcome = stats.Percentile(sortedOutcomes, 5)
	s.P95Outcome = stats.Percentile(sortedOutcomes, 95)
	s.WorstOutcome = sortedOutcomes[0]
	s.BestOutcome = sortedOutcomes[n-1]
	s.ProfitablePct = 100 * float64(profitable) / float64(n)

	s.MedianMaxDrawdown = stats.Median(sortedDrawdowns)
	s.MeanMaxDrawdown = stats.Mean(drawdowns)
	s.P95MaxDrawdown = stats.Percentile(sortedDrawdowns, 95)
	s.WorstMaxDrawdown = sortedDrawdowns[n-1]

	s.TotalTrades = moments.Count()
	s.MeanPerTrade = moments.Mean()
	s.StdDevPerTrade = moments.PopulationStdDev()
	s.DownsideDeviation = moments.DownsideDeviation()
	s.SharpeRatio = stats.SafeDiv(s.MeanPerTrade, s.StdDevPerTrade)
	s.SortinoRatio = stats.SafeDiv(s.MeanPerTrade, s.DownsideDeviation)

	switch {
	case grossLoss > 0:
		s.ProfitFactor = ProfitFactor(grossWin / grossLoss)
	case grossWin > 0:
		s.ProfitFactor = ProfitFactor(math.Inf(1))
	}

	s.AvgMaxWinStreak = float64(sumMaxWin) / float64(n)
	s.AvgMaxLossStreak = float64(sumMaxLoss) / float64(n)
	s.AvgWinStreak = winStreaks.mean()
	s.AvgLossStreak = lossStreaks.mean()

	if model.TracksBalance() {
		aggregateBalance(&s, runs)
	}

	return s
}

// aggregateBalance fills the fields that only exist under ModelBalance.
func aggregateBalance(s *SimulationStatistics, runs []SimulationRun) {
	n := float64(len(runs))
	balances := make([]float64, len(runs))
	var ruinProne, ruined int
	var sumReturn, sumDDPct, sumCommission, sumUnderwater float64

	for i := range runs {
		run := &runs[i]
		balances[i] = run.FinalBalance
		if run.ReturnPct <= RuinReturnPct {
			ruinProne++
		}
		if run.Ruined {
			ruined++
		}
		sumReturn += run.ReturnPct
		sumDDPct += run.MaxDrawdownPct
		sumCommission += run.TotalCommission
		if len(run.Trades) > 0 {
			sumUnderwater += 100 * float64(run.UnderwaterTradeCount) / float64(len(run.Trades))
		}
	}

	s.RuinPct = 100 * float64(ruinProne) / n
	s.RuinedRunPct = 100 * float64(ruined) / n
	s.MedianFinalBalance = stats.Median(stats.Sorted(balances))
	s.MeanFinalBalance = stats.Mean(balances)
	s.MeanReturnPct = sumReturn / n
	s.MeanMaxDrawdownPct = sumDDPct / n
	s.AvgTotalCommission = sumCommission / n
	s.AvgUnderwaterPct = sumUnderwater / n
	s.CalmarRatio = stats.SafeDiv(s.MeanReturnPct, s.MeanMaxDrawdownPct)
}

// streakTally pools completed streak lengths as a running sum and count.
type streakTally struct {
	total int
	count int
}

func (t *streakTally) add(length int) {
	t.total += length
	t.count++
}

func (t streakTally) mean() float64 {
	if t.count == 0 {
		return 0
	}
	return float64(t.total) / float64(t.count)
}

// tallyStreaks walks a trade sequence and records every streak, including the
// one still open when the run ends.
func tallyStreaks(trades []SimulatedTrade, wins, losses *streakTally) {
	if len(trades) == 0 {
		return
	}

	current := trades[0].IsWin
	length := 0
	flush := func() {
		if current {
			wins.add(length)
		} else {
			losses.add(length)
		}
	}

	for _, trade := range trades {
		if trade.IsWin != current {
			flush()
			current = trade.IsWin
			length = 0
		}
		length++
	}
	flush()
}
