package montecarlo

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/journal-backend/internal/observability"
)

// scripted replays a fixed sequence of draws, wrapping around.
type scripted struct {
	draws []float64
	next  int
}

func (s *scripted) Float64() float64 {
	v := s.draws[s.next%len(s.draws)]
	s.next++
	return v
}

// scriptedSources gives every run the same win/loss pattern for a 50% win rate.
func scriptedSources(pattern string) SourceFactory {
	draws := make([]float64, len(pattern))
	for i, c := range pattern {
		if c == 'W' {
			draws[i] = 0.1
		} else {
			draws[i] = 0.9
		}
	}
	return func(int) RandomSource {
		return &scripted{draws: draws}
	}
}

func newTestSimulator(workers int) *Simulator {
	config := DefaultSimulatorConfig()
	config.ParallelWorkers = workers
	return NewSimulator(zap.NewNop(), config, nil)
}

func TestRunSimulationDeterministicAcrossWorkers(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:   50,
		SimulationCount:  200,
		WinRate:          45,
		RewardRiskRatio:  1.8,
		CommissionImpact: 0.05,
	}

	single, err := newTestSimulator(1).RunSimulation(context.Background(), params, WithSeed(42))
	require.NoError(t, err)
	parallel, err := newTestSimulator(8).RunSimulation(context.Background(), params, WithSeed(42))
	require.NoError(t, err)

	a, err := json.Marshal(single)
	require.NoError(t, err)
	b, err := json.Marshal(parallel)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, int64(42), single.Seed)

	other, err := newTestSimulator(4).RunSimulation(context.Background(), params, WithSeed(43))
	require.NoError(t, err)
	assert.NotEqual(t, single.Statistics.MeanOutcome, other.Statistics.MeanOutcome)
}

func TestRunSimulationRecordsGeneratedSeed(t *testing.T) {
	params := SimulationParams{NumberOfTrades: 5, SimulationCount: 3, WinRate: 50, RewardRiskRatio: 1}

	result, err := newTestSimulator(2).RunSimulation(context.Background(), params)
	require.NoError(t, err)
	assert.NotZero(t, result.Seed)

	replay, err := newTestSimulator(2).RunSimulation(context.Background(), params, WithSeed(result.Seed))
	require.NoError(t, err)
	assert.Equal(t, result.Statistics, replay.Statistics)
}

func TestRunSimulationPositiveEdgeScenario(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:  100,
		SimulationCount: 1000,
		WinRate:         50,
		RewardRiskRatio: 2,
	}

	result, err := newTestSimulator(0).RunSimulation(context.Background(), params, WithSeed(7))
	require.NoError(t, err)

	s := result.Statistics
	assert.Greater(t, s.ProfitablePct, 50.0)
	assert.Equal(t, 25.0, s.Kelly.Full)
	assert.InDelta(t, 0.5, s.ExpectancyPerTrade, 1e-12)
	assert.Equal(t, int64(100*1000), s.TotalTrades)
	assert.Greater(t, s.SharpeRatio, 0.0)

	assert.LessOrEqual(t, s.WorstOutcome, s.P5Outcome)
	assert.LessOrEqual(t, s.P5Outcome, s.MedianOutcome)
	assert.LessOrEqual(t, s.MedianOutcome, s.P95Outcome)
	assert.LessOrEqual(t, s.P95Outcome, s.BestOutcome)
	assert.LessOrEqual(t, s.MedianMaxDrawdown, s.P95MaxDrawdown)
	assert.LessOrEqual(t, s.P95MaxDrawdown, s.WorstMaxDrawdown)

	var count int
	var pct float64
	for _, b := range result.DistributionBuckets {
		count += b.Count
		pct += b.Percentage
	}
	assert.Len(t, result.DistributionBuckets, DefaultBucketCount)
	assert.Equal(t, params.SimulationCount, count)
	assert.InDelta(t, 100, pct, 1e-9)

	assert.Len(t, result.SampleRun.Trades, params.NumberOfTrades)
}

func TestRunSimulationNegativeEdge(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:  200,
		SimulationCount: 300,
		WinRate:         30,
		RewardRiskRatio: 1,
	}

	result, err := newTestSimulator(4).RunSimulation(context.Background(), params, WithSeed(11))
	require.NoError(t, err)

	s := result.Statistics
	assert.Less(t, s.ExpectancyPerTrade, 0.0)
	assert.Less(t, s.MedianOutcome, 0.0)
	assert.Zero(t, s.Kelly.Full)
	assert.Less(t, s.ProfitablePct, 5.0)
	assert.Less(t, float64(s.ProfitFactor), 1.0)
}

func TestRunSimulationAllWins(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:   10,
		SimulationCount:  5,
		WinRate:          100,
		RewardRiskRatio:  2,
		CommissionImpact: 0.5,
	}

	result, err := newTestSimulator(2).RunSimulation(context.Background(), params, WithSeed(1))
	require.NoError(t, err)

	s := result.Statistics
	assert.Equal(t, 15.0, s.MedianOutcome)
	assert.Equal(t, 100.0, s.ProfitablePct)
	assert.Zero(t, s.WorstMaxDrawdown)
	assert.True(t, math.IsInf(float64(s.ProfitFactor), 1))
	assert.Equal(t, 10.0, s.AvgMaxWinStreak)
	assert.Zero(t, s.AvgLossStreak)
	// zero variance
	assert.Zero(t, s.SharpeRatio)
	assert.Zero(t, s.SortinoRatio)

	// identical outcomes collapse into the first unit-width bucket
	require.NotEmpty(t, result.DistributionBuckets)
	assert.Equal(t, 5, result.DistributionBuckets[0].Count)
	assert.Equal(t, 1.0, result.DistributionBuckets[0].RangeEnd-result.DistributionBuckets[0].RangeStart)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"profitFactor":"Infinity"`)

	sources := SeededSources(1)
	for i := 0; i < params.SimulationCount; i++ {
		run := simulateRun(&params, params.RiskModel(), sources(i))
		assert.Len(t, run.Trades, params.NumberOfTrades)
		assert.Equal(t, params.NumberOfTrades, run.WinCount)
		assert.Zero(t, run.LossCount)
		assert.Zero(t, run.MaxLossStreak)
		assert.Equal(t, 15.0, run.FinalOutcome)
	}
}

func TestRunSimulationAllLossesFixedR(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:   50,
		SimulationCount:  8,
		WinRate:          0,
		RewardRiskRatio:  2,
		CommissionImpact: 0.25,
	}

	result, err := newTestSimulator(3).RunSimulation(context.Background(), params, WithSeed(11))
	require.NoError(t, err)

	s := result.Statistics
	assert.Equal(t, -62.5, s.MedianOutcome)
	assert.Equal(t, -62.5, s.BestOutcome)
	assert.Equal(t, 62.5, s.WorstMaxDrawdown)
	assert.Zero(t, s.ProfitablePct)
	assert.Zero(t, float64(s.ProfitFactor))
	assert.Equal(t, int64(50*8), s.TotalTrades)
	assert.Equal(t, 50, s.WorstMaxLossStreak)

	sources := SeededSources(11)
	for i := 0; i < params.SimulationCount; i++ {
		run := simulateRun(&params, params.RiskModel(), sources(i))
		assert.Len(t, run.Trades, params.NumberOfTrades, "run %d truncated", i)
		assert.False(t, run.Ruined)
		assert.Equal(t, -float64(params.NumberOfTrades)*(1+params.CommissionImpact), run.FinalOutcome)
		assert.Equal(t, params.NumberOfTrades, run.LossCount)
		assert.Zero(t, run.WinCount)
	}
}

func TestRunSimulationBalanceRuin(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:  20,
		SimulationCount: 4,
		WinRate:         0,
		RewardRiskRatio: 2,
		Model:           ModelBalance,
		InitialBalance:  1000,
		RiskPerTrade:    100,
		RiskType:        RiskFixed,
	}

	result, err := newTestSimulator(2).RunSimulation(context.Background(), params, WithSeed(3))
	require.NoError(t, err)

	run := result.SampleRun
	assert.True(t, run.Ruined)
	assert.Len(t, run.Trades, 10)
	assert.Zero(t, run.FinalBalance)
	assert.Equal(t, -1000.0, run.FinalOutcome)
	assert.Equal(t, -100.0, run.ReturnPct)
	assert.Equal(t, 100.0, run.MaxDrawdownPct)

	s := result.Statistics
	assert.Equal(t, 100.0, s.RuinPct)
	assert.Equal(t, 100.0, s.RuinedRunPct)
	assert.Equal(t, int64(40), s.TotalTrades)
	assert.Zero(t, s.MedianFinalBalance)
}

func TestSimulateRunRecordsResultBeforeFloor(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:   20,
		SimulationCount:  1,
		WinRate:          0,
		RewardRiskRatio:  1,
		CommissionImpact: 5,
		Model:            ModelBalance,
		InitialBalance:   1000,
		RiskPerTrade:     100,
		RiskType:         RiskFixed,
	}
	params.MustValidate()

	run := simulateRun(&params, params.RiskModel(), scriptedSources("L")(0))

	require.Len(t, run.Trades, 10)
	last := run.Trades[9]
	assert.Equal(t, -105.0, last.Result)
	assert.Zero(t, last.Balance)
	assert.Equal(t, -1000.0, last.CumulativeOutcome)
	assert.Equal(t, 50.0, run.TotalCommission)
	assert.Equal(t, 10, run.UnderwaterTradeCount)
}

func TestSimulateRunPercentageRiskCompounds(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:  2,
		SimulationCount: 1,
		WinRate:         50,
		RewardRiskRatio: 2,
		Model:           ModelBalance,
		InitialBalance:  1000,
		RiskPerTrade:    10,
		RiskType:        RiskPercentage,
	}

	run := simulateRun(&params, params.RiskModel(), scriptedSources("WL")(0))

	require.Len(t, run.Trades, 2)
	assert.InDelta(t, 200, run.Trades[0].Result, 1e-9)
	assert.InDelta(t, 1200, run.Trades[0].Balance, 1e-9)
	assert.InDelta(t, -120, run.Trades[1].Result, 1e-9)
	assert.InDelta(t, 1080, run.FinalBalance, 1e-9)
	assert.InDelta(t, 8, run.ReturnPct, 1e-9)
	assert.InDelta(t, 10, run.MaxDrawdownPct, 1e-9)
	assert.InDelta(t, 120, run.MaxDrawdown, 1e-9)
	assert.InDelta(t, 200, run.PeakOutcome, 1e-9)
}

func TestSimulateRunFullPercentageRiskRuinsImmediately(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:  5,
		SimulationCount: 1,
		WinRate:         50,
		RewardRiskRatio: 1,
		Model:           ModelBalance,
		InitialBalance:  500,
		RiskPerTrade:    100,
		RiskType:        RiskPercentage,
	}

	run := simulateRun(&params, params.RiskModel(), scriptedSources("LWWWW")(0))

	assert.True(t, run.Ruined)
	assert.Len(t, run.Trades, 1)
	assert.Equal(t, 1, run.LossCount)
}

func TestSimulateRunDrawdownAndStreaks(t *testing.T) {
	params := SimulationParams{
		NumberOfTrades:  7,
		SimulationCount: 1,
		WinRate:         50,
		RewardRiskRatio: 2,
	}

	run := simulateRun(&params, FixedR{}, scriptedSources("WWLWLLL")(0))

	assert.Equal(t, 3, run.WinCount)
	assert.Equal(t, 4, run.LossCount)
	assert.Equal(t, 2, run.MaxWinStreak)
	assert.Equal(t, 3, run.MaxLossStreak)
	// +2 +2 -1 +2 -1 -1 -1 -> peak 5, final 2
	assert.Equal(t, 2.0, run.FinalOutcome)
	assert.Equal(t, 5.0, run.PeakOutcome)
	assert.Equal(t, 3.0, run.MaxDrawdown)
	for i, trade := range run.Trades {
		assert.Equal(t, i+1, trade.TradeNumber)
		assert.Zero(t, trade.Balance)
	}
}

func TestAggregateStreaksIncludeTrailingStreak(t *testing.T) {
	params := SimulationParams{NumberOfTrades: 7, SimulationCount: 1, WinRate: 50, RewardRiskRatio: 2}
	run := simulateRun(&params, FixedR{}, scriptedSources("WWLWLLL")(0))

	var wins, losses streakTally
	tallyStreaks(run.Trades, &wins, &losses)
	assert.Equal(t, 1.5, wins.mean())
	assert.Equal(t, 2.0, losses.mean())

	s := Aggregate([]SimulationRun{run}, params)
	assert.Equal(t, 1.5, s.AvgWinStreak)
	assert.Equal(t, 2.0, s.AvgLossStreak)
	assert.Equal(t, 3, s.WorstMaxLossStreak)
}

func TestAggregateDownsideUsesAllTrades(t *testing.T) {
	params := SimulationParams{NumberOfTrades: 3, SimulationCount: 1, WinRate: 50, RewardRiskRatio: 2}
	run := simulateRun(&params, FixedR{}, scriptedSources("WWL")(0))

	s := Aggregate([]SimulationRun{run}, params)

	// results 2, 2, -1
	assert.InDelta(t, 1.0, s.MeanPerTrade, 1e-12)
	assert.InDelta(t, math.Sqrt(1.0/3), s.DownsideDeviation, 1e-12)
	assert.InDelta(t, math.Sqrt(3), s.SortinoRatio, 1e-9)
	assert.InDelta(t, 4.0, float64(s.ProfitFactor), 1e-12)
}

func TestAggregateEmpty(t *testing.T) {
	params := SimulationParams{NumberOfTrades: 1, SimulationCount: 1, WinRate: 60, RewardRiskRatio: 1}
	s := Aggregate(nil, params)
	assert.Zero(t, s.TotalTrades)
	assert.InDelta(t, 0.2, s.ExpectancyPerTrade, 1e-12)
	assert.InDelta(t, 20.0, s.Kelly.Full, 1e-9)
}

func TestRunSimulationWithInjectedSource(t *testing.T) {
	params := SimulationParams{NumberOfTrades: 4, SimulationCount: 3, WinRate: 50, RewardRiskRatio: 3}

	result, err := newTestSimulator(3).RunSimulation(context.Background(), params, WithSource(scriptedSources("WLLL")))
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.Statistics.MedianOutcome)
	assert.Equal(t, 0.0, result.Statistics.ProfitablePct)
	assert.Equal(t, 1.0, result.Statistics.AvgMaxWinStreak)
	assert.Equal(t, 3.0, result.Statistics.AvgMaxLossStreak)
}

func TestRunSimulationProgress(t *testing.T) {
	params := SimulationParams{NumberOfTrades: 3, SimulationCount: 250, WinRate: 50, RewardRiskRatio: 1}

	var mu sync.Mutex
	var calls, last int
	progress := func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if completed > last {
			last = completed
		}
		assert.Equal(t, 250, total)
	}

	_, err := newTestSimulator(4).RunSimulation(context.Background(), params, WithSeed(5), WithProgress(progress))
	require.NoError(t, err)

	assert.Equal(t, 250, last)
	assert.GreaterOrEqual(t, calls, 100)
}

func TestRunSimulationCancelled(t *testing.T) {
	params := SimulationParams{NumberOfTrades: 100, SimulationCount: 10000, WinRate: 50, RewardRiskRatio: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestSimulator(2).RunSimulation(ctx, params, WithSeed(1))
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunSimulationInvalidParams(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	sim := NewSimulator(zap.NewNop(), DefaultSimulatorConfig(), metrics)

	params := SimulationParams{NumberOfTrades: 0, SimulationCount: 10, WinRate: 120, RewardRiskRatio: 1}
	result, err := sim.RunSimulation(context.Background(), params)

	assert.Nil(t, result)
	require.ErrorIs(t, err, ErrInvalidParams)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, []string{"numberOfTrades", "winRate"}, verrs.Fields())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ValidationFailures.WithLabelValues("winRate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SimulationsTotal.WithLabelValues("r_multiple", "invalid")))
}

func TestRunSimulationRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	sim := NewSimulator(zap.NewNop(), DefaultSimulatorConfig(), metrics)

	params := SimulationParams{NumberOfTrades: 10, SimulationCount: 20, WinRate: 50, RewardRiskRatio: 1}
	_, err := sim.RunSimulation(context.Background(), params, WithSeed(9))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SimulationsTotal.WithLabelValues("r_multiple", "ok")))
	assert.Equal(t, 200.0, testutil.ToFloat64(metrics.TradesSimulated))
}

func TestNewSimulatorLeavesConfigUntouched(t *testing.T) {
	config := &SimulatorConfig{ParallelWorkers: 2}
	sim := NewSimulator(zap.NewNop(), config, nil)
	assert.Zero(t, config.BucketCount)

	result, err := sim.RunSimulation(context.Background(), validParams(), WithSeed(5))
	require.NoError(t, err)
	assert.Len(t, result.DistributionBuckets, DefaultBucketCount)
}
