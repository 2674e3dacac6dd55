package insights

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/journal-backend/internal/montecarlo"
	"github.com/atlas-desktop/journal-backend/internal/sizing"
)

func resultWith(params montecarlo.SimulationParams, stats montecarlo.SimulationStatistics) *montecarlo.MonteCarloResult {
	stats.Kelly = sizing.Kelly(params.WinRate, params.RewardRiskRatio)
	return &montecarlo.MonteCarloResult{Params: params, Statistics: stats}
}

func rParams(commission float64) montecarlo.SimulationParams {
	return montecarlo.SimulationParams{
		NumberOfTrades:   100,
		SimulationCount:  1000,
		WinRate:          50,
		RewardRiskRatio:  2,
		CommissionImpact: commission,
	}
}

func TestVerdict(t *testing.T) {
	tests := []struct {
		name       string
		profitable float64
		p5         float64
		want       Verdict
	}{
		{"robust", 92, 4, VerdictRobust},
		{"high but p5 negative", 85, -2, VerdictViable},
		{"viable boundary", 60, -10, VerdictViable},
		{"marginal", 45, -10, VerdictMarginal},
		{"risky", 39.9, -20, VerdictRisky},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := Generate(resultWith(rParams(0), montecarlo.SimulationStatistics{
				ProfitablePct: tt.profitable,
				P5Outcome:     tt.p5,
			}))
			assert.Equal(t, tt.want, in.Verdict)
			assert.NotEmpty(t, in.Summary)
		})
	}
}

func TestLossStreakSeverity(t *testing.T) {
	tests := []struct {
		avg      float64
		expected int
		want     Severity
	}{
		{3.2, 4, SeverityNormal},
		{4.01, 5, SeverityElevated},
		{7.5, 8, SeveritySevere},
		{11, 11, SeveritySevere},
	}

	for _, tt := range tests {
		in := Generate(resultWith(rParams(0), montecarlo.SimulationStatistics{AvgMaxLossStreak: tt.avg, WorstMaxLossStreak: 14}))
		assert.Equal(t, tt.expected, in.LossStreak.ExpectedStreak)
		assert.Equal(t, tt.want, in.LossStreak.Severity)
		assert.Equal(t, 14, in.LossStreak.WorstStreak)
		assert.Contains(t, in.LossStreak.Message, fmt.Sprint(tt.expected))
	}
}

func TestCommissionImpactRMultiple(t *testing.T) {
	tests := []struct {
		commission float64
		want       Severity
	}{
		{0, SeverityNegligible},
		{0.01, SeverityNegligible},
		{0.05, SeverityModerate},
		{0.1, SeveritySevere},
	}

	for _, tt := range tests {
		in := Generate(resultWith(rParams(tt.commission), montecarlo.SimulationStatistics{}))
		assert.InDelta(t, tt.commission*100, in.CommissionImpact.PctOfRisk, 1e-9)
		assert.Equal(t, tt.want, in.CommissionImpact.Severity, "commission %v", tt.commission)
	}
}

func TestCommissionImpactBalanceUsesFirstTradeRisk(t *testing.T) {
	params := montecarlo.SimulationParams{
		NumberOfTrades:   100,
		SimulationCount:  100,
		WinRate:          50,
		RewardRiskRatio:  2,
		CommissionImpact: 5,
		Model:            montecarlo.ModelBalance,
		InitialBalance:   10000,
		RiskPerTrade:     1,
		RiskType:         montecarlo.RiskPercentage,
	}

	in := Generate(resultWith(params, montecarlo.SimulationStatistics{}))

	// 5 / 100 risked
	assert.InDelta(t, 5, in.CommissionImpact.PctOfRisk, 1e-9)
	assert.Equal(t, SeverityModerate, in.CommissionImpact.Severity)
}

func TestKellySuggestedRisk(t *testing.T) {
	params := montecarlo.SimulationParams{
		NumberOfTrades:  100,
		SimulationCount: 100,
		WinRate:         50,
		RewardRiskRatio: 2,
		Model:           montecarlo.ModelBalance,
		InitialBalance:  10000,
		RiskPerTrade:    100,
		RiskType:        montecarlo.RiskFixed,
	}

	in := Generate(resultWith(params, montecarlo.SimulationStatistics{}))

	// full 25% is balanced, half Kelly 12.5%
	assert.Equal(t, sizing.LevelBalanced, in.Kelly.Level)
	assert.Equal(t, 12.5, in.Kelly.RecommendedFraction)
	require.NotNil(t, in.Kelly.SuggestedRisk)
	assert.True(t, decimal.NewFromInt(1250).Equal(*in.Kelly.SuggestedRisk))

	rIn := Generate(resultWith(rParams(0), montecarlo.SimulationStatistics{}))
	assert.Nil(t, rIn.Kelly.SuggestedRisk)
}

func TestNotes(t *testing.T) {
	in := Generate(resultWith(rParams(0), montecarlo.SimulationStatistics{
		ExpectancyPerTrade: -0.2,
		RuinPct:            12.5,
		RuinedRunPct:       3,
	}))
	require.Len(t, in.Notes, 3)
	assert.Contains(t, in.Notes[0], "-0.200R")
	assert.Contains(t, in.Notes[1], "12.5%")
	assert.Contains(t, in.Notes[2], "3.0%")

	clean := Generate(resultWith(rParams(0), montecarlo.SimulationStatistics{ExpectancyPerTrade: 0.5}))
	assert.Empty(t, clean.Notes)
}
