// Package sizing provides Kelly Criterion sizing for a strategy's statistical
// profile.
package sizing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// KellyLevel is the qualitative risk level attached to a full-Kelly figure.
type KellyLevel string

const (
	LevelConservative KellyLevel = "conservative"
	LevelBalanced     KellyLevel = "balanced"
	LevelAggressive   KellyLevel = "aggressive"
)

// Level boundaries, in percent of bankroll. These are policy values.
const (
	AggressiveAbove = 25.0
	BalancedAbove   = 15.0
)

// KellyResult contains the Kelly fractions, all in percent of bankroll.
type KellyResult struct {
	Full           float64    `json:"full"`
	Half           float64    `json:"half"`
	Quarter        float64    `json:"quarter"`
	Level          KellyLevel `json:"level"`
	Recommendation string     `json:"recommendation"`
}

// Kelly computes f* = W - (1-W)/R where W is the win probability and R the
// reward/risk ratio. winRate is a percentage (0-100). Negative edges clamp to 0.
func Kelly(winRate, rewardRiskRatio float64) KellyResult {
	w := winRate / 100
	raw := w - (1-w)/rewardRiskRatio
	full := math.Max(0, raw) * 100

	result := KellyResult{
		Full:    full,
		Half:    full / 2,
		Quarter: full / 4,
	}

	switch {
	case full <= 0:
		result.Level = LevelConservative
		result.Recommendation = "Negative edge: the strategy has no positive expectancy. Do not risk capital until the win rate or reward/risk ratio improves."
	case full > AggressiveAbove:
		result.Level = LevelAggressive
		result.Recommendation = fmt.Sprintf("Full Kelly of %.1f%% is aggressive. Use quarter Kelly (%.1f%%) to keep drawdowns survivable.", full, result.Quarter)
	case full > BalancedAbove:
		result.Level = LevelBalanced
		result.Recommendation = fmt.Sprintf("Balanced edge. Half Kelly (%.1f%%) captures most of the growth with far less volatility.", result.Half)
	default:
		result.Level = LevelConservative
		result.Recommendation = fmt.Sprintf("Modest edge. Quarter Kelly (%.1f%%) keeps risk conservative.", result.Quarter)
	}

	return result
}

// RecommendedFraction returns the Kelly percentage the recommendation points
// at: quarter Kelly for aggressive and conservative levels, half Kelly for
// balanced, 0 for a negative edge.
func (k KellyResult) RecommendedFraction() float64 {
	switch {
	case k.Full <= 0:
		return 0
	case k.Level == LevelBalanced:
		return k.Half
	default:
		return k.Quarter
	}
}

// SuggestRisk converts a Kelly percentage into a currency amount to risk per
// trade on the given balance, rounded to cents.
func SuggestRisk(balance decimal.Decimal, kellyPct float64) decimal.Decimal {
	if kellyPct <= 0 || !balance.IsPositive() {
		return decimal.Zero
	}
	return balance.Mul(decimal.NewFromFloat(kellyPct)).Div(decimal.NewFromInt(100)).Round(2)
}
