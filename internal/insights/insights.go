// Package insights turns a Monte Carlo result into plain-language guidance.
package insights

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/journal-backend/internal/montecarlo"
	"github.com/atlas-desktop/journal-backend/internal/sizing"
)

// Verdict grades how robust the simulated strategy looks.
type Verdict string

const (
	VerdictRobust   Verdict = "robust"
	VerdictViable   Verdict = "viable"
	VerdictMarginal Verdict = "marginal"
	VerdictRisky    Verdict = "risky"
)

// Severity grades a single warning.
type Severity string

const (
	SeverityNormal     Severity = "normal"
	SeverityNegligible Severity = "negligible"
	SeverityModerate   Severity = "moderate"
	SeverityElevated   Severity = "elevated"
	SeveritySevere     Severity = "severe"
)

// Policy thresholds.
const (
	RobustProfitablePct   = 80.0
	ViableProfitablePct   = 60.0
	MarginalProfitablePct = 40.0

	SevereLossStreak   = 8
	ElevatedLossStreak = 5

	NegligibleCommissionPct = 2.0
	ModerateCommissionPct   = 10.0
)

// Insights is the guidance attached to a simulation response.
type Insights struct {
	Verdict          Verdict           `json:"verdict"`
	Summary          string            `json:"summary"`
	LossStreak       LossStreakInsight `json:"lossStreakWarning"`
	CommissionImpact CommissionInsight `json:"commissionImpact"`
	Kelly            KellyInsight      `json:"kelly"`
	Notes            []string          `json:"notes,omitempty"`
}

// LossStreakInsight warns about the losing streak a trader should expect.
type LossStreakInsight struct {
	ExpectedStreak int      `json:"expectedStreak"`
	WorstStreak    int      `json:"worstStreak"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
}

// CommissionInsight expresses commission as a share of one risk unit.
type CommissionInsight struct {
	PctOfRisk float64  `json:"pctOfRisk"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}

// KellyInsight echoes the Kelly result with an optional dollar figure.
type KellyInsight struct {
	Level               sizing.KellyLevel `json:"level"`
	Recommendation      string            `json:"recommendation"`
	RecommendedFraction float64           `json:"recommendedFraction"`
	SuggestedRisk       *decimal.Decimal  `json:"suggestedRisk,omitempty"` // balance model only
}

// Generate derives Insights from a finished result.
func Generate(result *montecarlo.MonteCarloResult) Insights {
	s := result.Statistics
	params := result.Params

	in := Insights{
		Verdict:          verdict(s),
		LossStreak:       lossStreak(s),
		CommissionImpact: commission(params),
		Kelly:            kelly(s.Kelly, params),
	}
	in.Summary = summary(in.Verdict, s)

	if s.ExpectancyPerTrade <= 0 {
		in.Notes = append(in.Notes, fmt.Sprintf(
			"Expectancy is %.3fR per trade after commission. The strategy loses money on average.",
			s.ExpectancyPerTrade))
	}
	if s.RuinPct > 0 {
		in.Notes = append(in.Notes, fmt.Sprintf(
			"%.1f%% of simulations lost half the account or more.", s.RuinPct))
	}
	if s.RuinedRunPct > 0 {
		in.Notes = append(in.Notes, fmt.Sprintf(
			"%.1f%% of simulations wiped out the account before finishing.", s.RuinedRunPct))
	}

	return in
}

func verdict(s montecarlo.SimulationStatistics) Verdict {
	switch {
	case s.ProfitablePct >= RobustProfitablePct && s.P5Outcome > 0:
		return VerdictRobust
	case s.ProfitablePct >= ViableProfitablePct:
		return VerdictViable
	case s.ProfitablePct >= MarginalProfitablePct:
		return VerdictMarginal
	default:
		return VerdictRisky
	}
}

func summary(v Verdict, s montecarlo.SimulationStatistics) string {
	switch v {
	case VerdictRobust:
		return fmt.Sprintf("%.1f%% of simulations were profitable and even the 5th percentile finished positive.", s.ProfitablePct)
	case VerdictViable:
		return fmt.Sprintf("%.1f%% of simulations were profitable, but bad runs still finish negative.", s.ProfitablePct)
	case VerdictMarginal:
		return fmt.Sprintf("Only %.1f%% of simulations were profitable. Results depend heavily on luck.", s.ProfitablePct)
	default:
		return fmt.Sprintf("Just %.1f%% of simulations were profitable. The strategy is likely to lose money.", s.ProfitablePct)
	}
}

func lossStreak(s montecarlo.SimulationStatistics) LossStreakInsight {
	expected := int(math.Ceil(s.AvgMaxLossStreak))
	out := LossStreakInsight{
		ExpectedStreak: expected,
		WorstStreak:    s.WorstMaxLossStreak,
	}

	switch {
	case expected >= SevereLossStreak:
		out.Severity = SeveritySevere
		out.Message = fmt.Sprintf("Expect a run of %d consecutive losses. Size positions so that streak is survivable.", expected)
	case expected >= ElevatedLossStreak:
		out.Severity = SeverityElevated
		out.Message = fmt.Sprintf("Expect around %d losses in a row at some point. Plan for it before it happens.", expected)
	default:
		out.Severity = SeverityNormal
		out.Message = fmt.Sprintf("The typical worst losing streak is %d trades.", expected)
	}
	return out
}

func commission(params montecarlo.SimulationParams) CommissionInsight {
	model := params.RiskModel()
	pct := 100 * params.CommissionImpact
	if model.TracksBalance() {
		if unit := model.RiskUnit(model.StartingBalance()); unit > 0 {
			pct = 100 * params.CommissionImpact / unit
		}
	}

	out := CommissionInsight{PctOfRisk: pct}
	switch {
	case pct < NegligibleCommissionPct:
		out.Severity = SeverityNegligible
		out.Message = fmt.Sprintf("Commission costs %.1f%% of each risk unit.", pct)
	case pct < ModerateCommissionPct:
		out.Severity = SeverityModerate
		out.Message = fmt.Sprintf("Commission costs %.1f%% of each risk unit and noticeably drags on returns.", pct)
	default:
		out.Severity = SeveritySevere
		out.Message = fmt.Sprintf("Commission costs %.1f%% of each risk unit. Reduce costs or trade larger targets.", pct)
	}
	return out
}

func kelly(k sizing.KellyResult, params montecarlo.SimulationParams) KellyInsight {
	out := KellyInsight{
		Level:               k.Level,
		Recommendation:      k.Recommendation,
		RecommendedFraction: k.RecommendedFraction(),
	}
	if params.Kind() == montecarlo.ModelBalance {
		risk := sizing.SuggestRisk(decimal.NewFromFloat(params.InitialBalance), out.RecommendedFraction)
		out.SuggestedRisk = &risk
	}
	return out
}
