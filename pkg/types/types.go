// Package types provides shared request and response types for the simulation API.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/journal-backend/internal/insights"
	"github.com/atlas-desktop/journal-backend/internal/montecarlo"
	"github.com/atlas-desktop/journal-backend/internal/sizing"
)

// SimulationRequest is the body of POST /api/v1/simulations. Currency and
// percentage fields accept JSON numbers or strings.
type SimulationRequest struct {
	// ID lets a client subscribe to progress before submitting. Must be a UUID.
	ID string `json:"id,omitempty"`

	NumberOfTrades   int             `json:"numberOfTrades"`
	SimulationCount  int             `json:"simulationCount"`
	WinRate          decimal.Decimal `json:"winRate"`
	RewardRiskRatio  decimal.Decimal `json:"rewardRiskRatio"`
	CommissionImpact decimal.Decimal `json:"commissionImpact"`

	Model          string          `json:"model,omitempty"` // "r_multiple" (default) or "balance"
	InitialBalance decimal.Decimal `json:"initialBalance"`
	RiskPerTrade   decimal.Decimal `json:"riskPerTrade"`
	RiskType       string          `json:"riskType,omitempty"` // "fixed" or "percentage"

	Seed *int64 `json:"seed,omitempty"`
}

// ToParams converts the request into engine parameters.
func (r *SimulationRequest) ToParams() montecarlo.SimulationParams {
	return montecarlo.SimulationParams{
		NumberOfTrades:   r.NumberOfTrades,
		SimulationCount:  r.SimulationCount,
		WinRate:          r.WinRate.InexactFloat64(),
		RewardRiskRatio:  r.RewardRiskRatio.InexactFloat64(),
		CommissionImpact: r.CommissionImpact.InexactFloat64(),
		Model:            montecarlo.ModelKind(r.Model),
		InitialBalance:   r.InitialBalance.InexactFloat64(),
		RiskPerTrade:     r.RiskPerTrade.InexactFloat64(),
		RiskType:         montecarlo.RiskType(r.RiskType),
	}
}

// ResolveID returns the client-supplied ID or a fresh one.
func (r *SimulationRequest) ResolveID() (string, error) {
	if r.ID == "" {
		return uuid.New().String(), nil
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return "", fmt.Errorf("id must be a UUID: %w", err)
	}
	return id.String(), nil
}

// SimulationResponse is a completed simulation as stored and returned by the API.
type SimulationResponse struct {
	ID          string                       `json:"id"`
	Result      *montecarlo.MonteCarloResult `json:"result"`
	Insights    insights.Insights            `json:"insights"`
	CompletedAt time.Time                    `json:"completedAt"`
	Duration    time.Duration                `json:"duration"`
}

// SimulationSummary is one entry of GET /api/v1/simulations.
type SimulationSummary struct {
	ID              string               `json:"id"`
	Model           montecarlo.ModelKind `json:"model"`
	SimulationCount int                  `json:"simulationCount"`
	NumberOfTrades  int                  `json:"numberOfTrades"`
	MedianOutcome   float64              `json:"medianOutcome"`
	ProfitablePct   float64              `json:"profitablePct"`
	Verdict         insights.Verdict     `json:"verdict"`
	CompletedAt     time.Time            `json:"completedAt"`
}

// Summary reduces a response to its list entry.
func (r *SimulationResponse) Summary() SimulationSummary {
	return SimulationSummary{
		ID:              r.ID,
		Model:           r.Result.Params.Kind(),
		SimulationCount: r.Result.Params.SimulationCount,
		NumberOfTrades:  r.Result.Params.NumberOfTrades,
		MedianOutcome:   r.Result.Statistics.MedianOutcome,
		ProfitablePct:   r.Result.Statistics.ProfitablePct,
		Verdict:         r.Insights.Verdict,
		CompletedAt:     r.CompletedAt,
	}
}

// SimulationProgress is published on the simulation:<id> channel.
type SimulationProgress struct {
	ID        string  `json:"id"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// SimulationComplete is published when a simulation finishes or fails.
type SimulationComplete struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "completed", "failed"
	Error  string `json:"error,omitempty"`
}

// KellyRequest is the body of POST /api/v1/sizing/kelly.
type KellyRequest struct {
	WinRate         decimal.Decimal  `json:"winRate"`
	RewardRiskRatio decimal.Decimal  `json:"rewardRiskRatio"`
	Balance         *decimal.Decimal `json:"balance,omitempty"`
}

// Validate returns the offending fields, if any.
func (r *KellyRequest) Validate() montecarlo.ValidationErrors {
	var errs montecarlo.ValidationErrors
	if r.WinRate.IsNegative() || r.WinRate.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, &montecarlo.ValidationError{Field: "winRate", Reason: "must be between 0 and 100"})
	}
	if !r.RewardRiskRatio.IsPositive() {
		errs = append(errs, &montecarlo.ValidationError{Field: "rewardRiskRatio", Reason: "must be greater than 0"})
	}
	if r.Balance != nil && !r.Balance.IsPositive() {
		errs = append(errs, &montecarlo.ValidationError{Field: "balance", Reason: "must be greater than 0"})
	}
	return errs
}

// KellyResponse is the Kelly result plus an optional dollar risk.
type KellyResponse struct {
	sizing.KellyResult
	RecommendedFraction float64          `json:"recommendedFraction"`
	SuggestedRisk       *decimal.Decimal `json:"suggestedRisk,omitempty"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string                        `json:"error"`
	Fields []*montecarlo.ValidationError `json:"fields,omitempty"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Time    int64  `json:"time"`
	Results int    `json:"results"`
	Clients int    `json:"clients"`
}
