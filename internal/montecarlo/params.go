package montecarlo

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ModelKind selects how per-trade risk translates into an outcome.
type ModelKind string

const (
	// ModelRMultiple risks one normalized unit (1R) per trade with no balance.
	ModelRMultiple ModelKind = "r_multiple"
	// ModelBalance risks a dollar amount or percentage of a tracked balance.
	ModelBalance ModelKind = "balance"
)

// RiskType selects how RiskPerTrade is interpreted under ModelBalance.
type RiskType string

const (
	RiskFixed      RiskType = "fixed"
	RiskPercentage RiskType = "percentage"
)

// SimulationParams is the immutable input of a simulation batch.
type SimulationParams struct {
	NumberOfTrades   int     `json:"numberOfTrades" yaml:"numberOfTrades"`
	SimulationCount  int     `json:"simulationCount" yaml:"simulationCount"`
	WinRate          float64 `json:"winRate" yaml:"winRate"`                   // percent, 0-100
	RewardRiskRatio  float64 `json:"rewardRiskRatio" yaml:"rewardRiskRatio"`   // multiple of risk earned on a win
	CommissionImpact float64 `json:"commissionImpact" yaml:"commissionImpact"` // per trade, in R or currency

	Model ModelKind `json:"model,omitempty" yaml:"model,omitempty"`

	// ModelBalance only
	InitialBalance float64  `json:"initialBalance,omitempty" yaml:"initialBalance,omitempty"`
	RiskPerTrade   float64  `json:"riskPerTrade,omitempty" yaml:"riskPerTrade,omitempty"`
	RiskType       RiskType `json:"riskType,omitempty" yaml:"riskType,omitempty"`
}

// ErrInvalidParams is matched by errors.Is for any ValidationErrors value.
var ErrInvalidParams = errors.New("invalid simulation parameters")

// ValidationError describes one offending field.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// ValidationErrors collects every offending field of a SimulationParams.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidParams, strings.Join(parts, "; "))
}

// Is reports ErrInvalidParams.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidParams
}

// Fields returns the offending field names in order.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, fe := range e {
		fields[i] = fe.Field
	}
	return fields
}

// Kind returns the risk model, defaulting to ModelRMultiple.
func (p SimulationParams) Kind() ModelKind {
	if p.Model == "" {
		return ModelRMultiple
	}
	return p.Model
}

// Validate checks every bound and returns ValidationErrors, or nil.
func (p SimulationParams) Validate() error {
	var errs ValidationErrors
	add := func(field, reason string) {
		errs = append(errs, &ValidationError{Field: field, Reason: reason})
	}

	if p.NumberOfTrades <= 0 {
		add("numberOfTrades", "must be greater than 0")
	}
	if p.SimulationCount <= 0 {
		add("simulationCount", "must be greater than 0")
	}
	if !(p.WinRate >= 0 && p.WinRate <= 100) {
		add("winRate", "must be between 0 and 100")
	}
	if !positive(p.RewardRiskRatio) {
		add("rewardRiskRatio", "must be greater than 0")
	}
	if !nonNegative(p.CommissionImpact) {
		add("commissionImpact", "must not be negative")
	}

	switch p.Kind() {
	case ModelRMultiple:
	case ModelBalance:
		if !positive(p.InitialBalance) {
			add("initialBalance", "must be greater than 0")
		}
		if !positive(p.RiskPerTrade) {
			add("riskPerTrade", "must be greater than 0")
		}
		switch p.RiskType {
		case RiskFixed:
		case RiskPercentage:
			if p.RiskPerTrade > 100 {
				add("riskPerTrade", "percentage risk must not exceed 100")
			}
		default:
			add("riskType", fmt.Sprintf("must be %q or %q", RiskFixed, RiskPercentage))
		}
	default:
		add("model", fmt.Sprintf("must be %q or %q", ModelRMultiple, ModelBalance))
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// positive and nonNegative reject NaN and infinities as well as out-of-range
// values.
func positive(x float64) bool {
	return x > 0 && !math.IsInf(x, 1)
}

func nonNegative(x float64) bool {
	return x >= 0 && !math.IsInf(x, 1)
}

// MustValidate panics on invalid params. For call sites where invalid input
// is a programming error.
func (p SimulationParams) MustValidate() {
	if err := p.Validate(); err != nil {
		panic(err)
	}
}

// Limits caps the batch size a caller is willing to run.
type Limits struct {
	MaxTrades      int `json:"maxTrades" yaml:"maxTrades"`
	MaxSimulations int `json:"maxSimulations" yaml:"maxSimulations"`
}

// Clamp returns a copy with counts capped to limits. Zero limits are ignored.
// Other fields are left for Validate to reject.
func (p SimulationParams) Clamp(limits Limits) SimulationParams {
	if limits.MaxTrades > 0 && p.NumberOfTrades > limits.MaxTrades {
		p.NumberOfTrades = limits.MaxTrades
	}
	if limits.MaxSimulations > 0 && p.SimulationCount > limits.MaxSimulations {
		p.SimulationCount = limits.MaxSimulations
	}
	return p
}

// RiskModel returns the risk model described by the params.
func (p SimulationParams) RiskModel() RiskModel {
	if p.Kind() == ModelBalance {
		return FixedFraction{
			InitialBalance: p.InitialBalance,
			RiskPerTrade:   p.RiskPerTrade,
			RiskType:       p.RiskType,
		}
	}
	return FixedR{}
}
