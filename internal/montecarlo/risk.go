package montecarlo

// RiskModel translates per-trade risk into an outcome unit. It is a closed
// set: FixedR and FixedFraction.
type RiskModel interface {
	Kind() ModelKind
	// StartingBalance is 0 for models without an account balance.
	StartingBalance() float64
	// RiskUnit is the amount lost by a losing trade before commission, given
	// the balance before the trade.
	RiskUnit(balance float64) float64
	// TracksBalance reports whether outcomes move an account balance that can
	// be ruined.
	TracksBalance() bool

	sealed()
}

// FixedR risks exactly 1R per trade. R-space has no currency floor, so runs
// always complete.
type FixedR struct{}

func (FixedR) Kind() ModelKind { return ModelRMultiple }
func (FixedR) StartingBalance() float64 { return 0 }
func (FixedR) RiskUnit(float64) float64 { return 1 }
func (FixedR) TracksBalance() bool { return false }
func (FixedR) sealed() {}

// FixedFraction risks a fixed currency amount or a percentage of the current
// balance, and stops a run once the balance reaches zero.
type FixedFraction struct {
	InitialBalance float64
	RiskPerTrade   float64
	RiskType       RiskType
}

func (FixedFraction) Kind() ModelKind { return ModelBalance }

func (m FixedFraction) StartingBalance() float64 { return m.InitialBalance }

func (m FixedFraction) RiskUnit(balance float64) float64 {
	if m.RiskType == RiskPercentage {
		return balance * m.RiskPerTrade / 100
	}
	return m.RiskPerTrade
}

func (FixedFraction) TracksBalance() bool { return true }
func (FixedFraction) sealed() {}
