package montecarlo

import "math"

// SimulatedTrade is one trial of a run.
type SimulatedTrade struct {
	TradeNumber       int     `json:"tradeNumber"` // 1-based
	IsWin             bool    `json:"isWin"`
	Result            float64 `json:"result"` // net of commission, before the zero-balance floor
	CumulativeOutcome float64 `json:"cumulativeOutcome"`
	DrawdownFromPeak  float64 `json:"drawdownFromPeak"`
	Balance           float64 `json:"balance,omitempty"` // ModelBalance only
}

// SimulationRun is one full trade sequence.
type SimulationRun struct {
	Trades        []SimulatedTrade `json:"trades"`
	FinalOutcome  float64          `json:"finalOutcome"`
	MaxDrawdown   float64          `json:"maxDrawdown"`
	PeakOutcome   float64          `json:"peakOutcome"`
	WinCount      int              `json:"winCount"`
	LossCount     int              `json:"lossCount"`
	MaxWinStreak  int              `json:"maxWinStreak"`
	MaxLossStreak int              `json:"maxLossStreak"`

	// ModelBalance only
	FinalBalance         float64 `json:"finalBalance,omitempty"`
	ReturnPct            float64 `json:"returnPct,omitempty"`
	MaxDrawdownPct       float64 `json:"maxDrawdownPct,omitempty"`
	TotalCommission      float64 `json:"totalCommission,omitempty"`
	UnderwaterTradeCount int     `json:"underwaterTradeCount,omitempty"`
	Ruined               bool    `json:"ruined,omitempty"`
}

// simulateRun plays NumberOfTrades Bernoulli trials. params must already be
// valid; nothing here re-checks them.
func simulateRun(params *SimulationParams, model RiskModel, rng RandomSource) SimulationRun {
	winProb := params.WinRate / 100
	tracksBalance := model.TracksBalance()
	startBalance := model.StartingBalance()
	balance := startBalance
	peakBalance := startBalance

	run := SimulationRun{
		Trades: make([]SimulatedTrade, 0, params.NumberOfTrades),
	}

	var cumulative, peak float64
	var winStreak, lossStreak int

	for i := 1; i <= params.NumberOfTrades; i++ {
		unit := model.RiskUnit(balance)
		isWin := rng.Float64() < winProb

		var result float64
		if isWin {
			result = params.RewardRiskRatio*unit - params.CommissionImpact
			run.WinCount++
			winStreak++
			lossStreak = 0
			if winStreak > run.MaxWinStreak {
				run.MaxWinStreak = winStreak
			}
		} else {
			result = -unit - params.CommissionImpact
			run.LossCount++
			lossStreak++
			winStreak = 0
			if lossStreak > run.MaxLossStreak {
				run.MaxLossStreak = lossStreak
			}
		}

		if tracksBalance {
			balance = math.Max(0, balance+result)
			cumulative = balance - startBalance
			run.TotalCommission += params.CommissionImpact
			if balance < startBalance {
				run.UnderwaterTradeCount++
			}
			if balance > peakBalance {
				peakBalance = balance
			}
			if peakBalance > 0 {
				if ddPct := (peakBalance - balance) / peakBalance * 100; ddPct > run.MaxDrawdownPct {
					run.MaxDrawdownPct = ddPct
				}
			}
		} else {
			cumulative += result
		}

		if cumulative > peak {
			peak = cumulative
		}
		drawdown := peak - cumulative
		if drawdown > run.MaxDrawdown {
			run.MaxDrawdown = drawdown
		}

		run.Trades = append(run.Trades, SimulatedTrade{
			TradeNumber:       i,
			IsWin:             isWin,
			Result:            result,
			CumulativeOutcome: cumulative,
			DrawdownFromPeak:  drawdown,
			Balance:           balance,
		})

		if tracksBalance && balance <= 0 {
			run.Ruined = true
			break
		}
	}

	run.FinalOutcome = cumulative
	run.PeakOutcome = peak
	if tracksBalance {
		run.FinalBalance = balance
		run.ReturnPct = (balance - startBalance) / startBalance * 100
	}

	return run
}
