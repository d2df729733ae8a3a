package risk

import (
	"fmt"
	"math"

	"token-trading-engine/internal/database"
)

const (
	// rewardRiskRatio is the assumed 2:1 payoff used by the Kelly formula
	// and reported on approved trades
	rewardRiskRatio = 2.0

	// kellyCapPct bounds the Kelly-derived size regardless of inputs
	kellyCapPct = 15.0

	// cashReservePct of portfolio value stays uninvested
	cashReservePct = 5.0
)

// SizingResult describes a recommended position size
type SizingResult struct {
	PercentOfPortfolio float64 `json:"percent_of_portfolio"`
	DollarAmount       float64 `json:"dollar_amount"`
	VolatilityFactor   float64 `json:"volatility_factor"`
	RiskLevel          string  `json:"risk_level"` // low, medium, high
	Justification      string  `json:"justification"`
}

// CalculatePositionSizing derives a Kelly-style position size from signal
// confidence and the configured stop-loss distance, then scales it down for
// volatile tokens and caps it by available cash and the configured maximum.
func (m *Manager) CalculatePositionSizing(portfolio *database.Portfolio, confidence, tokenVolatility float64) SizingResult {
	winProb := clampFloat(confidence/100, 0, 1)
	lossProb := 1 - winProb

	kelly := (winProb*rewardRiskRatio - lossProb) / rewardRiskRatio
	stopLossFrac := m.cfg.StopLossPercent / 100

	percent := 0.0
	if kelly > 0 && stopLossFrac > 0 {
		percent = kelly / stopLossFrac
	}
	percent = clampFloat(percent, 0, kellyCapPct)

	factor := volatilityFactor(tokenVolatility)
	percent *= factor

	// keep a cash reserve and honor the configured per-position cap
	capacity := 0.0
	if portfolio.TotalValue > 0 {
		reserve := portfolio.TotalValue * cashReservePct / 100
		capacity = (portfolio.CashBalance - reserve) / portfolio.TotalValue * 100
	}
	percent = clampFloat(percent, 0, math.Max(capacity, 0))
	percent = clampFloat(percent, 0, m.cfg.MaxPositionSize)

	level := classifyRiskLevel(percent, tokenVolatility, confidence)

	return SizingResult{
		PercentOfPortfolio: percent,
		DollarAmount:       portfolio.TotalValue * percent / 100,
		VolatilityFactor:   factor,
		RiskLevel:          level,
		Justification: fmt.Sprintf(
			"kelly %.1f%% at %.0f%% confidence (2:1 R), volatility factor %.2f, capped at %.1f%% of portfolio",
			kelly*100, confidence, factor, percent),
	}
}

// volatilityFactor scales size down in tiers as token volatility rises
func volatilityFactor(volatility float64) float64 {
	switch {
	case volatility > 15:
		return 0.5
	case volatility > 10:
		return 0.7
	case volatility > 5:
		return 0.85
	default:
		return 1.0
	}
}

// classifyRiskLevel folds size, volatility, and conviction shortfall into a
// coarse label
func classifyRiskLevel(sizePct, volatility, confidence float64) string {
	composite := sizePct/kellyCapPct + volatility/20 + (100-confidence)/100
	switch {
	case composite < 0.8:
		return "low"
	case composite < 1.5:
		return "medium"
	default:
		return "high"
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
