package risk

import (
	"context"
	"fmt"

	"token-trading-engine/internal/database"
)

// TradeAssessment is the risk gate's verdict on a candidate trade
type TradeAssessment struct {
	Allowed         bool    `json:"allowed"`
	Reason          string  `json:"reason,omitempty"`
	SuggestedAmount float64 `json:"suggested_amount,omitempty"`
	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
	RiskRewardRatio float64 `json:"risk_reward_ratio,omitempty"`
}

func rejected(format string, args ...interface{}) *TradeAssessment {
	return &TradeAssessment{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// AnalyzeTradeRisk validates a candidate trade against position and
// portfolio-level limits. position may be nil when the portfolio holds no
// position in the token. Rejection is expected control flow, not an error;
// the error return covers storage failures only.
func (m *Manager) AnalyzeTradeRisk(ctx context.Context, portfolio *database.Portfolio, position *database.Position, side string, amount, price float64) (*TradeAssessment, error) {
	if amount <= 0 || price <= 0 {
		return rejected("amount and price must be positive"), nil
	}

	if side == database.TradeSideSell {
		return m.assessSell(position, amount, price), nil
	}
	return m.assessBuy(ctx, portfolio, position, amount, price)
}

func (m *Manager) assessSell(position *database.Position, amount, price float64) *TradeAssessment {
	held := 0.0
	if position != nil {
		held = position.Amount
	}
	if amount > held {
		a := rejected("sell of %.6f exceeds held amount %.6f", amount, held)
		a.SuggestedAmount = held
		return a
	}

	return &TradeAssessment{
		Allowed:         true,
		StopLossPrice:   price * (1 + m.cfg.StopLossPercent/100),
		RiskRewardRatio: rewardRiskRatio,
	}
}

func (m *Manager) assessBuy(ctx context.Context, portfolio *database.Portfolio, position *database.Position, amount, price float64) (*TradeAssessment, error) {
	if portfolio.TotalValue <= 0 {
		return rejected("portfolio has no value to size against"), nil
	}

	tradeValue := amount * price

	held := 0.0
	if position != nil && position.Amount > 0 {
		held = position.Amount
	}
	postValue := (held + amount) * price

	positions, err := m.store.GetPositionsByPortfolio(ctx, portfolio.ID)
	if err != nil {
		return nil, err
	}

	// prospective concentration is the largest open position value with the
	// candidate buy folded in, as a share of portfolio value
	largest := postValue
	open := 0
	for _, p := range positions {
		if p.Amount <= 0 {
			continue
		}
		open++
		if position != nil && p.TokenID == position.TokenID {
			continue // candidate already folded into postValue
		}
		token, err := m.store.GetToken(ctx, p.TokenID)
		if err != nil {
			continue
		}
		if v := p.Amount * token.CurrentPrice; v > largest {
			largest = v
		}
	}
	concentrationPct := largest / portfolio.TotalValue * 100
	if concentrationPct > m.cfg.MaxConcentration {
		return rejected("concentration would reach %.1f%%, limit is %.1f%%",
			concentrationPct, m.cfg.MaxConcentration), nil
	}

	positionPct := postValue / portfolio.TotalValue * 100
	if positionPct > m.cfg.MaxPositionSize {
		return rejected("position would be %.1f%% of portfolio, limit is %.1f%%",
			positionPct, m.cfg.MaxPositionSize), nil
	}

	if held == 0 && open >= m.cfg.MaxOpenPositions {
		return rejected("already holding %d open positions, limit is %d",
			open, m.cfg.MaxOpenPositions), nil
	}

	dailyPnL, err := m.store.GetDailyRealizedPnL(ctx, portfolio.ID)
	if err != nil {
		return nil, err
	}
	realizedLoss := 0.0
	if dailyPnL < 0 {
		realizedLoss = -dailyPnL
	}
	stopExposure := tradeValue * m.cfg.StopLossPercent / 100
	dailyLossLimit := portfolio.TotalValue * m.cfg.MaxDailyLoss / 100
	if realizedLoss+stopExposure > dailyLossLimit {
		return rejected("stop-loss exposure $%.2f plus today's realized loss $%.2f exceeds daily loss limit $%.2f",
			stopExposure, realizedLoss, dailyLossLimit), nil
	}

	return &TradeAssessment{
		Allowed:         true,
		StopLossPrice:   price * (1 - m.cfg.StopLossPercent/100),
		RiskRewardRatio: rewardRiskRatio,
	}, nil
}
