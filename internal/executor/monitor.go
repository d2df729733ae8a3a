package executor

import (
	"context"
	"time"

	"token-trading-engine/internal/database"
	"token-trading-engine/internal/events"
)

// monitorLoop is the periodic mark-to-market tick. Each pass recomputes
// portfolio value from live prices, publishes a stats update, and force-exits
// positions that have reached their stop-loss or take-profit distance.
func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.strategyCfg.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.runMonitorTick(ctx)
		case <-e.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) runMonitorTick(ctx context.Context) {
	e.tradeMu.Lock()
	defer e.tradeMu.Unlock()

	portfolio, err := e.store.GetPortfolio(ctx, e.portfolioID)
	if err != nil {
		e.logger.Error().Err(err).Msg("monitor tick: failed to load portfolio")
		return
	}

	positions, err := e.store.GetPositionsByPortfolio(ctx, e.portfolioID)
	if err != nil {
		e.logger.Error().Err(err).Msg("monitor tick: failed to load positions")
		return
	}

	positionValue := 0.0
	active := 0
	for _, pos := range positions {
		if pos.Amount <= 0 {
			continue
		}

		token, err := e.store.GetToken(ctx, pos.TokenID)
		if err != nil {
			e.logger.Warn().Err(err).Str("position_id", pos.ID).Msg("monitor tick: skipping position")
			continue
		}

		if e.checkExit(ctx, portfolio, pos, token) {
			continue // closed, cash already credited
		}

		positionValue += pos.Amount * token.CurrentPrice
		active++
	}

	portfolio.TotalValue = portfolio.CashBalance + positionValue
	e.refreshPortfolioStats(ctx, portfolio)
	portfolio.UpdatedAt = time.Now()
	if err := e.store.UpdatePortfolio(ctx, portfolio); err != nil {
		e.logger.Error().Err(err).Msg("monitor tick: failed to update portfolio")
		return
	}

	closed, err := e.store.GetClosedTrades(ctx, e.portfolioID, 0)
	totalTrades := 0
	if err == nil {
		totalTrades = len(closed)
	}

	e.bus.PublishStatsUpdate(events.StatsUpdatePayload{
		PortfolioID:     portfolio.ID,
		TotalValue:      portfolio.TotalValue,
		TotalPnL:        portfolio.TotalPnL,
		TotalTrades:     totalTrades,
		ActivePositions: active,
	})
}

// checkExit force-closes the position when the move from average buy price
// has reached the stop-loss or take-profit threshold. Reports whether the
// position was closed.
func (e *Engine) checkExit(ctx context.Context, portfolio *database.Portfolio, pos *database.Position, token *database.Token) bool {
	if pos.AvgBuyPrice <= 0 {
		return false
	}

	cfg := e.riskMgr.Config()
	movePct := (token.CurrentPrice - pos.AvgBuyPrice) / pos.AvgBuyPrice * 100

	var reason string
	switch {
	case movePct <= -cfg.StopLossPercent:
		reason = "stop_loss"
	case movePct >= cfg.TakeProfitPercent:
		reason = "take_profit"
	default:
		return false
	}

	if _, err := e.closePositionLocked(ctx, portfolio, pos, token, reason, nil); err != nil {
		e.logger.Error().Err(err).Str("symbol", token.Symbol).Str("reason", reason).Msg("forced exit failed")
		return false
	}
	return true
}
