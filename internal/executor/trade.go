package executor

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"token-trading-engine/internal/database"
	"token-trading-engine/internal/events"
)

// volatilityWindow is how many recent price points feed the token
// volatility estimate used for sizing
const volatilityWindow = 50

type signalContext struct {
	tokenID    string
	pattern    *database.Pattern
	confidence float64
	intent     intent
	source     string
}

// executeSignal is the single entry point for signal-driven trades. Trade
// application is serialized so the position read-then-write sequence cannot
// interleave with the monitoring tick or another signal.
func (e *Engine) executeSignal(ctx context.Context, sig signalContext) {
	e.tradeMu.Lock()
	defer e.tradeMu.Unlock()

	log := e.logger.With().Str("source", sig.source).Str("token_id", sig.tokenID).Logger()

	portfolio, err := e.store.GetPortfolio(ctx, e.portfolioID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load portfolio")
		return
	}

	token, err := e.store.GetToken(ctx, sig.tokenID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load token")
		return
	}
	if token.CurrentPrice <= 0 {
		return
	}

	position, err := e.store.GetPositionByPortfolioAndToken(ctx, e.portfolioID, sig.tokenID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		log.Error().Err(err).Msg("failed to load position")
		return
	}

	switch sig.intent {
	case intentBuy:
		if position != nil && position.Amount > 0 {
			log.Debug().Str("symbol", token.Symbol).Msg("position already open, skipping buy")
			return
		}
		e.executeBuy(ctx, portfolio, token, position, sig, log)
	case intentSell:
		if position == nil || position.Amount <= 0 {
			log.Debug().Str("symbol", token.Symbol).Msg("no open position, skipping sell")
			return
		}
		if _, err := e.closePositionLocked(ctx, portfolio, position, token, sig.source, sig.pattern); err != nil {
			log.Error().Err(err).Msg("failed to close position on sell signal")
		}
	}
}

func (e *Engine) executeBuy(ctx context.Context, portfolio *database.Portfolio, token *database.Token, position *database.Position, sig signalContext, log zerolog.Logger) {
	volatility := e.tokenVolatility(ctx, token.ID)
	sizing := e.riskMgr.CalculatePositionSizing(portfolio, sig.confidence, volatility)
	if sizing.DollarAmount <= 0 {
		log.Debug().Str("justification", sizing.Justification).Msg("sizing produced no allocation")
		return
	}

	amount := sizing.DollarAmount / token.CurrentPrice

	assessment, err := e.riskMgr.AnalyzeTradeRisk(ctx, portfolio, position, database.TradeSideBuy, amount, token.CurrentPrice)
	if err != nil {
		log.Error().Err(err).Msg("risk assessment failed")
		return
	}
	if !assessment.Allowed {
		log.Info().Str("reason", assessment.Reason).Msg("trade rejected by risk gate")
		return
	}

	tradeValue := amount * token.CurrentPrice
	if tradeValue > portfolio.CashBalance {
		log.Info().
			Float64("trade_value", tradeValue).
			Float64("cash", portfolio.CashBalance).
			Msg("insufficient cash, skipping buy")
		return
	}

	var patternID *string
	if sig.pattern != nil {
		patternID = &sig.pattern.ID
	}

	now := time.Now()
	trade := &database.Trade{
		PortfolioID: portfolio.ID,
		TokenID:     token.ID,
		PatternID:   patternID,
		Side:        database.TradeSideBuy,
		Amount:      amount,
		Price:       token.CurrentPrice,
		TotalValue:  tradeValue,
		ExecutedAt:  now,
	}
	if err := e.store.CreateTrade(ctx, trade); err != nil {
		log.Error().Err(err).Msg("failed to persist trade")
		return
	}

	if err := e.applyBuyToPosition(ctx, portfolio, token, position, amount); err != nil {
		log.Error().Err(err).Msg("failed to update position after buy")
		return
	}

	portfolio.CashBalance -= tradeValue
	portfolio.UpdatedAt = now
	if err := e.store.UpdatePortfolio(ctx, portfolio); err != nil {
		log.Error().Err(err).Msg("failed to update portfolio after buy")
		return
	}

	log.Info().
		Str("symbol", token.Symbol).
		Float64("amount", amount).
		Float64("price", token.CurrentPrice).
		Float64("value", tradeValue).
		Str("risk_level", sizing.RiskLevel).
		Float64("stop_loss_price", assessment.StopLossPrice).
		Msg("buy executed")

	e.bus.PublishTradeExecuted(events.TradeExecutedPayload{
		Trade:     trade,
		Pattern:   sig.pattern,
		AlertType: sig.source,
		Token:     token,
	})
}

// applyBuyToPosition creates the position row or folds the buy into the
// existing one at a weighted-average price
func (e *Engine) applyBuyToPosition(ctx context.Context, portfolio *database.Portfolio, token *database.Token, position *database.Position, amount float64) error {
	now := time.Now()
	if position == nil {
		return e.store.CreatePosition(ctx, &database.Position{
			PortfolioID: portfolio.ID,
			TokenID:     token.ID,
			Amount:      amount,
			AvgBuyPrice: token.CurrentPrice,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	totalCost := position.Amount*position.AvgBuyPrice + amount*token.CurrentPrice
	position.Amount += amount
	position.AvgBuyPrice = totalCost / position.Amount
	position.UpdatedAt = now
	return e.store.UpdatePosition(ctx, position)
}

// ClosePosition force-exits a position at the given price. It satisfies the
// risk monitor's PositionCloser interface and shares the trade path with
// signal-driven sells.
func (e *Engine) ClosePosition(ctx context.Context, portfolio *database.Portfolio, position *database.Position, price float64, reason string) (*database.Trade, error) {
	e.tradeMu.Lock()
	defer e.tradeMu.Unlock()

	token, err := e.store.GetToken(ctx, position.TokenID)
	if err != nil {
		return nil, err
	}
	token.CurrentPrice = price
	return e.closePositionLocked(ctx, portfolio, position, token, reason, nil)
}

// closePositionLocked sells the full position at the token's current price,
// records realized P&L on both the sell trade and the originating buy
// trades, zeroes the position, and updates portfolio totals. Callers hold
// tradeMu.
func (e *Engine) closePositionLocked(ctx context.Context, portfolio *database.Portfolio, position *database.Position, token *database.Token, reason string, pattern *database.Pattern) (*database.Trade, error) {
	if position.Amount <= 0 {
		return nil, errors.New("position already closed")
	}

	amount := position.Amount
	price := token.CurrentPrice
	sellValue := amount * price
	buyValue := amount * position.AvgBuyPrice
	realized := sellValue - buyValue

	var patternID *string
	if pattern != nil {
		patternID = &pattern.ID
	}

	now := time.Now()
	trade := &database.Trade{
		PortfolioID: portfolio.ID,
		TokenID:     position.TokenID,
		PatternID:   patternID,
		Side:        database.TradeSideSell,
		Amount:      amount,
		Price:       price,
		TotalValue:  sellValue,
		ExecutedAt:  now,
	}
	if err := e.store.CreateTrade(ctx, trade); err != nil {
		return nil, err
	}
	trade.ExitPrice = &price
	trade.RealizedPnL = &realized
	trade.ClosedAt = &now
	if err := e.store.UpdateTrade(ctx, trade); err != nil {
		return nil, err
	}

	// close out the originating buys so performance attribution can walk
	// from pattern to realized outcome
	if err := e.closeOpenBuys(ctx, portfolio.ID, position.TokenID, price, now); err != nil {
		e.logger.Error().Err(err).Str("symbol", token.Symbol).Msg("failed to close originating buy trades")
	}

	position.Amount = 0
	position.UpdatedAt = now
	if err := e.store.UpdatePosition(ctx, position); err != nil {
		return nil, err
	}

	portfolio.CashBalance += sellValue
	portfolio.TotalPnL += realized
	e.refreshPortfolioStats(ctx, portfolio)
	portfolio.UpdatedAt = now
	if err := e.store.UpdatePortfolio(ctx, portfolio); err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("symbol", token.Symbol).
		Str("reason", reason).
		Float64("amount", amount).
		Float64("price", price).
		Float64("realized_pnl", realized).
		Msg("position closed")

	e.bus.PublishTradeExecuted(events.TradeExecutedPayload{
		Trade:     trade,
		Pattern:   pattern,
		AlertType: reason,
		Token:     token,
	})
	return trade, nil
}

// refreshPortfolioStats rederives win rate and daily P&L from closed trade
// history. Win rate counts exits with positive realized P&L; daily P&L is
// the store's sum for the current day, so it rolls over with the calendar
// instead of accumulating forever.
func (e *Engine) refreshPortfolioStats(ctx context.Context, portfolio *database.Portfolio) {
	closed, err := e.store.GetClosedTrades(ctx, portfolio.ID, 0)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to load closed trades for win rate")
	} else {
		wins, total := 0, 0
		for _, t := range closed {
			if t.Side != database.TradeSideSell || t.RealizedPnL == nil {
				continue
			}
			total++
			if *t.RealizedPnL > 0 {
				wins++
			}
		}
		if total > 0 {
			portfolio.WinRate = float64(wins) / float64(total) * 100
		}
	}

	daily, err := e.store.GetDailyRealizedPnL(ctx, portfolio.ID)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to load daily realized pnl")
		return
	}
	portfolio.DailyPnL = daily
}

// closeOpenBuys stamps exit price and per-trade realized P&L on every open
// buy trade for the token
func (e *Engine) closeOpenBuys(ctx context.Context, portfolioID, tokenID string, exitPrice float64, closedAt time.Time) error {
	buys, err := e.store.GetOpenBuyTrades(ctx, portfolioID, tokenID)
	if err != nil {
		return err
	}
	for _, buy := range buys {
		pnl := (exitPrice - buy.Price) * buy.Amount
		buy.ExitPrice = &exitPrice
		buy.RealizedPnL = &pnl
		buy.ClosedAt = &closedAt
		if err := e.store.UpdateTrade(ctx, buy); err != nil {
			return err
		}
	}
	return nil
}

// tokenVolatility estimates recent volatility as the coefficient of
// variation of the last price points, in percent
func (e *Engine) tokenVolatility(ctx context.Context, tokenID string) float64 {
	history, err := e.store.GetPriceHistory(ctx, tokenID, volatilityWindow)
	if err != nil || len(history) < 2 {
		return 0
	}

	sum := 0.0
	for _, p := range history {
		sum += p.Price
	}
	mean := sum / float64(len(history))
	if mean == 0 {
		return 0
	}

	variance := 0.0
	for _, p := range history {
		variance += (p.Price - mean) * (p.Price - mean)
	}
	sd := math.Sqrt(variance / float64(len(history)))
	return sd / mean * 100
}
