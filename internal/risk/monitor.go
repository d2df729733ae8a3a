package risk

import (
	"context"
	"sync"
	"time"

	"token-trading-engine/internal/database"
	"token-trading-engine/internal/events"
	"token-trading-engine/internal/logging"
)

// PositionCloser force-exits an open position at the given market price. The
// execution engine implements this so monitor-triggered exits go through the
// same trade path as every other sell.
type PositionCloser interface {
	ClosePosition(ctx context.Context, portfolio *database.Portfolio, position *database.Position, price float64, reason string) (*database.Trade, error)
}

// Monitor periodically recomputes risk metrics, raises limit breaches, and
// force-closes positions that have moved through their stop distance
type Monitor struct {
	manager *Manager
	store   Store
	bus     *events.EventBus
	closer  PositionCloser
	log     *logging.Logger

	interval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewMonitor(manager *Manager, store Store, bus *events.EventBus, closer PositionCloser, log *logging.Logger) *Monitor {
	return &Monitor{
		manager:  manager,
		store:    store,
		bus:      bus,
		closer:   closer,
		log:      log.WithComponent("risk_monitor"),
		interval: manager.cfg.MonitoringInterval,
	}
}

func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	m.log.Info("starting risk monitor, interval=%s", m.interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.runCycle(ctx)
			case <-m.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info("risk monitor stopped")
}

func (m *Monitor) runCycle(ctx context.Context) {
	portfolios, err := m.store.GetAllPortfolios(ctx)
	if err != nil {
		m.log.WithError(err).Error("failed to load portfolios")
		return
	}

	for _, portfolio := range portfolios {
		if err := m.checkPortfolio(ctx, portfolio); err != nil {
			m.log.WithError(err).Error("risk check failed for portfolio %s", portfolio.ID)
		}
	}
}

func (m *Monitor) checkPortfolio(ctx context.Context, portfolio *database.Portfolio) error {
	metrics, err := m.manager.AnalyzePortfolioRisk(ctx, portfolio)
	if err != nil {
		return err
	}

	cfg := m.manager.cfg
	if metrics.MaxDrawdown > cfg.MaxDrawdown {
		m.raiseLimitBreach(portfolio.ID, "drawdown", metrics.MaxDrawdown, cfg.MaxDrawdown)
	}
	if metrics.Concentration > cfg.MaxConcentration {
		m.raiseLimitBreach(portfolio.ID, "concentration", metrics.Concentration, cfg.MaxConcentration)
	}
	dailyLossLimit := portfolio.TotalValue * cfg.MaxDailyLoss / 100
	if metrics.DailyPnL < -dailyLossLimit {
		m.raiseLimitBreach(portfolio.ID, "daily_loss", -metrics.DailyPnL, dailyLossLimit)
	}

	return m.enforceStops(ctx, portfolio)
}

func (m *Monitor) raiseLimitBreach(portfolioID, limitType string, current, limit float64) {
	m.log.Warn("risk limit exceeded: %s current=%.2f limit=%.2f portfolio=%s",
		limitType, current, limit, portfolioID)
	m.bus.PublishRiskLimitExceeded(events.RiskLimitExceededPayload{
		LimitType:   limitType,
		Current:     current,
		Limit:       limit,
		PortfolioID: portfolioID,
	})
}

// enforceStops force-closes every open position whose price has moved against
// the average buy price by at least the configured stop-loss percentage
func (m *Monitor) enforceStops(ctx context.Context, portfolio *database.Portfolio) error {
	positions, err := m.store.GetPositionsByPortfolio(ctx, portfolio.ID)
	if err != nil {
		return err
	}

	for _, pos := range positions {
		if pos.Amount <= 0 || pos.AvgBuyPrice <= 0 {
			continue
		}

		token, err := m.store.GetToken(ctx, pos.TokenID)
		if err != nil {
			m.log.WithError(err).Warn("skipping stop check for position %s", pos.ID)
			continue
		}

		lossPct := (pos.AvgBuyPrice - token.CurrentPrice) / pos.AvgBuyPrice * 100
		if lossPct < m.manager.cfg.StopLossPercent {
			continue
		}

		trade, err := m.closer.ClosePosition(ctx, portfolio, pos, token.CurrentPrice, "stop_loss")
		if err != nil {
			m.log.WithError(err).Error("failed to force-close position %s", pos.ID)
			continue
		}

		loss := 0.0
		if trade.RealizedPnL != nil {
			loss = *trade.RealizedPnL
		}
		m.log.Warn("stop-loss triggered for %s at %.6f, loss %.2f", token.Symbol, token.CurrentPrice, loss)
		m.bus.PublishStopLossTriggered(events.StopLossTriggeredPayload{
			PositionID:    pos.ID,
			TokenSymbol:   token.Symbol,
			StopLossPrice: pos.AvgBuyPrice * (1 - m.manager.cfg.StopLossPercent/100),
			CurrentPrice:  token.CurrentPrice,
			Loss:          loss,
			PortfolioID:   portfolio.ID,
		})
	}

	return nil
}
