package risk

import (
	"context"
	"math"
	"sort"

	"token-trading-engine/config"
	"token-trading-engine/internal/database"
	"token-trading-engine/internal/logging"
)

// sharpeMinTrades is the minimum closed-trade count before the Sharpe ratio
// is considered meaningful
const sharpeMinTrades = 30

// closedTradeWindow bounds how much history feeds the portfolio metrics
const closedTradeWindow = 500

// Store is the persistence surface the risk manager reads from
type Store interface {
	GetToken(ctx context.Context, id string) (*database.Token, error)
	GetAllPortfolios(ctx context.Context) ([]*database.Portfolio, error)
	GetPositionsByPortfolio(ctx context.Context, portfolioID string) ([]*database.Position, error)
	GetClosedTrades(ctx context.Context, portfolioID string, limit int) ([]*database.Trade, error)
	GetDailyRealizedPnL(ctx context.Context, portfolioID string) (float64, error)
}

// PortfolioRisk is the metric bundle produced by AnalyzePortfolioRisk
type PortfolioRisk struct {
	PortfolioValue float64 `json:"portfolio_value"`
	TotalPnL       float64 `json:"total_pnl"`
	WinRate        float64 `json:"win_rate"`
	MaxDrawdown    float64 `json:"max_drawdown"`    // % peak-to-trough on realized equity
	SharpeRatio    float64 `json:"sharpe_ratio"`    // annualized, 0 below sharpeMinTrades
	Volatility     float64 `json:"volatility"`      // stddev of daily P&L, % of value
	VaR95          float64 `json:"var_95"`          // dollar value at risk, 95% confidence
	Concentration  float64 `json:"concentration"`   // largest position, % of value
	DailyPnL       float64 `json:"daily_pnl"`
	OpenPositions  int     `json:"open_positions"`
}

// Manager computes portfolio risk metrics and gates candidate trades
type Manager struct {
	store Store
	cfg   config.RiskConfig
	log   *logging.Logger
}

func NewManager(store Store, cfg config.RiskConfig, log *logging.Logger) *Manager {
	return &Manager{
		store: store,
		cfg:   cfg,
		log:   log.WithComponent("risk_manager"),
	}
}

// Config exposes the effective risk limits
func (m *Manager) Config() config.RiskConfig {
	return m.cfg
}

// AnalyzePortfolioRisk recomputes the full metric bundle for one portfolio
func (m *Manager) AnalyzePortfolioRisk(ctx context.Context, portfolio *database.Portfolio) (*PortfolioRisk, error) {
	trades, err := m.store.GetClosedTrades(ctx, portfolio.ID, closedTradeWindow)
	if err != nil {
		return nil, err
	}

	dailyPnL, err := m.store.GetDailyRealizedPnL(ctx, portfolio.ID)
	if err != nil {
		return nil, err
	}

	positions, err := m.store.GetPositionsByPortfolio(ctx, portfolio.ID)
	if err != nil {
		return nil, err
	}

	concentration, openCount, err := m.concentration(ctx, portfolio, positions)
	if err != nil {
		return nil, err
	}

	dailyReturns := dailyPnLSeries(trades)
	volatilityPct := stddev(dailyReturns) / math.Max(portfolio.TotalValue, 1) * 100

	return &PortfolioRisk{
		PortfolioValue: portfolio.TotalValue,
		TotalPnL:       portfolio.TotalPnL,
		WinRate:        portfolio.WinRate,
		MaxDrawdown:    maxDrawdown(portfolio, trades),
		SharpeRatio:    sharpeRatio(portfolio, dailyReturns, len(trades)),
		Volatility:     volatilityPct,
		VaR95:          portfolio.TotalValue * (volatilityPct / 100) * 1.645,
		Concentration:  concentration,
		DailyPnL:       dailyPnL,
		OpenPositions:  openCount,
	}, nil
}

// concentration returns the largest open position's share of portfolio value
// and the count of open positions
func (m *Manager) concentration(ctx context.Context, portfolio *database.Portfolio, positions []*database.Position) (float64, int, error) {
	if portfolio.TotalValue <= 0 {
		return 0, 0, nil
	}

	largest := 0.0
	open := 0
	for _, pos := range positions {
		if pos.Amount <= 0 {
			continue
		}
		open++

		token, err := m.store.GetToken(ctx, pos.TokenID)
		if err != nil {
			m.log.WithError(err).Warn("skipping position %s in concentration calc", pos.ID)
			continue
		}
		value := pos.Amount * token.CurrentPrice
		if value > largest {
			largest = value
		}
	}

	return largest / portfolio.TotalValue * 100, open, nil
}

// maxDrawdown walks realized trade P&L chronologically and returns the
// largest peak-to-trough percentage drop of the equity curve
func maxDrawdown(portfolio *database.Portfolio, trades []*database.Trade) float64 {
	base := portfolio.TotalValue - portfolio.TotalPnL
	if base <= 0 {
		base = portfolio.TotalValue
	}
	if base <= 0 {
		return 0
	}

	equity := base
	peak := base
	worst := 0.0
	for _, t := range trades {
		if t.RealizedPnL == nil {
			continue
		}
		equity += *t.RealizedPnL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak * 100
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpeRatio annualizes mean/stddev of daily returns. Below sharpeMinTrades
// closed trades the sample is too small to mean anything, so it reports 0.
func sharpeRatio(portfolio *database.Portfolio, dailyPnL []float64, tradeCount int) float64 {
	if tradeCount < sharpeMinTrades || len(dailyPnL) < 2 || portfolio.TotalValue <= 0 {
		return 0
	}

	returns := make([]float64, len(dailyPnL))
	for i, pnl := range dailyPnL {
		returns[i] = pnl / portfolio.TotalValue
	}

	sd := stddev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(252)
}

// dailyPnLSeries buckets realized P&L by calendar day, sorted chronologically
func dailyPnLSeries(trades []*database.Trade) []float64 {
	byDay := make(map[string]float64)
	for _, t := range trades {
		if t.RealizedPnL == nil || t.ClosedAt == nil {
			continue
		}
		byDay[t.ClosedAt.Format("2006-01-02")] += *t.RealizedPnL
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	series := make([]float64, len(days))
	for i, day := range days {
		series[i] = byDay[day]
	}
	return series
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - m) * (v - m)
	}
	return math.Sqrt(variance / float64(len(values)))
}
