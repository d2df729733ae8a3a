package risk

import (
	"context"
	"strings"
	"testing"
	"time"

	"token-trading-engine/config"
	"token-trading-engine/internal/database"
	"token-trading-engine/internal/logging"
)

type fakeStore struct {
	tokens     map[string]*database.Token
	portfolios []*database.Portfolio
	positions  []*database.Position
	closed     []*database.Trade
	dailyPnL   float64
}

func (f *fakeStore) GetToken(_ context.Context, id string) (*database.Token, error) {
	if t, ok := f.tokens[id]; ok {
		return t, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) GetAllPortfolios(_ context.Context) ([]*database.Portfolio, error) {
	return f.portfolios, nil
}

func (f *fakeStore) GetPositionsByPortfolio(_ context.Context, portfolioID string) ([]*database.Position, error) {
	var out []*database.Position
	for _, p := range f.positions {
		if p.PortfolioID == portfolioID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetClosedTrades(_ context.Context, _ string, _ int) ([]*database.Trade, error) {
	return f.closed, nil
}

func (f *fakeStore) GetDailyRealizedPnL(_ context.Context, _ string) (float64, error) {
	return f.dailyPnL, nil
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		Profile:            "balanced",
		MaxPositionSize:    15,
		MaxDailyLoss:       5,
		MaxDrawdown:        15,
		MaxConcentration:   25,
		StopLossPercent:    8,
		TakeProfitPercent:  15,
		MaxOpenPositions:   5,
		MonitoringInterval: 30 * time.Second,
	}
}

func newTestManager(store *fakeStore, cfg config.RiskConfig) *Manager {
	return NewManager(store, cfg, logging.Default())
}

// TestKellySizingClamp verifies the Kelly-derived percentage stays within
// [0,15] for any confidence and stop-loss input
func TestKellySizingClamp(t *testing.T) {
	portfolio := &database.Portfolio{CashBalance: 100000, TotalValue: 100000}

	for _, stopLoss := range []float64{0.5, 2, 8, 50} {
		cfg := testRiskConfig()
		cfg.StopLossPercent = stopLoss
		cfg.MaxPositionSize = 100 // don't let the config cap mask the Kelly clamp
		m := newTestManager(&fakeStore{}, cfg)

		for confidence := 0.0; confidence <= 100; confidence += 10 {
			for _, vol := range []float64{0, 3, 8, 12, 25} {
				result := m.CalculatePositionSizing(portfolio, confidence, vol)
				if result.PercentOfPortfolio < 0 || result.PercentOfPortfolio > 15 {
					t.Errorf("Sizing out of [0,15]: %.2f%% at confidence=%f stopLoss=%f vol=%f",
						result.PercentOfPortfolio, confidence, stopLoss, vol)
				}
			}
		}
	}
}

func TestSizingVolatilityTiers(t *testing.T) {
	cases := []struct {
		volatility float64
		factor     float64
	}{
		{20, 0.5},
		{12, 0.7},
		{7, 0.85},
		{3, 1.0},
	}
	for _, tc := range cases {
		if got := volatilityFactor(tc.volatility); got != tc.factor {
			t.Errorf("volatilityFactor(%f) = %f, want %f", tc.volatility, got, tc.factor)
		}
	}
}

func TestSizingKeepsCashReserve(t *testing.T) {
	m := newTestManager(&fakeStore{}, testRiskConfig())

	// nearly fully invested: only 4% of value in cash, under the 5% reserve
	portfolio := &database.Portfolio{CashBalance: 400, TotalValue: 10000}
	result := m.CalculatePositionSizing(portfolio, 90, 0)
	if result.PercentOfPortfolio != 0 {
		t.Errorf("Sizing should be 0 when cash is below the reserve, got %.2f%%", result.PercentOfPortfolio)
	}
}

// TestSellExceedsPosition verifies the gate never approves a sell larger
// than the held amount
func TestSellExceedsPosition(t *testing.T) {
	m := newTestManager(&fakeStore{}, testRiskConfig())
	portfolio := &database.Portfolio{ID: "p1", CashBalance: 5000, TotalValue: 10000}
	position := &database.Position{Amount: 10, AvgBuyPrice: 100}

	assessment, err := m.AnalyzeTradeRisk(context.Background(), portfolio, position, database.TradeSideSell, 15, 100)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if assessment.Allowed {
		t.Fatal("Should reject a sell exceeding the held amount")
	}
	if assessment.SuggestedAmount != 10 {
		t.Errorf("Suggested amount should be the held amount 10, got %f", assessment.SuggestedAmount)
	}

	// selling without any position at all
	assessment, _ = m.AnalyzeTradeRisk(context.Background(), portfolio, nil, database.TradeSideSell, 1, 100)
	if assessment.Allowed {
		t.Error("Should reject a sell with no position")
	}
}

// TestConcentrationRejection replays the documented example under the
// shipped balanced profile: a $10,000 portfolio holding a $3,000 position is
// already at 30%, above the 25% limit, so the next buy into that token must
// be rejected citing concentration
func TestConcentrationRejection(t *testing.T) {
	position := &database.Position{PortfolioID: "p1", TokenID: "tok", Amount: 30, AvgBuyPrice: 100}
	store := &fakeStore{
		tokens:    map[string]*database.Token{"tok": {ID: "tok", CurrentPrice: 100}},
		positions: []*database.Position{position},
	}
	m := newTestManager(store, config.RiskProfile("balanced"))

	portfolio := &database.Portfolio{ID: "p1", CashBalance: 7000, TotalValue: 10000}

	assessment, err := m.AnalyzeTradeRisk(context.Background(), portfolio, position, database.TradeSideBuy, 1, 100)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if assessment.Allowed {
		t.Fatal("Should reject a buy pushing concentration above the limit")
	}
	if !strings.Contains(assessment.Reason, "concentration") {
		t.Errorf("Rejection reason should cite concentration, got %q", assessment.Reason)
	}
}

// TestConcentrationCoversOtherPositions verifies the largest open position
// drives the concentration check even when the candidate buy is in a
// different token
func TestConcentrationCoversOtherPositions(t *testing.T) {
	store := &fakeStore{
		tokens: map[string]*database.Token{"big": {ID: "big", CurrentPrice: 100}},
		positions: []*database.Position{
			{PortfolioID: "p1", TokenID: "big", Amount: 30, AvgBuyPrice: 100},
		},
	}
	m := newTestManager(store, config.RiskProfile("balanced"))

	portfolio := &database.Portfolio{ID: "p1", CashBalance: 7000, TotalValue: 10000}

	assessment, err := m.AnalyzeTradeRisk(context.Background(), portfolio, nil, database.TradeSideBuy, 1, 100)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if assessment.Allowed {
		t.Fatal("Should reject while the largest position breaches the concentration limit")
	}
	if !strings.Contains(assessment.Reason, "concentration") {
		t.Errorf("Rejection reason should cite concentration, got %q", assessment.Reason)
	}
}

// TestPositionSizeRejection verifies an oversized candidate inside the
// concentration limit is rejected citing position size
func TestPositionSizeRejection(t *testing.T) {
	m := newTestManager(&fakeStore{}, config.RiskProfile("balanced"))

	portfolio := &database.Portfolio{ID: "p1", CashBalance: 10000, TotalValue: 10000}

	// 20 units at $100 is 20% of the portfolio: over the 15% size cap,
	// under the 25% concentration cap
	assessment, err := m.AnalyzeTradeRisk(context.Background(), portfolio, nil, database.TradeSideBuy, 20, 100)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if assessment.Allowed {
		t.Fatal("Should reject a buy above the position-size cap")
	}
	if !strings.Contains(assessment.Reason, "position") {
		t.Errorf("Rejection reason should cite position size, got %q", assessment.Reason)
	}
}

func TestMaxOpenPositionsRejection(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxOpenPositions = 2
	store := &fakeStore{
		positions: []*database.Position{
			{PortfolioID: "p1", TokenID: "a", Amount: 1},
			{PortfolioID: "p1", TokenID: "b", Amount: 1},
		},
	}
	m := newTestManager(store, cfg)
	portfolio := &database.Portfolio{ID: "p1", CashBalance: 9000, TotalValue: 10000}

	assessment, err := m.AnalyzeTradeRisk(context.Background(), portfolio, nil, database.TradeSideBuy, 1, 100)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if assessment.Allowed {
		t.Error("Should reject a new buy at the open-position limit")
	}
}

func TestDailyLossRejection(t *testing.T) {
	store := &fakeStore{dailyPnL: -480} // limit is 5% of 10000 = 500
	m := newTestManager(store, testRiskConfig())
	portfolio := &database.Portfolio{ID: "p1", CashBalance: 9000, TotalValue: 10000}

	// stop exposure 8% of $1000 = $80; 480 + 80 > 500
	assessment, err := m.AnalyzeTradeRisk(context.Background(), portfolio, nil, database.TradeSideBuy, 10, 100)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if assessment.Allowed {
		t.Error("Should reject when stop exposure plus realized loss exceeds the daily limit")
	}
}

func TestApprovedBuyCarriesStopAndRatio(t *testing.T) {
	m := newTestManager(&fakeStore{}, testRiskConfig())
	portfolio := &database.Portfolio{ID: "p1", CashBalance: 9000, TotalValue: 10000}

	assessment, err := m.AnalyzeTradeRisk(context.Background(), portfolio, nil, database.TradeSideBuy, 5, 100)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !assessment.Allowed {
		t.Fatalf("Small buy should be approved, reason: %s", assessment.Reason)
	}
	if assessment.StopLossPrice != 92 {
		t.Errorf("Stop-loss price should be 92 for a buy at 100 with 8%% stop, got %f", assessment.StopLossPrice)
	}
	if assessment.RiskRewardRatio != 2.0 {
		t.Errorf("Risk/reward ratio should be fixed at 2.0, got %f", assessment.RiskRewardRatio)
	}
}

func pnlTrade(pnl float64, day int) *database.Trade {
	closedAt := time.Date(2026, 1, day, 12, 0, 0, 0, time.UTC)
	return &database.Trade{TotalValue: 1000, RealizedPnL: &pnl, ClosedAt: &closedAt}
}

// TestMaxDrawdownWalk verifies the peak-to-trough walk over realized P&L
func TestMaxDrawdownWalk(t *testing.T) {
	portfolio := &database.Portfolio{TotalValue: 10000, TotalPnL: 0}
	trades := []*database.Trade{
		pnlTrade(1000, 1),  // equity 11000, peak
		pnlTrade(-2200, 2), // equity 8800, 20% below peak
		pnlTrade(1200, 3),  // recovery
	}

	dd := maxDrawdown(portfolio, trades)
	if dd < 19.9 || dd > 20.1 {
		t.Errorf("Max drawdown should be ~20%%, got %f", dd)
	}
}

func TestSharpeNeedsThirtyTrades(t *testing.T) {
	portfolio := &database.Portfolio{TotalValue: 10000}
	daily := []float64{10, -5, 20, 15, -10}

	if got := sharpeRatio(portfolio, daily, 10); got != 0 {
		t.Errorf("Sharpe below 30 trades should be 0, got %f", got)
	}
	if got := sharpeRatio(portfolio, daily, 40); got == 0 {
		t.Error("Sharpe with 40 trades and varying returns should be non-zero")
	}
}

func TestAnalyzePortfolioRiskConcentration(t *testing.T) {
	store := &fakeStore{
		tokens: map[string]*database.Token{
			"tok": {ID: "tok", Symbol: "TOK", CurrentPrice: 100},
		},
		positions: []*database.Position{
			{PortfolioID: "p1", TokenID: "tok", Amount: 30, AvgBuyPrice: 90},
		},
	}
	m := newTestManager(store, testRiskConfig())
	portfolio := &database.Portfolio{ID: "p1", CashBalance: 7000, TotalValue: 10000}

	metrics, err := m.AnalyzePortfolioRisk(context.Background(), portfolio)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if metrics.Concentration != 30 {
		t.Errorf("Concentration should be 30%%, got %f", metrics.Concentration)
	}
	if metrics.OpenPositions != 1 {
		t.Errorf("Open positions should be 1, got %d", metrics.OpenPositions)
	}
}
