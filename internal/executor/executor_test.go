package executor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"token-trading-engine/config"
	"token-trading-engine/internal/database"
	"token-trading-engine/internal/events"
	"token-trading-engine/internal/logging"
	"token-trading-engine/internal/risk"
)

// fakeStore is an in-memory store backing both the engine and the risk
// manager in tests
type fakeStore struct {
	portfolio *database.Portfolio
	tokens    map[string]*database.Token
	positions []*database.Position
	trades    []*database.Trade
	perf      *database.PatternPerformance
	history   []*database.PricePoint

	adjustedID    string
	adjustedValue float64
	learningParam float64 // 0 means "use fallback"
}

func (f *fakeStore) GetToken(_ context.Context, id string) (*database.Token, error) {
	if t, ok := f.tokens[id]; ok {
		return t, nil
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) GetPriceHistory(_ context.Context, _ string, _ int) ([]*database.PricePoint, error) {
	return f.history, nil
}

func (f *fakeStore) GetPatternPerformance(_ context.Context, _, _ string) (*database.PatternPerformance, error) {
	if f.perf == nil {
		return nil, database.ErrNotFound
	}
	return f.perf, nil
}

func (f *fakeStore) UpdatePatternAdjustedConfidence(_ context.Context, id string, adjusted float64) error {
	f.adjustedID = id
	f.adjustedValue = adjusted
	return nil
}

func (f *fakeStore) GetLearningParam(_ context.Context, _ string, fallback float64) (float64, error) {
	if f.learningParam != 0 {
		return f.learningParam, nil
	}
	return fallback, nil
}

func (f *fakeStore) GetPortfolio(_ context.Context, _ string) (*database.Portfolio, error) {
	return f.portfolio, nil
}

func (f *fakeStore) UpdatePortfolio(_ context.Context, p *database.Portfolio) error {
	f.portfolio = p
	return nil
}

func (f *fakeStore) GetAllPortfolios(_ context.Context) ([]*database.Portfolio, error) {
	return []*database.Portfolio{f.portfolio}, nil
}

func (f *fakeStore) GetPositionsByPortfolio(_ context.Context, _ string) ([]*database.Position, error) {
	return f.positions, nil
}

func (f *fakeStore) GetPositionByPortfolioAndToken(_ context.Context, _, tokenID string) (*database.Position, error) {
	for _, p := range f.positions {
		if p.TokenID == tokenID {
			return p, nil
		}
	}
	return nil, database.ErrNotFound
}

func (f *fakeStore) CreatePosition(_ context.Context, p *database.Position) error {
	p.ID = fmt.Sprintf("pos-%d", len(f.positions)+1)
	f.positions = append(f.positions, p)
	return nil
}

func (f *fakeStore) UpdatePosition(_ context.Context, _ *database.Position) error {
	return nil
}

func (f *fakeStore) CreateTrade(_ context.Context, trade *database.Trade) error {
	trade.ID = fmt.Sprintf("trade-%d", len(f.trades)+1)
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakeStore) UpdateTrade(_ context.Context, _ *database.Trade) error {
	return nil
}

func (f *fakeStore) GetOpenBuyTrades(_ context.Context, _, tokenID string) ([]*database.Trade, error) {
	var out []*database.Trade
	for _, t := range f.trades {
		if t.Side == database.TradeSideBuy && t.TokenID == tokenID && t.ClosedAt == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetClosedTrades(_ context.Context, _ string, _ int) ([]*database.Trade, error) {
	var out []*database.Trade
	for _, t := range f.trades {
		if t.ClosedAt != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetDailyRealizedPnL(_ context.Context, _ string) (float64, error) {
	today := time.Now().Format("2006-01-02")
	sum := 0.0
	for _, t := range f.trades {
		if t.Side != database.TradeSideSell || t.RealizedPnL == nil || t.ClosedAt == nil {
			continue
		}
		if t.ClosedAt.Format("2006-01-02") == today {
			sum += *t.RealizedPnL
		}
	}
	return sum, nil
}

func (f *fakeStore) lastTrade() *database.Trade {
	if len(f.trades) == 0 {
		return nil
	}
	return f.trades[len(f.trades)-1]
}

func newTestEngine(store *fakeStore) *Engine {
	riskCfg := config.RiskConfig{
		MaxPositionSize:    15,
		MaxDailyLoss:       5,
		MaxDrawdown:        15,
		MaxConcentration:   25,
		StopLossPercent:    8,
		TakeProfitPercent:  15,
		MaxOpenPositions:   5,
		MonitoringInterval: time.Minute,
	}
	strategyCfg := config.StrategyConfig{
		MinConfidence:      65,
		BaselineThreshold:  75,
		MonitoringInterval: time.Minute,
	}
	riskMgr := risk.NewManager(store, riskCfg, logging.Default())
	return NewEngine(store, riskMgr, events.NewEventBus(), strategyCfg, "p1", zerolog.Nop())
}

func newTestStore() *fakeStore {
	return &fakeStore{
		portfolio: &database.Portfolio{ID: "p1", CashBalance: 10000, TotalValue: 10000},
		tokens: map[string]*database.Token{
			"tok": {ID: "tok", Symbol: "TOK", CurrentPrice: 100},
		},
	}
}

// TestBuySignalOpensPosition verifies the full buy path: sizing, risk gate,
// trade record, position row, and cash deduction
func TestBuySignalOpensPosition(t *testing.T) {
	store := newTestStore()
	e := newTestEngine(store)

	e.executeSignal(context.Background(), signalContext{
		tokenID:    "tok",
		confidence: 80,
		intent:     intentBuy,
		source:     "breakout",
	})

	if len(store.trades) != 1 {
		t.Fatalf("Should record exactly 1 trade, got %d", len(store.trades))
	}
	trade := store.trades[0]
	if trade.Side != database.TradeSideBuy {
		t.Errorf("Trade side should be buy, got %s", trade.Side)
	}
	if len(store.positions) != 1 {
		t.Fatalf("Should open exactly 1 position, got %d", len(store.positions))
	}
	pos := store.positions[0]
	if pos.AvgBuyPrice != 100 {
		t.Errorf("Average buy price should be 100, got %f", pos.AvgBuyPrice)
	}

	expectedCash := 10000 - trade.TotalValue
	if store.portfolio.CashBalance != expectedCash {
		t.Errorf("Cash should be %f after the buy, got %f", expectedCash, store.portfolio.CashBalance)
	}
	if trade.TotalValue <= 0 || trade.TotalValue > 1500 {
		t.Errorf("Trade value should respect the 15%% position cap, got %f", trade.TotalValue)
	}
}

// TestNoPyramiding verifies a buy signal is ignored while a position in the
// token is already open
func TestNoPyramiding(t *testing.T) {
	store := newTestStore()
	store.positions = append(store.positions, &database.Position{
		ID: "pos-1", PortfolioID: "p1", TokenID: "tok", Amount: 5, AvgBuyPrice: 95,
	})
	e := newTestEngine(store)

	e.executeSignal(context.Background(), signalContext{
		tokenID:    "tok",
		confidence: 90,
		intent:     intentBuy,
		source:     "breakout",
	})

	if len(store.trades) != 0 {
		t.Errorf("Should NOT trade on a buy signal with an open position, got %d trades", len(store.trades))
	}
	if store.positions[0].Amount != 5 {
		t.Errorf("Position should be untouched, got amount %f", store.positions[0].Amount)
	}
}

// TestSellSignalClosesPosition verifies a sell signal exits the full
// position, credits cash, and realizes P&L on the sell and buy trades
func TestSellSignalClosesPosition(t *testing.T) {
	store := newTestStore()
	store.portfolio.CashBalance = 5000
	store.tokens["tok"].CurrentPrice = 110
	store.positions = append(store.positions, &database.Position{
		ID: "pos-1", PortfolioID: "p1", TokenID: "tok", Amount: 10, AvgBuyPrice: 100,
	})
	store.trades = append(store.trades, &database.Trade{
		ID: "trade-1", PortfolioID: "p1", TokenID: "tok",
		Side: database.TradeSideBuy, Amount: 10, Price: 100, TotalValue: 1000,
	})
	e := newTestEngine(store)

	e.executeSignal(context.Background(), signalContext{
		tokenID:    "tok",
		confidence: 85,
		intent:     intentSell,
		source:     "reversal",
	})

	if store.positions[0].Amount != 0 {
		t.Errorf("Position should be fully closed, got amount %f", store.positions[0].Amount)
	}
	sell := store.lastTrade()
	if sell.Side != database.TradeSideSell {
		t.Fatalf("Last trade should be the sell, got %s", sell.Side)
	}
	if sell.RealizedPnL == nil || *sell.RealizedPnL != 100 {
		t.Errorf("Realized P&L should be (110-100)*10 = 100, got %v", sell.RealizedPnL)
	}
	if store.portfolio.CashBalance != 5000+1100 {
		t.Errorf("Cash should be credited with the sell value, got %f", store.portfolio.CashBalance)
	}
	if store.portfolio.TotalPnL != 100 {
		t.Errorf("Portfolio total P&L should be 100, got %f", store.portfolio.TotalPnL)
	}
	if store.portfolio.WinRate != 100 {
		t.Errorf("Win rate should be 100 after a single winning exit, got %f", store.portfolio.WinRate)
	}
	if store.portfolio.DailyPnL != 100 {
		t.Errorf("Daily P&L should equal today's realized sum 100, got %f", store.portfolio.DailyPnL)
	}

	buy := store.trades[0]
	if buy.ClosedAt == nil || buy.RealizedPnL == nil {
		t.Fatal("Originating buy trade should be stamped closed")
	}
	if *buy.RealizedPnL != 100 {
		t.Errorf("Buy trade P&L should be 100, got %f", *buy.RealizedPnL)
	}
}

func TestSellSignalWithoutPositionIsIgnored(t *testing.T) {
	store := newTestStore()
	e := newTestEngine(store)

	e.executeSignal(context.Background(), signalContext{
		tokenID:    "tok",
		confidence: 85,
		intent:     intentSell,
		source:     "reversal",
	})

	if len(store.trades) != 0 {
		t.Errorf("Should NOT short without a position, got %d trades", len(store.trades))
	}
}

// TestStopLossForcedExit verifies the monitor closes a position an 8% move
// underwater and books the loss
func TestStopLossForcedExit(t *testing.T) {
	store := newTestStore()
	store.portfolio.CashBalance = 9000
	store.tokens["tok"].CurrentPrice = 92
	store.positions = append(store.positions, &database.Position{
		ID: "pos-1", PortfolioID: "p1", TokenID: "tok", Amount: 10, AvgBuyPrice: 100,
	})
	e := newTestEngine(store)

	closed := e.checkExit(context.Background(), store.portfolio, store.positions[0], store.tokens["tok"])
	if !closed {
		t.Fatal("Should force-close at -8% from average buy price")
	}
	if store.positions[0].Amount != 0 {
		t.Errorf("Position should be zeroed, got %f", store.positions[0].Amount)
	}
	if store.portfolio.TotalPnL != -80 {
		t.Errorf("Realized loss should be (92-100)*10 = -80, got %f", store.portfolio.TotalPnL)
	}
	if store.portfolio.CashBalance != 9000+920 {
		t.Errorf("Cash should be credited with the exit value 920, got %f", store.portfolio.CashBalance)
	}
	if store.portfolio.WinRate != 0 {
		t.Errorf("Win rate should be 0 after a single losing exit, got %f", store.portfolio.WinRate)
	}
	if store.portfolio.DailyPnL != -80 {
		t.Errorf("Daily P&L should be -80, got %f", store.portfolio.DailyPnL)
	}
}

func TestTakeProfitForcedExit(t *testing.T) {
	store := newTestStore()
	store.tokens["tok"].CurrentPrice = 115
	store.positions = append(store.positions, &database.Position{
		ID: "pos-1", PortfolioID: "p1", TokenID: "tok", Amount: 10, AvgBuyPrice: 100,
	})
	e := newTestEngine(store)

	if !e.checkExit(context.Background(), store.portfolio, store.positions[0], store.tokens["tok"]) {
		t.Fatal("Should force-close at +15% from average buy price")
	}
	if store.portfolio.TotalPnL != 150 {
		t.Errorf("Realized gain should be 150, got %f", store.portfolio.TotalPnL)
	}
}

func TestCheckExitHoldsInsideBands(t *testing.T) {
	store := newTestStore()
	store.tokens["tok"].CurrentPrice = 97
	store.positions = append(store.positions, &database.Position{
		ID: "pos-1", PortfolioID: "p1", TokenID: "tok", Amount: 10, AvgBuyPrice: 100,
	})
	e := newTestEngine(store)

	if e.checkExit(context.Background(), store.portfolio, store.positions[0], store.tokens["tok"]) {
		t.Error("Should NOT close a position at -3%, inside the stop band")
	}
}

// TestMonitorTickMarksToMarket verifies the tick recomputes total value as
// cash plus live position value
func TestMonitorTickMarksToMarket(t *testing.T) {
	store := newTestStore()
	store.portfolio.CashBalance = 9000
	store.tokens["tok"].CurrentPrice = 105
	store.positions = append(store.positions, &database.Position{
		ID: "pos-1", PortfolioID: "p1", TokenID: "tok", Amount: 10, AvgBuyPrice: 100,
	})
	e := newTestEngine(store)

	e.runMonitorTick(context.Background())

	if store.portfolio.TotalValue != 9000+1050 {
		t.Errorf("Total value should be cash 9000 + position 1050, got %f", store.portfolio.TotalValue)
	}
}

// TestWinRateSurvivesMonitorTick verifies the tick rederives the win rate
// from closed trade history instead of zeroing it
func TestWinRateSurvivesMonitorTick(t *testing.T) {
	store := newTestStore()
	store.portfolio.CashBalance = 5000
	store.tokens["tok"].CurrentPrice = 110
	store.positions = append(store.positions, &database.Position{
		ID: "pos-1", PortfolioID: "p1", TokenID: "tok", Amount: 10, AvgBuyPrice: 100,
	})
	e := newTestEngine(store)

	e.executeSignal(context.Background(), signalContext{
		tokenID:    "tok",
		confidence: 85,
		intent:     intentSell,
		source:     "reversal",
	})
	if store.portfolio.WinRate != 100 {
		t.Fatalf("Win rate should be 100 after a 100%%-win closed-trade history, got %f", store.portfolio.WinRate)
	}

	e.runMonitorTick(context.Background())
	if store.portfolio.WinRate != 100 {
		t.Errorf("Win rate should survive the monitoring tick, got %f", store.portfolio.WinRate)
	}
}

// TestDailyPnLRollsOverAtDayBoundary verifies daily P&L only covers trades
// closed today rather than accumulating across days
func TestDailyPnLRollsOverAtDayBoundary(t *testing.T) {
	store := newTestStore()
	store.portfolio.CashBalance = 5000
	store.portfolio.DailyPnL = -50 // carried over from yesterday's close
	store.tokens["tok"].CurrentPrice = 110
	store.positions = append(store.positions, &database.Position{
		ID: "pos-1", PortfolioID: "p1", TokenID: "tok", Amount: 10, AvgBuyPrice: 100,
	})

	yesterday := time.Now().AddDate(0, 0, -1)
	lossPnL := -50.0
	store.trades = append(store.trades, &database.Trade{
		ID: "trade-1", PortfolioID: "p1", TokenID: "old",
		Side: database.TradeSideSell, Amount: 5, Price: 90, TotalValue: 450,
		RealizedPnL: &lossPnL, ClosedAt: &yesterday,
	})
	e := newTestEngine(store)

	e.executeSignal(context.Background(), signalContext{
		tokenID:    "tok",
		confidence: 85,
		intent:     intentSell,
		source:     "reversal",
	})

	if store.portfolio.DailyPnL != 100 {
		t.Errorf("Daily P&L should cover today's trades only, got %f", store.portfolio.DailyPnL)
	}
	if store.portfolio.TotalPnL != 100 {
		t.Errorf("Total P&L should only reflect today's close here, got %f", store.portfolio.TotalPnL)
	}
}

// TestAlertBelowAdaptiveThresholdSkipped verifies alerts pass the learned
// minimum-confidence threshold, not just the static floor
func TestAlertBelowAdaptiveThresholdSkipped(t *testing.T) {
	store := newTestStore()
	store.learningParam = 90
	e := newTestEngine(store)

	e.handleAlert(context.Background(), &events.AlertTriggeredPayload{
		AlertType:  "price_spike",
		TokenID:    "tok",
		Symbol:     "TOK",
		Confidence: 70,
	})
	if len(store.trades) != 0 {
		t.Errorf("Should NOT trade on an alert below the adaptive threshold, got %d trades", len(store.trades))
	}

	e.handleAlert(context.Background(), &events.AlertTriggeredPayload{
		AlertType:  "price_spike",
		TokenID:    "tok",
		Symbol:     "TOK",
		Confidence: 95,
	})
	if len(store.trades) != 1 {
		t.Errorf("Should trade on an alert at or above the adaptive threshold, got %d trades", len(store.trades))
	}
}

// TestTradeEventCarriesPattern verifies pattern-sourced trades publish the
// originating pattern on the trade-executed event
func TestTradeEventCarriesPattern(t *testing.T) {
	store := newTestStore()
	e := newTestEngine(store)

	got := make(chan events.TradeExecutedPayload, 1)
	e.bus.Subscribe(events.EventTradeExecuted, func(ev events.Event) {
		if ev.TradeExecuted != nil {
			got <- *ev.TradeExecuted
		}
	})

	pattern := &database.Pattern{
		ID: "pat-1", TokenID: "tok", PatternType: "breakout", Timeframe: "1m", Confidence: 90,
	}
	e.handlePattern(context.Background(), &events.PatternDetectedPayload{Pattern: pattern, Symbol: "TOK"})

	select {
	case payload := <-got:
		if payload.Pattern == nil || payload.Pattern.ID != "pat-1" {
			t.Error("Trade-executed event should carry the originating pattern")
		}
		if payload.Trade.PatternID == nil || *payload.Trade.PatternID != "pat-1" {
			t.Error("Trade record should reference the originating pattern")
		}
	case <-time.After(time.Second):
		t.Fatal("Should publish a trade-executed event for the pattern-sourced buy")
	}
}

// TestStopDetachesSubscriptions verifies a stopped engine no longer reacts
// to published signals
func TestStopDetachesSubscriptions(t *testing.T) {
	store := newTestStore()
	e := newTestEngine(store)

	e.Start(context.Background())
	e.Stop()

	e.bus.PublishAlertTriggered(events.AlertTriggeredPayload{
		AlertType:  "price_spike",
		TokenID:    "tok",
		Symbol:     "TOK",
		Confidence: 95,
	})
	time.Sleep(50 * time.Millisecond)

	if len(store.trades) != 0 {
		t.Errorf("Stopped engine should ignore signals, got %d trades", len(store.trades))
	}
}

// TestAdjustConfidence verifies the per-type multiplier scales raw pattern
// confidence, caps at 100, and persists the adjusted value
func TestAdjustConfidence(t *testing.T) {
	store := newTestStore()
	store.perf = &database.PatternPerformance{ConfidenceMultiplier: 1.5}
	e := newTestEngine(store)

	pattern := &database.Pattern{ID: "pat-1", PatternType: "breakout", Timeframe: "1m", Confidence: 60}
	adjusted, err := e.adjustConfidence(context.Background(), pattern)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if adjusted != 90 {
		t.Errorf("Adjusted confidence should be 60 * 1.5 = 90, got %f", adjusted)
	}
	if store.adjustedID != "pat-1" || store.adjustedValue != 90 {
		t.Error("Adjusted confidence should be persisted on the pattern record")
	}
	if pattern.AdjustedConfidence == nil || *pattern.AdjustedConfidence != 90 {
		t.Error("Adjusted confidence should be set on the in-memory pattern")
	}

	// cap at 100
	pattern.Confidence = 80
	adjusted, _ = e.adjustConfidence(context.Background(), pattern)
	if adjusted != 100 {
		t.Errorf("Adjusted confidence should cap at 100, got %f", adjusted)
	}

	// no history means a neutral multiplier
	store.perf = nil
	pattern.Confidence = 70
	adjusted, _ = e.adjustConfidence(context.Background(), pattern)
	if adjusted != 70 {
		t.Errorf("Adjusted confidence should stay 70 without history, got %f", adjusted)
	}
}

// TestWeightedAverageAccumulation verifies folding a second buy into an
// existing position at a weighted-average price
func TestWeightedAverageAccumulation(t *testing.T) {
	store := newTestStore()
	store.tokens["tok"].CurrentPrice = 120
	e := newTestEngine(store)

	position := &database.Position{
		ID: "pos-1", PortfolioID: "p1", TokenID: "tok", Amount: 10, AvgBuyPrice: 100,
	}
	if err := e.applyBuyToPosition(context.Background(), store.portfolio, store.tokens["tok"], position, 10); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if position.Amount != 20 {
		t.Errorf("Amount should be 20 after the second buy, got %f", position.Amount)
	}
	if position.AvgBuyPrice != 110 {
		t.Errorf("Average buy price should be (10*100 + 10*120)/20 = 110, got %f", position.AvgBuyPrice)
	}
}

func TestReversalMapsToSellIntent(t *testing.T) {
	if patternIntents["reversal"] != intentSell {
		t.Error("Reversal patterns should map to sell intent")
	}
	if patternIntents["breakout"] != intentBuy {
		t.Error("Breakout patterns should map to buy intent")
	}
	if alertIntents["momentum_drop"] != intentSell {
		t.Error("Momentum-drop alerts should map to sell intent")
	}
}
