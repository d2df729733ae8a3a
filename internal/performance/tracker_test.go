package performance

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"token-trading-engine/config"
	"token-trading-engine/internal/database"
)

type fakeStore struct {
	trades      []*database.Trade
	recent      []*database.Trade
	perf        *database.PatternPerformance
	upserted    *database.PatternPerformance
	paramName   string
	paramValue  float64
	paramWrites int
}

func (f *fakeStore) GetTradesByPatternType(_ context.Context, _, _ string) ([]*database.Trade, error) {
	return f.trades, nil
}

func (f *fakeStore) GetRecentClosedTrades(_ context.Context, _ int) ([]*database.Trade, error) {
	return f.recent, nil
}

func (f *fakeStore) GetPatternPerformance(_ context.Context, _, _ string) (*database.PatternPerformance, error) {
	if f.perf == nil {
		return nil, database.ErrNotFound
	}
	return f.perf, nil
}

func (f *fakeStore) UpsertPatternPerformance(_ context.Context, perf *database.PatternPerformance) error {
	f.upserted = perf
	return nil
}

func (f *fakeStore) UpdateLearningParam(_ context.Context, name string, value float64) error {
	f.paramName = name
	f.paramValue = value
	f.paramWrites++
	return nil
}

func closedTrade(pnl, totalValue float64) *database.Trade {
	closedAt := time.Now()
	return &database.Trade{TotalValue: totalValue, RealizedPnL: &pnl, ClosedAt: &closedAt}
}

func newTestTracker(store *fakeStore) *Tracker {
	cfg := config.StrategyConfig{BaselineThreshold: 75}
	return NewTracker(store, cfg, zerolog.Nop())
}

// TestMultiplierNeedsFiveTrades verifies that below 5 closed trades no
// aggregate is written at all
func TestMultiplierNeedsFiveTrades(t *testing.T) {
	store := &fakeStore{
		trades: []*database.Trade{closedTrade(50, 1000), closedTrade(50, 1000)},
	}
	tracker := newTestTracker(store)

	if err := tracker.UpdatePatternPerformance(context.Background(), "breakout", "1m"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.upserted != nil {
		t.Error("Should NOT write performance with fewer than 5 closed trades")
	}
}

func TestMultiplierRaisedOnStrongPattern(t *testing.T) {
	// 5 wins of +5% each: win rate 100, avg return 5
	store := &fakeStore{}
	for i := 0; i < 5; i++ {
		store.trades = append(store.trades, closedTrade(50, 1000))
	}
	tracker := newTestTracker(store)

	if err := tracker.UpdatePatternPerformance(context.Background(), "breakout", "1m"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.upserted == nil {
		t.Fatal("Should write performance for 5 closed trades")
	}
	if store.upserted.ConfidenceMultiplier != 1.2 {
		t.Errorf("Multiplier should step from 1.0 to 1.2, got %f", store.upserted.ConfidenceMultiplier)
	}
	if store.upserted.WinRate != 100 {
		t.Errorf("Win rate should be 100, got %f", store.upserted.WinRate)
	}
}

// TestMultiplierCompoundsToCap verifies the multiplier compounds on the
// stored value but never exceeds 2.0
func TestMultiplierCompoundsToCap(t *testing.T) {
	store := &fakeStore{
		perf: &database.PatternPerformance{ConfidenceMultiplier: 1.9},
	}
	for i := 0; i < 5; i++ {
		store.trades = append(store.trades, closedTrade(50, 1000))
	}
	tracker := newTestTracker(store)

	if err := tracker.UpdatePatternPerformance(context.Background(), "breakout", "1m"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.upserted.ConfidenceMultiplier != 2.0 {
		t.Errorf("Multiplier should cap at 2.0, got %f", store.upserted.ConfidenceMultiplier)
	}
}

func TestMultiplierLoweredToFloor(t *testing.T) {
	// 5 losses of -5% each: win rate 0, avg return -5
	store := &fakeStore{
		perf: &database.PatternPerformance{ConfidenceMultiplier: 0.32},
	}
	for i := 0; i < 5; i++ {
		store.trades = append(store.trades, closedTrade(-50, 1000))
	}
	tracker := newTestTracker(store)

	if err := tracker.UpdatePatternPerformance(context.Background(), "breakout", "1m"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.upserted.ConfidenceMultiplier != 0.3 {
		t.Errorf("Multiplier should floor at 0.3, got %f", store.upserted.ConfidenceMultiplier)
	}
}

func TestMultiplierHoldsInMiddleBand(t *testing.T) {
	// 3 wins, 2 losses: win rate 60, avg return modest. Neither rule fires.
	store := &fakeStore{
		perf: &database.PatternPerformance{ConfidenceMultiplier: 1.44},
	}
	store.trades = []*database.Trade{
		closedTrade(20, 1000), closedTrade(20, 1000), closedTrade(20, 1000),
		closedTrade(-20, 1000), closedTrade(-20, 1000),
	}
	tracker := newTestTracker(store)

	if err := tracker.UpdatePatternPerformance(context.Background(), "breakout", "1m"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.upserted.ConfidenceMultiplier != 1.44 {
		t.Errorf("Multiplier should hold at 1.44 in the middle band, got %f", store.upserted.ConfidenceMultiplier)
	}
}

// TestThresholdRaisedOnPoorWinRate verifies a sub-40% recent win rate lifts
// the adaptive threshold by 15 over the baseline
func TestThresholdRaisedOnPoorWinRate(t *testing.T) {
	store := &fakeStore{
		recent: []*database.Trade{
			closedTrade(-10, 1000), closedTrade(-10, 1000), closedTrade(-10, 1000),
			closedTrade(10, 1000),
		},
	}
	tracker := newTestTracker(store)

	if err := tracker.UpdateGlobalThreshold(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.paramName != database.ParamMinConfidence {
		t.Errorf("Should write %s, wrote %s", database.ParamMinConfidence, store.paramName)
	}
	if store.paramValue != 90 {
		t.Errorf("Threshold should be baseline 75 + 15 = 90, got %f", store.paramValue)
	}
}

func TestThresholdLoweredOnStrongWinRate(t *testing.T) {
	store := &fakeStore{
		recent: []*database.Trade{
			closedTrade(10, 1000), closedTrade(10, 1000), closedTrade(10, 1000),
			closedTrade(-10, 1000),
		},
	}
	tracker := newTestTracker(store)

	if err := tracker.UpdateGlobalThreshold(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.paramValue != 60 {
		t.Errorf("Threshold should be baseline 75 - 15 = 60, got %f", store.paramValue)
	}
}

func TestThresholdClamped(t *testing.T) {
	store := &fakeStore{
		recent: []*database.Trade{closedTrade(-10, 1000), closedTrade(-10, 1000)},
	}
	tracker := newTestTracker(store)
	tracker.cfg.BaselineThreshold = 85 // +15 would overshoot the 90 cap

	if err := tracker.UpdateGlobalThreshold(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.paramValue != 90 {
		t.Errorf("Threshold should clamp at 90, got %f", store.paramValue)
	}
}

func TestThresholdBaselineWithoutHistory(t *testing.T) {
	store := &fakeStore{}
	tracker := newTestTracker(store)

	if err := tracker.UpdateGlobalThreshold(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if store.paramValue != 75 {
		t.Errorf("Threshold should stay at the 75 baseline with no history, got %f", store.paramValue)
	}
	if store.paramWrites != 1 {
		t.Errorf("Threshold should still be written once, got %d writes", store.paramWrites)
	}
}
