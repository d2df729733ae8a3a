package performance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"token-trading-engine/config"
	"token-trading-engine/internal/database"
	"token-trading-engine/internal/patterns"
)

const (
	// minTradesPerPattern closed trades before a pattern's multiplier moves
	minTradesPerPattern = 5

	// globalWindow bounds the recent-trade sample for the adaptive threshold
	globalWindow = 50

	multiplierCap   = 2.0
	multiplierFloor = 0.3

	thresholdStep  = 15.0
	thresholdFloor = 60.0
	thresholdCap   = 90.0
)

// Store is the persistence surface for the feedback loop
type Store interface {
	GetTradesByPatternType(ctx context.Context, patternType, timeframe string) ([]*database.Trade, error)
	GetRecentClosedTrades(ctx context.Context, limit int) ([]*database.Trade, error)
	GetPatternPerformance(ctx context.Context, patternType, timeframe string) (*database.PatternPerformance, error)
	UpsertPatternPerformance(ctx context.Context, perf *database.PatternPerformance) error
	UpdateLearningParam(ctx context.Context, name string, value float64) error
}

// Tracker aggregates realized trade outcomes per pattern type and feeds the
// results back into detection: a confidence multiplier per pattern type and
// one global minimum-confidence threshold
type Tracker struct {
	store  Store
	cfg    config.StrategyConfig
	logger zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewTracker(store Store, cfg config.StrategyConfig, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "performance_tracker").Logger(),
	}
}

func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.stopChan = make(chan struct{})
	t.mu.Unlock()

	t.logger.Info().Dur("interval", t.cfg.PerformanceInterval).Msg("performance tracker started")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.cfg.PerformanceInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.runCycle(ctx)
			case <-t.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopChan)
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info().Msg("performance tracker stopped")
}

func (t *Tracker) runCycle(ctx context.Context) {
	for _, patternType := range patterns.AllPatternTypes {
		if err := t.UpdatePatternPerformance(ctx, string(patternType), patterns.DefaultTimeframe); err != nil {
			t.logger.Error().Err(err).Str("pattern_type", string(patternType)).Msg("pattern performance update failed")
		}
	}

	if err := t.UpdateGlobalThreshold(ctx); err != nil {
		t.logger.Error().Err(err).Msg("global threshold update failed")
	}
}

// UpdatePatternPerformance recomputes realized outcome aggregates for one
// (pattern type, timeframe) pair and steps its confidence multiplier. The
// multiplier compounds across cycles but stays within [0.3, 2.0].
func (t *Tracker) UpdatePatternPerformance(ctx context.Context, patternType, timeframe string) error {
	trades, err := t.store.GetTradesByPatternType(ctx, patternType, timeframe)
	if err != nil {
		return err
	}
	if len(trades) < minTradesPerPattern {
		return nil
	}

	total := 0
	wins := 0
	totalProfit := 0.0
	returnSum := 0.0
	for _, trade := range trades {
		if trade.RealizedPnL == nil {
			continue
		}
		total++
		pnl := *trade.RealizedPnL
		totalProfit += pnl
		if pnl > 0 {
			wins++
		}
		if trade.TotalValue > 0 {
			returnSum += pnl / trade.TotalValue * 100
		}
	}
	if total < minTradesPerPattern {
		return nil
	}

	winRate := float64(wins) / float64(total) * 100
	avgReturn := returnSum / float64(total)

	multiplier := 1.0
	existing, err := t.store.GetPatternPerformance(ctx, patternType, timeframe)
	switch {
	case err == nil:
		multiplier = existing.ConfidenceMultiplier
	case errors.Is(err, database.ErrNotFound):
	default:
		return err
	}

	switch {
	case winRate > 60 && avgReturn > 2:
		multiplier *= 1.2
		if multiplier > multiplierCap {
			multiplier = multiplierCap
		}
	case winRate < 40 || avgReturn < -2:
		multiplier *= 0.9
		if multiplier < multiplierFloor {
			multiplier = multiplierFloor
		}
	}

	perf := &database.PatternPerformance{
		PatternType:          patternType,
		Timeframe:            timeframe,
		TotalTrades:          total,
		SuccessfulTrades:     wins,
		TotalProfit:          totalProfit,
		WinRate:              winRate,
		AverageReturn:        avgReturn,
		ConfidenceMultiplier: multiplier,
	}
	if err := t.store.UpsertPatternPerformance(ctx, perf); err != nil {
		return err
	}

	t.logger.Debug().
		Str("pattern_type", patternType).
		Int("trades", total).
		Float64("win_rate", winRate).
		Float64("avg_return", avgReturn).
		Float64("multiplier", multiplier).
		Msg("pattern performance updated")
	return nil
}

// UpdateGlobalThreshold moves the single adaptive minimum-confidence
// threshold off its baseline depending on the recent realized win rate. Poor
// performance raises the bar, strong performance lowers it.
func (t *Tracker) UpdateGlobalThreshold(ctx context.Context) error {
	trades, err := t.store.GetRecentClosedTrades(ctx, globalWindow)
	if err != nil {
		return err
	}

	threshold := t.cfg.BaselineThreshold

	total := 0
	wins := 0
	for _, trade := range trades {
		if trade.RealizedPnL == nil {
			continue
		}
		total++
		if *trade.RealizedPnL > 0 {
			wins++
		}
	}

	if total > 0 {
		winRate := float64(wins) / float64(total) * 100
		switch {
		case winRate < 40:
			threshold = t.cfg.BaselineThreshold + thresholdStep
		case winRate > 70:
			threshold = t.cfg.BaselineThreshold - thresholdStep
		}
	}

	if threshold < thresholdFloor {
		threshold = thresholdFloor
	}
	if threshold > thresholdCap {
		threshold = thresholdCap
	}

	if err := t.store.UpdateLearningParam(ctx, database.ParamMinConfidence, threshold); err != nil {
		return err
	}

	t.logger.Debug().
		Int("sample", total).
		Float64("threshold", threshold).
		Msg("adaptive threshold updated")
	return nil
}
