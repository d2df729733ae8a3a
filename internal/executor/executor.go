package executor

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"token-trading-engine/config"
	"token-trading-engine/internal/database"
	"token-trading-engine/internal/events"
	"token-trading-engine/internal/patterns"
	"token-trading-engine/internal/risk"
)

// Store is the persistence surface the execution engine works against
type Store interface {
	GetToken(ctx context.Context, id string) (*database.Token, error)
	GetPriceHistory(ctx context.Context, tokenID string, limit int) ([]*database.PricePoint, error)
	GetPatternPerformance(ctx context.Context, patternType, timeframe string) (*database.PatternPerformance, error)
	UpdatePatternAdjustedConfidence(ctx context.Context, id string, adjusted float64) error
	GetLearningParam(ctx context.Context, name string, fallback float64) (float64, error)
	GetPortfolio(ctx context.Context, id string) (*database.Portfolio, error)
	UpdatePortfolio(ctx context.Context, p *database.Portfolio) error
	GetPositionsByPortfolio(ctx context.Context, portfolioID string) ([]*database.Position, error)
	GetPositionByPortfolioAndToken(ctx context.Context, portfolioID, tokenID string) (*database.Position, error)
	CreatePosition(ctx context.Context, p *database.Position) error
	UpdatePosition(ctx context.Context, p *database.Position) error
	CreateTrade(ctx context.Context, trade *database.Trade) error
	UpdateTrade(ctx context.Context, trade *database.Trade) error
	GetOpenBuyTrades(ctx context.Context, portfolioID, tokenID string) ([]*database.Trade, error)
	GetClosedTrades(ctx context.Context, portfolioID string, limit int) ([]*database.Trade, error)
	GetDailyRealizedPnL(ctx context.Context, portfolioID string) (float64, error)
}

type intent int

const (
	intentNone intent = iota
	intentBuy
	intentSell
)

// patternIntents is the fixed classification table mapping pattern types to
// trade intent. Sell intents only act when a position is already open; there
// is no pyramiding and no naked shorting.
var patternIntents = map[patterns.PatternType]intent{
	patterns.Breakout:              intentBuy,
	patterns.AdvancedMomentum:      intentBuy,
	patterns.NeuralComposite:       intentBuy,
	patterns.SupportResistance:     intentBuy,
	patterns.FibonacciRetracement:  intentBuy,
	patterns.VolumeProfile:         intentBuy,
	patterns.MarketSentimentType:   intentBuy, // extreme-fear contrarian entry
	patterns.MultiTimeframe:        intentBuy,
	patterns.VolatilityExpansion:   intentBuy,
	patterns.MeanReversion:         intentBuy,
	patterns.HarmonicPattern:       intentBuy,
	patterns.LiquidityFlow:         intentBuy,
	patterns.VShapedReversal:       intentBuy,
	patterns.StrongBullishMomentum: intentBuy,
	patterns.QuietAccumulation:     intentBuy,
	patterns.ConsolidationBreakout: intentBuy,
	patterns.OrderFlowPressure:     intentBuy,
	patterns.Ensemble:              intentBuy,
	patterns.Reversal:              intentSell, // exhaustion, exit if holding
}

// alertIntents maps alert scanner alert types to trade intent
var alertIntents = map[string]intent{
	"price_spike":       intentBuy,
	"volume_surge":      intentBuy,
	"momentum_breakout": intentBuy,
	"momentum_drop":     intentSell,
}

// Engine subscribes to pattern and alert signals, gates them through the
// risk manager, and applies approved trades to the simulated portfolio
type Engine struct {
	store       Store
	riskMgr     *risk.Manager
	bus         *events.EventBus
	strategyCfg config.StrategyConfig
	portfolioID string
	logger      zerolog.Logger

	// tradeMu serializes trade application so position read-then-write
	// sequences from overlapping event handlers cannot race
	tradeMu sync.Mutex

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	subs     []*events.Subscription
	wg       sync.WaitGroup
}

func NewEngine(store Store, riskMgr *risk.Manager, bus *events.EventBus, strategyCfg config.StrategyConfig, portfolioID string, logger zerolog.Logger) *Engine {
	return &Engine{
		store:       store,
		riskMgr:     riskMgr,
		bus:         bus,
		strategyCfg: strategyCfg,
		portfolioID: portfolioID,
		logger:      logger.With().Str("component", "execution_engine").Logger(),
	}
}

// Start subscribes to signal events and launches the monitoring tick
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopChan = make(chan struct{})
	e.mu.Unlock()

	e.subs = append(e.subs,
		e.bus.Subscribe(events.EventPatternDetected, func(ev events.Event) {
			if ev.PatternDetected != nil {
				e.handlePattern(ctx, ev.PatternDetected)
			}
		}),
		e.bus.Subscribe(events.EventAlertTriggered, func(ev events.Event) {
			if ev.AlertTriggered != nil {
				e.handleAlert(ctx, ev.AlertTriggered)
			}
		}))

	e.logger.Info().
		Str("portfolio_id", e.portfolioID).
		Dur("monitor_interval", e.strategyCfg.MonitoringInterval).
		Msg("execution engine started")

	e.wg.Add(1)
	go e.monitorLoop(ctx)
}

// Stop detaches the engine's event subscriptions and halts the monitoring
// tick. In-flight handlers dispatched before detachment still finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopChan)
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, sub := range subs {
		e.bus.Unsubscribe(sub)
	}

	e.wg.Wait()
	e.logger.Info().Msg("execution engine stopped")
}

// handlePattern turns a detected pattern into a candidate trade
func (e *Engine) handlePattern(ctx context.Context, payload *events.PatternDetectedPayload) {
	pattern := payload.Pattern
	log := e.logger.With().
		Str("pattern_type", pattern.PatternType).
		Str("symbol", payload.Symbol).
		Logger()

	adjusted, err := e.adjustConfidence(ctx, pattern)
	if err != nil {
		log.Error().Err(err).Msg("failed to adjust confidence")
		return
	}

	threshold, err := e.store.GetLearningParam(ctx, database.ParamMinConfidence, e.strategyCfg.BaselineThreshold)
	if err != nil {
		threshold = e.strategyCfg.BaselineThreshold
	}
	if adjusted < threshold {
		log.Debug().
			Float64("adjusted", adjusted).
			Float64("threshold", threshold).
			Msg("signal below adaptive threshold, skipping")
		return
	}

	tradeIntent, ok := patternIntents[patterns.PatternType(pattern.PatternType)]
	if !ok || tradeIntent == intentNone {
		return
	}

	e.executeSignal(ctx, signalContext{
		tokenID:    pattern.TokenID,
		pattern:    pattern,
		confidence: adjusted,
		intent:     tradeIntent,
		source:     pattern.PatternType,
	})
}

// handleAlert turns a scanner alert into a candidate trade. Alerts pass the
// same adaptive confidence threshold patterns do, on top of the static floor.
func (e *Engine) handleAlert(ctx context.Context, payload *events.AlertTriggeredPayload) {
	tradeIntent, ok := alertIntents[payload.AlertType]
	if !ok || tradeIntent == intentNone {
		return
	}
	if payload.Confidence < e.strategyCfg.MinConfidence {
		return
	}

	threshold, err := e.store.GetLearningParam(ctx, database.ParamMinConfidence, e.strategyCfg.BaselineThreshold)
	if err != nil {
		threshold = e.strategyCfg.BaselineThreshold
	}
	if payload.Confidence < threshold {
		e.logger.Debug().
			Str("alert_type", payload.AlertType).
			Float64("confidence", payload.Confidence).
			Float64("threshold", threshold).
			Msg("alert below adaptive threshold, skipping")
		return
	}

	e.executeSignal(ctx, signalContext{
		tokenID:    payload.TokenID,
		confidence: payload.Confidence,
		intent:     tradeIntent,
		source:     payload.AlertType,
	})
}

// adjustConfidence applies the per-type performance multiplier to a raw
// pattern confidence and persists the adjusted value on the pattern record
func (e *Engine) adjustConfidence(ctx context.Context, pattern *database.Pattern) (float64, error) {
	multiplier := 1.0
	perf, err := e.store.GetPatternPerformance(ctx, pattern.PatternType, pattern.Timeframe)
	switch {
	case err == nil:
		multiplier = perf.ConfidenceMultiplier
	case errors.Is(err, database.ErrNotFound):
		// no history yet, neutral multiplier
	default:
		return 0, err
	}

	adjusted := math.Min(pattern.Confidence*multiplier, 100)
	if err := e.store.UpdatePatternAdjustedConfidence(ctx, pattern.ID, adjusted); err != nil {
		return 0, err
	}
	pattern.AdjustedConfidence = &adjusted
	return adjusted, nil
}
