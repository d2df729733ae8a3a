package patterns

import (
	"context"
	"sync"
	"time"

	"token-trading-engine/config"
	"token-trading-engine/internal/database"
	"token-trading-engine/internal/events"
	"token-trading-engine/internal/indicators"
	"token-trading-engine/internal/logging"
)

// DefaultTimeframe labels the tick window the detector analyzes. Price
// history is a single tick tape, so every pattern carries this label.
const DefaultTimeframe = "1m"

// historyLimit is how many price points each cycle pulls per token
const historyLimit = 120

// Store is the persistence surface the detector needs
type Store interface {
	GetActiveTokens(ctx context.Context) ([]*database.Token, error)
	GetPriceHistory(ctx context.Context, tokenID string, limit int) ([]*database.PricePoint, error)
	CreatePattern(ctx context.Context, pattern *database.Pattern) error
	GetLearningParam(ctx context.Context, name string, fallback float64) (float64, error)
}

// Detector runs the pattern battery on every active token at a fixed
// interval and publishes qualifying signals
type Detector struct {
	store Store
	bus   *events.EventBus
	cfg   config.StrategyConfig
	log   *logging.Logger

	heuristics []heuristic

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewDetector(store Store, bus *events.EventBus, cfg config.StrategyConfig, log *logging.Logger) *Detector {
	battery := append(indicatorHeuristics(), priceActionHeuristics()...)
	if cfg.EnsembleMinPatterns <= 0 {
		cfg.EnsembleMinPatterns = 3
	}
	if cfg.EnsembleThreshold <= 0 {
		cfg.EnsembleThreshold = 80
	}
	return &Detector{
		store:      store,
		bus:        bus,
		cfg:        cfg,
		log:        log.WithComponent("pattern_detector"),
		heuristics: battery,
	}
}

// Start launches the detection loop. It is a no-op when already running.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.mu.Unlock()

	d.log.Info("starting pattern detector, interval=%s", d.cfg.DetectionInterval)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.cfg.DetectionInterval)
		defer ticker.Stop()

		d.runCycle(ctx)
		for {
			select {
			case <-ticker.C:
				d.runCycle(ctx)
			case <-d.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the detection loop and waits for the in-flight cycle
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	d.log.Info("pattern detector stopped")
}

func (d *Detector) runCycle(ctx context.Context) {
	start := time.Now()

	threshold, err := d.store.GetLearningParam(ctx, database.ParamMinConfidence, d.cfg.BaselineThreshold)
	if err != nil {
		d.log.WithError(err).Warn("failed to load adaptive threshold, using baseline %.0f", d.cfg.BaselineThreshold)
		threshold = d.cfg.BaselineThreshold
	}

	tokens, err := d.store.GetActiveTokens(ctx)
	if err != nil {
		d.log.WithError(err).Error("failed to load active tokens")
		return
	}

	detected := 0
	for _, token := range tokens {
		signals, err := d.AnalyzeToken(ctx, token, threshold)
		if err != nil {
			d.log.WithError(err).Warn("analysis failed for %s", token.Symbol)
			continue
		}
		for _, sig := range signals {
			if err := d.persistAndPublish(ctx, sig); err != nil {
				d.log.WithError(err).Error("failed to persist %s pattern for %s", sig.Type, sig.Symbol)
				continue
			}
			detected++
		}
	}

	d.log.Debug("detection cycle done, tokens=%d signals=%d elapsed=%s",
		len(tokens), detected, time.Since(start).Round(time.Millisecond))
}

// AnalyzeToken runs the full battery against one token's recent tape and
// returns the signals clearing both the static floor and the adaptive
// threshold. The ensemble is built from all floor-clearing candidates, so a
// handful of medium-conviction setups can still combine into one emitted
// signal.
func (d *Detector) AnalyzeToken(ctx context.Context, token *database.Token, threshold float64) ([]*Signal, error) {
	history, err := d.store.GetPriceHistory(ctx, token.ID, historyLimit)
	if err != nil {
		return nil, err
	}
	if len(history) < d.cfg.MinPricePoints {
		return nil, nil
	}

	prices := make([]float64, len(history))
	volumes := make([]float64, len(history))
	for i, point := range history {
		prices[i] = point.Price
		volumes[i] = point.Volume
	}

	snap := d.buildSnapshot(token, prices, volumes)

	var candidates []*Signal
	for _, h := range d.heuristics {
		sig := h(snap)
		if sig == nil || sig.Confidence < d.cfg.MinConfidence {
			continue
		}
		candidates = append(candidates, sig)
	}

	if ensemble := combineEnsemble(snap, candidates, d.cfg.EnsembleMinPatterns, d.cfg.EnsembleThreshold); ensemble != nil {
		candidates = append(candidates, ensemble)
	}

	var out []*Signal
	for _, sig := range candidates {
		if sig.Confidence >= threshold {
			out = append(out, sig)
		}
	}
	return out, nil
}

func (d *Detector) buildSnapshot(token *database.Token, prices, volumes []float64) *snapshot {
	bundle := indicators.ComputeBundle(prices, volumes)
	sentiment := DeriveMarketSentiment(prices, volumes)
	return &snapshot{
		tokenID:   token.ID,
		symbol:    token.Symbol,
		timeframe: DefaultTimeframe,
		prices:    prices,
		volumes:   volumes,
		ind:       bundle,
		sentiment: sentiment,
		features:  BuildFeatureVector(prices, volumes, bundle, sentiment),
	}
}

func (d *Detector) persistAndPublish(ctx context.Context, sig *Signal) error {
	meta, err := sig.MarshalMetadata()
	if err != nil {
		return err
	}

	pattern := &database.Pattern{
		TokenID:     sig.TokenID,
		PatternType: string(sig.Type),
		Confidence:  sig.Confidence,
		Timeframe:   sig.Timeframe,
		Metadata:    meta,
		DetectedAt:  sig.DetectedAt,
	}
	if err := d.store.CreatePattern(ctx, pattern); err != nil {
		return err
	}

	logging.PatternContext(sig.Symbol, sig.Timeframe, string(sig.Type)).
		Info("pattern detected, confidence=%.1f direction=%s", sig.Confidence, sig.Direction)

	d.bus.PublishPatternDetected(pattern, sig.Symbol)
	return nil
}
