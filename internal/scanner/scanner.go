package scanner

import (
	"context"
	"sync"
	"time"

	"token-trading-engine/config"
	"token-trading-engine/internal/database"
	"token-trading-engine/internal/events"
	"token-trading-engine/internal/logging"
)

// alertHistoryWindow is how many price points each rule evaluation pulls
const alertHistoryWindow = 40

// Store is the persistence surface the scanner reads from
type Store interface {
	GetActiveTokens(ctx context.Context) ([]*database.Token, error)
	GetPriceHistory(ctx context.Context, tokenID string, limit int) ([]*database.PricePoint, error)
}

// Scanner sweeps active tokens on an interval with a small worker pool,
// running cheap alert rules that complement the heavier pattern battery.
// Alerts are advisory signals published on the bus; the execution engine
// decides whether they become trades.
type Scanner struct {
	store Store
	bus   *events.EventBus
	cfg   config.ScannerConfig
	log   *logging.Logger
	rules []alertRule

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewScanner(store Store, bus *events.EventBus, cfg config.ScannerConfig, log *logging.Logger) *Scanner {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Scanner{
		store: store,
		bus:   bus,
		cfg:   cfg,
		log:   log.WithComponent("alert_scanner"),
		rules: defaultAlertRules(),
	}
}

// Start begins the background scan loop. Disabled scanners are a no-op.
func (sc *Scanner) Start(ctx context.Context) {
	if !sc.cfg.Enabled {
		sc.log.Info("alert scanner is disabled")
		return
	}

	sc.mu.Lock()
	if sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = true
	sc.stopChan = make(chan struct{})
	sc.mu.Unlock()

	sc.log.Info("starting alert scanner, interval=%s workers=%d", sc.cfg.ScanInterval, sc.cfg.WorkerCount)

	sc.wg.Add(1)
	go func() {
		defer sc.wg.Done()
		ticker := time.NewTicker(sc.cfg.ScanInterval)
		defer ticker.Stop()

		sc.Scan(ctx)
		for {
			select {
			case <-ticker.C:
				sc.Scan(ctx)
			case <-sc.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (sc *Scanner) Stop() {
	sc.mu.Lock()
	if !sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = false
	close(sc.stopChan)
	sc.mu.Unlock()

	sc.wg.Wait()
	sc.log.Info("alert scanner stopped")
}

// Scan runs one sweep across active tokens with a worker pool
func (sc *Scanner) Scan(ctx context.Context) {
	start := time.Now()

	tokens, err := sc.store.GetActiveTokens(ctx)
	if err != nil {
		sc.log.WithError(err).Error("failed to load active tokens")
		return
	}

	tokenChan := make(chan *database.Token, len(tokens))
	alertChan := make(chan events.AlertTriggeredPayload, len(tokens)*len(sc.rules))

	var wg sync.WaitGroup
	for i := 0; i < sc.cfg.WorkerCount; i++ {
		wg.Add(1)
		go sc.worker(ctx, tokenChan, alertChan, &wg)
	}

	for _, token := range tokens {
		tokenChan <- token
	}
	close(tokenChan)

	go func() {
		wg.Wait()
		close(alertChan)
	}()

	fired := 0
	for alert := range alertChan {
		sc.log.Info("alert %s for %s, confidence=%.0f: %s",
			alert.AlertType, alert.Symbol, alert.Confidence, alert.Reason)
		sc.bus.PublishAlertTriggered(alert)
		fired++
	}

	sc.log.Debug("scan done, tokens=%d alerts=%d elapsed=%s",
		len(tokens), fired, time.Since(start).Round(time.Millisecond))
}

// worker evaluates every rule against tokens from the channel. One token's
// failure never stops the sweep.
func (sc *Scanner) worker(ctx context.Context, tokenChan <-chan *database.Token, alertChan chan<- events.AlertTriggeredPayload, wg *sync.WaitGroup) {
	defer wg.Done()

	for token := range tokenChan {
		select {
		case <-ctx.Done():
			return
		default:
		}

		history, err := sc.store.GetPriceHistory(ctx, token.ID, alertHistoryWindow)
		if err != nil {
			sc.log.WithError(err).Warn("skipping %s this sweep", token.Symbol)
			continue
		}
		if len(history) < 10 {
			continue
		}

		prices := make([]float64, len(history))
		volumes := make([]float64, len(history))
		for i, point := range history {
			prices[i] = point.Price
			volumes[i] = point.Volume
		}

		for _, rule := range sc.rules {
			if alert := rule(token, prices, volumes); alert != nil {
				alertChan <- *alert
			}
		}
	}
}
