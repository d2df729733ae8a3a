package metrics

import (
	"token-trading-engine/internal/events"
)

// Collector feeds engine events into the Prometheus metrics. It subscribes
// to everything on the bus so components stay metrics-agnostic.
type Collector struct {
	metrics *Metrics
}

func NewCollector(m *Metrics) *Collector {
	return &Collector{metrics: m}
}

// Attach registers the collector on the event bus
func (c *Collector) Attach(bus *events.EventBus) {
	bus.SubscribeAll(c.handle)
}

func (c *Collector) handle(ev events.Event) {
	switch ev.Type {
	case events.EventPatternDetected:
		if ev.PatternDetected != nil {
			c.metrics.PatternsDetected.WithLabelValues(ev.PatternDetected.Pattern.PatternType).Inc()
		}
	case events.EventAlertTriggered:
		if ev.AlertTriggered != nil {
			c.metrics.AlertsTriggered.WithLabelValues(ev.AlertTriggered.AlertType).Inc()
		}
	case events.EventTradeExecuted:
		if ev.TradeExecuted != nil && ev.TradeExecuted.Trade != nil {
			c.metrics.TradesExecuted.WithLabelValues(ev.TradeExecuted.Trade.Side).Inc()
		}
	case events.EventStatsUpdate:
		if ev.StatsUpdate != nil {
			c.metrics.PortfolioValue.Set(ev.StatsUpdate.TotalValue)
			c.metrics.PortfolioPnL.Set(ev.StatsUpdate.TotalPnL)
			c.metrics.OpenPositions.Set(float64(ev.StatsUpdate.ActivePositions))
			c.metrics.ClosedTrades.Set(float64(ev.StatsUpdate.TotalTrades))
		}
	case events.EventRiskLimitExceeded:
		if ev.RiskLimitExceeded != nil {
			c.metrics.RiskLimitBreaches.WithLabelValues(ev.RiskLimitExceeded.LimitType).Inc()
		}
	case events.EventStopLossTriggered:
		c.metrics.StopLossTriggers.Inc()
	}
}
