package events

import (
	"sync"
	"time"

	"token-trading-engine/internal/database"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventPatternDetected   EventType = "PATTERN_DETECTED"
	EventAlertTriggered    EventType = "ALERT_TRIGGERED"
	EventTradeExecuted     EventType = "TRADE_EXECUTED"
	EventStatsUpdate       EventType = "STATS_UPDATE"
	EventRiskLimitExceeded EventType = "RISK_LIMIT_EXCEEDED"
	EventStopLossTriggered EventType = "STOP_LOSS_TRIGGERED"
)

// PatternDetectedPayload carries a pattern the detector just persisted
type PatternDetectedPayload struct {
	Pattern *database.Pattern `json:"pattern"`
	Symbol  string            `json:"symbol"`
}

// AlertTriggeredPayload carries a simple scanner alert
type AlertTriggeredPayload struct {
	AlertType  string  `json:"alert_type"`
	TokenID    string  `json:"token_id"`
	Symbol     string  `json:"symbol"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// TradeExecutedPayload carries an executed trade with its originating signal
type TradeExecutedPayload struct {
	Trade     *database.Trade   `json:"trade"`
	Pattern   *database.Pattern `json:"pattern,omitempty"`
	AlertType string            `json:"alert_type,omitempty"`
	Token     *database.Token   `json:"token"`
}

// StatsUpdatePayload carries mark-to-market portfolio stats
type StatsUpdatePayload struct {
	PortfolioID     string  `json:"portfolio_id"`
	TotalValue      float64 `json:"total_value"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalTrades     int     `json:"total_trades"`
	ActivePositions int     `json:"active_positions"`
}

// RiskLimitExceededPayload reports a breached portfolio-level limit
type RiskLimitExceededPayload struct {
	LimitType   string  `json:"limit_type"` // drawdown, concentration, daily_loss
	Current     float64 `json:"current"`
	Limit       float64 `json:"limit"`
	PortfolioID string  `json:"portfolio_id"`
}

// StopLossTriggeredPayload reports a forced position exit
type StopLossTriggeredPayload struct {
	PositionID    string  `json:"position_id"`
	TokenSymbol   string  `json:"token_symbol"`
	StopLossPrice float64 `json:"stop_loss_price"`
	CurrentPrice  float64 `json:"current_price"`
	Loss          float64 `json:"loss"`
	PortfolioID   string  `json:"portfolio_id"`
}

// Event is a tagged event variant. Exactly one payload field is set, matching
// Type, so subscribers get compile-time access to the fields of the variant
// they handle instead of digging through an untyped map.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	PatternDetected   *PatternDetectedPayload   `json:"pattern_detected,omitempty"`
	AlertTriggered    *AlertTriggeredPayload    `json:"alert_triggered,omitempty"`
	TradeExecuted     *TradeExecutedPayload     `json:"trade_executed,omitempty"`
	StatsUpdate       *StatsUpdatePayload       `json:"stats_update,omitempty"`
	RiskLimitExceeded *RiskLimitExceededPayload `json:"risk_limit_exceeded,omitempty"`
	StopLossTriggered *StopLossTriggeredPayload `json:"stop_loss_triggered,omitempty"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Subscription identifies a registered subscriber so it can be detached
type Subscription struct {
	id        int
	eventType EventType
	all       bool
}

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[EventType]map[int]Subscriber
	allSubs     map[int]Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType]map[int]Subscriber),
		allSubs:     make(map[int]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type and returns a
// subscription for later detachment
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	if eb.subscribers[eventType] == nil {
		eb.subscribers[eventType] = make(map[int]Subscriber)
	}
	eb.subscribers[eventType][eb.nextID] = subscriber
	return &Subscription{id: eb.nextID, eventType: eventType}
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	eb.allSubs[eb.nextID] = subscriber
	return &Subscription{id: eb.nextID, all: true}
}

// Unsubscribe detaches a subscription. Events already dispatched keep
// running; no new events reach the subscriber after it returns.
func (eb *EventBus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if sub.all {
		delete(eb.allSubs, sub.id)
		return
	}
	if subs, ok := eb.subscribers[sub.eventType]; ok {
		delete(subs, sub.id)
	}
}

// Publish sends an event to all subscribers. Dispatch is in-process callback
// delivery, not a durable queue: an event published but not yet handled at
// crash time is lost. Portfolio state is recomputed every monitoring tick, so
// nothing depends on replay.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishPatternDetected publishes a pattern-detected event
func (eb *EventBus) PublishPatternDetected(pattern *database.Pattern, symbol string) {
	eb.Publish(Event{
		Type:            EventPatternDetected,
		PatternDetected: &PatternDetectedPayload{Pattern: pattern, Symbol: symbol},
	})
}

// PublishAlertTriggered publishes an alert-triggered event
func (eb *EventBus) PublishAlertTriggered(payload AlertTriggeredPayload) {
	eb.Publish(Event{
		Type:           EventAlertTriggered,
		AlertTriggered: &payload,
	})
}

// PublishTradeExecuted publishes a trade-executed event
func (eb *EventBus) PublishTradeExecuted(payload TradeExecutedPayload) {
	eb.Publish(Event{
		Type:          EventTradeExecuted,
		TradeExecuted: &payload,
	})
}

// PublishStatsUpdate publishes a stats-update event
func (eb *EventBus) PublishStatsUpdate(payload StatsUpdatePayload) {
	eb.Publish(Event{
		Type:        EventStatsUpdate,
		StatsUpdate: &payload,
	})
}

// PublishRiskLimitExceeded publishes a risk-limit-exceeded event
func (eb *EventBus) PublishRiskLimitExceeded(payload RiskLimitExceededPayload) {
	eb.Publish(Event{
		Type:              EventRiskLimitExceeded,
		RiskLimitExceeded: &payload,
	})
}

// PublishStopLossTriggered publishes a stop-loss-triggered event
func (eb *EventBus) PublishStopLossTriggered(payload StopLossTriggeredPayload) {
	eb.Publish(Event{
		Type:              EventStopLossTriggered,
		StopLossTriggered: &payload,
	})
}
