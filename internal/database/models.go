package database

import (
	"encoding/json"
	"time"
)

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// Token represents a tradable token. Tokens are created and price-updated by
// the external ingestion service; this engine only reads them.
type Token struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	CurrentPrice float64   `json:"current_price"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// PricePoint is one sample of the append-only per-token price/volume history
type PricePoint struct {
	ID        int64     `json:"id"`
	TokenID   string    `json:"token_id"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Pattern represents a detected trading pattern. Confidence is written once at
// detection; AdjustedConfidence is the only field rewritten later, by the
// performance tracker's multiplier.
type Pattern struct {
	ID                 string          `json:"id"`
	TokenID            string          `json:"token_id"`
	PatternType        string          `json:"pattern_type"`
	Confidence         float64         `json:"confidence"` // 0-100
	Timeframe          string          `json:"timeframe"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
	DetectedAt         time.Time       `json:"detected_at"`
	AdjustedConfidence *float64        `json:"adjusted_confidence,omitempty"`
}

// Portfolio represents a simulated trading portfolio
type Portfolio struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CashBalance float64   `json:"cash_balance"`
	TotalValue  float64   `json:"total_value"`
	DailyPnL    float64   `json:"daily_pnl"`
	TotalPnL    float64   `json:"total_pnl"`
	WinRate     float64   `json:"win_rate"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Position represents token holdings within a portfolio. A closed position is
// kept with Amount pinned at zero, never deleted. There is at most one
// position per (portfolio, token).
type Position struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	TokenID     string    `json:"token_id"`
	Amount      float64   `json:"amount"`
	AvgBuyPrice float64   `json:"avg_buy_price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Trade represents an executed simulated trade. Immutable after creation
// except the exit fields, which are set exactly once when a sell closes out
// the originating buy.
type Trade struct {
	ID          string     `json:"id"`
	PortfolioID string     `json:"portfolio_id"`
	TokenID     string     `json:"token_id"`
	PatternID   *string    `json:"pattern_id,omitempty"`
	Side        string     `json:"side"` // buy or sell
	Amount      float64    `json:"amount"`
	Price       float64    `json:"price"`
	TotalValue  float64    `json:"total_value"`
	ExitPrice   *float64   `json:"exit_price,omitempty"`
	RealizedPnL *float64   `json:"realized_pnl,omitempty"`
	ExecutedAt  time.Time  `json:"executed_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// IsClosed reports whether the trade has been closed out
func (t *Trade) IsClosed() bool {
	return t.ClosedAt != nil
}

// PatternPerformance aggregates realized outcomes per (pattern type, timeframe)
type PatternPerformance struct {
	ID                   int64     `json:"id"`
	PatternType          string    `json:"pattern_type"`
	Timeframe            string    `json:"timeframe"`
	TotalTrades          int       `json:"total_trades"`
	SuccessfulTrades     int       `json:"successful_trades"`
	TotalProfit          float64   `json:"total_profit"`
	WinRate              float64   `json:"win_rate"`
	AverageReturn        float64   `json:"average_return"`
	ConfidenceMultiplier float64   `json:"confidence_multiplier"` // 0.3 - 2.0
	UpdatedAt            time.Time `json:"updated_at"`
}

// LearningParam is a named adaptive parameter shared between the performance
// tracker (writer) and the pattern detector (reader).
type LearningParam struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known learning parameter names
const (
	ParamMinConfidence = "min_confidence_threshold"
)
