package logging

import (
	"context"
)

type contextKey string

const loggerKey contextKey = "logger"

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// PatternContext creates a logger context for pattern detection
func PatternContext(symbol, timeframe, patternType string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":       symbol,
		"timeframe":    timeframe,
		"pattern_type": patternType,
	}).WithComponent("pattern")
}

// TradeContext creates a logger context for trade operations
func TradeContext(symbol, side string, amount, price float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol": symbol,
		"side":   side,
		"amount": amount,
		"price":  price,
	}).WithComponent("trade")
}

// RiskContext creates a logger context for risk decisions
func RiskContext(symbol string, positionPercent float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":           symbol,
		"position_percent": positionPercent,
	}).WithComponent("risk")
}

// PortfolioContext creates a logger context for portfolio operations
func PortfolioContext(portfolioID string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"portfolio_id": portfolioID,
	}).WithComponent("portfolio")
}
