package scanner

import (
	"fmt"
	"math"

	"token-trading-engine/internal/database"
	"token-trading-engine/internal/events"
	"token-trading-engine/internal/indicators"
)

// alertRule evaluates one cheap condition against a token's recent tape
type alertRule func(token *database.Token, prices, volumes []float64) *events.AlertTriggeredPayload

func defaultAlertRules() []alertRule {
	return []alertRule{
		priceSpikeRule,
		volumeSurgeRule,
		momentumRule,
	}
}

// priceSpikeRule fires when the last price sits far above the short-window
// mean
func priceSpikeRule(token *database.Token, prices, volumes []float64) *events.AlertTriggeredPayload {
	mean := indicators.CalculateSMA(prices, len(prices))
	if mean == 0 {
		return nil
	}

	last := prices[len(prices)-1]
	movePct := (last - mean) / mean * 100
	if movePct < 4 {
		return nil
	}

	return &events.AlertTriggeredPayload{
		AlertType:  "price_spike",
		TokenID:    token.ID,
		Symbol:     token.Symbol,
		Confidence: math.Min(60+movePct*3, 95),
		Reason:     fmt.Sprintf("price %.1f%% above recent mean", movePct),
	}
}

// volumeSurgeRule fires when the latest volume is a multiple of the recent
// average while price is holding or rising
func volumeSurgeRule(token *database.Token, prices, volumes []float64) *events.AlertTriggeredPayload {
	avg := indicators.CalculateAverageVolume(volumes[:len(volumes)-1], len(volumes)-1)
	if avg == 0 {
		return nil
	}

	ratio := volumes[len(volumes)-1] / avg
	if ratio < 3 {
		return nil
	}
	if prices[len(prices)-1] < prices[len(prices)-2] {
		return nil
	}

	return &events.AlertTriggeredPayload{
		AlertType:  "volume_surge",
		TokenID:    token.ID,
		Symbol:     token.Symbol,
		Confidence: math.Min(60+ratio*5, 95),
		Reason:     fmt.Sprintf("volume %.1fx recent average", ratio),
	}
}

// momentumRule fires in either direction on a strong sustained move
func momentumRule(token *database.Token, prices, volumes []float64) *events.AlertTriggeredPayload {
	momentum := indicators.CalculateMomentum(prices, 10)

	switch {
	case momentum >= 5:
		return &events.AlertTriggeredPayload{
			AlertType:  "momentum_breakout",
			TokenID:    token.ID,
			Symbol:     token.Symbol,
			Confidence: math.Min(60+momentum*2, 95),
			Reason:     fmt.Sprintf("price up %.1f%% over 10 ticks", momentum),
		}
	case momentum <= -5:
		return &events.AlertTriggeredPayload{
			AlertType:  "momentum_drop",
			TokenID:    token.ID,
			Symbol:     token.Symbol,
			Confidence: math.Min(60-momentum*2, 95),
			Reason:     fmt.Sprintf("price down %.1f%% over 10 ticks", -momentum),
		}
	}
	return nil
}
