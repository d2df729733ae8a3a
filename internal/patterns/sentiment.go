package patterns

import (
	"math"

	"token-trading-engine/internal/indicators"
)

// Regime classifies the prevailing market direction
type Regime string

const (
	RegimeBullish  Regime = "bullish"
	RegimeBearish  Regime = "bearish"
	RegimeSideways Regime = "sideways"
)

// VolatilityRegime classifies the volatility environment
type VolatilityRegime string

const (
	VolatilityLow    VolatilityRegime = "low"
	VolatilityMedium VolatilityRegime = "medium"
	VolatilityHigh   VolatilityRegime = "high"
)

// MarketSentiment is the per-cycle derived market context for one token
type MarketSentiment struct {
	Acceleration      float64          // second difference of price, % of price
	VWAP              float64
	Regime            Regime
	TrendStrength     float64 // 0..1, directional move / total true range
	VolatilityPercent float64 // stddev of price as % of mean
	VolatilityRegime  VolatilityRegime
}

// DeriveMarketSentiment computes sentiment context from a price/volume window
func DeriveMarketSentiment(prices, volumes []float64) *MarketSentiment {
	sentiment := &MarketSentiment{
		Regime:           RegimeSideways,
		VolatilityRegime: VolatilityLow,
	}
	if len(prices) < 3 {
		return sentiment
	}

	n := len(prices)
	current := prices[n-1]

	// Price acceleration: second difference, normalized to percent of price
	if current != 0 {
		secondDiff := prices[n-1] - 2*prices[n-2] + prices[n-3]
		sentiment.Acceleration = (secondDiff / current) * 100
	}

	sentiment.VWAP = indicators.CalculateVWAP(prices, volumes)

	// Regime: short vs long moving-average ordering relative to current price
	shortMA := indicators.CalculateSMA(prices, 10)
	longMA := indicators.CalculateSMA(prices, 30)
	if shortMA > 0 && longMA > 0 {
		switch {
		case current > shortMA && shortMA > longMA:
			sentiment.Regime = RegimeBullish
		case current < shortMA && shortMA < longMA:
			sentiment.Regime = RegimeBearish
		}
	}

	// Trend strength: net directional move over total absolute movement
	totalRange := 0.0
	for i := 1; i < n; i++ {
		totalRange += math.Abs(prices[i] - prices[i-1])
	}
	if totalRange > 0 {
		sentiment.TrendStrength = math.Abs(prices[n-1]-prices[0]) / totalRange
	}

	// Volatility regime
	mean := indicators.CalculateSMA(prices, 20)
	if mean > 0 {
		sentiment.VolatilityPercent = (indicators.CalculateStdDev(prices, 20) / mean) * 100
	}
	switch {
	case sentiment.VolatilityPercent < 2:
		sentiment.VolatilityRegime = VolatilityLow
	case sentiment.VolatilityPercent < 5:
		sentiment.VolatilityRegime = VolatilityMedium
	default:
		sentiment.VolatilityRegime = VolatilityHigh
	}

	return sentiment
}

// RegimeValue maps the regime to ±1/0 for feature vectors
func (ms *MarketSentiment) RegimeValue() float64 {
	switch ms.Regime {
	case RegimeBullish:
		return 1
	case RegimeBearish:
		return -1
	default:
		return 0
	}
}

// VolatilityValue maps the volatility regime to 0/0.5/1 for feature vectors
func (ms *MarketSentiment) VolatilityValue() float64 {
	switch ms.VolatilityRegime {
	case VolatilityLow:
		return 0
	case VolatilityMedium:
		return 0.5
	default:
		return 1
	}
}
