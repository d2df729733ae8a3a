package patterns

import (
	"math"

	"token-trading-engine/internal/indicators"
)

// FeatureVector is the fixed-shape input to the scoring heuristics, built
// once per token per cycle from the indicator bundle and derived sentiment
type FeatureVector struct {
	Technical TechnicalFeatures
	Sentiment SentimentFeatures
	Pattern   PatternFeatures
	Momentum  MomentumFeatures
}

// TechnicalFeatures are raw indicator readings
type TechnicalFeatures struct {
	RSI         float64
	Volatility  float64 // stddev as % of mean price
	MACD        float64
	StochasticK float64
	Momentum    float64
	ATR         float64
	ADX         float64
	OBV         float64
	Ichimoku    indicators.IchimokuLines
}

// SentimentFeatures are derived market-context readings
type SentimentFeatures struct {
	Acceleration     float64
	VWAP             float64
	TrendStrength    float64
	Regime           float64 // -1, 0, 1
	VolatilityRegime float64 // 0, 0.5, 1
	CloudSignal      float64 // -1, 0, 1
}

// PatternFeatures are structural price readings
type PatternFeatures struct {
	SupportResistanceDensity float64 // 0..1, share of prices clustered at touched levels
	BreakoutPotential        float64 // 0..1, proximity to window high with volume backing
	VolumeDispersion         float64 // coefficient of variation of volume
}

// MomentumFeatures are momentum-quality readings
type MomentumFeatures struct {
	RSIDivergence          float64 // -1 bearish divergence, 1 bullish, 0 none
	VolumeWeightedMomentum float64
	PriceVolumeCorrelation float64
}

// snapshot bundles everything a heuristic needs for one token's cycle
type snapshot struct {
	tokenID   string
	symbol    string
	timeframe string
	prices    []float64
	volumes   []float64
	ind       *indicators.Bundle
	sentiment *MarketSentiment
	features  *FeatureVector
}

func (s *snapshot) currentPrice() float64 {
	return s.prices[len(s.prices)-1]
}

// BuildFeatureVector assembles the fixed-shape feature vector
func BuildFeatureVector(prices, volumes []float64, ind *indicators.Bundle, sentiment *MarketSentiment) *FeatureVector {
	current := prices[len(prices)-1]

	return &FeatureVector{
		Technical: TechnicalFeatures{
			RSI:         ind.RSI,
			Volatility:  sentiment.VolatilityPercent,
			MACD:        ind.MACD.MACD,
			StochasticK: ind.Stochastic.K,
			Momentum:    ind.Momentum,
			ATR:         ind.ATR,
			ADX:         ind.ADX,
			OBV:         ind.OBV,
			Ichimoku:    ind.Ichimoku,
		},
		Sentiment: SentimentFeatures{
			Acceleration:     sentiment.Acceleration,
			VWAP:             sentiment.VWAP,
			TrendStrength:    sentiment.TrendStrength,
			Regime:           sentiment.RegimeValue(),
			VolatilityRegime: sentiment.VolatilityValue(),
			CloudSignal:      float64(ind.Ichimoku.CloudSignal(current)),
		},
		Pattern: PatternFeatures{
			SupportResistanceDensity: supportResistanceDensity(prices),
			BreakoutPotential:        breakoutPotential(prices, volumes),
			VolumeDispersion:         volumeDispersion(volumes),
		},
		Momentum: MomentumFeatures{
			RSIDivergence:          rsiDivergence(prices),
			VolumeWeightedMomentum: volumeWeightedMomentum(prices, volumes),
			PriceVolumeCorrelation: priceVolumeCorrelation(prices, volumes),
		},
	}
}

// supportResistanceDensity measures how much of the window trades at levels
// touched three or more times (within 0.5% tolerance)
func supportResistanceDensity(prices []float64) float64 {
	if len(prices) < 10 {
		return 0
	}

	clustered := 0
	for i, p := range prices {
		touches := 0
		for j, q := range prices {
			if i == j || p == 0 {
				continue
			}
			if math.Abs(q-p)/p < 0.005 {
				touches++
			}
		}
		if touches >= 3 {
			clustered++
		}
	}

	return float64(clustered) / float64(len(prices))
}

// breakoutPotential combines proximity to the window high with recent volume
// backing
func breakoutPotential(prices, volumes []float64) float64 {
	if len(prices) < 10 {
		return 0
	}

	high, low := indicators.RangeHighLow(prices, len(prices))
	if high == low {
		return 0
	}

	current := prices[len(prices)-1]
	proximity := (current - low) / (high - low)

	volumeBacking := 0.5
	avgVolume := indicators.CalculateAverageVolume(volumes, len(volumes))
	if avgVolume > 0 {
		recent := indicators.CalculateAverageVolume(volumes, 5)
		volumeBacking = math.Min(recent/avgVolume/2, 1)
	}

	return proximity * volumeBacking
}

// volumeDispersion is the coefficient of variation of volume over the window
func volumeDispersion(volumes []float64) float64 {
	mean := indicators.CalculateAverageVolume(volumes, len(volumes))
	if mean == 0 || len(volumes) < 2 {
		return 0
	}

	variance := 0.0
	for _, v := range volumes {
		diff := v - mean
		variance += diff * diff
	}

	return math.Sqrt(variance/float64(len(volumes))) / mean
}

// rsiDivergence flags disagreement between the price trend and the RSI trend
// over the last 10 ticks: bullish divergence (price down, RSI up) returns 1,
// bearish returns -1
func rsiDivergence(prices []float64) float64 {
	if len(prices) < 25 {
		return 0
	}

	half := prices[:len(prices)-10]
	priceDelta := prices[len(prices)-1] - half[len(half)-1]
	rsiDelta := indicators.CalculateRSI(prices, 14) - indicators.CalculateRSI(half, 14)

	switch {
	case priceDelta < 0 && rsiDelta > 0:
		return 1
	case priceDelta > 0 && rsiDelta < 0:
		return -1
	default:
		return 0
	}
}

// volumeWeightedMomentum scales 10-tick momentum by the recent/average volume
// ratio
func volumeWeightedMomentum(prices, volumes []float64) float64 {
	momentum := indicators.CalculateMomentum(prices, 10)
	avgVolume := indicators.CalculateAverageVolume(volumes, len(volumes))
	if avgVolume == 0 {
		return momentum
	}

	recent := indicators.CalculateAverageVolume(volumes, 5)
	return momentum * (recent / avgVolume)
}

func priceVolumeCorrelation(prices, volumes []float64) float64 {
	window := 20
	if len(prices) < window || len(volumes) < window {
		return 0
	}
	return indicators.CalculateCorrelation(
		prices[len(prices)-window:],
		volumes[len(volumes)-window:],
	)
}
