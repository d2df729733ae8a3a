package patterns

import (
	"math"
	"time"

	"token-trading-engine/internal/indicators"
)

// Each heuristic scores one candidate pattern independently and returns nil
// when its setup is absent. Confidences are 0-100; the detector applies the
// static floor and the adaptive threshold afterwards, so heuristics only
// self-filter obvious non-setups.

type heuristic func(*snapshot) *Signal

func indicatorHeuristics() []heuristic {
	return []heuristic{
		detectBreakout,
		detectReversal,
		detectAdvancedMomentum,
		detectNeuralComposite,
		detectSupportResistance,
		detectFibonacci,
		detectVolumeProfile,
		detectFearGreed,
		detectMultiTimeframe,
		detectVolatilityExpansion,
		detectMeanReversion,
		detectHarmonic,
		detectLiquidityFlow,
	}
}

// detectBreakout scores proximity to the window high backed by a volume spike
func detectBreakout(s *snapshot) *Signal {
	prior := s.prices[:len(s.prices)-1]
	high, low := indicators.RangeHighLow(prior, len(prior))
	if high == low {
		return nil
	}

	current := s.currentPrice()
	if current < high*0.99 {
		return nil
	}

	volumeRatio := 1.0
	avgVolume := indicators.CalculateAverageVolume(s.volumes[:len(s.volumes)-1], 20)
	if avgVolume > 0 {
		volumeRatio = s.volumes[len(s.volumes)-1] / avgVolume
	}
	if volumeRatio < 1.2 {
		return nil
	}

	confidence := 55.0
	confidence += math.Min((current/high-0.99)*1500, 15) // distance above resistance
	confidence += math.Min((volumeRatio-1.2)*10, 20)     // volume conviction
	if s.sentiment.Regime == RegimeBullish {
		confidence += 8
	}

	return s.signal(Breakout, DirectionBullish, confidence, BreakoutMetadata{
		ResistanceLevel: high,
		CurrentPrice:    current,
		VolumeRatio:     volumeRatio,
	})
}

// detectReversal scores oversold/overbought exhaustion at a Bollinger band
func detectReversal(s *snapshot) *Signal {
	rsi := s.ind.RSI
	stoch := s.ind.Stochastic.K
	bands := s.ind.Bollinger
	if bands.Upper == bands.Lower {
		return nil
	}

	current := s.currentPrice()
	bandPosition := (2*(current-bands.Lower)/(bands.Upper-bands.Lower) - 1)

	var direction, side string
	confidence := 0.0

	switch {
	case rsi < 30 && stoch < 25 && bandPosition < -0.8:
		direction = DirectionBullish
		side = "oversold"
		confidence = 60 + (30-rsi) + (25-stoch)/2
	case rsi > 70 && stoch > 75 && bandPosition > 0.8:
		direction = DirectionBearish
		side = "overbought"
		confidence = 60 + (rsi-70) + (stoch-75)/2
	default:
		return nil
	}

	return s.signal(Reversal, direction, confidence, ReversalMetadata{
		RSI:          rsi,
		StochasticK:  stoch,
		BandPosition: bandPosition,
		ReversalSide: side,
	})
}

// detectAdvancedMomentum requires momentum, MACD, trend strength, and OBV to
// all point the same way
func detectAdvancedMomentum(s *snapshot) *Signal {
	momentum := s.ind.Momentum
	if math.Abs(momentum) < 1.5 {
		return nil
	}

	bullish := momentum > 0
	histogram := s.ind.MACD.Histogram
	if bullish != (histogram > 0) {
		return nil
	}
	if s.ind.ADX < 20 {
		return nil
	}

	obvTrend := "flat"
	half := s.prices[:len(s.prices)/2]
	halfOBV := indicators.CalculateOBV(half, s.volumes[:len(half)])
	if s.ind.OBV > halfOBV {
		obvTrend = "rising"
	} else if s.ind.OBV < halfOBV {
		obvTrend = "falling"
	}
	if bullish != (obvTrend == "rising") {
		return nil
	}

	direction := DirectionBearish
	if bullish {
		direction = DirectionBullish
	}

	confidence := 55 + math.Min(math.Abs(momentum)*3, 20) + math.Min((s.ind.ADX-20)/2, 15)

	return s.signal(AdvancedMomentum, direction, confidence, MomentumMetadata{
		Momentum:      momentum,
		MACDHistogram: histogram,
		ADX:           s.ind.ADX,
		OBVTrend:      obvTrend,
	})
}

// neuralWeights are the fixed weights of the sigmoid-weighted composite.
// This is a documented deterministic heuristic, not a trained model.
var neuralWeights = map[string]float64{
	"rsi_bias":       1.4,
	"macd":           1.1,
	"stochastic":     0.8,
	"momentum":       1.3,
	"regime":         1.0,
	"trend_strength": 0.9,
	"cloud":          0.7,
	"acceleration":   0.6,
	"correlation":    0.5,
	"divergence":     0.8,
}

// detectNeuralComposite combines normalized features through a sigmoid
func detectNeuralComposite(s *snapshot) *Signal {
	f := s.features

	inputs := map[string]float64{
		"rsi_bias":       (50 - f.Technical.RSI) / 50, // oversold is bullish
		"macd":           clamp(f.Technical.MACD/math.Max(s.currentPrice()*0.01, 1e-9), -1, 1),
		"stochastic":     (50 - f.Technical.StochasticK) / 50,
		"momentum":       clamp(f.Technical.Momentum/10, -1, 1),
		"regime":         f.Sentiment.Regime,
		"trend_strength": f.Sentiment.TrendStrength * f.Sentiment.Regime,
		"cloud":          f.Sentiment.CloudSignal,
		"acceleration":   clamp(f.Sentiment.Acceleration, -1, 1),
		"correlation":    f.Momentum.PriceVolumeCorrelation,
		"divergence":     f.Momentum.RSIDivergence,
	}

	weightedSum := 0.0
	for name, value := range inputs {
		weightedSum += neuralWeights[name] * value
	}

	activation := 1 / (1 + math.Exp(-weightedSum))
	if activation > 0.35 && activation < 0.65 {
		return nil // no conviction either way
	}

	direction := DirectionBullish
	confidence := activation * 100
	if activation < 0.5 {
		direction = DirectionBearish
		confidence = (1 - activation) * 100
	}

	return s.signal(NeuralComposite, direction, confidence, CompositeMetadata{
		WeightedSum: weightedSum,
		Inputs:      inputs,
	})
}

// detectSupportResistance scores proximity to a frequently touched level
func detectSupportResistance(s *snapshot) *Signal {
	if s.features.Pattern.SupportResistanceDensity < 0.15 {
		return nil
	}

	high, low := indicators.RangeHighLow(s.prices, len(s.prices))
	current := s.currentPrice()
	if current == 0 || high == low {
		return nil
	}

	supportDist := (current - low) / current * 100
	resistDist := (high - current) / current * 100

	var level float64
	var name, direction string
	var distance float64

	if supportDist < resistDist && supportDist < 2 {
		level, name, direction, distance = low, "support", DirectionBullish, supportDist
	} else if resistDist < 2 {
		level, name, direction, distance = high, "resistance", DirectionBearish, resistDist
	} else {
		return nil
	}

	confidence := 60 + (2-distance)*10 + s.features.Pattern.SupportResistanceDensity*20

	return s.signal(SupportResistance, direction, confidence, LevelMetadata{
		Level:        level,
		LevelName:    name,
		DistancePct:  distance,
		CurrentPrice: current,
	})
}

var fibRatios = []struct {
	ratio float64
	name  string
}{
	{0.236, "23.6%"},
	{0.382, "38.2%"},
	{0.5, "50%"},
	{0.618, "61.8%"},
}

// detectFibonacci scores proximity to a Fibonacci retracement of the window
// range
func detectFibonacci(s *snapshot) *Signal {
	high, low := indicators.RangeHighLow(s.prices, len(s.prices))
	if high == low {
		return nil
	}

	current := s.currentPrice()
	diff := high - low

	for _, fib := range fibRatios {
		level := high - diff*fib.ratio
		distance := math.Abs(current-level) / current * 100
		if distance < 0.75 {
			direction := DirectionBullish
			if s.sentiment.Regime == RegimeBearish {
				direction = DirectionBearish
			}
			confidence := 62 + (0.75-distance)*20 + fib.ratio*15 // deeper levels carry more weight

			return s.signal(FibonacciRetracement, direction, confidence, LevelMetadata{
				Level:        level,
				LevelName:    "fib_" + fib.name,
				DistancePct:  distance,
				CurrentPrice: current,
			})
		}
	}

	return nil
}

// detectVolumeProfile scores proximity to the point of control, the price
// bucket where the most volume traded
func detectVolumeProfile(s *snapshot) *Signal {
	high, low := indicators.RangeHighLow(s.prices, len(s.prices))
	if high == low {
		return nil
	}

	const buckets = 12
	bucketVolume := make([]float64, buckets)
	bucketSize := (high - low) / buckets
	for i, p := range s.prices {
		idx := int((p - low) / bucketSize)
		if idx >= buckets {
			idx = buckets - 1
		}
		bucketVolume[idx] += s.volumes[i]
	}

	pocIdx, pocVol, total := 0, 0.0, 0.0
	for i, v := range bucketVolume {
		total += v
		if v > pocVol {
			pocVol = v
			pocIdx = i
		}
	}
	if total == 0 {
		return nil
	}

	poc := low + bucketSize*(float64(pocIdx)+0.5)
	current := s.currentPrice()
	distance := math.Abs(current-poc) / current * 100
	if distance > 1.5 {
		return nil
	}

	direction := DirectionBullish
	if current < poc {
		direction = DirectionBearish
	}
	concentration := pocVol / total
	confidence := 58 + (1.5-distance)*10 + concentration*40

	return s.signal(VolumeProfile, direction, confidence, LevelMetadata{
		Level:        poc,
		LevelName:    "point_of_control",
		DistancePct:  distance,
		CurrentPrice: current,
	})
}

// detectFearGreed derives a deterministic fear/greed index from volatility,
// momentum, and volume, trading contrarian at the extremes
func detectFearGreed(s *snapshot) *Signal {
	index := 50.0
	index += clamp(s.ind.Momentum*3, -25, 25)
	index -= clamp((s.sentiment.VolatilityPercent-2)*4, 0, 20)
	index += clamp(s.features.Momentum.VolumeWeightedMomentum, -10, 10)
	index = clamp(index, 0, 100)

	var direction, classification string
	var confidence float64

	switch {
	case index <= 20:
		direction = DirectionBullish // extreme fear, contrarian buy
		classification = "extreme_fear"
		confidence = 60 + (20-index)*1.5
	case index >= 80:
		direction = DirectionBearish
		classification = "extreme_greed"
		confidence = 60 + (index-80)*1.5
	default:
		return nil
	}

	return s.signal(MarketSentimentType, direction, confidence, SentimentMetadata{
		IndexValue:     index,
		Classification: classification,
	})
}

// detectMultiTimeframe requires the short, medium, and long trend signs to
// agree
func detectMultiTimeframe(s *snapshot) *Signal {
	short := trendSign(s.prices, 10)
	medium := trendSign(s.prices, 25)
	long := trendSign(s.prices, 50)
	if short == 0 || short != medium || medium != long {
		return nil
	}

	direction := DirectionBullish
	if short < 0 {
		direction = DirectionBearish
	}

	confidence := 68 + s.sentiment.TrendStrength*20

	return s.signal(MultiTimeframe, direction, confidence, AlignmentMetadata{
		ShortTrend:  short,
		MediumTrend: medium,
		LongTrend:   long,
	})
}

// detectVolatilityExpansion scores a Bollinger squeeze breaking into rising
// ATR
func detectVolatilityExpansion(s *snapshot) *Signal {
	bands := s.ind.Bollinger
	if bands.Middle == 0 {
		return nil
	}

	bandWidth := (bands.Upper - bands.Lower) / bands.Middle * 100
	squeezed := bandWidth < 3

	priorATR := indicators.CalculateATR(s.prices[:len(s.prices)-5], 14)
	if priorATR == 0 {
		return nil
	}
	atrRatio := s.ind.ATR / priorATR

	if !squeezed || atrRatio < 1.3 {
		return nil
	}

	direction := DirectionBullish
	if s.ind.Momentum < 0 {
		direction = DirectionBearish
	}
	confidence := 60 + (3-bandWidth)*5 + math.Min((atrRatio-1.3)*25, 20)

	return s.signal(VolatilityExpansion, direction, confidence, VolatilityMetadata{
		BandWidthPct: bandWidth,
		ATRRatio:     atrRatio,
		Squeezed:     squeezed,
	})
}

// detectMeanReversion scores stretched deviation from the rolling mean
// confirmed by RSI extremity
func detectMeanReversion(s *snapshot) *Signal {
	mean := s.ind.SMA20
	if mean == 0 {
		return nil
	}

	deviation := (s.currentPrice() - mean) / mean * 100
	rsi := s.ind.RSI

	var direction string
	switch {
	case deviation < -4 && rsi < 35:
		direction = DirectionBullish
	case deviation > 4 && rsi > 65:
		direction = DirectionBearish
	default:
		return nil
	}

	confidence := 58 + math.Min(math.Abs(deviation)*3, 22) + math.Min(math.Abs(rsi-50)/2, 15)

	return s.signal(MeanReversion, direction, confidence, MeanReversionMetadata{
		DeviationPct: deviation,
		RSI:          rsi,
	})
}

// detectHarmonic approximates a Gartley-style structure from the last three
// swings. Ratio accuracy is purely geometric: the closer the observed
// retracements sit to the ideal 0.618/0.382 ratios, the higher the score.
func detectHarmonic(s *snapshot) *Signal {
	swings := findSwings(s.prices, 5)
	if len(swings) < 4 {
		return nil
	}

	x := swings[len(swings)-4]
	a := swings[len(swings)-3]
	b := swings[len(swings)-2]
	c := swings[len(swings)-1]

	xa := a - x
	ab := b - a
	bc := c - b
	if xa == 0 || ab == 0 {
		return nil
	}

	retraceAB := math.Abs(ab / xa)
	retraceBC := math.Abs(bc / ab)

	accuracyAB := 1 - math.Min(math.Abs(retraceAB-0.618)/0.618, 1)
	accuracyBC := 1 - math.Min(math.Abs(retraceBC-0.382)/0.382, 1)
	accuracy := (accuracyAB + accuracyBC) / 2
	if accuracy < 0.7 {
		return nil
	}

	direction := DirectionBullish
	if xa < 0 {
		direction = DirectionBearish
	}

	confidence := 50 + accuracy*35

	return s.signal(HarmonicPattern, direction, confidence, HarmonicMetadata{
		RatioAccuracy: accuracy,
		RetraceAB:     retraceAB,
		RetraceBC:     retraceBC,
	})
}

// detectLiquidityFlow looks for outsized volume concentrated on one side of
// the tape, a proxy for institutional activity
func detectLiquidityFlow(s *snapshot) *Signal {
	avgVolume := indicators.CalculateAverageVolume(s.volumes, len(s.volumes))
	if avgVolume == 0 || len(s.prices) < 21 {
		return nil
	}

	buyFlow, sellFlow := 0.0, 0.0
	for i := len(s.prices) - 20; i < len(s.prices); i++ {
		if s.volumes[i] < avgVolume*1.5 {
			continue // only outsized prints count
		}
		if s.prices[i] > s.prices[i-1] {
			buyFlow += s.volumes[i]
		} else if s.prices[i] < s.prices[i-1] {
			sellFlow += s.volumes[i]
		}
	}

	total := buyFlow + sellFlow
	if total < avgVolume*3 {
		return nil
	}

	ratio := buyFlow / total
	var direction string
	var confidence float64
	switch {
	case ratio > 0.7:
		direction = DirectionBullish
		confidence = 58 + (ratio-0.7)*100
	case ratio < 0.3:
		direction = DirectionBearish
		confidence = 58 + (0.3-ratio)*100
	default:
		return nil
	}

	return s.signal(LiquidityFlow, direction, confidence, FlowMetadata{
		BuyPressure:  buyFlow,
		SellPressure: sellFlow,
		Ratio:        ratio,
	})
}

// ============================================================================
// helpers
// ============================================================================

func (s *snapshot) signal(t PatternType, direction string, confidence float64, meta Metadata) *Signal {
	return &Signal{
		Type:       t,
		TokenID:    s.tokenID,
		Symbol:     s.symbol,
		Timeframe:  s.timeframe,
		Confidence: clamp(confidence, 0, 100),
		Direction:  direction,
		Metadata:   meta,
		DetectedAt: time.Now(),
	}
}

func trendSign(prices []float64, period int) int {
	if len(prices) < period+1 {
		return 0
	}
	change := indicators.CalculateMomentum(prices, period)
	switch {
	case change > 0.5:
		return 1
	case change < -0.5:
		return -1
	default:
		return 0
	}
}

// findSwings returns alternating local extremes using a lookaround width
func findSwings(prices []float64, width int) []float64 {
	var swings []float64
	for i := width; i < len(prices)-width; i++ {
		isHigh, isLow := true, true
		for j := i - width; j <= i+width; j++ {
			if prices[j] > prices[i] {
				isHigh = false
			}
			if prices[j] < prices[i] {
				isLow = false
			}
		}
		if isHigh || isLow {
			swings = append(swings, prices[i])
		}
	}
	return swings
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
