package patterns

import "math"

// ensembleWeights gives well-validated setups slightly more say in the
// combined score. Unlisted types default to 1.0.
var ensembleWeights = map[PatternType]float64{
	AdvancedMomentum:      1.2,
	MultiTimeframe:        1.2,
	Breakout:              1.1,
	ConsolidationBreakout: 1.1,
	NeuralComposite:       1.0,
	HarmonicPattern:       0.9,
	MarketSentimentType:   0.9,
}

const ensembleCap = 95.0

// combineEnsemble builds a single high-conviction signal out of the candidate
// battery. It requires at least minPatterns agreeing candidates in the
// dominant direction, takes their weighted mean, and adds trend and cloud
// bonuses. The result is capped and only emitted at or above emitFloor.
func combineEnsemble(s *snapshot, candidates []*Signal, minPatterns int, emitFloor float64) *Signal {
	if len(candidates) < minPatterns {
		return nil
	}

	var bullish, bearish []*Signal
	for _, c := range candidates {
		if c.Direction == DirectionBullish {
			bullish = append(bullish, c)
		} else {
			bearish = append(bearish, c)
		}
	}

	dominant := bullish
	direction := DirectionBullish
	if len(bearish) > len(bullish) {
		dominant = bearish
		direction = DirectionBearish
	}
	if len(dominant) < minPatterns {
		return nil
	}

	weightedSum, weightTotal := 0.0, 0.0
	constituents := make([]PatternType, 0, len(dominant))
	for _, c := range dominant {
		w, ok := ensembleWeights[c.Type]
		if !ok {
			w = 1.0
		}
		weightedSum += c.Confidence * w
		weightTotal += w
		constituents = append(constituents, c.Type)
	}
	base := weightedSum / weightTotal

	trendBonus := 0.0
	if s.ind.ADX > 25 {
		trendBonus = math.Min((s.ind.ADX-25)/5, 5)
	}

	cloudBonus := 0.0
	cloud := s.ind.Ichimoku.CloudSignal(s.currentPrice())
	if (direction == DirectionBullish && cloud == 1) || (direction == DirectionBearish && cloud == -1) {
		cloudBonus = 4
	}

	confidence := math.Min(base+trendBonus+cloudBonus, ensembleCap)
	if confidence < emitFloor {
		return nil
	}

	return s.signal(Ensemble, direction, confidence, EnsembleMetadata{
		Constituents: constituents,
		WeightedBase: base,
		TrendBonus:   trendBonus,
		CloudBonus:   cloudBonus,
	})
}
