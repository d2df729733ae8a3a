package patterns

import (
	"math"

	"token-trading-engine/internal/indicators"
)

// Price-action heuristics operate on the raw tick tape rather than derived
// indicators. They share the same Signal contract as the indicator battery.

func priceActionHeuristics() []heuristic {
	return []heuristic{
		detectVShapedReversal,
		detectStrongBullishMomentum,
		detectQuietAccumulation,
		detectConsolidationBreakout,
		detectOrderFlowPressure,
	}
}

// detectVShapedReversal looks for a sharp drop followed by a sharp recovery
// within a 20-tick window
func detectVShapedReversal(s *snapshot) *Signal {
	const window = 20
	if len(s.prices) < window {
		return nil
	}

	segment := s.prices[len(s.prices)-window:]
	troughIdx := 0
	for i, p := range segment {
		if p < segment[troughIdx] {
			troughIdx = i
		}
	}
	if troughIdx < 3 || troughIdx > window-4 {
		return nil // trough at the edge, no complete V
	}

	start := segment[0]
	trough := segment[troughIdx]
	end := segment[len(segment)-1]
	if start == 0 || trough == 0 {
		return nil
	}

	dropPct := (start - trough) / start * 100
	recoveryPct := (end - trough) / trough * 100
	if dropPct < 3 || recoveryPct < dropPct*0.6 {
		return nil
	}

	confidence := 60 + math.Min(dropPct*2, 15) + math.Min(recoveryPct/dropPct*10, 15)

	return s.signal(VShapedReversal, DirectionBullish, confidence, PriceActionMetadata{
		Rule:    "v_shaped_reversal",
		MovePct: recoveryPct,
	})
}

// detectStrongBullishMomentum requires three strictly rising closes with the
// final tick trading at least 1.2x the volume of the one before it
func detectStrongBullishMomentum(s *snapshot) *Signal {
	n := len(s.prices)
	if n < 4 {
		return nil
	}

	p := s.prices[n-4:]
	if !(p[1] > p[0] && p[2] > p[1] && p[3] > p[2]) {
		return nil
	}

	prevVolume := s.volumes[n-2]
	if prevVolume == 0 {
		return nil
	}
	volumeRatio := s.volumes[n-1] / prevVolume
	if volumeRatio < 1.2 {
		return nil
	}

	movePct := (p[3] - p[0]) / p[0] * 100
	confidence := 62 + math.Min(movePct*4, 18) + math.Min((volumeRatio-1.2)*15, 15)

	return s.signal(StrongBullishMomentum, DirectionBullish, confidence, PriceActionMetadata{
		Rule:        "three_rising_closes_volume",
		VolumeRatio: volumeRatio,
		MovePct:     movePct,
	})
}

// detectQuietAccumulation looks for rising on-balance volume while price
// stays flat and volatility is compressed
func detectQuietAccumulation(s *snapshot) *Signal {
	const window = 30
	if len(s.prices) < window {
		return nil
	}

	prices := s.prices[len(s.prices)-window:]
	volumes := s.volumes[len(s.volumes)-window:]

	high, low := indicators.RangeHighLow(prices, window)
	if low == 0 {
		return nil
	}
	rangePct := (high - low) / low * 100
	if rangePct > 2.5 {
		return nil // not quiet
	}

	firstOBV := indicators.CalculateOBV(prices[:window/2], volumes[:window/2])
	fullOBV := indicators.CalculateOBV(prices, volumes)
	avgVolume := indicators.CalculateAverageVolume(volumes, window)
	if avgVolume == 0 || fullOBV <= firstOBV {
		return nil
	}

	obvGain := (fullOBV - firstOBV) / avgVolume
	if obvGain < 2 {
		return nil
	}

	confidence := 58 + math.Min(obvGain*4, 20) + (2.5-rangePct)*4

	return s.signal(QuietAccumulation, DirectionBullish, confidence, PriceActionMetadata{
		Rule:    "rising_obv_flat_price",
		MovePct: rangePct,
	})
}

// detectConsolidationBreakout looks for a tight range resolving with a close
// beyond it on expanding volume
func detectConsolidationBreakout(s *snapshot) *Signal {
	const rangeWindow = 25
	if len(s.prices) < rangeWindow+1 {
		return nil
	}

	box := s.prices[len(s.prices)-rangeWindow-1 : len(s.prices)-1]
	high, low := indicators.RangeHighLow(box, rangeWindow)
	if low == 0 {
		return nil
	}
	boxPct := (high - low) / low * 100
	if boxPct > 3 {
		return nil // range too wide to call a consolidation
	}

	current := s.currentPrice()
	var direction string
	var movePct float64
	switch {
	case current > high:
		direction = DirectionBullish
		movePct = (current - high) / high * 100
	case current < low:
		direction = DirectionBearish
		movePct = (low - current) / low * 100
	default:
		return nil
	}

	volumeRatio := 1.0
	avgVolume := indicators.CalculateAverageVolume(s.volumes[:len(s.volumes)-1], rangeWindow)
	if avgVolume > 0 {
		volumeRatio = s.volumes[len(s.volumes)-1] / avgVolume
	}

	confidence := 60 + math.Min(movePct*20, 15) + (3-boxPct)*3 + math.Min((volumeRatio-1)*10, 10)

	return s.signal(ConsolidationBreakout, direction, confidence, PriceActionMetadata{
		Rule:        "range_break",
		VolumeRatio: volumeRatio,
		MovePct:     movePct,
	})
}

// detectOrderFlowPressure compares uptick volume to downtick volume over the
// last 10 ticks
func detectOrderFlowPressure(s *snapshot) *Signal {
	const window = 10
	if len(s.prices) < window+1 {
		return nil
	}

	buy, sell := 0.0, 0.0
	for i := len(s.prices) - window; i < len(s.prices); i++ {
		switch {
		case s.prices[i] > s.prices[i-1]:
			buy += s.volumes[i]
		case s.prices[i] < s.prices[i-1]:
			sell += s.volumes[i]
		}
	}

	total := buy + sell
	if total == 0 {
		return nil
	}

	ratio := buy / total
	var direction string
	var confidence float64
	switch {
	case ratio >= 0.75:
		direction = DirectionBullish
		confidence = 60 + (ratio-0.75)*120
	case ratio <= 0.25:
		direction = DirectionBearish
		confidence = 60 + (0.25-ratio)*120
	default:
		return nil
	}

	return s.signal(OrderFlowPressure, direction, confidence, FlowMetadata{
		BuyPressure:  buy,
		SellPressure: sell,
		Ratio:        ratio,
	})
}
