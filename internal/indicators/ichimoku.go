package indicators

// IchimokuLines holds the Ichimoku Cloud line values computed from rolling
// high/low midpoints
type IchimokuLines struct {
	Tenkan  float64 // conversion line, 9-period midpoint
	Kijun   float64 // base line, 26-period midpoint
	SenkouA float64 // leading span A, midpoint of Tenkan and Kijun
	SenkouB float64 // leading span B, 52-period midpoint
	Chikou  float64 // lagging span, close 26 ticks back
}

// CalculateIchimoku calculates the Ichimoku Cloud lines. Lines whose lookback
// exceeds the series length fall back to the midpoint of whatever data is
// available; Chikou falls back to the oldest price.
func CalculateIchimoku(prices []float64) IchimokuLines {
	if len(prices) == 0 {
		return IchimokuLines{}
	}

	lines := IchimokuLines{
		Tenkan:  midpoint(prices, 9),
		Kijun:   midpoint(prices, 26),
		SenkouB: midpoint(prices, 52),
	}
	lines.SenkouA = (lines.Tenkan + lines.Kijun) / 2

	if len(prices) > 26 {
		lines.Chikou = prices[len(prices)-1-26]
	} else {
		lines.Chikou = prices[0]
	}

	return lines
}

// CloudSignal classifies price position relative to the cloud: 1 above both
// spans, -1 below both, 0 inside
func (il IchimokuLines) CloudSignal(price float64) int {
	upper := il.SenkouA
	lower := il.SenkouB
	if lower > upper {
		upper, lower = lower, upper
	}

	switch {
	case price > upper:
		return 1
	case price < lower:
		return -1
	default:
		return 0
	}
}

func midpoint(prices []float64, period int) float64 {
	high, low := rangeHighLow(prices, period)
	return (high + low) / 2
}
