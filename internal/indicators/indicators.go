package indicators

import "math"

// All functions in this package are total: they return documented neutral
// defaults on insufficient input instead of panicking. Inputs are
// chronological price (and volume) series, oldest first.

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates Simple Moving Average over the last period prices.
// Returns 0 when there are fewer than period prices.
func CalculateSMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}

	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}

	return sum / float64(period)
}

// CalculateEMA calculates Exponential Moving Average, seeded with the first
// price. Returns 0 on an empty series.
func CalculateEMA(prices []float64, period int) float64 {
	series := CalculateEMASeries(prices, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// CalculateEMASeries returns the full EMA series, seeded with the first price
func CalculateEMASeries(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return nil
	}

	multiplier := 2.0 / float64(period+1)
	series := make([]float64, len(prices))
	series[0] = prices[0]

	for i := 1; i < len(prices); i++ {
		series[i] = (prices[i] * multiplier) + (series[i-1] * (1 - multiplier))
	}

	return series
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// CalculateRSI calculates the Relative Strength Index. Returns a neutral 50
// when there are fewer than period+1 prices, and 100 when average loss is 0.
func CalculateRSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0

	for i := len(prices) - period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD calculates the MACD line (fast EMA − slow EMA), its
// signal-period EMA signal line, and the histogram. Returns zeroes when the
// series is shorter than the slow period.
func CalculateMACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(prices) < slowPeriod {
		return MACDResult{}
	}

	fastSeries := CalculateEMASeries(prices, fastPeriod)
	slowSeries := CalculateEMASeries(prices, slowPeriod)

	macdSeries := make([]float64, len(prices))
	for i := range prices {
		macdSeries[i] = fastSeries[i] - slowSeries[i]
	}

	signalSeries := CalculateEMASeries(macdSeries, signalPeriod)

	macd := macdSeries[len(macdSeries)-1]
	signal := signalSeries[len(signalSeries)-1]

	return MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerBands holds Bollinger Band values
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// CalculateBollingerBands calculates the middle SMA band plus bands at
// ±stdDevMultiplier standard deviations. Returns zeroes on a short series.
func CalculateBollingerBands(prices []float64, period int, stdDevMultiplier float64) BollingerBands {
	if len(prices) < period {
		return BollingerBands{}
	}

	middle := CalculateSMA(prices, period)
	stdDev := CalculateStdDev(prices, period)

	return BollingerBands{
		Upper:  middle + (stdDev * stdDevMultiplier),
		Middle: middle,
		Lower:  middle - (stdDev * stdDevMultiplier),
	}
}

// CalculateStdDev calculates the standard deviation of the last period prices
func CalculateStdDev(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}

	mean := CalculateSMA(prices, period)
	variance := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		diff := prices[i] - mean
		variance += diff * diff
	}

	return math.Sqrt(variance / float64(period))
}

// ============================================================================
// STOCHASTIC OSCILLATOR
// ============================================================================

// StochasticResult holds Stochastic Oscillator values
type StochasticResult struct {
	K float64
	D float64
}

// CalculateStochastic calculates %K from the position of the latest price
// within its kPeriod high/low range, and %D as the SMA of the last dPeriod
// %K values. Returns a neutral 50/50 when the range is flat or the series is
// too short.
func CalculateStochastic(prices []float64, kPeriod, dPeriod int) StochasticResult {
	if len(prices) < kPeriod || kPeriod <= 0 {
		return StochasticResult{K: 50, D: 50}
	}

	kValues := make([]float64, 0, dPeriod)
	for offset := dPeriod - 1; offset >= 0; offset-- {
		end := len(prices) - offset
		if end < kPeriod {
			continue
		}
		window := prices[:end]
		high, low := rangeHighLow(window, kPeriod)
		if high == low {
			kValues = append(kValues, 50)
			continue
		}
		kValues = append(kValues, ((window[len(window)-1] - low) / (high - low)) * 100)
	}

	if len(kValues) == 0 {
		return StochasticResult{K: 50, D: 50}
	}

	k := kValues[len(kValues)-1]
	d := 0.0
	for _, v := range kValues {
		d += v
	}
	d /= float64(len(kValues))

	return StochasticResult{K: k, D: d}
}

// ============================================================================
// ATR / ADX
// ============================================================================

// CalculateATR calculates Average True Range. With a tick series the true
// range per step degenerates to the absolute price change. Returns 0 on a
// short series.
func CalculateATR(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 0
	}

	trSum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		trSum += math.Abs(prices[i] - prices[i-1])
	}

	return trSum / float64(period)
}

// CalculateADX calculates the Average Directional Index from smoothed
// directional movement. Returns 0 when there is too little data or no
// directional movement at all.
func CalculateADX(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < 2*period+1 {
		return 0
	}

	// DX per step over the last 2*period changes, then averaged over the
	// final period (Wilder's construction on a tick series)
	dxValues := make([]float64, 0, period)
	for end := len(prices) - period + 1; end <= len(prices); end++ {
		plusDM, minusDM, tr := 0.0, 0.0, 0.0
		for i := end - period; i < end; i++ {
			change := prices[i] - prices[i-1]
			if change > 0 {
				plusDM += change
			} else {
				minusDM += -change
			}
			tr += math.Abs(change)
		}
		if tr == 0 {
			dxValues = append(dxValues, 0)
			continue
		}
		plusDI := (plusDM / tr) * 100
		minusDI := (minusDM / tr) * 100
		if plusDI+minusDI == 0 {
			dxValues = append(dxValues, 0)
			continue
		}
		dxValues = append(dxValues, math.Abs(plusDI-minusDI)/(plusDI+minusDI)*100)
	}

	sum := 0.0
	for _, dx := range dxValues {
		sum += dx
	}
	return sum / float64(len(dxValues))
}

// ============================================================================
// VOLUME
// ============================================================================

// CalculateOBV calculates On-Balance Volume: cumulative volume signed by the
// direction of each price change. Returns 0 when series lengths differ or are
// shorter than 2.
func CalculateOBV(prices, volumes []float64) float64 {
	if len(prices) != len(volumes) || len(prices) < 2 {
		return 0
	}

	obv := 0.0
	for i := 1; i < len(prices); i++ {
		switch {
		case prices[i] > prices[i-1]:
			obv += volumes[i]
		case prices[i] < prices[i-1]:
			obv -= volumes[i]
		}
	}

	return obv
}

// CalculateVWAP calculates the volume-weighted average price over the whole
// window. Falls back to the simple mean when total volume is 0.
func CalculateVWAP(prices, volumes []float64) float64 {
	if len(prices) == 0 || len(prices) != len(volumes) {
		return 0
	}

	totalPV := 0.0
	totalVolume := 0.0
	for i := range prices {
		totalPV += prices[i] * volumes[i]
		totalVolume += volumes[i]
	}

	if totalVolume == 0 {
		sum := 0.0
		for _, p := range prices {
			sum += p
		}
		return sum / float64(len(prices))
	}

	return totalPV / totalVolume
}

// CalculateAverageVolume calculates average volume over the last period ticks
func CalculateAverageVolume(volumes []float64, period int) float64 {
	if len(volumes) == 0 {
		return 0
	}
	if len(volumes) < period {
		period = len(volumes)
	}

	sum := 0.0
	for i := len(volumes) - period; i < len(volumes); i++ {
		sum += volumes[i]
	}

	return sum / float64(period)
}

// ============================================================================
// MOMENTUM
// ============================================================================

// CalculateMomentum calculates percentage price change over the last period
// ticks. Returns 0 on a short series or a zero base price.
func CalculateMomentum(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 0
	}

	current := prices[len(prices)-1]
	past := prices[len(prices)-period-1]
	if past == 0 {
		return 0
	}

	return ((current - past) / past) * 100
}

// CalculateCorrelation calculates the Pearson correlation between two equal
// length series. Returns 0 when either series is flat or too short.
func CalculateCorrelation(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}

	n := float64(len(a))
	meanA, meanB := 0.0, 0.0
	for i := range a {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= n
	meanB /= n

	cov, varA, varB := 0.0, 0.0, 0.0
	for i := range a {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}

	if varA == 0 || varB == 0 {
		return 0
	}

	return cov / math.Sqrt(varA*varB)
}

// ============================================================================
// HELPERS
// ============================================================================

func rangeHighLow(prices []float64, period int) (high, low float64) {
	if len(prices) == 0 {
		return 0, 0
	}
	if len(prices) < period {
		period = len(prices)
	}

	start := len(prices) - period
	high = prices[start]
	low = prices[start]
	for i := start; i < len(prices); i++ {
		if prices[i] > high {
			high = prices[i]
		}
		if prices[i] < low {
			low = prices[i]
		}
	}

	return high, low
}

// RangeHighLow returns the high and low of the last period prices
func RangeHighLow(prices []float64, period int) (high, low float64) {
	return rangeHighLow(prices, period)
}
