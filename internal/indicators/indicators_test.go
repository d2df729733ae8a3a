package indicators

import (
	"math"
	"testing"
)

func linearPrices(n int, start, step float64) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = start + float64(i)*step
	}
	return prices
}

func constPrices(n int, v float64) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = v
	}
	return prices
}

// TestRSIBounds verifies RSI stays within [0,100] on arbitrary series
func TestRSIBounds(t *testing.T) {
	series := [][]float64{
		linearPrices(50, 100, 1),
		linearPrices(50, 100, -1),
		{100, 99, 101, 98, 102, 97, 103, 96, 104, 95, 105, 94, 106, 93, 107, 92},
		constPrices(30, 50),
	}
	for _, prices := range series {
		rsi := CalculateRSI(prices, 14)
		if rsi < 0 || rsi > 100 {
			t.Errorf("RSI out of bounds: %f for series starting at %f", rsi, prices[0])
		}
	}
}

// TestRSIAllGains verifies avgLoss=0 returns 100
func TestRSIAllGains(t *testing.T) {
	rsi := CalculateRSI(linearPrices(20, 100, 1), 14)
	if rsi != 100 {
		t.Errorf("RSI on monotonically rising prices should be 100, got %f", rsi)
	}
}

// TestRSIInsufficientData verifies the neutral default
func TestRSIInsufficientData(t *testing.T) {
	rsi := CalculateRSI([]float64{100, 101, 102}, 14)
	if rsi != 50 {
		t.Errorf("RSI with insufficient data should be 50, got %f", rsi)
	}
}

func TestSMA(t *testing.T) {
	sma := CalculateSMA([]float64{1, 2, 3, 4, 5}, 5)
	if sma != 3 {
		t.Errorf("SMA of 1..5 should be 3, got %f", sma)
	}

	if got := CalculateSMA([]float64{1, 2}, 5); got != 0 {
		t.Errorf("SMA with insufficient data should be 0, got %f", got)
	}
}

// TestEMASeededWithFirstPrice verifies the EMA seed
func TestEMASeededWithFirstPrice(t *testing.T) {
	ema := CalculateEMA(constPrices(30, 42), 10)
	if math.Abs(ema-42) > 1e-9 {
		t.Errorf("EMA of constant series should equal the constant, got %f", ema)
	}
}

func TestMACDSignalLine(t *testing.T) {
	prices := linearPrices(80, 100, 0.5)
	macd := CalculateMACD(prices, 12, 26, 9)

	if macd.MACD <= 0 {
		t.Errorf("MACD on a rising series should be positive, got %f", macd.MACD)
	}
	if math.Abs(macd.Histogram-(macd.MACD-macd.Signal)) > 1e-9 {
		t.Error("Histogram should equal MACD minus signal line")
	}
	// a steady uptrend keeps MACD above its own lagging signal EMA
	if macd.Signal >= macd.MACD {
		t.Errorf("Signal line should lag MACD in a steady uptrend, macd=%f signal=%f", macd.MACD, macd.Signal)
	}
}

func TestBollingerBands(t *testing.T) {
	bands := CalculateBollingerBands(constPrices(25, 100), 20, 2)
	if bands.Upper != 100 || bands.Middle != 100 || bands.Lower != 100 {
		t.Errorf("Bollinger on constant series should collapse to the mean, got %+v", bands)
	}

	noisy := []float64{100, 102, 98, 103, 97, 104, 96, 105, 95, 106, 94, 107, 93, 108, 92, 109, 91, 110, 90, 111}
	noisyBands := CalculateBollingerBands(noisy, 20, 2)
	if noisyBands.Upper <= noisyBands.Middle || noisyBands.Lower >= noisyBands.Middle {
		t.Errorf("Bands should straddle the middle on a noisy series, got %+v", noisyBands)
	}
}

// TestStochasticFlatRange verifies 50 when high==low
func TestStochasticFlatRange(t *testing.T) {
	stoch := CalculateStochastic(constPrices(30, 75), 14, 3)
	if stoch.K != 50 || stoch.D != 50 {
		t.Errorf("Stochastic on a flat range should be 50/50, got K=%f D=%f", stoch.K, stoch.D)
	}
}

func TestStochasticAtRangeTop(t *testing.T) {
	stoch := CalculateStochastic(linearPrices(30, 100, 1), 14, 3)
	if stoch.K != 100 {
		t.Errorf("Stochastic %%K at the range top should be 100, got %f", stoch.K)
	}
}

func TestATRInsufficientData(t *testing.T) {
	if got := CalculateATR([]float64{100}, 14); got != 0 {
		t.Errorf("ATR with insufficient data should be 0, got %f", got)
	}
}

func TestADXStrongTrend(t *testing.T) {
	trending := linearPrices(80, 100, 2)
	choppy := make([]float64, 80)
	for i := range choppy {
		if i%2 == 0 {
			choppy[i] = 100
		} else {
			choppy[i] = 101
		}
	}

	trendADX := CalculateADX(trending, 14)
	choppyADX := CalculateADX(choppy, 14)
	if trendADX <= choppyADX {
		t.Errorf("ADX should rank a trend above chop, trend=%f chop=%f", trendADX, choppyADX)
	}
}

func TestOBVSignedAccumulation(t *testing.T) {
	prices := []float64{100, 101, 102, 101, 103}
	volumes := []float64{10, 20, 30, 40, 50}

	// +20 +30 -40 +50 = 60
	obv := CalculateOBV(prices, volumes)
	if obv != 60 {
		t.Errorf("OBV should be 60, got %f", obv)
	}
}

func TestIchimokuCloudSignal(t *testing.T) {
	lines := CalculateIchimoku(linearPrices(80, 100, 1))

	above := lines.CloudSignal(1000)
	if above != 1 {
		t.Errorf("Price far above the cloud should signal 1, got %d", above)
	}
	below := lines.CloudSignal(1)
	if below != -1 {
		t.Errorf("Price far below the cloud should signal -1, got %d", below)
	}
}

func TestCorrelation(t *testing.T) {
	a := linearPrices(20, 0, 1)
	b := linearPrices(20, 100, 2)
	if corr := CalculateCorrelation(a, b); math.Abs(corr-1) > 1e-9 {
		t.Errorf("Perfectly correlated series should give 1, got %f", corr)
	}

	c := linearPrices(20, 100, -2)
	if corr := CalculateCorrelation(a, c); math.Abs(corr+1) > 1e-9 {
		t.Errorf("Perfectly anti-correlated series should give -1, got %f", corr)
	}
}

func TestComputeBundleShortSeries(t *testing.T) {
	// must be total: no panic, neutral defaults
	bundle := ComputeBundle([]float64{100, 101}, []float64{5, 5})
	if bundle.RSI != 50 {
		t.Errorf("Short-series RSI should default to 50, got %f", bundle.RSI)
	}
}
