package indicators

// Bundle is the full set of indicators derived from one price/volume window.
// Bundles are ephemeral: recomputed every detection cycle, never persisted.
type Bundle struct {
	SMA20      float64
	EMA20      float64
	RSI        float64
	MACD       MACDResult
	Bollinger  BollingerBands
	Stochastic StochasticResult
	ATR        float64
	ADX        float64
	OBV        float64
	VWAP       float64
	Momentum   float64
	Ichimoku   IchimokuLines
}

// ComputeBundle derives a full indicator bundle from a price/volume window.
// Individual indicators degrade to their neutral defaults on short input, so
// the bundle itself is always usable.
func ComputeBundle(prices, volumes []float64) *Bundle {
	return &Bundle{
		SMA20:      CalculateSMA(prices, 20),
		EMA20:      CalculateEMA(prices, 20),
		RSI:        CalculateRSI(prices, 14),
		MACD:       CalculateMACD(prices, 12, 26, 9),
		Bollinger:  CalculateBollingerBands(prices, 20, 2.0),
		Stochastic: CalculateStochastic(prices, 14, 3),
		ATR:        CalculateATR(prices, 14),
		ADX:        CalculateADX(prices, 14),
		OBV:        CalculateOBV(prices, volumes),
		VWAP:       CalculateVWAP(prices, volumes),
		Momentum:   CalculateMomentum(prices, 10),
		Ichimoku:   CalculateIchimoku(prices),
	}
}
