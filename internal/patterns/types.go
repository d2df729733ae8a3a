package patterns

import (
	"encoding/json"
	"time"
)

// PatternType identifies a scoring heuristic's output class
type PatternType string

const (
	// Indicator-battery patterns
	Breakout            PatternType = "breakout"
	Reversal            PatternType = "reversal"
	AdvancedMomentum    PatternType = "advanced_momentum"
	NeuralComposite     PatternType = "neural_composite"
	SupportResistance   PatternType = "support_resistance"
	FibonacciRetracement PatternType = "fibonacci_retracement"
	VolumeProfile       PatternType = "volume_profile"
	MarketSentimentType PatternType = "market_sentiment"
	MultiTimeframe      PatternType = "multi_timeframe"
	VolatilityExpansion PatternType = "volatility_expansion"
	MeanReversion       PatternType = "mean_reversion"
	HarmonicPattern     PatternType = "harmonic_pattern"
	LiquidityFlow       PatternType = "liquidity_flow"

	// Price-action patterns
	VShapedReversal       PatternType = "v_shaped_reversal"
	StrongBullishMomentum PatternType = "strong_bullish_momentum"
	QuietAccumulation     PatternType = "quiet_accumulation"
	ConsolidationBreakout PatternType = "consolidation_breakout"
	OrderFlowPressure     PatternType = "order_flow_pressure"

	// Composite of agreeing heuristics
	Ensemble PatternType = "ensemble"
)

// AllPatternTypes lists every pattern type the battery can emit
var AllPatternTypes = []PatternType{
	Breakout, Reversal, AdvancedMomentum, NeuralComposite, SupportResistance,
	FibonacciRetracement, VolumeProfile, MarketSentimentType, MultiTimeframe,
	VolatilityExpansion, MeanReversion, HarmonicPattern, LiquidityFlow,
	VShapedReversal, StrongBullishMomentum, QuietAccumulation,
	ConsolidationBreakout, OrderFlowPressure, Ensemble,
}

// Direction constants
const (
	DirectionBullish = "bullish"
	DirectionBearish = "bearish"
)

// Metadata is the tagged per-pattern-type payload. Each heuristic attaches
// its own struct, so consumers switch on the concrete type instead of
// reading an untyped map.
type Metadata interface {
	isPatternMetadata()
}

// BreakoutMetadata describes a breakout candidate
type BreakoutMetadata struct {
	ResistanceLevel float64 `json:"resistance_level"`
	CurrentPrice    float64 `json:"current_price"`
	VolumeRatio     float64 `json:"volume_ratio"`
}

// ReversalMetadata describes a reversal candidate
type ReversalMetadata struct {
	RSI           float64 `json:"rsi"`
	StochasticK   float64 `json:"stochastic_k"`
	BandPosition  float64 `json:"band_position"` // -1 lower band .. 1 upper band
	ReversalSide  string  `json:"reversal_side"` // oversold or overbought
}

// MomentumMetadata describes a momentum candidate
type MomentumMetadata struct {
	Momentum      float64 `json:"momentum"`
	MACDHistogram float64 `json:"macd_histogram"`
	ADX           float64 `json:"adx"`
	OBVTrend      string  `json:"obv_trend"`
}

// CompositeMetadata carries the weighted inputs of the deterministic
// sigmoid-weighted composite score
type CompositeMetadata struct {
	WeightedSum float64            `json:"weighted_sum"`
	Inputs      map[string]float64 `json:"inputs"`
}

// LevelMetadata describes a price-level proximity candidate (support,
// resistance, Fibonacci, volume-profile point of control)
type LevelMetadata struct {
	Level        float64 `json:"level"`
	LevelName    string  `json:"level_name"`
	DistancePct  float64 `json:"distance_pct"`
	CurrentPrice float64 `json:"current_price"`
}

// SentimentMetadata describes a fear/greed style sentiment score
type SentimentMetadata struct {
	IndexValue     float64 `json:"index_value"` // 0 extreme fear .. 100 extreme greed
	Classification string  `json:"classification"`
}

// AlignmentMetadata describes multi-timeframe trend agreement
type AlignmentMetadata struct {
	ShortTrend  int `json:"short_trend"`
	MediumTrend int `json:"medium_trend"`
	LongTrend   int `json:"long_trend"`
}

// VolatilityMetadata describes a volatility-expansion candidate
type VolatilityMetadata struct {
	BandWidthPct float64 `json:"band_width_pct"`
	ATRRatio     float64 `json:"atr_ratio"`
	Squeezed     bool    `json:"squeezed"`
}

// MeanReversionMetadata describes a mean-reversion candidate
type MeanReversionMetadata struct {
	DeviationPct float64 `json:"deviation_pct"`
	RSI          float64 `json:"rsi"`
}

// HarmonicMetadata describes an approximate harmonic structure. RatioAccuracy
// is a deterministic geometric measure of how close the observed retracements
// sit to the ideal Gartley ratios.
type HarmonicMetadata struct {
	RatioAccuracy float64 `json:"ratio_accuracy"`
	RetraceAB     float64 `json:"retrace_ab"`
	RetraceBC     float64 `json:"retrace_bc"`
}

// FlowMetadata describes liquidity-flow / order-flow candidates
type FlowMetadata struct {
	BuyPressure  float64 `json:"buy_pressure"`
	SellPressure float64 `json:"sell_pressure"`
	Ratio        float64 `json:"ratio"`
}

// PriceActionMetadata describes simple price-action rule hits
type PriceActionMetadata struct {
	Rule        string  `json:"rule"`
	VolumeRatio float64 `json:"volume_ratio,omitempty"`
	MovePct     float64 `json:"move_pct,omitempty"`
}

// EnsembleMetadata lists the constituent patterns of a combined signal
type EnsembleMetadata struct {
	Constituents []PatternType `json:"constituents"`
	WeightedBase float64       `json:"weighted_base"`
	TrendBonus   float64       `json:"trend_bonus"`
	CloudBonus   float64       `json:"cloud_bonus"`
}

func (BreakoutMetadata) isPatternMetadata()      {}
func (ReversalMetadata) isPatternMetadata()      {}
func (MomentumMetadata) isPatternMetadata()      {}
func (CompositeMetadata) isPatternMetadata()     {}
func (LevelMetadata) isPatternMetadata()         {}
func (SentimentMetadata) isPatternMetadata()     {}
func (AlignmentMetadata) isPatternMetadata()     {}
func (VolatilityMetadata) isPatternMetadata()    {}
func (MeanReversionMetadata) isPatternMetadata() {}
func (HarmonicMetadata) isPatternMetadata()      {}
func (FlowMetadata) isPatternMetadata()          {}
func (PriceActionMetadata) isPatternMetadata()   {}
func (EnsembleMetadata) isPatternMetadata()      {}

// Signal is one heuristic's candidate pattern for a token in one cycle
type Signal struct {
	Type       PatternType
	TokenID    string
	Symbol     string
	Timeframe  string
	Confidence float64 // 0-100
	Direction  string  // bullish or bearish
	Metadata   Metadata
	DetectedAt time.Time
}

// MarshalMetadata serializes the signal's metadata for persistence
func (s *Signal) MarshalMetadata() (json.RawMessage, error) {
	if s.Metadata == nil {
		return nil, nil
	}
	return json.Marshal(s.Metadata)
}
