package prediction

import (
	"fmt"
	"math"

	models "crypto-signal-engine/database/models_pkg"
)

// Rule thresholds
const (
	RSIOversold         = 30.0
	RSIOverbought       = 70.0
	RSIExtremeLow       = 20.0
	RSIExtremeHigh      = 80.0
	StochOversold       = 20.0
	StochOverbought     = 80.0
	ADXTrending         = 25.0
	VolumeSurgeRatio    = 150.0
	MinDirectionalScore = 2
	BaseConfidence      = 60.0
	ScoreStep           = 5.0
	ConfirmationBonus   = 5.0
	MaxConfidence       = 95.0
	StrongConfidence    = 85.0
)

// RuleBasedScorer votes with RSI, MACD and the EMA 20/50 trend, then adds a fixed bonus
// for every confirming oscillator, band, trend strength or volume condition
type RuleBasedScorer struct {
	version string
}

// NewRuleBasedScorer creates the rule scorer reporting the given model version
func NewRuleBasedScorer(version string) *RuleBasedScorer {
	return &RuleBasedScorer{version: version}
}

// Name identifies the scorer in logs
func (s *RuleBasedScorer) Name() string { return "rules" }

// Version is the model_version stamped on predictions
func (s *RuleBasedScorer) Version() string { return s.version }

// Type is the model_type stamped on predictions
func (s *RuleBasedScorer) Type() string { return models.ModelTypeRuleBased }

// Score evaluates the rule set
func (s *RuleBasedScorer) Score(f Features) (Decision, error) {
	if missing := f.Missing(); len(missing) > 0 {
		return Decision{}, fmt.Errorf("%w: %v", ErrInsufficientFeatures, missing)
	}

	rsi := *f.RSI14
	score := 0
	var reasons []string

	switch {
	case rsi < RSIOversold:
		score += 2
		reasons = append(reasons, "rsi_oversold")
	case rsi > RSIOverbought:
		score -= 2
		reasons = append(reasons, "rsi_overbought")
	}

	switch {
	case *f.MACD > *f.MACDSignal:
		score++
		reasons = append(reasons, "macd_bullish")
	case *f.MACD < *f.MACDSignal:
		score--
		reasons = append(reasons, "macd_bearish")
	}

	switch {
	case *f.EMA20 > *f.EMA50:
		score++
		reasons = append(reasons, "ema_uptrend")
	case *f.EMA20 < *f.EMA50:
		score--
		reasons = append(reasons, "ema_downtrend")
	}

	abs := int(math.Abs(float64(score)))
	if abs < MinDirectionalScore {
		return Decision{Direction: models.DirectionNeutral, Confidence: 50, Reasons: reasons}, nil
	}

	long := score > 0
	confidence := BaseConfidence + ScoreStep*float64(abs)

	for _, c := range confirmations(f, long) {
		confidence += ConfirmationBonus
		reasons = append(reasons, c)
	}
	confidence = math.Min(confidence, MaxConfidence)

	return Decision{
		Direction:  directionFor(long, confidence),
		Confidence: confidence,
		Reasons:    reasons,
	}, nil
}

// confirmations lists the optional conditions agreeing with the side
func confirmations(f Features, long bool) []string {
	var out []string

	if f.StochK != nil && f.StochD != nil {
		k, d := *f.StochK, *f.StochD
		if long && k < StochOversold && k > d {
			out = append(out, "stoch_turn_up")
		}
		if !long && k > StochOverbought && k < d {
			out = append(out, "stoch_turn_down")
		}
	}

	if long && f.BBLower != nil && f.Close < *f.BBLower {
		out = append(out, "below_lower_band")
	}
	if !long && f.BBUpper != nil && f.Close > *f.BBUpper {
		out = append(out, "above_upper_band")
	}

	if f.ADX != nil && f.PlusDI != nil && f.MinusDI != nil && *f.ADX >= ADXTrending {
		if long && *f.PlusDI > *f.MinusDI {
			out = append(out, "adx_trend_up")
		}
		if !long && *f.MinusDI > *f.PlusDI {
			out = append(out, "adx_trend_down")
		}
	}

	if f.VolumeRatio != nil && *f.VolumeRatio >= VolumeSurgeRatio {
		out = append(out, "volume_surge")
	}

	rsi := *f.RSI14
	if long && rsi < RSIExtremeLow {
		out = append(out, "rsi_extreme_low")
	}
	if !long && rsi > RSIExtremeHigh {
		out = append(out, "rsi_extreme_high")
	}

	return out
}

func directionFor(long bool, confidence float64) string {
	strong := confidence >= StrongConfidence
	switch {
	case long && strong:
		return models.DirectionStrongLong
	case long:
		return models.DirectionLong
	case strong:
		return models.DirectionStrongShort
	default:
		return models.DirectionShort
	}
}
