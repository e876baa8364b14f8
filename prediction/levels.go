package prediction

import (
	"math"
	"time"

	models "crypto-signal-engine/database/models_pkg"
)

// Horizon bounds
const (
	MinHorizon     = time.Hour
	MaxHorizon     = 30 * 24 * time.Hour
	MinATRPercent  = 0.1 // floor for volatility-scaled sizing
	PriorityCritAt = 85.0
	PriorityHighAt = 75.0
	PriorityMedAt  = 70.0
)

var timeframes = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// TimeframeDuration returns the bucket width of a supported timeframe
func TimeframeDuration(tf string) (time.Duration, bool) {
	d, ok := timeframes[tf]
	return d, ok
}

// ExitLevels contains the absolute levels and ratios attached to a prediction
type ExitLevels struct {
	ATR           float64 // ATR value at evaluation time
	ATRPercent    float64 // ATR as percentage of entry
	StopLoss      float64 // Absolute stop loss price
	TakeProfit    float64 // Absolute take profit price
	StopLossPct   float64 // Distance to stop loss in percent of entry
	TakeProfitPct float64 // Distance to take profit in percent of entry
	RiskReward    float64 // |TP - entry| / |entry - SL|
}

// ComputeExitLevels places stop loss and take profit at ATR multiples on either side
// of entry, mirrored for short predictions
func ComputeExitLevels(direction string, entry, atr, slMultiplier, tpMultiplier float64) ExitLevels {
	levels := ExitLevels{ATR: atr}
	if entry > 0 {
		levels.ATRPercent = atr / entry * 100
	}

	slDist := slMultiplier * atr
	tpDist := tpMultiplier * atr

	if models.IsShort(direction) {
		levels.StopLoss = entry + slDist
		levels.TakeProfit = entry - tpDist
	} else {
		levels.StopLoss = entry - slDist
		levels.TakeProfit = entry + tpDist
	}

	if entry > 0 {
		levels.StopLossPct = slDist / entry * 100
		levels.TakeProfitPct = tpDist / entry * 100
	}
	if slDist > 0 {
		levels.RiskReward = tpDist / slDist
	}
	return levels
}

// PositionSize scales the base allocation by confidence and inversely by volatility
func PositionSize(confidence, atrPct, basePct, targetVolPct, maxPct float64) float64 {
	size := basePct * (confidence / 100) * targetVolPct / math.Max(atrPct, MinATRPercent)
	return math.Min(size, maxPct)
}

// Horizon returns how long a prediction stays live: bars buckets of the timeframe,
// clamped to [1h, 30d]
func Horizon(tf string, bars int) time.Duration {
	d, ok := TimeframeDuration(tf)
	if !ok {
		d = time.Hour
	}
	h := time.Duration(bars) * d
	if h < MinHorizon {
		h = MinHorizon
	}
	if h > MaxHorizon {
		h = MaxHorizon
	}
	return h
}

// HorizonHours rounds a horizon up to whole hours
func HorizonHours(h time.Duration) int {
	return int(math.Ceil(h.Hours()))
}

// PriorityFor maps confidence to a priority label
func PriorityFor(confidence float64) string {
	switch {
	case confidence >= PriorityCritAt:
		return models.PriorityCritical
	case confidence >= PriorityHighAt:
		return models.PriorityHigh
	case confidence >= PriorityMedAt:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
