// Package indicators computes the fixed technical indicator vector for a candle window.
//
// Compute is pure: the same window always yields the same values and nothing is read
// from or written to the store. Each indicator has its own minimum window length; when
// the window is shorter, or the formula divides by zero, the value is nil.
package indicators

import (
	models "crypto-signal-engine/database/models_pkg"
)

// SchemaVersion identifies the indicator schema written alongside each row
const SchemaVersion = 1

// Indicator periods
const (
	RSIPeriod     = 14
	RSIFastPeriod = 7
	MACDFast      = 12
	MACDSlow      = 26
	MACDSignal    = 9
	BBPeriod      = 20
	BBStdDev      = 2.0
	ATRPeriod     = 14
	VolumePeriod  = 20
	StochKPeriod  = 14
	StochDPeriod  = 3
	ADXPeriod     = 14
	CCIPeriod     = 20
	CCIConstant   = 0.015
	WillRPeriod   = 14
)

// series is a column view of a candle window, oldest first
type series struct {
	open   []float64
	high   []float64
	low    []float64
	close  []float64
	volume []float64
}

func newSeries(window []models.Candle) series {
	s := series{
		open:   make([]float64, len(window)),
		high:   make([]float64, len(window)),
		low:    make([]float64, len(window)),
		close:  make([]float64, len(window)),
		volume: make([]float64, len(window)),
	}
	for i, c := range window {
		s.open[i] = c.Open
		s.high[i] = c.High
		s.low[i] = c.Low
		s.close[i] = c.Close
		s.volume[i] = c.Volume
	}
	return s
}

// Compute returns the indicator values for the last candle of window (oldest first)
func Compute(window []models.Candle) models.IndicatorValues {
	var v models.IndicatorValues
	if len(window) == 0 {
		return v
	}

	s := newSeries(window)

	v.RSI14 = rsi(s.close, RSIPeriod)
	v.RSI7 = rsi(s.close, RSIFastPeriod)

	v.MACD, v.MACDSignal, v.MACDHistogram = macd(s.close)

	v.EMA9 = ema(s.close, 9)
	v.EMA20 = ema(s.close, 20)
	v.EMA50 = ema(s.close, 50)
	v.EMA100 = ema(s.close, 100)
	v.EMA200 = ema(s.close, 200)

	v.SMA20 = sma(s.close, 20)
	v.SMA50 = sma(s.close, 50)
	v.SMA200 = sma(s.close, 200)

	v.BBUpper, v.BBMiddle, v.BBLower, v.BBWidth = bollinger(s.close, BBPeriod, BBStdDev)

	v.ATR = atr(s, ATRPeriod)

	v.VolumeAvg20 = sma(s.volume, VolumePeriod)
	if v.VolumeAvg20 != nil && *v.VolumeAvg20 > 0 {
		v.VolumeRatio = finite(s.volume[len(s.volume)-1] / *v.VolumeAvg20 * 100)
	}

	v.StochK, v.StochD = stochastic(s, StochKPeriod, StochDPeriod)
	v.ADX, v.PlusDI, v.MinusDI = adx(s, ADXPeriod)
	v.CCI = cci(s, CCIPeriod)
	v.WillR = williamsR(s, WillRPeriod)
	v.OBV = obv(s)

	return v
}
