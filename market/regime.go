package market

import (
	"math"

	models "crypto-signal-engine/database/models_pkg"
)

// Regime thresholds in percent
const (
	VolatileThreshold = 5.0
	BullThreshold     = 10.0
	BearThreshold     = -10.0
	RegimeLookback    = 31 // daily candles, 30 returns
	regimeMinCandles  = 2
)

// RegimeReading is derived from reference daily candles
type RegimeReading struct {
	Regime     string
	Volatility *float64 // stdev of daily returns in percent
	Change     *float64 // first to last close in percent
	LastPrice  *float64
}

// ClassifyRegime derives the market regime from daily candles ordered oldest first.
// Volatility wins over direction; too little history yields unknown.
func ClassifyRegime(daily []models.Candle) RegimeReading {
	if len(daily) < regimeMinCandles {
		return RegimeReading{Regime: models.RegimeUnknown}
	}

	returns := make([]float64, 0, len(daily)-1)
	for i := 1; i < len(daily); i++ {
		prev := daily[i-1].Close
		if prev <= 0 {
			continue
		}
		returns = append(returns, (daily[i].Close-prev)/prev)
	}

	first, last := daily[0].Close, daily[len(daily)-1].Close
	if len(returns) == 0 || first <= 0 {
		return RegimeReading{Regime: models.RegimeUnknown, LastPrice: &last}
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	sq := 0.0
	for _, r := range returns {
		sq += (r - mean) * (r - mean)
	}
	volatility := math.Sqrt(sq/float64(len(returns))) * 100
	change := (last/first - 1) * 100

	reading := RegimeReading{Volatility: &volatility, Change: &change, LastPrice: &last}
	switch {
	case volatility > VolatileThreshold:
		reading.Regime = models.RegimeVolatile
	case change > BullThreshold:
		reading.Regime = models.RegimeBull
	case change < BearThreshold:
		reading.Regime = models.RegimeBear
	default:
		reading.Regime = models.RegimeSideways
	}
	return reading
}
