package prediction

import (
	"encoding/json"
	"fmt"

	models "crypto-signal-engine/database/models_pkg"
)

// Features is everything a scorer sees for one candle. It is stored verbatim as the
// prediction's features_used snapshot, so pattern mining and training read the same view.
type Features struct {
	models.IndicatorValues

	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	PriceChange1 *float64 `json:"price_change_1"`
	PriceChange5 *float64 `json:"price_change_5"`

	FearGreedIndex *int     `json:"fear_greed_index"`
	BTCDominance   *float64 `json:"btc_dominance"`
	MarketRegime   string   `json:"market_regime"`
}

// NewFeatures assembles the scoring view. history is the candle window ending at candle,
// oldest first; it only feeds the price change fields.
func NewFeatures(candle *models.Candle, values models.IndicatorValues, mc *models.MarketContext, history []models.Candle) Features {
	f := Features{
		IndicatorValues: values,
		Open:            candle.Open,
		High:            candle.High,
		Low:             candle.Low,
		Close:           candle.Close,
		Volume:          candle.Volume,
		MarketRegime:    models.RegimeUnknown,
	}

	f.PriceChange1 = priceChange(history, 1)
	f.PriceChange5 = priceChange(history, 5)

	if mc != nil {
		f.FearGreedIndex = mc.FearGreedIndex
		f.BTCDominance = mc.BTCDominance
		if mc.MarketRegime != "" {
			f.MarketRegime = mc.MarketRegime
		}
	}
	return f
}

// priceChange is the percent change of the last close versus n bars earlier
func priceChange(history []models.Candle, n int) *float64 {
	if len(history) < n+1 {
		return nil
	}
	last := history[len(history)-1].Close
	prev := history[len(history)-1-n].Close
	if prev == 0 {
		return nil
	}
	v := (last - prev) / prev * 100
	return &v
}

// Missing returns the names of required features that are absent
func (f Features) Missing() []string {
	var missing []string
	check := func(name string, v *float64) {
		if v == nil {
			missing = append(missing, name)
		}
	}
	check("rsi_14", f.RSI14)
	check("macd", f.MACD)
	check("macd_signal", f.MACDSignal)
	check("ema_20", f.EMA20)
	check("ema_50", f.EMA50)
	check("atr", f.ATR)
	return missing
}

// ATRPercent returns ATR relative to the close in percent, or 0 when unknown
func (f Features) ATRPercent() float64 {
	if f.ATR == nil || f.Close == 0 {
		return 0
	}
	return *f.ATR / f.Close * 100
}

// Marshal encodes the snapshot for the features_used column
func (f Features) Marshal() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal features: %w", err)
	}
	return data, nil
}

// ParseFeatures decodes a features_used snapshot
func ParseFeatures(data []byte) (Features, error) {
	var f Features
	if len(data) == 0 {
		return f, fmt.Errorf("empty features snapshot")
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("unmarshal features: %w", err)
	}
	if f.MarketRegime == "" {
		f.MarketRegime = models.RegimeUnknown
	}
	return f, nil
}
