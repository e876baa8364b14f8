package indicators

import "math"

// finite returns a pointer to v, or nil when v is NaN or infinite
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// stdDev is the population standard deviation
func stdDev(data []float64) float64 {
	m := mean(data)
	sum := 0.0
	for _, v := range data {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(data)))
}

func sma(data []float64, period int) *float64 {
	if len(data) < period {
		return nil
	}
	return finite(mean(data[len(data)-period:]))
}

// emaSeries returns the exponential moving average at every index, seeded with the
// first value and smoothed with alpha = 2/(period+1)
func emaSeries(data []float64, period int) []float64 {
	out := make([]float64, len(data))
	if len(data) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = data[0]
	for i := 1; i < len(data); i++ {
		out[i] = alpha*data[i] + (1-alpha)*out[i-1]
	}
	return out
}

func ema(data []float64, period int) *float64 {
	if len(data) < period {
		return nil
	}
	s := emaSeries(data, period)
	return finite(s[len(s)-1])
}

func rsi(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}

	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	gain /= float64(period)
	loss /= float64(period)

	if loss == 0 {
		if gain == 0 {
			return nil
		}
		v := 100.0
		return &v
	}
	rs := gain / loss
	return finite(100 - 100/(1+rs))
}

func macd(closes []float64) (line, signal, hist *float64) {
	if len(closes) < MACDSlow {
		return nil, nil, nil
	}

	fast := emaSeries(closes, MACDFast)
	slow := emaSeries(closes, MACDSlow)
	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = fast[i] - slow[i]
	}

	last := len(diff) - 1
	line = finite(diff[last])
	if len(closes) < MACDSlow+MACDSignal-1 {
		return line, nil, nil
	}

	sig := emaSeries(diff, MACDSignal)
	signal = finite(sig[last])
	hist = finite(diff[last] - sig[last])
	return line, signal, hist
}

func bollinger(closes []float64, period int, k float64) (upper, middle, lower, width *float64) {
	if len(closes) < period {
		return nil, nil, nil, nil
	}

	window := closes[len(closes)-period:]
	m := mean(window)
	sd := stdDev(window)
	u := m + k*sd
	l := m - k*sd

	upper, middle, lower = finite(u), finite(m), finite(l)
	if m != 0 {
		width = finite((u - l) / m * 100)
	}
	return upper, middle, lower, width
}

// trueRange returns TR for index i >= 1
func trueRange(s series, i int) float64 {
	hl := s.high[i] - s.low[i]
	hc := math.Abs(s.high[i] - s.close[i-1])
	lc := math.Abs(s.low[i] - s.close[i-1])
	return math.Max(hl, math.Max(hc, lc))
}

func atr(s series, period int) *float64 {
	n := len(s.close)
	if n < period+1 {
		return nil
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		sum += trueRange(s, i)
	}
	return finite(sum / float64(period))
}

func stochKAt(s series, end, period int) float64 {
	hh, ll := s.high[end], s.low[end]
	for i := end - period + 1; i <= end; i++ {
		hh = math.Max(hh, s.high[i])
		ll = math.Min(ll, s.low[i])
	}
	return (s.close[end] - ll) / (hh - ll) * 100
}

func stochastic(s series, kPeriod, dPeriod int) (k, d *float64) {
	n := len(s.close)
	if n < kPeriod {
		return nil, nil
	}
	k = finite(stochKAt(s, n-1, kPeriod))
	if n < kPeriod+dPeriod-1 {
		return k, nil
	}

	ks := make([]float64, 0, dPeriod)
	for end := n - dPeriod; end < n; end++ {
		ks = append(ks, stochKAt(s, end, kPeriod))
	}
	return k, finite(mean(ks))
}

// adx uses Wilder smoothing. The first smoothed values are plain sums over the first
// period, and the first ADX is the mean of the first period DX values.
func adx(s series, period int) (value, plusDI, minusDI *float64) {
	n := len(s.close)
	if n < 2*period {
		return nil, nil, nil
	}

	p := float64(period)
	var trS, plusS, minusS float64
	dx := make([]float64, 0, n)
	var pdi, mdi float64

	for i := 1; i < n; i++ {
		up := s.high[i] - s.high[i-1]
		down := s.low[i-1] - s.low[i]
		plusDM, minusDM := 0.0, 0.0
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}
		tr := trueRange(s, i)

		if i <= period {
			trS += tr
			plusS += plusDM
			minusS += minusDM
			if i < period {
				continue
			}
		} else {
			trS = trS - trS/p + tr
			plusS = plusS - plusS/p + plusDM
			minusS = minusS - minusS/p + minusDM
		}

		pdi = 100 * plusS / trS
		mdi = 100 * minusS / trS
		dx = append(dx, 100*math.Abs(pdi-mdi)/(pdi+mdi))
	}

	if len(dx) < period {
		return nil, finite(pdi), finite(mdi)
	}

	a := mean(dx[:period])
	for _, d := range dx[period:] {
		a = (a*(p-1) + d) / p
	}
	return finite(a), finite(pdi), finite(mdi)
}

func cci(s series, period int) *float64 {
	n := len(s.close)
	if n < period {
		return nil
	}
	tp := make([]float64, period)
	for j, i := 0, n-period; i < n; i, j = i+1, j+1 {
		tp[j] = (s.high[i] + s.low[i] + s.close[i]) / 3
	}
	m := mean(tp)
	mad := 0.0
	for _, v := range tp {
		mad += math.Abs(v - m)
	}
	mad /= float64(period)
	return finite((tp[period-1] - m) / (CCIConstant * mad))
}

func williamsR(s series, period int) *float64 {
	n := len(s.close)
	if n < period {
		return nil
	}
	hh, ll := s.high[n-1], s.low[n-1]
	for i := n - period; i < n; i++ {
		hh = math.Max(hh, s.high[i])
		ll = math.Min(ll, s.low[i])
	}
	return finite(-100 * (hh - s.close[n-1]) / (hh - ll))
}

func obv(s series) *float64 {
	n := len(s.close)
	if n < 2 {
		return nil
	}
	total := 0.0
	for i := 1; i < n; i++ {
		switch {
		case s.close[i] > s.close[i-1]:
			total += s.volume[i]
		case s.close[i] < s.close[i-1]:
			total -= s.volume[i]
		}
	}
	return finite(total)
}
