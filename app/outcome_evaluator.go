package app

import (
	"math"

	models "crypto-signal-engine/database/models_pkg"
)

// OutcomeConfig holds trade cost and classification settings
type OutcomeConfig struct {
	FeeRatePct    float64 // per side
	SlippagePct   float64 // per side
	FlatBandPct   float64 // |P&L| at or below this is NEUTRAL
	ExpiryNeutral bool    // expired signals are always NEUTRAL
}

// DefaultOutcomeConfig returns the production defaults
func DefaultOutcomeConfig() OutcomeConfig {
	return OutcomeConfig{
		FeeRatePct:    0.1,
		SlippagePct:   0.05,
		FlatBandPct:   0.1,
		ExpiryNeutral: true,
	}
}

// Resolution describes why a prediction is being closed when no level was hit
type Resolution struct {
	Reason       string          // models.ExitTimeout or models.ExitReversal
	ExitPrice    float64         // 0 means the last observed close
	ExitTime     int64           // epoch ms; 0 means the last observed close time
	Fine         []models.Candle // finer candles covering a bar that touched both levels
	MarketRegime string
}

// LevelHit is the first bar of a price path that touched a level
type LevelHit struct {
	Index      int // -1 when no level was touched
	StopLoss   bool
	TakeProfit bool
}

// Both reports whether the bar touched both levels
func (h LevelHit) Both() bool {
	return h.StopLoss && h.TakeProfit
}

// FirstHit scans path in order and returns the first bar touching stop loss or take profit
func FirstHit(p *models.Prediction, path []models.Candle) LevelHit {
	long := models.IsLong(p.PredictionType)
	for i, c := range path {
		var sl, tp bool
		if long {
			sl = c.Low <= p.SuggestedStopLoss
			tp = c.High >= p.SuggestedTakeProfit
		} else {
			sl = c.High >= p.SuggestedStopLoss
			tp = c.Low <= p.SuggestedTakeProfit
		}
		if sl || tp {
			return LevelHit{Index: i, StopLoss: sl, TakeProfit: tp}
		}
	}
	return LevelHit{Index: -1}
}

// OutcomeEvaluator turns a prediction and its realized price path into a Result
type OutcomeEvaluator struct {
	cfg OutcomeConfig
}

// NewOutcomeEvaluator creates an evaluator
func NewOutcomeEvaluator(cfg OutcomeConfig) *OutcomeEvaluator {
	return &OutcomeEvaluator{cfg: cfg}
}

// Evaluate classifies the outcome of p over path (oldest first). A bar touching both
// levels is settled by res.Fine when the finer candles separate them, otherwise the
// stop loss is assumed to have filled first.
func (e *OutcomeEvaluator) Evaluate(p *models.Prediction, path []models.Candle, res Resolution) *models.Result {
	entry := p.EntryPrice
	sign := 1.0
	if models.IsShort(p.PredictionType) {
		sign = -1
	}

	hit := FirstHit(p, path)
	scanned := path
	if hit.Index >= 0 {
		scanned = path[:hit.Index+1]
	}

	r := &models.Result{
		EntryPrice:                 entry,
		MarketConditionDuringTrade: res.MarketRegime,
	}

	exitTime := p.PredictionTime
	if n := len(scanned); n > 0 {
		exitTime = scanned[n-1].CloseTime
	}

	if hit.Index >= 0 {
		stopFirst := hit.StopLoss
		if hit.Both() {
			if fine := FirstHit(p, res.Fine); fine.Index >= 0 && !fine.Both() {
				stopFirst = fine.StopLoss
				exitTime = res.Fine[fine.Index].CloseTime
			}
		}

		if stopFirst {
			r.ExitPrice = p.SuggestedStopLoss
			r.HitStopLoss = true
			r.ExitReason = models.ExitStopLoss
			r.ActualOutcome = models.OutcomeLoss
		} else {
			r.ExitPrice = p.SuggestedTakeProfit
			r.HitTakeProfit = true
			r.ExitReason = models.ExitTakeProfit
			r.ActualOutcome = models.OutcomeWin
		}
	} else {
		r.ExitReason = res.Reason
		if r.ExitReason == "" {
			r.ExitReason = models.ExitOther
		}

		r.ExitPrice = res.ExitPrice
		if r.ExitPrice <= 0 {
			r.ExitPrice = entry
			if n := len(path); n > 0 {
				r.ExitPrice = path[n-1].Close
			}
		}
		if res.ExitTime > 0 {
			exitTime = res.ExitTime
		}
	}

	r.ProfitLossAbs = (r.ExitPrice - entry) * sign
	if entry > 0 {
		r.ProfitLossPercentage = r.ProfitLossAbs / entry * 100
	}

	if hit.Index < 0 {
		r.ActualOutcome = e.classify(r.ProfitLossPercentage, r.ExitReason)
	}

	if len(scanned) > 0 && entry > 0 {
		highest, lowest := scanned[0].High, scanned[0].Low
		for _, c := range scanned[1:] {
			highest = math.Max(highest, c.High)
			lowest = math.Min(lowest, c.Low)
		}
		r.HighestPrice = &highest
		r.LowestPrice = &lowest

		var mfe, mae float64
		if sign > 0 {
			mfe = (highest - entry) / entry * 100
			mae = (lowest - entry) / entry * 100
		} else {
			mfe = (entry - lowest) / entry * 100
			mae = (entry - highest) / entry * 100
		}
		r.MaxFavorableExcursion = &mfe
		r.MaxAdverseExcursion = &mae

		volatility := (highest - lowest) / entry * 100
		r.VolatilityDuringTrade = &volatility
	}

	r.FeesPaid = (entry + r.ExitPrice) * e.cfg.FeeRatePct / 100
	r.Slippage = 2 * e.cfg.SlippagePct
	if entry > 0 {
		r.NetProfitLoss = r.ProfitLossPercentage - r.FeesPaid/entry*100 - r.Slippage
	}

	if exitTime < p.PredictionTime {
		exitTime = p.PredictionTime
	}
	r.ResultTime = exitTime
	elapsed := exitTime - p.PredictionTime
	r.DurationMinutes = int(elapsed / 60000)
	r.DurationHours = float64(elapsed) / 3600000

	r.TradeQualityScore = qualityScore(r, p.TakeProfitPercentage)
	return r
}

func (e *OutcomeEvaluator) classify(pnl float64, reason string) string {
	if reason == models.ExitTimeout && e.cfg.ExpiryNeutral {
		return models.OutcomeNeutral
	}
	switch {
	case pnl > e.cfg.FlatBandPct:
		return models.OutcomePartialWin
	case pnl < -e.cfg.FlatBandPct:
		return models.OutcomePartialLoss
	default:
		return models.OutcomeNeutral
	}
}

// qualityScore grades a trade 0-100: 70% from P&L relative to the target distance,
// 30% from how much of the favorable excursion was kept
func qualityScore(r *models.Result, targetPct float64) float64 {
	if targetPct <= 0 {
		targetPct = 1
	}
	pnlScore := clampScore(50 + 50*r.ProfitLossPercentage/targetPct)

	capture := 0.0
	if r.MaxFavorableExcursion != nil && *r.MaxFavorableExcursion > 0 && r.ProfitLossPercentage > 0 {
		capture = clampScore(r.ProfitLossPercentage / *r.MaxFavorableExcursion * 100)
	}

	return math.Round((0.7*pnlScore+0.3*capture)*100) / 100
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
