package app

import (
	"math"
	"testing"

	models "crypto-signal-engine/database/models_pkg"
)

const hourMs = int64(3600000)

func bar(i int, high, low, close float64) models.Candle {
	open := int64(i) * hourMs
	return models.Candle{
		Symbol: "BTCUSDT", Timeframe: "1h",
		OpenTime: open, CloseTime: open + hourMs,
		Open: close, High: high, Low: low, Close: close, Volume: 10,
	}
}

func longPrediction() *models.Prediction {
	return &models.Prediction{
		ID: 1, Symbol: "BTCUSDT", Timeframe: "1h",
		PredictionType:       models.DirectionLong,
		EntryPrice:           100,
		SuggestedStopLoss:    97,
		SuggestedTakeProfit:  104.5,
		TakeProfitPercentage: 4.5,
		PredictionTime:       0,
	}
}

func shortPrediction() *models.Prediction {
	return &models.Prediction{
		ID: 2, Symbol: "BTCUSDT", Timeframe: "1h",
		PredictionType:       models.DirectionShort,
		EntryPrice:           100,
		SuggestedStopLoss:    103,
		SuggestedTakeProfit:  95.5,
		TakeProfitPercentage: 4.5,
	}
}

func TestOutcomeEvaluator(t *testing.T) {
	tests := []struct {
		name        string
		cfg         func(*OutcomeConfig)
		prediction  *models.Prediction
		path        []models.Candle
		res         Resolution
		wantOutcome string
		wantReason  string
		wantExit    float64
		wantPnL     float64
	}{
		{
			name:        "take profit",
			prediction:  longPrediction(),
			path:        []models.Candle{bar(0, 102, 99, 101), bar(1, 105, 100, 104)},
			wantOutcome: models.OutcomeWin,
			wantReason:  models.ExitTakeProfit,
			wantExit:    104.5,
			wantPnL:     4.5,
		},
		{
			name:        "stop loss",
			prediction:  longPrediction(),
			path:        []models.Candle{bar(0, 101, 96, 97.5), bar(1, 106, 100, 105)},
			wantOutcome: models.OutcomeLoss,
			wantReason:  models.ExitStopLoss,
			wantExit:    97,
			wantPnL:     -3,
		},
		{
			name:        "both levels in one bar fill the stop first",
			prediction:  longPrediction(),
			path:        []models.Candle{bar(0, 105, 96, 100)},
			wantOutcome: models.OutcomeLoss,
			wantReason:  models.ExitStopLoss,
			wantExit:    97,
			wantPnL:     -3,
		},
		{
			name:       "finer candles settle the tie",
			prediction: longPrediction(),
			path:       []models.Candle{bar(0, 105, 96, 100)},
			res: Resolution{Fine: []models.Candle{
				{OpenTime: 0, CloseTime: 60000, High: 105, Low: 99},
				{OpenTime: 60000, CloseTime: 120000, High: 100, Low: 96},
			}},
			wantOutcome: models.OutcomeWin,
			wantReason:  models.ExitTakeProfit,
			wantExit:    104.5,
			wantPnL:     4.5,
		},
		{
			name:        "expiry is neutral",
			prediction:  longPrediction(),
			path:        []models.Candle{bar(0, 101, 99, 100.5)},
			res:         Resolution{Reason: models.ExitTimeout},
			wantOutcome: models.OutcomeNeutral,
			wantReason:  models.ExitTimeout,
			wantExit:    100.5,
			wantPnL:     0.5,
		},
		{
			name:        "expiry graded by move when configured",
			cfg:         func(c *OutcomeConfig) { c.ExpiryNeutral = false },
			prediction:  longPrediction(),
			path:        []models.Candle{bar(0, 101, 99, 100.5)},
			res:         Resolution{Reason: models.ExitTimeout},
			wantOutcome: models.OutcomePartialWin,
			wantReason:  models.ExitTimeout,
			wantExit:    100.5,
			wantPnL:     0.5,
		},
		{
			name:        "reversal at a loss",
			prediction:  longPrediction(),
			path:        []models.Candle{bar(0, 101, 98, 98.5)},
			res:         Resolution{Reason: models.ExitReversal, ExitPrice: 98.5},
			wantOutcome: models.OutcomePartialLoss,
			wantReason:  models.ExitReversal,
			wantExit:    98.5,
			wantPnL:     -1.5,
		},
		{
			name:        "reversal inside the flat band",
			prediction:  longPrediction(),
			path:        []models.Candle{bar(0, 101, 99, 100.05)},
			res:         Resolution{Reason: models.ExitReversal, ExitPrice: 100.05},
			wantOutcome: models.OutcomeNeutral,
			wantReason:  models.ExitReversal,
			wantExit:    100.05,
			wantPnL:     0.05,
		},
		{
			name:        "short take profit",
			prediction:  shortPrediction(),
			path:        []models.Candle{bar(0, 101, 95, 96)},
			wantOutcome: models.OutcomeWin,
			wantReason:  models.ExitTakeProfit,
			wantExit:    95.5,
			wantPnL:     4.5,
		},
		{
			name:        "short stop loss",
			prediction:  shortPrediction(),
			path:        []models.Candle{bar(0, 103.5, 99, 103)},
			wantOutcome: models.OutcomeLoss,
			wantReason:  models.ExitStopLoss,
			wantExit:    103,
			wantPnL:     -3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultOutcomeConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			r := NewOutcomeEvaluator(cfg).Evaluate(tt.prediction, tt.path, tt.res)

			if r.ActualOutcome != tt.wantOutcome {
				t.Errorf("expected outcome %s, got %s", tt.wantOutcome, r.ActualOutcome)
			}
			if r.ExitReason != tt.wantReason {
				t.Errorf("expected reason %s, got %s", tt.wantReason, r.ExitReason)
			}
			if math.Abs(r.ExitPrice-tt.wantExit) > 1e-9 {
				t.Errorf("expected exit %v, got %v", tt.wantExit, r.ExitPrice)
			}
			if math.Abs(r.ProfitLossPercentage-tt.wantPnL) > 1e-9 {
				t.Errorf("expected P&L %v%%, got %v%%", tt.wantPnL, r.ProfitLossPercentage)
			}
			if r.TradeQualityScore < 0 || r.TradeQualityScore > 100 {
				t.Errorf("quality score out of range: %v", r.TradeQualityScore)
			}
		})
	}
}

func TestOutcomeEvaluatorDetails(t *testing.T) {
	path := []models.Candle{bar(0, 102, 99, 101), bar(1, 105, 100, 104), bar(2, 110, 90, 95)}
	r := NewOutcomeEvaluator(DefaultOutcomeConfig()).Evaluate(longPrediction(), path, Resolution{MarketRegime: models.RegimeBull})

	if !r.HitTakeProfit || r.HitStopLoss {
		t.Fatalf("expected only take profit, got sl=%v tp=%v", r.HitStopLoss, r.HitTakeProfit)
	}
	if *r.HighestPrice != 105 || *r.LowestPrice != 99 {
		t.Errorf("extremes must stop at the exit bar, got %v/%v", *r.HighestPrice, *r.LowestPrice)
	}
	if *r.MaxFavorableExcursion != 5 || *r.MaxAdverseExcursion != -1 {
		t.Errorf("expected MFE 5 / MAE -1, got %v/%v", *r.MaxFavorableExcursion, *r.MaxAdverseExcursion)
	}
	if r.ResultTime != 2*hourMs || r.DurationMinutes != 120 || r.DurationHours != 2 {
		t.Errorf("unexpected timing: result %d, %d min, %v h", r.ResultTime, r.DurationMinutes, r.DurationHours)
	}
	if math.Abs(r.FeesPaid-0.2045) > 1e-9 {
		t.Errorf("expected fees 0.2045, got %v", r.FeesPaid)
	}
	if math.Abs(r.NetProfitLoss-4.1955) > 1e-9 {
		t.Errorf("expected net 4.1955, got %v", r.NetProfitLoss)
	}
	if r.TradeQualityScore != 97 {
		t.Errorf("expected quality 97, got %v", r.TradeQualityScore)
	}
	if r.MarketConditionDuringTrade != models.RegimeBull {
		t.Errorf("expected regime to be carried, got %q", r.MarketConditionDuringTrade)
	}
}

func TestOutcomeEvaluatorIsDeterministic(t *testing.T) {
	path := []models.Candle{bar(0, 101, 99, 100), bar(1, 103, 98, 102)}
	e := NewOutcomeEvaluator(DefaultOutcomeConfig())
	res := Resolution{Reason: models.ExitTimeout}

	a := e.Evaluate(longPrediction(), path, res)
	b := e.Evaluate(longPrediction(), path, res)
	if a.ActualOutcome != b.ActualOutcome || a.ProfitLossPercentage != b.ProfitLossPercentage || a.TradeQualityScore != b.TradeQualityScore {
		t.Errorf("evaluation is not deterministic: %+v vs %+v", a, b)
	}
}
