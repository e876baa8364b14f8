package app

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/candles"
	"crypto-signal-engine/database/dbtest"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/signals"
	"crypto-signal-engine/database/types"
	"crypto-signal-engine/market"
	"crypto-signal-engine/metrics"
	"crypto-signal-engine/prediction"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// staticContext always serves the same snapshot
type staticContext struct {
	mc *models.MarketContext
}

func (s staticContext) Current(ctx context.Context) *models.MarketContext {
	return s.mc
}

// scenarioHistory is a long uptrend followed by a sharp selloff, ending right before
// the BTCUSDT 2024-01-01 00:00 UTC candle returned as entry
func scenarioHistory() ([]models.Candle, models.Candle) {
	const peak = 44800.0
	closes := make([]float64, 0, 134)
	for k := 120; k >= 1; k-- {
		closes = append(closes, peak-60*float64(k))
	}
	for k := 0; k <= 13; k++ {
		closes = append(closes, peak-100*float64(k))
	}

	entry := models.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		OpenTime:  1704067200000,
		CloseTime: 1704070800000,
		Open:      43500.50,
		High:      43800.20,
		Low:       43400.10,
		Close:     43700.80,
		Volume:    1250.5,
	}

	history := make([]models.Candle, 0, len(closes))
	prev := closes[0]
	for i, c := range closes {
		openTime := entry.OpenTime - int64(len(closes)-i)*hourMs
		history = append(history, models.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			OpenTime:  openTime,
			CloseTime: openTime + hourMs,
			Open:      prev,
			High:      math.Max(prev, c) + 15,
			Low:       math.Min(prev, c) - 15,
			Close:     c,
			Volume:    1000,
		})
		prev = c
	}
	return history, entry
}

type pipelineFixture struct {
	pipeline *Pipeline
	candles  *candles.Repository
	signals  *signals.Repository
	metrics  *metrics.Metrics
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	db := dbtest.New(t)
	cr := candles.NewRepository(db.DB())
	sr := signals.NewRepository(db.DB())
	m := metrics.NewMetrics()

	mc := market.Neutral(time.Now())
	lifecycle := NewLifecycleManager(sr, cr, NewOutcomeEvaluator(DefaultOutcomeConfig()), nil, DefaultLifecycleConfig())
	pl := NewPipeline(cr, sr, prediction.NewEngine(prediction.DefaultConfig()), staticContext{mc: mc}, lifecycle, m, DefaultPipelineConfig())
	return &pipelineFixture{pipeline: pl, candles: cr, signals: sr, metrics: m}
}

func (f *pipelineFixture) seed(t *testing.T, rows []models.Candle) {
	t.Helper()
	for i := range rows {
		if err := f.candles.Submit(context.Background(), &rows[i]); err != nil {
			t.Fatalf("seed candle %d: %v", i, err)
		}
	}
}

func TestSubmitCandleEmitsLongSignal(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	history, entry := scenarioHistory()
	f.seed(t, history)

	var announced []models.Prediction
	f.pipeline.OnSignal(func(p models.Prediction) {
		announced = append(announced, p)
	})

	res, err := f.pipeline.SubmitCandle(ctx, &entry)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Stored || res.CandleID == 0 {
		t.Fatalf("expected the candle to be stored, got %+v", res)
	}
	if !res.IndicatorsCalculated {
		t.Error("expected indicators to be calculated")
	}

	p := res.Prediction
	if p == nil {
		t.Fatal("expected a prediction")
	}
	if !models.IsLong(p.PredictionType) {
		t.Errorf("expected a long call, got %s", p.PredictionType)
	}
	if p.ConfidenceScore < 70 {
		t.Errorf("expected confidence >= 70, got %.1f", p.ConfidenceScore)
	}
	if p.EntryPrice != 43700.80 {
		t.Errorf("expected entry 43700.80, got %v", p.EntryPrice)
	}
	if !(p.SuggestedStopLoss < p.EntryPrice && p.EntryPrice < p.SuggestedTakeProfit) {
		t.Errorf("expected SL < entry < TP, got %v < %v < %v", p.SuggestedStopLoss, p.EntryPrice, p.SuggestedTakeProfit)
	}
	if p.RiskRewardRatio <= 1 {
		t.Errorf("expected risk reward > 1, got %v", p.RiskRewardRatio)
	}
	if p.Status != models.StatusPending {
		t.Errorf("expected PENDING, got %s", p.Status)
	}
	if len(announced) != 1 || announced[0].ID != p.ID {
		t.Errorf("expected one signal hook call for %d, got %v", p.ID, len(announced))
	}

	ind, err := f.candles.GetIndicators(ctx, res.CandleID)
	if err != nil || ind == nil {
		t.Fatalf("expected stored indicators, got %v (%v)", ind, err)
	}
	if ind.RSI14 == nil || *ind.RSI14 >= 30 {
		t.Errorf("expected oversold rsi, got %v", ind.RSI14)
	}

	active, total, err := f.signals.GetActiveSignals(ctx, types.ActiveSignalFilter{
		Symbol:        "BTCUSDT",
		MinConfidence: 70,
		NowMillis:     entry.CloseTime + hourMs,
		Limit:         10,
	})
	if err != nil {
		t.Fatalf("active signals: %v", err)
	}
	if total != 1 || len(active) != 1 || active[0].ID != p.ID {
		t.Fatalf("expected the new signal to be active, got %d rows", total)
	}
	if active[0].CurrentPrice == nil || *active[0].CurrentPrice != 43700.80 {
		t.Errorf("expected current price 43700.80, got %v", active[0].CurrentPrice)
	}

	if got := testutil.ToFloat64(f.metrics.PredictionsTotal.WithLabelValues(p.PredictionType)); got != 1 {
		t.Errorf("expected 1 prediction counted, got %v", got)
	}
}

func TestSubmitCandleDuplicate(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	history, entry := scenarioHistory()
	f.seed(t, history)

	first, err := f.pipeline.SubmitCandle(ctx, &entry)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	again := entry
	again.ID = 0
	res, err := f.pipeline.SubmitCandle(ctx, &again)
	if !errors.Is(err, database.ErrDuplicateCandle) {
		t.Fatalf("expected ErrDuplicateCandle, got %v", err)
	}
	if res == nil || res.Stored || !res.Duplicate {
		t.Fatalf("expected a duplicate result, got %+v", res)
	}
	if res.CandleID != first.CandleID {
		t.Errorf("expected existing candle id %d, got %d", first.CandleID, res.CandleID)
	}

	n, err := f.candles.Count(ctx, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(history)+1) {
		t.Errorf("expected %d candles, got %d", len(history)+1, n)
	}

	open, err := f.signals.GetNonTerminal(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 {
		t.Errorf("a duplicate must not emit another signal, got %d open", len(open))
	}
}

func TestSubmitCandleShortHistory(t *testing.T) {
	f := newPipelineFixture(t)

	history, _ := scenarioHistory()
	f.seed(t, history[:10])

	c := history[10]
	c.ID = 0
	res, err := f.pipeline.SubmitCandle(context.Background(), &c)
	if err != nil {
		t.Fatalf("short history must be benign, got %v", err)
	}
	if !res.Stored || res.IndicatorsCalculated || res.Prediction != nil {
		t.Errorf("expected stored without indicators or prediction, got %+v", res)
	}
	if got := testutil.ToFloat64(f.metrics.EvaluationsTotal.WithLabelValues(evalInsufficient)); got != 1 {
		t.Errorf("expected 1 insufficient evaluation, got %v", got)
	}
}

func TestSubmitCandleRejectsInvalid(t *testing.T) {
	f := newPipelineFixture(t)

	c := models.Candle{Symbol: "BTCUSDT", Timeframe: "1h", OpenTime: 0, CloseTime: hourMs, Open: 10, High: 9, Low: 8, Close: 9}
	_, err := f.pipeline.SubmitCandle(context.Background(), &c)

	var vErr *database.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if n, _ := f.candles.Count(context.Background(), "BTCUSDT"); n != 0 {
		t.Errorf("rejected candle must not be stored, got %d", n)
	}
}

func TestValidateCandle(t *testing.T) {
	valid := func() models.Candle {
		return models.Candle{
			Symbol: "BTCUSDT", Timeframe: "1h",
			OpenTime: 0, CloseTime: hourMs,
			Open: 100, High: 110, Low: 95, Close: 105, Volume: 1,
		}
	}

	tests := []struct {
		name      string
		mutate    func(*models.Candle)
		wantField string
	}{
		{name: "valid", mutate: func(c *models.Candle) {}},
		{name: "zero volume is allowed", mutate: func(c *models.Candle) { c.Volume = 0 }},
		{name: "empty symbol", mutate: func(c *models.Candle) { c.Symbol = "" }, wantField: "symbol"},
		{name: "lower case symbol", mutate: func(c *models.Candle) { c.Symbol = "btcusdt" }, wantField: "symbol"},
		{name: "symbol with separator", mutate: func(c *models.Candle) { c.Symbol = "BTC-USDT" }, wantField: "symbol"},
		{name: "unknown timeframe", mutate: func(c *models.Candle) { c.Timeframe = "7m" }, wantField: "timeframe"},
		{name: "zero open", mutate: func(c *models.Candle) { c.Open = 0 }, wantField: "open"},
		{name: "negative low", mutate: func(c *models.Candle) { c.Low = -1 }, wantField: "low"},
		{name: "high below low", mutate: func(c *models.Candle) { c.High = 94 }, wantField: "high"},
		{name: "open above high", mutate: func(c *models.Candle) { c.Open = 111 }, wantField: "open"},
		{name: "close below low", mutate: func(c *models.Candle) { c.Close = 94 }, wantField: "close"},
		{name: "negative volume", mutate: func(c *models.Candle) { c.Volume = -1 }, wantField: "volume"},
		{name: "close before open", mutate: func(c *models.Candle) { c.CloseTime = 0 }, wantField: "close_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := ValidateCandle(&c)

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			var vErr *database.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if vErr.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, vErr.Field)
			}
		})
	}
}
