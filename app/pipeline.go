package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/candles"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/signals"
	"crypto-signal-engine/database/types"
	"crypto-signal-engine/indicators"
	"crypto-signal-engine/metrics"
	"crypto-signal-engine/prediction"
)

// Evaluation outcomes reported to metrics
const (
	evalSignal       = "signal"
	evalBelow        = "below_threshold"
	evalInsufficient = "insufficient"
	evalFailed       = "failed"
)

// PipelineConfig holds candle history bounds
type PipelineConfig struct {
	MinCandles int
	MaxCandles int
}

// DefaultPipelineConfig returns the production defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinCandles: database.DefaultMinCandlesForIndicators,
		MaxCandles: database.DefaultMaxCandlesHistory,
	}
}

// SignalHook is called after a new prediction is stored
type SignalHook func(p models.Prediction)

// Pipeline runs a submitted candle through storage, indicators, context and scoring
type Pipeline struct {
	candles   *candles.Repository
	signals   *signals.Repository
	engine    *prediction.Engine
	context   RegimeSource
	lifecycle *LifecycleManager
	metrics   *metrics.Metrics
	cfg       PipelineConfig

	mu    sync.RWMutex
	hooks []SignalHook
}

// NewPipeline creates the submit_candle pipeline. marketContext and m may be nil.
func NewPipeline(cr *candles.Repository, sig *signals.Repository, engine *prediction.Engine, marketContext RegimeSource, lifecycle *LifecycleManager, m *metrics.Metrics, cfg PipelineConfig) *Pipeline {
	if cfg.MinCandles <= 0 {
		cfg.MinCandles = database.DefaultMinCandlesForIndicators
	}
	if cfg.MaxCandles < cfg.MinCandles {
		cfg.MaxCandles = database.DefaultMaxCandlesHistory
	}
	return &Pipeline{
		candles:   cr,
		signals:   sig,
		engine:    engine,
		context:   marketContext,
		lifecycle: lifecycle,
		metrics:   m,
		cfg:       cfg,
	}
}

// OnSignal registers a hook for newly stored predictions
func (pl *Pipeline) OnSignal(hook SignalHook) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.hooks = append(pl.hooks, hook)
}

// SubmitCandle validates and stores a candle, then evaluates it.
//
// A repeated (symbol, timeframe, open_time) returns database.ErrDuplicateCandle together
// with a result carrying the existing candle ID. Short history and low confidence are not
// errors: the result simply has no prediction. Failures after the candle is stored are
// logged and leave the result without indicators or prediction.
func (pl *Pipeline) SubmitCandle(ctx context.Context, c *models.Candle) (*types.SubmitResult, error) {
	start := time.Now()
	defer func() { pl.metrics.ObserveSubmit(time.Since(start)) }()

	if err := ValidateCandle(c); err != nil {
		pl.metrics.ObserveCandle("rejected")
		return nil, err
	}

	if err := pl.candles.Submit(ctx, c); err != nil {
		if errors.Is(err, database.ErrDuplicateCandle) {
			pl.metrics.ObserveCandle("duplicate")
			return &types.SubmitResult{CandleID: c.ID, Duplicate: true}, err
		}
		pl.metrics.ObserveCandle("failed")
		return nil, err
	}
	pl.metrics.ObserveCandle("stored")

	result := &types.SubmitResult{Stored: true, CandleID: c.ID}

	window, err := pl.candles.Window(ctx, c.Symbol, c.Timeframe, c.OpenTime, pl.cfg.MaxCandles, pl.cfg.MinCandles)
	if err != nil {
		if errors.Is(err, database.ErrInsufficientHistory) {
			pl.metrics.ObserveEvaluation(evalInsufficient)
			return result, nil
		}
		log.Printf("❌ Error loading window for %s %s: %v", c.Symbol, c.Timeframe, err)
		pl.metrics.ObserveEvaluation(evalFailed)
		return result, nil
	}

	values := indicators.Compute(window)
	if err := pl.candles.SaveIndicators(ctx, &models.Indicator{
		CandleID:        c.ID,
		Symbol:          c.Symbol,
		Timeframe:       c.Timeframe,
		OpenTime:        c.OpenTime,
		SchemaVersion:   indicators.SchemaVersion,
		IndicatorValues: values,
	}); err != nil {
		log.Printf("❌ Error saving indicators for candle %d: %v", c.ID, err)
		pl.metrics.ObserveEvaluation(evalFailed)
		return result, nil
	}
	result.IndicatorsCalculated = true

	var mc *models.MarketContext
	if pl.context != nil {
		mc = pl.context.Current(ctx)
		if mc != nil {
			pl.metrics.ObserveMarketContext(mc.Source)
		}
	}

	p, err := pl.engine.Evaluate(ctx, prediction.Input{
		Candle:     c,
		Indicators: values,
		Context:    mc,
		History:    window,
	})
	if err != nil {
		switch {
		case errors.Is(err, prediction.ErrBelowConfidenceThreshold):
			pl.metrics.ObserveEvaluation(evalBelow)
		case errors.Is(err, prediction.ErrInsufficientFeatures):
			pl.metrics.ObserveEvaluation(evalInsufficient)
		default:
			log.Printf("❌ Error evaluating candle %d: %v", c.ID, err)
			pl.metrics.ObserveEvaluation(evalFailed)
		}
		return result, nil
	}

	if err := pl.signals.SavePrediction(ctx, p); err != nil {
		log.Printf("❌ Error saving prediction for candle %d: %v", c.ID, err)
		pl.metrics.ObserveEvaluation(evalFailed)
		return result, nil
	}
	pl.metrics.ObserveEvaluation(evalSignal)
	pl.metrics.ObservePrediction(p.PredictionType)
	result.Prediction = p

	log.Printf("🎯 Signal %d: %s %s %s conf=%.1f entry=%.8g SL=%.8g TP=%.8g",
		p.ID, p.Symbol, p.Timeframe, p.PredictionType, p.ConfidenceScore,
		p.EntryPrice, p.SuggestedStopLoss, p.SuggestedTakeProfit)

	if pl.lifecycle != nil {
		if _, err := pl.lifecycle.Supersede(ctx, p); err != nil {
			log.Printf("⚠️ Failed to supersede older signals for %d: %v", p.ID, err)
		}
	}

	pl.mu.RLock()
	hooks := pl.hooks
	pl.mu.RUnlock()
	for _, hook := range hooks {
		hook(*p)
	}

	return result, nil
}

// ValidateCandle rejects candles that cannot be a real OHLCV bucket
func ValidateCandle(c *models.Candle) error {
	if c == nil {
		return database.NewValidationError("candle", "is required")
	}
	if c.Symbol == "" {
		return database.NewValidationError("symbol", "is required")
	}
	for _, r := range c.Symbol {
		if !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return database.NewValidationErrorWithValue("symbol", "must be upper-case alphanumeric", c.Symbol)
		}
	}
	if _, ok := prediction.TimeframeDuration(c.Timeframe); !ok {
		return database.NewValidationErrorWithValue("timeframe", "unsupported timeframe", c.Timeframe)
	}

	prices := []struct {
		field string
		value float64
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
	}
	for _, p := range prices {
		if !(p.value > 0) {
			return database.NewValidationErrorWithValue(p.field, "must be positive", p.value)
		}
	}

	if c.High < c.Low {
		return database.NewValidationErrorWithValue("high", "must not be below low", c.High)
	}
	if c.Open < c.Low || c.Open > c.High {
		return database.NewValidationErrorWithValue("open", "must lie within [low, high]", c.Open)
	}
	if c.Close < c.Low || c.Close > c.High {
		return database.NewValidationErrorWithValue("close", "must lie within [low, high]", c.Close)
	}
	if c.Volume < 0 {
		return database.NewValidationErrorWithValue("volume", "must not be negative", c.Volume)
	}
	if c.CloseTime <= c.OpenTime {
		return database.NewValidationErrorWithValue("close_time", "must be after open_time", c.CloseTime)
	}
	return nil
}
