// Package prediction scores candles and turns confident decisions into predictions
// with stop loss, take profit, sizing and an expiry.
package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	models "crypto-signal-engine/database/models_pkg"
)

// Scorer selection strategies
const (
	StrategyAuto  = "auto"
	StrategyRules = "rules"
	StrategyModel = "model"
)

// Config holds prediction engine settings
type Config struct {
	Strategy            string
	RulesVersion        string
	MinConfidence       float64
	SLATRMultiplier     float64
	TPATRMultiplier     float64
	BasePositionPct     float64
	TargetVolatilityPct float64
	MaxPositionPct      float64
	HorizonBars         int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Strategy:            StrategyAuto,
		RulesVersion:        "v1.0",
		MinConfidence:       70,
		SLATRMultiplier:     1.5,
		TPATRMultiplier:     2.25,
		BasePositionPct:     5,
		TargetVolatilityPct: 2,
		MaxPositionPct:      10,
		HorizonBars:         24,
	}
}

// Input is one evaluation request
type Input struct {
	Candle     *models.Candle
	Indicators models.IndicatorValues
	Context    *models.MarketContext
	History    []models.Candle // window ending at Candle, oldest first
}

// Engine evaluates candles with the active scorer
type Engine struct {
	cfg   Config
	rules *RuleBasedScorer
	model atomic.Pointer[LearnedModelScorer]
}

// NewEngine creates a prediction engine. The strategy is fixed for the engine's life;
// only the learned model behind it can be swapped.
func NewEngine(cfg Config) *Engine {
	switch cfg.Strategy {
	case StrategyAuto, StrategyRules, StrategyModel:
	default:
		log.Printf("⚠️ Unknown prediction strategy %q, using %s", cfg.Strategy, StrategyAuto)
		cfg.Strategy = StrategyAuto
	}
	return &Engine{
		cfg:   cfg,
		rules: NewRuleBasedScorer(cfg.RulesVersion),
	}
}

// Config returns the engine settings
func (e *Engine) Config() Config {
	return e.cfg
}

// SwapModel atomically replaces the learned model. nil removes it.
func (e *Engine) SwapModel(m *LearnedModel) {
	if m == nil {
		e.model.Store(nil)
		return
	}
	e.model.Store(NewLearnedModelScorer(m))
	log.Printf("🧠 Learned model %s active", m.Version)
}

// RulesVersion returns the model version the rule scorer stamps
func (e *Engine) RulesVersion() string {
	return e.rules.Version()
}

// ModelLoaded reports whether a learned model is held, whatever the strategy
func (e *Engine) ModelLoaded() bool {
	return e.model.Load() != nil
}

// Scorer returns the scorer the next evaluation will use
func (e *Engine) Scorer() Scorer {
	if e.cfg.Strategy == StrategyRules {
		return e.rules
	}
	if m := e.model.Load(); m != nil {
		return m
	}
	return e.rules
}

// Evaluate scores the input and builds a PENDING prediction. Benign outcomes
// (ErrInsufficientFeatures, ErrBelowConfidenceThreshold) return a nil prediction.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*models.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	features := NewFeatures(in.Candle, in.Indicators, in.Context, in.History)
	scorer := e.Scorer()

	decision, err := scorer.Score(features)
	if err != nil {
		return nil, err
	}

	if decision.Direction == models.DirectionNeutral || decision.Confidence < e.cfg.MinConfidence {
		return nil, fmt.Errorf("%w: %s %.1f < %.1f", ErrBelowConfidenceThreshold,
			decision.Direction, decision.Confidence, e.cfg.MinConfidence)
	}

	atr := *features.ATR
	if atr <= 0 {
		return nil, fmt.Errorf("%w: non-positive atr", ErrInsufficientFeatures)
	}

	entry := in.Candle.Close
	levels := ComputeExitLevels(decision.Direction, entry, atr, e.cfg.SLATRMultiplier, e.cfg.TPATRMultiplier)

	horizon := Horizon(in.Candle.Timeframe, e.cfg.HorizonBars)
	expiration := in.Candle.CloseTime + horizon.Milliseconds()

	snapshot, err := features.Marshal()
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(decision.Reasons)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}

	p := &models.Prediction{
		CandleID:                in.Candle.ID,
		Symbol:                  in.Candle.Symbol,
		Timeframe:               in.Candle.Timeframe,
		PredictionType:          decision.Direction,
		ConfidenceScore:         decision.Confidence,
		EntryPrice:              entry,
		SuggestedStopLoss:       levels.StopLoss,
		SuggestedTakeProfit:     levels.TakeProfit,
		StopLossPercentage:      levels.StopLossPct,
		TakeProfitPercentage:    levels.TakeProfitPct,
		RiskRewardRatio:         levels.RiskReward,
		PositionSizeRecommended: PositionSize(decision.Confidence, levels.ATRPercent, e.cfg.BasePositionPct, e.cfg.TargetVolatilityPct, e.cfg.MaxPositionPct),
		MaxPositionSize:         e.cfg.MaxPositionPct,
		ModelVersion:            scorer.Version(),
		ModelType:               scorer.Type(),
		FeaturesUsed:            snapshot,
		PredictionTime:          in.Candle.CloseTime,
		ExpirationTime:          &expiration,
		TimeHorizonHours:        HorizonHours(horizon),
		Status:                  models.StatusPending,
		Priority:                PriorityFor(decision.Confidence),
		Tags:                    tags,
		CreatedAt:               time.Now(),
	}
	if in.Context != nil && in.Context.ID > 0 {
		id := in.Context.ID
		p.MarketContextID = &id
	}
	return p, nil
}
