package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/candles"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/signals"
)

// LifecycleConfig holds signal supervision settings
type LifecycleConfig struct {
	MonitorInterval time.Duration
	FineTimeframe   string // consulted when one bar touches both levels; empty disables
}

// DefaultLifecycleConfig returns the production defaults
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		MonitorInterval: time.Minute,
		FineTimeframe:   "1m",
	}
}

// ResolutionHook is called after a prediction reaches EXECUTED or EXPIRED
type ResolutionHook func(p models.Prediction, r models.Result)

// RegimeSource reports the current market regime for results
type RegimeSource interface {
	Current(ctx context.Context) *models.MarketContext
}

// LifecycleManager owns every status change of a prediction after it is stored.
// Transitions are compare-and-set so concurrent resolvers cannot both win.
type LifecycleManager struct {
	signals   *signals.Repository
	candles   *candles.Repository
	evaluator *OutcomeEvaluator
	regime    RegimeSource
	cfg       LifecycleConfig

	mu    sync.RWMutex
	hooks []ResolutionHook
}

// NewLifecycleManager creates a lifecycle manager. regime may be nil.
func NewLifecycleManager(sig *signals.Repository, cr *candles.Repository, evaluator *OutcomeEvaluator, regime RegimeSource, cfg LifecycleConfig) *LifecycleManager {
	return &LifecycleManager{
		signals:   sig,
		candles:   cr,
		evaluator: evaluator,
		regime:    regime,
		cfg:       cfg,
	}
}

// OnResolved registers a hook for resolved predictions
func (lm *LifecycleManager) OnResolved(hook ResolutionHook) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.hooks = append(lm.hooks, hook)
}

// Check advances one non-terminal prediction: PENDING becomes MONITORING, a touched
// level executes it, and passing the expiration expires it. Returns true when resolved.
func (lm *LifecycleManager) Check(ctx context.Context, p *models.Prediction, now time.Time) (bool, error) {
	if p.Status == models.StatusPending {
		if err := lm.signals.Transition(ctx, p.ID, []string{models.StatusPending}, models.StatusMonitoring); err != nil {
			return false, err
		}
		p.Status = models.StatusMonitoring
	}

	var to int64
	if p.ExpirationTime != nil {
		to = *p.ExpirationTime - 1
	}
	path, err := lm.candles.Range(ctx, p.Symbol, p.Timeframe, p.PredictionTime, to)
	if err != nil {
		return false, fmt.Errorf("price path: %w", err)
	}

	hit := FirstHit(p, path)
	if hit.Index >= 0 {
		res := Resolution{MarketRegime: lm.currentRegime(ctx)}
		if hit.Both() {
			res.Fine = lm.fineCandles(ctx, p, path[hit.Index])
		}
		return true, lm.resolve(ctx, p, models.StatusExecuted, lm.evaluator.Evaluate(p, path, res))
	}

	if p.ExpirationTime != nil && now.UnixMilli() > *p.ExpirationTime {
		res := Resolution{
			Reason:       models.ExitTimeout,
			ExitTime:     *p.ExpirationTime,
			MarketRegime: lm.currentRegime(ctx),
		}
		return true, lm.resolve(ctx, p, models.StatusExpired, lm.evaluator.Evaluate(p, path, res))
	}

	return false, nil
}

// Supersede executes older opposite-side predictions on the same symbol and timeframe
// at the new prediction's entry price. Returns how many were closed.
func (lm *LifecycleManager) Supersede(ctx context.Context, newer *models.Prediction) (int, error) {
	older, err := lm.signals.GetOpposing(ctx, newer.Symbol, newer.Timeframe, newer.PredictionType, newer.ID)
	if err != nil {
		return 0, err
	}

	closed := 0
	for i := range older {
		p := &older[i]
		if p.Status == models.StatusPending {
			err := lm.signals.Transition(ctx, p.ID, []string{models.StatusPending}, models.StatusMonitoring)
			if err != nil && !errors.Is(err, database.ErrTransitionConflict) {
				return closed, err
			}
		}

		path, err := lm.candles.Range(ctx, p.Symbol, p.Timeframe, p.PredictionTime, newer.PredictionTime-1)
		if err != nil {
			return closed, fmt.Errorf("price path: %w", err)
		}

		result := lm.evaluator.Evaluate(p, path, Resolution{
			Reason:       models.ExitReversal,
			ExitPrice:    newer.EntryPrice,
			ExitTime:     newer.PredictionTime,
			MarketRegime: lm.currentRegime(ctx),
		})
		if err := lm.resolve(ctx, p, models.StatusExecuted, result); err != nil {
			if errors.Is(err, database.ErrTransitionConflict) {
				continue
			}
			return closed, err
		}
		closed++
		log.Printf("🔁 Prediction %d (%s) superseded by %d (%s)", p.ID, p.PredictionType, newer.ID, newer.PredictionType)
	}
	return closed, nil
}

// Cancel moves a non-terminal prediction to CANCELLED. No result is recorded.
func (lm *LifecycleManager) Cancel(ctx context.Context, id int64, reason string) (*models.Prediction, error) {
	p, err := lm.signals.GetPrediction(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, database.NewNotFoundErrorWithID("prediction", id)
	}

	if err := lm.signals.Cancel(ctx, id, reason); err != nil {
		return nil, err
	}
	log.Printf("🚫 Prediction %d cancelled: %s", id, reason)
	return lm.signals.GetPrediction(ctx, id)
}

func (lm *LifecycleManager) resolve(ctx context.Context, p *models.Prediction, to string, result *models.Result) error {
	from := []string{models.StatusMonitoring}
	if err := lm.signals.Resolve(ctx, p.ID, from, to, result); err != nil {
		return err
	}
	p.Status = to

	log.Printf("🏁 Prediction %d %s %s -> %s (%s, %.2f%%)",
		p.ID, p.Symbol, p.PredictionType, to, result.ActualOutcome, result.ProfitLossPercentage)

	lm.mu.RLock()
	hooks := lm.hooks
	lm.mu.RUnlock()
	for _, hook := range hooks {
		hook(*p, *result)
	}
	return nil
}

// fineCandles loads finer bars inside the interval of one coarse bar
func (lm *LifecycleManager) fineCandles(ctx context.Context, p *models.Prediction, coarse models.Candle) []models.Candle {
	if lm.cfg.FineTimeframe == "" || lm.cfg.FineTimeframe == p.Timeframe {
		return nil
	}
	fine, err := lm.candles.Range(ctx, p.Symbol, lm.cfg.FineTimeframe, coarse.OpenTime, coarse.CloseTime-1)
	if err != nil {
		log.Printf("⚠️ Fine candles unavailable for prediction %d: %v", p.ID, err)
		return nil
	}
	return fine
}

func (lm *LifecycleManager) currentRegime(ctx context.Context) string {
	if lm.regime == nil {
		return ""
	}
	if mc := lm.regime.Current(ctx); mc != nil {
		return mc.MarketRegime
	}
	return ""
}
