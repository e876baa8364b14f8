package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/analytics"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/signals"
	"crypto-signal-engine/prediction"
)

// ModelArchitecture describes learned models in their performance record
const ModelArchitecture = "multinomial logistic regression"

// RetrainConfig holds scheduled training settings
type RetrainConfig struct {
	Enabled  bool
	Hour     int // UTC
	ModelDir string
}

// RetrainScheduler trains a new model once a day and on demand
type RetrainScheduler struct {
	signals   *signals.Repository
	analytics *analytics.Repository
	engine    *prediction.Engine
	trainer   *prediction.Trainer
	cfg       RetrainConfig

	running sync.Mutex
	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	now     func() time.Time
}

// NewRetrainScheduler creates a retrain scheduler
func NewRetrainScheduler(sig *signals.Repository, an *analytics.Repository, engine *prediction.Engine, trainer *prediction.Trainer, cfg RetrainConfig) *RetrainScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &RetrainScheduler{
		ctx:       ctx,
		cancel:    cancel,
		signals:   sig,
		analytics: an,
		engine:    engine,
		trainer:   trainer,
		cfg:       cfg,
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// NextRun returns the next occurrence of hour:00 UTC strictly after now
func NextRun(now time.Time, hour int) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// Start runs the daily schedule until Stop. It returns immediately when disabled.
func (rs *RetrainScheduler) Start() {
	if !rs.started.CompareAndSwap(false, true) {
		return
	}
	defer close(rs.done)
	if !rs.cfg.Enabled {
		log.Println("ℹ️  Automatic retraining DISABLED")
		return
	}

	ctx := rs.ctx
	log.Printf("🧠 Retrain Scheduler started (daily at %02d:00 UTC)", rs.cfg.Hour)
	for {
		wait := NextRun(rs.now(), rs.cfg.Hour).Sub(rs.now())
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			if _, err := rs.Retrain(ctx); err != nil {
				log.Printf("⚠️ Scheduled retraining skipped: %v", err)
			}
		case <-ctx.Done():
			timer.Stop()
			log.Println("🧠 Retrain Scheduler stopped")
			return
		}
	}
}

// Stop cancels the schedule and any running training, then waits for Start to return
func (rs *RetrainScheduler) Stop() {
	rs.cancel()
	if rs.started.Load() {
		<-rs.done
	}
}

// Retrain trains on every resolved prediction, writes the artifact, records and
// activates the model, and swaps it into the engine
func (rs *RetrainScheduler) Retrain(ctx context.Context) (*models.ModelPerformance, error) {
	if !rs.running.TryLock() {
		return nil, prediction.ErrRetrainInProgress
	}
	defer rs.running.Unlock()

	rows, err := rs.signals.GetResolvedSamples(ctx, database.TrainingMaxRows)
	if err != nil {
		return nil, fmt.Errorf("load training samples: %w", err)
	}

	trainedAt := rs.now().UTC()
	version := "m" + trainedAt.Format("20060102150405")
	log.Printf("🧠 Training model %s on %d resolved predictions...", version, len(rows))

	model, report, err := rs.trainer.Train(rows, version)
	if err != nil {
		return nil, err
	}

	path := prediction.ArtifactPath(rs.cfg.ModelDir, version)
	if err := model.Save(path); err != nil {
		return nil, fmt.Errorf("save artifact: %w", err)
	}

	metrics, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	record := &models.ModelPerformance{
		ModelVersion:            version,
		ModelType:               models.ModelTypeLearned,
		ModelArchitecture:       ModelArchitecture,
		ArtifactPath:            path,
		TrainingDate:            trainedAt,
		DatasetSize:             report.Samples,
		TrainingDurationSeconds: int(report.Duration.Seconds()),
		Accuracy:                &report.Accuracy,
		PrecisionScore:          &report.Precision,
		RecallScore:             &report.Recall,
		F1Score:                 &report.F1,
		ValidationMetrics:       metrics,
		PerformanceTrend:        models.TrendUnknown,
	}
	if err := rs.analytics.SaveModel(ctx, record); err != nil {
		return nil, err
	}
	if err := rs.analytics.ActivateModel(ctx, version); err != nil {
		return nil, err
	}
	rs.engine.SwapModel(model)

	log.Printf("✅ Model %s trained: accuracy %.1f%%, F1 %.1f%% (%d samples, %s)",
		version, report.Accuracy, report.F1, report.Samples, report.Duration.Round(time.Millisecond))
	return rs.analytics.GetModel(ctx, version)
}

// LoadActiveModel swaps the active learned model into the engine. Missing or corrupt
// artifacts leave the engine on the rule-based scorer.
func LoadActiveModel(ctx context.Context, an *analytics.Repository, engine *prediction.Engine) error {
	active, err := an.GetActiveModel(ctx)
	if err != nil {
		return err
	}
	if active == nil || active.ModelType != models.ModelTypeLearned || active.ArtifactPath == "" {
		return prediction.ErrModelUnavailable
	}

	model, err := prediction.LoadModel(active.ArtifactPath)
	if err != nil {
		return fmt.Errorf("%w: %v", prediction.ErrModelUnavailable, err)
	}
	engine.SwapModel(model)
	return nil
}
