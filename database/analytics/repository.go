package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-signal-engine/database"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles database operations for derived analytics:
// winning patterns, model performance, fold cursors, market context and webhooks
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new analytics repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ============================================================================
// Incremental Folds
// ============================================================================

// FoldFunc folds a batch of resolved predictions using the transaction-bound repository
type FoldFunc func(tx *Repository, items []types.FoldItem) error

// Fold applies the next batch of results after the named cursor.
// The aggregate writes and the cursor advance commit together, so every result is
// folded exactly once per cursor. Returns the number of results folded.
func (r *Repository) Fold(ctx context.Context, name string, limit int, apply FoldFunc) (int, error) {
	if limit <= 0 {
		limit = database.FoldBatchSize
	}

	folded := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cursor, err := loadCursor(tx, name)
		if err != nil {
			return err
		}

		var results []models.Result
		if err := tx.Where("id > ?", cursor).Order("id ASC").Limit(limit).Find(&results).Error; err != nil {
			return database.WrapDBError("FoldResults", err)
		}
		if len(results) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(results))
		for _, res := range results {
			ids = append(ids, res.PredictionID)
		}
		var preds []models.Prediction
		if err := tx.Where("id IN ?", ids).Find(&preds).Error; err != nil {
			return database.WrapDBError("FoldPredictions", err)
		}
		byID := make(map[int64]models.Prediction, len(preds))
		for _, p := range preds {
			byID[p.ID] = p
		}

		items := make([]types.FoldItem, 0, len(results))
		for _, res := range results {
			p, ok := byID[res.PredictionID]
			if !ok {
				continue
			}
			items = append(items, types.FoldItem{Result: res, Prediction: p})
		}

		if err := apply(&Repository{db: tx}, items); err != nil {
			return err
		}

		last := results[len(results)-1].ID
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_result_id", "updated_at"}),
		}).Create(&models.FoldCursor{Name: name, LastResultID: last, UpdatedAt: time.Now()}).Error; err != nil {
			return database.WrapDBError("AdvanceCursor", err)
		}

		folded = len(results)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return folded, nil
}

// GetCursor returns the last result folded under name, or 0
func (r *Repository) GetCursor(ctx context.Context, name string) (int64, error) {
	return loadCursor(r.db.WithContext(ctx), name)
}

func loadCursor(db *gorm.DB, name string) (int64, error) {
	var c models.FoldCursor
	err := db.Where("name = ?", name).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, database.WrapDBError("GetCursor", err)
	}
	return c.LastResultID, nil
}

// ============================================================================
// Winning Patterns
// ============================================================================

// GetPattern retrieves a pattern by fingerprint, or nil when absent
func (r *Repository) GetPattern(ctx context.Context, fingerprint string) (*models.WinningPattern, error) {
	var p models.WinningPattern
	err := r.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetPattern", err)
	}
	return &p, nil
}

// SavePattern inserts or updates a pattern
func (r *Repository) SavePattern(ctx context.Context, p *models.WinningPattern) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return database.WrapDBError("SavePattern", err)
	}
	return nil
}

// ListPatterns returns patterns ordered by win rate and sample size
func (r *Repository) ListPatterns(ctx context.Context, f types.PatternFilter) ([]models.WinningPattern, error) {
	query := r.db.WithContext(ctx).Model(&models.WinningPattern{})
	if f.Symbol != "" {
		query = query.Where("symbol = ?", f.Symbol)
	}
	if f.Timeframe != "" {
		query = query.Where("timeframe = ?", f.Timeframe)
	}
	if f.Strength != "" {
		query = query.Where("pattern_strength = ?", f.Strength)
	}
	if f.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if f.MinOccurrences > 0 {
		query = query.Where("occurrences >= ?", f.MinOccurrences)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var rows []models.WinningPattern
	if err := query.Order("win_rate DESC").Order("occurrences DESC").Find(&rows).Error; err != nil {
		return nil, database.WrapDBError("ListPatterns", err)
	}
	return rows, nil
}

// ============================================================================
// Model Performance
// ============================================================================

// GetActiveModel returns the currently deployed model record, or nil
func (r *Repository) GetActiveModel(ctx context.Context) (*models.ModelPerformance, error) {
	var m models.ModelPerformance
	err := r.db.WithContext(ctx).Where("is_active = ?", true).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetActiveModel", err)
	}
	return &m, nil
}

// GetModel returns the record for a model version, or nil
func (r *Repository) GetModel(ctx context.Context, version string) (*models.ModelPerformance, error) {
	var m models.ModelPerformance
	err := r.db.WithContext(ctx).Where("model_version = ?", version).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetModel", err)
	}
	return &m, nil
}

// SaveModel inserts or updates a model record
func (r *Repository) SaveModel(ctx context.Context, m *models.ModelPerformance) error {
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return database.WrapDBError("SaveModel", err)
	}
	return nil
}

// ListModels returns all model records, newest training first
func (r *Repository) ListModels(ctx context.Context) ([]models.ModelPerformance, error) {
	var rows []models.ModelPerformance
	if err := r.db.WithContext(ctx).Order("training_date DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, database.WrapDBError("ListModels", err)
	}
	return rows, nil
}

// ActivateModel makes version the single active model, retiring the previous one
func (r *Repository) ActivateModel(ctx context.Context, version string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.ModelPerformance
		err := tx.Where("model_version = ?", version).First(&target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.NewNotFoundErrorWithID("model", version)
		}
		if err != nil {
			return database.WrapDBError("ActivateModel", err)
		}

		if err := tx.Model(&models.ModelPerformance{}).
			Where("is_active = ? AND model_version <> ?", true, version).
			Updates(map[string]interface{}{"is_active": false, "retirement_date": now}).Error; err != nil {
			return database.WrapDBError("RetireModel", err)
		}

		if err := tx.Model(&models.ModelPerformance{}).
			Where("id = ?", target.ID).
			Updates(map[string]interface{}{"is_active": true, "deployment_date": now, "retirement_date": nil}).Error; err != nil {
			return database.WrapDBError("ActivateModel", err)
		}
		return nil
	})
}

// ============================================================================
// Market Context
// ============================================================================

// SaveMarketContext persists a context snapshot
func (r *Repository) SaveMarketContext(ctx context.Context, mc *models.MarketContext) error {
	if err := r.db.WithContext(ctx).Create(mc).Error; err != nil {
		return database.WrapDBError("SaveMarketContext", err)
	}
	return nil
}

// GetLatestMarketContext returns the newest persisted snapshot, or nil
func (r *Repository) GetLatestMarketContext(ctx context.Context) (*models.MarketContext, error) {
	var mc models.MarketContext
	err := r.db.WithContext(ctx).Order("timestamp DESC").First(&mc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetLatestMarketContext", err)
	}
	return &mc, nil
}

// ============================================================================
// Signal Webhooks
// ============================================================================

// GetActiveWebhooks returns all enabled webhooks
func (r *Repository) GetActiveWebhooks(ctx context.Context) ([]models.SignalWebhook, error) {
	var hooks []models.SignalWebhook
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&hooks).Error; err != nil {
		return nil, database.WrapDBError("GetActiveWebhooks", err)
	}
	return hooks, nil
}

// GetWebhooks returns all webhooks
func (r *Repository) GetWebhooks(ctx context.Context) ([]models.SignalWebhook, error) {
	var hooks []models.SignalWebhook
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&hooks).Error; err != nil {
		return nil, database.WrapDBError("GetWebhooks", err)
	}
	return hooks, nil
}

// CreateWebhook stores a new webhook
func (r *Repository) CreateWebhook(ctx context.Context, hook *models.SignalWebhook) error {
	if err := r.db.WithContext(ctx).Create(hook).Error; err != nil {
		return database.WrapDBError("CreateWebhook", err)
	}
	return nil
}

// DeleteWebhook removes a webhook
func (r *Repository) DeleteWebhook(ctx context.Context, id int) error {
	res := r.db.WithContext(ctx).Delete(&models.SignalWebhook{}, id)
	if res.Error != nil {
		return database.WrapDBError("DeleteWebhook", res.Error)
	}
	if res.RowsAffected == 0 {
		return database.NewNotFoundErrorWithID("webhook", id)
	}
	return nil
}

// LogWebhookDelivery records one delivery attempt
func (r *Repository) LogWebhookDelivery(ctx context.Context, entry *models.SignalWebhookLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return database.WrapDBError("LogWebhookDelivery", err)
	}
	return nil
}

// GetWebhookLogs returns recent delivery attempts for a webhook
func (r *Repository) GetWebhookLogs(ctx context.Context, webhookID, limit int) ([]models.SignalWebhookLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.SignalWebhookLog
	err := r.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("triggered_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("GetWebhookLogs: %w", err)
	}
	return logs, nil
}

// ============================================================================
// System Stats
// ============================================================================

// GetSystemStats counts the main tables through GORM. The reporting pool answers the
// same question in one round trip when PostgreSQL is available.
func (r *Repository) GetSystemStats(ctx context.Context) (*types.SystemStats, error) {
	var s types.SystemStats
	db := r.db.WithContext(ctx)

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&s.TotalCandles, db.Model(&models.Candle{})},
		{&s.TotalPredictions, db.Model(&models.Prediction{})},
		{&s.ActivePredictions, db.Model(&models.Prediction{}).Where("status IN ?", database.ActiveStatuses)},
		{&s.TotalResults, db.Model(&models.Result{})},
		{&s.ActivePatterns, db.Model(&models.WinningPattern{}).Where("is_active = ?", true)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, database.WrapDBError("GetSystemStats", err)
		}
	}
	return &s, nil
}
