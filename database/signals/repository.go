package signals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-signal-engine/database"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/types"

	"gorm.io/gorm"
)

// Repository handles persistence of predictions and their results
type Repository struct {
	db *gorm.DB

	// lockResults runs inside Resolve before the result insert; nil when the
	// dialect already serializes writers
	lockResults func(tx *gorm.DB) error
}

// NewRepository creates a new signals repository
func NewRepository(db *gorm.DB) *Repository {
	r := &Repository{db: db}
	if db.Dialector.Name() == "postgres" {
		r.lockResults = advisoryResultLock
	}
	return r
}

// advisoryResultLock holds the result-order lock until the transaction ends
func advisoryResultLock(tx *gorm.DB) error {
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", database.ResultOrderLockKey).Error
}

// SavePrediction persists a new prediction
func (r *Repository) SavePrediction(ctx context.Context, p *models.Prediction) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return database.WrapDBError("SavePrediction", err)
	}
	return nil
}

// GetPrediction retrieves a prediction by ID, or nil when absent
func (r *Repository) GetPrediction(ctx context.Context, id int64) (*models.Prediction, error) {
	var p models.Prediction
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetPrediction", err)
	}
	return &p, nil
}

// GetActiveSignals reads the active_signals projection.
// Rows are ordered by confidence, then by creation time, both descending.
func (r *Repository) GetActiveSignals(ctx context.Context, f types.ActiveSignalFilter) ([]types.ActiveSignal, int64, error) {
	query := r.db.WithContext(ctx).Table("active_signals").
		Where("confidence_score >= ?", f.MinConfidence).
		Where("(expiration_time IS NULL OR expiration_time > ?)", f.NowMillis)

	if f.Symbol != "" {
		query = query.Where("symbol = ?", f.Symbol)
	}
	if f.Timeframe != "" {
		query = query.Where("timeframe = ?", f.Timeframe)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, database.WrapDBError("CountActiveSignals", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = database.DefaultActiveSignalLimit
	}

	var rows []types.ActiveSignal
	err := query.
		Order("confidence_score DESC").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, database.WrapDBError("GetActiveSignals", err)
	}
	return rows, total, nil
}

// GetNonTerminal returns PENDING and MONITORING predictions with id above afterID, oldest first.
// Callers page through the full set by passing the last id of the previous page.
func (r *Repository) GetNonTerminal(ctx context.Context, afterID int64, limit int) ([]models.Prediction, error) {
	var rows []models.Prediction
	query := r.db.WithContext(ctx).
		Where("status IN ?", database.ActiveStatuses).
		Where("id > ?", afterID).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, database.WrapDBError("GetNonTerminal", err)
	}
	return rows, nil
}

// GetOpposing returns older non-terminal predictions on the same key whose side is
// opposite to the given direction
func (r *Repository) GetOpposing(ctx context.Context, symbol, timeframe, direction string, beforeID int64) ([]models.Prediction, error) {
	var opposite []string
	switch {
	case models.IsLong(direction):
		opposite = []string{models.DirectionShort, models.DirectionStrongShort}
	case models.IsShort(direction):
		opposite = []string{models.DirectionLong, models.DirectionStrongLong}
	default:
		return nil, nil
	}

	var rows []models.Prediction
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Where("status IN ?", database.ActiveStatuses).
		Where("prediction_type IN ?", opposite).
		Where("id < ?", beforeID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, database.WrapDBError("GetOpposing", err)
	}
	return rows, nil
}

// Transition moves a prediction to a new status if it is still in one of the from states
func (r *Repository) Transition(ctx context.Context, id int64, from []string, to string) error {
	return transition(r.db.WithContext(ctx), id, from, to, time.Now(), nil)
}

// Cancel moves a non-terminal prediction to CANCELLED without a result
func (r *Repository) Cancel(ctx context.Context, id int64, reason string) error {
	extra := map[string]interface{}{}
	if reason != "" {
		extra["notes"] = reason
	}
	return transition(r.db.WithContext(ctx), id, database.ActiveStatuses, models.StatusCancelled, time.Now(), extra)
}

// Resolve moves a prediction into a terminal state and records its result atomically.
// Exactly one concurrent caller can win; the others get ErrTransitionConflict.
// Result inserts are serialized so ids become visible in increasing order.
func (r *Repository) Resolve(ctx context.Context, id int64, from []string, to string, result *models.Result) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, id, from, to, now, nil); err != nil {
			return err
		}
		if result == nil {
			return nil
		}
		if r.lockResults != nil {
			if err := r.lockResults(tx); err != nil {
				return database.WrapDBError("LockResults", err)
			}
		}
		result.PredictionID = id
		if err := tx.Create(result).Error; err != nil {
			return database.WrapDBError("SaveResult", err)
		}
		return nil
	})
}

func transition(db *gorm.DB, id int64, from []string, to string, now time.Time, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	for k, v := range extra {
		updates[k] = v
	}
	if models.IsTerminal(to) {
		updates["resolved_at"] = now
	}

	res := db.Model(&models.Prediction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return database.WrapDBError("TransitionPrediction", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("prediction %d not in %v: %w", id, from, database.ErrTransitionConflict)
	}
	return nil
}

// GetResult returns the result of a prediction, or nil when unresolved
func (r *Repository) GetResult(ctx context.Context, predictionID int64) (*models.Result, error) {
	var res models.Result
	err := r.db.WithContext(ctx).Where("prediction_id = ?", predictionID).First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetResult", err)
	}
	return &res, nil
}

// GetResolvedSamples returns the most recent resolved predictions with their realized exit,
// in chronological order
func (r *Repository) GetResolvedSamples(ctx context.Context, limit int) ([]types.ResolvedSample, error) {
	var rows []types.ResolvedSample
	err := r.db.WithContext(ctx).
		Table("results r").
		Select("p.id AS prediction_id, p.prediction_type, p.features_used, r.entry_price, r.exit_price, r.result_time").
		Joins("JOIN predictions p ON p.id = r.prediction_id").
		Where("p.features_used IS NOT NULL").
		Order("r.result_time DESC, r.id DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, database.WrapDBError("GetResolvedSamples", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
