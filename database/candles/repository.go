package candles

import (
	"context"
	"errors"
	"fmt"

	"crypto-signal-engine/database"
	models "crypto-signal-engine/database/models_pkg"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the durable, deduplicated candle store
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new candle repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Submit stores a candle once per (symbol, timeframe, open_time).
// On a repeat the candle's ID is set to the existing row and ErrDuplicateCandle is returned.
func (r *Repository) Submit(ctx context.Context, candle *models.Candle) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"},
			{Name: "timeframe"},
			{Name: "open_time"},
		},
		DoNothing: true,
	}).Create(candle)
	if result.Error != nil {
		return database.WrapDBError("SubmitCandle", result.Error)
	}

	if result.RowsAffected > 0 {
		return nil
	}

	existing, err := r.Get(ctx, candle.Symbol, candle.Timeframe, candle.OpenTime)
	if err != nil {
		return err
	}
	if existing != nil {
		candle.ID = existing.ID
	}
	return database.ErrDuplicateCandle
}

// Get returns the candle for an exact key, or nil when absent
func (r *Repository) Get(ctx context.Context, symbol, timeframe string, openTime int64) (*models.Candle, error) {
	var candle models.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND open_time = ?", symbol, timeframe, openTime).
		First(&candle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetCandle", err)
	}
	return &candle, nil
}

// Window returns up to length candles with open_time <= upto, oldest first.
// Fewer than minRequired candles yields ErrInsufficientHistory.
func (r *Repository) Window(ctx context.Context, symbol, timeframe string, upto int64, length, minRequired int) ([]models.Candle, error) {
	var rows []models.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND open_time <= ?", symbol, timeframe, upto).
		Order("open_time DESC").
		Limit(length).
		Find(&rows).Error
	if err != nil {
		return nil, database.WrapDBError("CandleWindow", err)
	}

	if len(rows) < minRequired {
		return nil, fmt.Errorf("%s %s has %d of %d candles: %w",
			symbol, timeframe, len(rows), minRequired, database.ErrInsufficientHistory)
	}

	reverse(rows)
	return rows, nil
}

// Range returns candles with from <= open_time <= to, oldest first
func (r *Repository) Range(ctx context.Context, symbol, timeframe string, from, to int64) ([]models.Candle, error) {
	var rows []models.Candle
	query := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND open_time >= ?", symbol, timeframe, from)
	if to > 0 {
		query = query.Where("open_time <= ?", to)
	}
	if err := query.Order("open_time ASC").Find(&rows).Error; err != nil {
		return nil, database.WrapDBError("CandleRange", err)
	}
	return rows, nil
}

// Latest returns the most recent candle, or nil when none exists
func (r *Repository) Latest(ctx context.Context, symbol, timeframe string) (*models.Candle, error) {
	var candle models.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("open_time DESC").
		First(&candle).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("LatestCandle", err)
	}
	return &candle, nil
}

// List returns the most recent candles, newest first
func (r *Repository) List(ctx context.Context, symbol, timeframe string, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = database.DefaultCandleListLimit
	}
	if limit > database.MaxCandleListLimit {
		limit = database.MaxCandleListLimit
	}

	var rows []models.Candle
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("open_time DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, database.WrapDBError("ListCandles", err)
	}
	return rows, nil
}

// Count returns the number of stored candles, optionally for one symbol
func (r *Repository) Count(ctx context.Context, symbol string) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Candle{})
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, database.WrapDBError("CountCandles", err)
	}
	return count, nil
}

// SaveIndicators stores the indicator vector for a candle, replacing any previous row
func (r *Repository) SaveIndicators(ctx context.Context, ind *models.Indicator) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "candle_id"}},
		UpdateAll: true,
	}).Create(ind).Error
	if err != nil {
		return database.WrapDBError("SaveIndicators", err)
	}
	return nil
}

// GetIndicators returns the indicator row for a candle, or nil when absent
func (r *Repository) GetIndicators(ctx context.Context, candleID int64) (*models.Indicator, error) {
	var ind models.Indicator
	err := r.db.WithContext(ctx).Where("candle_id = ?", candleID).First(&ind).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.WrapDBError("GetIndicators", err)
	}
	return &ind, nil
}

func reverse(rows []models.Candle) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
