package database

import (
	"fmt"

	models "crypto-signal-engine/database/models_pkg"
)

// InitSchema performs auto-migration and creates the derived views
func (d *Database) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	err := d.db.AutoMigrate(
		&models.Candle{},
		&models.Indicator{},
		&models.MarketContext{},
		&models.Prediction{},
		&models.Result{},
		&models.WinningPattern{},
		&models.ModelPerformance{},
		&models.FoldCursor{},
		&models.SignalWebhook{},
		&models.SignalWebhookLog{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	if d.IsPostgres() {
		// At most one active model row
		if err := d.db.Exec(`
			CREATE UNIQUE INDEX IF NOT EXISTS idx_model_performance_single_active
			ON model_performance (is_active) WHERE is_active
		`).Error; err != nil {
			return fmt.Errorf("failed to create single-active model index: %w", err)
		}
	}

	if err := d.createActiveSignalsView(); err != nil {
		return err
	}

	if d.IsPostgres() {
		d.createModelStatisticsView()
	}

	fmt.Println("✅ Database schema initialized")
	return nil
}

// createActiveSignalsView creates the projection used by query_active_signals.
// Expiration is filtered at query time because it depends on the caller's clock.
func (d *Database) createActiveSignalsView() error {
	if err := d.db.Exec("DROP VIEW IF EXISTS active_signals").Error; err != nil {
		return fmt.Errorf("failed to drop view active_signals: %w", err)
	}

	if err := d.db.Exec(`
		CREATE VIEW active_signals AS
		SELECT
			p.id,
			p.symbol,
			p.timeframe,
			p.prediction_type,
			p.confidence_score,
			p.entry_price,
			(
				SELECT c.close FROM candles c
				WHERE c.symbol = p.symbol AND c.timeframe = p.timeframe
				ORDER BY c.open_time DESC
				LIMIT 1
			) AS current_price,
			p.suggested_stop_loss,
			p.suggested_take_profit,
			p.stop_loss_percentage,
			p.take_profit_percentage,
			p.risk_reward_ratio,
			p.position_size_recommended,
			p.model_version,
			p.model_type,
			p.prediction_time,
			p.expiration_time,
			p.time_horizon_hours,
			p.status,
			p.priority,
			mc.fear_greed_index,
			mc.market_regime,
			p.created_at
		FROM predictions p
		LEFT JOIN market_context mc ON mc.id = p.market_context_id
		WHERE p.status IN ('PENDING', 'MONITORING')
	`).Error; err != nil {
		return fmt.Errorf("failed to create view active_signals: %w", err)
	}
	return nil
}

// createModelStatisticsView creates the per-day model rollup for dashboards
func (d *Database) createModelStatisticsView() {
	fmt.Println("📊 Creating model_statistics_daily materialized view...")
	if err := d.db.Exec(`
		CREATE MATERIALIZED VIEW IF NOT EXISTS model_statistics_daily AS
		SELECT
			date_trunc('day', r.created_at) AS day,
			p.model_version,
			p.symbol,
			p.timeframe,
			COUNT(*) AS total_signals,
			SUM(CASE WHEN r.actual_outcome IN ('WIN', 'PARTIAL_WIN') THEN 1 ELSE 0 END) AS wins,
			SUM(CASE WHEN r.actual_outcome IN ('LOSS', 'PARTIAL_LOSS') THEN 1 ELSE 0 END) AS losses,
			SUM(CASE WHEN r.actual_outcome = 'NEUTRAL' THEN 1 ELSE 0 END) AS neutrals,
			AVG(r.profit_loss_percentage) AS avg_profit_pct,
			SUM(r.profit_loss_percentage) AS total_profit_pct,
			AVG(p.confidence_score) AS avg_confidence,
			AVG(p.risk_reward_ratio) AS avg_risk_reward
		FROM results r
		JOIN predictions p ON p.id = r.prediction_id
		GROUP BY 1, p.model_version, p.symbol, p.timeframe
	`).Error; err != nil {
		fmt.Printf("⚠️ Warning: Failed to create view model_statistics_daily: %v\n", err)
		return
	}

	// Required for REFRESH ... CONCURRENTLY
	if err := d.db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_model_statistics_daily_key
		ON model_statistics_daily (day, model_version, symbol, timeframe)
	`).Error; err != nil {
		fmt.Printf("⚠️ Warning: Failed to index model_statistics_daily: %v\n", err)
		return
	}
	fmt.Println("✅ model_statistics_daily view created successfully")
}
