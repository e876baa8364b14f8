package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq" // PostgreSQL driver

	"crypto-signal-engine/database/types"
)

// ReportingDB is a small lib/pq pool for dashboard rollups.
// It keeps long aggregate queries off the GORM pool used by ingestion.
type ReportingDB struct {
	conn *sql.DB
}

// Config holds reporting pool configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewReportingDB opens and verifies the reporting pool
func NewReportingDB(ctx context.Context, cfg Config) (*ReportingDB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open reporting database: %w", err)
	}

	conn.SetMaxOpenConns(ReportingMaxOpenConns)
	conn.SetMaxIdleConns(ReportingMaxIdleConns)
	conn.SetConnMaxLifetime(ReportingConnMaxLifetime)
	conn.SetConnMaxIdleTime(ReportingConnMaxIdleTime)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping reporting database: %w", err)
	}

	log.Println("✅ Reporting connection established")
	return &ReportingDB{conn: conn}, nil
}

// Close closes the reporting pool
func (r *ReportingDB) Close() error {
	if r.conn != nil {
		log.Println("📡 Closing reporting connection...")
		return r.conn.Close()
	}
	return nil
}

// RefreshModelStatistics refreshes the model_statistics_daily materialized view
func (r *ReportingDB) RefreshModelStatistics(ctx context.Context) error {
	// CONCURRENTLY keeps the view readable during the refresh
	if _, err := r.conn.ExecContext(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY model_statistics_daily"); err != nil {
		return WrapDBError("RefreshModelStatistics", err)
	}
	return nil
}

// GetModelStatistics reads the daily model rollup
func (r *ReportingDB) GetModelStatistics(ctx context.Context, modelVersion, symbol string, days int) ([]types.ModelStatistics, error) {
	query := `
		SELECT day, model_version, symbol, timeframe, total_signals, wins, losses, neutrals,
			COALESCE(avg_profit_pct, 0), COALESCE(total_profit_pct, 0),
			COALESCE(avg_confidence, 0), COALESCE(avg_risk_reward, 0)
		FROM model_statistics_daily
		WHERE day >= NOW() - make_interval(days => $1)
			AND ($2 = '' OR model_version = $2)
			AND ($3 = '' OR symbol = $3)
		ORDER BY day DESC, model_version, symbol, timeframe
	`

	rows, err := r.conn.QueryContext(ctx, query, days, modelVersion, symbol)
	if err != nil {
		return nil, WrapDBError("GetModelStatistics", err)
	}
	defer rows.Close()

	var stats []types.ModelStatistics
	for rows.Next() {
		var s types.ModelStatistics
		if err := rows.Scan(&s.Day, &s.ModelVersion, &s.Symbol, &s.Timeframe,
			&s.TotalSignals, &s.Wins, &s.Losses, &s.Neutrals,
			&s.AvgProfitPct, &s.TotalProfitPct, &s.AvgConfidence, &s.AvgRiskReward); err != nil {
			return nil, WrapDBError("GetModelStatistics", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapDBError("GetModelStatistics", err)
	}
	return stats, nil
}

// GetSystemStats counts the main tables in one round trip
func (r *ReportingDB) GetSystemStats(ctx context.Context) (*types.SystemStats, error) {
	var s types.SystemStats
	err := r.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM candles),
			(SELECT COUNT(*) FROM predictions),
			(SELECT COUNT(*) FROM predictions WHERE status IN ('PENDING', 'MONITORING')),
			(SELECT COUNT(*) FROM results),
			(SELECT COUNT(*) FROM winning_patterns WHERE is_active)
	`).Scan(&s.TotalCandles, &s.TotalPredictions, &s.ActivePredictions, &s.TotalResults, &s.ActivePatterns)
	if err != nil {
		return nil, WrapDBError("GetSystemStats", err)
	}
	return &s, nil
}
