// Package database provides database connection management for the crypto-signal-engine
// candle and signal pipeline.
//
// This package includes:
//   - GORM connection management (PostgreSQL in production, any dialector for tests)
//   - Schema initialization, including the active_signals and model_statistics_daily views
//   - A lib/pq reporting pool for dashboard rollups
//   - Typed errors and benign sentinels shared by the repositories
//
// Data Models:
//
//	All persisted models (Candle, Indicator, Prediction, Result, ...) are defined in the
//	models_pkg package. Repositories live in the candles, signals and analytics sub-packages.
package database

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database holds the GORM database connection shared by all repositories
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes a PostgreSQL connection using GORM
func Connect(host string, port int, dbname, user, password, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		host, port, dbname, user, password, sslMode)

	return Open(postgres.Open(dsn))
}

// Open establishes a connection through an arbitrary GORM dialector
func Open(dialector gorm.Dialector) (*Database, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db}, nil
}

// IsPostgres reports whether the connection uses the PostgreSQL dialect
func (d *Database) IsPostgres() bool {
	return d.db.Dialector.Name() == "postgres"
}

// Ping checks whether the store is reachable
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
