package database

import "time"

// Candle history bounds
const (
	DefaultMinCandlesForIndicators = 50
	DefaultMaxCandlesHistory       = 500
	DefaultCandleListLimit         = 100
	MaxCandleListLimit             = 1000
)

// Batch sizes for background workers
const (
	MonitorBatchSize = 200
	FoldBatchSize    = 500
	TrainingMaxRows  = 20000
)

// ResultOrderLockKey is the transaction-scoped advisory lock that serializes result inserts,
// so result ids are committed in id order and fold cursors never pass an uncommitted id
const ResultOrderLockKey int64 = 0x5e51_0001

// Query defaults for the signal endpoints
const (
	DefaultMinConfidence     = 70.0
	DefaultActiveSignalLimit = 100
	MaxActiveSignalLimit     = 500
)

// Reporting pool settings
const (
	ReportingMaxOpenConns    = 10
	ReportingMaxIdleConns    = 5
	ReportingConnMaxLifetime = 5 * time.Minute
	ReportingConnMaxIdleTime = 2 * time.Minute
)

// ActiveStatuses lists the non-terminal prediction states
var ActiveStatuses = []string{"PENDING", "MONITORING"}
