package models

import (
	"time"

	"gorm.io/datatypes"
)

// Prediction directions
const (
	DirectionLong        = "LONG"
	DirectionShort       = "SHORT"
	DirectionNeutral     = "NEUTRAL"
	DirectionStrongLong  = "STRONG_LONG"
	DirectionStrongShort = "STRONG_SHORT"
)

// Prediction lifecycle states
const (
	StatusPending    = "PENDING"
	StatusMonitoring = "MONITORING"
	StatusExecuted   = "EXECUTED"
	StatusExpired    = "EXPIRED"
	StatusCancelled  = "CANCELLED"
)

// Prediction priorities
const (
	PriorityLow      = "LOW"
	PriorityMedium   = "MEDIUM"
	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"
)

// Result outcomes
const (
	OutcomeWin         = "WIN"
	OutcomeLoss        = "LOSS"
	OutcomeNeutral     = "NEUTRAL"
	OutcomePartialWin  = "PARTIAL_WIN"
	OutcomePartialLoss = "PARTIAL_LOSS"
)

// Exit reasons
const (
	ExitStopLoss   = "STOP_LOSS"
	ExitTakeProfit = "TAKE_PROFIT"
	ExitManual     = "MANUAL"
	ExitTimeout    = "TIMEOUT"
	ExitReversal   = "REVERSAL_SIGNAL"
	ExitOther      = "OTHER"
)

// Market regimes
const (
	RegimeBull     = "bull"
	RegimeBear     = "bear"
	RegimeSideways = "sideways"
	RegimeVolatile = "volatile"
	RegimeUnknown  = "unknown"
	RegimeAny      = "any"
)

// Pattern strengths
const (
	StrengthWeak       = "WEAK"
	StrengthModerate   = "MODERATE"
	StrengthStrong     = "STRONG"
	StrengthVeryStrong = "VERY_STRONG"
)

// Model performance trends
const (
	TrendImproving = "IMPROVING"
	TrendStable    = "STABLE"
	TrendDegrading = "DEGRADING"
	TrendUnknown   = "UNKNOWN"
)

// Model types
const (
	ModelTypeRuleBased = "RULE_BASED"
	ModelTypeLearned   = "LEARNED"
)

// IsLong reports whether the direction is a long-side call
func IsLong(direction string) bool {
	return direction == DirectionLong || direction == DirectionStrongLong
}

// IsShort reports whether the direction is a short-side call
func IsShort(direction string) bool {
	return direction == DirectionShort || direction == DirectionStrongShort
}

// IsTerminal reports whether a lifecycle status can no longer change
func IsTerminal(status string) bool {
	return status == StatusExecuted || status == StatusExpired || status == StatusCancelled
}

// Candle represents one OHLCV bucket for a symbol and timeframe.
// Candles are immutable once stored.
//
// Key Fields:
//   - Symbol/Timeframe/OpenTime: natural key, enforced by a unique index
//   - OpenTime/CloseTime: bucket bounds in epoch milliseconds
//   - QuoteVolume/TradesCount/TakerBuy*: optional exchange extras
type Candle struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Symbol              string    `gorm:"size:20;not null;uniqueIndex:idx_candles_symbol_tf_open,priority:1" json:"symbol"`
	Timeframe           string    `gorm:"size:10;not null;uniqueIndex:idx_candles_symbol_tf_open,priority:2" json:"timeframe"`
	OpenTime            int64     `gorm:"not null;uniqueIndex:idx_candles_symbol_tf_open,priority:3" json:"open_time"`
	CloseTime           int64     `gorm:"not null" json:"close_time"`
	Open                float64   `gorm:"type:decimal(20,8);not null" json:"open"`
	High                float64   `gorm:"type:decimal(20,8);not null" json:"high"`
	Low                 float64   `gorm:"type:decimal(20,8);not null" json:"low"`
	Close               float64   `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume              float64   `gorm:"type:decimal(30,8);not null" json:"volume"`
	QuoteVolume         *float64  `gorm:"type:decimal(30,8)" json:"quote_volume,omitempty"`
	TradesCount         *int64    `json:"trades_count,omitempty"`
	TakerBuyVolume      *float64  `gorm:"type:decimal(30,8)" json:"taker_buy_volume,omitempty"`
	TakerBuyQuoteVolume *float64  `gorm:"type:decimal(30,8)" json:"taker_buy_quote_volume,omitempty"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Candle
func (Candle) TableName() string {
	return "candles"
}

// IndicatorValues is the fixed indicator schema. A nil field means the indicator
// could not be computed from the available window.
type IndicatorValues struct {
	RSI14         *float64 `gorm:"column:rsi_14" json:"rsi_14"`
	RSI7          *float64 `gorm:"column:rsi_7" json:"rsi_7"`
	MACD          *float64 `gorm:"column:macd" json:"macd"`
	MACDSignal    *float64 `gorm:"column:macd_signal" json:"macd_signal"`
	MACDHistogram *float64 `gorm:"column:macd_histogram" json:"macd_histogram"`
	EMA9          *float64 `gorm:"column:ema_9" json:"ema_9"`
	EMA20         *float64 `gorm:"column:ema_20" json:"ema_20"`
	EMA50         *float64 `gorm:"column:ema_50" json:"ema_50"`
	EMA100        *float64 `gorm:"column:ema_100" json:"ema_100"`
	EMA200        *float64 `gorm:"column:ema_200" json:"ema_200"`
	SMA20         *float64 `gorm:"column:sma_20" json:"sma_20"`
	SMA50         *float64 `gorm:"column:sma_50" json:"sma_50"`
	SMA200        *float64 `gorm:"column:sma_200" json:"sma_200"`
	BBUpper       *float64 `gorm:"column:bb_upper" json:"bb_upper"`
	BBMiddle      *float64 `gorm:"column:bb_middle" json:"bb_middle"`
	BBLower       *float64 `gorm:"column:bb_lower" json:"bb_lower"`
	BBWidth       *float64 `gorm:"column:bb_width" json:"bb_width"`
	ATR           *float64 `gorm:"column:atr" json:"atr"`
	VolumeAvg20   *float64 `gorm:"column:volume_avg_20" json:"volume_avg_20"`
	VolumeRatio   *float64 `gorm:"column:volume_ratio" json:"volume_ratio"`
	StochK        *float64 `gorm:"column:stoch_k" json:"stoch_k"`
	StochD        *float64 `gorm:"column:stoch_d" json:"stoch_d"`
	ADX           *float64 `gorm:"column:adx" json:"adx"`
	PlusDI        *float64 `gorm:"column:plus_di" json:"plus_di"`
	MinusDI       *float64 `gorm:"column:minus_di" json:"minus_di"`
	CCI           *float64 `gorm:"column:cci" json:"cci"`
	WillR         *float64 `gorm:"column:willr" json:"willr"`
	OBV           *float64 `gorm:"column:obv" json:"obv"`
}

// Indicator stores the indicator vector computed for exactly one candle.
// Rows are replaced wholesale on recomputation, never patched field by field.
type Indicator struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CandleID      int64  `gorm:"not null;uniqueIndex" json:"candle_id"`
	Symbol        string `gorm:"size:20;not null;index:idx_indicators_symbol_tf,priority:1" json:"symbol"`
	Timeframe     string `gorm:"size:10;not null;index:idx_indicators_symbol_tf,priority:2" json:"timeframe"`
	OpenTime      int64  `gorm:"not null" json:"open_time"`
	SchemaVersion int    `gorm:"not null" json:"schema_version"`
	IndicatorValues
	CalculatedAt time.Time `gorm:"autoCreateTime" json:"calculated_at"`
}

// TableName specifies the table name for Indicator
func (Indicator) TableName() string {
	return "indicators"
}

// MarketContext is a timestamped macro snapshot used at prediction time.
//
// Key Fields:
//   - FearGreedIndex: sentiment index 0-100 with its classification label
//   - BTCDominance/ETHDominance: market cap share in percent
//   - MarketRegime: bull, bear, sideways, volatile or unknown
//   - Stale: served from cache after the TTL elapsed (not persisted)
type MarketContext struct {
	ID                      int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Timestamp               int64     `gorm:"not null;index" json:"timestamp"`
	BTCDominance            *float64  `gorm:"column:btc_dominance;type:decimal(6,2)" json:"btc_dominance"`
	ETHDominance            *float64  `gorm:"column:eth_dominance;type:decimal(6,2)" json:"eth_dominance"`
	TotalMarketCap          *float64  `gorm:"type:decimal(30,2)" json:"total_market_cap"`
	TotalVolume24h          *float64  `gorm:"column:total_volume_24h;type:decimal(30,2)" json:"total_volume_24h"`
	FearGreedIndex          *int      `json:"fear_greed_index"`
	FearGreedClassification *string   `gorm:"size:30" json:"fear_greed_classification"`
	MarketRegime            string    `gorm:"size:20;not null;default:unknown" json:"market_regime"`
	VolatilityIndex         *float64  `gorm:"type:decimal(10,4)" json:"volatility_index"`
	BTCPrice                *float64  `gorm:"column:btc_price;type:decimal(20,8)" json:"btc_price"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`

	Stale  bool   `gorm:"-" json:"stale"`
	Source string `gorm:"-" json:"source"`
}

// TableName specifies the table name for MarketContext
func (MarketContext) TableName() string {
	return "market_context"
}

// Prediction is an emitted trading signal and owns its lifecycle state.
// Only evaluations at or above the confidence threshold are ever stored.
//
// Key Fields:
//   - PredictionType: LONG, SHORT, NEUTRAL, STRONG_LONG or STRONG_SHORT
//   - ConfidenceScore: scorer certainty in [0,100]
//   - SuggestedStopLoss/SuggestedTakeProfit: absolute levels derived from ATR
//   - PredictionTime/ExpirationTime: epoch milliseconds; entry candle close and expiry
//   - Status: PENDING, MONITORING, EXECUTED, EXPIRED or CANCELLED
//   - FeaturesUsed: feature snapshot the scorer saw, reused by mining and training
//   - MarketContextID: weak reference, the context row may be gone
type Prediction struct {
	ID                      int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CandleID                int64          `gorm:"not null;uniqueIndex" json:"candle_id"`
	Symbol                  string         `gorm:"size:20;not null;index:idx_predictions_symbol_tf,priority:1" json:"symbol"`
	Timeframe               string         `gorm:"size:10;not null;index:idx_predictions_symbol_tf,priority:2" json:"timeframe"`
	PredictionType          string         `gorm:"size:20;not null" json:"prediction_type"`
	ConfidenceScore         float64        `gorm:"type:decimal(5,2);not null;index:idx_predictions_active,priority:2" json:"confidence_score"`
	EntryPrice              float64        `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	SuggestedStopLoss       float64        `gorm:"type:decimal(20,8)" json:"suggested_stop_loss"`
	SuggestedTakeProfit     float64        `gorm:"type:decimal(20,8)" json:"suggested_take_profit"`
	StopLossPercentage      float64        `gorm:"type:decimal(10,4)" json:"stop_loss_percentage"`
	TakeProfitPercentage    float64        `gorm:"type:decimal(10,4)" json:"take_profit_percentage"`
	RiskRewardRatio         float64        `gorm:"type:decimal(10,4)" json:"risk_reward_ratio"`
	PositionSizeRecommended float64        `gorm:"type:decimal(10,4)" json:"position_size_recommended"`
	MaxPositionSize         float64        `gorm:"type:decimal(10,4)" json:"max_position_size"`
	ModelVersion            string         `gorm:"size:20;not null;index" json:"model_version"`
	ModelType               string         `gorm:"size:50" json:"model_type"`
	FeaturesUsed            datatypes.JSON `gorm:"type:jsonb" json:"features_used,omitempty"`
	MarketContextID         *int64         `json:"market_context_id,omitempty"`
	PredictionTime          int64          `gorm:"not null;index" json:"prediction_time"`
	ExpirationTime          *int64         `gorm:"index:idx_predictions_active,priority:3" json:"expiration_time,omitempty"`
	TimeHorizonHours        int            `json:"time_horizon_hours"`
	Status                  string         `gorm:"size:20;not null;default:PENDING;index:idx_predictions_active,priority:1" json:"status"`
	Priority                string         `gorm:"size:20;not null;default:MEDIUM" json:"priority"`
	Tags                    datatypes.JSON `gorm:"type:jsonb" json:"tags,omitempty"`
	Notes                   string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt               time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
	ResolvedAt              *time.Time     `json:"resolved_at,omitempty"`
}

// TableName specifies the table name for Prediction
func (Prediction) TableName() string {
	return "predictions"
}

// Result is the realized outcome of a resolved prediction (1:1, append-only).
//
// Key Fields:
//   - ActualOutcome: WIN, LOSS, NEUTRAL, PARTIAL_WIN or PARTIAL_LOSS
//   - ProfitLossPercentage: (exit - entry) / entry, sign adjusted for direction
//   - MaxFavorableExcursion/MaxAdverseExcursion: best/worst excursion in percent
//   - HitStopLoss/HitTakeProfit: which bound ended the trade
//   - TradeQualityScore: 0-100 grade of the trade
type Result struct {
	ID                         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PredictionID               int64     `gorm:"not null;uniqueIndex" json:"prediction_id"`
	ActualOutcome              string    `gorm:"size:20;not null;index" json:"actual_outcome"`
	EntryPrice                 float64   `gorm:"type:decimal(20,8);not null" json:"entry_price"`
	ExitPrice                  float64   `gorm:"type:decimal(20,8);not null" json:"exit_price"`
	HighestPrice               *float64  `gorm:"type:decimal(20,8)" json:"highest_price,omitempty"`
	LowestPrice                *float64  `gorm:"type:decimal(20,8)" json:"lowest_price,omitempty"`
	ProfitLossPercentage       float64   `gorm:"type:decimal(10,4);not null" json:"profit_loss_percentage"`
	ProfitLossAbs              float64   `gorm:"type:decimal(20,8)" json:"profit_loss_abs"`
	MaxFavorableExcursion      *float64  `gorm:"type:decimal(10,4)" json:"max_favorable_excursion,omitempty"`
	MaxAdverseExcursion        *float64  `gorm:"type:decimal(10,4)" json:"max_adverse_excursion,omitempty"`
	HitStopLoss                bool      `gorm:"default:false" json:"hit_stop_loss"`
	HitTakeProfit              bool      `gorm:"default:false" json:"hit_take_profit"`
	ExitReason                 string    `gorm:"size:30" json:"exit_reason"`
	DurationMinutes            int       `json:"duration_minutes"`
	DurationHours              float64   `gorm:"type:decimal(10,4)" json:"duration_hours"`
	Slippage                   float64   `gorm:"type:decimal(10,4)" json:"slippage"`
	FeesPaid                   float64   `gorm:"type:decimal(20,8)" json:"fees_paid"`
	NetProfitLoss              float64   `gorm:"type:decimal(20,8)" json:"net_profit_loss"`
	TradeQualityScore          float64   `gorm:"type:decimal(5,2)" json:"trade_quality_score"`
	MarketConditionDuringTrade string    `gorm:"size:50" json:"market_condition_during_trade,omitempty"`
	VolatilityDuringTrade      *float64  `gorm:"type:decimal(10,4)" json:"volatility_during_trade,omitempty"`
	ResultTime                 int64     `gorm:"not null;index" json:"result_time"`
	CreatedAt                  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for Result
func (Result) TableName() string {
	return "results"
}

// WinningPattern aggregates results that share a feature-condition signature.
// Patterns are folded incrementally and deactivated, never deleted.
type WinningPattern struct {
	ID                 int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Fingerprint        string         `gorm:"size:36;not null;uniqueIndex" json:"fingerprint"`
	PatternName        string         `gorm:"size:100;not null" json:"pattern_name"`
	PatternDescription string         `gorm:"type:text" json:"pattern_description"`
	Symbol             string         `gorm:"size:20;index:idx_patterns_symbol_tf,priority:1" json:"symbol"`
	Timeframe          string         `gorm:"size:10;index:idx_patterns_symbol_tf,priority:2" json:"timeframe"`
	Direction          string         `gorm:"size:20" json:"direction"`
	Conditions         datatypes.JSON `gorm:"type:jsonb" json:"conditions"`
	Version            int            `gorm:"not null;default:1" json:"version"`
	WinRate            float64        `gorm:"type:decimal(5,2);not null;default:0" json:"win_rate"`
	AvgProfit          float64        `gorm:"type:decimal(10,4);not null;default:0" json:"avg_profit"`
	AvgLoss            float64        `gorm:"type:decimal(10,4);not null;default:0" json:"avg_loss"`
	MaxProfit          float64        `gorm:"type:decimal(10,4)" json:"max_profit"`
	MaxLoss            float64        `gorm:"type:decimal(10,4)" json:"max_loss"`
	GrossProfit        float64        `gorm:"type:decimal(14,4)" json:"gross_profit"`
	GrossLoss          float64        `gorm:"type:decimal(14,4)" json:"gross_loss"`
	RiskReward         float64        `gorm:"type:decimal(10,4);not null;default:0" json:"risk_reward"`
	ProfitFactor       *float64       `gorm:"type:decimal(10,4)" json:"profit_factor,omitempty"`
	Occurrences        int            `gorm:"default:0" json:"occurrences"`
	WinningTrades      int            `gorm:"default:0" json:"winning_trades"`
	LosingTrades       int            `gorm:"default:0" json:"losing_trades"`
	NeutralTrades      int            `gorm:"default:0" json:"neutral_trades"`
	FirstOccurrence    int64          `json:"first_occurrence"`
	LastOccurrence     int64          `json:"last_occurrence"`
	RegimeStats        datatypes.JSON `gorm:"type:jsonb" json:"regime_stats,omitempty"`
	MarketRegimeBest   string         `gorm:"size:20;default:any" json:"market_regime_best"`
	PatternStrength    string         `gorm:"size:20;default:MODERATE" json:"pattern_strength"`
	ReliabilityScore   float64        `gorm:"type:decimal(5,2)" json:"reliability_score"`
	IsActive           bool           `gorm:"not null;index" json:"is_active"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// TableName specifies the table name for WinningPattern
func (WinningPattern) TableName() string {
	return "winning_patterns"
}

// ModelPerformance tracks training metadata and live results per model version.
// Exactly one record is active at a time.
//
// Rolling Fields:
//   - ReturnSum/ReturnSqSum: running sums for the Sharpe-like ratio
//   - CumulativeReturn/PeakReturn/MaxDrawdown: equity curve in percent
//   - RecentWinRate: exponentially weighted win rate used for the trend
type ModelPerformance struct {
	ID                      int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	ModelVersion            string         `gorm:"size:20;not null;uniqueIndex" json:"model_version"`
	ModelType               string         `gorm:"size:50;not null" json:"model_type"`
	ModelArchitecture       string         `gorm:"type:text" json:"model_architecture,omitempty"`
	ArtifactPath            string         `gorm:"size:255" json:"artifact_path,omitempty"`
	TrainingDate            time.Time      `gorm:"not null" json:"training_date"`
	DatasetSize             int            `gorm:"not null;default:0" json:"dataset_size"`
	TrainingDurationSeconds int            `json:"training_duration_seconds"`
	Accuracy                *float64       `gorm:"type:decimal(5,2)" json:"accuracy,omitempty"`
	PrecisionScore          *float64       `gorm:"type:decimal(5,2)" json:"precision_score,omitempty"`
	RecallScore             *float64       `gorm:"type:decimal(5,2)" json:"recall_score,omitempty"`
	F1Score                 *float64       `gorm:"column:f1_score;type:decimal(5,2)" json:"f1_score,omitempty"`
	ValidationMetrics       datatypes.JSON `gorm:"type:jsonb" json:"validation_metrics,omitempty"`
	TotalTradesAnalyzed     int            `gorm:"default:0" json:"total_trades_analyzed"`
	WinningTrades           int            `gorm:"default:0" json:"winning_trades"`
	LosingTrades            int            `gorm:"default:0" json:"losing_trades"`
	WinRate                 float64        `gorm:"type:decimal(5,2);default:0" json:"win_rate"`
	AvgProfitPerTrade       float64        `gorm:"type:decimal(10,4);default:0" json:"avg_profit_per_trade"`
	AvgLossPerTrade         float64        `gorm:"type:decimal(10,4);default:0" json:"avg_loss_per_trade"`
	ProfitFactor            *float64       `gorm:"type:decimal(10,4)" json:"profit_factor,omitempty"`
	Expectancy              float64        `gorm:"type:decimal(10,4);default:0" json:"expectancy"`
	SharpeRatio             *float64       `gorm:"type:decimal(10,4)" json:"sharpe_ratio,omitempty"`
	MaxDrawdown             float64        `gorm:"type:decimal(10,4);default:0" json:"max_drawdown"`
	CumulativeReturn        float64        `gorm:"type:decimal(14,4);default:0" json:"cumulative_return"`
	PeakReturn              float64        `gorm:"type:decimal(14,4);default:0" json:"peak_return"`
	ReturnSum               float64        `gorm:"type:decimal(14,4);default:0" json:"-"`
	ReturnSqSum             float64        `gorm:"type:decimal(20,4);default:0" json:"-"`
	GrossProfit             float64        `gorm:"type:decimal(14,4);default:0" json:"gross_profit"`
	GrossLoss               float64        `gorm:"type:decimal(14,4);default:0" json:"gross_loss"`
	RecentWinRate           float64        `gorm:"type:decimal(5,2);default:0" json:"recent_win_rate"`
	PerformanceTrend        string         `gorm:"size:20;default:UNKNOWN" json:"performance_trend"`
	IsActive                bool           `gorm:"default:false;index" json:"is_active"`
	DeploymentDate          *time.Time     `json:"deployment_date,omitempty"`
	RetirementDate          *time.Time     `json:"retirement_date,omitempty"`
	Notes                   string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// TableName specifies the table name for ModelPerformance
func (ModelPerformance) TableName() string {
	return "model_performance"
}

// FoldCursor remembers the last result folded into a derived aggregate
type FoldCursor struct {
	Name         string    `gorm:"primaryKey;size:50" json:"name"`
	LastResultID int64     `gorm:"not null;default:0" json:"last_result_id"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for FoldCursor
func (FoldCursor) TableName() string {
	return "fold_cursors"
}

// SignalWebhook holds a subscriber for signal events
type SignalWebhook struct {
	ID                int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name              string    `gorm:"size:100;not null" json:"name"`
	URL               string    `gorm:"not null" json:"url"`
	Method            string    `gorm:"size:10;default:POST" json:"method"`
	AuthHeader        string    `gorm:"size:100" json:"auth_header"`
	AuthValue         string    `json:"auth_value"`
	Symbols           string    `json:"symbols"` // comma separated, empty means all
	MinConfidence     *float64  `gorm:"type:decimal(5,2)" json:"min_confidence,omitempty"`
	IsActive          bool      `gorm:"not null" json:"is_active"`
	RetryCount        int       `gorm:"default:3" json:"retry_count"`
	RetryDelaySeconds int       `gorm:"not null" json:"retry_delay_seconds"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TableName specifies the table name for SignalWebhook
func (SignalWebhook) TableName() string {
	return "signal_webhooks"
}

// SignalWebhookLog records one webhook delivery attempt
type SignalWebhookLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WebhookID      int       `gorm:"index;not null" json:"webhook_id"`
	PredictionID   int64     `gorm:"index" json:"prediction_id"`
	Event          string    `gorm:"size:30" json:"event"`
	TriggeredAt    time.Time `gorm:"not null" json:"triggered_at"`
	Status         string    `gorm:"size:20" json:"status"`
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message,omitempty"`
	RetryAttempt   int       `json:"retry_attempt"`
}

// TableName specifies the table name for SignalWebhookLog
func (SignalWebhookLog) TableName() string {
	return "signal_webhook_logs"
}
