package types

import (
	"time"

	models "crypto-signal-engine/database/models_pkg"
)

// ActiveSignal is a row of the active_signals projection
type ActiveSignal struct {
	ID                      int64     `json:"id"`
	Symbol                  string    `json:"symbol"`
	Timeframe               string    `json:"timeframe"`
	PredictionType          string    `json:"prediction_type"`
	ConfidenceScore         float64   `json:"confidence_score"`
	EntryPrice              float64   `json:"entry_price"`
	CurrentPrice            *float64  `json:"current_price"`
	SuggestedStopLoss       float64   `json:"suggested_stop_loss"`
	SuggestedTakeProfit     float64   `json:"suggested_take_profit"`
	StopLossPercentage      float64   `json:"stop_loss_percentage"`
	TakeProfitPercentage    float64   `json:"take_profit_percentage"`
	RiskRewardRatio         float64   `json:"risk_reward_ratio"`
	PositionSizeRecommended float64   `json:"position_size_recommended"`
	ModelVersion            string    `json:"model_version"`
	ModelType               string    `json:"model_type"`
	PredictionTime          int64     `json:"prediction_time"`
	ExpirationTime          *int64    `json:"expiration_time"`
	TimeHorizonHours        int       `json:"time_horizon_hours"`
	Status                  string    `json:"status"`
	Priority                string    `json:"priority"`
	FearGreedIndex          *int      `json:"fear_greed_index,omitempty"`
	MarketRegime            *string   `json:"market_regime,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}

// ActiveSignalFilter holds query_active_signals parameters
type ActiveSignalFilter struct {
	Symbol        string
	Timeframe     string
	MinConfidence float64
	NowMillis     int64
	Limit         int
}

// ModelStatistics is a row of the model_statistics_daily rollup
type ModelStatistics struct {
	Day            time.Time `json:"day"`
	ModelVersion   string    `json:"model_version"`
	Symbol         string    `json:"symbol"`
	Timeframe      string    `json:"timeframe"`
	TotalSignals   int64     `json:"total_signals"`
	Wins           int64     `json:"wins"`
	Losses         int64     `json:"losses"`
	Neutrals       int64     `json:"neutrals"`
	AvgProfitPct   float64   `json:"avg_profit_pct"`
	TotalProfitPct float64   `json:"total_profit_pct"`
	AvgConfidence  float64   `json:"avg_confidence"`
	AvgRiskReward  float64   `json:"avg_risk_reward"`
}

// SystemStats holds row counts for the stats endpoint
type SystemStats struct {
	TotalCandles      int64 `json:"total_candles"`
	TotalPredictions  int64 `json:"total_predictions"`
	ActivePredictions int64 `json:"active_predictions"`
	TotalResults      int64 `json:"total_results"`
	ActivePatterns    int64 `json:"active_patterns"`
}

// ResolvedSample pairs a prediction snapshot with its realized result for training
type ResolvedSample struct {
	PredictionID   int64   `json:"prediction_id"`
	PredictionType string  `json:"prediction_type"`
	FeaturesUsed   []byte  `json:"features_used"`
	EntryPrice     float64 `json:"entry_price"`
	ExitPrice      float64 `json:"exit_price"`
	ResultTime     int64   `json:"result_time"`
}

// FoldItem is one resolved prediction handed to an incremental aggregate
type FoldItem struct {
	Result     models.Result
	Prediction models.Prediction
}

// PatternFilter holds winning pattern list parameters
type PatternFilter struct {
	Symbol         string
	Timeframe      string
	Strength       string
	ActiveOnly     bool
	MinOccurrences int
	Limit          int
}

// SubmitResult is the outcome of one candle submission
type SubmitResult struct {
	Stored               bool               `json:"stored"`
	CandleID             int64              `json:"candle_id"`
	Duplicate            bool               `json:"duplicate,omitempty"`
	IndicatorsCalculated bool               `json:"indicators_calculated"`
	Prediction           *models.Prediction `json:"prediction"`
}
