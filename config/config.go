package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Market     MarketConfig
	Prediction PredictionConfig
	Risk       RiskConfig
	Lifecycle  LifecycleConfig
	Feed       FeedConfig
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// MarketConfig holds market context provider settings
type MarketConfig struct {
	FearGreedURL       string
	GlobalURL          string
	ReferenceSymbol    string
	ReferenceTimeframe string
	ContextTTL         time.Duration
	FetchTimeout       time.Duration
	BreakerFailures    int
	BreakerCoolDown    time.Duration
}

// PredictionConfig holds scoring and model settings
type PredictionConfig struct {
	Strategy           string // auto | rules | model
	RulesVersion       string
	MinConfidence      float64
	MinCandles         int
	MaxCandles         int
	HorizonBars        int
	ModelPath          string
	MinTrainingSamples int
	AutoRetrain        bool
	RetrainHour        int
}

// RiskConfig holds exit level, sizing and cost settings
type RiskConfig struct {
	SLATRMultiplier     float64
	TPATRMultiplier     float64
	BasePositionPct     float64
	TargetVolatilityPct float64
	MaxPositionPct      float64
	FeeRatePct          float64
	SlippagePct         float64
	FlatBandPct         float64
	ExpiryNeutral       bool
}

// LifecycleConfig holds background worker settings
type LifecycleConfig struct {
	MonitorInterval time.Duration
	FoldInterval    time.Duration
	FineTimeframe   string
}

// FeedConfig holds exchange kline stream settings
type FeedConfig struct {
	Enabled    bool
	WSURL      string
	Symbols    []string
	Timeframes []string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			Name:     getEnvOrDefault("DB_NAME", "crypto_signals"),
			User:     getEnvOrDefault("DB_USER", "signals"),
			Password: getEnvOrDefault("DB_PASSWORD", "signals123"),
		},

		Redis: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},

		Server: ServerConfig{
			Port:            getEnvInt("API_PORT", 8080),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},

		Market: MarketConfig{
			FearGreedURL:       getEnvOrDefault("FEAR_GREED_API_URL", "https://api.alternative.me/fng/"),
			GlobalURL:          getEnvOrDefault("COINGECKO_API_URL", "https://api.coingecko.com/api/v3/global"),
			ReferenceSymbol:    getEnvOrDefault("MARKET_REFERENCE_SYMBOL", "BTCUSDT"),
			ReferenceTimeframe: getEnvOrDefault("MARKET_REFERENCE_TIMEFRAME", "1d"),
			ContextTTL:         getEnvDuration("MARKET_CONTEXT_TTL", 5*time.Minute),
			FetchTimeout:       getEnvDuration("MARKET_FETCH_TIMEOUT", 10*time.Second),
			BreakerFailures:    getEnvInt("MARKET_BREAKER_FAILURES", 5),
			BreakerCoolDown:    getEnvDuration("MARKET_BREAKER_COOLDOWN", 60*time.Second),
		},

		Prediction: PredictionConfig{
			Strategy:           getEnvOrDefault("PREDICTION_STRATEGY", "auto"),
			RulesVersion:       getEnvOrDefault("RULES_VERSION", "v1.0"),
			MinConfidence:      getEnvFloat("MIN_CONFIDENCE_THRESHOLD", 70),
			MinCandles:         getEnvInt("MIN_CANDLES_FOR_INDICATORS", 50),
			MaxCandles:         getEnvInt("MAX_CANDLES_HISTORY", 500),
			HorizonBars:        getEnvInt("HORIZON_BARS", 24),
			ModelPath:          getEnvOrDefault("MODEL_PATH", "./models"),
			MinTrainingSamples: getEnvInt("MIN_TRAINING_SAMPLES", 200),
			AutoRetrain:        getEnvBool("AUTO_RETRAIN", false),
			RetrainHour:        getEnvInt("RETRAIN_HOUR", 3),
		},

		Risk: RiskConfig{
			SLATRMultiplier:     getEnvFloat("SL_ATR_MULTIPLIER", 1.5),
			TPATRMultiplier:     getEnvFloat("TP_ATR_MULTIPLIER", 2.25),
			BasePositionPct:     getEnvFloat("BASE_POSITION_PCT", 5),
			TargetVolatilityPct: getEnvFloat("TARGET_VOLATILITY_PCT", 2),
			MaxPositionPct:      getEnvFloat("MAX_POSITION_PCT", 10),
			FeeRatePct:          getEnvFloat("FEE_RATE_PCT", 0.1),
			SlippagePct:         getEnvFloat("SLIPPAGE_PCT", 0.05),
			FlatBandPct:         getEnvFloat("FLAT_BAND_PCT", 0.1),
			ExpiryNeutral:       getEnvBool("EXPIRY_NEUTRAL", true),
		},

		Lifecycle: LifecycleConfig{
			MonitorInterval: getEnvDuration("MONITOR_INTERVAL", time.Minute),
			FoldInterval:    getEnvDuration("FOLD_INTERVAL", time.Minute),
			FineTimeframe:   getEnvOrDefault("FINE_TIMEFRAME", "1m"),
		},

		Feed: FeedConfig{
			Enabled:    getEnvBool("FEED_ENABLED", false),
			WSURL:      getEnvOrDefault("FEED_WS_URL", "wss://stream.binance.com:9443/stream"),
			Symbols:    getEnvList("FEED_SYMBOLS", []string{"BTCUSDT", "ETHUSDT"}),
			Timeframes: getEnvList("FEED_TIMEFRAMES", []string{"1h"}),
		},
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvBool accepts true/false, 1/0, yes/no
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// getEnvDuration parses a Go duration ("90s", "5m") or plain seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
