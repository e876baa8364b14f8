package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/analytics"
	"crypto-signal-engine/database/candles"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/signals"
	"crypto-signal-engine/database/types"
	"crypto-signal-engine/metrics"
	"crypto-signal-engine/notifications"
	"crypto-signal-engine/prediction"
	"crypto-signal-engine/realtime"
)

// CandleSubmitter runs a candle through the signal pipeline
type CandleSubmitter interface {
	SubmitCandle(ctx context.Context, c *models.Candle) (*types.SubmitResult, error)
}

// SignalCanceller cancels open predictions
type SignalCanceller interface {
	Cancel(ctx context.Context, id int64, reason string) (*models.Prediction, error)
}

// ModelRetrainer trains and activates a new learned model on demand
type ModelRetrainer interface {
	Retrain(ctx context.Context) (*models.ModelPerformance, error)
}

// ContextSource reports the current market context
type ContextSource interface {
	Current(ctx context.Context) *models.MarketContext
}

// Server handles HTTP API requests
type Server struct {
	db        *database.Database
	candles   *candles.Repository
	signals   *signals.Repository
	analytics *analytics.Repository
	reporting *database.ReportingDB // PostgreSQL only, may be nil
	engine    *prediction.Engine
	webhookMq *notifications.WebhookManager
	broker    *realtime.Broker
	metrics   *metrics.Metrics

	pipeline  CandleSubmitter
	lifecycle SignalCanceller
	retrainer ModelRetrainer
	market    ContextSource

	httpServer *http.Server
}

// NewServer creates a new API server instance
func NewServer(db *database.Database, cr *candles.Repository, sig *signals.Repository, an *analytics.Repository, engine *prediction.Engine, webhookMq *notifications.WebhookManager, broker *realtime.Broker, m *metrics.Metrics) *Server {
	return &Server{
		db:        db,
		candles:   cr,
		signals:   sig,
		analytics: an,
		engine:    engine,
		webhookMq: webhookMq,
		broker:    broker,
		metrics:   m,
	}
}

// SetPipeline sets the candle submission use case
func (s *Server) SetPipeline(p CandleSubmitter) {
	s.pipeline = p
}

// SetLifecycle sets the signal cancellation use case
func (s *Server) SetLifecycle(l SignalCanceller) {
	s.lifecycle = l
}

// SetRetrainer sets the on-demand training use case
func (s *Server) SetRetrainer(r ModelRetrainer) {
	s.retrainer = r
}

// SetMarketContext sets the market context provider
func (s *Server) SetMarketContext(m ContextSource) {
	s.market = m
}

// SetReportingDB enables the PostgreSQL rollups
func (s *Server) SetReportingDB(r *database.ReportingDB) {
	s.reporting = r
}

// Handler builds the routed handler with middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Core operations
	mux.HandleFunc("POST /api/candles", s.handleSubmitCandle)
	mux.HandleFunc("GET /api/signals/active", s.handleGetActiveSignals)
	mux.HandleFunc("GET /health", s.handleHealth)

	// Candles and predictions
	mux.HandleFunc("GET /api/candles/{symbol}/{timeframe}", s.handleGetCandles)
	mux.HandleFunc("GET /api/predictions/{id}", s.handleGetPrediction)
	mux.HandleFunc("POST /api/predictions/{id}/cancel", s.handleCancelPrediction)
	mux.HandleFunc("GET /api/stats", s.handleGetStats)

	// Models and patterns
	mux.HandleFunc("GET /api/models", s.handleGetModels)
	mux.HandleFunc("GET /api/models/statistics", s.handleGetModelStatistics)
	mux.HandleFunc("POST /api/models/retrain", s.handleRetrain)
	mux.HandleFunc("GET /api/patterns", s.handleGetPatterns)
	mux.HandleFunc("GET /api/market/context", s.handleGetMarketContext)

	// Webhook Management Routes
	mux.HandleFunc("GET /api/webhooks", s.handleGetWebhooks)
	mux.HandleFunc("POST /api/webhooks", s.handleCreateWebhook)
	mux.HandleFunc("DELETE /api/webhooks/{id}", s.handleDeleteWebhook)
	mux.HandleFunc("GET /api/webhooks/{id}/logs", s.handleGetWebhookLogs)

	if s.broker != nil {
		mux.Handle("GET /api/events", s.broker) // SSE Endpoint
	}
	mux.Handle("GET /metrics", s.metrics.Handler())

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start starts the HTTP server on the specified port. It returns nil after Shutdown.
func (s *Server) Start(port int) error {
	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	s.httpServer = &http.Server{
		Addr:              serverAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("🚀 API Server starting on %s", serverAddr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps the SSE endpoint streaming through the recorder
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(r.Method, route, rec.status, elapsed)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, rec.status, elapsed)
	})
}

// Handlers are distributed across multiple files:
// - handlers_candles.go: submit_candle and candle history
// - handlers_signals.go: active signals, predictions, cancellation
// - handlers_models.go: models, statistics, retraining, patterns
// - handlers_config.go: health, stats, market context, webhooks
