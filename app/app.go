package app

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"crypto-signal-engine/api"
	"crypto-signal-engine/cache"
	"crypto-signal-engine/config"
	"crypto-signal-engine/database"
	"crypto-signal-engine/database/analytics"
	"crypto-signal-engine/database/candles"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/signals"
	"crypto-signal-engine/handlers"
	"crypto-signal-engine/market"
	"crypto-signal-engine/metrics"
	"crypto-signal-engine/notifications"
	"crypto-signal-engine/prediction"
	"crypto-signal-engine/realtime"
	"crypto-signal-engine/websocket"
)

const (
	feedPingInterval     = 25 * time.Second
	initialReconnectWait = 5 * time.Second
	maxReconnectWait     = 60 * time.Second
)

// App represents the main application
type App struct {
	config         *config.Config
	db             *database.Database
	reporting      *database.ReportingDB
	redis          *cache.RedisClient
	metrics        *metrics.Metrics
	wsManager      *websocket.ConnectionManager
	handlerManager *handlers.HandlerManager
	webhookManager *notifications.WebhookManager
	broker         *realtime.Broker
	apiServer      *api.Server

	candleRepo    *candles.Repository
	signalRepo    *signals.Repository
	analyticsRepo *analytics.Repository

	engine    *prediction.Engine
	market    *market.Provider
	lifecycle *LifecycleManager
	pipeline  *Pipeline

	signalMonitor *SignalMonitor
	patternMiner  *PatternMiner
	perfTracker   *PerformanceTracker
	retrainer     *RetrainScheduler
	statsRefresh  *StatisticsRefresher
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{
		config:         cfg,
		metrics:        metrics.NewMetrics(),
		handlerManager: handlers.NewHandlerManager(),
	}
}

// Start starts the application and blocks until shutdown
func (a *App) Start() error {
	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database Connection
	if err := a.connectDatabase(ctx); err != nil {
		return err
	}

	// 2. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	a.redis = cache.NewRedisClient(
		a.config.Redis.Host,
		a.config.Redis.Port,
		a.config.Redis.Password,
		a.config.Redis.DB,
	)
	if a.redis == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	}

	// 3. Pipeline components
	a.buildPipeline(ctx)

	// 4. Realtime broker and webhooks
	a.broker = realtime.NewBroker()
	go a.broker.Run()
	a.webhookManager = notifications.NewWebhookManager(a.analyticsRepo, cache.NewWebhookCache(a.redis))
	a.registerHooks()

	// 5. Background workers
	a.startWorkers()

	// 6. API Server
	a.apiServer = api.NewServer(a.db, a.candleRepo, a.signalRepo, a.analyticsRepo, a.engine, a.webhookManager, a.broker, a.metrics)
	a.apiServer.SetPipeline(a.pipeline)
	a.apiServer.SetLifecycle(a.lifecycle)
	a.apiServer.SetRetrainer(a.retrainer)
	a.apiServer.SetMarketContext(a.market)
	if a.reporting != nil {
		a.apiServer.SetReportingDB(a.reporting)
	}
	go func() {
		if err := a.apiServer.Start(a.config.Server.Port); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	// Setup WaitGroup for goroutines
	var wg sync.WaitGroup

	// 7. Exchange kline feed
	if a.config.Feed.Enabled {
		if err := a.startFeed(ctx, &wg); err != nil {
			log.Printf("⚠️  Kline feed disabled: %v", err)
		}
	} else {
		log.Println("ℹ️  Kline feed DISABLED, candles arrive through POST /api/candles")
	}

	// 8. Wait for interrupt and perform graceful shutdown
	err := a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// connectDatabase opens the GORM pool, migrates the schema and, on PostgreSQL,
// opens the reporting pool
func (a *App) connectDatabase(ctx context.Context) error {
	fmt.Println("🗄️  Connecting to database...")

	dbPort, err := strconv.Atoi(a.config.Database.Port)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}

	db, err := database.Connect(
		a.config.Database.Host,
		dbPort,
		a.config.Database.Name,
		a.config.Database.User,
		a.config.Database.Password,
		"disable",
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	// Initialize schema (AutoMigrate + views)
	if err := a.db.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	a.candleRepo = candles.NewRepository(a.db.DB())
	a.signalRepo = signals.NewRepository(a.db.DB())
	a.analyticsRepo = analytics.NewRepository(a.db.DB())

	reporting, err := database.NewReportingDB(ctx, database.Config{
		Host:     a.config.Database.Host,
		Port:     a.config.Database.Port,
		User:     a.config.Database.User,
		Password: a.config.Database.Password,
		DBName:   a.config.Database.Name,
		SSLMode:  "disable",
	})
	if err != nil {
		log.Printf("⚠️  Reporting pool unavailable, stats fall back to GORM: %v", err)
	} else {
		a.reporting = reporting
	}
	return nil
}

// buildPipeline wires market context, the prediction engine, the lifecycle manager
// and the submit_candle pipeline
func (a *App) buildPipeline(ctx context.Context) {
	mc := a.config.Market
	a.market = market.NewProvider(
		market.Config{
			ReferenceSymbol:    mc.ReferenceSymbol,
			ReferenceTimeframe: mc.ReferenceTimeframe,
			TTL:                mc.ContextTTL,
			FetchTimeout:       mc.FetchTimeout,
			BreakerFailures:    mc.BreakerFailures,
			BreakerCoolDown:    mc.BreakerCoolDown,
		},
		market.NewSources(mc.FearGreedURL, mc.GlobalURL, mc.FetchTimeout),
		a.candleRepo,
		a.analyticsRepo,
		cache.NewContextCache(a.redis, mc.ContextTTL),
	)

	pc, rc := a.config.Prediction, a.config.Risk
	a.engine = prediction.NewEngine(prediction.Config{
		Strategy:            pc.Strategy,
		RulesVersion:        pc.RulesVersion,
		MinConfidence:       pc.MinConfidence,
		SLATRMultiplier:     rc.SLATRMultiplier,
		TPATRMultiplier:     rc.TPATRMultiplier,
		BasePositionPct:     rc.BasePositionPct,
		TargetVolatilityPct: rc.TargetVolatilityPct,
		MaxPositionPct:      rc.MaxPositionPct,
		HorizonBars:         pc.HorizonBars,
	})

	evaluator := NewOutcomeEvaluator(OutcomeConfig{
		FeeRatePct:    rc.FeeRatePct,
		SlippagePct:   rc.SlippagePct,
		FlatBandPct:   rc.FlatBandPct,
		ExpiryNeutral: rc.ExpiryNeutral,
	})
	a.lifecycle = NewLifecycleManager(a.signalRepo, a.candleRepo, evaluator, a.market, LifecycleConfig{
		MonitorInterval: a.config.Lifecycle.MonitorInterval,
		FineTimeframe:   a.config.Lifecycle.FineTimeframe,
	})

	a.pipeline = NewPipeline(a.candleRepo, a.signalRepo, a.engine, a.market, a.lifecycle, a.metrics, PipelineConfig{
		MinCandles: pc.MinCandles,
		MaxCandles: pc.MaxCandles,
	})

	a.patternMiner = NewPatternMiner(a.analyticsRepo, a.config.Lifecycle.FoldInterval)
	a.perfTracker = NewPerformanceTracker(a.analyticsRepo, a.config.Lifecycle.FoldInterval)

	// The rule scorer is always servable; register it so its trades are tracked
	if err := a.perfTracker.EnsureModel(ctx, a.engine.RulesVersion(), models.ModelTypeRuleBased, "rules"); err != nil {
		log.Printf("⚠️  Failed to register rule model %s: %v", a.engine.RulesVersion(), err)
	}
	if err := LoadActiveModel(ctx, a.analyticsRepo, a.engine); err != nil {
		log.Printf("ℹ️  Serving rule-based scorer %s: %v", a.engine.RulesVersion(), err)
	}

	trainerCfg := prediction.DefaultTrainerConfig()
	trainerCfg.MinSamples = pc.MinTrainingSamples
	a.retrainer = NewRetrainScheduler(a.signalRepo, a.analyticsRepo, a.engine, prediction.NewTrainer(trainerCfg), RetrainConfig{
		Enabled:  pc.AutoRetrain,
		Hour:     pc.RetrainHour,
		ModelDir: pc.ModelPath,
	})

	log.Printf("✅ Prediction engine ready (strategy %s, scorer %s, min confidence %.0f)",
		pc.Strategy, a.engine.Scorer().Version(), pc.MinConfidence)
}

// registerHooks fans signal events out to SSE clients, webhooks, metrics and the folds
func (a *App) registerHooks() {
	a.pipeline.OnSignal(func(p models.Prediction) {
		a.broker.Broadcast(realtime.EventSignalCreated, p)
		a.webhookManager.SendSignal(&p)
	})

	a.lifecycle.OnResolved(func(p models.Prediction, r models.Result) {
		a.broker.Broadcast(realtime.EventSignalResolved, map[string]interface{}{
			"prediction": p,
			"result":     r,
		})
		a.webhookManager.SendResolution(&p, &r)
		a.metrics.ObserveResolution(p.Status, r.ActualOutcome)
		a.patternMiner.Nudge()
		a.perfTracker.Nudge()
	})
}

// startWorkers launches the monitor, folds, retraining and rollup refresh
func (a *App) startWorkers() {
	log.Println("🚀 Starting background workers...")

	a.signalMonitor = NewSignalMonitor(a.signalRepo, a.lifecycle, a.config.Lifecycle.MonitorInterval)
	a.signalMonitor.SetMetrics(a.metrics)
	go a.signalMonitor.Start()

	go a.patternMiner.Start()
	go a.perfTracker.Start()
	go a.retrainer.Start()

	if a.reporting != nil {
		a.statsRefresh = NewStatisticsRefresher(a.reporting)
		go a.statsRefresh.Start()
	}
}

// startFeed connects the kline stream and starts the reader and health monitor
func (a *App) startFeed(ctx context.Context, wg *sync.WaitGroup) error {
	wsURL, err := websocket.StreamURL(a.config.Feed.WSURL, a.config.Feed.Symbols, a.config.Feed.Timeframes)
	if err != nil {
		return err
	}

	a.handlerManager.RegisterHandler(handlers.NewKlineHandler(func(ctx context.Context, c *models.Candle) error {
		_, err := a.pipeline.SubmitCandle(ctx, c)
		return err
	}))

	a.wsManager = websocket.NewConnectionManager(wsURL, a.metrics)
	if err := a.wsManager.Connect(); err != nil {
		return err
	}
	a.wsManager.StartPing(feedPingInterval)
	log.Printf("✅ Kline feed connected (%d symbols x %d timeframes)", len(a.config.Feed.Symbols), len(a.config.Feed.Timeframes))

	wg.Add(2)
	go func() {
		defer wg.Done()
		a.wsManager.RunHealthMonitor(ctx)
	}()
	go func() {
		defer wg.Done()
		a.readAndProcessMessages(ctx)
	}()
	return nil
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	// Setup signal handling
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	// Wait for interrupt signal
	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	// Cancel context to stop all goroutines
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown tasks with timeout
	shutdownComplete := make(chan struct{})
	go func() {
		fmt.Println("🌐 Stopping API server...")
		if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error stopping API server: %v", err)
		}

		if a.wsManager != nil {
			fmt.Println("📡 Closing kline WebSocket connection...")
			if err := a.wsManager.Close(); err != nil {
				log.Printf("Error closing kline WebSocket: %v", err)
			} else {
				fmt.Println("✅ Kline WebSocket closed")
			}
		}

		// Stop workers
		fmt.Println("📊 Stopping signal monitor...")
		a.signalMonitor.Stop()
		fmt.Println("🎨 Stopping pattern miner...")
		a.patternMiner.Stop()
		fmt.Println("📈 Stopping performance tracker...")
		a.perfTracker.Stop()
		fmt.Println("🧠 Stopping retrain scheduler...")
		a.retrainer.Stop()
		if a.statsRefresh != nil {
			fmt.Println("🔄 Stopping statistics refresher...")
			a.statsRefresh.Stop()
		}

		a.broker.Stop()
		a.webhookManager.Wait()

		// Close database connections
		if a.reporting != nil {
			if err := a.reporting.Close(); err != nil {
				log.Printf("Error closing reporting pool: %v", err)
			}
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}

		// Close Redis connection
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	// Wait for shutdown to complete or timeout
	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}

// readAndProcessMessages reads kline frames and dispatches them, reconnecting with
// exponential backoff when the stream drops
func (a *App) readAndProcessMessages(ctx context.Context) {
	reconnectDelay := initialReconnectWait

	for {
		select {
		case <-ctx.Done():
			return
		default:
			message, err := a.wsManager.ReadMessage()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					// WebSocket connection error - attempt reconnection
					log.Printf("⚠️  WebSocket error: %v", err)
					log.Printf("🔄 Attempting to reconnect in %v...", reconnectDelay)

					// Wait before reconnecting
					select {
					case <-ctx.Done():
						return
					case <-time.After(reconnectDelay):
					}

					// Try to reconnect via manager
					if err := a.wsManager.Reconnect(); err != nil {
						log.Printf("❌ Reconnection failed: %v", err)
						// Exponential backoff
						reconnectDelay = reconnectDelay * 2
						if reconnectDelay > maxReconnectWait {
							reconnectDelay = maxReconnectWait
						}
						continue
					}

					// Reset delay on successful reconnection
					reconnectDelay = initialReconnectWait
					continue
				}
			}

			if err := a.handlerManager.Dispatch(message); err != nil {
				log.Printf("Handler error: %v", err)
				// Don't terminate on handler errors, just log and continue
				continue
			}
		}
	}
}
