// Package market attaches macro context to predictions. Upstream failures degrade the
// snapshot instead of failing the caller.
package market

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	models "crypto-signal-engine/database/models_pkg"

	"golang.org/x/sync/singleflight"
)

// Snapshot sources reported in MarketContext.Source
const (
	SourceFresh    = "fresh"
	SourceCache    = "cache"
	SourceMemory   = "memory"
	SourceLastGood = "last_good"
	SourceNeutral  = "neutral"
)

// CandleSource supplies reference candles for regime detection
type CandleSource interface {
	Window(ctx context.Context, symbol, timeframe string, upto int64, length, minRequired int) ([]models.Candle, error)
}

// Store persists fresh snapshots
type Store interface {
	SaveMarketContext(ctx context.Context, mc *models.MarketContext) error
}

// Cache is the shared snapshot cache
type Cache interface {
	GetCurrent(ctx context.Context) (*models.MarketContext, bool)
	GetLastGood(ctx context.Context) (*models.MarketContext, bool)
	Store(ctx context.Context, mc *models.MarketContext) error
}

// Config holds provider settings
type Config struct {
	ReferenceSymbol    string
	ReferenceTimeframe string
	TTL                time.Duration
	FetchTimeout       time.Duration
	BreakerFailures    int
	BreakerCoolDown    time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		ReferenceSymbol:    "BTCUSDT",
		ReferenceTimeframe: "1d",
		TTL:                5 * time.Minute,
		FetchTimeout:       10 * time.Second,
		BreakerFailures:    5,
		BreakerCoolDown:    60 * time.Second,
	}
}

var errNoUpstream = errors.New("no market data source succeeded")

// Provider serves the current market context
type Provider struct {
	cfg     Config
	sources *Sources
	candles CandleSource
	store   Store
	cache   Cache

	fearGreedBreaker *Breaker
	globalBreaker    *Breaker

	group singleflight.Group

	mu     sync.RWMutex
	last   *models.MarketContext
	lastAt time.Time

	now func() time.Time
}

// NewProvider creates a provider. store and cache may be nil.
func NewProvider(cfg Config, sources *Sources, candles CandleSource, store Store, cache Cache) *Provider {
	p := &Provider{
		cfg:              cfg,
		sources:          sources,
		candles:          candles,
		store:            store,
		cache:            cache,
		fearGreedBreaker: NewBreaker("fear_greed", cfg.BreakerFailures, cfg.BreakerCoolDown),
		globalBreaker:    NewBreaker("global_market", cfg.BreakerFailures, cfg.BreakerCoolDown),
		now:              time.Now,
	}

	logChange := func(name string, from, to BreakerState) {
		log.Printf("⚠️ Market source %s breaker %s -> %s", name, from, to)
	}
	p.fearGreedBreaker.OnStateChange = logChange
	p.globalBreaker.OnStateChange = logChange
	return p
}

// Current returns the freshest available context. It never fails: when every source
// and cache is unavailable a neutral context with regime unknown is returned.
func (p *Provider) Current(ctx context.Context) *models.MarketContext {
	if mc, ok := p.memory(true); ok {
		mc.Source = SourceCache
		return mc
	}

	if p.cache != nil {
		if mc, ok := p.cache.GetCurrent(ctx); ok {
			p.remember(mc, time.UnixMilli(mc.Timestamp))
			mc.Stale = false
			mc.Source = SourceCache
			return mc
		}
	}

	v, err, _ := p.group.Do("current", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FetchTimeout)
		defer cancel()
		return p.refresh(fetchCtx)
	})
	if err == nil {
		mc := *v.(*models.MarketContext)
		return &mc
	}
	log.Printf("⚠️ Market context refresh failed: %v", err)

	if mc, ok := p.memory(false); ok {
		mc.Stale = true
		mc.Source = SourceMemory
		return mc
	}

	if p.cache != nil {
		if mc, ok := p.cache.GetLastGood(ctx); ok {
			mc.Stale = true
			mc.Source = SourceLastGood
			return mc
		}
	}

	return Neutral(p.now())
}

// Neutral returns a context with no macro data
func Neutral(at time.Time) *models.MarketContext {
	return &models.MarketContext{
		Timestamp:    at.UnixMilli(),
		MarketRegime: models.RegimeUnknown,
		Stale:        true,
		Source:       SourceNeutral,
	}
}

// refresh fetches every source, persists and caches the result
func (p *Provider) refresh(ctx context.Context) (*models.MarketContext, error) {
	now := p.now()
	mc := &models.MarketContext{
		Timestamp:    now.UnixMilli(),
		MarketRegime: models.RegimeUnknown,
		Source:       SourceFresh,
	}
	succeeded := 0

	if p.sources != nil {
		var fg *FearGreed
		err := p.fearGreedBreaker.Execute(func() error {
			var err error
			fg, err = p.sources.FetchFearGreed(ctx)
			return err
		})
		if err != nil {
			log.Printf("⚠️ Fear & Greed unavailable: %v", err)
		} else {
			mc.FearGreedIndex = &fg.Value
			mc.FearGreedClassification = &fg.Classification
			succeeded++
		}

		var global *GlobalMarket
		err = p.globalBreaker.Execute(func() error {
			var err error
			global, err = p.sources.FetchGlobal(ctx)
			return err
		})
		if err != nil {
			log.Printf("⚠️ Global market data unavailable: %v", err)
		} else {
			mc.BTCDominance = global.BTCDominance
			mc.ETHDominance = global.ETHDominance
			mc.TotalMarketCap = global.TotalMarketCap
			mc.TotalVolume24h = global.TotalVolume24h
			succeeded++
		}
	}

	if p.candles != nil {
		daily, err := p.candles.Window(ctx, p.cfg.ReferenceSymbol, p.cfg.ReferenceTimeframe,
			now.UnixMilli(), RegimeLookback, regimeMinCandles)
		if err != nil {
			log.Printf("⚠️ Regime candles unavailable for %s: %v", p.cfg.ReferenceSymbol, err)
		} else {
			reading := ClassifyRegime(daily)
			mc.MarketRegime = reading.Regime
			mc.VolatilityIndex = reading.Volatility
			mc.BTCPrice = reading.LastPrice
			if reading.Regime != models.RegimeUnknown {
				succeeded++
			}
		}
	}

	if succeeded == 0 {
		return nil, errNoUpstream
	}

	if p.store != nil {
		if err := p.store.SaveMarketContext(ctx, mc); err != nil {
			log.Printf("⚠️ Failed to persist market context: %v", err)
		}
	}
	if p.cache != nil {
		if err := p.cache.Store(ctx, mc); err != nil {
			log.Printf("⚠️ Failed to cache market context: %v", err)
		}
	}

	p.remember(mc, now)
	log.Printf("🌐 Market context refreshed: regime=%s sources=%d", mc.MarketRegime, succeeded)
	return mc, nil
}

// memory returns a copy of the in-process snapshot; fresh limits it to the TTL
func (p *Provider) memory(fresh bool) (*models.MarketContext, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.last == nil {
		return nil, false
	}
	if fresh && p.now().Sub(p.lastAt) >= p.cfg.TTL {
		return nil, false
	}
	mc := *p.last
	return &mc, true
}

func (p *Provider) remember(mc *models.MarketContext, at time.Time) {
	cp := *mc
	p.mu.Lock()
	p.last = &cp
	p.lastAt = at
	p.mu.Unlock()
}
