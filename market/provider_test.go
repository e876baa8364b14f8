package market

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	models "crypto-signal-engine/database/models_pkg"
)

type upstream struct {
	fearGreed *httptest.Server
	global    *httptest.Server
	hits      atomic.Int32
	failing   atomic.Bool
	fgFailing atomic.Bool
}

func newUpstream(t *testing.T, delay time.Duration) *upstream {
	t.Helper()
	u := &upstream{}
	u.fearGreed = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		time.Sleep(delay)
		if u.failing.Load() || u.fgFailing.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"name":"Fear and Greed Index","data":[{"value":"25","value_classification":"Extreme Fear","timestamp":"1704067200"}]}`)
	}))
	u.global = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u.failing.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data":{"market_cap_percentage":{"btc":52.3,"eth":16.8},"total_market_cap":{"usd":1.7e12},"total_volume":{"usd":6.5e10}}}`)
	}))
	t.Cleanup(u.fearGreed.Close)
	t.Cleanup(u.global.Close)
	return u
}

type fakeStore struct {
	mu    sync.Mutex
	saved []models.MarketContext
}

func (s *fakeStore) SaveMarketContext(ctx context.Context, mc *models.MarketContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mc.ID = int64(len(s.saved) + 1)
	s.saved = append(s.saved, *mc)
	return nil
}

type fakeCache struct {
	current  *models.MarketContext
	lastGood *models.MarketContext
}

func (c *fakeCache) GetCurrent(ctx context.Context) (*models.MarketContext, bool) {
	if c.current == nil {
		return nil, false
	}
	mc := *c.current
	return &mc, true
}

func (c *fakeCache) GetLastGood(ctx context.Context) (*models.MarketContext, bool) {
	if c.lastGood == nil {
		return nil, false
	}
	mc := *c.lastGood
	return &mc, true
}

func (c *fakeCache) Store(ctx context.Context, mc *models.MarketContext) error {
	cp := *mc
	c.current = &cp
	c.lastGood = &cp
	return nil
}

type fakeCandles struct {
	daily []models.Candle
}

func (f *fakeCandles) Window(ctx context.Context, symbol, timeframe string, upto int64, length, minRequired int) ([]models.Candle, error) {
	if len(f.daily) < minRequired {
		return nil, fmt.Errorf("not enough candles")
	}
	return f.daily, nil
}

func dailyCloses(closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{Symbol: "BTCUSDT", Timeframe: "1d", OpenTime: int64(i) * 86400000, Close: c}
	}
	return out
}

func newTestProvider(u *upstream, candles CandleSource, store Store, cache Cache) *Provider {
	cfg := DefaultConfig()
	cfg.FetchTimeout = 2 * time.Second
	return NewProvider(cfg, NewSources(u.fearGreed.URL, u.global.URL, time.Second), candles, store, cache)
}

func TestCurrentFetchesOnceAndCaches(t *testing.T) {
	u := newUpstream(t, 0)
	store := &fakeStore{}
	p := newTestProvider(u, &fakeCandles{daily: dailyCloses(100, 105, 112)}, store, nil)

	mc := p.Current(context.Background())
	if mc.Source != SourceFresh || mc.Stale {
		t.Fatalf("expected a fresh snapshot, got %s stale=%v", mc.Source, mc.Stale)
	}
	if mc.FearGreedIndex == nil || *mc.FearGreedIndex != 25 {
		t.Errorf("expected fear & greed 25, got %v", mc.FearGreedIndex)
	}
	if mc.FearGreedClassification == nil || *mc.FearGreedClassification != "Extreme Fear" {
		t.Errorf("unexpected classification %v", mc.FearGreedClassification)
	}
	if mc.BTCDominance == nil || *mc.BTCDominance != 52.3 {
		t.Errorf("expected btc dominance 52.3, got %v", mc.BTCDominance)
	}
	if mc.MarketRegime != models.RegimeBull {
		t.Errorf("expected bull regime from +12%%, got %s", mc.MarketRegime)
	}
	if mc.BTCPrice == nil || *mc.BTCPrice != 112 {
		t.Errorf("expected btc price 112, got %v", mc.BTCPrice)
	}
	if mc.ID != 1 || len(store.saved) != 1 {
		t.Errorf("expected the snapshot to be persisted once, got id %d saved %d", mc.ID, len(store.saved))
	}

	again := p.Current(context.Background())
	if again.Source != SourceCache {
		t.Errorf("expected cached snapshot, got %s", again.Source)
	}
	if u.hits.Load() != 1 {
		t.Errorf("expected one upstream call, got %d", u.hits.Load())
	}
}

func TestCurrentCollapsesConcurrentRefreshes(t *testing.T) {
	u := newUpstream(t, 50*time.Millisecond)
	p := newTestProvider(u, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if mc := p.Current(context.Background()); mc.FearGreedIndex == nil {
				t.Error("expected fear & greed on every caller")
			}
		}()
	}
	wg.Wait()

	if got := u.hits.Load(); got != 1 {
		t.Errorf("expected a single upstream fetch, got %d", got)
	}
}

func TestCurrentFallbackOrder(t *testing.T) {
	t.Run("stale memory", func(t *testing.T) {
		u := newUpstream(t, 0)
		p := newTestProvider(u, nil, nil, nil)
		start := time.Now()
		p.now = func() time.Time { return start }
		p.Current(context.Background())

		u.failing.Store(true)
		p.now = func() time.Time { return start.Add(10 * time.Minute) }

		mc := p.Current(context.Background())
		if mc.Source != SourceMemory || !mc.Stale {
			t.Fatalf("expected stale memory copy, got %s stale=%v", mc.Source, mc.Stale)
		}
		if mc.FearGreedIndex == nil || *mc.FearGreedIndex != 25 {
			t.Errorf("stale copy lost its data")
		}
	})

	t.Run("redis last good", func(t *testing.T) {
		u := newUpstream(t, 0)
		u.failing.Store(true)
		fg := 61
		cache := &fakeCache{lastGood: &models.MarketContext{FearGreedIndex: &fg, MarketRegime: models.RegimeSideways}}
		p := newTestProvider(u, nil, nil, cache)

		mc := p.Current(context.Background())
		if mc.Source != SourceLastGood || !mc.Stale {
			t.Fatalf("expected last good copy, got %s stale=%v", mc.Source, mc.Stale)
		}
		if *mc.FearGreedIndex != 61 {
			t.Errorf("expected 61, got %d", *mc.FearGreedIndex)
		}
	})

	t.Run("redis current", func(t *testing.T) {
		u := newUpstream(t, 0)
		cache := &fakeCache{current: &models.MarketContext{Timestamp: time.Now().UnixMilli(), MarketRegime: models.RegimeBear}}
		p := newTestProvider(u, nil, nil, cache)

		mc := p.Current(context.Background())
		if mc.Source != SourceCache || mc.MarketRegime != models.RegimeBear {
			t.Fatalf("expected redis snapshot, got %s %s", mc.Source, mc.MarketRegime)
		}
		if u.hits.Load() != 0 {
			t.Errorf("expected no upstream call, got %d", u.hits.Load())
		}
	})

	t.Run("neutral", func(t *testing.T) {
		u := newUpstream(t, 0)
		u.failing.Store(true)
		p := newTestProvider(u, nil, nil, nil)

		mc := p.Current(context.Background())
		if mc.Source != SourceNeutral || mc.MarketRegime != models.RegimeUnknown {
			t.Fatalf("expected neutral context, got %s %s", mc.Source, mc.MarketRegime)
		}
		if mc.FearGreedIndex != nil || mc.BTCDominance != nil {
			t.Error("neutral context must carry no macro data")
		}
	})
}

func TestCurrentPartialContext(t *testing.T) {
	u := newUpstream(t, 0)
	u.fgFailing.Store(true)
	p := newTestProvider(u, nil, nil, nil)

	mc := p.Current(context.Background())
	if mc.Source != SourceFresh {
		t.Fatalf("expected fresh partial snapshot, got %s", mc.Source)
	}
	if mc.FearGreedIndex != nil {
		t.Errorf("expected null fear & greed, got %d", *mc.FearGreedIndex)
	}
	if mc.ETHDominance == nil || *mc.ETHDominance != 16.8 {
		t.Errorf("expected eth dominance 16.8, got %v", mc.ETHDominance)
	}
}

func TestClassifyRegime(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   string
	}{
		{"too short", []float64{100}, models.RegimeUnknown},
		{"bull", []float64{100, 104, 108, 111}, models.RegimeBull},
		{"bear", []float64{100, 96, 92, 89}, models.RegimeBear},
		{"sideways", []float64{100, 101, 100, 102}, models.RegimeSideways},
		{"volatile beats trend", []float64{100, 120, 95, 130}, models.RegimeVolatile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyRegime(dailyCloses(tt.closes...)).Regime; got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestBreaker(t *testing.T) {
	b := NewBreaker("test", 2, time.Minute)
	now := time.Now()
	b.now = func() time.Time { return now }

	fail := func() error { return fmt.Errorf("boom") }
	ok := func() error { return nil }

	b.Execute(fail)
	if b.State() != BreakerClosed {
		t.Fatalf("expected closed after one failure, got %s", b.State())
	}
	b.Execute(fail)
	if b.State() != BreakerOpen {
		t.Fatalf("expected open after two failures, got %s", b.State())
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != ErrBreakerOpen || called {
		t.Fatalf("expected rejection while open, got %v called=%v", err, called)
	}

	now = now.Add(2 * time.Minute)
	b.Execute(fail)
	if b.State() != BreakerOpen {
		t.Fatalf("failed probe should reopen, got %s", b.State())
	}

	now = now.Add(2 * time.Minute)
	if err := b.Execute(ok); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}
