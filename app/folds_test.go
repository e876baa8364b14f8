package app

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/analytics"
	"crypto-signal-engine/database/dbtest"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/signals"
	"crypto-signal-engine/prediction"
)

func floatPtr(f float64) *float64 {
	return &f
}

// oversoldSnapshot is an oversold, bullish MACD, uptrend feature snapshot
func oversoldSnapshot(t *testing.T, regime string) []byte {
	t.Helper()
	f := prediction.Features{Close: 100, Open: 99, High: 101, Low: 98, Volume: 1000, MarketRegime: regime}
	f.RSI14 = floatPtr(25)
	f.MACD = floatPtr(1)
	f.MACDSignal = floatPtr(0.5)
	f.EMA20 = floatPtr(101)
	f.EMA50 = floatPtr(100)
	f.VolumeRatio = floatPtr(120)
	f.ATR = floatPtr(2)
	data, err := f.Marshal()
	if err != nil {
		t.Fatalf("marshal features: %v", err)
	}
	return data
}

type foldFixture struct {
	signals   *signals.Repository
	analytics *analytics.Repository
	next      int64
}

func newFoldFixture(t *testing.T) *foldFixture {
	t.Helper()
	db := dbtest.New(t)
	return &foldFixture{
		signals:   signals.NewRepository(db.DB()),
		analytics: analytics.NewRepository(db.DB()),
	}
}

// resolved stores an executed prediction with its result
func (f *foldFixture) resolved(t *testing.T, direction, outcome string, pnl float64, regime string) *models.Prediction {
	t.Helper()
	f.next++
	ctx := context.Background()

	p := &models.Prediction{
		CandleID:            f.next,
		Symbol:              "BTCUSDT",
		Timeframe:           "1h",
		PredictionType:      direction,
		ConfidenceScore:     80,
		EntryPrice:          100,
		SuggestedStopLoss:   97,
		SuggestedTakeProfit: 104.5,
		ModelVersion:        "v1.0",
		ModelType:           models.ModelTypeRuleBased,
		FeaturesUsed:        oversoldSnapshot(t, models.RegimeBull),
		PredictionTime:      f.next * hourMs,
		Status:              models.StatusPending,
		Priority:            models.PriorityHigh,
	}
	if err := f.signals.SavePrediction(ctx, p); err != nil {
		t.Fatalf("save prediction: %v", err)
	}

	r := &models.Result{
		ActualOutcome:              outcome,
		EntryPrice:                 100,
		ExitPrice:                  100 + pnl,
		ProfitLossPercentage:       pnl,
		ExitReason:                 models.ExitOther,
		MarketConditionDuringTrade: regime,
		ResultTime:                 (f.next + 1) * hourMs,
	}
	if err := f.signals.Resolve(ctx, p.ID, database.ActiveStatuses, models.StatusExecuted, r); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return p
}

func TestPatternMinerFoldsOnce(t *testing.T) {
	f := newFoldFixture(t)
	ctx := context.Background()

	long := f.resolved(t, models.DirectionLong, models.OutcomeWin, 4.5, models.RegimeBull)
	f.resolved(t, models.DirectionStrongLong, models.OutcomeWin, 4.5, models.RegimeBull)
	f.resolved(t, models.DirectionLong, models.OutcomeLoss, -3, models.RegimeBull)
	f.resolved(t, models.DirectionLong, models.OutcomePartialWin, 1.5, models.RegimeBull)
	f.resolved(t, models.DirectionShort, models.OutcomeLoss, -3, models.RegimeBear)

	miner := NewPatternMiner(f.analytics, 0)
	if n := miner.RunOnce(ctx); n != 5 {
		t.Fatalf("expected 5 results folded, got %d", n)
	}
	if n := miner.RunOnce(ctx); n != 0 {
		t.Fatalf("a second pass must fold nothing, got %d", n)
	}

	sig, err := SignatureOf(long)
	if err != nil {
		t.Fatalf("signature: %v", err)
	}
	want := Signature{
		Direction:    models.DirectionLong,
		RSIZone:      "oversold",
		MACDSide:     "bullish",
		EMATrend:     "up",
		VolumeRegime: "normal",
		MarketRegime: models.RegimeBull,
	}
	if sig != want {
		t.Fatalf("expected %+v, got %+v", want, sig)
	}

	pat, err := f.analytics.GetPattern(ctx, Fingerprint("BTCUSDT", "1h", sig))
	if err != nil || pat == nil {
		t.Fatalf("expected the long pattern, got %v (%v)", pat, err)
	}
	if pat.Occurrences != 4 || pat.WinningTrades != 3 || pat.LosingTrades != 1 {
		t.Errorf("expected 4 trades 3/1, got %d %d/%d", pat.Occurrences, pat.WinningTrades, pat.LosingTrades)
	}
	if pat.WinRate != 75 {
		t.Errorf("expected win rate 75, got %v", pat.WinRate)
	}
	if math.Abs(pat.AvgProfit-3.5) > 1e-9 || pat.AvgLoss != 3 {
		t.Errorf("expected avg profit 3.5 / loss 3, got %v / %v", pat.AvgProfit, pat.AvgLoss)
	}
	if pat.ProfitFactor == nil || math.Abs(*pat.ProfitFactor-3.5) > 1e-9 {
		t.Errorf("expected profit factor 3.5, got %v", pat.ProfitFactor)
	}
	if pat.MaxProfit != 4.5 || pat.MaxLoss != -3 {
		t.Errorf("expected max profit 4.5 / loss -3, got %v / %v", pat.MaxProfit, pat.MaxLoss)
	}
	if pat.MarketRegimeBest != models.RegimeBull {
		t.Errorf("expected best regime bull, got %s", pat.MarketRegimeBest)
	}
	if pat.Version != 4 {
		t.Errorf("expected version 4, got %d", pat.Version)
	}

	var stats map[string]regimeStat
	if err := json.Unmarshal(pat.RegimeStats, &stats); err != nil {
		t.Fatalf("regime stats: %v", err)
	}
	if stats[models.RegimeBull].Trades != 4 || stats[models.RegimeBull].Wins != 3 {
		t.Errorf("unexpected regime stats %+v", stats)
	}

	cursor, _ := f.analytics.GetCursor(ctx, PatternFoldName)
	if cursor == 0 {
		t.Error("expected the cursor to advance")
	}

	f.resolved(t, models.DirectionLong, models.OutcomeWin, 4.5, models.RegimeBull)
	if n := miner.RunOnce(ctx); n != 1 {
		t.Fatalf("expected the new result folded, got %d", n)
	}
	pat, _ = f.analytics.GetPattern(ctx, Fingerprint("BTCUSDT", "1h", sig))
	if pat.Occurrences != 5 || pat.WinRate != 80 {
		t.Errorf("expected 5 trades at 80%%, got %d at %v", pat.Occurrences, pat.WinRate)
	}
}

func TestApplyOutcomeDeactivatesAndRecovers(t *testing.T) {
	pat := &models.WinningPattern{IsActive: true}
	add := func(outcome string, pnl float64, n int) {
		for i := 0; i < n; i++ {
			if err := applyOutcome(pat, &models.Result{ActualOutcome: outcome, ProfitLossPercentage: pnl}); err != nil {
				t.Fatal(err)
			}
		}
	}

	add(models.OutcomeWin, 2, 7)
	add(models.OutcomeLoss, -1, 12)
	if !pat.IsActive {
		t.Fatal("19 trades is below the deactivation sample size")
	}

	add(models.OutcomeLoss, -1, 1)
	if pat.IsActive {
		t.Fatalf("expected deactivation at 20 trades and %.1f%% win rate", pat.WinRate)
	}

	add(models.OutcomeWin, 2, 5)
	if !pat.IsActive {
		t.Errorf("expected reactivation at %.1f%% win rate", pat.WinRate)
	}
	if pat.MarketRegimeBest != models.RegimeAny {
		t.Errorf("unknown regime samples must not pick a best regime, got %s", pat.MarketRegimeBest)
	}
}

func TestPatternStrength(t *testing.T) {
	tests := []struct {
		winRate float64
		occ     int
		want    string
	}{
		{75, 40, models.StrengthVeryStrong},
		{75, 25, models.StrengthStrong},
		{65, 20, models.StrengthStrong},
		{55, 12, models.StrengthModerate},
		{55, 9, models.StrengthWeak},
		{45, 100, models.StrengthWeak},
	}
	for _, tt := range tests {
		if got := PatternStrength(tt.winRate, tt.occ); got != tt.want {
			t.Errorf("PatternStrength(%v, %d): expected %s, got %s", tt.winRate, tt.occ, tt.want, got)
		}
	}
}

func TestFingerprintIsStable(t *testing.T) {
	sig := Signature{Direction: models.DirectionLong, RSIZone: "oversold", MACDSide: "bullish", EMATrend: "up", VolumeRegime: "high", MarketRegime: models.RegimeBull}
	a := Fingerprint("BTCUSDT", "1h", sig)
	if a != Fingerprint("BTCUSDT", "1h", sig) {
		t.Error("fingerprint must be deterministic")
	}
	if a == Fingerprint("ETHUSDT", "1h", sig) {
		t.Error("fingerprint must depend on the symbol")
	}
	if len(a) != 36 {
		t.Errorf("expected a uuid, got %s", a)
	}
}

func TestPerformanceTrackerFold(t *testing.T) {
	f := newFoldFixture(t)
	ctx := context.Background()

	tracker := NewPerformanceTracker(f.analytics, 0)
	if err := tracker.EnsureModel(ctx, "v1.0", models.ModelTypeRuleBased, "rules"); err != nil {
		t.Fatalf("ensure model: %v", err)
	}

	f.resolved(t, models.DirectionLong, models.OutcomeWin, 4.5, models.RegimeBull)
	f.resolved(t, models.DirectionLong, models.OutcomeLoss, -3, models.RegimeBull)
	f.resolved(t, models.DirectionLong, models.OutcomeWin, 4.5, models.RegimeBull)
	f.resolved(t, models.DirectionLong, models.OutcomeLoss, -3, models.RegimeBull)

	if n := tracker.RunOnce(ctx); n != 4 {
		t.Fatalf("expected 4 folded, got %d", n)
	}

	m, err := f.analytics.GetActiveModel(ctx)
	if err != nil || m == nil {
		t.Fatalf("expected an active model, got %v (%v)", m, err)
	}
	if m.ModelVersion != "v1.0" {
		t.Fatalf("expected v1.0 active, got %s", m.ModelVersion)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"trades", float64(m.TotalTradesAnalyzed), 4},
		{"win rate", m.WinRate, 50},
		{"avg profit", m.AvgProfitPerTrade, 4.5},
		{"avg loss", m.AvgLossPerTrade, 3},
		{"expectancy", m.Expectancy, 0.75},
		{"cumulative return", m.CumulativeReturn, 3},
		{"peak return", m.PeakReturn, 6},
		{"max drawdown", m.MaxDrawdown, 3},
		{"recent win rate", m.RecentWinRate, 81.9},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-6 {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
	if m.ProfitFactor == nil || math.Abs(*m.ProfitFactor-1.5) > 1e-9 {
		t.Errorf("expected profit factor 1.5, got %v", m.ProfitFactor)
	}
	if m.SharpeRatio == nil || math.Abs(*m.SharpeRatio-0.2) > 1e-9 {
		t.Errorf("expected sharpe 0.2, got %v", m.SharpeRatio)
	}
	if m.PerformanceTrend != models.TrendUnknown {
		t.Errorf("expected UNKNOWN below %d trades, got %s", TrendMinTrades, m.PerformanceTrend)
	}

	if n := tracker.RunOnce(ctx); n != 0 {
		t.Errorf("a second pass must fold nothing, got %d", n)
	}
}

func TestEnsureModelKeepsActiveModel(t *testing.T) {
	f := newFoldFixture(t)
	ctx := context.Background()
	tracker := NewPerformanceTracker(f.analytics, 0)

	if err := tracker.EnsureModel(ctx, "m1", models.ModelTypeLearned, "logreg"); err != nil {
		t.Fatal(err)
	}
	if err := tracker.EnsureModel(ctx, "v1.0", models.ModelTypeRuleBased, "rules"); err != nil {
		t.Fatal(err)
	}

	active, _ := f.analytics.GetActiveModel(ctx)
	if active == nil || active.ModelVersion != "m1" {
		t.Fatalf("expected m1 to stay active, got %v", active)
	}
	rules, _ := f.analytics.GetModel(ctx, "v1.0")
	if rules == nil || rules.IsActive {
		t.Errorf("expected an inactive rules record, got %+v", rules)
	}
}

func TestTrend(t *testing.T) {
	tests := []struct {
		recent, overall float64
		trades          int
		want            string
	}{
		{90, 50, 5, models.TrendUnknown},
		{60, 50, 20, models.TrendImproving},
		{40, 50, 20, models.TrendDegrading},
		{53, 50, 20, models.TrendStable},
	}
	for _, tt := range tests {
		if got := Trend(tt.recent, tt.overall, tt.trades); got != tt.want {
			t.Errorf("Trend(%v, %v, %d): expected %s, got %s", tt.recent, tt.overall, tt.trades, tt.want, got)
		}
	}
}
