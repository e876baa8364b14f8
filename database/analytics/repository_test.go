package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto-signal-engine/database/dbtest"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/types"

	"gorm.io/gorm"
)

func seedResolved(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p := &models.Prediction{
			CandleID:        int64(i + 1),
			Symbol:          "BTCUSDT",
			Timeframe:       "1h",
			PredictionType:  models.DirectionLong,
			ConfidenceScore: 80,
			EntryPrice:      100,
			ModelVersion:    "v1.0",
			PredictionTime:  int64(i),
			Status:          models.StatusExecuted,
			Priority:        models.PriorityHigh,
		}
		if err := db.Create(p).Error; err != nil {
			t.Fatalf("seed prediction: %v", err)
		}
		r := &models.Result{
			PredictionID:         p.ID,
			ActualOutcome:        models.OutcomeWin,
			EntryPrice:           100,
			ExitPrice:            104,
			ProfitLossPercentage: 4,
			ResultTime:           int64(i),
		}
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("seed result: %v", err)
		}
	}
}

func TestFoldIsExactlyOnce(t *testing.T) {
	db := dbtest.New(t).DB()
	repo := NewRepository(db)
	ctx := context.Background()

	seedResolved(t, db, 5)

	seen := map[int64]int{}
	apply := func(tx *Repository, items []types.FoldItem) error {
		for _, it := range items {
			seen[it.Result.ID]++
			if it.Prediction.ID != it.Result.PredictionID {
				t.Errorf("fold item paired with wrong prediction")
			}
		}
		return nil
	}

	n, err := repo.Fold(ctx, "test", 3, apply)
	if err != nil || n != 3 {
		t.Fatalf("first batch: n=%d err=%v", n, err)
	}
	n, err = repo.Fold(ctx, "test", 3, apply)
	if err != nil || n != 2 {
		t.Fatalf("second batch: n=%d err=%v", n, err)
	}
	n, err = repo.Fold(ctx, "test", 3, apply)
	if err != nil || n != 0 {
		t.Fatalf("drained: n=%d err=%v", n, err)
	}

	if len(seen) != 5 {
		t.Fatalf("expected 5 results folded, got %d", len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("result %d folded %d times", id, count)
		}
	}
}

func TestFoldRollsBackOnError(t *testing.T) {
	db := dbtest.New(t).DB()
	repo := NewRepository(db)
	ctx := context.Background()

	seedResolved(t, db, 2)

	boom := errors.New("boom")
	if _, err := repo.Fold(ctx, "test", 10, func(tx *Repository, items []types.FoldItem) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected apply error, got %v", err)
	}

	cursor, err := repo.GetCursor(ctx, "test")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != 0 {
		t.Errorf("cursor advanced despite failed batch: %d", cursor)
	}

	n, err := repo.Fold(ctx, "test", 10, func(tx *Repository, items []types.FoldItem) error { return nil })
	if err != nil || n != 2 {
		t.Fatalf("retry: n=%d err=%v", n, err)
	}
}

func TestActivateModelKeepsSingleActive(t *testing.T) {
	repo := NewRepository(dbtest.New(t).DB())
	ctx := context.Background()

	for _, v := range []string{"v1.0", "v2.0"} {
		m := &models.ModelPerformance{ModelVersion: v, ModelType: models.ModelTypeRuleBased, TrainingDate: time.Now()}
		if err := repo.SaveModel(ctx, m); err != nil {
			t.Fatalf("save %s: %v", v, err)
		}
	}

	if err := repo.ActivateModel(ctx, "v1.0"); err != nil {
		t.Fatalf("activate v1: %v", err)
	}
	if err := repo.ActivateModel(ctx, "v2.0"); err != nil {
		t.Fatalf("activate v2: %v", err)
	}

	active, err := repo.GetActiveModel(ctx)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active == nil || active.ModelVersion != "v2.0" {
		t.Fatalf("expected v2.0 active, got %+v", active)
	}

	old, err := repo.GetModel(ctx, "v1.0")
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if old.IsActive || old.RetirementDate == nil {
		t.Errorf("expected v1.0 retired, got active=%v retired=%v", old.IsActive, old.RetirementDate)
	}

	if err := repo.ActivateModel(ctx, "missing"); err == nil {
		t.Error("expected not found error for unknown version")
	}
}

func TestListPatterns(t *testing.T) {
	repo := NewRepository(dbtest.New(t).DB())
	ctx := context.Background()

	fixtures := []models.WinningPattern{
		{Fingerprint: "a", PatternName: "a", Symbol: "BTCUSDT", Timeframe: "1h", WinRate: 55, Occurrences: 12, IsActive: true},
		{Fingerprint: "b", PatternName: "b", Symbol: "BTCUSDT", Timeframe: "1h", WinRate: 72, Occurrences: 40, IsActive: true},
		{Fingerprint: "c", PatternName: "c", Symbol: "ETHUSDT", Timeframe: "1h", WinRate: 80, Occurrences: 3, IsActive: true},
	}
	for i := range fixtures {
		if err := repo.SavePattern(ctx, &fixtures[i]); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	rows, err := repo.ListPatterns(ctx, types.PatternFilter{Symbol: "BTCUSDT", ActiveOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].Fingerprint != "b" {
		t.Fatalf("expected b first among BTC patterns, got %+v", rows)
	}

	rows, err = repo.ListPatterns(ctx, types.PatternFilter{MinOccurrences: 10})
	if err != nil {
		t.Fatalf("list min occurrences: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 patterns with >= 10 occurrences, got %d", len(rows))
	}
}
