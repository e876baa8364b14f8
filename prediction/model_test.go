package prediction

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/types"
)

// syntheticSamples labels by RSI: oversold rallies, overbought drops, the middle is flat
func syntheticSamples(t *testing.T, n int) []types.ResolvedSample {
	t.Helper()
	rows := make([]types.ResolvedSample, 0, n)
	for i := 0; i < n; i++ {
		rsi := float64((i * 37) % 100)
		f := baseFeatures(rsi, 0, 0, 100, 100)
		f.RSI7 = floatPtr(rsi)

		exit := 100.0
		switch {
		case rsi < 30:
			exit = 102
		case rsi > 70:
			exit = 98
		}

		data, err := f.Marshal()
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rows = append(rows, types.ResolvedSample{
			PredictionID:   int64(i + 1),
			PredictionType: models.DirectionLong,
			FeaturesUsed:   data,
			EntryPrice:     100,
			ExitPrice:      exit,
			ResultTime:     int64(i),
		})
	}
	return rows
}

func TestTrainerLearnsSeparableData(t *testing.T) {
	trainer := NewTrainer(DefaultTrainerConfig())

	m, report, err := trainer.Train(syntheticSamples(t, 400), "m20240101")
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if report.Train != 320 || report.Validate != 80 {
		t.Errorf("expected 320/80 split, got %d/%d", report.Train, report.Validate)
	}
	if report.Accuracy < 60 {
		t.Errorf("expected accuracy >= 60%%, got %.1f", report.Accuracy)
	}

	scorer := NewLearnedModelScorer(m)
	low := baseFeatures(5, 0, 0, 100, 100)
	low.RSI7 = floatPtr(5)
	d, err := scorer.Score(low)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !models.IsLong(d.Direction) {
		t.Errorf("expected a long call for rsi 5, got %s (%.1f)", d.Direction, d.Confidence)
	}
	if d.Confidence <= 0 || d.Confidence > 100 {
		t.Errorf("confidence out of range: %v", d.Confidence)
	}
}

func TestTrainerNeedsSamples(t *testing.T) {
	_, _, err := NewTrainer(DefaultTrainerConfig()).Train(syntheticSamples(t, 50), "m1")
	if !errors.Is(err, ErrNotEnoughSamples) {
		t.Fatalf("expected ErrNotEnoughSamples, got %v", err)
	}
}

func TestModelArtifactRoundTrip(t *testing.T) {
	m, _, err := NewTrainer(DefaultTrainerConfig()).Train(syntheticSamples(t, 250), "m42")
	if err != nil {
		t.Fatalf("train: %v", err)
	}

	path := ArtifactPath(t.TempDir(), m.Version)
	if filepath.Base(path) != "model_vm42.pb" {
		t.Errorf("unexpected artifact name %s", path)
	}
	if err := m.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Version != "m42" {
		t.Errorf("expected version m42, got %s", loaded.Version)
	}

	f := baseFeatures(50, 0, 0, 100, 100)
	a := m.Probabilities(Vector(f))
	b := loaded.Probabilities(Vector(f))
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-12 {
			t.Errorf("class %d probability drifted: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestLoadModelRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model_vbad.pb")
	if err := os.WriteFile(path, []byte("not a protobuf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(path); err == nil {
		t.Fatal("expected an error for a corrupt artifact")
	}

	if _, err := LoadModel(filepath.Join(t.TempDir(), "missing.pb")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist for a missing artifact, got %v", err)
	}
}

func TestVectorImputesMissingContext(t *testing.T) {
	f := baseFeatures(50, 0, 0, 100, 100)
	x := Vector(f)
	if len(x) != len(FeatureNames) {
		t.Fatalf("expected %d features, got %d", len(FeatureNames), len(x))
	}

	m := constantModel("m", 1)
	m.Means[18] = 50
	m.Stds[18] = 10
	z := m.standardize(x)
	if z[18] != 0 {
		t.Errorf("missing fear & greed should standardize to the mean, got %v", z[18])
	}
}
