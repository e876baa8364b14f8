package app

import (
	"context"
	"log"
	"math"
	"time"

	"crypto-signal-engine/database/analytics"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/types"
)

// PerformanceFoldName is the cursor owned by the performance tracker
const PerformanceFoldName = "model_performance"

// Trend settings
const (
	RecentWinRateAlpha = 0.1
	TrendMinTrades     = 10
	TrendBandPoints    = 5.0
)

// PerformanceTracker folds resolved predictions into per-model live statistics
type PerformanceTracker struct {
	*foldWorker
}

// NewPerformanceTracker creates a new performance tracker
func NewPerformanceTracker(repo *analytics.Repository, interval time.Duration) *PerformanceTracker {
	pt := &PerformanceTracker{}
	pt.foldWorker = newFoldWorker(PerformanceFoldName, repo, interval, pt.fold)
	return pt
}

// Start begins the tracking loop
func (pt *PerformanceTracker) Start() {
	pt.start("📈 Model Performance Tracker")
}

// Stop stops the tracking loop
func (pt *PerformanceTracker) Stop() {
	pt.stop()
}

// RunOnce folds every pending result and returns how many were folded
func (pt *PerformanceTracker) RunOnce(ctx context.Context) int {
	return pt.drain(ctx)
}

// EnsureModel creates the record for version if missing and activates it when no
// model is active yet
func (pt *PerformanceTracker) EnsureModel(ctx context.Context, version, modelType, architecture string) error {
	m, err := pt.analytics.GetModel(ctx, version)
	if err != nil {
		return err
	}
	if m == nil {
		m = newModelRecord(version, modelType)
		m.ModelArchitecture = architecture
		if err := pt.analytics.SaveModel(ctx, m); err != nil {
			return err
		}
		log.Printf("📈 Registered model %s (%s)", version, modelType)
	}

	active, err := pt.analytics.GetActiveModel(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		return pt.analytics.ActivateModel(ctx, version)
	}
	return nil
}

func newModelRecord(version, modelType string) *models.ModelPerformance {
	return &models.ModelPerformance{
		ModelVersion:     version,
		ModelType:        modelType,
		TrainingDate:     time.Now().UTC(),
		PerformanceTrend: models.TrendUnknown,
	}
}

func (pt *PerformanceTracker) fold(tx *analytics.Repository, items []types.FoldItem) error {
	ctx := context.Background()
	touched := make(map[string]*models.ModelPerformance)
	order := make([]string, 0)

	for i := range items {
		p, r := &items[i].Prediction, &items[i].Result

		m, ok := touched[p.ModelVersion]
		if !ok {
			var err error
			m, err = tx.GetModel(ctx, p.ModelVersion)
			if err != nil {
				return err
			}
			if m == nil {
				m = newModelRecord(p.ModelVersion, p.ModelType)
			}
			touched[p.ModelVersion] = m
			order = append(order, p.ModelVersion)
		}
		applyTrade(m, r)
	}

	for _, version := range order {
		if err := tx.SaveModel(ctx, touched[version]); err != nil {
			return err
		}
	}
	return nil
}

// applyTrade folds one result into the model's running statistics
func applyTrade(m *models.ModelPerformance, r *models.Result) {
	pnl := r.ProfitLossPercentage

	m.TotalTradesAnalyzed++
	n := float64(m.TotalTradesAnalyzed)

	won := 0.0
	switch {
	case isWin(r.ActualOutcome):
		m.WinningTrades++
		m.GrossProfit += pnl
		won = 100
	case isLoss(r.ActualOutcome):
		m.LosingTrades++
		m.GrossLoss += math.Abs(pnl)
	}

	m.WinRate = float64(m.WinningTrades) / n * 100
	m.AvgProfitPerTrade, m.AvgLossPerTrade = 0, 0
	if m.WinningTrades > 0 {
		m.AvgProfitPerTrade = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLossPerTrade = m.GrossLoss / float64(m.LosingTrades)
	}
	m.ProfitFactor = nil
	if m.GrossLoss > 0 {
		pf := m.GrossProfit / m.GrossLoss
		m.ProfitFactor = &pf
	}
	lossRate := float64(m.LosingTrades) / n
	m.Expectancy = m.WinRate/100*m.AvgProfitPerTrade - lossRate*m.AvgLossPerTrade

	m.ReturnSum += pnl
	m.ReturnSqSum += pnl * pnl
	m.SharpeRatio = nil
	if m.TotalTradesAnalyzed >= 2 {
		mean := m.ReturnSum / n
		variance := m.ReturnSqSum/n - mean*mean
		if variance > 1e-12 {
			sharpe := mean / math.Sqrt(variance)
			m.SharpeRatio = &sharpe
		}
	}

	m.CumulativeReturn += pnl
	if m.CumulativeReturn > m.PeakReturn {
		m.PeakReturn = m.CumulativeReturn
	}
	if dd := m.PeakReturn - m.CumulativeReturn; dd > m.MaxDrawdown {
		m.MaxDrawdown = dd
	}

	if m.TotalTradesAnalyzed == 1 {
		m.RecentWinRate = won
	} else {
		m.RecentWinRate = RecentWinRateAlpha*won + (1-RecentWinRateAlpha)*m.RecentWinRate
	}
	m.PerformanceTrend = Trend(m.RecentWinRate, m.WinRate, m.TotalTradesAnalyzed)
}

// Trend compares the recent win rate with the lifetime one
func Trend(recent, overall float64, trades int) string {
	switch {
	case trades < TrendMinTrades:
		return models.TrendUnknown
	case recent-overall > TrendBandPoints:
		return models.TrendImproving
	case overall-recent > TrendBandPoints:
		return models.TrendDegrading
	default:
		return models.TrendStable
	}
}
