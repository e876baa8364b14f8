package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"crypto-signal-engine/database/analytics"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/types"
	"crypto-signal-engine/prediction"

	"github.com/google/uuid"
)

// PatternFoldName is the cursor owned by the pattern miner
const PatternFoldName = "pattern_miner"

// Pattern thresholds
const (
	PatternDeactivateMinTrades = 20
	PatternDeactivateWinRate   = 40.0
	PatternBestRegimeMinTrades = 3
	PatternReliabilityTrades   = 30
	VolumeHighRatio            = 150.0
)

// patternNamespace scopes pattern fingerprints
var patternNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("crypto-signal-engine/winning-patterns"))

// Signature is the discretized feature condition a pattern groups on
type Signature struct {
	Direction    string `json:"direction"`
	RSIZone      string `json:"rsi_zone"`
	MACDSide     string `json:"macd_side"`
	EMATrend     string `json:"ema_trend"`
	VolumeRegime string `json:"volume_regime"`
	MarketRegime string `json:"market_regime"`
}

// SignatureOf discretizes the feature snapshot of a prediction
func SignatureOf(p *models.Prediction) (Signature, error) {
	f, err := prediction.ParseFeatures(p.FeaturesUsed)
	if err != nil {
		return Signature{}, err
	}

	s := Signature{
		Direction:    models.DirectionLong,
		RSIZone:      "unknown",
		MACDSide:     "unknown",
		EMATrend:     "unknown",
		VolumeRegime: "unknown",
		MarketRegime: f.MarketRegime,
	}
	if models.IsShort(p.PredictionType) {
		s.Direction = models.DirectionShort
	}
	if s.MarketRegime == "" {
		s.MarketRegime = models.RegimeUnknown
	}

	if f.RSI14 != nil {
		switch {
		case *f.RSI14 < prediction.RSIOversold:
			s.RSIZone = "oversold"
		case *f.RSI14 > prediction.RSIOverbought:
			s.RSIZone = "overbought"
		default:
			s.RSIZone = "neutral"
		}
	}
	if f.MACD != nil && f.MACDSignal != nil {
		s.MACDSide = "bearish"
		if *f.MACD > *f.MACDSignal {
			s.MACDSide = "bullish"
		}
	}
	if f.EMA20 != nil && f.EMA50 != nil {
		s.EMATrend = "down"
		if *f.EMA20 > *f.EMA50 {
			s.EMATrend = "up"
		}
	}
	if f.VolumeRatio != nil {
		s.VolumeRegime = "normal"
		if *f.VolumeRatio >= VolumeHighRatio {
			s.VolumeRegime = "high"
		}
	}
	return s, nil
}

// Key returns the canonical text form of the signature
func (s Signature) Key() string {
	return strings.Join([]string{
		"direction=" + s.Direction,
		"rsi=" + s.RSIZone,
		"macd=" + s.MACDSide,
		"ema=" + s.EMATrend,
		"volume=" + s.VolumeRegime,
		"regime=" + s.MarketRegime,
	}, "|")
}

// Fingerprint identifies a pattern deterministically across restarts
func Fingerprint(symbol, timeframe string, s Signature) string {
	return uuid.NewSHA1(patternNamespace, []byte(symbol+"|"+timeframe+"|"+s.Key())).String()
}

// regimeStat is one entry of WinningPattern.RegimeStats
type regimeStat struct {
	Trades int `json:"trades"`
	Wins   int `json:"wins"`
}

// PatternMiner folds resolved predictions into winning patterns
type PatternMiner struct {
	*foldWorker
}

// NewPatternMiner creates a new pattern miner
func NewPatternMiner(repo *analytics.Repository, interval time.Duration) *PatternMiner {
	pm := &PatternMiner{}
	pm.foldWorker = newFoldWorker(PatternFoldName, repo, interval, pm.fold)
	return pm
}

// Start begins the mining loop
func (pm *PatternMiner) Start() {
	pm.start("🎨 Pattern Miner")
}

// Stop stops the mining loop
func (pm *PatternMiner) Stop() {
	pm.stop()
}

// RunOnce folds every pending result and returns how many were folded
func (pm *PatternMiner) RunOnce(ctx context.Context) int {
	return pm.drain(ctx)
}

func (pm *PatternMiner) fold(tx *analytics.Repository, items []types.FoldItem) error {
	ctx := context.Background()
	touched := make(map[string]*models.WinningPattern)
	order := make([]string, 0)

	for i := range items {
		p, r := &items[i].Prediction, &items[i].Result

		sig, err := SignatureOf(p)
		if err != nil {
			log.Printf("⚠️ Skipping prediction %d in pattern mining: %v", p.ID, err)
			continue
		}
		fp := Fingerprint(p.Symbol, p.Timeframe, sig)

		pat, ok := touched[fp]
		if !ok {
			pat, err = tx.GetPattern(ctx, fp)
			if err != nil {
				return err
			}
			if pat == nil {
				pat, err = newPattern(fp, p, sig, r.ResultTime)
				if err != nil {
					return err
				}
			}
			touched[fp] = pat
			order = append(order, fp)
		}

		if err := applyOutcome(pat, r); err != nil {
			return fmt.Errorf("pattern %s: %w", fp, err)
		}
	}

	for _, fp := range order {
		if err := tx.SavePattern(ctx, touched[fp]); err != nil {
			return err
		}
	}
	if len(order) > 0 {
		log.Printf("🎨 Pattern mining folded %d results into %d patterns", len(items), len(order))
	}
	return nil
}

func newPattern(fp string, p *models.Prediction, sig Signature, at int64) (*models.WinningPattern, error) {
	conditions, err := json.Marshal(sig)
	if err != nil {
		return nil, err
	}
	name := fmt.Sprintf("%s %s rsi:%s macd:%s ema:%s", p.Symbol, sig.Direction, sig.RSIZone, sig.MACDSide, sig.EMATrend)
	description := fmt.Sprintf("%s %s on %s with %s volume in a %s market",
		sig.Direction, p.Timeframe, p.Symbol, sig.VolumeRegime, sig.MarketRegime)

	return &models.WinningPattern{
		Fingerprint:        fp,
		PatternName:        name,
		PatternDescription: description,
		Symbol:             p.Symbol,
		Timeframe:          p.Timeframe,
		Direction:          sig.Direction,
		Conditions:         conditions,
		FirstOccurrence:    at,
		MarketRegimeBest:   models.RegimeAny,
		PatternStrength:    models.StrengthWeak,
		IsActive:           true,
	}, nil
}

// isWin and isLoss group partial outcomes with full ones
func isWin(outcome string) bool {
	return outcome == models.OutcomeWin || outcome == models.OutcomePartialWin
}

func isLoss(outcome string) bool {
	return outcome == models.OutcomeLoss || outcome == models.OutcomePartialLoss
}

// applyOutcome folds one result into the pattern aggregates
func applyOutcome(pat *models.WinningPattern, r *models.Result) error {
	pnl := r.ProfitLossPercentage
	first := pat.Occurrences == 0

	pat.Occurrences++
	switch {
	case isWin(r.ActualOutcome):
		pat.WinningTrades++
		pat.GrossProfit += pnl
	case isLoss(r.ActualOutcome):
		pat.LosingTrades++
		pat.GrossLoss += math.Abs(pnl)
	default:
		pat.NeutralTrades++
	}

	if first || pnl > pat.MaxProfit {
		pat.MaxProfit = pnl
	}
	if first || pnl < pat.MaxLoss {
		pat.MaxLoss = pnl
	}
	if r.ResultTime > pat.LastOccurrence {
		pat.LastOccurrence = r.ResultTime
	}

	pat.WinRate = float64(pat.WinningTrades) / float64(pat.Occurrences) * 100
	pat.AvgProfit, pat.AvgLoss = 0, 0
	if pat.WinningTrades > 0 {
		pat.AvgProfit = pat.GrossProfit / float64(pat.WinningTrades)
	}
	if pat.LosingTrades > 0 {
		pat.AvgLoss = pat.GrossLoss / float64(pat.LosingTrades)
	}
	pat.RiskReward = 0
	if pat.AvgLoss > 0 {
		pat.RiskReward = pat.AvgProfit / pat.AvgLoss
	}
	pat.ProfitFactor = nil
	if pat.GrossLoss > 0 {
		pf := pat.GrossProfit / pat.GrossLoss
		pat.ProfitFactor = &pf
	}

	stats := map[string]regimeStat{}
	if len(pat.RegimeStats) > 0 {
		if err := json.Unmarshal(pat.RegimeStats, &stats); err != nil {
			return fmt.Errorf("regime stats: %w", err)
		}
	}
	regime := r.MarketConditionDuringTrade
	if regime == "" {
		regime = models.RegimeUnknown
	}
	st := stats[regime]
	st.Trades++
	if isWin(r.ActualOutcome) {
		st.Wins++
	}
	stats[regime] = st
	encoded, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	pat.RegimeStats = encoded
	pat.MarketRegimeBest = bestRegime(stats)

	pat.PatternStrength = PatternStrength(pat.WinRate, pat.Occurrences)
	pat.ReliabilityScore = math.Round(pat.WinRate*math.Min(1, float64(pat.Occurrences)/PatternReliabilityTrades)*100) / 100
	pat.IsActive = !(pat.Occurrences >= PatternDeactivateMinTrades && pat.WinRate < PatternDeactivateWinRate)
	pat.Version++
	return nil
}

// bestRegime picks the regime with the highest win rate among those with enough trades
func bestRegime(stats map[string]regimeStat) string {
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestRate := models.RegimeAny, -1.0
	for _, name := range names {
		st := stats[name]
		if name == models.RegimeUnknown || st.Trades < PatternBestRegimeMinTrades {
			continue
		}
		if rate := float64(st.Wins) / float64(st.Trades); rate > bestRate {
			best, bestRate = name, rate
		}
	}
	return best
}

// PatternStrength grades a pattern by win rate and sample size
func PatternStrength(winRate float64, occurrences int) string {
	switch {
	case winRate >= 70 && occurrences >= 30:
		return models.StrengthVeryStrong
	case winRate >= 60 && occurrences >= 20:
		return models.StrengthStrong
	case winRate >= 50 && occurrences >= 10:
		return models.StrengthModerate
	default:
		return models.StrengthWeak
	}
}
