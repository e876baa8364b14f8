package api

import (
	"errors"
	"net/http"
	"strings"

	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/types"
	"crypto-signal-engine/prediction"
)

const (
	defaultStatisticsDays = 30
	maxStatisticsDays     = 365
	defaultPatternLimit   = 100
	maxPatternLimit       = 500
)

// handleGetModels lists every recorded model version
func (s *Server) handleGetModels(w http.ResponseWriter, r *http.Request) {
	rows, err := s.analytics.ListModels(r.Context())
	if err != nil {
		respondWithStoreError(w, "Failed to list models", err)
		return
	}
	if rows == nil {
		rows = []models.ModelPerformance{}
	}

	resp := map[string]interface{}{
		"models": rows,
		"count":  len(rows),
	}
	if s.engine != nil {
		scorer := s.engine.Scorer()
		resp["serving"] = map[string]string{
			"name":    scorer.Name(),
			"version": scorer.Version(),
			"type":    scorer.Type(),
		}
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// handleGetModelStatistics reads the daily rollup view
func (s *Server) handleGetModelStatistics(w http.ResponseWriter, r *http.Request) {
	if s.reporting == nil {
		respondWithError(w, http.StatusServiceUnavailable, "model statistics require PostgreSQL", nil)
		return
	}

	q := r.URL.Query()
	days := getIntParam(r, "days", defaultStatisticsDays, intPtr(1), intPtr(maxStatisticsDays))
	rows, err := s.reporting.GetModelStatistics(r.Context(), q.Get("model_version"), strings.ToUpper(q.Get("symbol")), days)
	if err != nil {
		respondWithStoreError(w, "Failed to load model statistics", err)
		return
	}
	if rows == nil {
		rows = []types.ModelStatistics{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"statistics": rows,
		"days":       days,
	})
}

// handleRetrain trains, activates and serves a new learned model
func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if s.retrainer == nil {
		respondWithError(w, http.StatusServiceUnavailable, "retraining not available", nil)
		return
	}

	m, err := s.retrainer.Retrain(r.Context())
	switch {
	case errors.Is(err, prediction.ErrRetrainInProgress):
		respondWithError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, prediction.ErrNotEnoughSamples):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	case err != nil:
		respondWithStoreError(w, "Retraining failed", err)
	default:
		respondWithJSON(w, http.StatusCreated, m)
	}
}

// handleGetPatterns lists winning patterns, best win rate first
func (s *Server) handleGetPatterns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.PatternFilter{
		Symbol:         strings.ToUpper(q.Get("symbol")),
		Timeframe:      q.Get("timeframe"),
		Strength:       strings.ToUpper(q.Get("strength")),
		ActiveOnly:     q.Get("active") == "true",
		MinOccurrences: getIntParam(r, "min_occurrences", 0, intPtr(0), nil),
		Limit:          getIntParam(r, "limit", defaultPatternLimit, intPtr(1), intPtr(maxPatternLimit)),
	}

	rows, err := s.analytics.ListPatterns(r.Context(), filter)
	if err != nil {
		respondWithStoreError(w, "Failed to list patterns", err)
		return
	}
	if rows == nil {
		rows = []models.WinningPattern{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": rows,
		"count":    len(rows),
	})
}
