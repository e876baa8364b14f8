package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/types"
	"crypto-signal-engine/realtime"
)

const defaultCancelReason = "cancelled via API"

// handleGetActiveSignals implements query_active_signals
func (s *Server) handleGetActiveSignals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := types.ActiveSignalFilter{
		Symbol:        strings.ToUpper(q.Get("symbol")),
		Timeframe:     q.Get("timeframe"),
		MinConfidence: getFloatParam(r, "min_confidence", database.DefaultMinConfidence),
		NowMillis:     time.Now().UnixMilli(),
		Limit:         getIntParam(r, "limit", database.DefaultActiveSignalLimit, intPtr(1), intPtr(database.MaxActiveSignalLimit)),
	}

	rows, total, err := s.signals.GetActiveSignals(r.Context(), filter)
	if err != nil {
		respondWithStoreError(w, "Failed to query active signals", err)
		return
	}
	if rows == nil {
		rows = []types.ActiveSignal{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"signals": rows,
		"total":   total,
	})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// handleGetPrediction returns a prediction with its result when resolved
func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	p, err := s.signals.GetPrediction(r.Context(), id)
	if err != nil {
		respondWithStoreError(w, "Failed to load prediction", err)
		return
	}
	if p == nil {
		respondWithStoreError(w, "Failed to load prediction", database.NewNotFoundErrorWithID("prediction", id))
		return
	}

	result, err := s.signals.GetResult(r.Context(), id)
	if err != nil {
		respondWithStoreError(w, "Failed to load result", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"prediction": p,
		"result":     result,
	})
}

// handleCancelPrediction cancels an open prediction. Body: {"reason": "..."} (optional)
func (s *Server) handleCancelPrediction(w http.ResponseWriter, r *http.Request) {
	if s.lifecycle == nil {
		respondWithError(w, http.StatusServiceUnavailable, "lifecycle manager not available", nil)
		return
	}
	id, ok := pathID(r)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.Reason == "" {
		body.Reason = defaultCancelReason
	}

	p, err := s.lifecycle.Cancel(r.Context(), id, body.Reason)
	if err != nil {
		respondWithStoreError(w, "Failed to cancel prediction", err)
		return
	}
	if s.broker != nil {
		s.broker.Broadcast(realtime.EventSignalUpdated, p)
	}

	respondWithJSON(w, http.StatusOK, p)
}
