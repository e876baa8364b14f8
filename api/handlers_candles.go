package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"crypto-signal-engine/database"
	models "crypto-signal-engine/database/models_pkg"
)

// candleRequest is the submit_candle body
type candleRequest struct {
	Symbol              string   `json:"symbol"`
	Timeframe           string   `json:"timeframe"`
	OpenTime            int64    `json:"open_time"`
	CloseTime           int64    `json:"close_time"`
	Open                float64  `json:"open"`
	High                float64  `json:"high"`
	Low                 float64  `json:"low"`
	Close               float64  `json:"close"`
	Volume              float64  `json:"volume"`
	QuoteVolume         *float64 `json:"quote_volume"`
	TradesCount         *int64   `json:"trades_count"`
	TakerBuyVolume      *float64 `json:"taker_buy_volume"`
	TakerBuyQuoteVolume *float64 `json:"taker_buy_quote_volume"`
}

func (req candleRequest) toCandle() *models.Candle {
	return &models.Candle{
		Symbol:              strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Timeframe:           strings.TrimSpace(req.Timeframe),
		OpenTime:            req.OpenTime,
		CloseTime:           req.CloseTime,
		Open:                req.Open,
		High:                req.High,
		Low:                 req.Low,
		Close:               req.Close,
		Volume:              req.Volume,
		QuoteVolume:         req.QuoteVolume,
		TradesCount:         req.TradesCount,
		TakerBuyVolume:      req.TakerBuyVolume,
		TakerBuyQuoteVolume: req.TakerBuyQuoteVolume,
	}
}

// handleSubmitCandle stores a candle and returns the evaluation
func (s *Server) handleSubmitCandle(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		respondWithError(w, http.StatusServiceUnavailable, "pipeline not available", nil)
		return
	}

	var req candleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := s.pipeline.SubmitCandle(r.Context(), req.toCandle())
	if err != nil {
		if errors.Is(err, database.ErrDuplicateCandle) && result != nil {
			respondWithJSON(w, http.StatusConflict, result)
			return
		}
		respondWithStoreError(w, "Failed to submit candle", err)
		return
	}

	respondWithJSON(w, http.StatusCreated, result)
}

// handleGetCandles returns the most recent candles, newest first
func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	timeframe := r.PathValue("timeframe")
	limit := getIntParam(r, "limit", database.DefaultCandleListLimit, intPtr(1), intPtr(database.MaxCandleListLimit))

	rows, err := s.candles.List(r.Context(), symbol, timeframe, limit)
	if err != nil {
		respondWithStoreError(w, "Failed to list candles", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
		"candles":   rows,
		"count":     len(rows),
	})
}
