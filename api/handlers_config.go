package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	models "crypto-signal-engine/database/models_pkg"
)

const (
	healthPingTimeout        = 2 * time.Second
	defaultWebhookRetryDelay = 5
	defaultWebhookRetryCount = 3
)

// healthResponse is the health() result
type healthResponse struct {
	Status             string `json:"status"`
	StoreReachable     bool   `json:"store_reachable"`
	ModelLoaded        bool   `json:"model_loaded"`
	ActiveModelVersion string `json:"active_model_version,omitempty"`
	ModelType          string `json:"model_type,omitempty"`
	StreamClients      int    `json:"stream_clients"`
}

// handleHealth reports store reachability and the serving model.
// An unreachable store degrades the service and answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if s.db != nil && s.db.Ping(ctx) == nil {
		resp.StoreReachable = true
	}
	if s.engine != nil {
		scorer := s.engine.Scorer()
		resp.ModelLoaded = s.engine.ModelLoaded()
		resp.ActiveModelVersion = scorer.Version()
		resp.ModelType = scorer.Type()
	}
	if s.broker != nil {
		resp.StreamClients = s.broker.ClientCount()
	}

	code := http.StatusOK
	if !resp.StoreReachable {
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, resp)
}

// handleGetStats returns row counts, through the reporting pool when available
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.reporting != nil {
		stats, err := s.reporting.GetSystemStats(r.Context())
		if err == nil {
			respondWithJSON(w, http.StatusOK, stats)
			return
		}
		log.Printf("⚠️ Reporting stats failed, counting through GORM: %v", err)
	}

	stats, err := s.analytics.GetSystemStats(r.Context())
	if err != nil {
		respondWithStoreError(w, "Failed to load stats", err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleGetMarketContext returns the current market context, falling back to the
// last persisted snapshot when no provider is wired
func (s *Server) handleGetMarketContext(w http.ResponseWriter, r *http.Request) {
	if s.market != nil {
		respondWithJSON(w, http.StatusOK, s.market.Current(r.Context()))
		return
	}

	mc, err := s.analytics.GetLatestMarketContext(r.Context())
	if err != nil {
		respondWithStoreError(w, "Failed to load market context", err)
		return
	}
	if mc == nil {
		respondWithError(w, http.StatusNotFound, "no market context recorded", nil)
		return
	}
	respondWithJSON(w, http.StatusOK, mc)
}

// Configuration Handlers (Webhooks Only)

// webhookRequest is the create body. IsActive defaults to true.
type webhookRequest struct {
	Name              string   `json:"name"`
	URL               string   `json:"url"`
	Method            string   `json:"method"`
	AuthHeader        string   `json:"auth_header"`
	AuthValue         string   `json:"auth_value"`
	Symbols           string   `json:"symbols"`
	MinConfidence     *float64 `json:"min_confidence"`
	IsActive          *bool    `json:"is_active"`
	RetryCount        int      `json:"retry_count"`
	RetryDelaySeconds int      `json:"retry_delay_seconds"`
}

func (req webhookRequest) toWebhook() (*models.SignalWebhook, string) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, "name is required"
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "url must be an absolute http(s) URL"
	}

	hook := &models.SignalWebhook{
		Name:              strings.TrimSpace(req.Name),
		URL:               req.URL,
		Method:            strings.ToUpper(req.Method),
		AuthHeader:        req.AuthHeader,
		AuthValue:         req.AuthValue,
		Symbols:           strings.ToUpper(strings.ReplaceAll(req.Symbols, " ", "")),
		MinConfidence:     req.MinConfidence,
		IsActive:          true,
		RetryCount:        req.RetryCount,
		RetryDelaySeconds: req.RetryDelaySeconds,
	}
	if req.IsActive != nil {
		hook.IsActive = *req.IsActive
	}
	if hook.Method == "" {
		hook.Method = http.MethodPost
	}
	if hook.RetryCount <= 0 {
		hook.RetryCount = defaultWebhookRetryCount
	}
	if hook.RetryDelaySeconds <= 0 {
		hook.RetryDelaySeconds = defaultWebhookRetryDelay
	}
	return hook, ""
}

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.analytics.GetWebhooks(r.Context())
	if err != nil {
		respondWithStoreError(w, "Failed to list webhooks", err)
		return
	}
	if webhooks == nil {
		webhooks = []models.SignalWebhook{}
	}
	respondWithJSON(w, http.StatusOK, webhooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	webhook, problem := req.toWebhook()
	if problem != "" {
		respondWithError(w, http.StatusBadRequest, problem, nil)
		return
	}

	if err := s.analytics.CreateWebhook(r.Context(), webhook); err != nil {
		respondWithStoreError(w, "Failed to create webhook", err)
		return
	}

	// Refresh webhook manager cache
	if s.webhookMq != nil {
		s.webhookMq.RefreshCache()
	}

	respondWithJSON(w, http.StatusCreated, webhook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	if err := s.analytics.DeleteWebhook(r.Context(), id); err != nil {
		respondWithStoreError(w, "Failed to delete webhook", err)
		return
	}

	// Refresh webhook manager cache
	if s.webhookMq != nil {
		s.webhookMq.RefreshCache()
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetWebhookLogs(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	logs, err := s.analytics.GetWebhookLogs(r.Context(), id, getIntParam(r, "limit", 50, intPtr(1), intPtr(500)))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load webhook logs", err)
		return
	}
	if logs == nil {
		logs = []models.SignalWebhookLog{}
	}
	respondWithJSON(w, http.StatusOK, logs)
}
