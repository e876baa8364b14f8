package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"crypto-signal-engine/cache"
	"crypto-signal-engine/database/analytics"
	models "crypto-signal-engine/database/models_pkg"
)

// Webhook events
const (
	EventSignalCreated  = "signal.created"
	EventSignalResolved = "signal.resolved"
)

// WebhookManager delivers signal events to subscribers
type WebhookManager struct {
	repo   *analytics.Repository
	cache  *cache.WebhookCache
	client *http.Client
	wg     sync.WaitGroup
}

// SignalPayload is the JSON body posted to webhooks
type SignalPayload struct {
	Event         string    `json:"event"`
	PredictionID  int64     `json:"prediction_id"`
	Symbol        string    `json:"symbol"`
	Timeframe     string    `json:"timeframe"`
	Direction     string    `json:"direction"`
	Confidence    float64   `json:"confidence"`
	EntryPrice    float64   `json:"entry_price"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	RiskReward    float64   `json:"risk_reward"`
	PositionSize  float64   `json:"position_size_pct"`
	Priority      string    `json:"priority"`
	Status        string    `json:"status"`
	Outcome       string    `json:"outcome,omitempty"`
	ExitPrice     *float64  `json:"exit_price,omitempty"`
	ExitReason    string    `json:"exit_reason,omitempty"`
	ProfitLossPct *float64  `json:"profit_loss_pct,omitempty"`
	Message       string    `json:"message"`
	SentAt        time.Time `json:"sent_at"`
}

// NewWebhookManager creates a new webhook manager
func NewWebhookManager(repo *analytics.Repository, webhookCache *cache.WebhookCache) *WebhookManager {
	return &WebhookManager{
		repo:  repo,
		cache: webhookCache,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendSignal notifies subscribers of a new prediction
func (wm *WebhookManager) SendSignal(p *models.Prediction) {
	wm.send(p, CreatePayload(EventSignalCreated, p, nil))
}

// SendResolution notifies subscribers of a resolved prediction
func (wm *WebhookManager) SendResolution(p *models.Prediction, r *models.Result) {
	wm.send(p, CreatePayload(EventSignalResolved, p, r))
}

// Wait blocks until in-flight deliveries finish
func (wm *WebhookManager) Wait() {
	wm.wg.Wait()
}

func (wm *WebhookManager) send(p *models.Prediction, payload SignalPayload) {
	webhooks, err := wm.getActiveWebhooks()
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	id := p.ID
	for _, hook := range webhooks {
		if ShouldSend(hook, p) {
			wm.wg.Add(1)
			go func(hook models.SignalWebhook) {
				defer wm.wg.Done()
				wm.deliverWebhook(hook, id, payload.Event, payloadBytes)
			}(hook)
		}
	}
}

func (wm *WebhookManager) getActiveWebhooks() ([]models.SignalWebhook, error) {
	ctx := context.Background()
	if cached, ok := wm.cache.Get(ctx); ok {
		return cached, nil
	}

	webhooks, err := wm.repo.GetActiveWebhooks(ctx)
	if err != nil {
		return nil, err
	}

	_ = wm.cache.Set(ctx, webhooks)
	return webhooks, nil
}

// CreatePayload builds the webhook body for a prediction and its optional result
func CreatePayload(event string, p *models.Prediction, r *models.Result) SignalPayload {
	payload := SignalPayload{
		Event:        event,
		PredictionID: p.ID,
		Symbol:       p.Symbol,
		Timeframe:    p.Timeframe,
		Direction:    p.PredictionType,
		Confidence:   p.ConfidenceScore,
		EntryPrice:   p.EntryPrice,
		StopLoss:     p.SuggestedStopLoss,
		TakeProfit:   p.SuggestedTakeProfit,
		RiskReward:   p.RiskRewardRatio,
		PositionSize: p.PositionSizeRecommended,
		Priority:     p.Priority,
		Status:       p.Status,
		SentAt:       time.Now().UTC(),
	}

	if r == nil {
		payload.Message = fmt.Sprintf("📈 %s %s %s @ %.4f | SL %.4f | TP %.4f | confidence %.1f%%",
			p.Symbol, p.Timeframe, p.PredictionType, p.EntryPrice,
			p.SuggestedStopLoss, p.SuggestedTakeProfit, p.ConfidenceScore)
		return payload
	}

	exit, pnl := r.ExitPrice, r.ProfitLossPercentage
	payload.Outcome = r.ActualOutcome
	payload.ExitPrice = &exit
	payload.ExitReason = r.ExitReason
	payload.ProfitLossPct = &pnl
	payload.Message = fmt.Sprintf("🏁 %s %s %s closed %s via %s @ %.4f (%+.2f%%)",
		p.Symbol, p.Timeframe, p.PredictionType, r.ActualOutcome, r.ExitReason, exit, pnl)
	return payload
}

// ShouldSend applies the subscriber's symbol and confidence filters
func ShouldSend(hook models.SignalWebhook, p *models.Prediction) bool {
	if hook.Symbols != "" {
		matched := false
		for _, s := range strings.Split(hook.Symbols, ",") {
			if strings.EqualFold(strings.TrimSpace(s), p.Symbol) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if hook.MinConfidence != nil && p.ConfidenceScore < *hook.MinConfidence {
		return false
	}
	return true
}

func (wm *WebhookManager) deliverWebhook(hook models.SignalWebhook, predictionID int64, event string, payload []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}
	method := hook.Method
	if method == "" {
		method = http.MethodPost
	}

	var statusCode int
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequest(method, hook.URL, bytes.NewReader(payload))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "Crypto-Signal-Engine/1.0")
		if hook.AuthHeader != "" {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}

		resp, err := wm.client.Do(req)
		if err == nil {
			statusCode = resp.StatusCode
			resp.Body.Close()
			if statusCode >= 200 && statusCode < 300 {
				wm.logDelivery(hook.ID, predictionID, event, "SUCCESS", statusCode, "", attempt)
				return
			}
			lastErr = fmt.Errorf("unexpected status %d", statusCode)
		} else {
			lastErr = err
		}

		log.Printf("🔹 Webhook %s attempt %d/%d failed: %v", hook.Name, attempt, maxRetries, lastErr)
		if attempt < maxRetries {
			time.Sleep(time.Duration(hook.RetryDelaySeconds) * time.Second)
		}
	}

	errMsg := ""
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	wm.logDelivery(hook.ID, predictionID, event, "FAILED", statusCode, errMsg, maxRetries)
}

func (wm *WebhookManager) logDelivery(webhookID int, predictionID int64, event, status string, code int, errMsg string, attempt int) {
	entry := &models.SignalWebhookLog{
		WebhookID:    webhookID,
		PredictionID: predictionID,
		Event:        event,
		TriggeredAt:  time.Now(),
		Status:       status,
		ErrorMessage: errMsg,
		RetryAttempt: attempt,
	}
	if code != 0 {
		entry.HTTPStatusCode = &code
	}

	if err := wm.repo.LogWebhookDelivery(context.Background(), entry); err != nil {
		log.Printf("⚠️  Failed to save webhook log: %v", err)
	}
}

// RefreshCache drops the cached subscriber list
func (wm *WebhookManager) RefreshCache() {
	if err := wm.cache.Invalidate(context.Background()); err != nil {
		log.Printf("⚠️  Failed to invalidate webhook cache: %v", err)
		return
	}
	log.Println("🔄 Webhook cache invalidated")
}
