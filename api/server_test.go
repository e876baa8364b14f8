package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/analytics"
	"crypto-signal-engine/database/candles"
	"crypto-signal-engine/database/dbtest"
	models "crypto-signal-engine/database/models_pkg"
	"crypto-signal-engine/database/signals"
	"crypto-signal-engine/database/types"
	"crypto-signal-engine/metrics"
	"crypto-signal-engine/prediction"
)

type stubPipeline struct {
	result *types.SubmitResult
	err    error
	got    *models.Candle
}

func (p *stubPipeline) SubmitCandle(ctx context.Context, c *models.Candle) (*types.SubmitResult, error) {
	p.got = c
	return p.result, p.err
}

type stubRetrainer struct {
	model *models.ModelPerformance
	err   error
}

func (r *stubRetrainer) Retrain(ctx context.Context) (*models.ModelPerformance, error) {
	return r.model, r.err
}

type stubCanceller struct {
	sig *signals.Repository
}

func (c *stubCanceller) Cancel(ctx context.Context, id int64, reason string) (*models.Prediction, error) {
	p, err := c.sig.GetPrediction(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, database.NewNotFoundErrorWithID("prediction", id)
	}
	if err := c.sig.Cancel(ctx, id, reason); err != nil {
		return nil, err
	}
	return c.sig.GetPrediction(ctx, id)
}

type fixture struct {
	server  *Server
	handler http.Handler
	signals *signals.Repository
	db      *database.Database
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	sig := signals.NewRepository(db.DB())
	s := NewServer(db, candles.NewRepository(db.DB()), sig, analytics.NewRepository(db.DB()),
		prediction.NewEngine(prediction.DefaultConfig()), nil, nil, metrics.NewMetrics())
	return &fixture{server: s, handler: s.Handler(), signals: sig, db: db}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

const candleBody = `{"symbol":"btcusdt","timeframe":"1h","open_time":1704067200000,"close_time":1704070800000,
	"open":43500.5,"high":43800.2,"low":43400.1,"close":43700.8,"volume":1250.5,"trades_count":3210}`

func TestSubmitCandleStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		result   *types.SubmitResult
		err      error
		body     string
		wantCode int
	}{
		{
			name:     "stored",
			result:   &types.SubmitResult{Stored: true, CandleID: 7, IndicatorsCalculated: true},
			body:     candleBody,
			wantCode: http.StatusCreated,
		},
		{
			name:     "duplicate",
			result:   &types.SubmitResult{CandleID: 7, Duplicate: true},
			err:      database.ErrDuplicateCandle,
			body:     candleBody,
			wantCode: http.StatusConflict,
		},
		{
			name:     "validation",
			err:      database.NewValidationErrorWithValue("high", "must not be below low", 1),
			body:     candleBody,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "store unavailable",
			err:      &database.DBError{Operation: "SubmitCandle", Err: errors.New("connection refused")},
			body:     candleBody,
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "malformed body",
			body:     `{"symbol":`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			stub := &stubPipeline{result: tt.result, err: tt.err}
			f.server.SetPipeline(stub)
			f.handler = f.server.Handler()

			rec := f.do(t, http.MethodPost, "/api/candles", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d (%s)", tt.wantCode, rec.Code, rec.Body.String())
			}

			switch tt.wantCode {
			case http.StatusCreated:
				if stub.got.Symbol != "BTCUSDT" || stub.got.TradesCount == nil || *stub.got.TradesCount != 3210 {
					t.Errorf("unexpected candle %+v", stub.got)
				}
			case http.StatusConflict:
				var body types.SubmitResult
				decode(t, rec, &body)
				if body.Stored || !body.Duplicate || body.CandleID != 7 {
					t.Errorf("unexpected duplicate body %+v", body)
				}
			case http.StatusBadRequest:
				if tt.err != nil {
					var body errorResponse
					decode(t, rec, &body)
					if body.Field != "high" {
						t.Errorf("expected field high, got %q", body.Field)
					}
				}
			}
		})
	}
}

func savePrediction(t *testing.T, f *fixture, candleID int64, confidence float64) *models.Prediction {
	t.Helper()
	exp := time.Now().Add(time.Hour).UnixMilli()
	p := &models.Prediction{
		CandleID:            candleID,
		Symbol:              "BTCUSDT",
		Timeframe:           "1h",
		PredictionType:      models.DirectionLong,
		ConfidenceScore:     confidence,
		EntryPrice:          100,
		SuggestedStopLoss:   97,
		SuggestedTakeProfit: 104.5,
		ModelVersion:        "v1.0",
		ModelType:           models.ModelTypeRuleBased,
		PredictionTime:      time.Now().UnixMilli(),
		ExpirationTime:      &exp,
		Status:              models.StatusPending,
		Priority:            models.PriorityMedium,
	}
	if err := f.signals.SavePrediction(context.Background(), p); err != nil {
		t.Fatalf("save prediction: %v", err)
	}
	return p
}

func TestGetActiveSignals(t *testing.T) {
	f := newFixture(t)
	high := savePrediction(t, f, 1, 85)
	savePrediction(t, f, 2, 60)

	rec := f.do(t, http.MethodGet, "/api/signals/active?symbol=btcusdt", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Signals []types.ActiveSignal `json:"signals"`
		Total   int64                `json:"total"`
	}
	decode(t, rec, &body)
	if body.Total != 1 || len(body.Signals) != 1 {
		t.Fatalf("expected one signal above the default floor, got %d", body.Total)
	}
	if body.Signals[0].ID != high.ID {
		t.Errorf("expected signal %d, got %d", high.ID, body.Signals[0].ID)
	}

	rec = f.do(t, http.MethodGet, "/api/signals/active?min_confidence=50", "")
	decode(t, rec, &body)
	if body.Total != 2 {
		t.Errorf("expected 2 signals at confidence 50, got %d", body.Total)
	}
}

func TestPredictionAndCancel(t *testing.T) {
	f := newFixture(t)
	f.server.SetLifecycle(&stubCanceller{sig: f.signals})
	f.handler = f.server.Handler()
	p := savePrediction(t, f, 1, 80)

	rec := f.do(t, http.MethodGet, "/api/predictions/"+itoa(p.ID), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/predictions/"+itoa(p.ID)+"/cancel", `{"reason":"manual"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var cancelled models.Prediction
	decode(t, rec, &cancelled)
	if cancelled.Status != models.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}

	if rec = f.do(t, http.MethodPost, "/api/predictions/"+itoa(p.ID)+"/cancel", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on second cancel, got %d", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/api/predictions/999", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec = f.do(t, http.MethodGet, "/api/predictions/abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body healthResponse
	decode(t, rec, &body)
	if !body.StoreReachable || body.ActiveModelVersion != "v1.0" || body.ModelType != models.ModelTypeRuleBased {
		t.Errorf("unexpected health %+v", body)
	}
	if body.ModelLoaded {
		t.Errorf("expected model_loaded false while serving rules, got %+v", body)
	}

	f.server.engine.SwapModel(&prediction.LearnedModel{Version: "m7"})
	rec = f.do(t, http.MethodGet, "/health", "")
	body = healthResponse{}
	decode(t, rec, &body)
	if !body.ModelLoaded || body.ActiveModelVersion != "m7" || body.ModelType != models.ModelTypeLearned {
		t.Errorf("expected the learned model in health, got %+v", body)
	}

	f.db.Close()
	rec = f.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with a closed store, got %d", rec.Code)
	}
	body = healthResponse{}
	decode(t, rec, &body)
	if body.StoreReachable || body.Status != "degraded" {
		t.Errorf("unexpected degraded health %+v", body)
	}
}

func TestRetrainStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		stub     *stubRetrainer
		wantCode int
	}{
		{"trained", &stubRetrainer{model: &models.ModelPerformance{ModelVersion: "m20240102030000"}}, http.StatusCreated},
		{"in progress", &stubRetrainer{err: prediction.ErrRetrainInProgress}, http.StatusConflict},
		{"not enough samples", &stubRetrainer{err: prediction.ErrNotEnoughSamples}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.server.SetRetrainer(tt.stub)
			f.handler = f.server.Handler()

			if rec := f.do(t, http.MethodPost, "/api/models/retrain", ""); rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}

	f := newFixture(t)
	if rec := f.do(t, http.MethodPost, "/api/models/retrain", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a retrainer, got %d", rec.Code)
	}
}

func TestWebhookLifecycle(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, http.MethodPost, "/api/webhooks", `{"name":"ops","url":"ftp://x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a non-http url, got %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/webhooks", `{"name":"ops","url":"https://hooks.example.com/signals","symbols":"btcusdt, ethusdt"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	var created models.SignalWebhook
	decode(t, rec, &created)
	if !created.IsActive || created.Method != http.MethodPost || created.RetryDelaySeconds != defaultWebhookRetryDelay {
		t.Errorf("expected defaults applied, got %+v", created)
	}
	if created.Symbols != "BTCUSDT,ETHUSDT" {
		t.Errorf("expected normalized symbols, got %q", created.Symbols)
	}

	rec = f.do(t, http.MethodGet, "/api/webhooks", "")
	var hooks []models.SignalWebhook
	decode(t, rec, &hooks)
	if len(hooks) != 1 {
		t.Fatalf("expected 1 webhook, got %d", len(hooks))
	}

	path := "/api/webhooks/" + itoa(int64(created.ID))
	if rec = f.do(t, http.MethodDelete, path, ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec = f.do(t, http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestStatsAndMetrics(t *testing.T) {
	f := newFixture(t)
	savePrediction(t, f, 1, 80)

	rec := f.do(t, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats types.SystemStats
	decode(t, rec, &stats)
	if stats.TotalPredictions != 1 || stats.ActivePredictions != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	if rec = f.do(t, http.MethodGet, "/api/models/statistics", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without PostgreSQL, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="GET /api/stats"`) {
		t.Errorf("expected the stats route in the HTTP metrics")
	}
}
