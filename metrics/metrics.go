// Package metrics exposes Prometheus collectors for the signal pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	CandlesTotal       *prometheus.CounterVec   // labels: result=stored|duplicate|rejected
	EvaluationsTotal   *prometheus.CounterVec   // labels: outcome=signal|below_threshold|insufficient
	PredictionsTotal   *prometheus.CounterVec   // labels: direction
	ResolutionsTotal   *prometheus.CounterVec   // labels: status, outcome
	PipelineDuration   prometheus.Histogram     // submit_candle latency
	ActiveSignals      prometheus.Gauge         // non-terminal predictions seen by the monitor
	MarketContextTotal *prometheus.CounterVec   // labels: source
	HTTPRequests       *prometheus.CounterVec   // labels: method, route, code
	HTTPDuration       *prometheus.HistogramVec // labels: route
	FeedReconnects     prometheus.Counter
}

// NewMetrics creates and registers all collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_candles_total",
			Help: "Submitted candles by storage result",
		}, []string{"result"}),
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_evaluations_total",
			Help: "Prediction evaluations by outcome",
		}, []string{"outcome"}),
		PredictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_predictions_total",
			Help: "Emitted predictions by direction",
		}, []string{"direction"}),
		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_resolutions_total",
			Help: "Resolved predictions by terminal status and outcome",
		}, []string{"status", "outcome"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_engine_submit_duration_seconds",
			Help:    "End to end latency of candle submission",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveSignals: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signal_engine_active_signals",
			Help: "Non-terminal predictions at the last monitor pass",
		}),
		MarketContextTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_market_context_total",
			Help: "Market context lookups by snapshot source",
		}, []string{"source"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signal_engine_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_feed_reconnects_total",
			Help: "Exchange feed reconnection attempts",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CandlesTotal,
		m.EvaluationsTotal,
		m.PredictionsTotal,
		m.ResolutionsTotal,
		m.PipelineDuration,
		m.ActiveSignals,
		m.MarketContextTotal,
		m.HTTPRequests,
		m.HTTPDuration,
		m.FeedReconnects,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveCandle counts one submission result
func (m *Metrics) ObserveCandle(result string) {
	if m == nil {
		return
	}
	m.CandlesTotal.WithLabelValues(result).Inc()
}

// ObserveEvaluation counts one evaluation outcome
func (m *Metrics) ObserveEvaluation(outcome string) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(outcome).Inc()
}

// ObservePrediction counts one emitted prediction
func (m *Metrics) ObservePrediction(direction string) {
	if m == nil {
		return
	}
	m.PredictionsTotal.WithLabelValues(direction).Inc()
}

// ObserveResolution counts one resolved prediction
func (m *Metrics) ObserveResolution(status, outcome string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(status, outcome).Inc()
}

// ObserveSubmit records submission latency
func (m *Metrics) ObserveSubmit(d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineDuration.Observe(d.Seconds())
}

// SetActiveSignals records the open prediction count
func (m *Metrics) SetActiveSignals(n int) {
	if m == nil {
		return
	}
	m.ActiveSignals.Set(float64(n))
}

// ObserveMarketContext counts a context lookup by source
func (m *Metrics) ObserveMarketContext(source string) {
	if m == nil {
		return
	}
	m.MarketContextTotal.WithLabelValues(source).Inc()
}

// ObserveHTTP records one handled request
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, http.StatusText(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveFeedReconnect counts one feed reconnect
func (m *Metrics) ObserveFeedReconnect() {
	if m == nil {
		return
	}
	m.FeedReconnects.Inc()
}
