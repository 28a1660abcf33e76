// Package metrics exposes Prometheus counters and gauges for the
// reconciliation engine, the session store, and the control API. Metrics
// implements reconcile.Metrics so the engine can drive it without importing
// this package's construction.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus series for the daemon.
type Metrics struct {
	BindsTotal        prometheus.Counter
	RebindsTotal      prometheus.Counter
	WindowClosedTotal prometheus.Counter
	WindowEventsTotal prometheus.Counter
	StoreDegradations prometheus.Counter

	SessionsActive   prometheus.Gauge
	SessionsDurable  prometheus.Gauge
	EventQueueCount  prometheus.Gauge

	StoreOpDuration *prometheus.HistogramVec
	StoreOpFailures *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	Uptime    prometheus.Gauge
	startTime time.Time
}

// New creates and registers all metric series on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates and registers all metric series on reg. Tests
// pass a fresh prometheus.NewRegistry() so repeated construction within a
// test binary doesn't collide with the default (global) registerer.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		BindsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "spaces_binds_total",
			Help: "Total number of window-to-session bind operations.",
		}),
		RebindsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "spaces_rebinds_total",
			Help: "Total number of window-to-session rebind operations (window moved to a different session).",
		}),
		WindowClosedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "spaces_window_closed_total",
			Help: "Total number of window-removed events processed (deduplicated).",
		}),
		WindowEventsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "spaces_window_events_total",
			Help: "Total number of debounced window-event handler runs.",
		}),
		StoreDegradations: f.NewCounter(prometheus.CounterOpts{
			Name: "spaces_store_degradations_total",
			Help: "Total number of store operations that failed and were absorbed rather than propagated.",
		}),

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "spaces_sessions_active",
			Help: "Number of sessions currently bound to an open window.",
		}),
		SessionsDurable: f.NewGauge(prometheus.GaugeOpts{
			Name: "spaces_sessions_durable",
			Help: "Number of sessions with a store-issued id.",
		}),
		EventQueueCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "spaces_event_queue_count",
			Help: "Number of windows with a debounced event handler currently pending.",
		}),

		StoreOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spaces_store_op_duration_seconds",
			Help:    "Session store operation duration in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
		StoreOpFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spaces_store_op_failures_total",
			Help: "Total number of failed session store operations, by op.",
		}, []string{"op"}),

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spaces_http_requests_total",
			Help: "Total number of control-API HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spaces_http_request_duration_seconds",
			Help:    "Control-API HTTP request duration in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path"}),

		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "spaces_ws_connections",
			Help: "Number of active control-API WebSocket connections.",
		}),
		WSMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "spaces_ws_messages_total",
			Help: "Total number of control-API WebSocket messages, by direction and action.",
		}, []string{"direction", "action"}),

		Uptime: f.NewGauge(prometheus.GaugeOpts{
			Name: "spaces_uptime_seconds",
			Help: "Daemon uptime in seconds.",
		}),
	}

	go m.updateUptime()
	return m
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordBind implements reconcile.Metrics.
func (m *Metrics) RecordBind() { m.BindsTotal.Inc() }

// RecordRebind implements reconcile.Metrics.
func (m *Metrics) RecordRebind() { m.RebindsTotal.Inc() }

// RecordWindowClosed implements reconcile.Metrics.
func (m *Metrics) RecordWindowClosed() { m.WindowClosedTotal.Inc() }

// RecordWindowEventHandled implements reconcile.Metrics.
func (m *Metrics) RecordWindowEventHandled() { m.WindowEventsTotal.Inc() }

// RecordStoreDegraded implements reconcile.Metrics.
func (m *Metrics) RecordStoreDegraded() { m.StoreDegradations.Inc() }

// RecordStoreOp records the duration and outcome of a session store call.
func (m *Metrics) RecordStoreOp(op string, duration time.Duration, ok bool) {
	m.StoreOpDuration.WithLabelValues(op).Observe(duration.Seconds())
	if !ok {
		m.StoreOpFailures.WithLabelValues(op).Inc()
	}
}

// RecordHTTPRequest records one control-API HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWSMessage records one control-API WebSocket message.
func (m *Metrics) RecordWSMessage(direction, action string) {
	m.WSMessages.WithLabelValues(direction, action).Inc()
}

// SetSessionsActive sets the number of window-bound sessions.
func (m *Metrics) SetSessionsActive(count int) { m.SessionsActive.Set(float64(count)) }

// SetSessionsDurable sets the number of store-backed sessions.
func (m *Metrics) SetSessionsDurable(count int) { m.SessionsDurable.Set(float64(count)) }

// SetEventQueueCount sets the current debounce queue depth.
func (m *Metrics) SetEventQueueCount(count int) { m.EventQueueCount.Set(float64(count)) }

// IncWSConnections increments the active WebSocket connection gauge.
func (m *Metrics) IncWSConnections() { m.WSConnections.Inc() }

// DecWSConnections decrements the active WebSocket connection gauge.
func (m *Metrics) DecWSConnections() { m.WSConnections.Dec() }
