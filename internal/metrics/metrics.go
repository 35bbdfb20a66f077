package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Order book metrics
	OrdersSubmitted *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	OrdersCancelled prometheus.Counter
	OrdersRested    prometheus.Counter
	OrderBookSize   *prometheus.GaugeVec
	OrderBookLevels *prometheus.GaugeVec
	SubmitLatency   prometheus.Histogram

	// Trade metrics
	TradesTotal prometheus.Counter
	TradeVolume prometheus.Counter
	TradeValue  prometheus.Counter

	// WebSocket metrics
	WSConnections  prometheus.Gauge
	WSMessagesSent *prometheus.CounterVec
	WSDropped      prometheus.Counter

	// Event publishing metrics
	EventsPublished *prometheus.CounterVec
	EventsFailed    *prometheus.CounterVec

	// Cache metrics
	CacheErrors  *prometheus.CounterVec
	CacheLatency *prometheus.HistogramVec
}

// NewMetrics creates all application metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Order book metrics
		OrdersSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_submitted_total",
				Help: "Total number of accepted orders by side",
			},
			[]string{"side"},
		),
		OrdersRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_rejected_total",
				Help: "Total number of rejected orders by reason",
			},
			[]string{"reason"},
		),
		OrdersCancelled: f.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_cancelled_total",
				Help: "Total number of orders cancelled",
			},
		),
		OrdersRested: f.NewCounter(
			prometheus.CounterOpts{
				Name: "orders_rested_total",
				Help: "Total number of orders that rested with a remainder",
			},
		),
		OrderBookSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orderbook_size",
				Help: "Number of resting orders",
			},
			[]string{"side"},
		),
		OrderBookLevels: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orderbook_levels",
				Help: "Number of distinct price levels",
			},
			[]string{"side"},
		),
		SubmitLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orderbook_submit_duration_seconds",
				Help:    "Time spent matching a single submit",
				Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
			},
		),

		// Trade metrics
		TradesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "trades_total",
				Help: "Total number of trades executed",
			},
		),
		TradeVolume: f.NewCounter(
			prometheus.CounterOpts{
				Name: "trade_volume_total",
				Help: "Total traded quantity",
			},
		),
		TradeValue: f.NewCounter(
			prometheus.CounterOpts{
				Name: "trade_value_total",
				Help: "Total traded notional",
			},
		),

		// WebSocket metrics
		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_connections_active",
				Help: "Current number of active WebSocket connections",
			},
		),
		WSMessagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_messages_sent_total",
				Help: "Total number of WebSocket messages sent",
			},
			[]string{"type"},
		),
		WSDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "ws_messages_dropped_total",
				Help: "Messages dropped because a client buffer was full",
			},
		),

		// Event publishing metrics
		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_published_total",
				Help: "Total number of events published",
			},
			[]string{"sink", "routing_key"},
		),
		EventsFailed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "events_failed_total",
				Help: "Total number of events that failed to publish",
			},
			[]string{"sink", "routing_key"},
		),

		// Cache metrics
		CacheErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_errors_total",
				Help: "Total number of failed cache operations",
			},
			[]string{"operation"},
		),
		CacheLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cache_operation_duration_seconds",
				Help:    "Cache operation latency in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation"},
		),
	}
}

// RecordOrderSubmitted records an accepted order.
func (m *Metrics) RecordOrderSubmitted(side string, rested bool, seconds float64) {
	m.OrdersSubmitted.WithLabelValues(side).Inc()
	if rested {
		m.OrdersRested.Inc()
	}
	m.SubmitLatency.Observe(seconds)
}

// RecordOrderRejected records a rejected submit or cancel.
func (m *Metrics) RecordOrderRejected(reason string) {
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

// RecordOrderCancelled records an order cancellation.
func (m *Metrics) RecordOrderCancelled() {
	m.OrdersCancelled.Inc()
}

// RecordTrade records a trade execution.
func (m *Metrics) RecordTrade(volume, value float64) {
	m.TradesTotal.Inc()
	m.TradeVolume.Add(volume)
	m.TradeValue.Add(value)
}

// SetBookSize publishes resting order and level counts per side.
func (m *Metrics) SetBookSize(bidOrders, askOrders, bidLevels, askLevels int) {
	m.OrderBookSize.WithLabelValues("buy").Set(float64(bidOrders))
	m.OrderBookSize.WithLabelValues("sell").Set(float64(askOrders))
	m.OrderBookLevels.WithLabelValues("buy").Set(float64(bidLevels))
	m.OrderBookLevels.WithLabelValues("sell").Set(float64(askLevels))
}

// RecordWSSent records a WebSocket message sent.
func (m *Metrics) RecordWSSent(msgType string) {
	m.WSMessagesSent.WithLabelValues(msgType).Inc()
}

// RecordWSDropped records a message skipped for a slow client.
func (m *Metrics) RecordWSDropped() {
	m.WSDropped.Inc()
}

// RecordPublish records the outcome of one event publish.
func (m *Metrics) RecordPublish(sink, routingKey string, err error) {
	if err != nil {
		m.EventsFailed.WithLabelValues(sink, routingKey).Inc()
		return
	}
	m.EventsPublished.WithLabelValues(sink, routingKey).Inc()
}

// RecordCacheOp records a cache operation and its latency.
func (m *Metrics) RecordCacheOp(operation string, seconds float64, err error) {
	m.CacheLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		m.CacheErrors.WithLabelValues(operation).Inc()
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
