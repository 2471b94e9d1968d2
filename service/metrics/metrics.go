package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the client runtime.
// It is passed explicitly to every component that records metrics; a nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal   *prometheus.CounterVec
	solanaRPCCallDuration *prometheus.HistogramVec
	solanaRPCRateWait     *prometheus.HistogramVec

	// Cluster / Wallet Metrics
	clusterProbeDuration *prometheus.HistogramVec
	walletConnectsTotal  *prometheus.CounterVec

	// Cache Metrics
	cacheWritesTotal *prometheus.CounterVec

	// Subscription Metrics
	subscriptionsActive            *prometheus.GaugeVec
	subscriptionNotificationsTotal *prometheus.CounterVec

	// Transaction Pipeline Metrics
	transactionsSentTotal   *prometheus.CounterVec
	transactionSendDuration *prometheus.HistogramVec
	transactionRetriesTotal *prometheus.CounterVec

	// Snapshot Metrics
	snapshotEmissionsTotal prometheus.Counter
	snapshotWritesTotal    *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec

	// Temporal Metrics
	activityDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_rate_limit_wait_seconds",
				Help:    "Time spent waiting on the client-side RPC rate limiter",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"endpoint"},
		),

		clusterProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cluster_probe_duration_seconds",
				Help:    "Duration of cluster warmup health probes",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"status"},
		),
		walletConnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_connects_total",
				Help: "Total number of wallet connect attempts by connector and outcome",
			},
			[]string{"connector", "status"},
		),

		cacheWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_cache_writes_total",
				Help: "Account cache writes by source and result (applied, stale, error)",
			},
			[]string{"source", "result"},
		),

		subscriptionsActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "subscriptions_active",
				Help: "Number of active account and signature subscriptions",
			},
			[]string{"kind"},
		),
		subscriptionNotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subscription_notifications_total",
				Help: "Total number of subscription notifications received",
			},
			[]string{"kind"},
		),

		transactionsSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_sent_total",
				Help: "Total number of transaction submissions by signer mode and status",
			},
			[]string{"mode", "status"},
		),
		transactionSendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_send_duration_seconds",
				Help:    "Duration of the sign and submit phase in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"mode"},
		),
		transactionRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_retries_total",
				Help: "Total number of re-prepared submissions by reason",
			},
			[]string{"reason"},
		),

		snapshotEmissionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshot_emissions_total",
				Help: "Total number of distinct serializable snapshots emitted",
			},
		),
		snapshotWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshot_writes_total",
				Help: "Total number of snapshot persistence writes by sink and status",
			},
			[]string{"sink", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active state stream connections",
			},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),

		activityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "temporal_activity_duration_seconds",
				Help:    "Duration of Temporal activity executions in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"activity", "status"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	if m == nil {
		return
	}
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitWait records time spent blocked on the RPC rate limiter.
func (m *Metrics) RecordRateLimitWait(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.solanaRPCRateWait.WithLabelValues(endpoint).Observe(seconds)
}

// Cluster and wallet metric helpers

// RecordClusterProbe records a warmup probe outcome.
func (m *Metrics) RecordClusterProbe(status string, duration float64) {
	if m == nil {
		return
	}
	m.clusterProbeDuration.WithLabelValues(status).Observe(duration)
}

// RecordWalletConnect records a wallet connect attempt.
func (m *Metrics) RecordWalletConnect(connectorID, status string) {
	if m == nil {
		return
	}
	m.walletConnectsTotal.WithLabelValues(connectorID, status).Inc()
}

// Cache metric helpers

// RecordCacheWrite records a cache write attempt. result is "applied",
// "stale" or "error".
func (m *Metrics) RecordCacheWrite(source, result string) {
	if m == nil {
		return
	}
	m.cacheWritesTotal.WithLabelValues(source, result).Inc()
}

// Subscription metric helpers

// RecordSubscriptionChange adjusts the active subscription gauge.
func (m *Metrics) RecordSubscriptionChange(kind string, delta float64) {
	if m == nil {
		return
	}
	m.subscriptionsActive.WithLabelValues(kind).Add(delta)
}

// RecordSubscriptionNotification records one notification.
func (m *Metrics) RecordSubscriptionNotification(kind string) {
	if m == nil {
		return
	}
	m.subscriptionNotificationsTotal.WithLabelValues(kind).Inc()
}

// Transaction metric helpers

// RecordTransactionSent records a send attempt.
func (m *Metrics) RecordTransactionSent(mode, status string, duration float64) {
	if m == nil {
		return
	}
	m.transactionsSentTotal.WithLabelValues(mode, status).Inc()
	m.transactionSendDuration.WithLabelValues(mode).Observe(duration)
}

// RecordTransactionRetry records a re-prepared submission.
func (m *Metrics) RecordTransactionRetry(reason string) {
	if m == nil {
		return
	}
	m.transactionRetriesTotal.WithLabelValues(reason).Inc()
}

// Snapshot metric helpers

// RecordSnapshotEmitted records a distinct snapshot emission.
func (m *Metrics) RecordSnapshotEmitted() {
	if m == nil {
		return
	}
	m.snapshotEmissionsTotal.Inc()
}

// RecordSnapshotWrite records a snapshot persisted to a sink.
func (m *Metrics) RecordSnapshotWrite(sink string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.snapshotWritesTotal.WithLabelValues(sink, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in stream connection count.
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	if m == nil {
		return
	}
	m.sseActiveConnections.Add(delta)
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	if m == nil {
		return
	}
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Temporal metric helpers

// RecordActivityDuration records one activity execution.
func (m *Metrics) RecordActivityDuration(activity string, err error, duration float64) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.activityDuration.WithLabelValues(activity, status).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
