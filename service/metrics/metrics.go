package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRateLimitHits     *prometheus.CounterVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec
	solanaRPCBatchDropped      *prometheus.CounterVec

	// Ledger Metrics
	transactionsAppliedTotal *prometheus.CounterVec
	instructionsTotal        *prometheus.CounterVec
	historyPagesTotal        *prometheus.CounterVec
	signaturesSkippedTotal   *prometheus.CounterVec
	mintSearchesTotal        *prometheus.CounterVec
	webhookDeliveriesTotal   *prometheus.CounterVec
	balanceMismatches        prometheus.Gauge

	// Workflow Metrics
	reconcileWorkflowDuration        *prometheus.HistogramVec
	reconcileWorkflowExecutionsTotal *prometheus.CounterVec
	reconcileActivityDuration        *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
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
				Help:    "Duration of Solana RPC calls in seconds, retries included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures returned per getSignaturesForAddress call",
				Buckets: []float64{0, 1, 5, 8, 10, 50, 100, 1000},
			},
			[]string{"endpoint"},
		),
		solanaRPCBatchDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_batch_entries_dropped_total",
				Help: "Batch entries dropped because the node answered them with an error",
			},
			[]string{"method"},
		),

		// Ledger Metrics
		transactionsAppliedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Transactions handed to the parser by outcome (applied, duplicate, error)",
			},
			[]string{"source", "outcome"},
		),
		instructionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_instructions_total",
				Help: "Token instructions seen by the parser by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		historyPagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_history_pages_total",
				Help: "Signature pages walked by the history walker",
			},
			[]string{"mode"},
		),
		signaturesSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_signatures_skipped_total",
				Help: "Signatures skipped by the history walker",
			},
			[]string{"reason"},
		),
		mintSearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_mint_searches_total",
				Help: "Mint provenance lookups by where they were resolved",
			},
			[]string{"source"},
		),
		webhookDeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_webhook_transactions_total",
				Help: "Webhook-delivered transactions by outcome",
			},
			[]string{"outcome"},
		),
		balanceMismatches: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_balance_mismatches",
				Help: "Accounts whose stored balance differed from chain at the last verification",
			},
		),

		// Workflow Metrics
		reconcileWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_workflow_duration_seconds",
				Help:    "Duration of reconcile workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
			},
			[]string{"status"},
		),
		reconcileWorkflowExecutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_workflow_executions_total",
				Help: "Total number of reconcile workflow executions",
			},
			[]string{"status"},
		),
		reconcileActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_activity_duration_seconds",
				Help:    "Duration of reconcile workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
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

		// NATS Metrics
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
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// RecordBatchEntriesDropped records errored entries removed from a batch response.
func (m *Metrics) RecordBatchEntriesDropped(method string, count int) {
	m.solanaRPCBatchDropped.WithLabelValues(method).Add(float64(count))
}

// Ledger metric helpers

// RecordTransaction records the outcome of applying one transaction.
func (m *Metrics) RecordTransaction(source, outcome string) {
	m.transactionsAppliedTotal.WithLabelValues(source, outcome).Inc()
}

// RecordInstruction records one classified token instruction.
func (m *Metrics) RecordInstruction(instructionType, outcome string) {
	m.instructionsTotal.WithLabelValues(instructionType, outcome).Inc()
}

// RecordHistoryPage records one page of signatures walked.
func (m *Metrics) RecordHistoryPage(mode string) {
	m.historyPagesTotal.WithLabelValues(mode).Inc()
}

// RecordSignaturesSkipped records signatures dropped before fetching.
func (m *Metrics) RecordSignaturesSkipped(reason string, count int) {
	m.signaturesSkippedTotal.WithLabelValues(reason).Add(float64(count))
}

// RecordMintSearch records where an account's mint was resolved.
func (m *Metrics) RecordMintSearch(source string) {
	m.mintSearchesTotal.WithLabelValues(source).Inc()
}

// RecordWebhookTransaction records the outcome of a webhook-delivered transaction.
func (m *Metrics) RecordWebhookTransaction(outcome string) {
	m.webhookDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// SetBalanceMismatches records the result of the last verification.
func (m *Metrics) SetBalanceMismatches(count int) {
	m.balanceMismatches.Set(float64(count))
}

// Workflow metric helpers

// RecordWorkflowDuration records workflow execution duration.
func (m *Metrics) RecordWorkflowDuration(status string, duration float64) {
	m.reconcileWorkflowDuration.WithLabelValues(status).Observe(duration)
	m.reconcileWorkflowExecutionsTotal.WithLabelValues(status).Inc()
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.reconcileActivityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
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
