package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	ledgerDriftCounter    prometheus.Counter
	settlementCounter     *prometheus.CounterVec
	gatewayCallCounter    *prometheus.CounterVec
	webhookCounter        *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerDriftCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_drift_total",
			Help: "Number of times a worker balance diverged from its ledger sum",
		})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlements_total",
			Help: "Task settlement transitions by flow and outcome",
		}, []string{"flow", "outcome"})

		gatewayCallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_calls_total",
			Help: "Upstream payment gateway call outcomes",
		}, []string{"outcome"})

		webhookCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_webhooks_total",
			Help: "Gateway notify webhook outcomes",
		}, []string{"outcome"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerDriftCounter,
			settlementCounter,
			gatewayCallCounter,
			webhookCounter,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerDrift() {
	if ledgerDriftCounter == nil {
		return
	}
	ledgerDriftCounter.Inc()
}

func IncrementSettlement(flow, outcome string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(flow, outcome).Inc()
}

func IncrementGatewayCall(outcome string) {
	if gatewayCallCounter == nil {
		return
	}
	gatewayCallCounter.WithLabelValues(outcome).Inc()
}

func IncrementWebhook(outcome string) {
	if webhookCounter == nil {
		return
	}
	webhookCounter.WithLabelValues(outcome).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
