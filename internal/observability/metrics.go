package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	reconciliationCounter  *prometheus.CounterVec
	cacheCounter           *prometheus.CounterVec
	transferCounter        *prometheus.CounterVec
	settlementCounter      *prometheus.CounterVec
	retryExhaustedCounter  *prometheus.CounterVec
	rebalanceCounter       *prometheus.CounterVec
	rebalanceAmountCounter *prometheus.CounterVec
	poolAvailableGauge     *prometheus.GaugeVec
	poolLockedGauge        *prometheus.GaugeVec
	breakerStateGauge      *prometheus.GaugeVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		reconciliationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reconciliation_mismatch_total",
			Help: "Number of times a pool balance diverged from its journal",
		}, []string{"currency", "check"})

		cacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_events_total",
			Help: "Read-through cache outcomes",
		}, []string{"cache", "outcome"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_requests_total",
			Help: "Transfer request outcomes by result code",
		}, []string{"outcome"})

		settlementCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_outcomes_total",
			Help: "Settlement sweep outcomes by source status",
		}, []string{"status", "outcome"})

		retryExhaustedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_retry_exhausted_total",
			Help: "Settlement attempts beyond the configured retry ceiling",
		}, []string{"currency"})

		rebalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_rebalance_total",
			Help: "Pool rebalance decisions",
		}, []string{"currency", "result"})

		rebalanceAmountCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_rebalanced_amount_total",
			Help: "Value moved into pools by the rebalancer",
		}, []string{"currency"})

		poolAvailableGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_available_balance",
			Help: "Available pool balance at the last reconciliation",
		}, []string{"currency"})

		poolLockedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pool_locked_balance",
			Help: "Locked pool balance at the last reconciliation",
		}, []string{"currency"})

		breakerStateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "provider_breaker_state",
			Help: "Circuit breaker state of the transfer provider (0 closed, 1 half-open, 2 open)",
		}, []string{"name"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			reconciliationCounter,
			cacheCounter,
			transferCounter,
			settlementCounter,
			retryExhaustedCounter,
			rebalanceCounter,
			rebalanceAmountCounter,
			poolAvailableGauge,
			poolLockedGauge,
			breakerStateGauge,
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

func IncrementReconciliationMismatch(currency, check string) {
	if reconciliationCounter == nil {
		return
	}
	reconciliationCounter.WithLabelValues(currency, check).Inc()
}

func IncrementCacheEvent(cache, outcome string) {
	if cacheCounter == nil {
		return
	}
	cacheCounter.WithLabelValues(cache, outcome).Inc()
}

func IncrementTransfer(outcome string) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(outcome).Inc()
}

func IncrementSettlement(status, outcome string) {
	if settlementCounter == nil {
		return
	}
	settlementCounter.WithLabelValues(status, outcome).Inc()
}

func IncrementSettlementRetryExhausted(currency string) {
	if retryExhaustedCounter == nil {
		return
	}
	retryExhaustedCounter.WithLabelValues(currency).Inc()
}

func IncrementRebalance(currency, result string) {
	if rebalanceCounter == nil {
		return
	}
	rebalanceCounter.WithLabelValues(currency, result).Inc()
}

func AddRebalancedAmount(currency string, amount float64) {
	if rebalanceAmountCounter == nil {
		return
	}
	rebalanceAmountCounter.WithLabelValues(currency).Add(amount)
}

func SetPoolBalances(currency string, available, locked float64) {
	if poolAvailableGauge == nil || poolLockedGauge == nil {
		return
	}
	poolAvailableGauge.WithLabelValues(currency).Set(available)
	poolLockedGauge.WithLabelValues(currency).Set(locked)
}

func SetBreakerState(name string, state int) {
	if breakerStateGauge == nil {
		return
	}
	breakerStateGauge.WithLabelValues(name).Set(float64(state))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
