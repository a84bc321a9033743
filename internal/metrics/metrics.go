package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	// Registry holds the vault's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "giving_vault",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of vault operations by outcome.",
		},
		[]string{"op", "status"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "giving_vault",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vault operations including the gateway transfer.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"op"},
	)

	totalPrincipal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "giving_vault",
			Subsystem: "ledger",
			Name:      "total_principal_base_units",
			Help:      "Committed total principal in base units.",
		},
	)

	vaultBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "giving_vault",
			Subsystem: "gateway",
			Name:      "vault_balance_base_units",
			Help:      "Last pooled balance reported by the gateway.",
		},
	)

	donated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "giving_vault",
			Subsystem: "ledger",
			Name:      "donated_base_units_total",
			Help:      "Total rewards transferred to the beneficiary.",
		},
	)

	shortfalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "giving_vault",
			Subsystem: "ledger",
			Name:      "shortfall_detected_total",
			Help:      "Number of reads where the pooled balance was below total principal.",
		},
	)

	pendingIntents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "giving_vault",
			Subsystem: "ledger",
			Name:      "pending_intents",
			Help:      "Intents whose transfer outcome still needs reconciliation.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "giving_vault",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "giving_vault",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		operations,
		operationDuration,
		totalPrincipal,
		vaultBalance,
		donated,
		shortfalls,
		pendingIntents,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordOperation counts one vault operation and its latency.
func RecordOperation(op string, err error, started time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	operations.WithLabelValues(op, status).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func SetTotalPrincipal(v decimal.Decimal) { totalPrincipal.Set(v.InexactFloat64()) }

func SetVaultBalance(v decimal.Decimal) { vaultBalance.Set(v.InexactFloat64()) }

func AddDonated(v decimal.Decimal) { donated.Add(v.InexactFloat64()) }

func IncShortfall() { shortfalls.Inc() }

func SetPendingIntents(n int) { pendingIntents.Set(float64(n)) }

// RecordHTTP records a served request under its route pattern.
func RecordHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
