package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablevault",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablevault",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stablevault",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablevault",
				Subsystem: "module",
				Name:      "throttles_total",
				Help:      "Count of module requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the JSON-RPC or HTTP status that was ultimately reported to the caller.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status != 0 && status != 200 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// LedgerMetrics tracks contract calls executed by the node and the aggregate
// position of the vault ledger after each commit.
type LedgerMetrics struct {
	calls      *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	collateral prometheus.Gauge
	debt       prometheus.Gauge
	positions  prometheus.Gauge
	price      prometheus.Gauge
	paused     prometheus.Gauge
}

// Ledger exposes the metrics registry for contract execution.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "stablevault",
				Subsystem: "ledger",
				Name:      "calls_total",
				Help:      "Count of top-level contract calls segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "stablevault",
				Subsystem: "ledger",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for top-level contract calls including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			collateral: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablevault",
				Subsystem: "ledger",
				Name:      "collateral_locked",
				Help:      "Collateral held by the vault ledger in smallest collateral units.",
			}),
			debt: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablevault",
				Subsystem: "ledger",
				Name:      "debt_outstanding",
				Help:      "Stable asset owed across open positions in smallest stable units.",
			}),
			positions: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablevault",
				Subsystem: "ledger",
				Name:      "positions_open",
				Help:      "Number of open positions.",
			}),
			price: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablevault",
				Subsystem: "oracle",
				Name:      "price",
				Help:      "Latest collateral price published to the oracle in stable units.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "stablevault",
				Subsystem: "ledger",
				Name:      "pause_engaged",
				Help:      "Indicates whether borrowing is paused (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.calls,
			ledgerRegistry.latency,
			ledgerRegistry.collateral,
			ledgerRegistry.debt,
			ledgerRegistry.positions,
			ledgerRegistry.price,
			ledgerRegistry.paused,
		)
	})
	return ledgerRegistry
}

// ObserveCall records the outcome and latency of a top-level call.
func (m *LedgerMetrics) ObserveCall(method string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordTotals updates the aggregate ledger gauges.
func (m *LedgerMetrics) RecordTotals(positions uint64, collateral, debt *big.Int) {
	if m == nil {
		return
	}
	m.positions.Set(float64(positions))
	m.collateral.Set(bigToFloat(collateral))
	m.debt.Set(bigToFloat(debt))
}

// RecordPrice updates the oracle price gauge.
func (m *LedgerMetrics) RecordPrice(price *big.Int) {
	if m == nil {
		return
	}
	m.price.Set(bigToFloat(price))
}

// SetPause toggles the pause_engaged gauge.
func (m *LedgerMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.paused.Set(1)
		return
	}
	m.paused.Set(0)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
