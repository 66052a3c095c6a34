package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VaultMetrics bundles the collectors tracking engine operations and the
// JSON-RPC surface in front of them.
type VaultMetrics struct {
	operations    *prometheus.CounterVec
	price         prometheus.Gauge
	receiptSupply prometheus.Gauge
	custody       prometheus.Gauge
	payouts       prometheus.Histogram
	rpcRequests   *prometheus.CounterVec
	rpcLatency    *prometheus.HistogramVec
	throttles     *prometheus.CounterVec
	wsClients     prometheus.Gauge
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

// Vault returns the lazily-initialised singleton registry.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			price: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Subsystem: "engine",
				Name:      "price_scaled",
				Help:      "Current exchange price in fixed-point units scaled by 1e6.",
			}),
			receiptSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Subsystem: "engine",
				Name:      "receipt_supply",
				Help:      "Outstanding receipt token supply in integer base units.",
			}),
			custody: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Subsystem: "engine",
				Name:      "custody_balance",
				Help:      "Base asset balance held by the custody account in integer units.",
			}),
			payouts: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "vault",
				Subsystem: "engine",
				Name:      "withdraw_payout_units",
				Help:      "Distribution of withdrawal payouts in integer base units.",
				Buckets:   prometheus.ExponentialBuckets(1_000, 10, 8),
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "vault",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "vault",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected before dispatch, segmented by reason.",
			}, []string{"reason"}),
			wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "vault",
				Subsystem: "rpc",
				Name:      "ws_clients",
				Help:      "Number of websocket subscribers currently attached to the event stream.",
			}),
		}
		prometheus.MustRegister(
			vaultRegistry.operations,
			vaultRegistry.price,
			vaultRegistry.receiptSupply,
			vaultRegistry.custody,
			vaultRegistry.payouts,
			vaultRegistry.rpcRequests,
			vaultRegistry.rpcLatency,
			vaultRegistry.throttles,
			vaultRegistry.wsClients,
		)
	})
	return vaultRegistry
}

// ObserveOperation records the outcome of one engine operation.
func (m *VaultMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

// SetPrice publishes the current fixed-point price.
func (m *VaultMetrics) SetPrice(scaled uint64) {
	if m == nil {
		return
	}
	m.price.Set(float64(scaled))
}

// SetReceiptSupply publishes the outstanding receipt supply.
func (m *VaultMetrics) SetReceiptSupply(units uint64) {
	if m == nil {
		return
	}
	m.receiptSupply.Set(float64(units))
}

// SetCustodyBalance publishes the custody account balance.
func (m *VaultMetrics) SetCustodyBalance(units uint64) {
	if m == nil {
		return
	}
	m.custody.Set(float64(units))
}

// ObservePayout records a completed withdrawal payout.
func (m *VaultMetrics) ObservePayout(units uint64) {
	if m == nil {
		return
	}
	m.payouts.Observe(float64(units))
}

// ObserveRPC records the outcome and latency of one JSON-RPC request. The
// status code should match what was written to the response writer.
func (m *VaultMetrics) ObserveRPC(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" or "body_too_large" so dashboards stay
// consistent.
func (m *VaultMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// WebsocketClientConnected bumps the subscriber gauge.
func (m *VaultMetrics) WebsocketClientConnected() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

// WebsocketClientDisconnected decrements the subscriber gauge.
func (m *VaultMetrics) WebsocketClientDisconnected() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}
