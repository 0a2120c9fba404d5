// Package metrics exposes the engine's Prometheus collectors. Every
// collector is labeled by chain so a single process can serve both
// Bitcoin and Solana without cross-chain cardinality surprises.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CyclesTotal tracks completed collector cycles per chain and
	// outcome (committed, idle, throttled, rate_limited, sink_error).
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainwatch_collector_cycles_total",
			Help: "Total number of collector cycles run",
		},
		[]string{"chain", "outcome"},
	)

	// RecordsCommittedTotal tracks blocks committed per chain.
	RecordsCommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainwatch_records_committed_total",
			Help: "Total number of blocks committed to the sink",
		},
		[]string{"chain"},
	)

	// CollectorErrorsTotal tracks RPC/sink errors per chain and kind.
	CollectorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainwatch_collector_errors_total",
			Help: "Total number of errors observed during collection",
		},
		[]string{"chain", "kind"},
	)

	// CycleDuration tracks wall-clock time per collector cycle.
	CycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainwatch_collector_cycle_duration_seconds",
			Help:    "Collector cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	// CursorPosition tracks the chain's last-committed position.
	CursorPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainwatch_cursor_position",
			Help: "Last committed position per chain",
		},
		[]string{"chain"},
	)

	// TipPosition tracks the chain's most recently observed tip.
	TipPosition = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainwatch_tip_position",
			Help: "Most recently observed tip position per chain",
		},
		[]string{"chain"},
	)

	// SinkStorageBytes tracks total sink storage, checked against the
	// Supervisor's size safety budget.
	SinkStorageBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainwatch_sink_storage_bytes",
			Help: "Estimated total bytes occupied by committed records",
		},
	)

	// BitcoinRouterPreference reports which upstream the Bitcoin Source
	// Router currently favors: 0 = local, 1 = public.
	BitcoinRouterPreference = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainwatch_bitcoin_router_preference",
			Help: "Current Bitcoin Source Router preference (0=local, 1=public)",
		},
	)
)

// Observe records one completed cycle's metric sample under the given
// outcome label ("committed", "idle", "throttled", "rate_limited",
// "sink_error").
func Observe(chain string, outcome string, recordsOut int, errCount int, lastErrorTag string, durationSeconds float64) {
	CyclesTotal.WithLabelValues(chain, outcome).Inc()
	CycleDuration.WithLabelValues(chain).Observe(durationSeconds)
	if recordsOut > 0 {
		RecordsCommittedTotal.WithLabelValues(chain).Add(float64(recordsOut))
	}
	if errCount > 0 {
		CollectorErrorsTotal.WithLabelValues(chain, lastErrorTag).Add(float64(errCount))
	}
}
