package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PriceFetchesTotal tracks price API fetch attempts by outcome
	PriceFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_price_fetches_total",
			Help: "Total number of price API fetch attempts",
		},
		[]string{"platform", "outcome"},
	)

	// PriceFetchLatency tracks price API call latency
	PriceFetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricewatch_price_fetch_latency_seconds",
			Help:    "Price API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// RetryWaitSeconds tracks time spent backing off
	RetryWaitSeconds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_retry_wait_seconds_total",
			Help: "Total seconds spent waiting between retries",
		},
		[]string{"platform", "reason"},
	)

	// SyncPendingTokens tracks tokens still to be fetched in the current pass
	SyncPendingTokens = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricewatch_sync_pending_tokens",
			Help: "Tokens not yet processed in the current sync pass",
		},
		[]string{"platform"},
	)

	// CachedSeries tracks series held in the snapshot
	CachedSeries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pricewatch_cached_series",
			Help: "Number of price series in the snapshot, reference included",
		},
		[]string{"platform"},
	)

	// CheckpointsTotal tracks snapshot writes
	CheckpointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_checkpoints_total",
			Help: "Total number of snapshot checkpoints",
		},
		[]string{"platform", "result"},
	)

	// LookupFallbacks tracks lookups that used the latest price
	LookupFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricewatch_lookup_fallbacks_total",
			Help: "Lookups with no bracketing samples that returned the latest price",
		},
	)

	// RPCCallsTotal tracks node RPC calls per network and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_rpc_calls_total",
			Help: "Total number of node RPC calls",
		},
		[]string{"provider", "method"},
	)

	// RPCErrorsTotal tracks node RPC errors
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricewatch_rpc_errors_total",
			Help: "Total number of node RPC errors",
		},
		[]string{"provider", "error_type"},
	)

	// DBConnectionPoolUsage tracks Postgres pool usage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricewatch_db_connection_pool_usage_percent",
			Help: "Open connections as a percentage of the pool limit",
		},
	)
)
