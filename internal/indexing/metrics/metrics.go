package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BlocksScanned tracks blocks covered by completed passes per currency
	BlocksScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_blocks_scanned_total",
			Help: "Total number of blocks covered by completed scan passes",
		},
		[]string{"chain", "currency"},
	)

	// TransfersDetected tracks transfer events emitted
	TransfersDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_transfers_detected_total",
			Help: "Total number of transfer events emitted",
		},
		[]string{"chain", "currency", "direction"},
	)

	// LogDecodeErrors tracks log entries skipped because they could not be decoded
	LogDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_log_decode_errors_total",
			Help: "Total number of skipped malformed log entries",
		},
		[]string{"chain", "currency"},
	)

	// PassErrors tracks failed scan passes by error kind
	PassErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_pass_errors_total",
			Help: "Total number of failed scan passes",
		},
		[]string{"chain", "currency", "error_type"},
	)

	// PassDuration tracks scan pass latency
	PassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletwatch_pass_duration_seconds",
			Help:    "Scan pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "currency"},
	)

	// RPCCallsTotal tracks RPC calls per chain and endpoint
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"chain", "endpoint", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per chain and endpoint
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"chain", "endpoint", "error_type"},
	)

	// RPCLatency tracks RPC call latency
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "walletwatch_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 2.8, 5, 10},
		},
		[]string{"chain", "endpoint", "method"},
	)

	// EndpointRotations tracks endpoint switches
	EndpointRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_endpoint_rotations_total",
			Help: "Total number of endpoint rotations",
		},
		[]string{"chain", "reason"},
	)

	// ChainLatestBlock tracks the latest block height of the chain
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "walletwatch_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// CheckpointBlock tracks the last fully processed block per currency
	CheckpointBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "walletwatch_checkpoint_block",
			Help: "Last fully processed block per currency",
		},
		[]string{"chain", "currency"},
	)

	// NotificationsSent tracks operator notifications by kind and outcome
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "walletwatch_notifications_total",
			Help: "Total number of operator notifications",
		},
		[]string{"kind", "outcome"},
	)

	// DBConnectionPoolUsage tracks Postgres pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "walletwatch_db_connection_pool_usage_percent",
			Help: "Percentage of open connections relative to the pool limit",
		},
	)
)
