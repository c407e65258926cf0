package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	DBConnectionPoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connection_pool_size",
		Help: "Maximum open database connections",
	})

	DBConnectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connections_active",
		Help: "Database connections in use",
	})

	DBConnectionIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_db_connections_idle",
		Help: "Idle database connections",
	})

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type"},
	)

	LedgerWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_ledger_writes_total",
			Help: "Ledger writes by collection and result (inserted, duplicate, upserted, error)",
		},
		[]string{"collection", "result"},
	)

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_nats_messages_received_total",
			Help: "Total number of NATS messages received",
		},
		[]string{"collection"},
	)

	// ============================================
	// Change feed
	// ============================================
	FeedNotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_feed_notifications_published_total",
			Help: "Change notifications published by transport and result",
		},
		[]string{"transport", "result"},
	)

	FeedSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_feed_signals_total",
			Help: "Invalidate signals received by feed clients",
		},
		[]string{"collection"},
	)

	FeedResubscribes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_feed_resubscribes_total",
			Help: "Subscriptions re-established after a drop",
		},
		[]string{"collection"},
	)

	FeedReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_feed_reloads_total",
			Help: "Full re-reads triggered by the change feed",
		},
		[]string{"collection", "result"},
	)

	// ============================================
	// Transfers and receipts
	// ============================================
	TransferSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_transfer_submissions_total",
			Help: "Transfer submissions by path (native, contract, tracked) and result",
		},
		[]string{"path", "result"},
	)

	WatcherInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_receipt_watcher_in_flight",
		Help: "Submissions waiting for a terminal receipt",
	})

	WatcherOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_receipt_watcher_outcomes_total",
			Help: "Terminal outcomes resolved by the receipt watcher",
		},
		[]string{"status"},
	)

	WatcherWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "backend_receipt_wait_duration_seconds",
		Help:    "Time from submission to terminal outcome",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300, 600},
	})

	SignerBalance = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_signer_balance",
			Help: "Native balance of the configured signer address, in native units",
		},
		[]string{"chain", "address"},
	)

	// ============================================
	// API
	// ============================================
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_websocket_connections",
		Help: "Open websocket connections",
	})

	WebSocketPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_websocket_pushes_total",
			Help: "Messages queued to websocket connections",
		},
		[]string{"type", "result"},
	)

	UniqueCounterparties = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "backend_unique_counterparties_estimate",
		Help: "HyperLogLog estimate of distinct counterparties recorded since start",
	})

	RateLimitedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_rate_limited_requests_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)
