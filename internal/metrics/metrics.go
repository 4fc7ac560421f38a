// Package metrics provides Prometheus instrumentation for the Atelier platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atelier",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "atelier",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ContractTransitionsTotal counts confirmed lifecycle transitions by from/to status.
	ContractTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atelier",
			Name:      "contract_transitions_total",
			Help:      "Total confirmed contract status transitions.",
		},
		[]string{"from", "to"},
	)

	// StaleStateTotal counts transition attempts rejected for stale local state.
	StaleStateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atelier",
			Name:      "contract_stale_state_total",
			Help:      "Total operations rejected because the caller held stale contract state.",
		},
		[]string{"operation"},
	)

	// SignaturesTotal counts signature verifications by signer role and result.
	SignaturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atelier",
			Name:      "signatures_total",
			Help:      "Total signature verifications by role and result.",
		},
		[]string{"role", "result"},
	)

	// PaymentOrdersTotal counts payment order descriptors by disposition.
	PaymentOrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atelier",
			Name:      "payment_orders_total",
			Help:      "Total payment order descriptors by disposition (issued, reissued, rejected).",
		},
		[]string{"disposition"},
	)

	// RefreshTotal counts authoritative contract refreshes by trigger source.
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atelier",
			Name:      "contract_refresh_total",
			Help:      "Total contract state refreshes by trigger (push, poll, transition).",
		},
		[]string{"trigger"},
	)

	// PushEventsTotal counts push frames from the event source by disposition.
	PushEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atelier",
			Name:      "push_events_total",
			Help:      "Total push event frames by disposition (chat, notification, ignored, malformed).",
		},
		[]string{"disposition"},
	)

	// NotificationDeliveriesTotal counts webhook notification deliveries by result.
	NotificationDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atelier",
			Name:      "notification_deliveries_total",
			Help:      "Total party notification deliveries by result.",
		},
		[]string{"result"},
	)

	// MintObservationsTotal counts mint receipt observations by outcome.
	MintObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atelier",
			Name:      "mint_observations_total",
			Help:      "Total NFT mint receipt observations by outcome.",
		},
		[]string{"outcome"},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "atelier",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// InFlightOperations tracks contract operations currently holding the in-flight guard.
	InFlightOperations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "atelier",
			Name:      "inflight_operations",
			Help:      "Number of contract operations currently in flight.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "atelier", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "atelier", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "atelier", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "atelier", Name: "goroutines",
		Help: "Current number of goroutines.",
	})

	// ContractSettlementDuration observes time from payment completion to settlement.
	ContractSettlementDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "atelier",
		Name:      "contract_settlement_duration_seconds",
		Help:      "Time from payment completion to settlement in seconds.",
		Buckets:   []float64{60, 600, 3600, 21600, 86400, 259200, 604800, 2592000},
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ContractTransitionsTotal,
		StaleStateTotal,
		SignaturesTotal,
		PaymentOrdersTotal,
		RefreshTotal,
		PushEventsTotal,
		NotificationDeliveriesTotal,
		MintObservationsTotal,
		ActiveWebSocketClients,
		InFlightOperations,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
		ContractSettlementDuration,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
