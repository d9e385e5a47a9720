// Package metrics holds the Prometheus collectors for pastelite. HTTP metrics
// are recorded by Middleware; lifecycle counters are updated from the service
// layer and the reaper.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastelite_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pastelite_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Lifecycle metrics
var (
	// PastesCreated counts successful creates
	PastesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastelite_pastes_created_total",
		Help: "Total number of pastes created",
	})

	// IDCollisions counts generated ids rejected by the store as duplicates
	IDCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastelite_id_collisions_total",
		Help: "Total number of generated ids that were already taken",
	})

	// Views counts view attempts by verdict (ok, not_found, burned, expired, view_limit_reached, error)
	Views = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastelite_views_total",
			Help: "Total number of view attempts by result",
		},
		[]string{"result"},
	)

	// PastesBurned counts successful burn calls
	PastesBurned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastelite_pastes_burned_total",
		Help: "Total number of burn requests applied",
	})

	// ReapRuns counts sweeps of expired pastes
	ReapRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pastelite_reap_runs_total",
		Help: "Total number of expired paste sweeps",
	})

	// PastesReaped counts pastes deleted because they expired, by sweep or on access
	PastesReaped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pastelite_pastes_reaped_total",
			Help: "Total number of expired pastes deleted",
		},
		[]string{"trigger"},
	)

	// ReapDuration observes how long a sweep takes
	ReapDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pastelite_reap_duration_seconds",
		Help:    "Duration of expired paste sweeps in seconds",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})
)

// Middleware records request count and latency per route. The route
// template is used as the path label, so ids never reach the label set.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
