// Package metrics provides Prometheus instrumentation for Kestrel.
package metrics

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status bucket.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status class.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// SubmissionsTotal counts scored submissions by kind and resulting status.
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "submissions_total",
			Help:      "Total scored submissions by entity kind and status or label.",
		},
		[]string{"kind", "status"},
	)

	// SubmissionErrorsTotal counts submissions that failed to persist.
	SubmissionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "submission_errors_total",
			Help:      "Total submissions rejected by validation or storage.",
		},
		[]string{"kind", "reason"},
	)

	// FraudScore observes the distribution of stored fraud scores.
	FraudScore = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "fraud_score",
			Help:      "Fraud score assigned at submission.",
			Buckets:   []float64{10, 20, 35, 50, 60, 70, 80, 90, 100},
		},
		[]string{"kind"},
	)

	// AlertsRaisedTotal counts raised alerts by severity.
	AlertsRaisedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "alerts_raised_total",
			Help:      "Total fraud alerts raised by severity.",
		},
		[]string{"severity"},
	)

	// AlertsResolvedTotal counts resolve operations.
	AlertsResolvedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "alerts_resolved_total",
		Help:      "Total fraud alert resolve operations.",
	})

	// OutboxPublishedTotal counts outbox events handed to the event bus.
	OutboxPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "outbox_published_total",
			Help:      "Total outbox events published by result.",
		},
		[]string{"result"},
	)

	// RateLimitedTotal counts submissions rejected by the per-account limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "rate_limited_total",
		Help:      "Total submissions rejected by the rate limiter.",
	})

	// BusMessagesTotal counts bus traffic by topic and outcome
	// (published, delivered, dropped, failed).
	BusMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "bus_messages_total",
			Help:      "Event bus messages by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	// CacheLookupsTotal counts cache reads by layer and result.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "cache_lookups_total",
			Help:      "Cache reads by layer (local, redis) and result (hit, miss).",
		},
		[]string{"layer", "result"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kestrel", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kestrel", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kestrel", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SubmissionsTotal,
		SubmissionErrorsTotal,
		FraudScore,
		AlertsRaisedTotal,
		AlertsResolvedTotal,
		OutboxPublishedTotal,
		RateLimitedTotal,
		BusMessagesTotal,
		CacheLookupsTotal,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// ObserveLookup records one cache read on a layer.
func ObserveLookup(layer string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(layer, result).Inc()
}

// ObserveSubmission records one successfully stored submission.
func ObserveSubmission(kind, status string, score int) {
	SubmissionsTotal.WithLabelValues(kind, status).Inc()
	FraudScore.WithLabelValues(kind).Observe(float64(score))
}

// StartDBStatsCollector samples sql.DBStats and the goroutine count until
// ctx is done. Call in a goroutine.
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
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware records request metrics keyed by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(r.Method, route, statusBucket(status)).Inc()
	})
}

// Handler returns the Prometheus metrics HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// statusBucket groups HTTP status codes into classes.
func statusBucket(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
