// Package metrics provides Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "einvoice",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "einvoice",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// SignatureCacheHits counts signature cache hits by tier.
	SignatureCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "einvoice",
			Name:      "signature_cache_hits_total",
			Help:      "Total signature cache hits by tier.",
		},
		[]string{"tier"},
	)

	// SignatureCacheMisses counts signature cache misses.
	SignatureCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "einvoice",
		Name:      "signature_cache_misses_total",
		Help:      "Total signature cache misses.",
	})

	// SignatureCacheEntries tracks the current local cache entry count.
	SignatureCacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "einvoice",
		Name:      "signature_cache_entries",
		Help:      "Number of entries currently in the local signature cache.",
	})

	// SignaturesIssuedTotal counts signatures produced by algorithm.
	SignaturesIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "einvoice",
			Name:      "signatures_issued_total",
			Help:      "Total signatures produced by algorithm.",
		},
		[]string{"algorithm"},
	)

	// IRNGeneratedTotal counts invoice reference numbers generated.
	IRNGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "einvoice",
		Name:      "irn_generated_total",
		Help:      "Total invoice reference numbers generated.",
	})

	// SubmissionOutcomesTotal counts regulator submission attempts by outcome.
	SubmissionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "einvoice",
			Name:      "submission_outcomes_total",
			Help:      "Total regulator submission attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// SubmissionsExhaustedTotal counts submissions that ran out of retry attempts.
	SubmissionsExhaustedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "einvoice",
		Name:      "submissions_exhausted_total",
		Help:      "Total submissions that exhausted their retry budget.",
	})

	// PendingSubmissions tracks submissions awaiting retry.
	PendingSubmissions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "einvoice",
		Name:      "pending_submissions",
		Help:      "Number of submissions currently awaiting retry.",
	})

	// WebhookEventsTotal counts inbound regulator webhooks by type and result.
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "einvoice",
			Name:      "webhook_events_total",
			Help:      "Total inbound regulator webhook events by type and result.",
		},
		[]string{"type", "result"},
	)

	// WebhookRejectionsTotal counts rejected webhooks by reason.
	WebhookRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "einvoice",
			Name:      "webhook_rejections_total",
			Help:      "Total rejected regulator webhooks by reason.",
		},
		[]string{"reason"},
	)

	// CertificatesExpiredTotal counts certificates auto-expired by the sweep.
	CertificatesExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "einvoice",
		Name:      "certificates_expired_total",
		Help:      "Total certificates transitioned to EXPIRED by the expiry sweep.",
	})

	// CertificatesRevokedTotal counts administrative revocations.
	CertificatesRevokedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "einvoice",
		Name:      "certificates_revoked_total",
		Help:      "Total certificates revoked through the admin endpoint.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SignatureCacheHits,
		SignatureCacheMisses,
		SignatureCacheEntries,
		SignaturesIssuedTotal,
		IRNGeneratedTotal,
		SubmissionOutcomesTotal,
		SubmissionsExhaustedTotal,
		PendingSubmissions,
		WebhookEventsTotal,
		WebhookRejectionsTotal,
		CertificatesExpiredTotal,
		CertificatesRevokedTotal,
	)
}

// Middleware records request count and latency for each routed request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(r.Method, routePattern(r)))
		next.ServeHTTP(ww, r)
		timer.ObserveDuration()

		HTTPRequestsTotal.WithLabelValues(r.Method, routePattern(r), statusBucket(ww.Status())).Inc()
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern uses the chi route pattern rather than the raw path so that
// path parameters do not explode metric cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
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
