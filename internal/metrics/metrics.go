package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric collectors for the Liftline server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Mirror fan-out metrics.
	MirrorWritesTotal *prometheus.CounterVec
	MirrorSkipsTotal  *prometheus.CounterVec
	FanOutDuration    *prometheus.HistogramVec

	// Push notifications.
	PushTotal *prometheus.CounterVec

	// Rate limiting.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftline_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liftline_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		MirrorWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftline_mirror_writes_total",
			Help: "Total number of mirror writes by outcome.",
		}, []string{"entity", "mirror", "status"}),

		MirrorSkipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftline_mirror_skips_total",
			Help: "Total number of mirror writes skipped because the mirror could not be located.",
		}, []string{"entity", "mirror"}),

		FanOutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "liftline_fanout_duration_seconds",
			Help:    "Duration of a full mirror fan-out in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"entity"}),

		PushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftline_push_notifications_total",
			Help: "Total number of push notifications by outcome.",
		}, []string{"status"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftline_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftline_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "liftline_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liftline_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.MirrorWritesTotal,
		m.MirrorSkipsTotal,
		m.FanOutDuration,
		m.PushTotal,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (m *Metrics) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// MirrorWritten records the outcome of one mirror write.
func (m *Metrics) MirrorWritten(entity, mirror string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.MirrorWritesTotal.WithLabelValues(entity, mirror, status).Inc()
}

// MirrorSkipped records a mirror that could not be located.
func (m *Metrics) MirrorSkipped(entity, mirror string) {
	m.MirrorSkipsTotal.WithLabelValues(entity, mirror).Inc()
}

// FanOutCompleted records the duration of a fan-out.
func (m *Metrics) FanOutCompleted(entity string, elapsed time.Duration) {
	m.FanOutDuration.WithLabelValues(entity).Observe(elapsed.Seconds())
}

// PushSent records a push notification outcome.
func (m *Metrics) PushSent(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PushTotal.WithLabelValues(status).Inc()
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

// Middleware records request counts and durations labelled by the matched
// chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			pattern = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
