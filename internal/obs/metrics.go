package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Метрики жизненного цикла сессий.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	tokenRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_token_rotations_total",
		Help: "Successful refresh token rotations.",
	})

	refreshReuseTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_reuse_detected_total",
		Help: "Refresh token reuse events that triggered full session revocation.",
	})
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginsTotal, tokenRotationsTotal, refreshReuseTotal)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// AuthMetrics is the session-lifecycle metrics sink backed by Prometheus.
type AuthMetrics struct{}

func (AuthMetrics) LoginAttempt(result string) { loginsTotal.WithLabelValues(result).Inc() }
func (AuthMetrics) TokenRotated()              { tokenRotationsTotal.Inc() }
func (AuthMetrics) ReuseDetected()             { refreshReuseTotal.Inc() }

// Фиксированный набор путей, чтобы не раздувать кардинальность меток.
var knownPaths = map[string]struct{}{
	"/":                     {},
	"/healthz":              {},
	"/readyz":               {},
	"/metrics":              {},
	"/v1/info":              {},
	"/v1/auth/login":        {},
	"/v1/auth/refresh":      {},
	"/v1/auth/logout":       {},
	"/v1/auth/logout-all":   {},
	"/v1/auth/client-token": {},
}

// CanonicalPath normalizes a request path for metric labels: the query string
// is dropped and anything outside the served route set collapses to "other".
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
