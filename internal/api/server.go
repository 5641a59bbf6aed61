// Package api implements the HTTP surface of the dispatcher console.
package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    log "github.com/sirupsen/logrus"
    "golang.org/x/time/rate"

    "ridetrack/internal/config"
    "ridetrack/internal/console"
    "ridetrack/internal/metrics"
    "ridetrack/internal/webhooks"
)

type Server struct {
    Console  *console.Console
    Config   config.Config
    Webhooks *webhooks.Queue
    Log      log.FieldLogger

    // limits session starts; nil means unlimited
    startLimiter *rate.Limiter
}

// NewServer wires the HTTP surface to an opened or unopened console. q may be nil.
func NewServer(c *console.Console, cfg config.Config, q *webhooks.Queue, logger log.FieldLogger) *Server {
    if logger == nil { logger = log.StandardLogger() }
    s := &Server{Console: c, Config: cfg, Webhooks: q, Log: logger}
    if cfg.Rate.RPS > 0 {
        burst := cfg.Rate.Burst
        if burst <= 0 { burst = 1 }
        s.startLimiter = rate.NewLimiter(rate.Limit(cfg.Rate.RPS), burst)
    }
    return s
}

// Handler returns the console mux wrapped with request logging and metrics.
func (s *Server) Handler() http.Handler {
    mux := http.NewServeMux()

    // Routes
    mux.HandleFunc("/v1/routes", s.RoutesHandler)
    mux.HandleFunc("/v1/routes/refresh", s.RoutesRefreshHandler)

    // Sessions
    mux.HandleFunc("/v1/sessions", s.SessionsHandler)
    mux.HandleFunc("/v1/sessions/", s.SessionByIDHandler)
    mux.HandleFunc("/v1/journal", s.JournalHandler)

    // Map and notices
    mux.HandleFunc("/v1/map", s.MapHandler)
    mux.HandleFunc("/v1/map.geojson", s.MapGeoJSONHandler)
    mux.HandleFunc("/v1/notices/stream", s.NoticesStreamHandler)
    mux.HandleFunc("/map/ws", s.ViewerWSHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

    // Health
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
    mux.HandleFunc("/debug", s.DebugJSON)

    mux.HandleFunc("/", s.StaticHandler)
    return logMiddleware(s.Log, mux)
}

// allowStart reports whether a session start fits the token bucket.
func (s *Server) allowStart(w http.ResponseWriter, r *http.Request) bool {
    if s.startLimiter == nil || s.startLimiter.Allow() { return true }
    retry := time.Duration(float64(time.Second) / float64(s.startLimiter.Limit()))
    w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
    writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "session start rate exceeded", r.URL.Path)
    return false
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (w *statusRecorder) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Flush() {
    if f, ok := w.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := w.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    w.status = http.StatusSwitchingProtocols
    return h.Hijack()
}

func logMiddleware(logger log.FieldLogger, next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)
        path, code := metricPath(r.URL.Path), strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(dur.Seconds())
        logger.WithFields(log.Fields{
            "remote": r.RemoteAddr,
            "method": r.Method,
            "path":   r.URL.Path,
            "status": rec.status,
            "dur":    dur,
        }).Debug("request")
    })
}

var knownPaths = map[string]bool{
    "/v1/routes": true, "/v1/routes/refresh": true, "/v1/sessions": true, "/v1/journal": true,
    "/v1/map": true, "/v1/map.geojson": true, "/v1/notices/stream": true, "/map/ws": true,
    "/v1/admin/webhook-deliveries": true, "/healthz": true, "/readyz": true, "/metrics": true,
    "/debug": true, "/": true,
}

// metricPath folds path parameters so the label set stays bounded.
func metricPath(p string) string {
    if knownPaths[p] { return p }
    if strings.HasPrefix(p, "/v1/sessions/") { return "/v1/sessions/{routeId}" }
    return "other"
}
