package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the console
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )

    // SessionsActive is the number of routes currently tracked
    SessionsActive = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "tracking_sessions_active", Help: "Active tracking sessions."},
    )
    // SessionStarts counts start attempts by outcome (started, conflict, invalid, not_ready, error)
    SessionStarts = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "tracking_session_starts_total", Help: "Tracking session start attempts by outcome."},
        []string{"outcome"},
    )
    // PositionEvents counts inbound positions by outcome (applied, ignored, finished, rejected)
    PositionEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "tracking_position_events_total", Help: "Inbound position events by outcome."},
        []string{"outcome"},
    )
    // Notices counts notices shown by variant
    Notices = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "notices_total", Help: "Notices shown to the dispatcher by variant."},
        []string{"variant"},
    )
    // RealtimeReconnects counts reconnect attempts to the realtime channel
    RealtimeReconnects = prometheus.NewCounter(
        prometheus.CounterOpts{Name: "realtime_reconnects_total", Help: "Realtime channel reconnect attempts."},
    )
    // RealtimeConnected is 1 while the realtime channel is up
    RealtimeConnected = prometheus.NewGauge(
        prometheus.GaugeOpts{Name: "realtime_connected", Help: "1 when the realtime channel is connected."},
    )

    // WebhookDeliveries counts webhook delivery outcomes by status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Notice webhook deliveries by status."},
        []string{"status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"status"},
    )
)

// RegisterDefault registers collectors to the console registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(SessionsActive)
        Registry.MustRegister(SessionStarts)
        Registry.MustRegister(PositionEvents)
        Registry.MustRegister(Notices)
        Registry.MustRegister(RealtimeReconnects)
        Registry.MustRegister(RealtimeConnected)
        Registry.MustRegister(WebhookDeliveries)
        Registry.MustRegister(WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
