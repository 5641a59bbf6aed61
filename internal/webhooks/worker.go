package webhooks

import (
    "bytes"
    "context"
    "net/http"
    "strconv"
    "time"

    log "github.com/sirupsen/logrus"

    "ridetrack/internal/metrics"
)

type Worker struct {
    Queue       *Queue
    HTTP        *http.Client
    MaxAttempts int
    Interval    time.Duration
    Log         log.FieldLogger
}

func NewWorker(q *Queue, maxAttempts int) *Worker {
    if maxAttempts <= 0 { maxAttempts = 10 }
    return &Worker{Queue: q, HTTP: &http.Client{Timeout: 5 * time.Second}, MaxAttempts: maxAttempts, Interval: time.Second, Log: log.WithField("component", "webhooks")}
}

// Start polls the queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
    go func() {
        ticker := time.NewTicker(w.Interval)
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-ticker.C:
                w.processOnce(ctx)
            }
        }
    }()
}

func (w *Worker) processOnce(parent context.Context) {
    ctx, cancel := context.WithTimeout(parent, 10*time.Second)
    defer cancel()
    items := w.Queue.Due(time.Now(), 50)
    for _, it := range items {
        success := false
        next := time.Now().Add(nextBackoff(it.Attempts))
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
        if err != nil {
            w.Queue.Fail(it.ID, err.Error(), 0)
            continue
        }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set(HeaderEventType, it.EventType)
        if it.Secret != "" {
            req.Header.Set(HeaderSignature, Sign(it.Secret, it.Payload))
        }
        start := time.Now()
        resp, err := w.HTTP.Do(req)
        latency := time.Since(start)
        code := 0
        if err == nil && resp != nil {
            code = resp.StatusCode
            if resp.Body != nil { _ = resp.Body.Close() }
            if code >= 200 && code < 300 { success = true }
        }
        lastErr := ""
        if !success {
            if err != nil { lastErr = err.Error() } else { lastErr = "status " + strconv.Itoa(code) }
        }
        status := "delivered"
        switch {
        case success:
            w.Queue.Mark(it.ID, true, next, "", code)
        case it.Attempts+1 >= w.MaxAttempts:
            status = "dead"
            w.Queue.Fail(it.ID, lastErr, code)
            w.Log.WithField("delivery_id", it.ID).WithField("error", lastErr).Warn("webhook delivery dead-lettered")
        default:
            status = "retry"
            w.Queue.Mark(it.ID, false, next, lastErr, code)
        }
        metrics.WebhookDeliveries.WithLabelValues(status).Inc()
        metrics.WebhookLatency.WithLabelValues(status).Observe(float64(latency.Milliseconds()))
    }
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
