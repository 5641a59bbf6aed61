package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "ridetrack/internal/broker"
    "ridetrack/internal/tracking"
)

// RoutesHandler handles GET /v1/routes
func (s *Server) RoutesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    d := s.Console.Directory
    writeJSON(w, http.StatusOK, map[string]any{"items": d.Routes(), "fetchedAt": d.FetchedAt().UTC().Format(time.RFC3339)})
}

// RoutesRefreshHandler handles POST /v1/routes/refresh. A failed refresh keeps the previous list.
func (s *Server) RoutesRefreshHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    routes, err := s.Console.Directory.Refresh(r.Context())
    if err != nil {
        writeProblem(w, http.StatusBadGateway, "Route list refresh failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": routes})
}

// SessionsHandler handles GET/POST /v1/sessions
func (s *Server) SessionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodGet:
        writeJSON(w, http.StatusOK, map[string]any{"items": s.Console.Tracker.Registry().List()})
    case http.MethodPost:
        if !s.allowStart(w, r) { return }
        var req struct {
            RouteID string `json:"routeId"`
        }
        if err := decodeJSON(r, &req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        res, err := s.Console.Start(r.Context(), req.RouteID)
        if err != nil {
            s.Log.WithError(err).WithField("route_id", req.RouteID).Error("start session")
            writeProblem(w, http.StatusInternalServerError, "Start session failed", err.Error(), r.URL.Path)
            return
        }
        s.writeStartResult(w, r, res)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// writeStartResult maps a start outcome to its status. Started and conflict
// carry the result; invalid and not-ready are problems.
func (s *Server) writeStartResult(w http.ResponseWriter, r *http.Request, res tracking.StartResult) {
    switch res.Outcome {
    case tracking.StartStarted:
        w.Header().Set("Location", "/v1/sessions/"+res.RouteID)
        writeJSON(w, http.StatusCreated, res)
    case tracking.StartConflict:
        writeJSON(w, http.StatusConflict, res)
    case tracking.StartInvalid:
        writeProblem(w, http.StatusBadRequest, "Invalid route", res.Reason, r.URL.Path)
    case tracking.StartNotReady:
        writeProblem(w, http.StatusServiceUnavailable, "Map not ready", res.Reason, r.URL.Path)
    default:
        writeProblem(w, http.StatusInternalServerError, "Unknown start outcome", res.Outcome.String(), r.URL.Path)
    }
}

// SessionByIDHandler handles GET /v1/sessions/{routeId}
func (s *Server) SessionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
    if id == "" || strings.Contains(id, "/") { writeProblem(w, http.StatusNotFound, "Not Found", "missing route id", r.URL.Path); return }
    sess, ok := s.Console.Tracker.Registry().Get(id)
    if !ok { writeProblem(w, http.StatusNotFound, "Session not found", "route "+id+" is not being tracked", r.URL.Path); return }
    writeJSON(w, http.StatusOK, sess)
}

// JournalHandler handles GET /v1/journal?routeId=&limit=
func (s *Server) JournalHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    limit, err := queryInt(r, "limit", 100)
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid query", err.Error(), r.URL.Path); return }
    items, err := s.Console.Journal.List(r.Context(), r.URL.Query().Get("routeId"), limit)
    if err != nil { writeProblem(w, http.StatusInternalServerError, "List journal failed", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// MapHandler handles GET /v1/map
func (s *Server) MapHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    writeJSON(w, http.StatusOK, s.Console.Surface.Snapshot())
}

// MapGeoJSONHandler handles GET /v1/map.geojson
func (s *Server) MapGeoJSONHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    writeTyped(w, "application/geo+json", http.StatusOK, s.Console.Surface.Snapshot().GeoJSON())
}

// NoticesStreamHandler streams notices as server-sent events.
func (s *Server) NoticesStreamHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    flusher, ok := w.(http.Flusher)
    if !ok { writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path); return }
    w.Header().Set("Content-Type", "text/event-stream")
    w.Header().Set("Cache-Control", "no-cache")
    w.Header().Set("Connection", "keep-alive")
    // subscribe
    b := s.Console.Broker
    ch := b.Subscribe(broker.TopicNotices)
    defer b.Unsubscribe(broker.TopicNotices, ch)
    heartbeat := func() {
        fmt.Fprintf(w, "event: heartbeat\n")
        fmt.Fprintf(w, "data: {\"ts\":\"%s\"}\n\n", time.Now().UTC().Format(time.RFC3339))
        flusher.Flush()
    }
    heartbeat()
    ticker := time.NewTicker(15 * time.Second)
    defer ticker.Stop()
    for {
        select {
        case <-r.Context().Done():
            return
        case evt, ok := <-ch:
            if !ok { return }
            data, _ := json.Marshal(evt.Data)
            fmt.Fprintf(w, "event: %s\n", evt.Type)
            fmt.Fprintf(w, "data: %s\n\n", data)
            flusher.Flush()
        case <-ticker.C:
            heartbeat()
        }
    }
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    if s.Webhooks == nil { writeJSON(w, http.StatusOK, map[string]any{"enabled": false}); return }
    pending, delivered, dead := s.Webhooks.Stats()
    writeJSON(w, http.StatusOK, map[string]any{
        "enabled":   true,
        "pending":   pending,
        "delivered": delivered,
        "dead":      dead,
        "deadItems": s.Webhooks.Dead(),
    })
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

// ReadyHandler reports ready once the map is up and the realtime channel is
// connected, and any Redis or Postgres backends answer a ping.
func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    c := s.Console
    if !c.Surface.Ready() { writeProblem(w, 503, "Not Ready", "map surface not ready", r.URL.Path); return }
    if !c.Realtime.Connected() { writeProblem(w, 503, "Not Ready", "realtime channel disconnected", r.URL.Path); return }
    type pinger interface{ Ping(ctx context.Context) error }
    for name, dep := range map[string]any{"journal": c.Journal, "broker": c.Broker} {
        pg, ok := dep.(pinger)
        if !ok { continue }
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        err := pg.Ping(ctx)
        cancel()
        if err != nil { writeProblem(w, 503, "Not Ready", name+": "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
