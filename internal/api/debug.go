package api

import (
    "net/http"
    "time"

    "ridetrack/internal/buildinfo"
)

// DebugJSON reports build info, the effective non-secret configuration and
// live counters.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    cfg := s.Config
    c := s.Console
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "API_URL":              cfg.APIURL,
            "LISTEN":               cfg.Listen,
            "COLOR_STRATEGY":       cfg.Map.ColorStrategy,
            "REALTIME_PATH":        cfg.Realtime.Path,
            "RATE_RPS":             cfg.Rate.RPS,
            "RATE_BURST":           cfg.Rate.Burst,
            "WEBHOOK_MAX_ATTEMPTS": cfg.Webhook.MaxAttempts,
            "HAS_MAP_API_KEY":      cfg.Map.APIKey != "",
            "HAS_WEBHOOK_URL":      cfg.Webhook.URL != "",
            "HAS_DATABASE_URL":     cfg.DatabaseURL != "",
            "HAS_REDIS_URL":        cfg.RedisURL != "",
        },
        "state": map[string]any{
            "routes":            len(c.Directory.Routes()),
            "sessions":          c.Tracker.Registry().Len(),
            "mapReady":          c.Surface.Ready(),
            "realtimeConnected": c.Realtime.Connected(),
        },
    }
    writeJSON(w, http.StatusOK, info)
}
