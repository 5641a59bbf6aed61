// Package journal keeps an append-only record of tracking session lifecycle events.
package journal

import (
    "context"
    "time"
)

type Kind string

const (
    KindStarted  Kind = "started"
    KindConflict Kind = "conflict"
    KindFinished Kind = "finished"
)

// Entry is one lifecycle event of a route's tracking session.
type Entry struct {
    ID      string    `json:"id"`
    RouteID string    `json:"routeId"`
    Kind    Kind      `json:"kind"`
    Title   string    `json:"title,omitempty"`
    Color   string    `json:"color,omitempty"`
    Lat     float64   `json:"lat"`
    Lng     float64   `json:"lng"`
    At      time.Time `json:"at"`
}

// Journal is implemented by Memory and Postgres.
type Journal interface {
    Record(ctx context.Context, e Entry) error
    // List returns entries newest first; an empty routeID lists every route.
    List(ctx context.Context, routeID string, limit int) ([]Entry, error)
}

const defaultLimit = 100

func clampLimit(limit int) int {
    if limit <= 0 || limit > 1000 { return defaultLimit }
    return limit
}
