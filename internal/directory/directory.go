// Package directory holds the routes available for tracking.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ridetrack/internal/model"
)

// Directory fetches the route list from {API_URL}/routes. Readers always see the
// latest successfully fetched list.
type Directory struct {
	url  string
	http *http.Client
	log  log.FieldLogger

	mu      sync.RWMutex
	routes  []model.Route
	byID    map[string]model.Route
	fetched time.Time
}

func New(apiURL, routesPath string, timeout time.Duration, logger log.FieldLogger) *Directory {
	if routesPath == "" {
		routesPath = "/routes"
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Directory{
		url:  strings.TrimRight(apiURL, "/") + routesPath,
		http: &http.Client{Timeout: timeout},
		log:  logger,
		byID: map[string]model.Route{},
	}
}

// WithClient replaces the HTTP client.
func (d *Directory) WithClient(c *http.Client) *Directory {
	d.http = c
	return d
}

// Fetch loads the route list. Failures are logged and yield an empty list.
func (d *Directory) Fetch(ctx context.Context) []model.Route {
	routes, err := d.get(ctx)
	if err != nil {
		d.log.WithError(err).WithField("url", d.url).Warn("route list fetch failed")
		d.set(nil)
		return nil
	}
	d.set(routes)
	return d.Routes()
}

// Refresh re-fetches the list and keeps the previous one on failure.
func (d *Directory) Refresh(ctx context.Context) ([]model.Route, error) {
	routes, err := d.get(ctx)
	if err != nil {
		return d.Routes(), err
	}
	d.set(routes)
	return d.Routes(), nil
}

func (d *Directory) get(ctx context.Context) ([]model.Route, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var routes []model.Route
	if err := json.NewDecoder(resp.Body).Decode(&routes); err != nil {
		return nil, fmt.Errorf("decode routes: %w", err)
	}
	return routes, nil
}

func (d *Directory) set(routes []model.Route) {
	byID := make(map[string]model.Route, len(routes))
	kept := make([]model.Route, 0, len(routes))
	for _, r := range routes {
		if r.ID == "" {
			continue
		}
		if _, dup := byID[r.ID]; dup {
			continue
		}
		byID[r.ID] = r
		kept = append(kept, r)
	}
	d.mu.Lock()
	d.routes = kept
	d.byID = byID
	d.fetched = time.Now()
	d.mu.Unlock()
}

// Routes returns a copy of the current list in upstream order.
func (d *Directory) Routes() []model.Route {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Route, len(d.routes))
	copy(out, d.routes)
	return out
}

func (d *Directory) Lookup(id string) (model.Route, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.byID[id]
	return r, ok
}

// FetchedAt is the time of the last successful (or failed initial) fetch.
func (d *Directory) FetchedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fetched
}
