// Package mapsurface keeps the markers shown on the dispatcher map, keyed by route id.
package mapsurface

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"ridetrack/internal/model"
)

var (
	// ErrRouteExists is returned by AddRoute when the route already has markers.
	ErrRouteExists = errors.New("route already on map")
	// ErrNotReady is returned before Init has completed.
	ErrNotReady = errors.New("map surface not ready")
)

// RouteMarkers is the marker pair of one route.
type RouteMarkers struct {
	Current model.Marker `json:"current"`
	End     model.Marker `json:"end"`
}

// Options configures a Surface.
type Options struct {
	Zoom           int
	FallbackCenter model.LatLng
	LocateTimeout  time.Duration
	Logger         log.FieldLogger
}

type Surface struct {
	engine  Engine
	locator Locator
	opts    Options
	log     log.FieldLogger

	mu     sync.Mutex
	ready  bool
	view   model.MapView
	routes map[string]*RouteMarkers
}

func New(engine Engine, locator Locator, opts Options) *Surface {
	if opts.Zoom == 0 {
		opts.Zoom = 15
	}
	if opts.LocateTimeout == 0 {
		opts.LocateTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if locator == nil {
		locator = StaticLocator(opts.FallbackCenter)
	}
	return &Surface{
		engine:  engine,
		locator: locator,
		opts:    opts,
		log:     opts.Logger,
		routes:  map[string]*RouteMarkers{},
	}
}

// Init loads the engine and locates the dispatcher concurrently, then centers
// the view. A failed geolocation falls back to the configured center; a failed
// engine load fails Init.
func (s *Surface) Init(ctx context.Context) error {
	var center model.LatLng
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.engine.Load(gctx); err != nil {
			return fmt.Errorf("load map engine: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		lctx, cancel := context.WithTimeout(gctx, s.opts.LocateTimeout)
		defer cancel()
		pos, err := s.locator.CurrentPosition(lctx, PositionOptions{HighAccuracy: true, Timeout: s.opts.LocateTimeout})
		if err != nil {
			s.log.WithError(err).Warn("geolocation failed, using fallback center")
			pos = s.opts.FallbackCenter
		}
		center = pos
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	view := model.MapView{Center: center, Zoom: s.opts.Zoom}
	if err := s.engine.SetView(view); err != nil {
		return fmt.Errorf("set map view: %w", err)
	}
	s.mu.Lock()
	s.view = view
	s.ready = true
	s.mu.Unlock()
	s.log.WithField("center", center).WithField("zoom", view.Zoom).Info("map surface ready")
	return nil
}

func (s *Surface) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// AddRoute places the current and end markers of routeID.
func (s *Surface) AddRoute(routeID string, current, end model.MarkerOptions) (RouteMarkers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return RouteMarkers{}, ErrNotReady
	}
	if _, ok := s.routes[routeID]; ok {
		return RouteMarkers{}, fmt.Errorf("%w: %s", ErrRouteExists, routeID)
	}
	rm := RouteMarkers{
		Current: model.Marker{ID: uuid.NewString(), RouteID: routeID, Role: model.RoleCurrent, Position: current.Position, Icon: current.Icon},
		End:     model.Marker{ID: uuid.NewString(), RouteID: routeID, Role: model.RoleEnd, Position: end.Position, Icon: end.Icon},
	}
	if err := s.engine.PlaceMarker(rm.Current); err != nil {
		return RouteMarkers{}, fmt.Errorf("place current marker: %w", err)
	}
	if err := s.engine.PlaceMarker(rm.End); err != nil {
		_ = s.engine.RemoveMarker(rm.Current)
		return RouteMarkers{}, fmt.Errorf("place end marker: %w", err)
	}
	s.routes[routeID] = &rm
	return rm, nil
}

// MoveCurrentMarker repositions the current marker of routeID. Unknown routes
// are a no-op.
func (s *Surface) MoveCurrentMarker(routeID string, pos model.LatLng) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.routes[routeID]
	if !ok {
		return nil
	}
	rm.Current.Position = pos
	return s.engine.MoveMarker(rm.Current)
}

// RemoveRoute removes both markers of routeID. Removing an absent route is a no-op.
func (s *Surface) RemoveRoute(routeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rm, ok := s.routes[routeID]
	if !ok {
		return nil
	}
	delete(s.routes, routeID)
	return errors.Join(s.engine.RemoveMarker(rm.Current), s.engine.RemoveMarker(rm.End))
}

func (s *Surface) HasRoute(routeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.routes[routeID]
	return ok
}

// Snapshot is the full scene, for viewers joining late.
type Snapshot struct {
	Ready   bool           `json:"ready"`
	View    model.MapView  `json:"view"`
	Markers []model.Marker `json:"markers"`
}

func (s *Surface) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Ready: s.ready, View: s.view, Markers: make([]model.Marker, 0, len(s.routes)*2)}
	ids := make([]string, 0, len(s.routes))
	for id := range s.routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		rm := s.routes[id]
		snap.Markers = append(snap.Markers, rm.Current, rm.End)
	}
	return snap
}
