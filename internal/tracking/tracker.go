// Package tracking starts tracking sessions for routes and applies the position
// events pushed by the realtime channel.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"ridetrack/internal/config"
	"ridetrack/internal/journal"
	"ridetrack/internal/mapsurface"
	"ridetrack/internal/metrics"
	"ridetrack/internal/model"
	"ridetrack/internal/notify"
)

// Surface is the subset of *mapsurface.Surface the tracker drives.
type Surface interface {
	AddRoute(routeID string, current, end model.MarkerOptions) (mapsurface.RouteMarkers, error)
	MoveCurrentMarker(routeID string, pos model.LatLng) error
	RemoveRoute(routeID string) error
}

// Routes resolves route ids. It is read on every call, never cached.
type Routes interface {
	Lookup(id string) (model.Route, bool)
}

// Emitter sends outbound realtime events.
type Emitter interface {
	Emit(ctx context.Context, event string, data any) error
}

type StartOutcome int

const (
	StartStarted StartOutcome = iota + 1
	StartConflict
	StartInvalid
	StartNotReady
)

func (o StartOutcome) String() string {
	switch o {
	case StartStarted:
		return "started"
	case StartConflict:
		return "conflict"
	case StartInvalid:
		return "invalid"
	case StartNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

func (o StartOutcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// StartResult is the expected outcome of Start. Unexpected faults are returned
// as errors instead.
type StartResult struct {
	Outcome StartOutcome   `json:"outcome"`
	RouteID string         `json:"routeId"`
	Reason  string         `json:"reason,omitempty"`
	Session *model.Session `json:"session,omitempty"`
	Notice  *model.Notice  `json:"notice,omitempty"`
}

type Deps struct {
	Surface  Surface
	Routes   Routes
	Emitter  Emitter
	Notifier notify.Notifier
	Colors   ColorAllocator
	Journal  journal.Journal
	Logger   log.FieldLogger
}

// journalTimeout bounds one journal write. Writes run after the tracker lock
// is released and outlive the caller's cancellation.
const journalTimeout = 2 * time.Second

// Tracker is the session controller and the realtime update dispatcher. Start
// and HandlePosition are serialised.
type Tracker struct {
	deps     Deps
	registry *Registry
	log      log.FieldLogger

	mu      sync.Mutex
	pending []journal.Entry
}

func NewTracker(d Deps) *Tracker {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.Notifier == nil {
		d.Notifier = notify.Log{Logger: d.Logger}
	}
	if d.Colors == nil {
		d.Colors = NewShuffleAllocator(config.DefaultPalette, 0)
	}
	return &Tracker{deps: d, registry: NewRegistry(), log: d.Logger}
}

func (t *Tracker) Registry() *Registry { return t.registry }

// Start begins tracking routeID: it tints and places the route's markers,
// records the session and announces it upstream with new-direction.
func (t *Tracker) Start(ctx context.Context, routeID string) (StartResult, error) {
	t.mu.Lock()
	res, err := t.start(ctx, routeID)
	entries := t.drain()
	t.mu.Unlock()
	t.flush(ctx, entries)

	outcome := res.Outcome.String()
	if err != nil {
		outcome = "error"
	}
	metrics.SessionStarts.WithLabelValues(outcome).Inc()
	return res, err
}

func (t *Tracker) start(ctx context.Context, routeID string) (StartResult, error) {
	if strings.TrimSpace(routeID) == "" {
		return StartResult{Outcome: StartInvalid, Reason: "no route selected"}, nil
	}
	route, ok := t.deps.Routes.Lookup(routeID)
	if !ok {
		return StartResult{Outcome: StartInvalid, RouteID: routeID, Reason: "unknown route"}, nil
	}

	color := t.deps.Colors.Pick(routeID)
	markers, err := t.deps.Surface.AddRoute(routeID,
		model.MarkerOptions{Position: route.StartPosition, Icon: mapsurface.CarIcon(color)},
		model.MarkerOptions{Position: route.EndPosition, Icon: mapsurface.PinIcon(color)},
	)
	switch {
	case errors.Is(err, mapsurface.ErrRouteExists):
		n := notify.New(fmt.Sprintf("%s já adicionado, espere finalizar.", route.Title), model.VariantDefault, routeID)
		t.deps.Notifier.Notify(ctx, n)
		t.record(journal.Entry{RouteID: routeID, Kind: journal.KindConflict, Title: route.Title})
		return StartResult{Outcome: StartConflict, RouteID: routeID, Reason: "already tracking", Notice: &n}, nil
	case errors.Is(err, mapsurface.ErrNotReady):
		return StartResult{Outcome: StartNotReady, RouteID: routeID, Reason: "map not ready"}, nil
	case err != nil:
		return StartResult{}, fmt.Errorf("add route %s: %w", routeID, err)
	}

	if err := t.deps.Emitter.Emit(ctx, model.EventNewDirection, model.DirectionEvent{RouteID: routeID}); err != nil {
		if rerr := t.deps.Surface.RemoveRoute(routeID); rerr != nil {
			t.log.WithError(rerr).WithField("route_id", routeID).Warn("rollback markers")
		}
		return StartResult{}, fmt.Errorf("announce route %s: %w", routeID, err)
	}

	s := &session{
		routeID:   routeID,
		title:     route.Title,
		color:     color,
		current:   markers.Current.ID,
		end:       markers.End.ID,
		position:  route.StartPosition,
		startedAt: time.Now(),
	}
	if !t.registry.add(s) {
		// surface and registry change together under t.mu
		return StartResult{}, fmt.Errorf("session for %s already registered", routeID)
	}
	metrics.SessionsActive.Set(float64(t.registry.Len()))
	t.record(journal.Entry{RouteID: routeID, Kind: journal.KindStarted, Title: route.Title, Color: color, Lat: route.StartPosition.Lat, Lng: route.StartPosition.Lng})
	t.log.WithFields(log.Fields{"route_id": routeID, "color": color}).Info("tracking started")

	view := s.view()
	return StartResult{Outcome: StartStarted, RouteID: routeID, Session: &view}, nil
}

// HandlePosition applies one new-position event. Events for routes without an
// active session are ignored.
func (t *Tracker) HandlePosition(ctx context.Context, ev model.PositionEvent) {
	t.mu.Lock()
	t.handlePosition(ctx, ev)
	entries := t.drain()
	t.mu.Unlock()
	t.flush(ctx, entries)
}

func (t *Tracker) handlePosition(ctx context.Context, ev model.PositionEvent) {
	pos := ev.Position.LatLng()
	if _, ok := t.registry.update(ev.RouteID, pos); !ok {
		metrics.PositionEvents.WithLabelValues("ignored").Inc()
		t.log.WithField("route_id", ev.RouteID).Debug("position for inactive route ignored")
		return
	}
	if err := t.deps.Surface.MoveCurrentMarker(ev.RouteID, pos); err != nil {
		t.log.WithError(err).WithField("route_id", ev.RouteID).Warn("move marker")
	}
	if !ev.Finished {
		metrics.PositionEvents.WithLabelValues("applied").Inc()
		return
	}

	title := t.label(ev.RouteID)
	t.deps.Notifier.Notify(ctx, notify.New(title+" finalizou!", model.VariantSuccess, ev.RouteID))
	if err := t.deps.Surface.RemoveRoute(ev.RouteID); err != nil {
		t.log.WithError(err).WithField("route_id", ev.RouteID).Warn("remove markers")
	}
	t.registry.remove(ev.RouteID)
	metrics.SessionsActive.Set(float64(t.registry.Len()))
	metrics.PositionEvents.WithLabelValues("finished").Inc()
	t.record(journal.Entry{RouteID: ev.RouteID, Kind: journal.KindFinished, Title: title, Lat: pos.Lat, Lng: pos.Lng})
	t.log.WithField("route_id", ev.RouteID).Info("tracking finished")
}

// PositionHandler decodes new-position payloads for the realtime client.
func (t *Tracker) PositionHandler(ctx context.Context) func(json.RawMessage) {
	return func(data json.RawMessage) {
		var wire struct {
			RouteID  string       `json:"routeId"`
			Position *model.Point `json:"position"`
			Finished bool         `json:"finished"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			metrics.PositionEvents.WithLabelValues("rejected").Inc()
			t.log.WithError(err).WithField("payload", string(data)).Warn("malformed new-position payload")
			return
		}
		if wire.Position == nil {
			metrics.PositionEvents.WithLabelValues("rejected").Inc()
			t.log.WithField("payload", string(data)).Warn("new-position payload without position")
			return
		}
		t.HandlePosition(ctx, model.PositionEvent{RouteID: wire.RouteID, Position: *wire.Position, Finished: wire.Finished})
	}
}

// label is the route title from the directory, or a generic label when the
// route is no longer listed.
func (t *Tracker) label(routeID string) string {
	if r, ok := t.deps.Routes.Lookup(routeID); ok && r.Title != "" {
		return r.Title
	}
	return "Corrida " + routeID
}

// record queues e under t.mu; flush writes it once the lock is released.
func (t *Tracker) record(e journal.Entry) {
	if t.deps.Journal == nil {
		return
	}
	e.At = time.Now().UTC()
	t.pending = append(t.pending, e)
}

func (t *Tracker) drain() []journal.Entry {
	out := t.pending
	t.pending = nil
	return out
}

func (t *Tracker) flush(ctx context.Context, entries []journal.Entry) {
	if len(entries) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	for _, e := range entries {
		if err := t.deps.Journal.Record(ctx, e); err != nil {
			t.log.WithError(err).WithField("route_id", e.RouteID).Warn("journal record")
		}
	}
}
