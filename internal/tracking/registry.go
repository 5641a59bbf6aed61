package tracking

import (
	"sort"
	"sync"
	"time"

	"ridetrack/internal/model"
)

type session struct {
	routeID   string
	title     string
	color     string
	current   string // marker handles
	end       string
	position  model.LatLng
	updates   int
	startedAt time.Time
}

func (s *session) view() model.Session {
	return model.Session{
		RouteID:         s.routeID,
		Title:           s.title,
		Color:           s.color,
		CurrentMarkerID: s.current,
		EndMarkerID:     s.end,
		Position:        s.position,
		Updates:         s.updates,
		StartedAt:       s.startedAt.UTC().Format(time.RFC3339),
	}
}

// Registry maps route ids to their active session. A route has at most one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*session{}}
}

// add stores s unless its route already has a session.
func (r *Registry) add(s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.routeID]; ok {
		return false
	}
	r.sessions[s.routeID] = s
	return true
}

func (r *Registry) update(routeID string, pos model.LatLng) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[routeID]
	if !ok {
		return model.Session{}, false
	}
	s.position = pos
	s.updates++
	return s.view(), true
}

func (r *Registry) remove(routeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[routeID]
	delete(r.sessions, routeID)
	return ok
}

func (r *Registry) Active(routeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[routeID]
	return ok
}

func (r *Registry) Get(routeID string) (model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[routeID]
	if !ok {
		return model.Session{}, false
	}
	return s.view(), true
}

// List returns the active sessions ordered by start time.
func (r *Registry) List() []model.Session {
	r.mu.RLock()
	ss := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		ss = append(ss, s)
	}
	sort.Slice(ss, func(i, j int) bool {
		if ss[i].startedAt.Equal(ss[j].startedAt) {
			return ss[i].routeID < ss[j].routeID
		}
		return ss[i].startedAt.Before(ss[j].startedAt)
	})
	out := make([]model.Session, len(ss))
	for i, s := range ss {
		out[i] = s.view()
	}
	r.mu.RUnlock()
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
