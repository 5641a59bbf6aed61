package mapsurface

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"ridetrack/internal/broker"
	"ridetrack/internal/model"
)

// Engine is the rendering backend behind a Surface.
type Engine interface {
	Load(ctx context.Context) error
	SetView(view model.MapView) error
	PlaceMarker(m model.Marker) error
	MoveMarker(m model.Marker) error
	RemoveMarker(m model.Marker) error
}

// Map event types published by BrokerEngine.
const (
	EventView          = "map.view"
	EventMarkerAdded   = "marker.added"
	EventMarkerMoved   = "marker.moved"
	EventMarkerRemoved = "marker.removed"
)

// BrokerEngine renders by publishing map events to the viewers subscribed on
// broker.TopicMap. Viewers animate marker.moved events.
type BrokerEngine struct {
	Broker broker.EventBroker
	APIKey string

	once sync.Once
}

func NewBrokerEngine(b broker.EventBroker, apiKey string) *BrokerEngine {
	return &BrokerEngine{Broker: b, APIKey: apiKey}
}

func (e *BrokerEngine) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.once.Do(func() {
		if e.APIKey == "" {
			log.WithField("component", "mapsurface").Warn("map api key not set; viewers will render without tiles")
		}
	})
	return nil
}

func (e *BrokerEngine) SetView(view model.MapView) error {
	e.Broker.Publish(broker.TopicMap, broker.Event{Type: EventView, Data: map[string]any{
		"center": view.Center,
		"zoom":   view.Zoom,
		"apiKey": e.APIKey,
	}})
	return nil
}

func (e *BrokerEngine) PlaceMarker(m model.Marker) error {
	e.Broker.Publish(broker.TopicMap, broker.Event{Type: EventMarkerAdded, Data: markerData(m)})
	return nil
}

func (e *BrokerEngine) MoveMarker(m model.Marker) error {
	e.Broker.Publish(broker.TopicMap, broker.Event{Type: EventMarkerMoved, Data: markerData(m)})
	return nil
}

func (e *BrokerEngine) RemoveMarker(m model.Marker) error {
	e.Broker.Publish(broker.TopicMap, broker.Event{Type: EventMarkerRemoved, Data: map[string]any{
		"id":      m.ID,
		"routeId": m.RouteID,
		"role":    m.Role,
	}})
	return nil
}

func markerData(m model.Marker) map[string]any {
	return map[string]any{
		"id":       m.ID,
		"routeId":  m.RouteID,
		"role":     m.Role,
		"position": m.Position,
		"icon":     m.Icon,
	}
}
