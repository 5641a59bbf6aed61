package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ridetrack/internal/broker"
)

// Viewer protocol on /map/ws. The server sends a snapshot first, then every
// map and notice event. Viewers may start a session and ping.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event,omitempty"`
	RouteID string          `json:"routeId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	wsReadWait  = 60 * time.Second
	wsPingEvery = 20 * time.Second
)

// ViewerWSHandler handles /map/ws
func (s *Server) ViewerWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(m wsMessage) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(m)
	}
	payload := func(v any) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}

	c := s.Console
	b := c.Broker
	mapCh := b.Subscribe(broker.TopicMap)
	noticeCh := b.Subscribe(broker.TopicNotices)
	defer b.Unsubscribe(broker.TopicMap, mapCh)
	defer b.Unsubscribe(broker.TopicNotices, noticeCh)

	// Subscribed before the snapshot so no change falls between the two.
	snapshot := map[string]any{
		"map":      c.Surface.Snapshot(),
		"sessions": c.Tracker.Registry().List(),
		"routes":   c.Directory.Routes(),
	}
	if err := write(wsMessage{Type: "snapshot", Payload: payload(snapshot)}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	// Fanout goroutine
	go func() {
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			var err error
			select {
			case <-done:
				return
			case evt, ok := <-mapCh:
				if !ok {
					return
				}
				err = write(wsMessage{Type: "map", Event: evt.Type, Payload: payload(evt.Data)})
			case evt, ok := <-noticeCh:
				if !ok {
					return
				}
				err = write(wsMessage{Type: "notice", Event: evt.Type, Payload: payload(evt.Data)})
			case <-ticker.C:
				wmu.Lock()
				err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
				wmu.Unlock()
			}
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}()

	// Read loop
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(wsReadWait)); return nil })
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		switch msg.Type {
		case "ping":
			_ = write(wsMessage{Type: "pong", ID: msg.ID})
		case "start":
			if s.startLimiter != nil && !s.startLimiter.Allow() {
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"rate limited"}`)})
				continue
			}
			res, err := c.Start(r.Context(), msg.RouteID)
			if err != nil {
				s.Log.WithError(err).WithField("route_id", msg.RouteID).Error("start session")
				_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: payload(map[string]string{"message": err.Error()})})
				continue
			}
			_ = write(wsMessage{Type: "start_result", ID: msg.ID, RouteID: res.RouteID, Payload: payload(res)})
		default:
			_ = write(wsMessage{Type: "error", ID: msg.ID, Payload: []byte(`{"message":"unknown message type"}`)})
		}
	}
}
