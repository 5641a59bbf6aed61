// Package main runs a demo viewer: it starts tracking a route and prints the
// map and notice events pushed on /map/ws.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Event   string          `json:"event,omitempty"`
	RouteID string          `json:"routeId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	routeID := flag.String("route", "", "route id to start (defaults to the first listed route)")
	wait := flag.Duration("wait", 30*time.Second, "how long to print events")
	flag.Parse()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	if *routeID == "" {
		resp, err := http.Get(base + "/v1/routes")
		if err != nil {
			log.Fatal(err)
		}
		var list struct {
			Items []struct {
				ID    string `json:"_id"`
				Title string `json:"title"`
			} `json:"items"`
		}
		err = json.NewDecoder(resp.Body).Decode(&list)
		_ = resp.Body.Close()
		if err != nil {
			log.Fatal(err)
		}
		if len(list.Items) == 0 {
			log.Fatal("no routes listed")
		}
		*routeID = list.Items[0].ID
		log.WithField("route_id", *routeID).Infof("picked %s", list.Items[0].Title)
	}

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/map/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Infof("read: %v", err)
				return
			}
			log.WithFields(log.Fields{"type": m.Type, "event": m.Event}).Info(string(m.Payload))
		}
	}()

	// Start over REST so the status code is visible too
	body, _ := json.Marshal(map[string]string{"routeId": *routeID})
	resp, err := http.Post(base+"/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.WithField("status", resp.StatusCode).Info("start session")

	select {
	case <-time.After(*wait):
	case <-done:
	}
}
