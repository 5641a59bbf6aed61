// Package realtime is a client for the upstream push channel. Frames are JSON
// envelopes {"event": name, "data": payload} over a websocket.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"ridetrack/internal/metrics"
)

// ErrNotConnected is returned by Emit while the channel is down.
var ErrNotConnected = errors.New("realtime channel not connected")

// Envelope is one frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw payload of an event.
type Handler func(data json.RawMessage)

type Options struct {
	Header           http.Header
	Dialer           *websocket.Dialer
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// PingInterval of zero disables keepalive pings.
	PingInterval time.Duration
	WriteTimeout time.Duration
	Logger       log.FieldLogger
}

type handlerEntry struct {
	id int
	h  Handler
}

type Client struct {
	url  string
	opts Options
	log  log.FieldLogger

	hmu      sync.Mutex
	handlers map[string][]handlerEntry
	nextID   int

	cmu  sync.Mutex
	conn *websocket.Conn

	wmu sync.Mutex // gorilla allows one concurrent writer
}

func NewClient(rawURL string, opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectInitial {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Client{url: rawURL, opts: opts, log: opts.Logger, handlers: map[string][]handlerEntry{}}
}

// WebsocketURL turns an http(s) API base URL into the ws(s) URL of the channel.
func WebsocketURL(apiURL, path string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

// On registers h for event and returns the function that removes it. Handlers
// run on the reader goroutine, one event at a time, in arrival order.
func (c *Client) On(event string, h Handler) (off func()) {
	c.hmu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: id, h: h})
	c.hmu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.hmu.Lock()
			defer c.hmu.Unlock()
			hs := c.handlers[event]
			for i, e := range hs {
				if e.id == id {
					c.handlers[event] = append(hs[:i:i], hs[i+1:]...)
					break
				}
			}
			if len(c.handlers[event]) == 0 {
				delete(c.handlers, event)
			}
		})
	}
}

// Listeners reports how many handlers are registered for event.
func (c *Client) Listeners(event string) int {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	return len(c.handlers[event])
}

func (c *Client) Connected() bool {
	c.cmu.Lock()
	defer c.cmu.Unlock()
	return c.conn != nil
}

// Emit sends event with data. It does not buffer: a down channel is an error.
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	c.cmu.Lock()
	conn := c.conn
	c.cmu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(Envelope{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Run keeps the channel connected until ctx is cancelled, reconnecting with
// exponential backoff. The backoff resets after every successful connect.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.ReconnectInitial
	bo.MaxInterval = c.opts.ReconnectMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			bo.Reset()
		}
		wait := bo.NextBackOff()
		c.log.WithError(err).WithField("retry_in", wait).Warn("realtime channel down")
		metrics.RealtimeReconnects.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// session dials once and reads until the connection fails.
func (c *Client) session(ctx context.Context) (bool, error) {
	conn, _, err := c.opts.Dialer.DialContext(ctx, c.url, c.opts.Header)
	if err != nil {
		return false, err
	}
	c.setConn(conn)
	c.log.WithField("url", c.url).Info("realtime channel connected")
	defer func() {
		c.setConn(nil)
		_ = conn.Close()
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	if c.opts.PingInterval > 0 {
		wait := 3 * c.opts.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(wait)); return nil })
		go c.keepalive(conn, stop)
	}

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			// ReadJSON has consumed the whole frame, so a truncated or empty
			// body is dropped like any other malformed frame.
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.log.WithError(err).Warn("dropping malformed frame")
				continue
			}
			return true, err
		}
		c.dispatch(env)
	}
}

func (c *Client) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.wmu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			c.wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(env Envelope) {
	c.hmu.Lock()
	hs := make([]Handler, 0, len(c.handlers[env.Event]))
	for _, e := range c.handlers[env.Event] {
		hs = append(hs, e.h)
	}
	c.hmu.Unlock()
	if len(hs) == 0 {
		c.log.WithField("event", env.Event).Debug("no listener for event")
		return
	}
	for _, h := range hs {
		h(env.Data)
	}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.cmu.Lock()
	c.conn = conn
	c.cmu.Unlock()
	if conn != nil {
		metrics.RealtimeConnected.Set(1)
	} else {
		metrics.RealtimeConnected.Set(0)
	}
}
