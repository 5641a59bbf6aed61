package api

import (
    "bytes"
    "context"
    "encoding/json"
    "io"
    "net/http"
    "net/http/httptest"
    "strings"
    "sync/atomic"
    "testing"
    "time"

    "github.com/gorilla/websocket"
    log "github.com/sirupsen/logrus"

    "ridetrack/internal/config"
    "ridetrack/internal/console"
    "ridetrack/internal/model"
    "ridetrack/internal/realtime"
    "ridetrack/internal/webhooks"
)

const routesJSON = `[
  {"_id":"A","title":"Trip A","startPosition":{"lat":1,"lng":1},"endPosition":{"lat":2,"lng":2}},
  {"_id":"B","title":"Trip B","startPosition":{"lat":5,"lng":5},"endPosition":{"lat":6,"lng":6}}
]`

type harness struct {
    srv      *Server
    upstream *httptest.Server
    conns    chan *websocket.Conn
    routesOK atomic.Bool
}

func quiet() *log.Logger {
    l := log.New()
    l.SetOutput(io.Discard)
    return l
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
    t.Helper()
    h := &harness{conns: make(chan *websocket.Conn, 4)}
    h.routesOK.Store(true)
    up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
    mux := http.NewServeMux()
    mux.HandleFunc("/routes", func(w http.ResponseWriter, r *http.Request) {
        if !h.routesOK.Load() { w.WriteHeader(http.StatusBadGateway); return }
        _, _ = io.WriteString(w, routesJSON)
    })
    mux.HandleFunc("/socket", func(w http.ResponseWriter, r *http.Request) {
        conn, err := up.Upgrade(w, r, nil)
        if err != nil { return }
        h.conns <- conn
    })
    h.upstream = httptest.NewServer(mux)
    t.Cleanup(h.upstream.Close)

    cfg := config.Default()
    cfg.APIURL = h.upstream.URL
    cfg.Map.ColorStrategy = "round-robin"
    cfg.Realtime.ReconnectInitial = 10 * time.Millisecond
    cfg.Realtime.ReconnectMax = 50 * time.Millisecond
    cfg.Realtime.PingInterval = 0
    cfg.Rate.RPS = 0
    if mutate != nil { mutate(&cfg) }

    c, err := console.New(console.Options{Config: cfg, Logger: quiet()})
    if err != nil { t.Fatalf("console.New: %v", err) }
    if err := c.Open(context.Background()); err != nil { t.Fatalf("Open: %v", err) }
    t.Cleanup(func() { _ = c.Close() })
    h.srv = NewServer(c, cfg, webhooks.NewQueue(), quiet())
    return h
}

// upstreamConn returns the realtime connection the console dialed.
func (h *harness) upstreamConn(t *testing.T) *websocket.Conn {
    t.Helper()
    select {
    case conn := <-h.conns:
        t.Cleanup(func() { _ = conn.Close() })
        deadline := time.Now().Add(2 * time.Second)
        for !h.srv.Console.Realtime.Connected() && time.Now().Before(deadline) { time.Sleep(5 * time.Millisecond) }
        return conn
    case <-time.After(2 * time.Second):
        t.Fatal("console did not connect upstream")
        return nil
    }
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
    var rd io.Reader
    if body != "" { rd = strings.NewReader(body) }
    req := httptest.NewRequest(method, path, rd)
    if body != "" { req.Header.Set("Content-Type", "application/json") }
    rr := httptest.NewRecorder()
    h.srv.Handler().ServeHTTP(rr, req)
    return rr
}

func TestHealthReady(t *testing.T) {
    h := newHarness(t, nil)
    rr := h.do(http.MethodGet, "/healthz", "")
    if rr.Code != 200 { t.Fatalf("health: got %d", rr.Code) }
    h.upstreamConn(t)
    rr = h.do(http.MethodGet, "/readyz", "")
    if rr.Code != 200 { t.Fatalf("ready: got %d %s", rr.Code, rr.Body.String()) }
}

func TestReadyWithoutRealtime(t *testing.T) {
    h := newHarness(t, func(c *config.Config) { c.Realtime.Path = "/nope" })
    rr := h.do(http.MethodGet, "/readyz", "")
    if rr.Code != http.StatusServiceUnavailable { t.Fatalf("ready: got %d", rr.Code) }
    var p Problem
    _ = json.Unmarshal(rr.Body.Bytes(), &p)
    if !strings.Contains(p.Detail, "realtime") { t.Fatalf("detail: %q", p.Detail) }
}

func TestRoutesListAndRefresh(t *testing.T) {
    h := newHarness(t, nil)
    rr := h.do(http.MethodGet, "/v1/routes", "")
    if rr.Code != 200 { t.Fatalf("routes: %d", rr.Code) }
    var out struct{ Items []model.Route `json:"items"` }
    if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil { t.Fatal(err) }
    if len(out.Items) != 2 || out.Items[0].Title != "Trip A" { t.Fatalf("items: %+v", out.Items) }

    h.routesOK.Store(false)
    rr = h.do(http.MethodPost, "/v1/routes/refresh", "")
    if rr.Code != http.StatusBadGateway { t.Fatalf("refresh failure: %d", rr.Code) }
    if n := len(h.srv.Console.Directory.Routes()); n != 2 { t.Fatalf("refresh dropped list: %d", n) }

    h.routesOK.Store(true)
    rr = h.do(http.MethodPost, "/v1/routes/refresh", "")
    if rr.Code != 200 { t.Fatalf("refresh: %d", rr.Code) }
    rr = h.do(http.MethodGet, "/v1/routes/refresh", "")
    if rr.Code != http.StatusMethodNotAllowed { t.Fatalf("refresh GET: %d", rr.Code) }
}

func TestStartSessionOutcomes(t *testing.T) {
    h := newHarness(t, nil)
    conn := h.upstreamConn(t)

    rr := h.do(http.MethodPost, "/v1/sessions", `{"routeId":"A"}`)
    if rr.Code != http.StatusCreated { t.Fatalf("start: %d %s", rr.Code, rr.Body.String()) }
    var raw struct {
        Outcome string         `json:"outcome"`
        Session *model.Session `json:"session"`
    }
    if err := json.Unmarshal(rr.Body.Bytes(), &raw); err != nil { t.Fatal(err) }
    if raw.Outcome != "started" || raw.Session == nil || raw.Session.Color == "" { t.Fatalf("result: %s", rr.Body.String()) }
    if loc := rr.Header().Get("Location"); loc != "/v1/sessions/A" { t.Fatalf("location: %q", loc) }

    _ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
    var env realtime.Envelope
    if err := conn.ReadJSON(&env); err != nil { t.Fatal(err) }
    if env.Event != model.EventNewDirection || !bytes.Contains(env.Data, []byte(`"A"`)) { t.Fatalf("upstream got %s %s", env.Event, env.Data) }

    rr = h.do(http.MethodPost, "/v1/sessions", `{"routeId":"A"}`)
    if rr.Code != http.StatusConflict { t.Fatalf("conflict: %d", rr.Code) }

    rr = h.do(http.MethodPost, "/v1/sessions", `{"routeId":""}`)
    if rr.Code != http.StatusBadRequest { t.Fatalf("empty id: %d", rr.Code) }
    rr = h.do(http.MethodPost, "/v1/sessions", `{"routeId":"ZZ"}`)
    if rr.Code != http.StatusBadRequest { t.Fatalf("unknown id: %d", rr.Code) }
    rr = h.do(http.MethodPost, "/v1/sessions", `{"routeId":`)
    if rr.Code != http.StatusBadRequest { t.Fatalf("bad json: %d", rr.Code) }
    if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" { t.Fatalf("content type: %q", ct) }

    rr = h.do(http.MethodGet, "/v1/sessions", "")
    var list struct{ Items []model.Session `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &list)
    if len(list.Items) != 1 || list.Items[0].RouteID != "A" { t.Fatalf("sessions: %s", rr.Body.String()) }

    rr = h.do(http.MethodGet, "/v1/sessions/A", "")
    if rr.Code != 200 { t.Fatalf("session A: %d", rr.Code) }
    rr = h.do(http.MethodGet, "/v1/sessions/B", "")
    if rr.Code != 404 { t.Fatalf("session B: %d", rr.Code) }

    rr = h.do(http.MethodGet, "/v1/journal?routeId=A", "")
    var j struct{ Items []map[string]any `json:"items"` }
    _ = json.Unmarshal(rr.Body.Bytes(), &j)
    if len(j.Items) != 2 || j.Items[0]["kind"] != "conflict" { t.Fatalf("journal: %s", rr.Body.String()) }
    rr = h.do(http.MethodGet, "/v1/journal?limit=x", "")
    if rr.Code != 400 { t.Fatalf("journal bad limit: %d", rr.Code) }
}

func TestStartWhileUpstreamDownIs500(t *testing.T) {
    h := newHarness(t, func(c *config.Config) { c.Realtime.Path = "/nope" })
    rr := h.do(http.MethodPost, "/v1/sessions", `{"routeId":"A"}`)
    if rr.Code != http.StatusInternalServerError { t.Fatalf("start: %d", rr.Code) }
    if h.srv.Console.Surface.HasRoute("A") { t.Fatal("markers left behind after failed start") }
}

func TestStartRateLimited(t *testing.T) {
    h := newHarness(t, func(c *config.Config) { c.Rate.RPS = 0.001; c.Rate.Burst = 1 })
    h.upstreamConn(t)
    if rr := h.do(http.MethodPost, "/v1/sessions", `{"routeId":"A"}`); rr.Code != http.StatusCreated { t.Fatalf("first: %d", rr.Code) }
    rr := h.do(http.MethodPost, "/v1/sessions", `{"routeId":"B"}`)
    if rr.Code != http.StatusTooManyRequests { t.Fatalf("second: %d", rr.Code) }
    if rr.Header().Get("Retry-After") == "" { t.Fatal("missing Retry-After") }
}

func TestMapSnapshotAndGeoJSON(t *testing.T) {
    h := newHarness(t, nil)
    h.upstreamConn(t)
    if rr := h.do(http.MethodPost, "/v1/sessions", `{"routeId":"B"}`); rr.Code != http.StatusCreated { t.Fatalf("start: %d", rr.Code) }

    rr := h.do(http.MethodGet, "/v1/map", "")
    var snap struct {
        Ready   bool           `json:"ready"`
        Markers []model.Marker `json:"markers"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &snap)
    if !snap.Ready || len(snap.Markers) != 2 { t.Fatalf("snapshot: %s", rr.Body.String()) }

    rr = h.do(http.MethodGet, "/v1/map.geojson", "")
    if ct := rr.Header().Get("Content-Type"); ct != "application/geo+json" { t.Fatalf("content type: %q", ct) }
    var fc struct {
        Type     string `json:"type"`
        Features []struct {
            Geometry struct{ Coordinates []float64 `json:"coordinates"` } `json:"geometry"`
        } `json:"features"`
    }
    _ = json.Unmarshal(rr.Body.Bytes(), &fc)
    if fc.Type != "FeatureCollection" || len(fc.Features) != 2 { t.Fatalf("geojson: %s", rr.Body.String()) }
    if c := fc.Features[0].Geometry.Coordinates; len(c) != 2 || c[0] != 5 || c[1] != 5 { t.Fatalf("coords: %v", c) }
}

func TestViewerWebsocket(t *testing.T) {
    h := newHarness(t, nil)
    up := h.upstreamConn(t)
    ts := httptest.NewServer(h.srv.Handler())
    defer ts.Close()

    conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/map/ws", nil)
    if err != nil { t.Fatalf("dial: %v", err) }
    defer func() { _ = conn.Close() }()
    _ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))

    read := func() wsMessage {
        var m wsMessage
        if err := conn.ReadJSON(&m); err != nil { t.Fatalf("read: %v", err) }
        return m
    }
    if m := read(); m.Type != "snapshot" || !bytes.Contains(m.Payload, []byte("Trip A")) { t.Fatalf("snapshot: %+v", m) }

    if err := conn.WriteJSON(wsMessage{Type: "ping", ID: "p1"}); err != nil { t.Fatal(err) }
    if m := read(); m.Type != "pong" || m.ID != "p1" { t.Fatalf("pong: %+v", m) }

    if err := conn.WriteJSON(wsMessage{Type: "start", ID: "s1", RouteID: "A"}); err != nil { t.Fatal(err) }
    var sawResult, sawMarker bool
    for !(sawResult && sawMarker) {
        m := read()
        switch m.Type {
        case "start_result":
            if m.ID != "s1" || !bytes.Contains(m.Payload, []byte(`"started"`)) { t.Fatalf("result: %s", m.Payload) }
            sawResult = true
        case "map":
            if m.Event == "marker.added" { sawMarker = true }
        }
    }

    data, _ := json.Marshal(model.PositionEvent{RouteID: "A", Position: model.Point{2, 2}, Finished: true})
    _ = up.SetReadDeadline(time.Now().Add(time.Second))
    var env realtime.Envelope
    _ = up.ReadJSON(&env) // new-direction
    if err := up.WriteJSON(realtime.Envelope{Event: model.EventNewPosition, Data: data}); err != nil { t.Fatal(err) }
    for {
        m := read()
        if m.Type == "notice" {
            if !bytes.Contains(m.Payload, []byte("Trip A finalizou!")) { t.Fatalf("notice: %s", m.Payload) }
            break
        }
    }
}

func TestNoticesStream(t *testing.T) {
    h := newHarness(t, nil)
    h.upstreamConn(t)
    ts := httptest.NewServer(h.srv.Handler())
    defer ts.Close()

    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/notices/stream", nil)
    resp, err := http.DefaultClient.Do(req)
    if err != nil { t.Fatal(err) }
    defer func() { _ = resp.Body.Close() }()
    if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" { t.Fatalf("content type: %q", ct) }

    buf := make([]byte, 4096)
    n, _ := resp.Body.Read(buf)
    if !strings.Contains(string(buf[:n]), "event: heartbeat") { t.Fatalf("first frame: %q", buf[:n]) }

    if _, err := h.srv.Console.Start(context.Background(), "A"); err != nil { t.Fatal(err) }
    if _, err := h.srv.Console.Start(context.Background(), "A"); err != nil { t.Fatal(err) }
    var got strings.Builder
    for !strings.Contains(got.String(), "espere finalizar") {
        n, err := resp.Body.Read(buf)
        if err != nil { t.Fatalf("stream: %v (got %q)", err, got.String()) }
        got.Write(buf[:n])
    }
    if !strings.Contains(got.String(), "event: notice") { t.Fatalf("frame: %q", got.String()) }
}

func TestMetricsDebugAndPage(t *testing.T) {
    h := newHarness(t, nil)
    for path, want := range map[string]int{"/metrics": 200, "/debug": 200, "/": 200, "/nope": 404, "/v1/admin/webhook-deliveries": 200} {
        if rr := h.do(http.MethodGet, path, ""); rr.Code != want { t.Fatalf("%s: got %d want %d", path, rr.Code, want) }
    }
    rr := h.do(http.MethodGet, "/debug", "")
    var info map[string]any
    _ = json.Unmarshal(rr.Body.Bytes(), &info)
    if _, ok := info["build"]; !ok { t.Fatalf("debug: %s", rr.Body.String()) }
    if !strings.Contains(h.do(http.MethodGet, "/", "").Body.String(), "/map/ws") { t.Fatal("page does not open the viewer socket") }
}

func TestMetricPath(t *testing.T) {
    cases := map[string]string{"/v1/sessions": "/v1/sessions", "/v1/sessions/abc": "/v1/sessions/{routeId}", "/wp-admin": "other"}
    for in, want := range cases {
        if got := metricPath(in); got != want { t.Fatalf("%s: got %s want %s", in, got, want) }
    }
}
