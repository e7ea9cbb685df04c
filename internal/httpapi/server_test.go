package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/fixtures"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/gateway"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
)

type testServer struct {
	srv      *httptest.Server
	registry *gateway.Registry
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	metrics, err := observability.NewOrchestratorCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewOrchestratorCollector: %v", err)
	}
	registry := gateway.NewRegistry(gateway.WithMetrics(metrics))
	api := New(registry, NewStationAuthenticator(stationCatalog(t)), append([]Option{WithMetrics(metrics)}, opts...)...)
	srv := httptest.NewServer(api.Router())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, registry: registry}
}

func (ts *testServer) connect(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.srv.URL, "http")+StationPath, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := ws.WriteJSON(gateway.Hello{Type: "hello", Token: token}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	return ws
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return resp, string(body)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStationConnectsAndIsListed(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.connect(t, fixtures.LondonStationID+":"+fixtures.StationSecret)

	var reply gateway.HelloReply
	if err := ws.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply.Message != "OK" || reply.ID != fixtures.LondonStationID {
		t.Fatalf("reply = %+v", reply)
	}
	waitFor(t, func() bool { return ts.registry.IsConnected(fixtures.LondonStationID) })

	resp, body := ts.get(t, ConnectionsPath)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("connections: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	var got []gateway.Status
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode connections: %v", err)
	}
	if len(got) != 1 || got[0].GroundStationID != fixtures.LondonStationID || got[0].Name != "London" {
		t.Fatalf("connections = %+v", got)
	}

	_, metrics := ts.get(t, MetricsPath)
	if !strings.Contains(metrics, "gateway_connected_stations 1") {
		t.Fatalf("metrics missing connected gauge:\n%s", metrics)
	}
}

func TestStationWithBadTokenIsClosed(t *testing.T) {
	ts := newTestServer(t)
	ws := ts.connect(t, fixtures.LondonStationID+":wrong")

	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want policy violation", err)
	}
	if len(ts.registry.Connections()) != 0 {
		t.Fatalf("unauthenticated station registered")
	}
}

func TestSessionContextEndsSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ts := newTestServer(t, WithSessionContext(ctx))
	ws := ts.connect(t, fixtures.LondonStationID+":"+fixtures.StationSecret)
	var reply gateway.HelloReply
	if err := ws.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	waitFor(t, func() bool { return ts.registry.IsConnected(fixtures.LondonStationID) })

	cancel()
	waitFor(t, func() bool { return !ts.registry.IsConnected(fixtures.LondonStationID) })
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.get(t, HealthPath)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(body) != `{"status":"ok"}` {
		t.Fatalf("health = %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+HealthPath, nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp2.Body.Close()
	if resp2.Header.Get("X-Request-ID") != "req-123" {
		t.Fatalf("request id = %q", resp2.Header.Get("X-Request-ID"))
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Post(ts.srv.URL+ConnectionsPath, "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
