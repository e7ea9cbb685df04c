package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

type tokenAuth map[string]*model.GroundStation

func (a tokenAuth) Authenticate(_ context.Context, token string) (*model.GroundStation, error) {
	gs, ok := a[token]
	if !ok {
		return nil, errors.New("unknown token")
	}
	return gs, nil
}

var testAuth = tokenAuth{
	"gs-1:secret": {ID: "gs-1", Name: "Station One"},
}

func startGateway(t *testing.T, r *Registry) (string, <-chan error) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	done := make(chan error, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			done <- err
			return
		}
		done <- r.Serve(req.Context(), ws, testAuth)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), done
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	return ws
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServeHandshakeAndDelivery(t *testing.T) {
	r, _ := newTestRegistry(t)
	url, done := startGateway(t, r)
	ws := dial(t, url)

	if err := ws.WriteJSON(Hello{Type: "hello", Token: "gs-1:secret"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	var reply HelloReply
	if err := ws.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply != (HelloReply{Message: "OK", ID: "gs-1"}) {
		t.Fatalf("reply = %+v", reply)
	}
	waitFor(t, "registration", func() bool { return r.IsConnected("gs-1") })

	id, err := r.Send(context.Background(), sampleTransmission())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	var header Header
	if err := ws.ReadJSON(&header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if header.RequestID != id || header.Data.FlightPlanID != "fp-1" {
		t.Fatalf("header = %+v", header)
	}
	var script []string
	if err := ws.ReadJSON(&script); err != nil {
		t.Fatalf("read script: %v", err)
	}
	if len(script) != 1 {
		t.Fatalf("script = %q", script)
	}

	if err := ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		t.Fatalf("write close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after close")
	}
	if r.IsConnected("gs-1") {
		t.Fatalf("station still registered after disconnect")
	}
}

func TestServeRejectsBadHello(t *testing.T) {
	cases := map[string]string{
		"not json":      "hello there",
		"wrong type":    `{"type":"ping","token":"gs-1:secret"}`,
		"missing token": `{"type":"hello"}`,
		"bad token":     `{"type":"hello","token":"gs-1:nope"}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			r, _ := newTestRegistry(t)
			url, done := startGateway(t, r)
			ws := dial(t, url)

			if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				t.Fatalf("write hello: %v", err)
			}
			_, _, err := ws.ReadMessage()
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Fatalf("read err = %v, want policy violation close", err)
			}
			if err := <-done; err == nil {
				t.Fatalf("Serve accepted %q", frame)
			}
			if len(r.Connections()) != 0 {
				t.Fatalf("rejected station registered")
			}
		})
	}
}

func TestServeEndsWithContext(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	upgrader := websocket.Upgrader{}
	done := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ws, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			done <- err
			return
		}
		done <- r.Serve(ctx, ws, testAuth)
	}))
	defer srv.Close()

	ws := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err := ws.WriteJSON(Hello{Type: "hello", Token: "gs-1:secret"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	var reply HelloReply
	if err := ws.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	waitFor(t, "registration", func() bool { return r.IsConnected("gs-1") })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve ignored cancellation")
	}
	if r.IsConnected("gs-1") {
		t.Fatalf("station still registered after shutdown")
	}
}

func TestHelloWireFormat(t *testing.T) {
	raw, err := json.Marshal(HelloReply{Message: "OK", ID: "gs-1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"message":"OK","id":"gs-1"}` {
		t.Fatalf("reply = %s", raw)
	}
}
