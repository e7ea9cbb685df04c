package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/signalsfoundry/flightplan-orchestrator/timectrl"
)

type fakeConn struct {
	mu       sync.Mutex
	frames   [][]byte
	types    []int
	closed   bool
	writeErr error
	delay    time.Duration

	active  atomic.Int32
	overlap atomic.Bool
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.types = append(f.types, mt)
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) snapshot() ([][]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...), f.closed
}

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *observability.OrchestratorCollector) {
	t.Helper()
	metrics, err := observability.NewOrchestratorCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewOrchestratorCollector: %v", err)
	}
	return NewRegistry(append([]Option{WithMetrics(metrics)}, opts...)...), metrics
}

func sampleTransmission() Transmission {
	return Transmission{
		GroundStationID: "gs-1",
		SatelliteID:     "sat-1",
		SatelliteName:   "SAT ONE",
		FlightPlanID:    "fp-1",
		ExecutionTime:   time.Date(2021, 10, 3, 6, 30, 0, 0, time.UTC),
		Script:          []string{"set pipeline_run 2 -n 162"},
	}
}

func TestSendWritesHeaderThenScript(t *testing.T) {
	r, metrics := newTestRegistry(t)
	conn := &fakeConn{}
	c := r.Register(context.Background(), "gs-1", "Station One", conn)

	id, err := r.Send(context.Background(), sampleTransmission())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	frames, _ := conn.snapshot()
	if len(frames) != 2 {
		t.Fatalf("wrote %d frames, want 2", len(frames))
	}
	for _, mt := range conn.types {
		if mt != websocket.TextMessage {
			t.Fatalf("frame type = %d, want text", mt)
		}
	}

	var header Header
	if err := json.Unmarshal(frames[0], &header); err != nil {
		t.Fatalf("decode header: %v", err)
	}
	want := Header{
		RequestID: id,
		Type:      MessageTypeScheduleTransmission,
		Frames:    1,
		Data: HeaderData{
			Satellite:       "SAT ONE",
			Time:            "2021-10-03T06:30:00Z",
			FlightPlanID:    "fp-1",
			SatelliteID:     "sat-1",
			GroundStationID: "gs-1",
		},
	}
	if header != want {
		t.Fatalf("header = %+v, want %+v", header, want)
	}

	var script []string
	if err := json.Unmarshal(frames[1], &script); err != nil {
		t.Fatalf("decode script: %v", err)
	}
	if len(script) != 1 || script[0] != "set pipeline_run 2 -n 162" {
		t.Fatalf("script = %q", script)
	}

	if c.LastCommandID() != id {
		t.Fatalf("LastCommandID = %q, want %q", c.LastCommandID(), id)
	}
	if got := testutil.ToFloat64(metrics.GatewaySends.WithLabelValues("ok")); got != 1 {
		t.Fatalf("gateway_sends_total{ok} = %v", got)
	}
}

func TestSendEmptyScriptIsAnArray(t *testing.T) {
	r, _ := newTestRegistry(t)
	conn := &fakeConn{}
	r.Register(context.Background(), "gs-1", "Station One", conn)

	tx := sampleTransmission()
	tx.Script = nil
	if _, err := r.Send(context.Background(), tx); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frames, _ := conn.snapshot()
	if string(frames[1]) != "[]" {
		t.Fatalf("script frame = %s, want []", frames[1])
	}
}

func TestSendToDisconnectedStation(t *testing.T) {
	r, metrics := newTestRegistry(t)

	_, err := r.Send(context.Background(), sampleTransmission())
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	if err.Error() != "Ground station gs-1 is not connected." {
		t.Fatalf("message = %q", err.Error())
	}
	var nce *NotConnectedError
	if !errors.As(err, &nce) || nce.GroundStationID != "gs-1" {
		t.Fatalf("err = %#v", err)
	}
	if got := testutil.ToFloat64(metrics.GatewaySends.WithLabelValues("not_connected")); got != 1 {
		t.Fatalf("gateway_sends_total{not_connected} = %v", got)
	}
}

func TestSendWriteFailureUnregisters(t *testing.T) {
	r, metrics := newTestRegistry(t)
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	r.Register(context.Background(), "gs-1", "Station One", conn)

	if _, err := r.Send(context.Background(), sampleTransmission()); err == nil {
		t.Fatalf("expected a write error")
	}
	if r.IsConnected("gs-1") {
		t.Fatalf("station still connected after a failed write")
	}
	if _, closed := conn.snapshot(); !closed {
		t.Fatalf("socket not closed after a failed write")
	}
	if got := testutil.ToFloat64(metrics.GatewaySends.WithLabelValues("error")); got != 1 {
		t.Fatalf("gateway_sends_total{error} = %v", got)
	}
	if got := testutil.ToFloat64(metrics.ConnectedStations); got != 0 {
		t.Fatalf("gateway_connected_stations = %v", got)
	}
}

func TestRegisterReplacesPreviousConnection(t *testing.T) {
	ctx := context.Background()
	r, metrics := newTestRegistry(t)
	first, second := &fakeConn{}, &fakeConn{}

	old := r.Register(ctx, "gs-1", "Station One", first)
	current := r.Register(ctx, "gs-1", "Station One", second)

	if _, closed := first.snapshot(); !closed || old.Open() {
		t.Fatalf("previous connection left open")
	}
	if r.Unregister(ctx, old) {
		t.Fatalf("stale connection removed the current one")
	}
	if !r.IsConnected("gs-1") {
		t.Fatalf("current connection dropped")
	}
	if got := testutil.ToFloat64(metrics.ConnectedStations); got != 1 {
		t.Fatalf("gateway_connected_stations = %v", got)
	}

	if _, err := r.Send(ctx, sampleTransmission()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if frames, _ := first.snapshot(); len(frames) != 0 {
		t.Fatalf("replaced connection received frames")
	}
	if frames, _ := second.snapshot(); len(frames) != 2 {
		t.Fatalf("current connection got %d frames", len(frames))
	}

	if !r.Unregister(ctx, current) || r.IsConnected("gs-1") {
		t.Fatalf("Unregister did not remove the current connection")
	}
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	r, _ := newTestRegistry(t)
	conn := &fakeConn{delay: time.Millisecond}
	r.Register(context.Background(), "gs-1", "Station One", conn)

	const senders = 8
	var wg sync.WaitGroup
	ids := make(chan string, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Send(context.Background(), sampleTransmission())
			if err != nil {
				t.Errorf("Send: %v", err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	if conn.overlap.Load() {
		t.Fatalf("frames from concurrent sends overlapped")
	}
	frames, _ := conn.snapshot()
	if len(frames) != 2*senders {
		t.Fatalf("wrote %d frames, want %d", len(frames), 2*senders)
	}
	// Each header is immediately followed by its own script.
	for i := 0; i < len(frames); i += 2 {
		var h Header
		if err := json.Unmarshal(frames[i], &h); err != nil || h.Type != MessageTypeScheduleTransmission {
			t.Fatalf("frame %d is not a header: %s", i, frames[i])
		}
		var script []string
		if err := json.Unmarshal(frames[i+1], &script); err != nil {
			t.Fatalf("frame %d is not a script: %s", i+1, frames[i+1])
		}
	}
	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate request id %s", id)
		}
		seen[id] = true
	}
}

func TestSendHonoursContextWhileWaiting(t *testing.T) {
	r, _ := newTestRegistry(t)
	c := r.Register(context.Background(), "gs-1", "Station One", &fakeConn{})
	if err := c.acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer c.release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Send(ctx, sampleTransmission()); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestSendWaitingThroughReconnectUsesNewConnection(t *testing.T) {
	r, metrics := newTestRegistry(t)
	ctx := context.Background()
	old := &fakeConn{}
	oldConn := r.Register(ctx, "gs-1", "Station One", old)
	if err := oldConn.acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := r.Send(ctx, sampleTransmission())
		done <- result{id, err}
	}()
	time.Sleep(20 * time.Millisecond)

	fresh := &fakeConn{}
	r.Register(ctx, "gs-1", "Station One", fresh)
	oldConn.release()

	var res result
	select {
	case res = <-done:
	case <-time.After(time.Second):
		t.Fatalf("Send did not return after the reconnect")
	}
	if res.err != nil {
		t.Fatalf("Send: %v (IsConnected=%v)", res.err, r.IsConnected("gs-1"))
	}
	if frames, _ := fresh.snapshot(); len(frames) != 2 {
		t.Fatalf("new connection got %d frames, want 2", len(frames))
	}
	if frames, closed := old.snapshot(); len(frames) != 0 || !closed {
		t.Fatalf("replaced connection: %d frames, closed=%v", len(frames), closed)
	}
	if got := testutil.ToFloat64(metrics.GatewaySends.WithLabelValues("ok")); got != 1 {
		t.Fatalf("gateway_sends_total{ok} = %v", got)
	}
}

func TestSendWaitingThroughDisconnectFails(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	c := r.Register(ctx, "gs-1", "Station One", &fakeConn{})
	if err := c.acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Send(ctx, sampleTransmission())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	r.Unregister(ctx, c)
	c.release()

	select {
	case err := <-done:
		if !errors.Is(err, ErrNotConnected) {
			t.Fatalf("err = %v, want ErrNotConnected", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Send did not return after the disconnect")
	}
}

func TestConnectionsSnapshot(t *testing.T) {
	clock := timectrl.NewManualClock(time.Date(2021, 10, 2, 12, 0, 0, 0, time.UTC))
	r, _ := newTestRegistry(t, WithClock(clock))
	r.Register(context.Background(), "gs-b", "Bravo", &fakeConn{})
	clock.Advance(30 * time.Minute)
	r.Register(context.Background(), "gs-a", "Alpha", &fakeConn{})
	clock.Advance(15 * time.Minute)

	tx := sampleTransmission()
	tx.GroundStationID = "gs-b"
	id, err := r.Send(context.Background(), tx)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	got := r.Connections()
	if len(got) != 2 || got[0].GroundStationID != "gs-a" || got[1].GroundStationID != "gs-b" {
		t.Fatalf("Connections = %+v", got)
	}
	if got[0].UptimeMinutes != 15 || got[1].UptimeMinutes != 45 {
		t.Fatalf("uptimes = %v, %v", got[0].UptimeMinutes, got[1].UptimeMinutes)
	}
	if got[1].LastCommandID != id || got[0].LastCommandID != "" {
		t.Fatalf("last command ids = %q, %q", got[0].LastCommandID, got[1].LastCommandID)
	}
	if got[1].Name != "Bravo" {
		t.Fatalf("name = %q", got[1].Name)
	}
}
