// Package gateway keeps the live websocket sessions of ground stations and
// delivers compiled scripts to them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/signalsfoundry/flightplan-orchestrator/timectrl"
)

const (
	// DefaultWriteTimeout bounds each frame write.
	DefaultWriteTimeout = 10 * time.Second
	// DefaultHandshakeTimeout bounds the wait for a station's hello frame.
	DefaultHandshakeTimeout = 10 * time.Second
)

// ErrNotConnected is matched by every NotConnectedError.
var ErrNotConnected = errors.New("ground station not connected")

// NotConnectedError reports a send to a station without an open session.
type NotConnectedError struct {
	GroundStationID string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("Ground station %s is not connected.", e.GroundStationID)
}

// Is reports ErrNotConnected equivalence.
func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// Conn is the write side of a websocket. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is one registered station session. Sends through the same
// connection are serialized by its gate.
type Connection struct {
	GroundStationID string
	Name            string
	ConnectedAt     time.Time

	conn   Conn
	gate   chan struct{}
	closed atomic.Bool

	mu            sync.Mutex
	lastCommandID string
}

func newConnection(stationID, name string, conn Conn, at time.Time) *Connection {
	return &Connection{
		GroundStationID: stationID,
		Name:            name,
		ConnectedAt:     at,
		conn:            conn,
		gate:            make(chan struct{}, 1),
	}
}

// Open reports whether the socket has not been closed.
func (c *Connection) Open() bool { return !c.closed.Load() }

// LastCommandID returns the request id of the last transmission.
func (c *Connection) LastCommandID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCommandID
}

func (c *Connection) setLastCommandID(id string) {
	c.mu.Lock()
	c.lastCommandID = id
	c.mu.Unlock()
}

// close marks the connection closed and closes the socket once.
func (c *Connection) close() {
	if c.closed.CompareAndSwap(false, true) {
		_ = c.conn.Close()
	}
}

func (c *Connection) acquire(ctx context.Context) error {
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) release() { <-c.gate }

// Status is a snapshot of one connection.
type Status struct {
	GroundStationID string    `json:"groundStationId"`
	Name            string    `json:"name"`
	ConnectedAt     time.Time `json:"connectedAt"`
	UptimeMinutes   float64   `json:"uptimeMinutes"`
	LastCommandID   string    `json:"lastCommandId,omitempty"`
}

// Registry maps ground-station ids to their current connection.
type Registry struct {
	conns        sync.Map // station id -> *Connection
	clock        timectrl.Clock
	log          logging.Logger
	metrics      *observability.OrchestratorCollector
	writeTimeout time.Duration
	helloTimeout time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for connection times.
func WithClock(c timectrl.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics records connection counts and send outcomes.
func WithMetrics(c *observability.OrchestratorCollector) Option {
	return func(r *Registry) { r.metrics = c }
}

// WithWriteTimeout sets the per-frame write deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// WithHandshakeTimeout sets how long Serve waits for the hello frame.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.helloTimeout = d
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clock:        timectrl.System(),
		log:          logging.Noop(),
		writeTimeout: DefaultWriteTimeout,
		helloTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register makes conn the station's connection. A previous connection for
// the same station is closed.
func (r *Registry) Register(ctx context.Context, stationID, name string, conn Conn) *Connection {
	c := newConnection(stationID, name, conn, r.clock.Now())
	if prev, loaded := r.conns.Swap(stationID, c); loaded {
		prev.(*Connection).close()
		r.log.Info(ctx, "replaced ground station connection", logging.GroundStationID(stationID))
	}
	r.log.Info(ctx, "registered ground station connection",
		logging.GroundStationID(stationID),
		logging.String("name", name),
	)
	r.metrics.SetConnectedStations(r.count())
	return c
}

// Unregister removes c if it is still the station's current connection and
// closes it. It reports whether c was removed.
func (r *Registry) Unregister(ctx context.Context, c *Connection) bool {
	c.close()
	removed := r.conns.CompareAndDelete(c.GroundStationID, c)
	if removed {
		r.log.Info(ctx, "unregistered ground station connection", logging.GroundStationID(c.GroundStationID))
		r.metrics.SetConnectedStations(r.count())
	}
	return removed
}

// IsConnected reports whether the station has an open connection.
func (r *Registry) IsConnected(stationID string) bool {
	c, ok := r.lookup(stationID)
	return ok && c.Open()
}

// Connections returns a snapshot of every registered connection ordered by
// station id.
func (r *Registry) Connections() []Status {
	now := r.clock.Now()
	out := make([]Status, 0)
	r.conns.Range(func(_, v any) bool {
		c := v.(*Connection)
		out = append(out, Status{
			GroundStationID: c.GroundStationID,
			Name:            c.Name,
			ConnectedAt:     c.ConnectedAt,
			UptimeMinutes:   now.Sub(c.ConnectedAt).Minutes(),
			LastCommandID:   c.LastCommandID(),
		})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].GroundStationID < out[j].GroundStationID })
	return out
}

func (r *Registry) lookup(stationID string) (*Connection, bool) {
	v, ok := r.conns.Load(stationID)
	if !ok {
		return nil, false
	}
	return v.(*Connection), true
}

func (r *Registry) count() int {
	n := 0
	r.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
