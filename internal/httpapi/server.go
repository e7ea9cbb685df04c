// Package httpapi exposes the ground-station websocket endpoint and the
// operational HTTP surface of the orchestrator.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/gateway"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
)

// Routes.
const (
	StationPath     = "/ws/groundstation"
	ConnectionsPath = "/api/v1/groundstations/connections"
	HealthPath      = "/healthz"
	MetricsPath     = "/metrics"
)

// Gateway is the station session surface. *gateway.Registry satisfies it.
type Gateway interface {
	Serve(ctx context.Context, ws gateway.Socket, auth gateway.Authenticator) error
	Connections() []gateway.Status
}

// API serves the HTTP routes.
type API struct {
	gateway  Gateway
	auth     gateway.Authenticator
	log      logging.Logger
	metrics  *observability.OrchestratorCollector
	upgrader websocket.Upgrader
	sessions context.Context
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the API logger.
func WithLogger(l logging.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMetrics instruments routes and serves /metrics.
func WithMetrics(c *observability.OrchestratorCollector) Option {
	return func(a *API) { a.metrics = c }
}

// WithSessionContext bounds every station session by ctx instead of only
// the lifetime of its request.
func WithSessionContext(ctx context.Context) Option {
	return func(a *API) {
		if ctx != nil {
			a.sessions = ctx
		}
	}
}

// New returns an API over gw.
func New(gw Gateway, auth gateway.Authenticator, opts ...Option) *API {
	a := &API{
		gateway: gw,
		auth:    auth,
		log:     logging.Noop(),
		upgrader: websocket.Upgrader{
			// Origins are not checked; the hello token authenticates stations.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns the route table.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.requestID)
	r.Handle(StationPath, a.metrics.InstrumentHandler("ws_groundstation", http.HandlerFunc(a.handleStation))).Methods(http.MethodGet)
	r.Handle(ConnectionsPath, a.metrics.InstrumentHandler("connections", http.HandlerFunc(a.handleConnections))).Methods(http.MethodGet)
	r.HandleFunc(HealthPath, a.handleHealth).Methods(http.MethodGet)
	r.Handle(MetricsPath, a.metrics.Handler()).Methods(http.MethodGet)
	return r
}

func (a *API) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ctx, log := logging.WithRequestLogger(ctx, a.log)
		ctx = logging.ContextWithLogger(ctx, log)
		w.Header().Set("X-Request-ID", logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) handleStation(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), a.log)
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	ctx := r.Context()
	if a.sessions != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(a.sessions, cancel)
		defer stop()
	}
	if err := a.gateway.Serve(ctx, ws, a.auth); err != nil {
		log.Warn(ctx, "ground station session ended with error", logging.Err(err))
	}
}

func (a *API) handleConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.gateway.Connections())
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
