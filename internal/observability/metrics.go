package observability

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// OrchestratorCollector bundles the Prometheus metrics of the orchestrator
// and provides helpers to wire them into gRPC servers and HTTP handlers.
// Every method is safe to call on a nil collector.
type OrchestratorCollector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
	HTTPRequests *prometheus.CounterVec

	FlightPlanTransitions *prometheus.CounterVec
	ConnectedStations     prometheus.Gauge
	GatewaySends          *prometheus.CounterVec
	SchedulerCycle        prometheus.Histogram
	SchedulerPlans        *prometheus.CounterVec
	OverpassComputation   prometheus.Histogram
	ImagingSearch         prometheus.Histogram
	TLERefreshes          *prometheus.CounterVec
}

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	computeBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
	cycleBuckets   = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30}
)

// NewOrchestratorCollector registers the orchestrator metrics with reg, or
// with the default registry when reg is nil. Metrics that are already
// registered with a compatible type are reused.
func NewOrchestratorCollector(reg prometheus.Registerer) (*OrchestratorCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &OrchestratorCollector{gatherer: prometheus.DefaultGatherer}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}

	r := registrar{reg: reg}
	c.RPCRequests = register(&r, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rpc_requests_total",
		Help: "Operations RPCs handled, by service, method and status code.",
	}, []string{"service", "method", "code"}))
	c.RPCDurations = register(&r, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rpc_request_duration_seconds",
		Help:    "Operations RPC latency.",
		Buckets: latencyBuckets,
	}, []string{"service", "method"}))
	c.HTTPRequests = register(&r, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served, by route and status code.",
	}, []string{"route", "code"}))
	c.FlightPlanTransitions = register(&r, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightplan_transitions_total",
		Help: "Flight plan status transitions, by destination status.",
	}, []string{"to"}))
	c.ConnectedStations = register(&r, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_connected_stations",
		Help: "Ground stations currently holding a gateway connection.",
	}))
	c.GatewaySends = register(&r, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_sends_total",
		Help: "Script transmissions attempted through the gateway, by result.",
	}, []string{"result"}))
	c.SchedulerCycle = register(&r, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_cycle_duration_seconds",
		Help:    "Transmission scheduler cycle duration.",
		Buckets: cycleBuckets,
	}))
	c.SchedulerPlans = register(&r, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_plans_processed_total",
		Help: "Flight plans handled by the scheduler, by outcome.",
	}, []string{"outcome"}))
	c.OverpassComputation = register(&r, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "overpass_computation_duration_seconds",
		Help:    "Overpass prediction duration.",
		Buckets: computeBuckets,
	}))
	c.ImagingSearch = register(&r, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "imaging_search_duration_seconds",
		Help:    "Imaging opportunity search duration.",
		Buckets: computeBuckets,
	}))
	c.TLERefreshes = register(&r, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tle_refreshes_total",
		Help: "Orbital element refresh attempts, by result.",
	}, []string{"result"}))

	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *OrchestratorCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *OrchestratorCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// InstrumentHandler counts requests served by next under the given route
// label.
func (c *OrchestratorCollector) InstrumentHandler(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if c == nil || c.HTTPRequests == nil {
			return
		}
		c.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// Handler exposes a ready-to-use /metrics handler.
func (c *OrchestratorCollector) Handler() http.Handler {
	var gatherer prometheus.Gatherer
	if c != nil {
		gatherer = c.gatherer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// statusRecorder captures the response code. It forwards Hijack so
// websocket upgrades keep working behind the instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method"). Parts
// that cannot be parsed come back as "unknown".
func SplitMethod(fullMethod string) (service, method string) {
	service, method = "unknown", "unknown"
	path := strings.TrimPrefix(fullMethod, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return service, method
	}
	if m := path[i+1:]; m != "" {
		method = m
	}
	svc := path[:i]
	if j := strings.LastIndex(svc, "/"); j >= 0 {
		svc = svc[j+1:]
	}
	if j := strings.LastIndex(svc, "."); j >= 0 {
		svc = svc[j+1:]
	}
	if svc != "" {
		service = svc
	}
	return service, method
}

// registrar remembers the first registration failure so construction can
// register every metric before reporting it.
type registrar struct {
	reg prometheus.Registerer
	err error
}

func register[C prometheus.Collector](r *registrar, col C) C {
	if r.err != nil {
		return col
	}
	err := r.reg.Register(col)
	if err == nil {
		return col
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
		err = fmt.Errorf("metric %T already registered with another type", col)
	}
	r.err = err
	return col
}
