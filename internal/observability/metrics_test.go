package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewOrchestratorCollector(reg)
	if err != nil {
		t.Fatalf("NewOrchestratorCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Check", "OK")); got != 1 {
		t.Fatalf("rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "rpc_request_duration_seconds", map[string]string{
		"service": "Health",
		"method":  "Check",
	}); count != 1 {
		t.Fatalf("rpc_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewOrchestratorCollector(reg)
	if err != nil {
		t.Fatalf("NewOrchestratorCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.InvalidArgument, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("Health", "Watch", "InvalidArgument")); got != 1 {
		t.Fatalf("rpc_requests_total error label = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesDomainMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewOrchestratorCollector(reg)
	if err != nil {
		t.Fatalf("NewOrchestratorCollector: %v", err)
	}
	collector.RecordTransition("TRANSMITTED")
	collector.SetConnectedStations(3)
	collector.RecordSend("ok")
	collector.ObserveSchedulerCycle(25 * time.Millisecond)
	collector.RecordPlanOutcome("failed")
	collector.ObserveOverpassComputation(time.Millisecond)
	collector.ObserveImagingSearch(time.Millisecond)
	collector.RecordTLERefresh("updated")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		`flightplan_transitions_total{to="TRANSMITTED"} 1`,
		"gateway_connected_stations 3",
		`gateway_sends_total{result="ok"} 1`,
		"scheduler_cycle_duration_seconds",
		`scheduler_plans_processed_total{outcome="failed"} 1`,
		"overpass_computation_duration_seconds",
		"imaging_search_duration_seconds",
		`tle_refreshes_total{result="updated"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestInstrumentHandlerCountsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewOrchestratorCollector(reg)
	if err != nil {
		t.Fatalf("NewOrchestratorCollector: %v", err)
	}
	h := collector.InstrumentHandler("/connections", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/connections", nil))

	if got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/connections", "418")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestCollectorReusesExistingRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewOrchestratorCollector(reg)
	if err != nil {
		t.Fatalf("NewOrchestratorCollector: %v", err)
	}
	second, err := NewOrchestratorCollector(reg)
	if err != nil {
		t.Fatalf("second NewOrchestratorCollector: %v", err)
	}
	first.RecordSend("ok")
	second.RecordSend("ok")
	if got := testutil.ToFloat64(first.GatewaySends.WithLabelValues("ok")); got != 2 {
		t.Fatalf("gateway_sends_total = %v, want 2", got)
	}
}

func TestCollectorRejectsConflictingRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "tle_refreshes_total", Help: "clash"}))
	if _, err := NewOrchestratorCollector(reg); err == nil {
		t.Fatalf("expected an error for a conflicting metric")
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *OrchestratorCollector
	c.RecordTransition("APPROVED")
	c.SetConnectedStations(1)
	c.RecordSend("ok")
	c.ObserveSchedulerCycle(time.Second)
	c.RecordPlanOutcome("transmitted")
	c.ObserveOverpassComputation(time.Second)
	c.ObserveImagingSearch(time.Second)
	c.RecordTLERefresh("failed")
	if c.Gatherer() != nil {
		t.Fatalf("nil collector should have no gatherer")
	}
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("nil collector handler status = %d", rr.Code)
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"":                             {"unknown", "unknown"},
		"/grpc.health.v1.Health/Check": {"Health", "Check"},
		"Health":                       {"unknown", "unknown"},
		"/grpc.health.v1.Health/":      {"Health", "unknown"},
	}
	for in, want := range cases {
		svc, method := SplitMethod(in)
		if svc != want[0] || method != want[1] {
			t.Fatalf("SplitMethod(%q) = %q, %q, want %q, %q", in, svc, method, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
