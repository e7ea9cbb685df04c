package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf}).With(String("component", "scheduler"))

	log.Info(context.Background(), "plan transmitted",
		String("flight_plan_id", "fp-1"),
		Int("lines", 3),
		Err(errors.New("boom")),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if entry["msg"] != "plan transmitted" || entry["component"] != "scheduler" || entry["flight_plan_id"] != "fp-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["error"] != "boom" {
		t.Fatalf("error field = %v, want boom", entry["error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	if id == "" {
		t.Fatalf("expected generated request id")
	}
	again, same := EnsureRequestID(ctx)
	if same != id || RequestIDFromContext(again) != id {
		t.Fatalf("request id not preserved: %q vs %q", same, id)
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty id on bare context")
	}
}

func TestFromContextFallback(t *testing.T) {
	if FromContext(context.Background(), nil) == nil {
		t.Fatalf("expected noop fallback")
	}
	l := Noop()
	ctx := ContextWithLogger(context.Background(), l)
	if FromContext(ctx, nil) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestRecordsCarryComponentAndUTCTime(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Component: "gateway", Output: &buf})
	log.Info(context.Background(), "ground station connected",
		GroundStationID("gs-1"),
		Time("connected_at", time.Date(2021, 10, 3, 8, 30, 0, 0, time.FixedZone("CEST", 2*3600))),
	)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSON is the default format, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "gateway" || entry["ground_station_id"] != "gs-1" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["connected_at"] != "2021-10-03T06:30:00Z" {
		t.Fatalf("connected_at = %v, want UTC", entry["connected_at"])
	}
	ts, _ := entry["time"].(string)
	if !strings.HasSuffix(ts, "Z") {
		t.Fatalf("record time %q is not UTC", ts)
	}
}

func TestTextFormatAndNilError(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: "TEXT", Output: &buf}).Warn(context.Background(), "retrying", FlightPlanID("fp-9"), Err(nil))
	out := buf.String()
	if !strings.Contains(out, "flight_plan_id=fp-9") || !strings.Contains(out, `error=""`) {
		t.Fatalf("unexpected text output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]string{"DEBUG": "DEBUG", "warning": "WARN", "error": "ERROR", "": "INFO", "chatty": "INFO"} {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewFromEnvPrefersPrefixedVariables(t *testing.T) {
	t.Setenv("SATOPS_LOG_LEVEL", "error")
	t.Setenv("LOG_LEVEL", "debug")
	if got := envOr("SATOPS_LOG_LEVEL", "LOG_LEVEL"); got != "error" {
		t.Fatalf("envOr = %q", got)
	}
	os.Unsetenv("SATOPS_LOG_LEVEL")
	if got := envOr("SATOPS_LOG_LEVEL", "LOG_LEVEL"); got != "debug" {
		t.Fatalf("fallback = %q", got)
	}
	if NewFromEnv() == nil {
		t.Fatalf("NewFromEnv returned nil")
	}
}

func TestWithRequestLoggerAnnotates(t *testing.T) {
	var buf bytes.Buffer
	ctx, log := WithRequestLogger(ContextWithRequestID(context.Background(), "req-7"), New(Config{Output: &buf}))
	log.Info(ctx, "handled")
	if RequestIDFromContext(ctx) != "req-7" || !strings.Contains(buf.String(), `"request_id":"req-7"`) {
		t.Fatalf("request id not propagated: %q", buf.String())
	}
}
