package config

import (
	"fmt"
	"strings"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/observability"
	"github.com/spf13/pflag"
)

// LogOptions configures the structured logger.
type LogOptions struct {
	Level     string `json:"level" mapstructure:"level"`
	Format    string `json:"format" mapstructure:"format"`
	AddSource bool   `json:"add-source" mapstructure:"add-source"`
}

// NewLogOptions returns LogOptions for JSON output at info level.
func NewLogOptions() *LogOptions {
	return &LogOptions{Level: "info", Format: "json", AddSource: true}
}

// Validate checks the level and format names.
func (o *LogOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errs := []error{}
	switch strings.ToLower(o.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", o.Level))
	}
	switch strings.ToLower(o.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", o.Format))
	}
	return errs
}

// AddFlags registers the logging flags on fs.
func (o *LogOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Level, "log.level", o.Level, "Minimum log level (debug, info, warn, error).")
	fs.StringVar(&o.Format, "log.format", o.Format, "Log output format (json or text).")
	fs.BoolVar(&o.AddSource, "log.add-source", o.AddSource, "Include source locations in log records.")
}

// Logger builds a logger from the options.
func (o *LogOptions) Logger() logging.Logger {
	return logging.New(logging.Config{Level: o.Level, Format: o.Format, AddSource: o.AddSource})
}

// TracingOptions configures OpenTelemetry tracing.
type TracingOptions struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service-name" mapstructure:"service-name"`
	Exporter    string  `json:"exporter" mapstructure:"exporter"`
	Endpoint    string  `json:"endpoint" mapstructure:"endpoint"`
	SampleRatio float64 `json:"sample-ratio" mapstructure:"sample-ratio"`
}

// NewTracingOptions returns TracingOptions with tracing disabled.
func NewTracingOptions() *TracingOptions {
	return &TracingOptions{
		ServiceName: "satops-server",
		Exporter:    "stdout",
		Endpoint:    "localhost:4317",
		SampleRatio: 1,
	}
}

// Validate checks the exporter and sample ratio when tracing is enabled.
func (o *TracingOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	errs := []error{}
	switch o.Exporter {
	case "stdout":
	case "otlp":
		if o.Endpoint == "" {
			errs = append(errs, fmt.Errorf("tracing.endpoint is required for the otlp exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter %q is not stdout or otlp", o.Exporter))
	}
	if o.SampleRatio < 0 || o.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample-ratio %.2f out of range [0, 1]", o.SampleRatio))
	}
	return errs
}

// AddFlags registers the tracing flags on fs.
func (o *TracingOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "tracing.enabled", o.Enabled, "Export OpenTelemetry traces.")
	fs.StringVar(&o.ServiceName, "tracing.service-name", o.ServiceName, "Service name reported in traces.")
	fs.StringVar(&o.Exporter, "tracing.exporter", o.Exporter, "Trace exporter (stdout or otlp).")
	fs.StringVar(&o.Endpoint, "tracing.endpoint", o.Endpoint, "OTLP gRPC collector endpoint.")
	fs.Float64Var(&o.SampleRatio, "tracing.sample-ratio", o.SampleRatio, "Fraction of traces sampled.")
}

// Config converts the options to a tracing configuration.
func (o *TracingOptions) Config() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     o.Enabled,
		ServiceName: o.ServiceName,
		Exporter:    o.Exporter,
		Endpoint:    o.Endpoint,
		SampleRatio: o.SampleRatio,
	}
}
