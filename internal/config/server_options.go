package config

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/pflag"
)

// HTTPOptions configures the station gateway and status HTTP listener.
type HTTPOptions struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `json:"read-timeout" mapstructure:"read-timeout"`
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewHTTPOptions returns HTTPOptions with default parameters.
func NewHTTPOptions() *HTTPOptions {
	return &HTTPOptions{
		Addr:            "0.0.0.0:8080",
		ReadTimeout:     15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks the listener address and timeouts.
func (o *HTTPOptions) Validate() []error {
	if o == nil {
		return nil
	}
	errs := []error{}
	if err := ValidateAddress(o.Addr); err != nil {
		errs = append(errs, fmt.Errorf("http.addr: %w", err))
	}
	if o.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("http.read-timeout must be positive"))
	}
	return errs
}

// AddFlags registers the HTTP flags on fs.
func (o *HTTPOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Bind address of the station gateway and status HTTP server.")
	fs.DurationVar(&o.ReadTimeout, "http.read-timeout", o.ReadTimeout, "Timeout for reading request headers.")
	fs.DurationVar(&o.ShutdownTimeout, "http.shutdown-timeout", o.ShutdownTimeout, "Grace period for in-flight requests on shutdown.")
}

// GRPCOptions configures the operations and health gRPC listener.
type GRPCOptions struct {
	Addr    string `json:"addr" mapstructure:"addr"`
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
}

// NewGRPCOptions returns GRPCOptions with default parameters.
func NewGRPCOptions() *GRPCOptions {
	return &GRPCOptions{Addr: "0.0.0.0:50051", Enabled: true}
}

// Validate checks the listener address when the server is enabled.
func (o *GRPCOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	if err := ValidateAddress(o.Addr); err != nil {
		return []error{fmt.Errorf("grpc.addr: %w", err)}
	}
	return nil
}

// AddFlags registers the gRPC flags on fs.
func (o *GRPCOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "grpc.addr", o.Addr, "Bind address of the gRPC operations and health server.")
	fs.BoolVar(&o.Enabled, "grpc.enabled", o.Enabled, "Serve the gRPC operations and health services.")
}

// ValidateAddress checks that addr is a host:port pair with a numeric port.
func ValidateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%q is not a valid address: %w", addr, err)
	}
	if port == "" {
		return fmt.Errorf("%q has no port", addr)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return fmt.Errorf("%q has an invalid port: %w", addr, err)
	}
	return nil
}
