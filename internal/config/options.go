// Package config defines the satops-server options, their command-line flags
// and the file and environment loading that fills them.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SATOPS_HTTP_ADDR.
const EnvPrefix = "SATOPS"

// StationSeed registers a ground station at startup. Secret is hashed
// before the station enters the catalog.
type StationSeed struct {
	ID        string  `json:"id" mapstructure:"id"`
	Name      string  `json:"name" mapstructure:"name"`
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
	AltitudeM float64 `json:"altitude-m" mapstructure:"altitude-m"`
	Secret    string  `json:"secret" mapstructure:"secret"`
	Inactive  bool    `json:"inactive" mapstructure:"inactive"`
}

// SatelliteSeed registers a satellite at startup. Element lines are
// optional; the refresher fills them from the NORAD id.
type SatelliteSeed struct {
	ID       string `json:"id" mapstructure:"id"`
	Name     string `json:"name" mapstructure:"name"`
	NoradID  int    `json:"norad-id" mapstructure:"norad-id"`
	TLELine1 string `json:"tle-line1" mapstructure:"tle-line1"`
	TLELine2 string `json:"tle-line2" mapstructure:"tle-line2"`
}

// Options is the full satops-server configuration.
type Options struct {
	HTTP      *HTTPOptions      `json:"http" mapstructure:"http"`
	GRPC      *GRPCOptions      `json:"grpc" mapstructure:"grpc"`
	Scheduler *SchedulerOptions `json:"scheduler" mapstructure:"scheduler"`
	Gateway   *GatewayOptions   `json:"gateway" mapstructure:"gateway"`
	Planning  *PlanningOptions  `json:"planning" mapstructure:"planning"`
	TLE       *TLEOptions       `json:"tle" mapstructure:"tle"`
	MQTT      *MQTTOptions      `json:"mqtt" mapstructure:"mqtt"`
	S3        *S3Options        `json:"s3" mapstructure:"s3"`
	Log       *LogOptions       `json:"log" mapstructure:"log"`
	Tracing   *TracingOptions   `json:"tracing" mapstructure:"tracing"`

	// Seeds are only read from the config file.
	Stations   []StationSeed   `json:"stations" mapstructure:"stations"`
	Satellites []SatelliteSeed `json:"satellites" mapstructure:"satellites"`
}

// New returns Options with every group at its defaults.
func New() *Options {
	return &Options{
		HTTP:      NewHTTPOptions(),
		GRPC:      NewGRPCOptions(),
		Scheduler: NewSchedulerOptions(),
		Gateway:   NewGatewayOptions(),
		Planning:  NewPlanningOptions(),
		TLE:       NewTLEOptions(),
		MQTT:      NewMQTTOptions(),
		S3:        NewS3Options(),
		Log:       NewLogOptions(),
		Tracing:   NewTracingOptions(),
	}
}

// AddFlags registers every group's flags on fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.HTTP.AddFlags(fs)
	o.GRPC.AddFlags(fs)
	o.Scheduler.AddFlags(fs)
	o.Gateway.AddFlags(fs)
	o.Planning.AddFlags(fs)
	o.TLE.AddFlags(fs)
	o.MQTT.AddFlags(fs)
	o.S3.AddFlags(fs)
	o.Log.AddFlags(fs)
	o.Tracing.AddFlags(fs)
}

// Validate aggregates the validation errors of every group and seed.
func (o *Options) Validate() error {
	errs := []error{}
	errs = append(errs, o.HTTP.Validate()...)
	errs = append(errs, o.GRPC.Validate()...)
	errs = append(errs, o.Scheduler.Validate()...)
	errs = append(errs, o.Gateway.Validate()...)
	errs = append(errs, o.Planning.Validate()...)
	errs = append(errs, o.TLE.Validate()...)
	errs = append(errs, o.MQTT.Validate()...)
	errs = append(errs, o.S3.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Tracing.Validate()...)
	errs = append(errs, validateSeeds(o.Stations, o.Satellites)...)
	return errors.Join(errs...)
}

func validateSeeds(stations []StationSeed, satellites []SatelliteSeed) []error {
	errs := []error{}
	seen := make(map[string]bool, len(stations))
	for i, s := range stations {
		switch {
		case s.ID == "":
			errs = append(errs, fmt.Errorf("stations[%d]: id is required", i))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("stations[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.Latitude < -90 || s.Latitude > 90 || s.Longitude < -180 || s.Longitude > 180 {
			errs = append(errs, fmt.Errorf("stations[%d]: location %.4f,%.4f out of range", i, s.Latitude, s.Longitude))
		}
		if s.Secret == "" && !s.Inactive {
			errs = append(errs, fmt.Errorf("stations[%d]: active station %q needs a secret", i, s.ID))
		}
	}
	seen = make(map[string]bool, len(satellites))
	for i, s := range satellites {
		switch {
		case s.ID == "":
			errs = append(errs, fmt.Errorf("satellites[%d]: id is required", i))
		case seen[s.ID]:
			errs = append(errs, fmt.Errorf("satellites[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if (s.TLELine1 == "") != (s.TLELine2 == "") {
			errs = append(errs, fmt.Errorf("satellites[%d]: both element lines are required", i))
		}
	}
	return errs
}

// Load fills the options from defaults, an optional config file, SATOPS_
// environment variables and the flags in fs, in increasing precedence, and
// validates the result.
func Load(fs *pflag.FlagSet, file string) (*Options, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	opts := New()
	if err := v.Unmarshal(opts); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return opts, nil
}
