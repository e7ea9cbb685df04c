package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/internal/archive"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/notify"
	"github.com/spf13/pflag"
)

// MQTTOptions configures the flight plan status publisher.
type MQTTOptions struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`

	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
	QoS       int    `json:"qos" mapstructure:"qos"`
	Retain    bool   `json:"retain" mapstructure:"retain"`
}

// NewMQTTOptions returns MQTTOptions with the publisher disabled.
func NewMQTTOptions() *MQTTOptions {
	return &MQTTOptions{
		Broker:         "mqtt://localhost:1883",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		TopicRoot:      notify.DefaultTopicPrefix,
		QoS:            1,
	}
}

// Validate checks the broker URL and QoS when publishing is enabled.
func (o *MQTTOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	errs := []error{}
	if u, err := url.Parse(o.Broker); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("mqtt.broker %q is not a valid URL", o.Broker))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos %d out of range [0, 2]", o.QoS))
	}
	return errs
}

// AddFlags registers the MQTT flags on fs.
func (o *MQTTOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "mqtt.enabled", o.Enabled, "Publish flight plan status changes to MQTT.")
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit client id (optional, generated when empty).")
	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT keep alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing the MQTT connection.")
	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic prefix for status events.")
	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS level for status events.")
	fs.BoolVar(&o.Retain, "mqtt.retain", o.Retain, "Retain the last status event per flight plan.")
}

// Config converts the options to a publisher configuration.
func (o *MQTTOptions) Config() notify.Config {
	return notify.Config{
		BrokerURL:      o.Broker,
		ClientID:       o.ClientID,
		Username:       o.Username,
		Password:       o.Password,
		TopicPrefix:    o.TopicRoot,
		QoS:            byte(o.QoS),
		Retain:         o.Retain,
		KeepAlive:      uint16(o.KeepAlive.Seconds()),
		ConnectTimeout: o.ConnectTimeout,
	}
}

// S3Options configures the transmitted script archive.
type S3Options struct {
	Enabled         bool   `json:"enabled" mapstructure:"enabled"`
	Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `json:"access-key-id" mapstructure:"access-key-id"`
	SecretAccessKey string `json:"secret-access-key" mapstructure:"secret-access-key"`
	UseSSL          bool   `json:"use-ssl" mapstructure:"use-ssl"`
	BucketName      string `json:"bucket-name" mapstructure:"bucket-name"`
	Prefix          string `json:"prefix" mapstructure:"prefix"`
}

// NewS3Options returns S3Options with archiving disabled.
func NewS3Options() *S3Options {
	return &S3Options{
		Endpoint:   "localhost:9000",
		UseSSL:     false,
		BucketName: "flightplan-scripts",
		Prefix:     "transmissions",
	}
}

// Validate checks the endpoint and bucket when archiving is enabled.
func (o *S3Options) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}
	errs := []error{}
	if o.Endpoint == "" {
		errs = append(errs, errors.New("s3.endpoint is required when archiving is enabled"))
	}
	if o.BucketName == "" {
		errs = append(errs, errors.New("s3.bucket-name is required when archiving is enabled"))
	}
	return errs
}

// AddFlags registers the S3 flags on fs.
func (o *S3Options) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "s3.enabled", o.Enabled, "Archive transmitted scripts to S3.")
	fs.StringVar(&o.Endpoint, "s3.endpoint", o.Endpoint, "S3 service endpoint (e.g. s3.amazonaws.com or minio.local:9000).")
	fs.StringVar(&o.AccessKeyID, "s3.access-key-id", o.AccessKeyID, "S3 access key ID.")
	fs.StringVar(&o.SecretAccessKey, "s3.secret-access-key", o.SecretAccessKey, "S3 secret access key.")
	fs.BoolVar(&o.UseSSL, "s3.use-ssl", o.UseSSL, "Enable SSL for the S3 connection.")
	fs.StringVar(&o.BucketName, "s3.bucket-name", o.BucketName, "Bucket receiving transmitted scripts.")
	fs.StringVar(&o.Prefix, "s3.prefix", o.Prefix, "Object key prefix for transmitted scripts.")
}

// Config converts the options to an archive configuration.
func (o *S3Options) Config() archive.Config {
	return archive.Config{
		Endpoint:        o.Endpoint,
		AccessKeyID:     o.AccessKeyID,
		SecretAccessKey: o.SecretAccessKey,
		UseSSL:          o.UseSSL,
		Bucket:          o.BucketName,
		Prefix:          o.Prefix,
	}
}
