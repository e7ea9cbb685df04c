// Package notify publishes flight plan status changes to an MQTT broker.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/flightplan"
	"github.com/signalsfoundry/flightplan-orchestrator/internal/logging"
)

// DefaultTopicPrefix roots every status topic.
const DefaultTopicPrefix = "satops"

// Config describes the broker connection.
type Config struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	KeepAlive      uint16
	ConnectTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultTopicPrefix
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = 60
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// Validate checks the broker settings.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return errors.New("mqtt broker url is required")
	}
	if _, err := url.Parse(c.BrokerURL); err != nil {
		return fmt.Errorf("invalid mqtt broker url: %w", err)
	}
	if c.ClientID == "" {
		return errors.New("mqtt client id is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos %d", c.QoS)
	}
	return nil
}

// PublishClient is the publish side of an MQTT connection.
// *autopaho.ConnectionManager satisfies it.
type PublishClient interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

// Publisher sends StatusEvents as JSON to
// <prefix>/flightplans/<id>/status.
type Publisher struct {
	client PublishClient
	cfg    Config
	log    logging.Logger
}

var _ flightplan.StatusPublisher = (*Publisher)(nil)

// NewPublisher wraps an existing MQTT client.
func NewPublisher(client PublishClient, cfg Config, log logging.Logger) *Publisher {
	cfg.setDefaults()
	if log == nil {
		log = logging.Noop()
	}
	return &Publisher{client: client, cfg: cfg, log: log}
}

// Topic returns the status topic of a flight plan.
func (p *Publisher) Topic(flightPlanID string) string {
	return strings.TrimSuffix(p.cfg.TopicPrefix, "/") + "/flightplans/" + flightPlanID + "/status"
}

// PublishStatus implements flightplan.StatusPublisher.
func (p *Publisher) PublishStatus(ctx context.Context, ev flightplan.StatusEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	topic := p.Topic(ev.FlightPlanID)
	if _, err := p.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     p.cfg.QoS,
		Retain:  p.cfg.Retain,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.log.Debug(ctx, "published flight plan status",
		logging.String("topic", topic),
		logging.String("status", string(ev.To)),
	)
	return nil
}

// Connect starts an autopaho connection manager for cfg. The manager keeps
// reconnecting in the background until ctx ends or Disconnect is called.
func Connect(ctx context.Context, cfg Config, log logging.Logger) (*autopaho.ConnectionManager, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Noop()
	}
	brokerURL, _ := url.Parse(cfg.BrokerURL)

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     cfg.KeepAlive,
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                cfg.ConnectTimeout,
		ConnectUsername:               cfg.Username,
		ConnectPassword:               []byte(cfg.Password),
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			log.Info(context.Background(), "mqtt connection established", logging.String("broker", cfg.BrokerURL))
		},
		OnConnectError: func(err error) {
			log.Warn(context.Background(), "mqtt connection failed, retrying", logging.Err(err))
		},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
			OnClientError: func(err error) {
				log.Error(context.Background(), "mqtt client error", logging.Err(err))
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				reason := ""
				if d.Properties != nil {
					reason = d.Properties.ReasonString
				}
				log.Warn(context.Background(), "mqtt server requested disconnect", logging.String("reason", reason))
			},
		},
	}

	log.Info(ctx, "starting mqtt client", logging.String("broker", cfg.BrokerURL), logging.String("client_id", cfg.ClientID))
	return autopaho.NewConnection(ctx, pahoCfg)
}
