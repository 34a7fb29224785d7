// Package publish sends the newest record to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/logger"
	"codeberg.org/mutker/housemon/internal/record"
)

const (
	DefaultServer  = "tcp://localhost:1883"
	DefaultTopic   = "housemon"
	DefaultTimeout = 10 * time.Second

	clientIDPrefix  = "housemon-"
	stateTopicLeaf  = "state"
	disconnectQuiet = 250 // milliseconds
)

type Config struct {
	Enabled  bool
	Server   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
	Retain   bool
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Server:  DefaultServer,
		Topic:   DefaultTopic,
		Timeout: DefaultTimeout,
	}
}

// NewClientID returns a random client id.
func NewClientID() string {
	return clientIDPrefix + uuid.NewString()
}

// StateTopic is the topic records are published to.
func StateTopic(base string) string {
	return strings.TrimSuffix(base, "/") + "/" + stateTopicLeaf
}

// Publisher is a consumer.Handler that publishes the newest record once.
type Publisher struct {
	client mqtt.Client
	cfg    Config
	topic  string
	log    logger.Logger
	mu     sync.Mutex
	last   time.Time
	sent   int
}

// New connects to the broker named by cfg.Server.
func New(cfg Config) (*Publisher, error) {
	errFactory := errors.New()

	if cfg.Server == "" {
		return nil, errFactory.WithMessage(errors.ErrInvalidConfig, "mqtt server is required")
	}
	if cfg.QoS > 2 {
		return nil, errFactory.WithMessage(errors.ErrInvalidConfig, fmt.Sprintf("mqtt qos %d out of range", cfg.QoS))
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = NewClientID()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	log := logger.For("publish")

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Server).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, errFactory.Wrap(errors.ErrPublishConnect, fmt.Errorf("connect to %s: timed out", cfg.Server))
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(errors.ErrPublishConnect, err)
	}

	log.Info().
		Str("server", cfg.Server).
		Str("client_id", cfg.ClientID).
		Str("topic", StateTopic(cfg.Topic)).
		Msg("Connected to MQTT broker")

	return &Publisher{
		client: client,
		cfg:    cfg,
		topic:  StateTopic(cfg.Topic),
		log:    log,
	}, nil
}

func (*Publisher) Name() string {
	return "publish"
}

// Handle publishes the newest record unless it was already sent.
func (p *Publisher) Handle(ctx context.Context, records []record.AveragedRecord) error {
	if len(records) == 0 {
		return nil
	}
	latest := records[len(records)-1]

	p.mu.Lock()
	defer p.mu.Unlock()

	if !latest.Timestamp.After(p.last) {
		return nil
	}

	if err := p.publish(ctx, latest); err != nil {
		return err
	}

	p.last = latest.Timestamp
	p.sent++
	return nil
}

func (p *Publisher) publish(ctx context.Context, rec record.AveragedRecord) error {
	errFactory := errors.New()

	payload, err := json.Marshal(rec)
	if err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}

	token := p.client.Publish(p.topic, p.cfg.QoS, p.cfg.Retain, payload)

	timer := time.NewTimer(p.cfg.Timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return errFactory.Wrap(errors.ErrPublish, ctx.Err())
	case <-timer.C:
		return errFactory.Wrap(errors.ErrPublish, fmt.Errorf("publish to %s: timed out", p.topic))
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(errors.ErrPublish, err)
	}

	p.log.Debug().
		Str("topic", p.topic).
		Time("timestamp", rec.Timestamp).
		Msg("Record published")

	return nil
}

// Sent returns the number of records published.
func (p *Publisher) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func (p *Publisher) Close() error {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiet)
	}
	return nil
}
