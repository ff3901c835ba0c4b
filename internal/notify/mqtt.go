package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/MeKo-Tech/plategate/internal/plate"
)

// MQTTConfig configures the plate event publisher.
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Broker         string        `mapstructure:"broker" yaml:"broker" json:"broker"`
	ClientID       string        `mapstructure:"client_id" yaml:"client_id" json:"client_id"`
	Username       string        `mapstructure:"username" yaml:"username" json:"username"`
	Password       string        `mapstructure:"password" yaml:"password" json:"-"`
	TopicPrefix    string        `mapstructure:"topic_prefix" yaml:"topic_prefix" json:"topic_prefix"`
	QoS            byte          `mapstructure:"qos" yaml:"qos" json:"qos"`
	Retain         bool          `mapstructure:"retain" yaml:"retain" json:"retain"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
}

// DefaultMQTTConfig returns a disabled publisher configuration.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:         "tcp://localhost:1883",
		ClientID:       "plategate",
		TopicPrefix:    "plategate",
		QoS:            1,
		ConnectTimeout: 10 * time.Second,
	}
}

// Validate checks an enabled configuration.
func (c MQTTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return errors.New("mqtt broker cannot be empty")
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// publisher is the subset of the paho client the publisher uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes plate events as JSON to
// {prefix}/{parking}/{camera}/plates.
type MQTTPublisher struct {
	client  publisher
	prefix  string
	qos     byte
	retain  bool
	timeout time.Duration
}

// NewMQTTPublisher connects to the broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultMQTTConfig().ConnectTimeout
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			slog.Info("mqtt connected", "broker", cfg.Broker)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}
	return newMQTTPublisher(client, cfg), nil
}

func newMQTTPublisher(client publisher, cfg MQTTConfig) *MQTTPublisher {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultMQTTConfig().ConnectTimeout
	}
	return &MQTTPublisher{
		client:  client,
		prefix:  strings.TrimRight(cfg.TopicPrefix, "/"),
		qos:     cfg.QoS,
		retain:  cfg.Retain,
		timeout: timeout,
	}
}

// Topic returns the topic for a parking/camera pair.
func (p *MQTTPublisher) Topic(parkingID, cameraID int64) string {
	return fmt.Sprintf("%s/%d/%d/plates", p.prefix, parkingID, cameraID)
}

// Publish sends ev and waits for the broker acknowledgement or ctx.
func (p *MQTTPublisher) Publish(ctx context.Context, ev plate.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode plate event: %w", err)
	}
	topic := p.Topic(ev.ParkingID, ev.CameraID)
	tok := p.client.Publish(topic, p.qos, p.retain, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
