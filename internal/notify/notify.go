// Package notify announces completed simulation years to outside observers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"landsim/internal/config"
)

// YearComplete is the message published after each simulated year.
type YearComplete struct {
	RunID       string           `json:"run_id"`
	Year        int              `json:"year"`
	Households  int              `json:"households"`
	Persons     int              `json:"persons"`
	Dwellings   int              `json:"dwellings"`
	Jobs        int              `json:"jobs"`
	Fingerprint string           `json:"fingerprint,omitempty"`
	Issues      map[string]int64 `json:"issues,omitempty"`
	Final       bool             `json:"final"`
	At          time.Time        `json:"at"`
}

// Notifier publishes year completions.
type Notifier interface {
	YearComplete(ctx context.Context, msg YearComplete) error
	Close() error
}

// Nop discards every message.
type Nop struct{}

func (Nop) YearComplete(context.Context, YearComplete) error { return nil }
func (Nop) Close() error                                     { return nil }

// publisher is the part of an MQTT client the notifier uses.
type publisher interface {
	Publish(topic string, payload []byte) error
	Disconnect()
}

// MQTT publishes JSON messages to a broker topic at QoS 1.
type MQTT struct {
	pub   publisher
	topic string
}

// NewMQTT connects to the broker.
func NewMQTT(broker, clientID, topic string) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker: %w", token.Error())
	}
	return &MQTT{pub: pahoPublisher{client: client}, topic: topic}, nil
}

func (m *MQTT) YearComplete(_ context.Context, msg YearComplete) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode year message: %w", err)
	}
	return m.pub.Publish(m.topic, payload)
}

func (m *MQTT) Close() error {
	m.pub.Disconnect()
	return nil
}

type pahoPublisher struct {
	client mqtt.Client
}

func (p pahoPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 1, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish to topic %s: %w", topic, token.Error())
	}
	return nil
}

func (p pahoPublisher) Disconnect() { p.client.Disconnect(250) }

// Open builds the notifier selected by cfg.
func Open(cfg config.NotifyConfig) (Notifier, error) {
	switch cfg.Kind {
	case "", "none":
		return Nop{}, nil
	case "mqtt":
		return NewMQTT(cfg.Broker, cfg.ClientID, cfg.Topic)
	default:
		return nil, fmt.Errorf("unknown notifier kind %q", cfg.Kind)
	}
}
