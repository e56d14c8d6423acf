// Package publish sends decoded snapshots to an MQTT broker.
package publish

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Options struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string
	QoS      byte
	Retain   bool
	// Timeout bounds connect and each publish. Zero means 5s.
	Timeout time.Duration
}

type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type Publisher struct {
	c       client
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
}

// Connect dials the broker and returns a Publisher for opts.Topic.
func Connect(opts Options) (*Publisher, error) {
	if strings.TrimSpace(opts.Broker) == "" {
		return nil, errors.New("mqtt broker is empty")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true)

	c := mqtt.NewClient(co)
	tok := c.Connect()
	if !tok.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout after %s", opts.Broker, timeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}
	return newPublisher(c, opts.Topic, opts.QoS, opts.Retain, timeout), nil
}

func newPublisher(c client, topic string, qos byte, retain bool, timeout time.Duration) *Publisher {
	return &Publisher{c: c, topic: topic, qos: qos, retain: retain, timeout: timeout}
}

func (p *Publisher) Topic() string { return p.topic }

// Publish sends payload and waits for the broker to acknowledge it
// according to the QoS level.
func (p *Publisher) Publish(payload []byte) error {
	tok := p.c.Publish(p.topic, p.qos, p.retain, payload)
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt publish %s: timeout after %s", p.topic, p.timeout)
	}
	return tok.Error()
}

func (p *Publisher) Close() {
	if p == nil || p.c == nil {
		return
	}
	p.c.Disconnect(250)
}
