// Package mqtt carries OCPP payloads over an MQTT broker with the Eclipse Paho
// client.
package mqtt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"charge_point/metrics"
	"charge_point/transport"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	Broker         string // host:port or a full URL
	ClientID       string
	Username       string
	Password       string
	SubscribeQoS   transport.QoS
	ConnectTimeout time.Duration
	InboxSize      int
}

type Transport struct {
	client paho.Client
	config Config
	inbox  *transport.Inbox
	logger *log.Entry
}

func New(config Config) *Transport {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	t := &Transport{
		config: config,
		inbox:  transport.NewInbox(config.InboxSize),
		logger: log.WithFields(log.Fields{"task": "mqtt", "broker": config.Broker}),
	}
	opts := paho.NewClientOptions().
		AddBroker(brokerURL(config.Broker)).
		SetClientID(config.ClientID).
		SetConnectTimeout(config.ConnectTimeout).
		SetAutoReconnect(false).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			metrics.CountTransportError("connection")
			t.logger.Warnf("connection lost: %v", err)
		})
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	t.client = paho.NewClient(opts)
	return t
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// wait blocks until the token completes or ctx ends.
func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	if err := wait(ctx, t.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", t.config.Broker, err)
	}
	t.logger.Info("connected to broker")
	return nil
}

func (t *Transport) IsConnected() bool {
	return t.client.IsConnectionOpen()
}

func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, qos transport.QoS, retain bool) error {
	if !t.IsConnected() {
		return transport.ErrNotConnected
	}
	if err := wait(ctx, t.client.Publish(topic, byte(qos), retain, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	t.logger.WithField("topic", topic).Debugf("published %d bytes", len(payload))
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, topic string) error {
	if !t.IsConnected() {
		return transport.ErrNotConnected
	}
	token := t.client.Subscribe(topic, byte(t.config.SubscribeQoS), func(_ paho.Client, m paho.Message) {
		if !t.inbox.Put(m.Topic(), m.Payload()) {
			metrics.CountDropped("mqtt")
			t.logger.Warnf("inbox full, dropping message on %s", m.Topic())
		}
	})
	if err := wait(ctx, token); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

func (t *Transport) Receive(ctx context.Context) (transport.Message, error) {
	return t.inbox.Receive(ctx)
}

func (t *Transport) Close() {
	if t.client.IsConnected() {
		t.client.Disconnect(250)
		t.logger.Info("disconnected")
	}
}
