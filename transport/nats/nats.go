// Package nats carries OCPP payloads over NATS. Topics are mapped to subjects
// with transport.Subject.
package nats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"charge_point/metrics"
	"charge_point/transport"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	URL       string
	Name      string
	InboxSize int
}

type Transport struct {
	config     Config
	mu         sync.Mutex
	connection *nats.Conn
	inbox      *transport.Inbox
	retainOnce sync.Once
	logger     *log.Entry
}

func New(config Config) *Transport {
	if config.URL == "" {
		config.URL = nats.DefaultURL
	}
	return &Transport{
		config: config,
		inbox:  transport.NewInbox(config.InboxSize),
		logger: log.WithFields(log.Fields{"task": "nats", "url": config.URL}),
	}
}

func (t *Transport) conn() *nats.Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connection
}

func (t *Transport) Connect(ctx context.Context) error {
	opts := []nats.Option{nats.Name(t.config.Name), nats.NoReconnect()}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}
	nc, err := nats.Connect(t.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", t.config.URL, err)
	}
	t.mu.Lock()
	old := t.connection
	t.connection = nc
	t.mu.Unlock()
	if old != nil {
		old.Close()
	}
	t.logger.Info("connected")
	return nil
}

func (t *Transport) IsConnected() bool {
	nc := t.conn()
	return nc != nil && nc.IsConnected()
}

// Publish sends payload on the subject for topic. Any qos above at-most-once
// flushes before returning; retain has no NATS equivalent.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, qos transport.QoS, retain bool) error {
	nc := t.conn()
	if nc == nil || !nc.IsConnected() {
		return transport.ErrNotConnected
	}
	if retain {
		t.retainOnce.Do(func() { t.logger.Warn("retain is not supported, ignoring") })
	}
	subject := transport.Subject(topic)
	if err := nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	if qos > transport.AtMostOnce {
		timeout := time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if err := nc.FlushTimeout(timeout); err != nil {
			return fmt.Errorf("nats flush %s: %w", subject, err)
		}
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, topic string) error {
	nc := t.conn()
	if nc == nil || !nc.IsConnected() {
		return transport.ErrNotConnected
	}
	subject := transport.Subject(topic)
	_, err := nc.Subscribe(subject, func(m *nats.Msg) {
		if !t.inbox.Put(topic, m.Data) {
			metrics.CountDropped("nats")
			t.logger.Warnf("inbox full, dropping message on %s", m.Subject)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return nil
}

func (t *Transport) Receive(ctx context.Context) (transport.Message, error) {
	return t.inbox.Receive(ctx)
}

func (t *Transport) Close() {
	t.mu.Lock()
	nc := t.connection
	t.connection = nil
	t.mu.Unlock()
	if nc != nil {
		nc.Close()
		t.logger.Info("NatsStopped")
	}
}
