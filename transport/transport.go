// Package transport defines the byte-oriented link to the central system.
// Implementations live in sub-packages: mqtt (default), nats and ws.
package transport

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotConnected = errors.New("transport not connected")
	ErrNoMessage    = errors.New("no message received")
)

type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

type Message struct {
	Topic   string
	Payload []byte
}

// Transport is fallible everywhere and is always called with a deadline.
type Transport interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Publish(ctx context.Context, topic string, payload []byte, qos QoS, retain bool) error
	Subscribe(ctx context.Context, topic string) error
	// Receive waits for one inbound message until ctx expires.
	Receive(ctx context.Context) (Message, error)
	Close()
}

// Subject converts an MQTT style topic ("/charger/abc") to a dotted subject
// ("charger.abc").
func Subject(topic string) string {
	parts := strings.FieldsFunc(topic, func(r rune) bool { return r == '/' })
	return strings.Join(parts, ".")
}

// Inbox buffers messages delivered by a client library callback until the
// delivery loop asks for them. Put never blocks.
type Inbox struct {
	ch chan Message
}

func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = 8
	}
	return &Inbox{ch: make(chan Message, capacity)}
}

// Put reports false when the message was dropped because the inbox is full.
func (i *Inbox) Put(topic string, payload []byte) bool {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	select {
	case i.ch <- Message{Topic: topic, Payload: buf}:
		return true
	default:
		return false
	}
}

func (i *Inbox) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-i.ch:
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (i *Inbox) Len() int { return len(i.ch) }
