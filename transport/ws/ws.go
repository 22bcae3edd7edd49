// Package ws connects to a central system as an OCPP-J WebSocket client. There
// is a single socket, so topics are ignored.
package ws

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"charge_point/metrics"
	"charge_point/transport"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const Subprotocol = "ocpp1.6"

type Config struct {
	// URL of the central system endpoint; the charge point id is appended.
	URL           string
	ChargePointId string
	InboxSize     int
}

type Transport struct {
	config Config
	dialer websocket.Dialer
	inbox  *transport.Inbox
	logger *log.Entry

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func New(config Config) *Transport {
	return &Transport{
		config: config,
		dialer: websocket.Dialer{Subprotocols: []string{Subprotocol}},
		inbox:  transport.NewInbox(config.InboxSize),
		logger: log.WithFields(log.Fields{"task": "ws", "url": config.URL}),
	}
}

func (t *Transport) endpoint() string {
	if t.config.ChargePointId == "" {
		return t.config.URL
	}
	return strings.TrimRight(t.config.URL, "/") + "/" + t.config.ChargePointId
}

func (t *Transport) Connect(ctx context.Context) error {
	conn, _, err := t.dialer.DialContext(ctx, t.endpoint(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.endpoint(), err)
	}
	if conn.Subprotocol() != Subprotocol {
		t.logger.Warnf("central system accepted subprotocol %q", conn.Subprotocol())
	}
	t.mu.Lock()
	old := t.conn
	t.conn = conn
	t.connected = true
	t.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	go t.reader(conn)
	t.logger.Info("connected")
	return nil
}

func (t *Transport) reader(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Info("central system closed the session")
			} else {
				metrics.CountTransportError("receive")
				t.logger.Warnf("read failed: %v", err)
			}
			t.mu.Lock()
			if t.conn == conn {
				t.connected = false
			}
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.logger.Debugf("IN %s", message)
		if !t.inbox.Put("", message) {
			metrics.CountDropped("ws")
			t.logger.Warn("inbox full, dropping message")
		}
	}
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Publish writes payload as a text frame; topic, qos and retain do not apply.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, qos transport.QoS, retain bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return transport.ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.connected = false
		return fmt.Errorf("write: %w", err)
	}
	t.logger.Debugf("OUT %s", payload)
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, topic string) error {
	if !t.IsConnected() {
		return transport.ErrNotConnected
	}
	return nil
}

func (t *Transport) Receive(ctx context.Context) (transport.Message, error) {
	return t.inbox.Receive(ctx)
}

func (t *Transport) Close() {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.connected = false
	t.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}
