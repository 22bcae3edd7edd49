package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"charge_point/transport"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer answers every call with a call result naming the action.
func echoServer(t *testing.T, paths chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{Subprotocols: []string{Subprotocol}}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(message), `"Heartbeat"`) {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`[3,"Heartbeat",{"currentTime":"2024-05-01T12:00:00Z"}]`))
			}
		}
	}))
}

func TestRoundTrip(t *testing.T) {
	paths := make(chan string, 1)
	server := echoServer(t, paths)
	defer server.Close()

	tr := New(Config{URL: "ws" + strings.TrimPrefix(server.URL, "http") + "/ocpp/", ChargePointId: "cp-1"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, tr.Connect(ctx))
	defer tr.Close()
	assert.Equal(t, "/ocpp/cp-1", <-paths)
	assert.True(t, tr.IsConnected())
	require.NoError(t, tr.Subscribe(ctx, "/system/cp-1"))

	require.NoError(t, tr.Publish(ctx, "/charger/cp-1", []byte(`[2,"1","Heartbeat",{}]`), transport.AtLeastOnce, false))
	msg, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, `[3,"Heartbeat",{"currentTime":"2024-05-01T12:00:00Z"}]`, string(msg.Payload))
}

func TestPublishWhileDisconnected(t *testing.T) {
	tr := New(Config{URL: "ws://127.0.0.1:1"})
	err := tr.Publish(context.Background(), "", []byte("x"), transport.AtMostOnce, false)
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.ErrorIs(t, tr.Subscribe(context.Background(), ""), transport.ErrNotConnected)
}

func TestReceiveTimesOut(t *testing.T) {
	tr := New(Config{URL: "ws://127.0.0.1:1"})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tr.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
