package nats

import (
	"context"
	"testing"
	"time"

	"charge_point/transport"

	"github.com/stretchr/testify/assert"
)

func TestNotConnected(t *testing.T) {
	tr := New(Config{URL: "nats://127.0.0.1:1"})
	assert.False(t, tr.IsConnected())
	assert.ErrorIs(t, tr.Publish(context.Background(), "/charger/x", []byte("{}"), transport.AtLeastOnce, true), transport.ErrNotConnected)
	assert.ErrorIs(t, tr.Subscribe(context.Background(), "/system/x"), transport.ErrNotConnected)
	tr.Close()
}

func TestConnectFailure(t *testing.T) {
	tr := New(Config{URL: "nats://127.0.0.1:1"})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.Error(t, tr.Connect(ctx))
	assert.False(t, tr.IsConnected())
}
