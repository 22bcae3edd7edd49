package mqtt

import (
	"context"
	"testing"

	"charge_point/transport"

	"github.com/stretchr/testify/assert"
)

func TestBrokerURL(t *testing.T) {
	assert.Equal(t, "tcp://broker.hivemq.com:1883", brokerURL("broker.hivemq.com:1883"))
	assert.Equal(t, "ssl://broker.example:8883", brokerURL("ssl://broker.example:8883"))
}

func TestNotConnected(t *testing.T) {
	tr := New(Config{Broker: "127.0.0.1:1", ClientID: "cp-test"})
	assert.False(t, tr.IsConnected())
	assert.ErrorIs(t, tr.Publish(context.Background(), "/charger/x", []byte("{}"), transport.AtMostOnce, false), transport.ErrNotConnected)
	assert.ErrorIs(t, tr.Subscribe(context.Background(), "/system/x"), transport.ErrNotConnected)
	tr.Close()
}
