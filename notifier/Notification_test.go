package notifier

import (
	"context"
	"testing"
	"time"

	"charge_point/charger"
	"charge_point/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFeed(t *testing.T) {
	c := charger.NewCharger()
	c.SetTransactionID(43)
	states := eventbus.NewBroadcast[charger.Record](8, 2)
	sub, err := states.Subscribe()
	require.NoError(t, err)
	out := make(chan Notification, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go StateFeed(ctx, sub, c, "charger.state", out)
	states.Publish(charger.Record{State: charger.Charging, Outputs: charger.Outputs(charger.ApplyPower, charger.Lock)})

	select {
	case n := <-out:
		assert.Equal(t, "charger.state", n.Topic)
		assert.Equal(t, StateChange{State: "Charging", Outputs: []string{"ApplyPower", "Lock"}, TransactionId: 43}, n.Data)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
}
