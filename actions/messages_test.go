package actions

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"charge_point/charger"
	"charge_point/delivery"
	"charge_point/timesource"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageIDsStartAtOne(t *testing.T) {
	var ids MessageIDs
	assert.Equal(t, "1", ids.Next())
	assert.Equal(t, "2", ids.Next())
	assert.Equal(t, "3", ids.Next())
}

func TestMessageIDsConcurrent(t *testing.T) {
	const workers, perWorker = 8, 200
	var ids MessageIDs
	got := make([][]int, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n, err := strconv.Atoi(ids.Next())
				if err != nil {
					return
				}
				got[w] = append(got[w], n)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[int]bool, workers*perWorker)
	for _, sequence := range got {
		require.Len(t, sequence, perWorker)
		for i, n := range sequence {
			if i > 0 {
				assert.Greater(t, n, sequence[i-1])
			}
			assert.False(t, seen[n], "id %d issued twice", n)
			seen[n] = true
		}
	}
	for n := 1; n <= workers*perWorker; n++ {
		assert.True(t, seen[n], "id %d never issued", n)
	}
}

func TestChargePointStatusMapping(t *testing.T) {
	cases := map[charger.ChargerState]core.ChargePointStatus{
		charger.Available:   core.ChargePointStatusAvailable,
		charger.Occupied:    core.ChargePointStatusPreparing,
		charger.Charging:    core.ChargePointStatusCharging,
		charger.Faulted:     core.ChargePointStatusFaulted,
		charger.Off:         core.ChargePointStatusUnavailable,
		charger.Authorizing: core.ChargePointStatusUnavailable,
	}
	for state, status := range cases {
		assert.Equal(t, status, ChargePointStatus(state), state.String())
	}
}

func decodeCall(t *testing.T, data []byte) (float64, string, string, map[string]interface{}) {
	t.Helper()
	var call []interface{}
	require.NoError(t, json.Unmarshal(data, &call))
	require.Len(t, call, 4)
	payload, ok := call[3].(map[string]interface{})
	require.True(t, ok)
	return call[0].(float64), call[1].(string), call[2].(string), payload
}

func TestEncodeStatusNotification(t *testing.T) {
	data, err := EncodeCall("7", StatusNotification(1, charger.Occupied, timesource.Epoch))
	require.NoError(t, err)

	callType, id, action, payload := decodeCall(t, data)
	assert.Equal(t, float64(2), callType)
	assert.Equal(t, "7", id)
	assert.Equal(t, "StatusNotification", action)
	assert.Equal(t, float64(1), payload["connectorId"])
	assert.Equal(t, "NoError", payload["errorCode"])
	assert.Equal(t, "Preparing", payload["status"])
	assert.Contains(t, payload["timestamp"], "1970-01-01T00:00:00")
}

func TestEncodeTransactions(t *testing.T) {
	data, err := EncodeCall("1", StartTransaction(1, "123456", timesource.Epoch))
	require.NoError(t, err)
	_, _, action, payload := decodeCall(t, data)
	assert.Equal(t, "StartTransaction", action)
	assert.Equal(t, float64(1), payload["connectorId"])
	assert.Equal(t, "123456", payload["idTag"])
	assert.Equal(t, float64(0), payload["meterStart"])

	data, err = EncodeCall("2", StopTransaction(43, "123456", timesource.Epoch))
	require.NoError(t, err)
	_, _, action, payload = decodeCall(t, data)
	assert.Equal(t, "StopTransaction", action)
	assert.Equal(t, float64(43), payload["transactionId"])
	assert.Equal(t, "123456", payload["idTag"])
	assert.Equal(t, float64(0), payload["meterStop"])
}

func TestEncodeBootNotification(t *testing.T) {
	data, err := EncodeCall("1", BootNotification(Identity{Vendor: "GA Make", Model: "ESP32-C6", Serial: "esp32c6-charger-001"}))
	require.NoError(t, err)
	_, _, action, payload := decodeCall(t, data)
	assert.Equal(t, "BootNotification", action)
	assert.Equal(t, "GA Make", payload["chargePointVendor"])
	assert.Equal(t, "ESP32-C6", payload["chargePointModel"])
	assert.Equal(t, "esp32c6-charger-001", payload["chargeBoxSerialNumber"])
}

func TestTimestampFallsBackToEpoch(t *testing.T) {
	assert.True(t, Timestamp(timesource.Unsynced{}).Time.Equal(timesource.Epoch))

	clock := &timesource.Manual{}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock.Set(at)
	assert.True(t, Timestamp(clock).Time.Equal(at))
}

func TestSenderRecordsPendingCall(t *testing.T) {
	outbound := delivery.NewQueue("send", 5, 2048)
	sender := NewSender(outbound, nil)

	id, err := sender.Send(Heartbeat())
	require.NoError(t, err)
	assert.Equal(t, "1", id)
	assert.Equal(t, 1, outbound.Len())

	action, ok := sender.Pending().Resolve(id)
	assert.True(t, ok)
	assert.Equal(t, "Heartbeat", action)
}

func TestSenderDropsWhenQueueFull(t *testing.T) {
	outbound := delivery.NewQueue("send", 1, 2048)
	sender := NewSender(outbound, nil)

	_, err := sender.Send(Heartbeat())
	require.NoError(t, err)
	dropped, err := sender.Send(Heartbeat())
	assert.True(t, errors.Is(err, delivery.ErrQueueFull))
	assert.Equal(t, 1, outbound.Len())
	assert.Equal(t, 1, sender.Pending().Len())
	_, ok := sender.Pending().Resolve(dropped)
	assert.False(t, ok)
}

func TestEchoedIdResolvesAsSoonAsQueued(t *testing.T) {
	const calls = 50
	outbound := delivery.NewQueue("send", 1, 2048)
	sender := NewSender(outbound, nil)

	resolved := make(chan bool, calls)
	go func() {
		for i := 0; i < calls; i++ {
			data, err := outbound.Pop(context.Background())
			if err != nil {
				resolved <- false
				continue
			}
			var call []json.RawMessage
			var id string
			_ = json.Unmarshal(data, &call)
			_ = json.Unmarshal(call[1], &id)
			_, ok := sender.Pending().Resolve(id)
			resolved <- ok
		}
	}()

	for sent := 0; sent < calls; {
		if _, err := sender.Send(Heartbeat()); err == nil {
			sent++
		}
	}
	for i := 0; i < calls; i++ {
		select {
		case ok := <-resolved:
			assert.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("call was never dequeued")
		}
	}
}

func TestPendingCallsEvictsOldest(t *testing.T) {
	p := NewPendingCalls(2)
	p.Add("1", "Heartbeat")
	p.Add("2", "Authorize")
	p.Add("3", "StartTransaction")

	_, ok := p.Resolve("1")
	assert.False(t, ok)
	action, ok := p.Resolve("3")
	assert.True(t, ok)
	assert.Equal(t, "StartTransaction", action)
	assert.Equal(t, 1, p.Len())
}

func TestParseCallResult(t *testing.T) {
	t.Run("authorize with bare status", func(t *testing.T) {
		result, err := ParseCallResult([]byte(`[3,"Authorize",{"status":"Accepted"}]`), nil)
		require.NoError(t, err)
		confirmation, ok := result.Payload.(*core.AuthorizeConfirmation)
		require.True(t, ok)
		assert.Equal(t, types.AuthorizationStatusAccepted, confirmation.IdTagInfo.Status)
	})
	t.Run("authorize with idTagInfo", func(t *testing.T) {
		result, err := ParseCallResult([]byte(`[3,"Authorize",{"idTagInfo":{"status":"Blocked"}}]`), nil)
		require.NoError(t, err)
		confirmation := result.Payload.(*core.AuthorizeConfirmation)
		assert.Equal(t, types.AuthorizationStatusBlocked, confirmation.IdTagInfo.Status)
	})
	t.Run("start transaction", func(t *testing.T) {
		result, err := ParseCallResult([]byte(`[3,"StartTransaction",{"transactionId":43,"idTagInfo":{"status":"Accepted"}}]`), nil)
		require.NoError(t, err)
		confirmation := result.Payload.(*core.StartTransactionConfirmation)
		assert.Equal(t, 43, confirmation.TransactionId)
	})
	t.Run("unique id resolved through pending calls", func(t *testing.T) {
		pending := NewPendingCalls(4)
		pending.Add("12", core.AuthorizeFeatureName)
		result, err := ParseCallResult([]byte(`[3,"12",{"idTagInfo":{"status":"Accepted"}}]`), pending)
		require.NoError(t, err)
		assert.Equal(t, "12", result.UniqueId)
		assert.Equal(t, core.AuthorizeFeatureName, result.Action)
		assert.Zero(t, pending.Len())
	})

	malformed := map[string]string{
		"not json":                `{"status":`,
		"not an array":            `{"status":"Accepted"}`,
		"empty array":             `[]`,
		"wrong arity":             `[3,"Authorize"]`,
		"numeric action":          `[3,5,{}]`,
		"missing status":          `[3,"Authorize",{}]`,
		"missing transaction id":  `[3,"StartTransaction",{"idTagInfo":{"status":"Accepted"}}]`,
		"payload of wrong type":   `[3,"Authorize",[1,2]]`,
		"non numeric type":        `["3","Authorize",{}]`,
		"boot notification array": `[3,"BootNotification",[]]`,
	}
	for name, payload := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCallResult([]byte(payload), nil)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}

	unsupported := map[string]string{
		"call":           `[2,"1","Reset",{"type":"Hard"}]`,
		"call error":     `[4,"1","NotImplemented","",{}]`,
		"unknown action": `[3,"DataTransfer",{}]`,
	}
	for name, payload := range unsupported {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCallResult([]byte(payload), nil)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}

	t.Run("invalid utf-8", func(t *testing.T) {
		_, err := ParseCallResult([]byte{'[', '3', ',', '"', 0xff, '"', ']'}, nil)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}
