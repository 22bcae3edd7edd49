package notifier

import (
	"encoding/json"
	"testing"
	"time"

	"charge_point/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, data []byte) common.Response {
	t.Helper()
	var r common.Response
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func newTestNotifier() *natsChargePointNotifier {
	n := New("", "request", "cp-1")
	n.AddHandler("status", func(id string, payload []byte, out chan common.Response) {
		out <- common.Response{Payload: map[string]string{"id": id, "payload": string(payload)}}
	})
	n.AddHandler("slow", func(string, []byte, chan common.Response) {})
	n.SetTimeout(20 * time.Millisecond)
	return n
}

func TestHandleDispatchesCommand(t *testing.T) {
	n := newTestNotifier()
	r := decode(t, n.handle([]byte(`{"action":"status","chargePointId":"cp-1","payload":{"a":1}}`)))
	require.Nil(t, r.Err)
	assert.Equal(t, map[string]interface{}{"id": "cp-1", "payload": `{"a":1}`}, r.Payload)
}

func TestHandleRejectsInvalidCommands(t *testing.T) {
	n := newTestNotifier()
	cases := map[string]string{
		`not json`:                 "command.format.not.valid",
		`{"chargePointId":"cp-1"}`: "command.format.not.valid",
		`{"action":"status","chargePointId":"cp-9"}`: "command.charge.point.not.found",
		`{"action":"reboot","chargePointId":"cp-1"}`: "command.action.not.found",
		`{"action":"slow","chargePointId":"cp-1"}`:   "request.timeout",
	}
	for body, code := range cases {
		r := decode(t, n.handle([]byte(body)))
		require.NotNil(t, r.Err, body)
		assert.Equal(t, code, r.Err.Code, body)
	}
}
