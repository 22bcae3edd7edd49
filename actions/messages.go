package actions

import (
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"charge_point/charger"

	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

type CallType int

const (
	CallTypeRequest CallType = 2
	CallTypeResult  CallType = 3
	CallTypeError   CallType = 4
)

// MessageIDs hands out OCPP unique ids: a 32-bit counter starting at 1,
// rendered in decimal. It wraps on overflow.
type MessageIDs struct {
	last atomic.Uint32
}

func (m *MessageIDs) Next() string {
	return strconv.FormatUint(uint64(m.last.Add(1)), 10)
}

// Identity describes the charge point in BootNotification.
type Identity struct {
	Vendor          string
	Model           string
	Serial          string
	FirmwareVersion string
}

// ChargePointStatus maps the internal state to the OCPP status. Authorizing has
// no OCPP counterpart and reports Unavailable.
func ChargePointStatus(state charger.ChargerState) core.ChargePointStatus {
	switch state {
	case charger.Available:
		return core.ChargePointStatusAvailable
	case charger.Occupied:
		return core.ChargePointStatusPreparing
	case charger.Charging:
		return core.ChargePointStatusCharging
	case charger.Faulted:
		return core.ChargePointStatusFaulted
	case charger.Off:
		return core.ChargePointStatusUnavailable
	default:
		return core.ChargePointStatusUnavailable
	}
}

func BootNotification(identity Identity) *core.BootNotificationRequest {
	request := core.NewBootNotificationRequest(identity.Model, identity.Vendor)
	request.ChargeBoxSerialNumber = identity.Serial
	request.FirmwareVersion = identity.FirmwareVersion
	return request
}

func Heartbeat() *core.HeartbeatRequest {
	return core.NewHeartbeatRequest()
}

func StatusNotification(connectorId int, state charger.ChargerState, timestamp time.Time) *core.StatusNotificationRequest {
	request := core.NewStatusNotificationRequest(connectorId, core.NoError, ChargePointStatus(state))
	request.Timestamp = types.NewDateTime(timestamp)
	return request
}

func Authorize(idTag string) *core.AuthorizeRequest {
	return core.NewAuthorizationRequest(idTag)
}

func StartTransaction(connectorId int, idTag string, timestamp time.Time) *core.StartTransactionRequest {
	return core.NewStartTransactionRequest(connectorId, idTag, 0, types.NewDateTime(timestamp))
}

func StopTransaction(transactionId int, idTag string, timestamp time.Time) *core.StopTransactionRequest {
	request := core.NewStopTransactionRequest(0, types.NewDateTime(timestamp), transactionId)
	request.IdTag = idTag
	return request
}

// EncodeCall renders an OCPP-J call: [2, "<id>", "<action>", {payload}].
func EncodeCall(uniqueId string, request ocpp.Request) ([]byte, error) {
	return json.Marshal([]interface{}{CallTypeRequest, uniqueId, request.GetFeatureName(), request})
}
