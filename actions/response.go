package actions

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
)

var (
	ErrMalformed   = errors.New("malformed call result")
	ErrUnsupported = errors.New("unsupported message")
)

// CallResult is a decoded [3, "<action or id>", {payload}] message.
type CallResult struct {
	UniqueId string
	Action   string
	Payload  ocpp.Response
}

// idTagResult accepts both the standard {"idTagInfo": {...}} shape and a bare
// {"status": ...} some central systems send.
type idTagResult struct {
	IdTagInfo     *types.IdTagInfo          `json:"idTagInfo"`
	Status        types.AuthorizationStatus `json:"status"`
	TransactionId *int                      `json:"transactionId"`
}

func (r idTagResult) info() *types.IdTagInfo {
	if r.IdTagInfo != nil {
		return r.IdTagInfo
	}
	if r.Status != "" {
		return types.NewIdTagInfo(r.Status)
	}
	return nil
}

// ParseCallResult decodes an inbound payload. Only call results are handled;
// the second element is either the action name or the unique id of a call
// recorded in pending.
func ParseCallResult(data []byte, pending *PendingCalls) (CallResult, error) {
	var result CallResult
	if !utf8.Valid(data) {
		return result, fmt.Errorf("%w: invalid utf-8", ErrMalformed)
	}
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return result, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(fields) == 0 {
		return result, fmt.Errorf("%w: empty message", ErrMalformed)
	}
	var callType CallType
	if err := json.Unmarshal(fields[0], &callType); err != nil {
		return result, fmt.Errorf("%w: message type: %v", ErrMalformed, err)
	}
	if callType != CallTypeResult {
		return result, fmt.Errorf("%w: message type %d", ErrUnsupported, callType)
	}
	if len(fields) != 3 {
		return result, fmt.Errorf("%w: expected 3 elements, got %d", ErrMalformed, len(fields))
	}
	var key string
	if err := json.Unmarshal(fields[1], &key); err != nil {
		return result, fmt.Errorf("%w: action: %v", ErrMalformed, err)
	}
	result.Action = key
	if !knownAction(key) {
		action, ok := "", false
		if pending != nil {
			action, ok = pending.Resolve(key)
		}
		if !ok {
			return result, fmt.Errorf("%w: action %q", ErrUnsupported, key)
		}
		result.UniqueId = key
		result.Action = action
	}
	payload, err := decodePayload(result.Action, fields[2])
	if err != nil {
		return result, fmt.Errorf("%w: %s payload: %v", ErrMalformed, result.Action, err)
	}
	result.Payload = payload
	return result, nil
}

func knownAction(action string) bool {
	switch action {
	case core.AuthorizeFeatureName,
		core.StartTransactionFeatureName,
		core.StopTransactionFeatureName,
		core.BootNotificationFeatureName,
		core.HeartbeatFeatureName,
		core.StatusNotificationFeatureName:
		return true
	}
	return false
}

func decodePayload(action string, raw json.RawMessage) (ocpp.Response, error) {
	switch action {
	case core.AuthorizeFeatureName:
		var r idTagResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		info := r.info()
		if info == nil {
			return nil, errors.New("missing status")
		}
		return core.NewAuthorizationConfirmation(info), nil
	case core.StartTransactionFeatureName:
		var r idTagResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		if r.TransactionId == nil {
			return nil, errors.New("missing transactionId")
		}
		return core.NewStartTransactionConfirmation(r.info(), *r.TransactionId), nil
	case core.StopTransactionFeatureName:
		var r idTagResult
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		confirmation := core.NewStopTransactionConfirmation()
		confirmation.IdTagInfo = r.info()
		return confirmation, nil
	case core.BootNotificationFeatureName:
		confirmation := &core.BootNotificationConfirmation{}
		if err := json.Unmarshal(raw, confirmation); err != nil {
			return nil, err
		}
		return confirmation, nil
	case core.HeartbeatFeatureName:
		confirmation := &core.HeartbeatConfirmation{}
		if err := json.Unmarshal(raw, confirmation); err != nil {
			return nil, err
		}
		return confirmation, nil
	case core.StatusNotificationFeatureName:
		return core.NewStatusNotificationConfirmation(), nil
	}
	return nil, ErrUnsupported
}
