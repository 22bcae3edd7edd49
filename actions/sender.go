package actions

import (
	"fmt"

	"charge_point/delivery"
	"charge_point/metrics"
	"charge_point/timesource"

	"github.com/lorenzodonini/ocpp-go/ocpp"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

func logDefault(task string, feature string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"task": task, "feature": feature})
}

// Timestamp is the clock's time, or the epoch while the clock is unsynced.
func Timestamp(clock timesource.Clock) *types.DateTime {
	return types.NewDateTime(timesource.Timestamp(clock))
}

// Sender turns requests into OCPP-J calls on the outbound queue. It never
// blocks: a full queue drops the call.
type Sender struct {
	ids      *MessageIDs
	pending  *PendingCalls
	outbound *delivery.Queue
}

func NewSender(outbound *delivery.Queue, pending *PendingCalls) *Sender {
	if pending == nil {
		pending = NewPendingCalls(DefaultPendingCapacity)
	}
	return &Sender{ids: &MessageIDs{}, pending: pending, outbound: outbound}
}

func (s *Sender) Pending() *PendingCalls { return s.pending }

// Send enqueues request and returns the unique id it was sent under.
func (s *Sender) Send(request ocpp.Request) (string, error) {
	action := request.GetFeatureName()
	uniqueId := s.ids.Next()
	data, err := EncodeCall(uniqueId, request)
	if err != nil {
		return uniqueId, fmt.Errorf("encode %s: %w", action, err)
	}
	s.pending.Add(uniqueId, action)
	if err := s.outbound.TryPush(data); err != nil {
		s.pending.Resolve(uniqueId)
		metrics.CountDropped(s.outbound.Name())
		return uniqueId, fmt.Errorf("enqueue %s: %w", action, err)
	}
	metrics.CountSent(action)
	return uniqueId, nil
}

// sendLogged is Send with the outcome logged under task.
func (s *Sender) sendLogged(task string, request ocpp.Request) bool {
	entry := logDefault(task, request.GetFeatureName())
	uniqueId, err := s.Send(request)
	if err != nil {
		entry.Warnf("failed to send message: %v", err)
		return false
	}
	entry.WithField("id", uniqueId).Info("message enqueued")
	return true
}
