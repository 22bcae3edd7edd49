package actions

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"charge_point/charger"
	"charge_point/delivery"
	"charge_point/eventbus"
	"charge_point/metrics"
	"charge_point/timesource"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHeartbeatInterval     = 900 * time.Second
	DefaultInitialStatusDelay    = 3 * time.Second
	DefaultInitialHeartbeatDelay = 5 * time.Second
	DefaultResponseTimeout       = time.Second
)

type Settings struct {
	Identity              Identity
	ConnectorId           int
	IdTag                 string
	HeartbeatInterval     time.Duration
	InitialStatusDelay    time.Duration
	InitialHeartbeatDelay time.Duration
	ResponseTimeout       time.Duration
}

func (s *Settings) defaults() {
	if s.ConnectorId <= 0 {
		s.ConnectorId = charger.DefaultConnectorId
	}
	if s.HeartbeatInterval <= 0 {
		s.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if s.InitialStatusDelay < 0 {
		s.InitialStatusDelay = DefaultInitialStatusDelay
	}
	if s.InitialHeartbeatDelay < 0 {
		s.InitialHeartbeatDelay = DefaultInitialHeartbeatDelay
	}
	if s.ResponseTimeout <= 0 {
		s.ResponseTimeout = DefaultResponseTimeout
	}
}

// CoreProfileActions are the charge point side of the OCPP core profile: the
// tasks that turn state records into calls and call results into input events.
type CoreProfileActions struct {
	settings          Settings
	charger           *charger.Charger
	states            *eventbus.Broadcast[charger.Record]
	inputs            *eventbus.Queue[charger.InputEvent]
	inbound           *delivery.Queue
	sender            *Sender
	clock             timesource.Clock
	heartbeatInterval atomic.Int64
}

func InitializeCoreProfileActions(settings Settings, c *charger.Charger, states *eventbus.Broadcast[charger.Record],
	inputs *eventbus.Queue[charger.InputEvent], inbound *delivery.Queue, sender *Sender, clock timesource.Clock) *CoreProfileActions {
	settings.defaults()
	if clock == nil {
		clock = timesource.Unsynced{}
	}
	a := &CoreProfileActions{
		settings: settings,
		charger:  c,
		states:   states,
		inputs:   inputs,
		inbound:  inbound,
		sender:   sender,
		clock:    clock,
	}
	a.heartbeatInterval.Store(int64(settings.HeartbeatInterval))
	return a
}

func (a *CoreProfileActions) HeartbeatInterval() time.Duration {
	return time.Duration(a.heartbeatInterval.Load())
}

// Start subscribes every reactive task before any of them runs, so none misses
// the first records, then runs them until ctx ends.
func (a *CoreProfileActions) Start(ctx context.Context, wg *sync.WaitGroup) error {
	var subs []*eventbus.Subscriber[charger.Record]
	for i := 0; i < 3; i++ {
		sub, err := a.states.Subscribe()
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return err
		}
		subs = append(subs, sub)
	}
	tasks := []func(context.Context){
		a.BootNotificationTask,
		a.HeartbeatTask,
		a.ResponseTask,
		func(ctx context.Context) { a.StatusNotificationTask(ctx, subs[0]) },
		func(ctx context.Context) { a.AuthorizeTask(ctx, subs[1]) },
		func(ctx context.Context) { a.TransactionTask(ctx, subs[2]) },
	}
	for _, task := range tasks {
		wg.Add(1)
		go func(task func(context.Context)) {
			defer wg.Done()
			task(ctx)
		}(task)
	}
	return nil
}

func (a *CoreProfileActions) now() time.Time {
	return timesource.Timestamp(a.clock)
}

func (a *CoreProfileActions) BootNotificationTask(ctx context.Context) {
	a.sender.sendLogged("boot", BootNotification(a.settings.Identity))
}

func (a *CoreProfileActions) HeartbeatTask(ctx context.Context) {
	logger := logDefault("heartbeat", core.HeartbeatFeatureName)
	logger.Info("task started")
	delay := a.settings.InitialHeartbeatDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		a.sender.sendLogged("heartbeat", Heartbeat())
		delay = a.HeartbeatInterval()
	}
}

func (a *CoreProfileActions) sendStatus(state charger.ChargerState) {
	a.sender.sendLogged("status", StatusNotification(a.settings.ConnectorId, state, a.now()))
}

// StatusNotificationTask reports the current state once after the initial
// delay, then every change. Authorizing is never reported.
func (a *CoreProfileActions) StatusNotificationTask(ctx context.Context, sub *eventbus.Subscriber[charger.Record]) {
	defer sub.Close()
	logger := logDefault("status", core.StatusNotificationFeatureName)
	logger.Info("task started")
	select {
	case <-ctx.Done():
		return
	case <-time.After(a.settings.InitialStatusDelay):
	}

	last := a.charger.State()
	a.sendStatus(last)

	notify := func(state charger.ChargerState) {
		if state == charger.Authorizing || state == last {
			return
		}
		last = state
		a.sendStatus(state)
	}
	_ = eventbus.Follow(ctx, sub,
		func(record charger.Record) { notify(record.State) },
		func(missed uint64) {
			metrics.CountMissed("status", missed)
			logger.Warnf("missed %d state records, re-reading state", missed)
			notify(a.charger.State())
		})
}

func (a *CoreProfileActions) AuthorizeTask(ctx context.Context, sub *eventbus.Subscriber[charger.Record]) {
	defer sub.Close()
	logger := logDefault("authorize", core.AuthorizeFeatureName)
	logger.Info("task started")

	var seen charger.ChargerState
	_ = eventbus.Follow(ctx, sub,
		func(record charger.Record) {
			seen = record.State
			if record.State == charger.Authorizing {
				a.sender.sendLogged("authorize", Authorize(a.settings.IdTag))
			}
		},
		func(missed uint64) {
			metrics.CountMissed("authorize", missed)
			logger.Warnf("missed %d state records", missed)
			if seen != charger.Authorizing && a.charger.State() == charger.Authorizing {
				seen = charger.Authorizing
				a.sender.sendLogged("authorize", Authorize(a.settings.IdTag))
			}
		})
}

// session tracks whether a transaction is open from the transaction task's
// point of view.
type session struct {
	actions *CoreProfileActions
	logger  *logrus.Entry
	open    bool
}

func (s *session) start() {
	a := s.actions
	if a.sender.sendLogged("transaction", StartTransaction(a.settings.ConnectorId, a.settings.IdTag, a.now())) {
		s.open = true
	}
}

func (s *session) stop() {
	a := s.actions
	transactionId := a.charger.TransactionID()
	if transactionId == 0 {
		s.logger.Warn("stopping a session without a transaction id")
	}
	a.sender.sendLogged("transaction", StopTransaction(transactionId, a.settings.IdTag, a.now()))
	a.charger.ClearTransaction()
	s.open = false
}

// handle closes an open session on any record that leaves Charging, also
// when the transition carried no RemovePower.
func (s *session) handle(record charger.Record) {
	switch {
	case record.Outputs.Contains(charger.ApplyPower):
		s.start()
	case record.Outputs.Contains(charger.RemovePower):
		s.stop()
	case s.open && record.State != charger.Charging:
		s.logger.Warnf("session still open in %v, stopping it", record.State)
		s.stop()
	}
}

func (s *session) reconcile(missed uint64) {
	metrics.CountMissed("transaction", missed)
	s.logger.Warnf("missed %d state records, reconciling session", missed)
	charging := s.actions.charger.State() == charger.Charging
	switch {
	case charging && !s.open:
		s.start()
	case !charging && s.open:
		s.stop()
	}
}

// TransactionTask opens a session on ApplyPower and closes it on RemovePower.
// After a lag it compares the open session with the charger state instead.
func (a *CoreProfileActions) TransactionTask(ctx context.Context, sub *eventbus.Subscriber[charger.Record]) {
	defer sub.Close()
	s := &session{actions: a, logger: logDefault("transaction", core.StartTransactionFeatureName)}
	s.logger.Info("task started")
	_ = eventbus.Follow(ctx, sub, s.handle, s.reconcile)
}

// ResponseTask consumes inbound payloads until ctx ends.
func (a *CoreProfileActions) ResponseTask(ctx context.Context) {
	logger := logDefault("response", "")
	logger.Info("task started")
	for ctx.Err() == nil {
		rctx, cancel := context.WithTimeout(ctx, a.settings.ResponseTimeout)
		payload, err := a.inbound.Pop(rctx)
		cancel()
		if err != nil {
			continue
		}
		a.HandleResult(payload)
	}
}

// HandleResult applies one inbound payload and returns the input event it
// queued, None if it produced none or the input queue dropped it.
func (a *CoreProfileActions) HandleResult(payload []byte) charger.InputEvent {
	result, err := ParseCallResult(payload, a.sender.Pending())
	if err != nil {
		metrics.CountParseError()
		logDefault("response", "").WithField("payload", string(payload)).Warnf("discarding message: %v", err)
		return charger.None
	}
	metrics.CountResult(result.Action)
	logger := logDefault("response", result.Action)

	event := charger.None
	switch confirmation := result.Payload.(type) {
	case *core.AuthorizeConfirmation:
		event = charger.Rejected
		if confirmation.IdTagInfo.Status == types.AuthorizationStatusAccepted {
			event = charger.Accepted
		}
		logger.Infof("authorization %s", confirmation.IdTagInfo.Status)
	case *core.StartTransactionConfirmation:
		a.charger.SetTransactionID(confirmation.TransactionId)
		logger.Infof("transaction %d started", confirmation.TransactionId)
		if confirmation.IdTagInfo != nil && confirmation.IdTagInfo.Status != types.AuthorizationStatusAccepted {
			logger.Warnf("transaction %d: id tag %s", confirmation.TransactionId, confirmation.IdTagInfo.Status)
		}
	case *core.BootNotificationConfirmation:
		logger.Infof("registration %s, interval %d", confirmation.Status, confirmation.Interval)
		if confirmation.Status == core.RegistrationStatusAccepted && confirmation.Interval > 0 {
			a.heartbeatInterval.Store(int64(time.Duration(confirmation.Interval) * time.Second))
		}
	default:
		logger.Debug("call result acknowledged")
	}

	if event == charger.None {
		return charger.None
	}
	if err := a.inputs.TrySend(event); err != nil {
		metrics.CountDropped("input")
		logger.Warnf("dropping %s: %v", event, err)
		return charger.None
	}
	return event
}
