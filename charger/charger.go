package charger

import (
	"context"
	"sync"
	"time"

	"charge_point/metrics"

	log "github.com/sirupsen/logrus"
)

const DefaultFaultRecoveryDelay = 5 * time.Second

// Drainer is the input queue as seen by the fault recovery path.
type Drainer interface {
	Clear() int
}

// Charger holds the single authoritative charge point state and the current
// transaction id. State and transaction id each have their own lock, held only
// for a single read or write.
//
// Transition calls are serialized by transitionMu. That lock IS held while
// the Faulted recovery delay elapses: the state machine is deliberately
// unresponsive during recovery, and nothing else may transition meanwhile.
// Readers of State are not blocked by it.
type Charger struct {
	transitionMu sync.Mutex

	stateMu sync.RWMutex
	state   ChargerState

	txMu          sync.RWMutex
	transactionId int

	faultDelay time.Duration
	inputs     Drainer
}

type Option func(*Charger)

func WithFaultRecoveryDelay(d time.Duration) Option {
	return func(c *Charger) { c.faultDelay = d }
}

// WithInputQueue sets the queue that is cleared when leaving Faulted.
func WithInputQueue(d Drainer) Option {
	return func(c *Charger) { c.inputs = d }
}

func NewCharger(opts ...Option) *Charger {
	c := &Charger{
		state:      Off,
		faultDelay: DefaultFaultRecoveryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Charger) State() ChargerState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// SetState overrides the state. Only used at startup, once the cable has been
// probed; afterwards Transition is the only writer.
func (c *Charger) SetState(s ChargerState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	metrics.ObserveState(s.String())
}

func (c *Charger) TransactionID() int {
	c.txMu.RLock()
	defer c.txMu.RUnlock()
	return c.transactionId
}

func (c *Charger) SetTransactionID(id int) {
	c.txMu.Lock()
	c.transactionId = id
	c.txMu.Unlock()
	metrics.ObserveTransaction(id)
}

// ClearTransaction resets the transaction id and returns the previous value.
func (c *Charger) ClearTransaction() int {
	c.txMu.Lock()
	prev := c.transactionId
	c.transactionId = 0
	c.txMu.Unlock()
	metrics.ObserveTransaction(0)
	return prev
}

func (c *Charger) HasTransaction() bool {
	return c.TransactionID() > 0
}

// Transition applies one input event and commits the resulting state, even
// when unchanged. Pairs missing from the table force Faulted. Any input while
// Faulted waits out the recovery delay, clears the input queue and returns
// Available.
func (c *Charger) Transition(ctx context.Context, input InputEvent) (ChargerState, OutputEvents) {
	c.transitionMu.Lock()
	defer c.transitionMu.Unlock()

	current := c.State()
	logger := log.WithFields(log.Fields{"task": "statemachine", "from": current, "input": input})
	logger.Info("transitioning")

	var (
		next    ChargerState
		outputs OutputEvents
	)
	switch {
	case current == Available && input == InsertCable:
		next = Occupied
	case current == Occupied && input == SwipeDetected:
		next = Authorizing
	case current == Authorizing && input == Accepted:
		next, outputs = Charging, Outputs(ApplyPower, Lock)
	case current == Authorizing && input == Rejected:
		next, outputs = Occupied, Outputs(ShowRejected)
	case current == Charging && input == SwipeDetected:
		next, outputs = Occupied, Outputs(RemovePower, Unlock)
	case current == Occupied && input == RemoveCable:
		next = Available
	case current == Charging && input == RemoveCable:
		next, outputs = Faulted, Outputs(RemovePower, Unlock)
	case current == Faulted:
		next = c.recover(ctx, logger)
	default:
		logger.Warn("invalid or unknown transition")
		next = Faulted
	}

	c.stateMu.Lock()
	c.state = next
	c.stateMu.Unlock()

	metrics.ObserveTransition(current.String(), input.String(), next.String())
	logger.WithFields(log.Fields{"to": next, "outputs": outputs}).Info("transition result")
	return next, outputs
}

func (c *Charger) recover(ctx context.Context, logger *log.Entry) ChargerState {
	logger.Warnf("charger faulted, resetting to available after %v", c.faultDelay)
	timer := time.NewTimer(c.faultDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return Faulted
	}
	if c.inputs != nil {
		if n := c.inputs.Clear(); n > 0 {
			logger.Warnf("discarded %d input events received while faulted", n)
		}
	}
	return Available
}
