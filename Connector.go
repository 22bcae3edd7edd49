package main

import (
	"sync"
	"time"

	"charge_point/charger"
	"charge_point/eventbus"
	"charge_point/metrics"

	"github.com/sirupsen/logrus"
)

const defaultDebounce = 100 * time.Millisecond

// Connector senses the cable and the card reader of the single connector and
// turns edges into input events. Edges come from interrupt-like contexts, so
// events are dropped rather than waited for when the input queue is full.
type Connector struct {
	id       int
	inputs   *eventbus.Queue[charger.InputEvent]
	debounce time.Duration

	mu       sync.Mutex
	level    bool // cable present, as last sensed
	reported bool // cable present, as last reported to the state machine
}

func NewConnector(id int, inputs *eventbus.Queue[charger.InputEvent], debounce time.Duration) *Connector {
	if debounce < 0 {
		debounce = defaultDebounce
	}
	return &Connector{id: id, inputs: inputs, debounce: debounce}
}

// Probe sets the boot state from the cable level, before any task runs.
func (this *Connector) Probe(c *charger.Charger, present bool) charger.ChargerState {
	this.mu.Lock()
	this.level, this.reported = present, present
	this.mu.Unlock()

	state := charger.Available
	if present {
		state = charger.Occupied
	}
	c.SetState(state)
	log.WithField("connector", this.id).Infof("cable present at boot: %v, starting %v", present, state)
	return state
}

func (this *Connector) HasCable() bool {
	this.mu.Lock()
	defer this.mu.Unlock()
	return this.level
}

// CableEdge records a new cable level and samples it again once the contact
// has settled.
func (this *Connector) CableEdge(present bool) {
	this.mu.Lock()
	this.level = present
	this.mu.Unlock()
	if this.debounce == 0 {
		this.sample()
		return
	}
	time.AfterFunc(this.debounce, this.sample)
}

func (this *Connector) sample() {
	this.mu.Lock()
	present := this.level
	changed := present != this.reported
	this.reported = present
	this.mu.Unlock()
	if !changed {
		return
	}
	if present {
		this.emit(charger.InsertCable)
	} else {
		this.emit(charger.RemoveCable)
	}
}

func (this *Connector) Swipe() {
	this.emit(charger.SwipeDetected)
}

func (this *Connector) emit(event charger.InputEvent) {
	logger := log.WithFields(logrus.Fields{"connector": this.id, "event": event})
	if err := this.inputs.TrySend(event); err != nil {
		metrics.CountDropped("input")
		logger.Warnf("dropping input event: %v", err)
		return
	}
	logger.Info("input event queued")
}
