package peripheral

import (
	"context"
	"time"

	"charge_point/charger"
	"charge_point/eventbus"
	"charge_point/metrics"

	log "github.com/sirupsen/logrus"
)

// Reactor mirrors broadcast records onto a Switch. After a lag it re-derives
// the level from the charger state.
type Reactor struct {
	name    string
	sw      Switch
	charger *charger.Charger
	// react returns the level for a record, ok false to leave it unchanged.
	react  func(charger.Record) (on bool, ok bool)
	derive func(charger.ChargerState) bool
	logger *log.Entry
}

func newReactor(name string, sw Switch, c *charger.Charger, react func(charger.Record) (bool, bool), derive func(charger.ChargerState) bool) *Reactor {
	return &Reactor{
		name:    name,
		sw:      sw,
		charger: c,
		react:   react,
		derive:  derive,
		logger:  log.WithFields(log.Fields{"task": name, "switch": sw.Name()}),
	}
}

func isCharging(state charger.ChargerState) bool { return state.IsCharging() }

// NewLEDReactor lights the LED exactly while charging.
func NewLEDReactor(sw Switch, c *charger.Charger) *Reactor {
	return newReactor("led", sw, c, func(r charger.Record) (bool, bool) {
		return r.State.IsCharging(), true
	}, isCharging)
}

// NewRelayReactor closes the power relay on ApplyPower and opens it on
// RemovePower or on any record for a state other than Charging.
func NewRelayReactor(sw Switch, c *charger.Charger) *Reactor {
	return newReactor("relay", sw, c, func(r charger.Record) (bool, bool) {
		switch {
		case r.Outputs.Contains(charger.RemovePower), r.State != charger.Charging:
			return false, true
		case r.Outputs.Contains(charger.ApplyPower):
			return true, true
		}
		return false, false
	}, isCharging)
}

// NewLockReactor engages the cable lock on Lock and releases it on Unlock or
// on any state other than Charging.
func NewLockReactor(sw Switch, c *charger.Charger) *Reactor {
	return newReactor("lock", sw, c, func(r charger.Record) (bool, bool) {
		switch {
		case r.Outputs.Contains(charger.Unlock), r.State != charger.Charging:
			return false, true
		case r.Outputs.Contains(charger.Lock):
			return true, true
		}
		return false, false
	}, isCharging)
}

func (r *Reactor) Name() string { return r.name }

func (r *Reactor) set(on bool) {
	if err := r.sw.Set(on); err != nil {
		r.logger.Warnf("failed to set %v: %v", on, err)
	}
}

// Run sets the initial level from the charger and follows sub until ctx ends.
func (r *Reactor) Run(ctx context.Context, sub *eventbus.Subscriber[charger.Record]) {
	defer sub.Close()
	r.logger.Info("task started")
	r.set(r.derive(r.charger.State()))
	_ = eventbus.Follow(ctx, sub,
		func(record charger.Record) {
			if on, ok := r.react(record); ok {
				r.set(on)
			}
		},
		func(missed uint64) {
			metrics.CountMissed(r.name, missed)
			r.logger.Warnf("missed %d state records", missed)
			r.set(r.derive(r.charger.State()))
		})
}

// RejectedIndicator blinks a Switch when an authorization is rejected.
type RejectedIndicator struct {
	sw     Switch
	blinks int
	period time.Duration
	logger *log.Entry
}

func NewRejectedIndicator(sw Switch, blinks int, period time.Duration) *RejectedIndicator {
	if blinks <= 0 {
		blinks = 3
	}
	if period <= 0 {
		period = 200 * time.Millisecond
	}
	return &RejectedIndicator{sw: sw, blinks: blinks, period: period, logger: log.WithField("task", "rejected")}
}

func (i *RejectedIndicator) blink(ctx context.Context) {
	defer i.sw.Set(false)
	for n := 0; n < i.blinks; n++ {
		for _, on := range []bool{true, false} {
			if err := i.sw.Set(on); err != nil {
				i.logger.Warnf("failed to blink: %v", err)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(i.period / 2):
			}
		}
	}
}

// Run follows sub until ctx ends. A missed rejection is not replayed.
func (i *RejectedIndicator) Run(ctx context.Context, sub *eventbus.Subscriber[charger.Record]) {
	defer sub.Close()
	i.logger.Info("task started")
	_ = eventbus.Follow(ctx, sub,
		func(record charger.Record) {
			if record.Outputs.Contains(charger.ShowRejected) {
				i.logger.Info("authorization rejected")
				i.blink(ctx)
			}
		},
		func(missed uint64) {
			metrics.CountMissed("rejected", missed)
			i.logger.Warnf("missed %d state records", missed)
		})
}
