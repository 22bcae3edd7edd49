package notifier

import (
	"context"

	"charge_point/charger"
	"charge_point/eventbus"
	"charge_point/metrics"

	log "github.com/sirupsen/logrus"
)

// Notification is published by the notifier as JSON on Topic.
type Notification struct {
	Topic string
	Data  interface{}
}

type StateChange struct {
	State         string   `json:"state"`
	Outputs       []string `json:"outputs"`
	TransactionId int      `json:"transactionId"`
}

// StateFeed turns every broadcast record into a Notification on topic. A full
// channel drops the notification.
func StateFeed(ctx context.Context, sub *eventbus.Subscriber[charger.Record], c *charger.Charger, topic string, out chan<- Notification) {
	defer sub.Close()
	logger := log.WithField("task", "statefeed")
	logger.Info("task started")
	send := func(state charger.ChargerState, outputs charger.OutputEvents) {
		change := StateChange{State: state.String(), Outputs: []string{}, TransactionId: c.TransactionID()}
		for _, o := range outputs.Slice() {
			change.Outputs = append(change.Outputs, o.String())
		}
		select {
		case out <- Notification{Topic: topic, Data: change}:
		default:
			metrics.CountDropped("notification")
			logger.Warn("notification channel full, dropping state change")
		}
	}
	_ = eventbus.Follow(ctx, sub,
		func(record charger.Record) { send(record.State, record.Outputs) },
		func(missed uint64) {
			metrics.CountMissed("statefeed", missed)
			send(c.State(), charger.OutputEvents{})
		})
}
