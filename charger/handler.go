package charger

import (
	"context"
	"time"

	"charge_point/eventbus"

	log "github.com/sirupsen/logrus"
)

const DefaultPacing = 100 * time.Millisecond

// Handler is the state machine task: the only caller of Transition.
type Handler struct {
	charger *Charger
	inputs  *eventbus.Queue[InputEvent]
	states  *eventbus.Broadcast[Record]
	pacing  time.Duration
}

func NewHandler(c *Charger, inputs *eventbus.Queue[InputEvent], states *eventbus.Broadcast[Record], pacing time.Duration) *Handler {
	if pacing < 0 {
		pacing = DefaultPacing
	}
	return &Handler{charger: c, inputs: inputs, states: states, pacing: pacing}
}

// Step consumes one input event and publishes the result if the state changed.
func (h *Handler) Step(ctx context.Context) error {
	event, err := h.inputs.Receive(ctx)
	if err != nil {
		return err
	}
	log.WithField("task", "statemachine").Infof("received input event: %v", event)

	h.apply(ctx, event)

	// Recovery starts as soon as Faulted is committed rather than waiting for
	// another physical event; no input is consumed until it completes.
	if h.charger.State() == Faulted && ctx.Err() == nil {
		h.apply(ctx, None)
	}
	return nil
}

func (h *Handler) apply(ctx context.Context, event InputEvent) {
	old := h.charger.State()
	state, outputs := h.charger.Transition(ctx, event)
	if state != old {
		h.states.Publish(Record{State: state, Outputs: outputs})
		log.WithField("task", "statemachine").Infof("published state change to %v", state)
	}
}

func (h *Handler) Run(ctx context.Context) {
	log.WithField("task", "statemachine").Info("task started")
	for {
		if err := h.Step(ctx); err != nil {
			return
		}
		if h.pacing > 0 {
			select {
			case <-time.After(h.pacing):
			case <-ctx.Done():
				return
			}
		}
	}
}
