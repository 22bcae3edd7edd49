package charger

import "fmt"

// DefaultConnectorId is used when the configuration does not name a connector.
const DefaultConnectorId = 1

type ChargerState int

const (
	Off ChargerState = iota
	Faulted
	Available
	Occupied
	Charging
	Authorizing
)

func (s ChargerState) String() string {
	switch s {
	case Off:
		return "Off"
	case Faulted:
		return "Faulted"
	case Available:
		return "Available"
	case Occupied:
		return "Occupied"
	case Charging:
		return "Charging"
	case Authorizing:
		return "Authorizing"
	}
	return fmt.Sprintf("ChargerState(%d)", int(s))
}

// DisplayName is the short label shown on the charger display.
func (s ChargerState) DisplayName() string {
	if s == Faulted {
		return "Error"
	}
	return s.String()
}

func (s ChargerState) IsOperational() bool {
	return s == Available || s == Occupied || s == Charging
}

func (s ChargerState) IsCharging() bool { return s == Charging }

func (s ChargerState) IsOccupied() bool { return s == Occupied || s == Charging }

func (s ChargerState) IsAvailable() bool { return s == Available }

func (s ChargerState) HasError() bool { return s == Faulted }

// InputEvent is fed to the state machine through the input queue.
// None is the zero value and is never enqueued.
type InputEvent int

const (
	None InputEvent = iota
	InsertCable
	RemoveCable
	SwipeDetected
	Accepted
	Rejected
)

func (e InputEvent) String() string {
	switch e {
	case None:
		return "None"
	case InsertCable:
		return "InsertCable"
	case RemoveCable:
		return "RemoveCable"
	case SwipeDetected:
		return "SwipeDetected"
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	}
	return fmt.Sprintf("InputEvent(%d)", int(e))
}

// OutputEvent is a side effect a transition authorizes. Actuators decide how
// to realize it.
type OutputEvent int

const (
	Lock OutputEvent = iota + 1
	Unlock
	ApplyPower
	RemovePower
	ShowRejected
)

func (e OutputEvent) String() string {
	switch e {
	case Lock:
		return "Lock"
	case Unlock:
		return "Unlock"
	case ApplyPower:
		return "ApplyPower"
	case RemovePower:
		return "RemovePower"
	case ShowRejected:
		return "ShowRejected"
	}
	return fmt.Sprintf("OutputEvent(%d)", int(e))
}

// MaxOutputEvents bounds the outputs of a single transition.
const MaxOutputEvents = 2

// OutputEvents is a fixed-capacity set of output events.
type OutputEvents struct {
	items [MaxOutputEvents]OutputEvent
	n     int
}

// Outputs builds a set from events; duplicates are ignored and anything
// beyond MaxOutputEvents is dropped.
func Outputs(events ...OutputEvent) OutputEvents {
	var o OutputEvents
	for _, e := range events {
		o.add(e)
	}
	return o
}

func (o *OutputEvents) add(e OutputEvent) bool {
	if o.Contains(e) || o.n == len(o.items) {
		return false
	}
	o.items[o.n] = e
	o.n++
	return true
}

func (o OutputEvents) Contains(e OutputEvent) bool {
	for i := 0; i < o.n; i++ {
		if o.items[i] == e {
			return true
		}
	}
	return false
}

func (o OutputEvents) Len() int { return o.n }

func (o OutputEvents) Slice() []OutputEvent {
	out := make([]OutputEvent, o.n)
	copy(out, o.items[:o.n])
	return out
}

func (o OutputEvents) String() string {
	return fmt.Sprintf("%v", o.Slice())
}

// Record is published on the broadcast channel once per committed state change.
type Record struct {
	State   ChargerState
	Outputs OutputEvents
}
