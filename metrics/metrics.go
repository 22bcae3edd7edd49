package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "charger",
	Name:      "transitions_total",
	Help:      "State machine transitions by resulting state.",
}, []string{"from", "input", "to"})

var stateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "charger",
	Name:      "state",
	Help:      "1 for the current charger state, 0 otherwise.",
}, []string{"state"})

var transactionGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "charger",
	Name:      "transaction_id",
	Help:      "Current transaction id, 0 when none.",
})

var droppedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "charger",
	Name:      "dropped_total",
	Help:      "Payloads or events dropped because a bounded queue was full.",
}, []string{"queue"})

var requeueCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "charger",
	Name:      "outbound_requeued_total",
	Help:      "Outbound payloads requeued after a transport failure.",
})

var sentCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "calls_enqueued_total",
	Help:      "OCPP calls enqueued for delivery by action.",
}, []string{"action"})

var resultCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "call_results_total",
	Help:      "OCPP call results handled by action.",
}, []string{"action"})

var parseErrorCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ocpp",
	Name:      "parse_errors_total",
	Help:      "Inbound payloads discarded as malformed or unsupported.",
})

var lagCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "charger",
	Name:      "broadcast_missed_total",
	Help:      "Broadcast records missed by lagging subscribers.",
}, []string{"subscriber"})

var transportErrorCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "transport",
	Name:      "errors_total",
	Help:      "Transport failures by operation.",
}, []string{"op"})

var allStates = []string{"Off", "Faulted", "Available", "Occupied", "Charging", "Authorizing"}

func ObserveTransition(from, input, to string) {
	transitionCounter.With(prometheus.Labels{"from": from, "input": input, "to": to}).Inc()
	ObserveState(to)
}

func ObserveState(state string) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		stateGauge.With(prometheus.Labels{"state": s}).Set(v)
	}
}

func ObserveTransaction(id int) {
	transactionGauge.Set(float64(id))
}

func CountDropped(queue string) {
	droppedCounter.With(prometheus.Labels{"queue": queue}).Inc()
}

func CountRequeued() {
	requeueCounter.Inc()
}

func CountSent(action string) {
	sentCounter.With(prometheus.Labels{"action": action}).Inc()
}

func CountResult(action string) {
	resultCounter.With(prometheus.Labels{"action": action}).Inc()
}

func CountParseError() {
	parseErrorCounter.Inc()
}

func CountMissed(subscriber string, missed uint64) {
	lagCounter.With(prometheus.Labels{"subscriber": subscriber}).Add(float64(missed))
}

func CountTransportError(op string) {
	transportErrorCounter.With(prometheus.Labels{"op": op}).Inc()
}
