// Package metrics holds the Prometheus collectors for the call client and
// the relay. Every method is safe on a nil receiver so metrics stay optional.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "warpcall"

// Candidate outcomes.
const (
	CandidateSent     = "sent"
	CandidateBuffered = "buffered"
	CandidateApplied  = "applied"
	CandidateFailed   = "failed"
)

// Call tracks the client-side state machine.
type Call struct {
	transitions *prometheus.CounterVec
	candidates  *prometheus.CounterVec
	restarts    prometheus.Counter
	errors      *prometheus.CounterVec
}

func NewCall(reg prometheus.Registerer) *Call {
	c := &Call{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "call",
			Name:      "transitions_total",
			Help:      "Call state transitions.",
		}, []string{"from", "to"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "call",
			Name:      "candidates_total",
			Help:      "Network candidates by outcome.",
		}, []string{"outcome"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "call",
			Name:      "ice_restarts_total",
			Help:      "Connectivity restarts initiated after a failed transport.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "call",
			Name:      "errors_total",
			Help:      "Contained call errors by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(c.transitions, c.candidates, c.restarts, c.errors)
	return c
}

func (c *Call) Transition(from, to string) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Call) Candidate(outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.candidates.WithLabelValues(outcome).Add(float64(n))
}

func (c *Call) Restart() {
	if c == nil {
		return
	}
	c.restarts.Inc()
}

func (c *Call) Error(kind string) {
	if c == nil {
		return
	}
	c.errors.WithLabelValues(kind).Inc()
}

// Relay tracks the message relay.
type Relay struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	relayed     *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

func NewRelay(reg prometheus.Registerer) *Relay {
	r := &Relay{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open participant connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Messages forwarded to a target participant.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "dropped_total",
			Help:      "Messages that could not be delivered.",
		}, []string{"reason"}),
	}
	reg.MustRegister(r.connections, r.rooms, r.relayed, r.dropped)
	return r
}

func (r *Relay) SetConnections(n int) {
	if r == nil {
		return
	}
	r.connections.Set(float64(n))
}

func (r *Relay) SetRooms(n int) {
	if r == nil {
		return
	}
	r.rooms.Set(float64(n))
}

func (r *Relay) Relayed(msgType string) {
	if r == nil {
		return
	}
	r.relayed.WithLabelValues(msgType).Inc()
}

func (r *Relay) Dropped(reason string) {
	if r == nil {
		return
	}
	r.dropped.WithLabelValues(reason).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
