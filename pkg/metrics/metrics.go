// Package metrics exposes Prometheus collectors for the collaboration client.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace   = "collab"
	eventLabel  = "event"
	resultLabel = "result"
	streamLabel = "stream"
	kindLabel   = "kind"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics manages the metric information the client records.
type Metrics struct {
	registry *prometheus.Registry

	inboundEventsTotal   *prometheus.CounterVec
	outboundEventsTotal  *prometheus.CounterVec
	droppedEmitsTotal    *prometheus.CounterVec
	malformedFramesTotal prometheus.Counter
	droppedDeliveryTotal *prometheus.CounterVec
	reconnectsTotal      *prometheus.CounterVec
	storeMutationsTotal  *prometheus.CounterVec
	enginePhase          prometheus.Gauge
	documentParticipants prometheus.Gauge
	openDocumentSessions prometheus.Gauge
}

// NewMetrics creates a new instance of Metrics with its own registry.
func NewMetrics() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Metrics{
		registry: reg,
		inboundEventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "inbound_events_total",
			Help:      "The total count of decoded inbound events.",
		}, []string{eventLabel}),
		outboundEventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "outbound_events_total",
			Help:      "The total count of events written to the transport.",
		}, []string{eventLabel}),
		droppedEmitsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "dropped_emits_total",
			Help:      "The total count of outbound events dropped because the connection was not usable.",
		}, []string{eventLabel}),
		malformedFramesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "malformed_frames_total",
			Help:      "The total count of inbound frames rejected at decode time.",
		}),
		droppedDeliveryTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "dropped_total",
			Help:      "The total count of values dropped because a consumer channel was full.",
		}, []string{streamLabel}),
		reconnectsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnects_total",
			Help:      "The total count of reconnection attempts by result.",
		}, []string{resultLabel}),
		storeMutationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "The total count of store mutations applied by the sync engine.",
		}, []string{kindLabel}),
		enginePhase: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "phase",
			Help:      "The current phase of the sync engine state machine.",
		}),
		documentParticipants: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "participants",
			Help:      "The number of remote participants across open document sessions.",
		}),
		openDocumentSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "open",
			Help:      "The number of open document sessions.",
		}),
	}, nil
}

// Registry returns the registry of this metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AddInboundEvent counts a decoded inbound event.
func (m *Metrics) AddInboundEvent(event string) {
	if m == nil {
		return
	}
	m.inboundEventsTotal.With(prometheus.Labels{eventLabel: event}).Inc()
}

// AddOutboundEvent counts an event written to the transport.
func (m *Metrics) AddOutboundEvent(event string) {
	if m == nil {
		return
	}
	m.outboundEventsTotal.With(prometheus.Labels{eventLabel: event}).Inc()
}

// AddDroppedEmit counts an outbound event dropped while disconnected.
func (m *Metrics) AddDroppedEmit(event string) {
	if m == nil {
		return
	}
	m.droppedEmitsTotal.With(prometheus.Labels{eventLabel: event}).Inc()
}

// AddMalformedFrame counts an inbound frame that failed to decode.
func (m *Metrics) AddMalformedFrame() {
	if m == nil {
		return
	}
	m.malformedFramesTotal.Inc()
}

// AddDroppedDelivery counts a value dropped on a full consumer channel.
func (m *Metrics) AddDroppedDelivery(stream string) {
	if m == nil {
		return
	}
	m.droppedDeliveryTotal.With(prometheus.Labels{streamLabel: stream}).Inc()
}

// AddReconnect counts a reconnection attempt with its result.
func (m *Metrics) AddReconnect(result string) {
	if m == nil {
		return
	}
	m.reconnectsTotal.With(prometheus.Labels{resultLabel: result}).Inc()
}

// AddStoreMutation counts a store mutation of the given kind.
func (m *Metrics) AddStoreMutation(kind string) {
	if m == nil {
		return
	}
	m.storeMutationsTotal.With(prometheus.Labels{kindLabel: kind}).Inc()
}

// SetEnginePhase records the current engine phase.
func (m *Metrics) SetEnginePhase(phase int) {
	if m == nil {
		return
	}
	m.enginePhase.Set(float64(phase))
}

// AddParticipants adjusts the participant gauge by delta.
func (m *Metrics) AddParticipants(delta int) {
	if m == nil {
		return
	}
	m.documentParticipants.Add(float64(delta))
}

// AddOpenSessions adjusts the open document session gauge by delta.
func (m *Metrics) AddOpenSessions(delta int) {
	if m == nil {
		return
	}
	m.openDocumentSessions.Add(float64(delta))
}
