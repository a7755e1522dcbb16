package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the tracker.
	Registry = prometheus.NewRegistry()

	// HubState exposes the hub connection state (0 disconnected, 1 connecting,
	// 2 connected, 3 reconnecting).
	HubState = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "hub_connection_state", Help: "Current hub connection state."},
	)
	// ReconnectAttempts counts automatic reconnect attempts by outcome.
	ReconnectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hub_reconnect_attempts_total", Help: "Automatic reconnect attempts by outcome."},
		[]string{"outcome"},
	)
	// EventsReceived counts inbound hub events by event name.
	EventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hub_events_received_total", Help: "Inbound hub events by name."},
		[]string{"event"},
	)
	// LocationsSent counts outbound location pushes by result.
	LocationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hub_locations_sent_total", Help: "Outbound location pushes by result."},
		[]string{"result"},
	)
	// RouteSegments counts computed route segments by source.
	RouteSegments = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_segments_total", Help: "Computed route segments by source (provider, estimate, skipped)."},
		[]string{"source"},
	)
	// RouteComputeDuration tracks full batch computation time in seconds.
	RouteComputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "route_compute_duration_seconds", Help: "Route batch computation duration.", Buckets: prometheus.DefBuckets},
	)
)

// RegisterDefault registers collectors to the tracker registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HubState)
		Registry.MustRegister(ReconnectAttempts)
		Registry.MustRegister(EventsReceived)
		Registry.MustRegister(LocationsSent)
		Registry.MustRegister(RouteSegments)
		Registry.MustRegister(RouteComputeDuration)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
