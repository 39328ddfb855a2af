// Package metrics provides Prometheus instrumentation for the chat relay:
// gauges for connection counts, counters for message throughput, and
// histograms for dispatch latency and fan-out size.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active chat connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "connect_connections_total",
		Help: "Current number of active chat connections",
	})

	// EventsTotal counts inbound wire events processed, labeled by event name.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_events_total",
		Help: "Total number of inbound wire events processed",
	}, []string{"event"})

	// EventErrors counts events rejected at the boundary (parse or validation
	// failures, rate limits), labeled by reason.
	EventErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connect_event_errors_total",
		Help: "Total number of rejected inbound events",
	}, []string{"reason"})

	// DispatchLatency records end-to-end handler latency in seconds.
	DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "connect_dispatch_latency_seconds",
		Help:    "Wire event handler latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// RoomFanout records how many local connections each room event was
	// delivered to.
	RoomFanout = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "connect_room_fanout",
		Help:    "Local connections reached per room event",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		EventsTotal,
		EventErrors,
		DispatchLatency,
		RoomFanout,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
