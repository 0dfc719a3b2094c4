package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_streams_active",
		Help: "Open relayed event channels (NDJSON, SSE and WebSocket).",
	})

	eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_events_total",
		Help: "Events handed to relayed channels, by type.",
	}, []string{"type"})

	streamOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_stream_overflows_total",
		Help: "Channels closed because the consumer fell behind.",
	})

	smsDispatch = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sms_dispatch_total",
		Help: "SMS fallback attempts, by outcome.",
	}, []string{"outcome"})
)

// SMS dispatch outcomes.
const (
	SMSDelivered  = "delivered"
	SMSFailed     = "failed"
	SMSSuppressed = "suppressed"
)

func init() {
	prometheus.MustRegister(streamsActive, eventsTotal, streamOverflows, smsDispatch)
}

// StreamOpened and StreamClosed track relayed channel lifetimes.
func StreamOpened() { streamsActive.Inc() }
func StreamClosed() { streamsActive.Dec() }

// EventRelayed counts one event accepted into a channel queue.
func EventRelayed(eventType string) { eventsTotal.WithLabelValues(eventType).Inc() }

// StreamOverflowed counts a slow-consumer disconnect.
func StreamOverflowed() { streamOverflows.Inc() }

// SMSDispatched counts one SMS fallback outcome.
func SMSDispatched(outcome string) { smsDispatch.WithLabelValues(outcome).Inc() }
