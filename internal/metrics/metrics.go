// Package metrics exposes Prometheus collectors for the chat core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deskchat"

// Routing outcomes recorded by RecordRouted.
const (
	OutcomeDirect     = "direct"
	OutcomeBroadcast  = "broadcast"
	OutcomeStoredOnly = "stored_only"
	OutcomeToCustomer = "to_customer"
)

// Drop reasons recorded by RecordDropped.
const (
	DropNotRegistered       = "not_registered"
	DropUnknownConversation = "unknown_conversation"
	DropStorageExhausted    = "storage_exhausted"
	DropRateLimited         = "rate_limited"
	DropInvalidPayload      = "invalid_payload"
	DropUnsupportedRole     = "unsupported_role"
	DropUnknownEvent        = "unknown_event"
	DropSendBufferFull      = "send_buffer_full"
)

var (
	// Registry holds the deskchat collectors. It is separate from the
	// default registry so tests can scrape it in isolation.
	Registry = prometheus.NewRegistry()

	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "connections",
			Help:      "Current number of open WebSocket connections.",
		},
	)

	liveParticipants = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "presence",
			Name:      "live_participants",
			Help:      "Participants with a live binding, by role.",
		},
		[]string{"role"},
	)

	messagesRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "messages_total",
			Help:      "Chat messages stored and routed, by delivery outcome.",
		},
		[]string{"outcome"},
	)

	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "dropped_events_total",
			Help:      "Inbound or outbound events dropped, by reason.",
		},
		[]string{"reason"},
	)

	sendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "send_failures_total",
			Help:      "Outbound frames that failed to write to the socket.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of plain HTTP requests. Upgraded sockets are not observed.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"route"},
	)

	hookFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hooks",
			Name:      "failures_total",
			Help:      "Hook handlers that returned an error or panicked, by event.",
		},
		[]string{"event"},
	)

	alertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "notices_total",
			Help:      "Unattended-customer alerts, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		connections,
		liveParticipants,
		messagesRouted,
		eventsDropped,
		sendFailures,
		httpRequests,
		httpDuration,
		hookFailures,
		alertsSent,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ConnectionOpened increments the open connection gauge.
func ConnectionOpened() { connections.Inc() }

// ConnectionClosed decrements the open connection gauge.
func ConnectionClosed() { connections.Dec() }

// SetLiveParticipants records the size of a presence view.
func SetLiveParticipants(role string, n int) {
	liveParticipants.WithLabelValues(role).Set(float64(n))
}

// RecordRouted counts one routed chat message.
func RecordRouted(outcome string) {
	messagesRouted.WithLabelValues(outcome).Inc()
}

// RecordDropped counts one dropped event.
func RecordDropped(reason string) {
	eventsDropped.WithLabelValues(reason).Inc()
}

// RecordSendFailure counts one failed socket write.
func RecordSendFailure() { sendFailures.Inc() }

// RecordHookFailure counts one failed hook handler.
func RecordHookFailure(event string) {
	hookFailures.WithLabelValues(event).Inc()
}

// RecordAlert counts one alert attempt. result is "sent", "throttled" or "failed".
func RecordAlert(result string) {
	alertsSent.WithLabelValues(result).Inc()
}

// RecordHTTPRequest counts one HTTP request. Requests that switched
// protocols are counted but their duration is the socket lifetime, so it
// is not observed.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	if status != http.StatusSwitchingProtocols {
		httpDuration.WithLabelValues(route).Observe(d.Seconds())
	}
}
