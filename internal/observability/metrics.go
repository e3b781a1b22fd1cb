package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	realtimeConnections   prometheus.Gauge
	realtimeEventsTotal   *prometheus.CounterVec
	realtimeDroppedTotal  *prometheus.CounterVec
	realtimeRelayedTotal  *prometheus.CounterVec
	chatMessagesTotal     *prometheus.CounterVec
	notificationsTotal    *prometheus.CounterVec
	uploadLatencySeconds  prometheus.Histogram
	uploadRejectionsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the messaging API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newlearn_api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newlearn_api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newlearn_api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		realtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "newlearn_realtime_connections",
			Help: "Number of websocket connections currently attached to the hub.",
		})

		realtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newlearn_realtime_events_total",
			Help: "Events fanned out by the broadcaster, by event name.",
		}, []string{"event"})

		realtimeDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newlearn_realtime_dropped_total",
			Help: "Events dropped because a subscriber queue was full.",
		}, []string{"event"})

		realtimeRelayedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newlearn_realtime_relayed_total",
			Help: "Events received from other nodes, by transport.",
		}, []string{"transport"})

		chatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newlearn_chat_messages_total",
			Help: "Chat messages persisted, by kind.",
		}, []string{"kind"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newlearn_notifications_total",
			Help: "Notifications persisted and published, by type.",
		}, []string{"type"})

		uploadLatencySeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "newlearn_upload_latency_seconds",
			Help:    "Time spent storing chat media.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		})

		uploadRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newlearn_upload_rejections_total",
			Help: "Chat media uploads rejected, by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			realtimeConnections,
			realtimeEventsTotal,
			realtimeDroppedTotal,
			realtimeRelayedTotal,
			chatMessagesTotal,
			notificationsTotal,
			uploadLatencySeconds,
			uploadRejectionsTotal,
		)
	})
}

// APIRequests exposes the request counter.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the request latency histogram.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// RealtimeConnections exposes the live websocket gauge.
func RealtimeConnections() prometheus.Gauge {
	RegisterMetrics()
	return realtimeConnections
}

// RealtimeEvents exposes the fan-out counter.
func RealtimeEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeEventsTotal
}

// RealtimeDropped exposes the slow-consumer drop counter.
func RealtimeDropped() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeDroppedTotal
}

// RealtimeRelayed exposes the cross-node relay counter.
func RealtimeRelayed() *prometheus.CounterVec {
	RegisterMetrics()
	return realtimeRelayedTotal
}

// ChatMessagesSent exposes the persisted chat message counter.
func ChatMessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesTotal
}

// NotificationsPublished exposes the notification counter.
func NotificationsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return notificationsTotal
}

// UploadLatency exposes the media upload histogram.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatencySeconds
}

// UploadRejections exposes the media rejection counter.
func UploadRejections() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejectionsTotal
}
