package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	roomsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rooms_resolved_total",
			Help: "Total number of room resolutions, split by kind and whether a room was created.",
		},
		[]string{"kind", "created"},
	)
	messagesPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Total number of messages persisted.",
		},
		[]string{"transport"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	wsRoomSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_room_subscriptions",
			Help: "Number of (connection, room) subscriptions held by the hub.",
		},
	)
	wsBroadcastFanout = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_ws_broadcast_fanout",
			Help:    "Number of connections a room message was queued for.",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128},
		},
	)
	wsDroppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ws_dropped_frames_total",
			Help: "Frames dropped because a connection's send queue was full.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		roomsResolvedTotal,
		messagesPersistedTotal,
		wsActiveConnections,
		wsEventsTotal,
		wsRoomSubscriptions,
		wsBroadcastFanout,
		wsDroppedFramesTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncRoomResolved(kind string, created bool) {
	roomsResolvedTotal.WithLabelValues(kind, strconv.FormatBool(created)).Inc()
}

// IncMessagePersisted counts stored messages; transport is "http" or "ws".
func IncMessagePersisted(transport string) {
	messagesPersistedTotal.WithLabelValues(transport).Inc()
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

// AddWSSubscriptions moves the subscription gauge by delta.
func AddWSSubscriptions(delta int) {
	wsRoomSubscriptions.Add(float64(delta))
}

// ObserveBroadcast records one room broadcast: queued peers and dropped frames.
func ObserveBroadcast(queued, dropped int) {
	wsBroadcastFanout.Observe(float64(queued))
	wsDroppedFramesTotal.Add(float64(dropped))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
