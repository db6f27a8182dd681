package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logchat_realtime_events_total",
			Help: "Total number of real-time events by transport and direction.",
		},
		[]string{"transport", "direction", "event"},
	)
	transportConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logchat_realtime_connections",
			Help: "Number of open real-time transport connections.",
		},
		[]string{"transport"},
	)
	sessionsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logchat_sessions",
			Help: "Number of chat sessions in each lifecycle state.",
		},
		[]string{"state"},
	)
	transcriptAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logchat_transcript_appends_total",
			Help: "Total number of messages appended to transcripts by source.",
		},
		[]string{"source"},
	)
	droppedRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logchat_dropped_records_total",
			Help: "Total number of history packets and events dropped by reason.",
		},
		[]string{"reason"},
	)
	sendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logchat_send_failures_total",
			Help: "Total number of failed outbound sends by stage.",
		},
		[]string{"stage"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logchat_api_request_duration_seconds",
			Help:    "Backend API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		eventsTotal,
		transportConnections,
		sessionsByState,
		transcriptAppendsTotal,
		droppedRecordsTotal,
		sendFailuresTotal,
		httpRequestDuration,
	)
}

func IncEventEmitted(transport, event string) {
	eventsTotal.WithLabelValues(transport, "out", event).Inc()
}

func IncEventReceived(transport, event string) {
	eventsTotal.WithLabelValues(transport, "in", event).Inc()
}

func IncConnections(transport string) {
	transportConnections.WithLabelValues(transport).Inc()
}

func DecConnections(transport string) {
	transportConnections.WithLabelValues(transport).Dec()
}

// MoveSession records a session leaving one state for another. An empty from
// means the session is new.
func MoveSession(from, to string) {
	if from != "" {
		sessionsByState.WithLabelValues(from).Dec()
	}
	sessionsByState.WithLabelValues(to).Inc()
}

func IncAppend(source string) {
	transcriptAppendsTotal.WithLabelValues(source).Inc()
}

func IncDropped(reason string) {
	droppedRecordsTotal.WithLabelValues(reason).Inc()
}

func IncSendFailure(stage string) {
	sendFailuresTotal.WithLabelValues(stage).Inc()
}

func ObserveRequest(route string, status int, started time.Time) {
	httpRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(time.Since(started).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
