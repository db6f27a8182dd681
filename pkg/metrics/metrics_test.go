package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventCountersByDirection(t *testing.T) {
	out := eventsTotal.WithLabelValues("test", "out", "sendMessage")
	in := eventsTotal.WithLabelValues("test", "in", "receiveMessage")
	beforeOut, beforeIn := testutil.ToFloat64(out), testutil.ToFloat64(in)

	IncEventEmitted("test", "sendMessage")
	IncEventEmitted("test", "sendMessage")
	IncEventReceived("test", "receiveMessage")

	assert.Equal(t, beforeOut+2, testutil.ToFloat64(out))
	assert.Equal(t, beforeIn+1, testutil.ToFloat64(in))
}

func TestMoveSessionShiftsGauge(t *testing.T) {
	joining := sessionsByState.WithLabelValues("test-joining")
	active := sessionsByState.WithLabelValues("test-active")

	MoveSession("", "test-joining")
	assert.Equal(t, 1.0, testutil.ToFloat64(joining))

	MoveSession("test-joining", "test-active")
	assert.Equal(t, 0.0, testutil.ToFloat64(joining))
	assert.Equal(t, 1.0, testutil.ToFloat64(active))
}

func TestConnectionsGauge(t *testing.T) {
	g := transportConnections.WithLabelValues("test-conn")
	IncConnections("test-conn")
	IncConnections("test-conn")
	DecConnections("test-conn")
	assert.Equal(t, 1.0, testutil.ToFloat64(g))
}

func TestHandlerExposesCollectors(t *testing.T) {
	IncDropped("echo")
	IncAppend("history")
	IncSendFailure("persist")
	ObserveRequest("/messages", http.StatusOK, time.Now())

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "logchat_dropped_records_total")
	assert.Contains(t, body, "logchat_transcript_appends_total")
	assert.Contains(t, body, "logchat_send_failures_total")
	assert.Contains(t, body, "logchat_api_request_duration_seconds")
}
