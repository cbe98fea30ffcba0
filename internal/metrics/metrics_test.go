package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRouted(t *testing.T) {
	before := testutil.ToFloat64(messagesRouted.WithLabelValues(OutcomeBroadcast))
	RecordRouted(OutcomeBroadcast)
	RecordRouted(OutcomeBroadcast)
	after := testutil.ToFloat64(messagesRouted.WithLabelValues(OutcomeBroadcast))
	assert.Equal(t, before+2, after)
}

func TestRecordDropped(t *testing.T) {
	before := testutil.ToFloat64(eventsDropped.WithLabelValues(DropRateLimited))
	RecordDropped(DropRateLimited)
	assert.Equal(t, before+1, testutil.ToFloat64(eventsDropped.WithLabelValues(DropRateLimited)))
}

func TestConnectionsGauge(t *testing.T) {
	before := testutil.ToFloat64(connections)
	ConnectionOpened()
	ConnectionOpened()
	ConnectionClosed()
	assert.Equal(t, before+1, testutil.ToFloat64(connections))
	ConnectionClosed()
}

func TestSetLiveParticipants(t *testing.T) {
	SetLiveParticipants("agent", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(liveParticipants.WithLabelValues("agent")))
	SetLiveParticipants("agent", 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(liveParticipants.WithLabelValues("agent")))
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200"))
	RecordHTTPRequest("GET", "/health", http.StatusOK, 2*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200")))

	n := testutil.CollectAndCount(httpDuration)
	RecordHTTPRequest("GET", "/ws-upgrade-only", http.StatusSwitchingProtocols, time.Hour)
	assert.Equal(t, n, testutil.CollectAndCount(httpDuration))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordSendFailure()
	RecordAlert("sent")

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "deskchat_gateway_send_failures_total")
	assert.Contains(t, string(body), "deskchat_alert_notices_total")
}
