package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iiifload/internal/outcome"
)

func TestCollectorObserve(t *testing.T) {
	c := NewCollector()

	c.Observe(outcome.Event{Task: "infoJson", Name: "info.json", Elapsed: 50 * time.Millisecond, Bytes: 512}, outcome.Success)
	c.Observe(outcome.Event{Task: "infoJson", Name: "info.json", Elapsed: 80 * time.Millisecond}, outcome.Success)
	c.Observe(outcome.Event{Task: "fullImage", Name: "Full/full image request", Elapsed: 2 * time.Second}, outcome.Slow)
	c.Observe(outcome.Event{Task: "fullImage", Name: "Full/full image request", Err: errors.New("refused")}, outcome.Failure)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.requestsTotal.WithLabelValues("infoJson", "info.json", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.requestsTotal.WithLabelValues("fullImage", "Full/full image request", "slow")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.requestsTotal.WithLabelValues("fullImage", "Full/full image request", "failure")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.requestDuration))
}

func TestCollectorGauges(t *testing.T) {
	c := NewCollector()

	c.UserStarted()
	c.UserStarted()
	c.UserStopped()
	c.RequestStarted()

	assert.Equal(t, float64(1), testutil.ToFloat64(c.activeUsers))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.inflight))

	c.RequestDone()
	assert.Equal(t, float64(0), testutil.ToFloat64(c.inflight))
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.Observe(outcome.Event{Task: "grayScale", Name: "Full image gray scale", Elapsed: time.Millisecond}, outcome.Success)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(out, `iiifload_requests_total{name="Full image gray scale",outcome="success",task="grayScale"} 1`), out)
	assert.Contains(t, out, "iiifload_request_duration_seconds_bucket")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector()
	b := NewCollector()
	a.UserStarted()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.activeUsers))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.activeUsers))
}
