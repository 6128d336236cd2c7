package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.LoginAttempt("call procedure", "success")
		m.Login("table", true)
		m.Discovery("live")
		m.Resolution("matched", "barcode")
		m.Delivery("committed", false, 1, 1, 1)
		m.SessionOpened()
		m.SessionClosed()
	})
	assert.Nil(t, m.Registry())
	assert.NotNil(t, m.Handler())
}

func TestCounters(t *testing.T) {
	m := New()

	m.LoginAttempt("select by login+password", "no-match")
	m.LoginAttempt("select by login+password", "no-match")
	m.Login("table", false)
	m.Resolution("candidates", "name")
	m.Delivery("rolled_back", true, 2, 1, 3)
	m.SessionOpened()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues("select by login+password", "no-match")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues("table", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("candidates", "name")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("rolled_back", "true")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.deliveryLines.WithLabelValues("unresolved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.Discovery("static")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `ekaya_intake_schema_discoveries_total{tier="static"} 1`), body)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
