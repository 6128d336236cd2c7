package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/testhelpers"
)

func TestDiagnosticsHandler_JSON(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodPost, "/api/diagnostics", DiagnosticsRequest{
		Profile:  "shop",
		Login:    testhelpers.SkladLogin,
		Password: testhelpers.SkladPassword,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeBody[models.DiagnosticReport](t, rec)
	assert.True(t, report.Success)
	assert.Equal(t, "shop", report.Profile)
	assert.Equal(t, models.LoginMechanismTable, report.Mechanism)
	assert.Equal(t, "4", report.Identity.UserID)
	assert.Equal(t, 0, srv.connMgr.GetStats().TotalConnections, "diagnostics release their connection")
}

func TestDiagnosticsHandler_FailedLoginIsStillOK(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodPost, "/api/diagnostics", DiagnosticsRequest{Profile: "shop", Login: "NOBODY", Password: "x"})

	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[models.DiagnosticReport](t, rec)
	assert.False(t, report.Success)
	assert.NotEmpty(t, report.Error)
	assert.NotEmpty(t, report.Trace)
}

func TestDiagnosticsHandler_Text(t *testing.T) {
	srv := newTestServer(t, true)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(DiagnosticsRequest{Profile: "shop", Login: testhelpers.AdminLogin, Password: testhelpers.AdminPassword, ForceTable: true}))
	req := httptest.NewRequest(http.MethodPost, "/api/diagnostics", &buf)
	req.Header.Set("Accept", "text/plain")
	rec := httptest.NewRecorder()

	srv.mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "Login diagnostics")
	assert.Contains(t, rec.Body.String(), models.StrategyPlainTable)
}

func TestDiagnosticsHandler_UnknownProfile(t *testing.T) {
	srv := newTestServer(t, true)

	rec := srv.do(t, http.MethodPost, "/api/diagnostics", DiagnosticsRequest{Profile: "office"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
