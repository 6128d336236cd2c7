package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-intake/pkg/audit"
	"github.com/ekaya-inc/ekaya-intake/pkg/auth"
	"github.com/ekaya-inc/ekaya-intake/pkg/config"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
	"github.com/ekaya-inc/ekaya-intake/pkg/testhelpers"
)

type testServer struct {
	mux      *http.ServeMux
	fixture  *testhelpers.MistralFixture
	sessions services.SessionService
	connMgr  *datasource.ConnectionManager
	audit    *observer.ObservedLogs
}

// newTestServer wires every handler against a seeded SQLite Mistral database.
func newTestServer(t *testing.T, dryRun bool) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	fixture := testhelpers.NewMistralFixture(t)

	profiles, err := config.NewProfileRegistry(&config.Profile{
		Name:       "shop",
		Driver:     config.DriverSQLite,
		Database:   fixture.Path,
		LocationID: 2,
		StorageID:  1,
		PasswordOnly: map[string]config.PasswordOnlyEntry{
			"0000": {Username: "CASHIER", ID: "4"},
		},
	})
	require.NoError(t, err)

	cfg := &config.Config{Version: "test", Env: "test", Delivery: config.DeliveryConfig{EnableWrites: !dryRun}}

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, logger)
	t.Cleanup(func() { connMgr.Close() })
	factory := datasource.NewDatasourceAdapterFactory(connMgr)

	validator := services.NewCredentialValidator(nil, logger)
	resolver := services.NewItemResolver(services.ResolverOptions{}, nil, logger)
	writer := services.NewDeliveryWriter(resolver, services.DeliveryOptions{DryRun: cfg.DryRun()}, nil, logger)
	sessionService := services.NewSessionService(profiles, factory, validator, resolver, writer, nil, logger)
	t.Cleanup(func() { sessionService.Close() })

	store := auth.NewSessionStore("test-secret", false)
	authMiddleware := auth.NewMiddleware(sessionService, store, logger)
	auditCore, auditLogs := observer.New(zapcore.InfoLevel)
	auditor := audit.NewSecurityAuditor(zap.New(auditCore))

	mux := http.NewServeMux()
	NewHealthHandler(cfg, connMgr, logger).RegisterRoutes(mux)
	NewProfilesHandler(profiles, logger).RegisterRoutes(mux)
	NewSessionsHandler(sessionService, store, auditor, cfg.DryRun(), logger).RegisterRoutes(mux, authMiddleware)
	NewIntakeHandler(sessionService, auditor, logger).RegisterRoutes(mux, authMiddleware)
	NewDiagnosticsHandler(profiles, services.NewDiagnosticsService(factory, validator, logger), logger).RegisterRoutes(mux)

	return &testServer{mux: mux, fixture: fixture, sessions: sessionService, connMgr: connMgr, audit: auditLogs}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

// login opens a session and returns its cookie.
func (s *testServer) login(t *testing.T, login, password string) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/sessions", LoginRequest{Profile: "shop", Login: login, Password: password})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionName {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

// auditEvents returns the audit log messages recorded so far.
func (s *testServer) auditEvents() []string {
	var out []string
	for _, e := range s.audit.All() {
		out = append(out, e.Message)
	}
	return out
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}
