package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger_LogsRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}

	entry := logs.All()[0]
	if entry.Message != "HTTP request" {
		t.Errorf("expected message 'HTTP request', got '%s'", entry.Message)
	}
	if entry.Level != zapcore.DebugLevel {
		t.Errorf("expected DEBUG for 200, got %s", entry.Level)
	}
	if got := entry.ContextMap()["bytes"]; got != int64(2) {
		t.Errorf("expected 2 bytes logged, got %v", got)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}
}

func TestRequestLogger_NilLogger_PassesThrough(t *testing.T) {
	called := false
	handler := RequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected handler to be called")
	}
}

func TestRequestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusCreated, zapcore.DebugLevel},
		{http.StatusUnauthorized, zapcore.InfoLevel},
		{http.StatusConflict, zapcore.InfoLevel},
		{http.StatusBadGateway, zapcore.WarnLevel},
	}
	for _, tt := range tests {
		core, logs := observer.New(zap.DebugLevel)
		handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/deliveries", nil))

		entry := logs.All()[0]
		if entry.Level != tt.level {
			t.Errorf("status %d: expected %s, got %s", tt.status, tt.level, entry.Level)
		}
		if got := entry.ContextMap()["status"]; got != int64(tt.status) {
			t.Errorf("expected status %d, got %v", tt.status, got)
		}
	}
}

func TestRequestLogger_KeepsIncomingRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("expected request id echoed, got %q", got)
	}
	if got := logs.All()[0].ContextMap()["request_id"]; got != "abc-123" {
		t.Errorf("expected request id logged, got %v", got)
	}
}
