package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// mockSessionService is a mock implementation of SessionService for testing.
type mockSessionService struct {
	services.SessionService
	sessions map[uuid.UUID]*services.Session
	getErr   error
}

func (m *mockSessionService) Get(id uuid.UUID) (*services.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.ErrNoSession
	}
	return sess, nil
}

func newSession() *services.Session {
	return &services.Session{
		ID:       uuid.New(),
		Identity: &models.OperatorIdentity{UserID: "7", Login: "KASA"},
	}
}

// cookieFor returns the cookie a store writes when binding id.
func cookieFor(t *testing.T, store *SessionStore, id uuid.UUID) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := store.Bind(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil), id); err != nil {
		t.Fatalf("bind: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	return cookies[0]
}

func TestMiddleware_RequireSession_Success(t *testing.T) {
	sess := newSession()
	store := NewSessionStore("test-secret", false)
	svc := &mockSessionService{sessions: map[uuid.UUID]*services.Session{sess.ID: sess}}
	middleware := NewMiddleware(svc, store, zap.NewNop())

	var ctxSession *services.Session
	var userID string
	handler := middleware.RequireSession(func(w http.ResponseWriter, r *http.Request) {
		ctxSession, _ = GetSession(r.Context())
		userID = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/resolve", nil)
	req.AddCookie(cookieFor(t, store, sess.ID))
	rec := httptest.NewRecorder()

	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ctxSession != sess {
		t.Error("expected session in context")
	}
	if userID != "7" {
		t.Errorf("expected user id 7, got %q", userID)
	}
}

func TestMiddleware_RequireSession_ReleasesLock(t *testing.T) {
	sess := newSession()
	store := NewSessionStore("test-secret", false)
	svc := &mockSessionService{sessions: map[uuid.UUID]*services.Session{sess.ID: sess}}
	handler := NewMiddleware(svc, store, nil).RequireSession(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/api/resolve", nil)
	req.AddCookie(cookieFor(t, store, sess.ID))
	handler(httptest.NewRecorder(), req)

	// Would deadlock if the middleware kept the lock.
	sess.Lock()
	sess.Unlock()
}

func TestMiddleware_RequireSession_Unauthorized(t *testing.T) {
	sess := newSession()
	store := NewSessionStore("test-secret", false)

	tests := []struct {
		name   string
		svc    *mockSessionService
		cookie *http.Cookie
	}{
		{"no cookie", &mockSessionService{}, nil},
		{"logged out", &mockSessionService{}, cookieFor(t, store, sess.ID)},
		{"lookup error", &mockSessionService{getErr: errors.New("boom")}, cookieFor(t, store, sess.ID)},
		{"foreign signature", &mockSessionService{sessions: map[uuid.UUID]*services.Session{sess.ID: sess}}, cookieFor(t, NewSessionStore("other", false), sess.ID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := NewMiddleware(tt.svc, store, zap.NewNop()).RequireSession(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})

			req := httptest.NewRequest(http.MethodPost, "/api/resolve", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)

			if called {
				t.Error("expected handler not to be called")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != "unauthorized" {
				t.Errorf("expected error 'unauthorized', got %q", body["error"])
			}
		})
	}
}

func TestRequireSessionFromContext(t *testing.T) {
	if _, err := RequireSessionFromContext(context.Background()); !errors.Is(err, apperrors.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}

	sess := newSession()
	got, err := RequireSessionFromContext(WithSession(context.Background(), sess))
	if err != nil || got != sess {
		t.Errorf("expected session back, got %v, %v", got, err)
	}
	if GetUserIDFromContext(context.Background()) != "" {
		t.Error("expected empty user id without session")
	}
}
