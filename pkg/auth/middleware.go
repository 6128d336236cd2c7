package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// Middleware provides HTTP session middleware.
// It is thin and delegates session lookup to SessionService.
type Middleware struct {
	sessions services.SessionService
	store    *SessionStore
	logger   *zap.Logger
}

// NewMiddleware creates session middleware.
func NewMiddleware(sessions services.SessionService, store *SessionStore, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{
		sessions: sessions,
		store:    store,
		logger:   logger,
	}
}

// RequireSession resolves the session cookie and holds the session lock for
// the duration of the request, so one operator's requests run one at a time
// on their connection.
func (m *Middleware) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := m.store.SessionID(r)
		if !ok {
			m.unauthorized(w, "Login required")
			return
		}

		sess, err := m.sessions.Get(id)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNoSession) {
				m.logger.Error("Session lookup failed", zap.Error(err))
			}
			m.unauthorized(w, "Session expired or logged out")
			return
		}

		sess.Lock()
		defer sess.Unlock()

		next(w, r.WithContext(WithSession(r.Context(), sess)))
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}
