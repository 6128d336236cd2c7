// Package auth binds HTTP requests to operator sessions. An operator logs in
// against the accounting database; the resulting session id travels in a
// signed cookie and RequireSession puts the live session in the request
// context.
//
// Example usage in a handler:
//
//	func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
//	    sess, ok := auth.GetSession(r.Context())
//	    if !ok {
//	        // not behind RequireSession
//	    }
//	    results, stats, err := h.sessions.Resolve(r.Context(), sess, items, 0)
//	    // ...
//	}
package auth

import (
	"context"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

type contextKey string

// SessionContextKey holds the *services.Session of an authenticated request.
const SessionContextKey contextKey = "session"

// WithSession returns ctx carrying sess.
func WithSession(ctx context.Context, sess *services.Session) context.Context {
	return context.WithValue(ctx, SessionContextKey, sess)
}

// GetSession extracts the operator session from the context.
func GetSession(ctx context.Context) (*services.Session, bool) {
	sess, ok := ctx.Value(SessionContextKey).(*services.Session)
	return sess, ok && sess != nil
}

// RequireSessionFromContext returns apperrors.ErrNoSession when the context
// carries no session.
func RequireSessionFromContext(ctx context.Context) (*services.Session, error) {
	sess, ok := GetSession(ctx)
	if !ok {
		return nil, apperrors.ErrNoSession
	}
	return sess, nil
}

// GetUserIDFromContext returns the operator id, or "" when unauthenticated.
func GetUserIDFromContext(ctx context.Context) string {
	sess, ok := GetSession(ctx)
	if !ok || sess.Identity == nil {
		return ""
	}
	return sess.Identity.UserID
}
