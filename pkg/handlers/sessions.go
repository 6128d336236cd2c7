package handlers

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/audit"
	"github.com/ekaya-inc/ekaya-intake/pkg/auth"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// LoginRequest for POST /api/sessions.
type LoginRequest struct {
	Profile  string `json:"profile"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

// SessionResponse describes an open operator session.
type SessionResponse struct {
	SessionID string                   `json:"session_id"`
	Profile   string                   `json:"profile"`
	Identity  *models.OperatorIdentity `json:"identity"`
	Mechanism models.LoginMechanism    `json:"mechanism"`
	Tier      models.DiscoveryTier     `json:"tier"`
	Degraded  bool                     `json:"degraded"`
	DryRun    bool                     `json:"dry_run"`
	Trace     []models.LoginAttempt    `json:"trace"`
	CreatedAt string                   `json:"created_at"`
}

// SessionsHandler handles operator login and logout.
type SessionsHandler struct {
	sessions services.SessionService
	store    *auth.SessionStore
	auditor  *audit.SecurityAuditor
	dryRun   bool
	logger   *zap.Logger
}

// NewSessionsHandler creates a sessions handler. dryRun is reported to clients
// so they can warn that pushes will not persist. auditor may be nil.
func NewSessionsHandler(sessions services.SessionService, store *auth.SessionStore, auditor *audit.SecurityAuditor, dryRun bool, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{
		sessions: sessions,
		store:    store,
		auditor:  auditor,
		dryRun:   dryRun,
		logger:   logger,
	}
}

// RegisterRoutes registers the sessions handler's routes on the given mux.
func (h *SessionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/sessions", h.Login)
	mux.HandleFunc("GET /api/sessions/current", authMiddleware.RequireSession(h.Current))
	// Logout takes the session lock itself and must not run under RequireSession.
	mux.HandleFunc("DELETE /api/sessions/current", h.Logout)
}

// Login handles POST /api/sessions
func (h *SessionsHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	// Login may be empty: password-only overrides ignore it.
	if req.Profile == "" || req.Password == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_credentials", "Profile and password are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	sess, err := h.sessions.Login(r.Context(), req.Profile, req.Login, req.Password)
	if err != nil {
		var authErr *apperrors.AuthenticationFailedError
		if errors.As(err, &authErr) {
			h.auditor.LogLoginFailure(req.Profile, req.Login, authErr.Trace.Len(), r.RemoteAddr)
		} else if !errors.Is(err, apperrors.ErrProfileNotFound) {
			h.logger.Warn("Login failed",
				zap.String("profile", req.Profile),
				zap.Error(err))
			if err := ErrorResponse(w, http.StatusBadGateway, "connection_failed", "Could not reach the accounting database"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		writeServiceError(w, err, h.logger)
		return
	}

	if err := h.store.Bind(w, r, sess.ID); err != nil {
		h.logger.Error("Failed to bind session cookie", zap.Error(err))
		_ = h.sessions.Logout(sess.ID)
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to create session"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	h.auditor.LogLogin(sess.Profile.Name, sess.Identity, sess.Schema.Mechanism, r.RemoteAddr)

	if err := WriteJSON(w, http.StatusCreated, h.toResponse(sess)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Current handles GET /api/sessions/current
func (h *SessionsHandler) Current(w http.ResponseWriter, r *http.Request) {
	sess, err := auth.RequireSessionFromContext(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	if err := WriteJSON(w, http.StatusOK, h.toResponse(sess)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Logout handles DELETE /api/sessions/current
// Always clears the cookie; a session that already expired is not an error.
func (h *SessionsHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if id, ok := h.store.SessionID(r); ok {
		if err := h.sessions.Logout(id); err != nil && !errors.Is(err, apperrors.ErrNoSession) {
			h.logger.Error("Logout failed", zap.String("session_id", id.String()), zap.Error(err))
		}
	}
	if err := h.store.Clear(w, r); err != nil {
		h.logger.Error("Failed to clear session cookie", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionsHandler) toResponse(sess *services.Session) SessionResponse {
	return SessionResponse{
		SessionID: sess.ID.String(),
		Profile:   sess.Profile.Name,
		Identity:  sess.Identity,
		Mechanism: sess.Schema.Mechanism,
		Tier:      sess.Schema.Tier,
		Degraded:  sess.Schema.Degraded,
		DryRun:    h.dryRun,
		Trace:     sess.Trace.Attempts(),
		CreatedAt: sess.CreatedAt.Format(time.RFC3339),
	}
}
