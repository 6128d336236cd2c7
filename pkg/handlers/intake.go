package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-intake/pkg/audit"
	"github.com/ekaya-inc/ekaya-intake/pkg/auth"
	"github.com/ekaya-inc/ekaya-intake/pkg/logging"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// ResolveRequest for POST /api/resolve.
type ResolveRequest struct {
	Items         []models.LineItem `json:"items"`
	MaxCandidates int               `json:"max_candidates,omitempty"`
}

// ResolveResponse pairs results with their line indexes.
type ResolveResponse struct {
	Results []*models.ResolutionResult `json:"results"`
	Stats   models.ResolutionStats     `json:"stats"`
}

// DeliveryRequest for POST /api/deliveries.
// Choices maps a line index to the catalog id picked for it from an earlier
// resolve. Lines with candidates and no choice are left unresolved.
type DeliveryRequest struct {
	Items   []models.LineItem `json:"items"`
	Choices map[string]string `json:"choices,omitempty"`
}

// IntakeHandler resolves invoice lines and pushes deliveries for the logged
// in operator.
type IntakeHandler struct {
	sessions services.SessionService
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewIntakeHandler creates an intake handler. auditor may be nil.
func NewIntakeHandler(sessions services.SessionService, auditor *audit.SecurityAuditor, logger *zap.Logger) *IntakeHandler {
	return &IntakeHandler{sessions: sessions, auditor: auditor, logger: logger}
}

// RegisterRoutes registers the intake handler's routes on the given mux.
func (h *IntakeHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/resolve", authMiddleware.RequireSession(h.Resolve))
	mux.HandleFunc("POST /api/deliveries", authMiddleware.RequireSession(h.PushDelivery))
}

// Resolve handles POST /api/resolve
func (h *IntakeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	sess, err := auth.RequireSessionFromContext(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	var req ResolveRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if !h.requireItems(w, req.Items) {
		return
	}
	h.screen(r, sess, req.Items)

	results, stats, err := h.sessions.Resolve(r.Context(), sess, req.Items, req.MaxCandidates)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ResolveResponse{Results: results, Stats: stats}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// PushDelivery handles POST /api/deliveries
func (h *IntakeHandler) PushDelivery(w http.ResponseWriter, r *http.Request) {
	sess, err := auth.RequireSessionFromContext(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	var req DeliveryRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if !h.requireItems(w, req.Items) {
		return
	}
	h.screen(r, sess, req.Items)

	summary, err := h.sessions.PushDelivery(r.Context(), sess, req.Items, PresetChooser(req.Choices))
	h.auditor.LogDeliveryPushed(r.Context(), sess.Profile.Name, summary, r.RemoteAddr)
	if err != nil {
		var writeErr *apperrors.WriteFailedError
		if errors.As(err, &writeErr) {
			if err := WriteJSON(w, http.StatusConflict, WriteFailedResponse{
				Error:   "write_failed",
				Message: logging.SanitizeError(writeErr),
				Index:   writeErr.Index,
				Summary: summary,
			}); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		writeServiceError(w, err, h.logger)
		return
	}

	status := http.StatusCreated
	if summary.DryRun {
		status = http.StatusOK
	}
	if err := WriteJSON(w, status, summary); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// screen reports injection-looking invoice text. Lines are still processed:
// every value reaches the database as a bound parameter.
func (h *IntakeHandler) screen(r *http.Request, sess *services.Session, items []models.LineItem) {
	if h.auditor == nil {
		return
	}
	h.auditor.LogSuspiciousInput(r.Context(), sess.Profile.Name, audit.ScreenLineItems(items), r.RemoteAddr)
}

func (h *IntakeHandler) requireItems(w http.ResponseWriter, items []models.LineItem) bool {
	if len(items) > 0 {
		return true
	}
	if err := ErrorResponse(w, http.StatusBadRequest, "missing_items", "At least one line item is required"); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
	return false
}

// PresetChooser answers candidate choices from a map of line index to catalog
// id. A missing or unknown id declines the line.
func PresetChooser(choices map[string]string) services.Chooser {
	return services.ChooserFunc(func(_ context.Context, index int, _ models.LineItem, candidates []models.Candidate) (*models.CatalogItem, error) {
		id, ok := choices[strconv.Itoa(index)]
		if !ok {
			return nil, nil
		}
		for _, c := range candidates {
			if c.Item.ID == id {
				item := c.Item
				return &item, nil
			}
		}
		return nil, nil
	})
}
