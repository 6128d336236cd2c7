package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/config"
	"github.com/ekaya-inc/ekaya-intake/pkg/services"
)

// DiagnosticsRequest for POST /api/diagnostics.
type DiagnosticsRequest struct {
	Profile    string `json:"profile"`
	Login      string `json:"login"`
	Password   string `json:"password"`
	ForceTable bool   `json:"force_table"`
}

// DiagnosticsHandler runs login diagnostics against a profile on a private
// connection. No session is created.
type DiagnosticsHandler struct {
	profiles    *config.ProfileRegistry
	diagnostics services.DiagnosticsService
	logger      *zap.Logger
}

// NewDiagnosticsHandler creates a diagnostics handler.
func NewDiagnosticsHandler(profiles *config.ProfileRegistry, diagnostics services.DiagnosticsService, logger *zap.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		profiles:    profiles,
		diagnostics: diagnostics,
		logger:      logger,
	}
}

// RegisterRoutes registers the diagnostics handler's routes on the given mux.
func (h *DiagnosticsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/diagnostics", h.Run)
}

// Run handles POST /api/diagnostics
// The report is JSON unless the client accepts text/plain. Failed logins are
// part of the report, not an error status.
func (h *DiagnosticsHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req DiagnosticsRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	profile, err := h.profiles.Get(req.Profile)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}

	report := h.diagnostics.Run(r.Context(), profile, req.Login, req.Password, req.ForceTable)

	if wantsText(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		services.RenderReport(w, report)
		return
	}
	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func wantsText(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/plain") && !strings.Contains(accept, "application/json")
}
