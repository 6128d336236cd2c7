package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/config"
)

// ProfileResponse describes a connection profile without secrets.
type ProfileResponse struct {
	Name         string `json:"name"`
	Driver       string `json:"driver"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Database     string `json:"database"`
	PasswordOnly bool   `json:"password_only"`
}

// ListProfilesResponse wraps the profile list.
type ListProfilesResponse struct {
	Profiles []ProfileResponse `json:"profiles"`
}

// ProfilesHandler lists configured accounting databases.
type ProfilesHandler struct {
	profiles *config.ProfileRegistry
	logger   *zap.Logger
}

// NewProfilesHandler creates a profiles handler.
func NewProfilesHandler(profiles *config.ProfileRegistry, logger *zap.Logger) *ProfilesHandler {
	return &ProfilesHandler{profiles: profiles, logger: logger}
}

// RegisterRoutes registers the profiles handler's routes on the given mux.
func (h *ProfilesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/profiles", h.List)
}

// List handles GET /api/profiles
func (h *ProfilesHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.profiles.Names()
	response := ListProfilesResponse{Profiles: make([]ProfileResponse, 0, len(names))}
	for _, name := range names {
		p, err := h.profiles.Get(name)
		if err != nil {
			continue
		}
		response.Profiles = append(response.Profiles, ProfileResponse{
			Name:         p.Name,
			Driver:       p.Driver,
			Host:         p.Host,
			Port:         p.Port,
			Database:     p.Database,
			PasswordOnly: p.HasPasswordOnly(),
		})
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
