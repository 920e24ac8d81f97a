package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/model"
	"github.com/arjunyel/svix-webhooks/internal/store"
)

// ApplicationHandler handles application CRUD requests
type ApplicationHandler struct {
	store *store.Store
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(st *store.Store) *ApplicationHandler {
	return &ApplicationHandler{store: st}
}

// ApplicationRequest is the body for creating or updating an application
type ApplicationRequest struct {
	Name      string `json:"name"`
	UID       string `json:"uid,omitempty"`
	RateLimit int    `json:"rate_limit,omitempty"`
}

// Create handles POST /api/v1/app
func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	app := model.NewApplication(req.Name, req.UID)
	app.RateLimit = req.RateLimit

	if err := h.store.CreateApplication(r.Context(), app); err != nil {
		if errors.Is(err, model.ErrUIDConflict) {
			respondError(w, http.StatusConflict, "uid already taken")
			return
		}
		logger.Error().Err(err).Msg("failed to create application")
		respondError(w, http.StatusInternalServerError, "failed to create application")
		return
	}

	logger.Info().Str("app_id", app.ID).Str("name", app.Name).Msg("application created")
	respondJSON(w, http.StatusCreated, app)
}

// Get handles GET /api/v1/app/{appID}
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	app, err := h.store.GetApplication(r.Context(), appID)
	if err != nil {
		if errors.Is(err, model.ErrApplicationNotFound) {
			// Fall back to UID lookup
			app, err = h.store.GetApplicationByUID(r.Context(), appID)
			if err == nil {
				respondJSON(w, http.StatusOK, app)
				return
			}
			respondError(w, http.StatusNotFound, "application not found")
			return
		}
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to get application")
		respondError(w, http.StatusInternalServerError, "failed to get application")
		return
	}

	respondJSON(w, http.StatusOK, app)
}

// Update handles PUT /api/v1/app/{appID}
func (h *ApplicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	app, err := h.store.GetApplication(r.Context(), appID)
	if err != nil {
		if errors.Is(err, model.ErrApplicationNotFound) {
			respondError(w, http.StatusNotFound, "application not found")
			return
		}
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to get application")
		respondError(w, http.StatusInternalServerError, "failed to update application")
		return
	}

	var req ApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		app.Name = req.Name
	}
	app.RateLimit = req.RateLimit

	if err := h.store.UpdateApplication(r.Context(), app); err != nil {
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to update application")
		respondError(w, http.StatusInternalServerError, "failed to update application")
		return
	}

	respondJSON(w, http.StatusOK, app)
}

// Delete handles DELETE /api/v1/app/{appID}
func (h *ApplicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	if err := h.store.DeleteApplication(r.Context(), appID); err != nil {
		if errors.Is(err, model.ErrApplicationNotFound) {
			respondError(w, http.StatusNotFound, "application not found")
			return
		}
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to delete application")
		respondError(w, http.StatusInternalServerError, "failed to delete application")
		return
	}

	logger.Info().Str("app_id", appID).Msg("application deleted")
	w.WriteHeader(http.StatusNoContent)
}

// ListResponse wraps a list payload the way the public API shapes
// list results.
type ListResponse struct {
	Data []interface{} `json:"data"`
	Done bool          `json:"done"`
}

// List handles GET /api/v1/app
func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	apps, err := h.store.ListApplications(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to list applications")
		respondError(w, http.StatusInternalServerError, "failed to list applications")
		return
	}

	data := make([]interface{}, 0, len(apps))
	for _, app := range apps {
		data = append(data, app)
	}
	respondJSON(w, http.StatusOK, ListResponse{Data: data, Done: true})
}
