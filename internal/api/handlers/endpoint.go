package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/arjunyel/svix-webhooks/internal/events"
	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/model"
	"github.com/arjunyel/svix-webhooks/internal/store"
)

// EndpointHandler handles endpoint CRUD requests
type EndpointHandler struct {
	store     *store.Store
	publisher events.Publisher
}

// NewEndpointHandler creates a new endpoint handler
func NewEndpointHandler(st *store.Store, pub events.Publisher) *EndpointHandler {
	return &EndpointHandler{
		store:     st,
		publisher: pub,
	}
}

// EndpointRequest is the body for creating or updating an endpoint
type EndpointRequest struct {
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
	FilterTypes []string `json:"filter_types,omitempty"`
}

// EndpointSecretResponse is the body returned by GetSecret
type EndpointSecretResponse struct {
	Key string `json:"key"`
}

// generateSecret returns a fresh "whsec_"-prefixed signing secret.
func generateSecret() (string, error) {
	key := make([]byte, 24)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return "whsec_" + base64.StdEncoding.EncodeToString(key), nil
}

// Create handles POST /api/v1/app/{appID}/endpoint
func (h *EndpointHandler) Create(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	if _, err := h.store.GetApplication(r.Context(), appID); err != nil {
		if errors.Is(err, model.ErrApplicationNotFound) {
			respondError(w, http.StatusNotFound, "application not found")
			return
		}
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to get application")
		respondError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	var req EndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := url.ParseRequestURI(req.URL); err != nil {
		respondError(w, http.StatusBadRequest, "a valid url is required")
		return
	}

	secret, err := generateSecret()
	if err != nil {
		logger.Error().Err(err).Msg("failed to generate endpoint secret")
		respondError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	ep := model.NewEndpoint(appID, req.URL, secret, req.Description, req.FilterTypes)
	ep.Disabled = req.Disabled

	if err := h.store.CreateEndpoint(r.Context(), ep); err != nil {
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to create endpoint")
		respondError(w, http.StatusInternalServerError, "failed to create endpoint")
		return
	}

	h.publishEvent(r, events.EventEndpointCreated, ep)

	logger.Info().
		Str("endpoint_id", ep.ID).
		Str("app_id", appID).
		Str("url", ep.URL).
		Msg("endpoint created")

	respondJSON(w, http.StatusCreated, ep)
}

// Get handles GET /api/v1/app/{appID}/endpoint/{endpointID}
func (h *EndpointHandler) Get(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, ep)
}

// GetSecret handles GET /api/v1/app/{appID}/endpoint/{endpointID}/secret
func (h *EndpointHandler) GetSecret(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, EndpointSecretResponse{Key: ep.Secret})
}

// RotateSecret handles POST /api/v1/app/{appID}/endpoint/{endpointID}/secret/rotate.
// Deliveries signed before the rotation will fail verification against
// the new key; consumers should fetch the secret again.
func (h *EndpointHandler) RotateSecret(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}

	secret, err := generateSecret()
	if err != nil {
		logger.Error().Err(err).Msg("failed to generate endpoint secret")
		respondError(w, http.StatusInternalServerError, "failed to rotate secret")
		return
	}

	ep.Secret = secret
	if err := h.store.UpdateEndpoint(r.Context(), ep); err != nil {
		logger.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to rotate secret")
		respondError(w, http.StatusInternalServerError, "failed to rotate secret")
		return
	}

	logger.Info().Str("endpoint_id", ep.ID).Msg("endpoint secret rotated")
	respondJSON(w, http.StatusOK, EndpointSecretResponse{Key: ep.Secret})
}

// Update handles PUT /api/v1/app/{appID}/endpoint/{endpointID}
func (h *EndpointHandler) Update(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}

	var req EndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL != "" {
		if _, err := url.ParseRequestURI(req.URL); err != nil {
			respondError(w, http.StatusBadRequest, "a valid url is required")
			return
		}
		ep.URL = req.URL
	}
	ep.Description = req.Description
	ep.Disabled = req.Disabled
	ep.FilterTypes = req.FilterTypes

	if err := h.store.UpdateEndpoint(r.Context(), ep); err != nil {
		logger.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to update endpoint")
		respondError(w, http.StatusInternalServerError, "failed to update endpoint")
		return
	}

	h.publishEvent(r, events.EventEndpointUpdated, ep)
	respondJSON(w, http.StatusOK, ep)
}

// Delete handles DELETE /api/v1/app/{appID}/endpoint/{endpointID}
func (h *EndpointHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ep, ok := h.loadEndpoint(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteEndpoint(r.Context(), ep.AppID, ep.ID); err != nil {
		logger.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to delete endpoint")
		respondError(w, http.StatusInternalServerError, "failed to delete endpoint")
		return
	}

	h.publishEvent(r, events.EventEndpointDeleted, ep)

	logger.Info().Str("endpoint_id", ep.ID).Msg("endpoint deleted")
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/app/{appID}/endpoint
func (h *EndpointHandler) List(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	eps, err := h.store.ListEndpoints(r.Context(), appID)
	if err != nil {
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to list endpoints")
		respondError(w, http.StatusInternalServerError, "failed to list endpoints")
		return
	}

	data := make([]interface{}, 0, len(eps))
	for _, ep := range eps {
		data = append(data, ep)
	}
	respondJSON(w, http.StatusOK, ListResponse{Data: data, Done: true})
}

// loadEndpoint resolves the endpoint named by the route, verifying it
// belongs to the application in the route. Writes the error response
// itself when resolution fails.
func (h *EndpointHandler) loadEndpoint(w http.ResponseWriter, r *http.Request) (*model.Endpoint, bool) {
	appID := chi.URLParam(r, "appID")
	endpointID := chi.URLParam(r, "endpointID")

	ep, err := h.store.GetEndpoint(r.Context(), endpointID)
	if err != nil {
		if errors.Is(err, model.ErrEndpointNotFound) {
			respondError(w, http.StatusNotFound, "endpoint not found")
			return nil, false
		}
		logger.Error().Err(err).Str("endpoint_id", endpointID).Msg("failed to get endpoint")
		respondError(w, http.StatusInternalServerError, "failed to get endpoint")
		return nil, false
	}

	if ep.AppID != appID {
		respondError(w, http.StatusNotFound, "endpoint not found")
		return nil, false
	}

	return ep, true
}

func (h *EndpointHandler) publishEvent(r *http.Request, eventType events.EventType, ep *model.Endpoint) {
	if h.publisher == nil {
		return
	}
	event := events.NewEvent(eventType, events.EndpointEventData(ep.ID, ep.AppID))
	if err := h.publisher.Publish(r.Context(), event); err != nil {
		logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to publish endpoint event")
	}
}
