package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/metrics"
	"github.com/arjunyel/svix-webhooks/internal/model"
	"github.com/arjunyel/svix-webhooks/internal/queue"
	"github.com/arjunyel/svix-webhooks/internal/store"
)

const idempotencyTTL = 24 * time.Hour

// MessageHandler handles message ingestion and inspection requests
type MessageHandler struct {
	store        *store.Store
	queue        *queue.RedisQueue
	maxQueueSize int64
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(st *store.Store, q *queue.RedisQueue, maxQueueSize int64) *MessageHandler {
	return &MessageHandler{
		store:        st,
		queue:        q,
		maxQueueSize: maxQueueSize,
	}
}

// MessageRequest is the body for creating a message
type MessageRequest struct {
	EventType string            `json:"event_type"`
	EventID   string            `json:"event_id,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
	Channels  []string          `json:"channels,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Create handles POST /api/v1/app/{appID}/msg. The message is persisted
// and a fan-out task is enqueued; delivery happens asynchronously.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")

	if _, err := h.store.GetApplication(r.Context(), appID); err != nil {
		if errors.Is(err, model.ErrApplicationNotFound) {
			respondError(w, http.StatusNotFound, "application not found")
			return
		}
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to get application")
		respondError(w, http.StatusInternalServerError, "failed to create message")
		return
	}

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}

	// Check queue capacity (backpressure)
	if h.maxQueueSize > 0 {
		depths, err := h.queue.Depths(r.Context())
		if err == nil {
			var total int64
			for _, depth := range depths {
				total += depth
			}
			if total >= h.maxQueueSize {
				respondError(w, http.StatusServiceUnavailable, "queue at capacity")
				return
			}
		}
	}

	// Idempotent create: the same key returns the originally accepted
	// message instead of fanning out twice
	idempotencyKey := r.Header.Get("idempotency-key")
	if idempotencyKey != "" {
		key := h.idempotencyKey(appID, idempotencyKey)
		existingID, err := h.store.Client().Get(r.Context(), key).Result()
		if err == nil && existingID != "" {
			if existing, err := h.store.GetMessage(r.Context(), existingID); err == nil {
				respondJSON(w, http.StatusOK, existing)
				return
			}
		}
	}

	msg := model.NewMessage(appID, req.EventType, req.Payload)
	msg.EventID = req.EventID
	msg.Channels = req.Channels
	msg.Metadata = req.Metadata

	if err := h.store.CreateMessage(r.Context(), msg); err != nil {
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to store message")
		respondError(w, http.StatusInternalServerError, "failed to create message")
		return
	}

	if idempotencyKey != "" {
		h.store.Client().SetNX(r.Context(), h.idempotencyKey(appID, idempotencyKey), msg.ID, idempotencyTTL)
	}

	t := queue.NewMessageBatchTask(msg.ID, appID, "", model.TriggerScheduled)
	if err := h.queue.Send(r.Context(), t, queue.LaneMain); err != nil {
		logger.Error().Err(err).Str("msg_id", msg.ID).Msg("failed to enqueue fan-out")
		respondError(w, http.StatusInternalServerError, "failed to enqueue message")
		return
	}

	metrics.RecordMessageCreated(msg.EventType)
	logger.Info().
		Str("msg_id", msg.ID).
		Str("app_id", appID).
		Str("event_type", msg.EventType).
		Msg("message accepted")

	respondJSON(w, http.StatusAccepted, msg)
}

// Get handles GET /api/v1/app/{appID}/msg/{msgID}
func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, msg)
}

// ListAttempts handles GET /api/v1/app/{appID}/msg/{msgID}/attempt
func (h *MessageHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}

	attempts, err := h.store.ListAttempts(r.Context(), msg.ID)
	if err != nil {
		logger.Error().Err(err).Str("msg_id", msg.ID).Msg("failed to list attempts")
		respondError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}

	data := make([]interface{}, 0, len(attempts))
	for _, a := range attempts {
		data = append(data, a)
	}
	respondJSON(w, http.StatusOK, ListResponse{Data: data, Done: true})
}

// Resend handles POST /api/v1/app/{appID}/msg/{msgID}/endpoint/{endpointID}/resend.
// It enqueues a fresh manual delivery to one endpoint with a full retry
// budget.
func (h *MessageHandler) Resend(w http.ResponseWriter, r *http.Request) {
	msg, ok := h.loadMessage(w, r)
	if !ok {
		return
	}

	endpointID := chi.URLParam(r, "endpointID")
	ep, err := h.store.GetEndpoint(r.Context(), endpointID)
	if err != nil || ep.AppID != msg.AppID {
		respondError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	t := queue.NewMessageBatchTask(msg.ID, msg.AppID, ep.ID, model.TriggerManual)
	if err := h.queue.Send(r.Context(), t, queue.LaneMain); err != nil {
		logger.Error().Err(err).Str("msg_id", msg.ID).Msg("failed to enqueue resend")
		respondError(w, http.StatusInternalServerError, "failed to resend message")
		return
	}

	logger.Info().
		Str("msg_id", msg.ID).
		Str("endpoint_id", ep.ID).
		Msg("message resend enqueued")

	w.WriteHeader(http.StatusAccepted)
}

// loadMessage resolves the message named by the route, verifying it
// belongs to the application in the route.
func (h *MessageHandler) loadMessage(w http.ResponseWriter, r *http.Request) (*model.Message, bool) {
	appID := chi.URLParam(r, "appID")
	msgID := chi.URLParam(r, "msgID")

	msg, err := h.store.GetMessage(r.Context(), msgID)
	if err != nil {
		if errors.Is(err, model.ErrMessageNotFound) {
			respondError(w, http.StatusNotFound, "message not found")
			return nil, false
		}
		logger.Error().Err(err).Str("msg_id", msgID).Msg("failed to get message")
		respondError(w, http.StatusInternalServerError, "failed to get message")
		return nil, false
	}

	if msg.AppID != appID {
		respondError(w, http.StatusNotFound, "message not found")
		return nil, false
	}

	return msg, true
}

func (h *MessageHandler) idempotencyKey(appID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", appID, key)
}
