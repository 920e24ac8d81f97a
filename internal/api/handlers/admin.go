package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/arjunyel/svix-webhooks/internal/dispatch"
	"github.com/arjunyel/svix-webhooks/internal/events"
	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/metrics"
	"github.com/arjunyel/svix-webhooks/internal/queue"
)

// AdminHandler handles admin API requests
type AdminHandler struct {
	queue     *queue.RedisQueue
	dlq       *queue.DLQ
	publisher events.Publisher
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(q *queue.RedisQueue, dlq *queue.DLQ, publisher events.Publisher) *AdminHandler {
	return &AdminHandler{
		queue:     q,
		dlq:       dlq,
		publisher: publisher,
	}
}

// ListDispatchers handles GET /admin/dispatchers
func (h *AdminHandler) ListDispatchers(w http.ResponseWriter, r *http.Request) {
	dispatchers, err := dispatch.GetActiveDispatchers(r.Context(), h.queue.Client())
	if err != nil {
		logger.Error().Err(err).Msg("failed to get active dispatchers")
		respondError(w, http.StatusInternalServerError, "failed to get dispatchers")
		return
	}

	metrics.SetActiveDispatchers(float64(len(dispatchers)))

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dispatchers": dispatchers,
		"count":       len(dispatchers),
	})
}

// GetDispatcher handles GET /admin/dispatchers/{dispatcherID}
func (h *AdminHandler) GetDispatcher(w http.ResponseWriter, r *http.Request) {
	dispatcherID := chi.URLParam(r, "dispatcherID")
	if dispatcherID == "" {
		respondError(w, http.StatusBadRequest, "dispatcher ID is required")
		return
	}

	alive, err := dispatch.IsDispatcherAlive(r.Context(), h.queue.Client(), dispatcherID)
	if err != nil {
		logger.Error().Err(err).Str("dispatcher_id", dispatcherID).Msg("failed to check dispatcher status")
		respondError(w, http.StatusInternalServerError, "failed to get dispatcher")
		return
	}

	if !alive {
		respondError(w, http.StatusNotFound, "dispatcher not found or not active")
		return
	}

	dispatchers, err := dispatch.GetActiveDispatchers(r.Context(), h.queue.Client())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get dispatcher details")
		return
	}

	for _, d := range dispatchers {
		if d.ID == dispatcherID {
			respondJSON(w, http.StatusOK, d)
			return
		}
	}

	respondError(w, http.StatusNotFound, "dispatcher not found")
}

// PauseDispatcher handles POST /admin/dispatchers/{dispatcherID}/pause
func (h *AdminHandler) PauseDispatcher(w http.ResponseWriter, r *http.Request) {
	dispatcherID, ok := h.requireAliveDispatcher(w, r)
	if !ok {
		return
	}

	if err := dispatch.PauseDispatcher(r.Context(), h.queue.Client(), dispatcherID); err != nil {
		logger.Error().Err(err).Str("dispatcher_id", dispatcherID).Msg("failed to pause dispatcher")
		respondError(w, http.StatusInternalServerError, "failed to pause dispatcher")
		return
	}

	logger.Info().Str("dispatcher_id", dispatcherID).Msg("dispatcher paused")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "dispatcher paused",
		"dispatcher_id": dispatcherID,
	})
}

// ResumeDispatcher handles POST /admin/dispatchers/{dispatcherID}/resume
func (h *AdminHandler) ResumeDispatcher(w http.ResponseWriter, r *http.Request) {
	dispatcherID, ok := h.requireAliveDispatcher(w, r)
	if !ok {
		return
	}

	if err := dispatch.ResumeDispatcher(r.Context(), h.queue.Client(), dispatcherID); err != nil {
		logger.Error().Err(err).Str("dispatcher_id", dispatcherID).Msg("failed to resume dispatcher")
		respondError(w, http.StatusInternalServerError, "failed to resume dispatcher")
		return
	}

	logger.Info().Str("dispatcher_id", dispatcherID).Msg("dispatcher resumed")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "dispatcher resumed",
		"dispatcher_id": dispatcherID,
	})
}

func (h *AdminHandler) requireAliveDispatcher(w http.ResponseWriter, r *http.Request) (string, bool) {
	dispatcherID := chi.URLParam(r, "dispatcherID")
	if dispatcherID == "" {
		respondError(w, http.StatusBadRequest, "dispatcher ID is required")
		return "", false
	}

	alive, err := dispatch.IsDispatcherAlive(r.Context(), h.queue.Client(), dispatcherID)
	if err != nil {
		logger.Error().Err(err).Str("dispatcher_id", dispatcherID).Msg("failed to check dispatcher status")
		respondError(w, http.StatusInternalServerError, "failed to check dispatcher status")
		return "", false
	}
	if !alive {
		respondError(w, http.StatusNotFound, "dispatcher not found or not active")
		return "", false
	}

	return dispatcherID, true
}

// GetQueues handles GET /admin/queues
func (h *AdminHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	depths, err := h.queue.Depths(r.Context())
	if err != nil {
		logger.Error().Err(err).Msg("failed to get queue depths")
		respondError(w, http.StatusInternalServerError, "failed to get queue statistics")
		return
	}

	var total int64
	laneStats := make(map[string]int64)
	for lane, depth := range depths {
		laneStats[lane.String()] = depth
		total += depth
		metrics.UpdateQueueDepth(lane.String(), float64(depth))
	}

	scheduled, _ := queue.GetScheduledCount(r.Context(), h.queue.Client())
	dlqSize, _ := h.dlq.Size(r.Context())
	metrics.SetDLQSize(float64(dlqSize))

	h.publishQueueDepth(r.Context(), laneStats)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"lanes":             laneStats,
		"total_pending":     total,
		"scheduled_retries": scheduled,
		"dlq_size":          dlqSize,
	})
}

// publishQueueDepth feeds the observed lane depths to the operational
// event feed.
func (h *AdminHandler) publishQueueDepth(ctx context.Context, depths map[string]int64) {
	if h.publisher == nil {
		return
	}

	event := events.NewEvent(events.EventQueueDepth, events.QueueDepthData(depths))
	if err := h.publisher.Publish(ctx, event); err != nil {
		logger.Debug().Err(err).Msg("failed to publish queue depth event")
	}
}

// ListDLQ handles GET /admin/dlq
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	entries, err := h.dlq.List(r.Context(), 100)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list DLQ")
		respondError(w, http.StatusInternalServerError, "failed to list DLQ")
		return
	}

	size, _ := h.dlq.Size(r.Context())

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"size":    size,
	})
}

// RetryDLQRequest represents a request to retry exhausted deliveries
type RetryDLQRequest struct {
	MsgID      string `json:"msg_id,omitempty"`
	EndpointID string `json:"endpoint_id,omitempty"`
	RetryAll   bool   `json:"retry_all,omitempty"`
}

// RetryDLQ handles POST /admin/dlq/retry
func (h *AdminHandler) RetryDLQ(w http.ResponseWriter, r *http.Request) {
	var req RetryDLQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.RetryAll {
		count, err := h.dlq.RetryAll(r.Context(), h.queue)
		if err != nil {
			logger.Error().Err(err).Msg("failed to retry all DLQ deliveries")
			respondError(w, http.StatusInternalServerError, "failed to retry DLQ deliveries")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{
			"message":       "deliveries re-queued",
			"retried_count": count,
		})
		return
	}

	if req.MsgID == "" || req.EndpointID == "" {
		respondError(w, http.StatusBadRequest, "msg_id and endpoint_id, or retry_all, are required")
		return
	}

	if err := h.dlq.Retry(r.Context(), h.queue, req.MsgID, req.EndpointID); err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			respondError(w, http.StatusNotFound, "delivery not found in DLQ")
			return
		}
		logger.Error().Err(err).Str("msg_id", req.MsgID).Msg("failed to retry DLQ delivery")
		respondError(w, http.StatusInternalServerError, "failed to retry delivery")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":     "delivery re-queued",
		"msg_id":      req.MsgID,
		"endpoint_id": req.EndpointID,
	})
}

// ClearDLQ handles DELETE /admin/dlq
func (h *AdminHandler) ClearDLQ(w http.ResponseWriter, r *http.Request) {
	if err := h.dlq.Clear(r.Context()); err != nil {
		logger.Error().Err(err).Msg("failed to clear DLQ")
		respondError(w, http.StatusInternalServerError, "failed to clear DLQ")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "DLQ cleared",
	})
}

// HealthCheck handles GET /admin/health
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Client().Ping(r.Context()).Err(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"redis":  "disconnected",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"redis":  "connected",
	})
}
