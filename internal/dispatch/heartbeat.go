package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arjunyel/svix-webhooks/internal/logger"
)

const (
	dispatcherKeyPrefix     = "dispatcher:"
	dispatcherSetKey        = "dispatchers:active"
	heartbeatKeySuffix      = ":heartbeat"
	dispatcherInfoKeySuffix = ":info"
	pauseKeySuffix          = ":paused"
)

// DispatcherInfo contains information about a dispatcher process
type DispatcherInfo struct {
	ID               string    `json:"id"`
	State            string    `json:"state"`
	StartedAt        time.Time `json:"started_at"`
	LastHeartbeat    time.Time `json:"last_heartbeat"`
	ActiveDeliveries int       `json:"active_deliveries"`
	Concurrency      int       `json:"concurrency"`
	Version          string    `json:"version,omitempty"`
}

// Heartbeat manages dispatcher heartbeat mechanism
type Heartbeat struct {
	client       *redis.Client
	dispatcherID string
	interval     time.Duration
	timeout      time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
	info         *DispatcherInfo
	infoMu       sync.RWMutex
}

// NewHeartbeat creates a new heartbeat manager
func NewHeartbeat(client *redis.Client, dispatcherID string, interval, timeout time.Duration) *Heartbeat {
	return &Heartbeat{
		client:       client,
		dispatcherID: dispatcherID,
		interval:     interval,
		timeout:      timeout,
		stopCh:       make(chan struct{}),
		info: &DispatcherInfo{
			ID:        dispatcherID,
			State:     "idle",
			StartedAt: time.Now().UTC(),
		},
	}
}

// Start begins sending heartbeats
func (h *Heartbeat) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.heartbeatLoop(ctx)

	// Register dispatcher
	h.register(ctx)

	logger.Info().
		Str("dispatcher_id", h.dispatcherID).
		Dur("interval", h.interval).
		Msg("heartbeat started")
}

// Stop stops sending heartbeats
func (h *Heartbeat) Stop() {
	close(h.stopCh)
	h.wg.Wait()

	// Deregister dispatcher
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.deregister(ctx)

	logger.Info().Str("dispatcher_id", h.dispatcherID).Msg("heartbeat stopped")
}

// UpdateState updates the dispatcher state
func (h *Heartbeat) UpdateState(state string) {
	h.infoMu.Lock()
	h.info.State = state
	h.infoMu.Unlock()
}

// UpdateActiveDeliveries updates the in-flight delivery count
func (h *Heartbeat) UpdateActiveDeliveries(count int) {
	h.infoMu.Lock()
	h.info.ActiveDeliveries = count
	h.infoMu.Unlock()
}

// UpdateConcurrency updates the concurrency setting
func (h *Heartbeat) UpdateConcurrency(concurrency int) {
	h.infoMu.Lock()
	h.info.Concurrency = concurrency
	h.infoMu.Unlock()
}

func (h *Heartbeat) heartbeatLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Send initial heartbeat
	h.sendHeartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sendHeartbeat(ctx)
		}
	}
}

func (h *Heartbeat) sendHeartbeat(ctx context.Context) {
	heartbeatKey := h.heartbeatKey()
	now := time.Now().UTC()

	// Update heartbeat timestamp
	if err := h.client.Set(ctx, heartbeatKey, now.Unix(), h.timeout).Err(); err != nil {
		logger.Error().Err(err).Str("dispatcher_id", h.dispatcherID).Msg("failed to send heartbeat")
		return
	}

	// Update dispatcher info
	h.infoMu.Lock()
	h.info.LastHeartbeat = now
	infoData, _ := json.Marshal(h.info)
	h.infoMu.Unlock()

	infoKey := h.infoKey()
	if err := h.client.Set(ctx, infoKey, infoData, h.timeout*2).Err(); err != nil {
		logger.Error().Err(err).Str("dispatcher_id", h.dispatcherID).Msg("failed to update dispatcher info")
	}

	// Ensure dispatcher is in active set
	h.client.SAdd(ctx, dispatcherSetKey, h.dispatcherID)
}

func (h *Heartbeat) register(ctx context.Context) {
	h.client.SAdd(ctx, dispatcherSetKey, h.dispatcherID)

	h.infoMu.Lock()
	h.info.StartedAt = time.Now().UTC()
	infoData, _ := json.Marshal(h.info)
	h.infoMu.Unlock()

	h.client.Set(ctx, h.infoKey(), infoData, h.timeout*2)
}

func (h *Heartbeat) deregister(ctx context.Context) {
	h.client.SRem(ctx, dispatcherSetKey, h.dispatcherID)
	h.client.Del(ctx, h.heartbeatKey(), h.infoKey())
}

func (h *Heartbeat) heartbeatKey() string {
	return fmt.Sprintf("%s%s%s", dispatcherKeyPrefix, h.dispatcherID, heartbeatKeySuffix)
}

func (h *Heartbeat) infoKey() string {
	return fmt.Sprintf("%s%s%s", dispatcherKeyPrefix, h.dispatcherID, dispatcherInfoKeySuffix)
}

// GetActiveDispatchers returns a list of active dispatchers
func GetActiveDispatchers(ctx context.Context, client *redis.Client) ([]DispatcherInfo, error) {
	ids, err := client.SMembers(ctx, dispatcherSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active dispatchers: %w", err)
	}

	dispatchers := make([]DispatcherInfo, 0, len(ids))
	for _, id := range ids {
		infoKey := fmt.Sprintf("%s%s%s", dispatcherKeyPrefix, id, dispatcherInfoKeySuffix)
		data, err := client.Get(ctx, infoKey).Bytes()
		if err == redis.Nil {
			// Dispatcher info expired, remove from set
			client.SRem(ctx, dispatcherSetKey, id)
			continue
		}
		if err != nil {
			continue
		}

		var info DispatcherInfo
		if err := json.Unmarshal(data, &info); err != nil {
			continue
		}

		dispatchers = append(dispatchers, info)
	}

	return dispatchers, nil
}

// IsDispatcherAlive checks if a dispatcher is still alive based on heartbeat
func IsDispatcherAlive(ctx context.Context, client *redis.Client, dispatcherID string) (bool, error) {
	heartbeatKey := fmt.Sprintf("%s%s%s", dispatcherKeyPrefix, dispatcherID, heartbeatKeySuffix)
	exists, err := client.Exists(ctx, heartbeatKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dispatcher heartbeat: %w", err)
	}
	return exists > 0, nil
}

// IsDispatcherPaused checks if a dispatcher has been paused via admin API
func IsDispatcherPaused(ctx context.Context, client *redis.Client, dispatcherID string) (bool, error) {
	pauseKey := fmt.Sprintf("%s%s%s", dispatcherKeyPrefix, dispatcherID, pauseKeySuffix)
	exists, err := client.Exists(ctx, pauseKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dispatcher pause status: %w", err)
	}
	return exists > 0, nil
}

// PauseDispatcher sets the pause flag for a dispatcher. The flag is read
// by the dispatcher's worker loop before fetching new tasks.
func PauseDispatcher(ctx context.Context, client *redis.Client, dispatcherID string) error {
	pauseKey := fmt.Sprintf("%s%s%s", dispatcherKeyPrefix, dispatcherID, pauseKeySuffix)
	return client.Set(ctx, pauseKey, "1", 0).Err()
}

// ResumeDispatcher clears the pause flag for a dispatcher.
func ResumeDispatcher(ctx context.Context, client *redis.Client, dispatcherID string) error {
	pauseKey := fmt.Sprintf("%s%s%s", dispatcherKeyPrefix, dispatcherID, pauseKeySuffix)
	return client.Del(ctx, pauseKey).Err()
}
