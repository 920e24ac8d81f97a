package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/metrics"
)

const (
	scheduledSetKey       = "dispatch:scheduled"
	schedulerLockKey      = "dispatch:scheduler:lock"
	schedulerPollInterval = 1 * time.Second
	schedulerLockTTL      = 5 * time.Second
)

// Scheduler polls the scheduled-retry set and moves due tasks onto the
// retry lane.
type Scheduler struct {
	client       *redis.Client
	queue        *RedisQueue
	pollInterval time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewScheduler creates a new scheduler.
func NewScheduler(client *redis.Client, queue *RedisQueue) *Scheduler {
	return &Scheduler{
		client:       client,
		queue:        queue,
		pollInterval: schedulerPollInterval,
		stopCh:       make(chan struct{}),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.schedulerLoop(ctx)

	logger.Info().
		Dur("poll_interval", s.pollInterval).
		Msg("retry scheduler started")
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	logger.Info().Msg("retry scheduler stopped")
}

func (s *Scheduler) schedulerLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.processDueTasks(ctx)
		}
	}
}

func (s *Scheduler) processDueTasks(ctx context.Context) {
	// Distributed lock so only one scheduler instance drains the set
	locked, err := s.client.SetNX(ctx, schedulerLockKey, "1", schedulerLockTTL).Result()
	if err != nil || !locked {
		return
	}
	defer s.client.Del(ctx, schedulerLockKey)

	now := time.Now().UTC().Unix()

	members, err := s.client.ZRangeByScore(ctx, scheduledSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now),
	}).Result()
	if err != nil {
		logger.Error().Err(err).Msg("failed to get due retries")
		return
	}

	if len(members) == 0 {
		return
	}

	logger.Debug().Int("count", len(members)).Msg("moving due retries to retry lane")

	for _, member := range members {
		if err := s.activate(ctx, member); err != nil {
			logger.Error().Err(err).Msg("failed to activate scheduled retry")
			continue
		}
	}
}

// activate moves one scheduled task onto the retry lane. The set member
// is the serialized task itself; malformed members are dropped.
func (s *Scheduler) activate(ctx context.Context, member string) error {
	t, err := TaskFromJSON([]byte(member))
	if err != nil {
		s.client.ZRem(ctx, scheduledSetKey, member)
		return nil
	}

	if err := s.queue.Send(ctx, t, LaneRetry); err != nil {
		return fmt.Errorf("failed to enqueue retry: %w", err)
	}

	s.client.ZRem(ctx, scheduledSetKey, member)

	if t.Type == TaskMessageV1 {
		logger.Info().
			Str("msg_id", t.MessageV1.MsgID).
			Str("endpoint_id", t.MessageV1.EndpointID).
			Int("attempt_count", t.MessageV1.AttemptCount).
			Msg("delivery retry activated")
	}

	return nil
}

// Schedule adds a task to the scheduled set, due at the given time.
func (s *Scheduler) Schedule(ctx context.Context, t *Task, dueAt time.Time) error {
	return ScheduleTask(ctx, s.client, t, dueAt)
}

// ScheduleTask adds a task to the scheduled set without needing a
// Scheduler instance (for use by dispatchers).
func ScheduleTask(ctx context.Context, client *redis.Client, t *Task, dueAt time.Time) error {
	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	err = client.ZAdd(ctx, scheduledSetKey, redis.Z{
		Score:  float64(dueAt.Unix()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add task to scheduled set: %w", err)
	}

	metrics.RecordRetryScheduled()
	return nil
}

// GetScheduledCount returns the number of scheduled retries.
func GetScheduledCount(ctx context.Context, client *redis.Client) (int64, error) {
	return client.ZCard(ctx, scheduledSetKey).Result()
}
