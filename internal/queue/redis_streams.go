package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arjunyel/svix-webhooks/internal/config"
)

// Lane separates first deliveries from automatic retries so that a burst
// of retries cannot starve fresh messages.
type Lane int

const (
	LaneMain Lane = iota
	LaneRetry
)

func (l Lane) String() string {
	switch l {
	case LaneMain:
		return "main"
	case LaneRetry:
		return "retry"
	default:
		return "unknown"
	}
}

func (l Lane) StreamName(prefix string) string {
	return prefix + ":" + l.String()
}

// sendRetrySchedule is the backoff used when a queue write itself fails.
var sendRetrySchedule = []time.Duration{
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
}

// Delivery is a task read from the queue together with the handle needed
// to acknowledge it.
type Delivery struct {
	Task      *Task
	MessageID string
	Lane      Lane
}

// RedisQueue is the dispatch queue, backed by one Redis Stream per lane
// with a shared consumer group.
type RedisQueue struct {
	client        *redis.Client
	streamPrefix  string
	consumerGroup string
	blockTimeout  time.Duration
	claimMinIdle  time.Duration
}

// NewRedisQueue creates the dispatch queue and initializes streams and
// consumer groups for both lanes.
func NewRedisQueue(client *redis.Client, cfg *config.DispatchConfig) (*RedisQueue, error) {
	q := &RedisQueue{
		client:        client,
		streamPrefix:  cfg.StreamPrefix,
		consumerGroup: cfg.ConsumerGroup,
		blockTimeout:  cfg.BlockTimeout,
		claimMinIdle:  cfg.ClaimMinIdle,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.initStreams(ctx); err != nil {
		return nil, err
	}

	return q, nil
}

func (q *RedisQueue) initStreams(ctx context.Context) error {
	for _, lane := range []Lane{LaneMain, LaneRetry} {
		streamName := lane.StreamName(q.streamPrefix)
		// XGroupCreateMkStream creates both stream and group if they don't exist
		err := q.client.XGroupCreateMkStream(ctx, streamName, q.consumerGroup, "0").Err()
		if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("failed to create consumer group for %s: %w", streamName, err)
		}
	}
	return nil
}

// Send places a task on a lane, retrying transient queue errors on a
// short fixed schedule.
func (q *RedisQueue) Send(ctx context.Context, t *Task, lane Lane) error {
	data, err := t.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	streamName := lane.StreamName(q.streamPrefix)
	var lastErr error
	for attempt := 0; ; attempt++ {
		_, lastErr = q.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamName,
			Values: map[string]interface{}{
				"task": string(data),
				"kind": t.TaskTypeString(),
			},
		}).Result()

		if lastErr == nil {
			return nil
		}
		if attempt >= len(sendRetrySchedule) {
			break
		}

		select {
		case <-time.After(sendRetrySchedule[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("failed to add task to stream %s: %w", streamName, lastErr)
}

// Receive fetches the next task, blocking up to the configured timeout.
// The main lane is checked before the retry lane. Returns nil when no
// task arrived before the timeout.
func (q *RedisQueue) Receive(ctx context.Context, consumerID string) (*Delivery, error) {
	lanes := []Lane{LaneMain, LaneRetry}

	// Build streams array: [stream1, stream2, ">", ">"]
	streams := make([]string, 0, len(lanes)*2)
	for _, lane := range lanes {
		streams = append(streams, lane.StreamName(q.streamPrefix))
	}
	for range lanes {
		streams = append(streams, ">")
	}

	result, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.consumerGroup,
		Consumer: consumerID,
		Streams:  streams,
		Count:    1,
		Block:    q.blockTimeout,
	}).Result()

	if err == redis.Nil {
		return nil, nil // Timeout, no tasks
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read from streams: %w", err)
	}

	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, nil
	}

	msg := result[0].Messages[0]
	lane := q.laneForStream(result[0].Stream)

	t, err := q.decodeTask(msg.Values)
	if err != nil {
		// Malformed message, acknowledge to remove from pending
		q.client.XAck(ctx, result[0].Stream, q.consumerGroup, msg.ID)
		return nil, nil
	}

	return &Delivery{Task: t, MessageID: msg.ID, Lane: lane}, nil
}

// Ack marks a delivery as processed, removing it from the pending list.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	streamName := d.Lane.StreamName(q.streamPrefix)
	return q.client.XAck(ctx, streamName, q.consumerGroup, d.MessageID).Err()
}

// Depths returns pending task counts per lane.
func (q *RedisQueue) Depths(ctx context.Context) (map[Lane]int64, error) {
	depths := make(map[Lane]int64)
	for _, lane := range []Lane{LaneMain, LaneRetry} {
		streamName := lane.StreamName(q.streamPrefix)
		info, err := q.client.XInfoGroups(ctx, streamName).Result()
		if err != nil {
			continue // Stream may not exist yet
		}
		for _, group := range info {
			if group.Name == q.consumerGroup {
				depths[lane] = group.Pending
				break
			}
		}
	}
	return depths, nil
}

// ClaimOrphaned claims deliveries from crashed dispatchers using XCLAIM.
// Deliveries idle longer than claimMinIdle are considered orphaned.
func (q *RedisQueue) ClaimOrphaned(ctx context.Context, consumerID string) ([]*Delivery, error) {
	var deliveries []*Delivery

	for _, lane := range []Lane{LaneMain, LaneRetry} {
		streamName := lane.StreamName(q.streamPrefix)

		pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: streamName,
			Group:  q.consumerGroup,
			Start:  "-",
			End:    "+",
			Count:  100,
		}).Result()
		if err != nil {
			continue
		}

		for _, p := range pending {
			if p.Idle < q.claimMinIdle {
				continue
			}

			// XCLAIM transfers ownership of the message to this consumer
			claimed, err := q.client.XClaim(ctx, &redis.XClaimArgs{
				Stream:   streamName,
				Group:    q.consumerGroup,
				Consumer: consumerID,
				MinIdle:  q.claimMinIdle,
				Messages: []string{p.ID},
			}).Result()
			if err != nil || len(claimed) == 0 {
				continue
			}

			t, err := q.decodeTask(claimed[0].Values)
			if err != nil {
				q.client.XAck(ctx, streamName, q.consumerGroup, claimed[0].ID)
				continue
			}

			deliveries = append(deliveries, &Delivery{
				Task:      t,
				MessageID: claimed[0].ID,
				Lane:      lane,
			})
		}
	}

	return deliveries, nil
}

// Close closes the underlying Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Client returns the underlying Redis client for direct access.
func (q *RedisQueue) Client() *redis.Client {
	return q.client
}

// StreamPrefix returns the configured stream name prefix.
func (q *RedisQueue) StreamPrefix() string {
	return q.streamPrefix
}

func (q *RedisQueue) laneForStream(streamName string) Lane {
	if streamName == LaneRetry.StreamName(q.streamPrefix) {
		return LaneRetry
	}
	return LaneMain
}

func (q *RedisQueue) decodeTask(values map[string]interface{}) (*Task, error) {
	raw, ok := values["task"].(string)
	if !ok {
		return nil, ErrInvalidTaskData
	}
	return TaskFromJSON([]byte(raw))
}
