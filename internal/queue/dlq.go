package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arjunyel/svix-webhooks/internal/metrics"
	"github.com/arjunyel/svix-webhooks/internal/model"
)

const (
	dlqStreamName = "dispatch:dlq"
	dlqSetName    = "dispatch:dlq:set"
)

// DLQ holds deliveries that exhausted their retry schedule.
type DLQ struct {
	client *redis.Client
}

// NewDLQ creates a new dead letter queue.
func NewDLQ(client *redis.Client) *DLQ {
	return &DLQ{client: client}
}

// DLQEntry represents an exhausted delivery in the dead letter queue.
type DLQEntry struct {
	Task      *MessageTask `json:"task"`
	Reason    string       `json:"reason"`
	AddedAt   time.Time    `json:"added_at"`
	LastError string       `json:"last_error,omitempty"`
	MessageID string       `json:"message_id"`
}

// Add records an exhausted delivery.
func (d *DLQ) Add(ctx context.Context, mt *MessageTask, reason, lastError string) error {
	entry := DLQEntry{
		Task:      mt,
		Reason:    reason,
		AddedAt:   time.Now().UTC(),
		LastError: lastError,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ entry: %w", err)
	}

	_, err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStreamName,
		Values: map[string]interface{}{
			"msg_id":      mt.MsgID,
			"endpoint_id": mt.EndpointID,
			"data":        string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to add to DLQ stream: %w", err)
	}

	// Set for quick membership checks
	d.client.SAdd(ctx, dlqSetName, d.member(mt.MsgID, mt.EndpointID))

	metrics.IncrementDLQAdded()
	return nil
}

// List returns entries in the dead letter queue.
func (d *DLQ) List(ctx context.Context, count int64) ([]DLQEntry, error) {
	messages, err := d.client.XRange(ctx, dlqStreamName, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read DLQ: %w", err)
	}

	entries := make([]DLQEntry, 0, len(messages))
	for i, msg := range messages {
		if count > 0 && int64(i) >= count {
			break
		}

		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}

		var entry DLQEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			continue
		}
		entry.MessageID = msg.ID

		entries = append(entries, entry)
	}

	return entries, nil
}

// Remove removes a delivery from the dead letter queue.
func (d *DLQ) Remove(ctx context.Context, entry *DLQEntry) error {
	if entry.MessageID != "" {
		if err := d.client.XDel(ctx, dlqStreamName, entry.MessageID).Err(); err != nil {
			return fmt.Errorf("failed to remove from DLQ stream: %w", err)
		}
	}
	d.client.SRem(ctx, dlqSetName, d.member(entry.Task.MsgID, entry.Task.EndpointID))
	return nil
}

// Retry re-enqueues one exhausted delivery as a manual attempt with a
// fresh attempt budget.
func (d *DLQ) Retry(ctx context.Context, q *RedisQueue, msgID, endpointID string) error {
	entries, err := d.List(ctx, 0)
	if err != nil {
		return err
	}

	var target *DLQEntry
	for i := range entries {
		if entries[i].Task.MsgID == msgID && entries[i].Task.EndpointID == endpointID {
			target = &entries[i]
			break
		}
	}
	if target == nil {
		return ErrTaskNotFound
	}

	t := NewMessageTask(target.Task.MsgID, target.Task.AppID, target.Task.EndpointID, model.TriggerManual, 0)
	if err := q.Send(ctx, t, LaneMain); err != nil {
		return fmt.Errorf("failed to re-enqueue delivery: %w", err)
	}

	return d.Remove(ctx, target)
}

// RetryAll re-enqueues all exhausted deliveries.
func (d *DLQ) RetryAll(ctx context.Context, q *RedisQueue) (int, error) {
	entries, err := d.List(ctx, 0)
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range entries {
		entry := entries[i]
		t := NewMessageTask(entry.Task.MsgID, entry.Task.AppID, entry.Task.EndpointID, model.TriggerManual, 0)
		if err := q.Send(ctx, t, LaneMain); err != nil {
			continue // Skip failed retries
		}
		if err := d.Remove(ctx, &entry); err != nil {
			continue
		}
		count++
	}

	return count, nil
}

// Size returns the number of deliveries in the DLQ.
func (d *DLQ) Size(ctx context.Context) (int64, error) {
	return d.client.SCard(ctx, dlqSetName).Result()
}

// Contains checks if a delivery is in the DLQ.
func (d *DLQ) Contains(ctx context.Context, msgID, endpointID string) (bool, error) {
	return d.client.SIsMember(ctx, dlqSetName, d.member(msgID, endpointID)).Result()
}

// Clear removes all deliveries from the DLQ.
func (d *DLQ) Clear(ctx context.Context) error {
	if err := d.client.Del(ctx, dlqStreamName).Err(); err != nil {
		return fmt.Errorf("failed to delete DLQ stream: %w", err)
	}
	return d.client.Del(ctx, dlqSetName).Err()
}

func (d *DLQ) member(msgID, endpointID string) string {
	return msgID + ":" + endpointID
}
