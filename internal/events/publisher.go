package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType represents the type of operational event
type EventType string

const (
	// Delivery events
	EventAttemptSuccess   EventType = "message.attempt.success"
	EventAttemptFailing   EventType = "message.attempt.failing"
	EventAttemptExhausted EventType = "message.attempt.exhausted"

	// Endpoint events
	EventEndpointCreated EventType = "endpoint.created"
	EventEndpointUpdated EventType = "endpoint.updated"
	EventEndpointDeleted EventType = "endpoint.deleted"

	// Dispatcher events
	EventDispatcherJoined EventType = "dispatcher.joined"
	EventDispatcherLeft   EventType = "dispatcher.left"

	// System events
	EventQueueDepth EventType = "queue.depth"
)

// Event represents an operational event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ToJSON serializes the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON deserializes an event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher defines the interface for event publishers
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error)
	Close() error
}

// AttemptEventData creates event data for delivery attempt events
func AttemptEventData(msgID, endpointID, appID string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"msg_id":      msgID,
		"endpoint_id": endpointID,
		"app_id":      appID,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// EndpointEventData creates event data for endpoint lifecycle events
func EndpointEventData(endpointID, appID string) map[string]interface{} {
	return map[string]interface{}{
		"endpoint_id": endpointID,
		"app_id":      appID,
	}
}

// DispatcherEventData creates event data for dispatcher events
func DispatcherEventData(dispatcherID, state string) map[string]interface{} {
	return map[string]interface{}{
		"dispatcher_id": dispatcherID,
		"state":         state,
	}
}

// QueueDepthData creates event data for queue depth events
func QueueDepthData(depths map[string]int64) map[string]interface{} {
	return map[string]interface{}{
		"depths": depths,
	}
}
