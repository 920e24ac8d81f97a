package queue

import (
	"encoding/json"
	"errors"

	"github.com/arjunyel/svix-webhooks/internal/model"
)

// Error definitions
var (
	ErrInvalidTaskData = errors.New("invalid task data")
	ErrTaskNotFound    = errors.New("task not found in queue")
)

// TaskType tags the payload variant carried by a Task.
type TaskType string

const (
	TaskHealthCheck  TaskType = "HealthCheck"
	TaskMessageV1    TaskType = "MessageV1"
	TaskMessageBatch TaskType = "MessageBatch"
)

// MessageTask is a single delivery of one message to one endpoint.
type MessageTask struct {
	MsgID        string            `json:"msg_id"`
	AppID        string            `json:"app_id"`
	EndpointID   string            `json:"endpoint_id"`
	Trigger      model.TriggerType `json:"trigger_type"`
	AttemptCount int               `json:"attempt_count"`
}

// MessageBatchTask fans a message out to all of an application's
// endpoints, or to one forced endpoint.
type MessageBatchTask struct {
	MsgID         string            `json:"msg_id"`
	AppID         string            `json:"app_id"`
	ForceEndpoint string            `json:"force_endpoint,omitempty"`
	Trigger       model.TriggerType `json:"trigger_type"`
}

// Task is the envelope placed on the dispatch queue. Exactly one of the
// variant fields matching Type is set.
type Task struct {
	Type         TaskType          `json:"type"`
	MessageV1    *MessageTask      `json:"message_v1,omitempty"`
	MessageBatch *MessageBatchTask `json:"message_batch,omitempty"`
}

// NewMessageTask creates a single-endpoint delivery task.
func NewMessageTask(msgID, appID, endpointID string, trigger model.TriggerType, attemptCount int) *Task {
	return &Task{
		Type: TaskMessageV1,
		MessageV1: &MessageTask{
			MsgID:        msgID,
			AppID:        appID,
			EndpointID:   endpointID,
			Trigger:      trigger,
			AttemptCount: attemptCount,
		},
	}
}

// NewMessageBatchTask creates a fan-out task for a freshly created message.
func NewMessageBatchTask(msgID, appID, forceEndpoint string, trigger model.TriggerType) *Task {
	return &Task{
		Type: TaskMessageBatch,
		MessageBatch: &MessageBatchTask{
			MsgID:         msgID,
			AppID:         appID,
			ForceEndpoint: forceEndpoint,
			Trigger:       trigger,
		},
	}
}

// NewHealthCheckTask creates a no-op task used to probe queue liveness.
func NewHealthCheckTask() *Task {
	return &Task{Type: TaskHealthCheck}
}

// TaskTypeString returns the variant name, for logging.
func (t *Task) TaskTypeString() string {
	return string(t.Type)
}

// Valid reports whether the envelope carries the variant its tag names.
func (t *Task) Valid() bool {
	switch t.Type {
	case TaskHealthCheck:
		return true
	case TaskMessageV1:
		return t.MessageV1 != nil
	case TaskMessageBatch:
		return t.MessageBatch != nil
	default:
		return false
	}
}

// ToJSON serializes the task to JSON.
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// TaskFromJSON deserializes a task from JSON and validates the envelope.
func TaskFromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if !t.Valid() {
		return nil, ErrInvalidTaskData
	}
	return &t, nil
}
