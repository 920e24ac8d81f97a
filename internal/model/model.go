package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Error definitions
var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrEndpointNotFound    = errors.New("endpoint not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrUIDConflict         = errors.New("uid already taken")
)

// NewID returns a prefixed identifier, e.g. "app_4f9c...".
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Application is a tenant that messages are sent on behalf of.
type Application struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UID       string    `json:"uid,omitempty"`
	RateLimit int       `json:"rate_limit,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewApplication creates an application with a fresh ID.
func NewApplication(name, uid string) *Application {
	now := time.Now().UTC()
	return &Application{
		ID:        NewID("app"),
		Name:      name,
		UID:       uid,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Endpoint is a URL that an application's messages are delivered to.
type Endpoint struct {
	ID          string    `json:"id"`
	AppID       string    `json:"app_id"`
	URL         string    `json:"url"`
	Secret      string    `json:"secret"`
	Description string    `json:"description,omitempty"`
	Disabled    bool      `json:"disabled"`
	FilterTypes []string  `json:"filter_types,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewEndpoint creates an endpoint with a fresh ID. The secret must be a
// "whsec_"-prefixed signing secret; generation is the caller's concern.
func NewEndpoint(appID, url, secret, description string, filterTypes []string) *Endpoint {
	now := time.Now().UTC()
	return &Endpoint{
		ID:          NewID("ep"),
		AppID:       appID,
		URL:         url,
		Secret:      secret,
		Description: description,
		FilterTypes: filterTypes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// WantsEventType reports whether the endpoint should receive messages of
// the given event type. An empty filter list means all types.
func (e *Endpoint) WantsEventType(eventType string) bool {
	if len(e.FilterTypes) == 0 {
		return true
	}
	for _, ft := range e.FilterTypes {
		if ft == eventType {
			return true
		}
	}
	return false
}

// Message is a payload to fan out to an application's endpoints.
type Message struct {
	ID        string            `json:"id"`
	AppID     string            `json:"app_id"`
	EventType string            `json:"event_type"`
	EventID   string            `json:"event_id,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
	Channels  []string          `json:"channels,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(appID, eventType string, payload json.RawMessage) *Message {
	return &Message{
		ID:        NewID("msg"),
		AppID:     appID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// AttemptStatus is the outcome of a single delivery attempt.
type AttemptStatus int

const (
	AttemptSuccess AttemptStatus = iota
	AttemptPending
	AttemptFailed
)

func (s AttemptStatus) String() string {
	switch s {
	case AttemptSuccess:
		return "success"
	case AttemptPending:
		return "pending"
	case AttemptFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes the status as its string form.
func (s AttemptStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the string form of the status.
func (s *AttemptStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "success":
		*s = AttemptSuccess
	case "pending":
		*s = AttemptPending
	case "failed":
		*s = AttemptFailed
	default:
		return fmt.Errorf("unknown attempt status %q", v)
	}
	return nil
}

// TriggerType records why a delivery attempt happened.
type TriggerType int

const (
	TriggerScheduled TriggerType = iota // normal fan-out or automatic retry
	TriggerManual                       // operator-initiated (DLQ retry, resend)
)

func (t TriggerType) String() string {
	switch t {
	case TriggerScheduled:
		return "scheduled"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes the trigger as its string form.
func (t TriggerType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the string form of the trigger.
func (t *TriggerType) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "scheduled":
		*t = TriggerScheduled
	case "manual":
		*t = TriggerManual
	default:
		return fmt.Errorf("unknown trigger type %q", v)
	}
	return nil
}

// MessageAttempt records one delivery attempt of a message to an endpoint.
type MessageAttempt struct {
	ID             string        `json:"id"`
	MsgID          string        `json:"msg_id"`
	EndpointID     string        `json:"endpoint_id"`
	URL            string        `json:"url"`
	Status         AttemptStatus `json:"status"`
	Trigger        TriggerType   `json:"trigger"`
	AttemptNumber  int           `json:"attempt_number"`
	ResponseStatus int           `json:"response_status_code"`
	Response       string        `json:"response,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// NewMessageAttempt creates an attempt record with a fresh ID.
func NewMessageAttempt(msgID, endpointID, url string) *MessageAttempt {
	return &MessageAttempt{
		ID:         NewID("atmpt"),
		MsgID:      msgID,
		EndpointID: endpointID,
		URL:        url,
		Timestamp:  time.Now().UTC(),
	}
}
