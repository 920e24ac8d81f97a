package svix

import (
	"encoding/json"
	"time"
)

// DashboardAccessOut is a one-time dashboard login for an application.
type DashboardAccessOut struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// ApplicationIn is the payload for creating or updating an application.
type ApplicationIn struct {
	Name      string `json:"name"`
	UID       string `json:"uid,omitempty"`
	RateLimit int    `json:"rate_limit,omitempty"`
}

// ApplicationOut is an application as returned by the server.
type ApplicationOut struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UID       string    `json:"uid,omitempty"`
	RateLimit int       `json:"rate_limit,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ApplicationListOut is a page of applications.
type ApplicationListOut struct {
	Data []ApplicationOut `json:"data"`
	Done bool             `json:"done"`
}

// EndpointIn is the payload for creating or updating an endpoint.
type EndpointIn struct {
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	FilterTypes []string `json:"filter_types,omitempty"`
	Disabled    bool     `json:"disabled,omitempty"`
}

// EndpointOut is an endpoint as returned by the server.
type EndpointOut struct {
	ID          string    `json:"id"`
	AppID       string    `json:"app_id"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	FilterTypes []string  `json:"filter_types,omitempty"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EndpointSecretOut carries an endpoint's signing secret.
type EndpointSecretOut struct {
	Key string `json:"key"`
}

// EndpointListOut is a page of endpoints.
type EndpointListOut struct {
	Data []EndpointOut `json:"data"`
	Done bool          `json:"done"`
}

// MessageIn is the payload for sending a message.
type MessageIn struct {
	EventType string            `json:"event_type"`
	EventID   string            `json:"event_id,omitempty"`
	Payload   json.RawMessage   `json:"payload"`
	Channels  []string          `json:"channels,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MessageOut is a message as returned by the server.
type MessageOut struct {
	ID        string          `json:"id"`
	AppID     string          `json:"app_id"`
	EventType string          `json:"event_type"`
	EventID   string          `json:"event_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// MessageAttemptOut is a single delivery attempt of a message.
type MessageAttemptOut struct {
	ID             string    `json:"id"`
	MsgID          string    `json:"msg_id"`
	EndpointID     string    `json:"endpoint_id"`
	URL            string    `json:"url"`
	Status         string    `json:"status"`
	Trigger        string    `json:"trigger"`
	AttemptNumber  int       `json:"attempt_number"`
	ResponseStatus int       `json:"response_status_code"`
	Response       string    `json:"response,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// MessageAttemptListOut is a page of delivery attempts.
type MessageAttemptListOut struct {
	Data []MessageAttemptOut `json:"data"`
	Done bool                `json:"done"`
}
