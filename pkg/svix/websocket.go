package svix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FeedEvent is an operational event from the server's event feed.
type FeedEvent struct {
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// EventFeed handles the WebSocket connection for operational events.
type EventFeed struct {
	conn      *websocket.Conn
	baseURL   string
	token     string
	events    chan *FeedEvent
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	connected bool
}

func newEventFeed(baseURL, token string) *EventFeed {
	return &EventFeed{
		baseURL: baseURL,
		token:   token,
		events:  make(chan *FeedEvent, 100),
		done:    make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the server.
func (f *EventFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connected {
		return nil
	}

	// Convert HTTP URL to WebSocket URL
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	headers := make(map[string][]string)
	if f.token != "" {
		headers["Authorization"] = []string{"Bearer " + f.token}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	f.conn = conn
	f.connected = true
	f.done = make(chan struct{})

	go f.readLoop()

	return nil
}

func (f *EventFeed) readLoop() {
	defer func() {
		f.mu.Lock()
		f.connected = false
		f.mu.Unlock()
		close(f.events)
	}()

	for {
		select {
		case <-f.done:
			return
		default:
			_, message, err := f.conn.ReadMessage()
			if err != nil {
				return
			}

			var event FeedEvent
			if err := json.Unmarshal(message, &event); err != nil {
				continue // Skip malformed messages
			}

			select {
			case f.events <- &event:
			case <-f.done:
				return
			default:
				// Channel full, drop oldest event
				select {
				case <-f.events:
				default:
				}
				f.events <- &event
			}
		}
	}
}

// Events returns a channel that receives events from the server.
func (f *EventFeed) Events() <-chan *FeedEvent {
	return f.events
}

// Close closes the WebSocket connection.
func (f *EventFeed) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.conn != nil {
			err = f.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			_ = f.conn.Close()
		}
	})
	return err
}

// IsConnected returns whether the feed is currently connected.
func (f *EventFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// Subscribe requests that only the given event types be delivered.
func (f *EventFeed) Subscribe(eventTypes ...string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.connected || f.conn == nil {
		return fmt.Errorf("not connected")
	}

	msg := map[string]interface{}{
		"action": "subscribe",
		"events": eventTypes,
	}

	return f.conn.WriteJSON(msg)
}
