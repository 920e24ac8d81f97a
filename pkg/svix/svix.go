package svix

import (
	"context"
	"fmt"
	"strings"
)

// Svix is the top-level API client. Resource facades share one
// underlying HTTP client.
type Svix struct {
	Authentication *Authentication
	Application    *Application
	Endpoint       *Endpoint
	Message        *Message

	baseURL string
	opts    *options
	feed    *EventFeed
}

// New creates a new Svix client for the given server.
func New(baseURL string, opts ...Option) (*Svix, error) {
	// Ensure URL doesn't have trailing slash for consistency
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	api := newAPIClient(baseURL, o.httpClient, o.applyHeaders())

	return &Svix{
		Authentication: NewAuthentication(api),
		Application:    &Application{api: api},
		Endpoint:       &Endpoint{api: api},
		Message:        &Message{api: api},
		baseURL:        baseURL,
		opts:           o,
	}, nil
}

// ConnectFeed establishes a WebSocket connection to the server's
// operational event feed.
func (s *Svix) ConnectFeed(ctx context.Context) error {
	if s.feed != nil && s.feed.IsConnected() {
		return nil
	}
	s.feed = newEventFeed(s.baseURL, s.opts.token)
	return s.feed.Connect(ctx)
}

// FeedEvents returns a channel that receives operational events.
// ConnectFeed must be called first.
func (s *Svix) FeedEvents() <-chan *FeedEvent {
	if s.feed == nil {
		ch := make(chan *FeedEvent)
		close(ch)
		return ch
	}
	return s.feed.Events()
}

// CloseFeed closes the event feed connection.
func (s *Svix) CloseFeed() error {
	if s.feed == nil {
		return nil
	}
	return s.feed.Close()
}
