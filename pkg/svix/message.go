package svix

import "context"

// Message exposes message sending and inspection operations.
type Message struct {
	api *apiClient
}

// Create accepts a message for fan-out to the application's endpoints.
func (m *Message) Create(ctx context.Context, appID string, in *MessageIn, opts *PostOptions) (*MessageOut, error) {
	return m.api.CreateMessage(ctx, appID, in, opts)
}

// Get retrieves a message by ID.
func (m *Message) Get(ctx context.Context, appID, msgID string) (*MessageOut, error) {
	return m.api.GetMessage(ctx, appID, msgID)
}

// ListAttempts returns the delivery attempts recorded for a message.
func (m *Message) ListAttempts(ctx context.Context, appID, msgID string) (*MessageAttemptListOut, error) {
	return m.api.ListAttempts(ctx, appID, msgID)
}
