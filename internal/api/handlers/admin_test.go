package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunyel/svix-webhooks/internal/events"
)

type capturingPublisher struct {
	published []*events.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, event *events.Event) error {
	p.published = append(p.published, event)
	return nil
}

func (p *capturingPublisher) Subscribe(ctx context.Context, eventTypes ...events.EventType) (<-chan *events.Event, error) {
	return nil, nil
}

func (p *capturingPublisher) Close() error { return nil }

func TestAdminHandler_RetryDLQ_InvalidJSON(t *testing.T) {
	h := &AdminHandler{}

	req := httptest.NewRequest(http.MethodPost, "/admin/dlq/retry", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()

	h.RetryDLQ(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "invalid request body", response.Message)
}

func TestAdminHandler_RetryDLQ_MissingIdentifiers(t *testing.T) {
	h := &AdminHandler{}

	body, _ := json.Marshal(RetryDLQRequest{MsgID: "msg_1"}) // endpoint_id missing
	req := httptest.NewRequest(http.MethodPost, "/admin/dlq/retry", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.RetryDLQ(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_PublishesQueueDepth(t *testing.T) {
	pub := &capturingPublisher{}
	h := &AdminHandler{publisher: pub}

	h.publishQueueDepth(context.Background(), map[string]int64{"main": 3, "retry": 1})

	require.Len(t, pub.published, 1)
	event := pub.published[0]
	assert.Equal(t, events.EventQueueDepth, event.Type)

	depths, ok := event.Data["depths"].(map[string]int64)
	require.True(t, ok)
	assert.Equal(t, int64(3), depths["main"])
	assert.Equal(t, int64(1), depths["retry"])
}

func TestAdminHandler_PublishQueueDepth_NoPublisher(t *testing.T) {
	h := &AdminHandler{}

	// Must not panic without a publisher wired
	h.publishQueueDepth(context.Background(), map[string]int64{"main": 0})
}

func TestRetryDLQRequest_Struct(t *testing.T) {
	req := RetryDLQRequest{
		MsgID:      "msg_123",
		EndpointID: "ep_456",
	}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded RetryDLQRequest
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, req.MsgID, decoded.MsgID)
	assert.Equal(t, req.EndpointID, decoded.EndpointID)
	assert.False(t, decoded.RetryAll)
}
