package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	id := NewID("app")

	assert.True(t, strings.HasPrefix(id, "app_"))
	assert.Len(t, id, 4+32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, NewID("app"))
}

func TestEndpoint_WantsEventType(t *testing.T) {
	ep := &Endpoint{}
	assert.True(t, ep.WantsEventType("user.created"), "empty filter accepts everything")

	ep.FilterTypes = []string{"user.created", "invoice.paid"}
	assert.True(t, ep.WantsEventType("invoice.paid"))
	assert.False(t, ep.WantsEventType("user.deleted"))
}

func TestAttemptStatus_String(t *testing.T) {
	assert.Equal(t, "success", AttemptSuccess.String())
	assert.Equal(t, "pending", AttemptPending.String())
	assert.Equal(t, "failed", AttemptFailed.String())
	assert.Equal(t, "unknown", AttemptStatus(99).String())
}

func TestTriggerType_String(t *testing.T) {
	assert.Equal(t, "scheduled", TriggerScheduled.String())
	assert.Equal(t, "manual", TriggerManual.String())
}

func TestAttemptStatus_JSON(t *testing.T) {
	data, err := json.Marshal(AttemptFailed)
	assert.NoError(t, err)
	assert.Equal(t, `"failed"`, string(data))

	var status AttemptStatus
	assert.NoError(t, json.Unmarshal([]byte(`"success"`), &status))
	assert.Equal(t, AttemptSuccess, status)

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &status))
}

func TestTriggerType_JSON(t *testing.T) {
	data, err := json.Marshal(TriggerManual)
	assert.NoError(t, err)
	assert.Equal(t, `"manual"`, string(data))

	var trigger TriggerType
	assert.NoError(t, json.Unmarshal([]byte(`"scheduled"`), &trigger))
	assert.Equal(t, TriggerScheduled, trigger)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("app_1", "user.created", []byte(`{"id":1}`))

	assert.True(t, strings.HasPrefix(msg.ID, "msg_"))
	assert.Equal(t, "app_1", msg.AppID)
	assert.Equal(t, "user.created", msg.EventType)
	assert.False(t, msg.CreatedAt.IsZero())
}

func TestNewMessageAttempt(t *testing.T) {
	attempt := NewMessageAttempt("msg_1", "ep_1", "https://example.com/hook")

	assert.True(t, strings.HasPrefix(attempt.ID, "atmpt_"))
	assert.Equal(t, "msg_1", attempt.MsgID)
	assert.Equal(t, "ep_1", attempt.EndpointID)
	assert.False(t, attempt.Timestamp.IsZero())
}
