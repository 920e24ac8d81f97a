package svix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	client, err := New("http://localhost:8071/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8071", client.baseURL)
}

func TestClient_DashboardAccess(t *testing.T) {
	var gotPath, gotMethod, gotAuth, gotIdempotency string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotIdempotency = r.Header.Get("idempotency-key")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(DashboardAccessOut{
			URL:   "http://localhost:8071/portal/app_123#key=tok",
			Token: "tok",
		})
	}))
	defer server.Close()

	client, err := New(server.URL, WithToken("api-key-1"))
	require.NoError(t, err)

	out, err := client.Authentication.DashboardAccess(context.Background(), "app_123", &PostOptions{
		IdempotencyKey: "req-42",
	})

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/auth/dashboard-access/app_123", gotPath)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Bearer api-key-1", gotAuth)
	assert.Equal(t, "req-42", gotIdempotency)
	assert.Equal(t, "tok", out.Token)
}

func TestClient_Logout(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client, err := New(server.URL, WithToken("api-key-1"))
	require.NoError(t, err)

	err = client.Authentication.Logout(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/auth/logout", gotPath)
}

func TestClient_ErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error":   "Not Found",
			"message": "application not found",
		})
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Authentication.DashboardAccess(context.Background(), "app_missing", nil)

	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "application not found", apiErr.Detail)
}

func TestClient_CustomHeaders(t *testing.T) {
	var gotGlobal, gotPerCall string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotGlobal = r.Header.Get("X-Env")
		gotPerCall = r.Header.Get("X-Trace")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ApplicationOut{ID: "app_1", Name: "test"})
	}))
	defer server.Close()

	client, err := New(server.URL, WithHeader("X-Env", "staging"))
	require.NoError(t, err)

	_, err = client.Application.Create(context.Background(), &ApplicationIn{Name: "test"}, &PostOptions{
		Headers: map[string]string{"X-Trace": "trace-7"},
	})

	require.NoError(t, err)
	assert.Equal(t, "staging", gotGlobal)
	assert.Equal(t, "trace-7", gotPerCall)
}

func TestClient_PathParamEscaping(t *testing.T) {
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ApplicationOut{})
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)

	_, err = client.Application.Get(context.Background(), "app with space")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/app/app%20with%20space", gotPath)
}

func TestClient_MessageRoutes(t *testing.T) {
	var paths []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(MessageOut{ID: "msg_1"})
		case r.URL.Path == "/api/v1/app/app_1/msg/msg_1/attempt":
			json.NewEncoder(w).Encode(MessageAttemptListOut{})
		default:
			json.NewEncoder(w).Encode(MessageOut{ID: "msg_1"})
		}
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Message.Create(ctx, "app_1", &MessageIn{EventType: "user.created", Payload: json.RawMessage(`{}`)}, nil)
	require.NoError(t, err)
	_, err = client.Message.Get(ctx, "app_1", "msg_1")
	require.NoError(t, err)
	_, err = client.Message.ListAttempts(ctx, "app_1", "msg_1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /api/v1/app/app_1/msg",
		"GET /api/v1/app/app_1/msg/msg_1",
		"GET /api/v1/app/app_1/msg/msg_1/attempt",
	}, paths)
}
