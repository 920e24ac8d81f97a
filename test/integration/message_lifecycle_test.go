//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunyel/svix-webhooks/internal/api"
	"github.com/arjunyel/svix-webhooks/internal/config"
	"github.com/arjunyel/svix-webhooks/internal/dispatch"
	"github.com/arjunyel/svix-webhooks/internal/events"
	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/queue"
	"github.com/arjunyel/svix-webhooks/internal/store"
)

func init() {
	logger.Init("error", false)
}

func testConfig() *config.Config {
	return &config.Config{
		Redis: config.RedisConfig{
			Addr:         "localhost:6379",
			DB:           15, // Separate DB for tests
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Dispatch: config.DispatchConfig{
			StreamPrefix:     "test_dispatch",
			ConsumerGroup:    "test_dispatchers",
			BlockTimeout:     1 * time.Second,
			ClaimMinIdle:     5 * time.Second,
			RetrySchedule:    []time.Duration{100 * time.Millisecond, time.Second},
			DeliveryTimeout:  5 * time.Second,
			AttemptRetention: time.Hour,
			MaxQueueSize:     10000,
			RateLimitRPS:     1000,
		},
		Server: config.ServerConfig{
			Host:         "localhost",
			Port:         8071,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Metrics: config.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Auth: config.AuthConfig{
			Enabled:           false,
			JWTSecret:         "integration-secret",
			PortalURL:         "http://localhost:8071/portal",
			DashboardTokenTTL: time.Hour,
		},
	}
}

func setupTestServer(t *testing.T) (*api.Server, *queue.RedisQueue, func()) {
	cfg := testConfig()

	client, err := store.NewClient(&cfg.Redis)
	require.NoError(t, err)

	st := store.New(client, cfg.Dispatch.AttemptRetention)

	redisQueue, err := queue.NewRedisQueue(client, &cfg.Dispatch)
	require.NoError(t, err)

	dlq := queue.NewDLQ(client)
	publisher := events.NewRedisPubSub(client)
	server := api.NewServer(cfg, st, redisQueue, dlq, publisher)

	cleanup := func() {
		ctx := context.Background()
		client.FlushDB(ctx)
		publisher.Close()
		client.Close()
	}

	return server, redisQueue, cleanup
}

func createApplication(t *testing.T, server *api.Server, name string) map[string]interface{} {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"name": name})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/app", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var app map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &app))
	return app
}

func TestMessageLifecycle_CreateAndGet(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	app := createApplication(t, server, "Lifecycle App")
	appID := app["id"].(string)

	// Send a message
	body, _ := json.Marshal(map[string]interface{}{
		"event_type": "user.created",
		"payload":    map[string]interface{}{"id": 42},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/app/"+appID+"/msg", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	msgID := msg["id"].(string)
	assert.NotEmpty(t, msgID)
	assert.Equal(t, "user.created", msg["event_type"])

	// Get the message back
	req = httptest.NewRequest(http.MethodGet, "/api/v1/app/"+appID+"/msg/"+msgID, nil)
	w = httptest.NewRecorder()

	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMessageLifecycle_Idempotency(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	app := createApplication(t, server, "Idempotent App")
	appID := app["id"].(string)

	body, _ := json.Marshal(map[string]interface{}{
		"event_type": "invoice.paid",
		"payload":    map[string]interface{}{"amount": 100},
	})

	send := func() (int, string) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/app/"+appID+"/msg", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("idempotency-key", "same-key")
		w := httptest.NewRecorder()
		server.ServeHTTP(w, req)

		var msg map[string]interface{}
		json.Unmarshal(w.Body.Bytes(), &msg)
		id, _ := msg["id"].(string)
		return w.Code, id
	}

	code1, id1 := send()
	require.Equal(t, http.StatusAccepted, code1)

	code2, id2 := send()
	assert.Equal(t, http.StatusOK, code2)
	assert.Equal(t, id1, id2)
}

func TestEndpointLifecycle(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	app := createApplication(t, server, "Endpoint App")
	appID := app["id"].(string)

	body, _ := json.Marshal(map[string]interface{}{
		"url":          "https://example.com/hook",
		"filter_types": []string{"user.created"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/app/"+appID+"/endpoint", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var ep map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ep))
	epID := ep["id"].(string)

	// The signing secret is fetchable and prefixed
	req = httptest.NewRequest(http.MethodGet, "/api/v1/app/"+appID+"/endpoint/"+epID+"/secret", nil)
	w = httptest.NewRecorder()

	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var secret map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &secret))
	assert.Contains(t, secret["key"], "whsec_")
}

func TestDashboardAccess_IssueAndLogout(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	app := createApplication(t, server, "Dashboard App")
	appID := app["id"].(string)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/dashboard-access/"+appID, nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var access map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &access))
	assert.NotEmpty(t, access["token"])
	assert.Contains(t, access["url"], appID)

	// Logging out revokes the token
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+access["token"])
	w = httptest.NewRecorder()

	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAdminEndpoints_Health(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "connected", resp["redis"])
}

func TestAdminEndpoints_Queues(t *testing.T) {
	server, _, cleanup := setupTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/admin/queues", nil)
	w := httptest.NewRecorder()

	server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "lanes")
	assert.Contains(t, resp, "total_pending")
	assert.Contains(t, resp, "dlq_size")
}

func TestDispatcherPool_StartStop(t *testing.T) {
	cfg := testConfig()
	cfg.Dispatcher = config.DispatcherConfig{
		ID:                "test-dispatcher",
		Concurrency:       2,
		HeartbeatInterval: 1 * time.Second,
		HeartbeatTimeout:  3 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}

	client, err := store.NewClient(&cfg.Redis)
	require.NoError(t, err)
	defer client.Close()

	st := store.New(client, cfg.Dispatch.AttemptRetention)

	redisQueue, err := queue.NewRedisQueue(client, &cfg.Dispatch)
	require.NoError(t, err)

	dlq := queue.NewDLQ(client)
	publisher := events.NewRedisPubSub(client)
	defer publisher.Close()

	pool := dispatch.NewPool(&cfg.Dispatcher, &cfg.Dispatch, redisQueue, dlq, st, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, pool.Start(ctx))
	assert.Equal(t, "test-dispatcher", pool.ID())

	time.Sleep(100 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	require.NoError(t, pool.Stop(stopCtx))

	client.FlushDB(context.Background())
}
