package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arjunyel/svix-webhooks/internal/config"
	"github.com/arjunyel/svix-webhooks/internal/model"
)

const (
	appSetKey         = "apps"
	revokedKeyPrefix  = "auth:revoked:"
	maxAttemptsPerMsg = 1000
)

// NewClient creates a Redis client with connection pooling and verifies
// the connection before returning.
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// Store persists applications, endpoints, messages and delivery attempts
// in Redis. Entities are stored as JSON values with membership sets for
// enumeration.
type Store struct {
	client           *redis.Client
	attemptRetention time.Duration
}

// New creates a Store on top of an existing Redis client.
func New(client *redis.Client, attemptRetention time.Duration) *Store {
	return &Store{
		client:           client,
		attemptRetention: attemptRetention,
	}
}

// Client returns the underlying Redis client for direct access.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Applications

// CreateApplication stores a new application. If the application carries a
// UID, the UID must not already be mapped to another application.
func (s *Store) CreateApplication(ctx context.Context, app *model.Application) error {
	if app.UID != "" {
		ok, err := s.client.SetNX(ctx, s.appUIDKey(app.UID), app.ID, 0).Result()
		if err != nil {
			return fmt.Errorf("failed to reserve app uid: %w", err)
		}
		if !ok {
			return model.ErrUIDConflict
		}
	}

	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}

	if err := s.client.Set(ctx, s.appKey(app.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store application: %w", err)
	}

	s.client.SAdd(ctx, appSetKey, app.ID)
	return nil
}

// GetApplication retrieves an application by ID.
func (s *Store) GetApplication(ctx context.Context, appID string) (*model.Application, error) {
	data, err := s.client.Get(ctx, s.appKey(appID)).Bytes()
	if err == redis.Nil {
		return nil, model.ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	var app model.Application
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("failed to unmarshal application: %w", err)
	}
	return &app, nil
}

// GetApplicationByUID resolves an application by its caller-assigned UID.
func (s *Store) GetApplicationByUID(ctx context.Context, uid string) (*model.Application, error) {
	appID, err := s.client.Get(ctx, s.appUIDKey(uid)).Result()
	if err == redis.Nil {
		return nil, model.ErrApplicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve app uid: %w", err)
	}
	return s.GetApplication(ctx, appID)
}

// UpdateApplication overwrites an existing application.
func (s *Store) UpdateApplication(ctx context.Context, app *model.Application) error {
	app.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(app)
	if err != nil {
		return fmt.Errorf("failed to marshal application: %w", err)
	}
	return s.client.Set(ctx, s.appKey(app.ID), data, 0).Err()
}

// DeleteApplication removes an application, its UID mapping and its
// endpoint membership set. Endpoint and message bodies are left to expire.
func (s *Store) DeleteApplication(ctx context.Context, appID string) error {
	app, err := s.GetApplication(ctx, appID)
	if err != nil {
		return err
	}

	if app.UID != "" {
		s.client.Del(ctx, s.appUIDKey(app.UID))
	}
	s.client.SRem(ctx, appSetKey, appID)
	s.client.Del(ctx, s.appEndpointsKey(appID))
	return s.client.Del(ctx, s.appKey(appID)).Err()
}

// ListApplications returns all applications.
func (s *Store) ListApplications(ctx context.Context) ([]*model.Application, error) {
	ids, err := s.client.SMembers(ctx, appSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}

	apps := make([]*model.Application, 0, len(ids))
	for _, id := range ids {
		app, err := s.GetApplication(ctx, id)
		if err != nil {
			continue // Stale membership entry
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// Endpoints

// CreateEndpoint stores a new endpoint under its application.
func (s *Store) CreateEndpoint(ctx context.Context, ep *model.Endpoint) error {
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoint: %w", err)
	}

	if err := s.client.Set(ctx, s.endpointKey(ep.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store endpoint: %w", err)
	}

	s.client.SAdd(ctx, s.appEndpointsKey(ep.AppID), ep.ID)
	return nil
}

// GetEndpoint retrieves an endpoint by ID.
func (s *Store) GetEndpoint(ctx context.Context, endpointID string) (*model.Endpoint, error) {
	data, err := s.client.Get(ctx, s.endpointKey(endpointID)).Bytes()
	if err == redis.Nil {
		return nil, model.ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}

	var ep model.Endpoint
	if err := json.Unmarshal(data, &ep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal endpoint: %w", err)
	}
	return &ep, nil
}

// UpdateEndpoint overwrites an existing endpoint.
func (s *Store) UpdateEndpoint(ctx context.Context, ep *model.Endpoint) error {
	ep.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("failed to marshal endpoint: %w", err)
	}
	return s.client.Set(ctx, s.endpointKey(ep.ID), data, 0).Err()
}

// DeleteEndpoint removes an endpoint.
func (s *Store) DeleteEndpoint(ctx context.Context, appID, endpointID string) error {
	s.client.SRem(ctx, s.appEndpointsKey(appID), endpointID)
	return s.client.Del(ctx, s.endpointKey(endpointID)).Err()
}

// ListEndpoints returns all endpoints of an application.
func (s *Store) ListEndpoints(ctx context.Context, appID string) ([]*model.Endpoint, error) {
	ids, err := s.client.SMembers(ctx, s.appEndpointsKey(appID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}

	eps := make([]*model.Endpoint, 0, len(ids))
	for _, id := range ids {
		ep, err := s.GetEndpoint(ctx, id)
		if err != nil {
			continue
		}
		eps = append(eps, ep)
	}
	return eps, nil
}

// Messages

// CreateMessage stores a message with the configured retention TTL.
func (s *Store) CreateMessage(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.client.Set(ctx, s.messageKey(msg.ID), data, s.attemptRetention).Err()
}

// GetMessage retrieves a message by ID.
func (s *Store) GetMessage(ctx context.Context, msgID string) (*model.Message, error) {
	data, err := s.client.Get(ctx, s.messageKey(msgID)).Bytes()
	if err == redis.Nil {
		return nil, model.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// RecordAttempt appends a delivery attempt to the message's attempt log.
func (s *Store) RecordAttempt(ctx context.Context, attempt *model.MessageAttempt) error {
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to marshal attempt: %w", err)
	}

	key := s.attemptsKey(attempt.MsgID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -maxAttemptsPerMsg, -1)
	if s.attemptRetention > 0 {
		pipe.Expire(ctx, key, s.attemptRetention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the delivery attempts recorded for a message.
func (s *Store) ListAttempts(ctx context.Context, msgID string) ([]*model.MessageAttempt, error) {
	items, err := s.client.LRange(ctx, s.attemptsKey(msgID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	attempts := make([]*model.MessageAttempt, 0, len(items))
	for _, item := range items {
		var a model.MessageAttempt
		if err := json.Unmarshal([]byte(item), &a); err != nil {
			continue
		}
		attempts = append(attempts, &a)
	}
	return attempts, nil
}

// Token revocation

// RevokeToken records a dashboard token's jti as revoked until the token
// would have expired anyway.
func (s *Store) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.client.Set(ctx, revokedKeyPrefix+jti, "1", ttl).Err()
}

// IsTokenRevoked reports whether a token's jti has been revoked.
func (s *Store) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := s.client.Exists(ctx, revokedKeyPrefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return exists > 0, nil
}

func (s *Store) appKey(appID string) string {
	return fmt.Sprintf("app:%s", appID)
}

func (s *Store) appUIDKey(uid string) string {
	return fmt.Sprintf("appuid:%s", uid)
}

func (s *Store) appEndpointsKey(appID string) string {
	return fmt.Sprintf("app:%s:endpoints", appID)
}

func (s *Store) endpointKey(endpointID string) string {
	return fmt.Sprintf("endpoint:%s", endpointID)
}

func (s *Store) messageKey(msgID string) string {
	return fmt.Sprintf("msg:%s", msgID)
}

func (s *Store) attemptsKey(msgID string) string {
	return fmt.Sprintf("msg:%s:attempts", msgID)
}
