package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/model"
	"github.com/arjunyel/svix-webhooks/internal/queue"
	"github.com/arjunyel/svix-webhooks/pkg/svix"
)

// Error definitions
var (
	ErrEndpointDisabled = errors.New("endpoint is disabled")
	ErrDeliveryFailed   = errors.New("delivery failed")
)

// maxResponseSnippet bounds how much of an endpoint's response body is
// kept on the attempt record.
const maxResponseSnippet = 512

// Executor performs a single webhook delivery: it signs the message
// payload with the endpoint's secret and POSTs it to the endpoint URL.
type Executor struct {
	httpClient *http.Client
}

// NewExecutor creates a delivery executor. The client's timeout bounds
// each attempt.
func NewExecutor(deliveryTimeout time.Duration) *Executor {
	return &Executor{
		httpClient: &http.Client{
			Timeout: deliveryTimeout,
		},
	}
}

// Deliver attempts one delivery and returns the attempt record. The
// returned error is non-nil when the attempt failed; the record is
// always populated.
func (e *Executor) Deliver(ctx context.Context, task *queue.MessageTask, msg *model.Message, ep *model.Endpoint) (attempt *model.MessageAttempt, err error) {
	attempt = model.NewMessageAttempt(msg.ID, ep.ID, ep.URL)
	attempt.Trigger = task.Trigger
	attempt.AttemptNumber = task.AttemptCount
	attempt.Status = model.AttemptFailed

	// Panic recovery: a bad endpoint must never take down the pool
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error().
				Str("msg_id", msg.ID).
				Str("endpoint_id", ep.ID).
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("delivery panicked")
			err = fmt.Errorf("delivery panicked: %v", r)
		}
	}()

	wh, err := svix.NewWebhook(ep.Secret)
	if err != nil {
		attempt.Response = err.Error()
		return attempt, fmt.Errorf("invalid endpoint secret: %w", err)
	}

	now := time.Now().UTC()
	signature := wh.Sign(msg.ID, now, msg.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(msg.Payload))
	if err != nil {
		attempt.Response = err.Error()
		return attempt, fmt.Errorf("failed to build delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(svix.HeaderWebhookID, msg.ID)
	req.Header.Set(svix.HeaderWebhookTimestamp, fmt.Sprintf("%d", now.Unix()))
	req.Header.Set(svix.HeaderWebhookSignature, signature)

	log := logger.WithMessage(msg.ID)
	log.Debug().
		Str("endpoint_id", ep.ID).
		Str("url", ep.URL).
		Int("attempt", task.AttemptCount).
		Msg("delivering message")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		attempt.Response = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("duration", duration).Msg("delivery timed out")
		} else {
			log.Warn().Err(err).Dur("duration", duration).Msg("delivery transport error")
		}
		return attempt, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	attempt.ResponseStatus = resp.StatusCode
	attempt.Response = string(snippet)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Warn().
			Int("status", resp.StatusCode).
			Dur("duration", duration).
			Msg("delivery rejected by endpoint")
		return attempt, fmt.Errorf("%w: endpoint returned status %d", ErrDeliveryFailed, resp.StatusCode)
	}

	attempt.Status = model.AttemptSuccess
	log.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("delivery succeeded")

	return attempt, nil
}
