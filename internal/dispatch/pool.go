package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arjunyel/svix-webhooks/internal/config"
	"github.com/arjunyel/svix-webhooks/internal/events"
	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/metrics"
	"github.com/arjunyel/svix-webhooks/internal/model"
	"github.com/arjunyel/svix-webhooks/internal/queue"
	"github.com/arjunyel/svix-webhooks/internal/store"
)

// State represents the dispatcher pool's current operational state
type State int

const (
	StateIdle         State = iota // Not processing, waiting to start
	StateBusy                      // Actively delivering
	StatePaused                    // Temporarily stopped, can resume
	StateShuttingDown              // Gracefully stopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StatePaused:
		return "paused"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Pool manages a pool of concurrent delivery goroutines. It coordinates
// task fetching, fan-out, retry scheduling, and graceful shutdown.
type Pool struct {
	id               string
	queue            *queue.RedisQueue
	dlq              *queue.DLQ
	store            *store.Store
	executor         *Executor
	heartbeat        *Heartbeat
	publisher        events.Publisher
	retrySchedule    []time.Duration
	config           *config.DispatcherConfig
	state            State
	stateMu          sync.RWMutex
	activeDeliveries sync.Map // Currently running deliveries (msgID:endpointID -> startedAt)
	wg               sync.WaitGroup
	stopCh           chan struct{}
	pauseCh          chan struct{}
	resumeCh         chan struct{}
	concurrencySem   chan struct{}
}

// NewPool creates a new dispatcher pool.
func NewPool(cfg *config.DispatcherConfig, dispatchCfg *config.DispatchConfig, q *queue.RedisQueue, dlq *queue.DLQ, st *store.Store, pub events.Publisher) *Pool {
	// Generate dispatcher ID if not provided
	dispatcherID := cfg.ID
	if dispatcherID == "" {
		dispatcherID = fmt.Sprintf("dispatcher-%s", uuid.New().String()[:8])
	}

	p := &Pool{
		id:             dispatcherID,
		queue:          q,
		dlq:            dlq,
		store:          st,
		publisher:      pub,
		retrySchedule:  dispatchCfg.RetrySchedule,
		config:         cfg,
		state:          StateIdle,
		stopCh:         make(chan struct{}),
		pauseCh:        make(chan struct{}),
		resumeCh:       make(chan struct{}),
		concurrencySem: make(chan struct{}, cfg.Concurrency),
	}

	p.executor = NewExecutor(dispatchCfg.DeliveryTimeout)
	p.heartbeat = NewHeartbeat(q.Client(), dispatcherID, cfg.HeartbeatInterval, cfg.HeartbeatTimeout)
	p.heartbeat.UpdateConcurrency(cfg.Concurrency)

	return p
}

// Start begins the dispatcher pool, spawning delivery goroutines
func (p *Pool) Start(ctx context.Context) error {
	p.stateMu.Lock()
	p.state = StateBusy
	p.stateMu.Unlock()
	p.heartbeat.UpdateState(StateBusy.String())

	// Start heartbeat to register with Redis
	p.heartbeat.Start(ctx)

	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, events.NewEvent(events.EventDispatcherJoined, events.DispatcherEventData(p.id, StateBusy.String()))); err != nil {
			logger.Warn().Err(err).Msg("failed to publish dispatcher joined event")
		}
	}

	// Spawn delivery goroutines (one per concurrency slot)
	for i := 0; i < p.config.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	// Spawn recovery goroutine to reclaim orphaned deliveries
	p.wg.Add(1)
	go p.recoveryLoop(ctx)

	logger.Info().
		Str("dispatcher_id", p.id).
		Int("concurrency", p.config.Concurrency).
		Msg("dispatcher pool started")

	return nil
}

// Stop gracefully stops the pool, waiting for in-flight deliveries
func (p *Pool) Stop(ctx context.Context) error {
	p.stateMu.Lock()
	p.state = StateShuttingDown
	p.stateMu.Unlock()
	p.heartbeat.UpdateState(StateShuttingDown.String())

	close(p.stopCh)

	// Wait for workers with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Str("dispatcher_id", p.id).Msg("dispatcher pool stopped gracefully")
	case <-time.After(p.config.ShutdownTimeout):
		logger.Warn().Str("dispatcher_id", p.id).Msg("dispatcher pool shutdown timed out")
	case <-ctx.Done():
		logger.Warn().Str("dispatcher_id", p.id).Msg("dispatcher pool shutdown canceled")
	}

	if p.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.publisher.Publish(pubCtx, events.NewEvent(events.EventDispatcherLeft, events.DispatcherEventData(p.id, StateShuttingDown.String()))); err != nil {
			logger.Warn().Err(err).Msg("failed to publish dispatcher left event")
		}
	}

	p.heartbeat.Stop()

	return nil
}

// Pause temporarily stops workers from fetching new deliveries
func (p *Pool) Pause() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state == StateBusy {
		p.state = StatePaused
		p.heartbeat.UpdateState(StatePaused.String())
		close(p.pauseCh)
		p.pauseCh = make(chan struct{})
		logger.Info().Str("dispatcher_id", p.id).Msg("dispatcher pool paused")
	}
}

// Resume continues delivery processing after a pause
func (p *Pool) Resume() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state == StatePaused {
		p.state = StateBusy
		p.heartbeat.UpdateState(StateBusy.String())
		close(p.resumeCh)
		p.resumeCh = make(chan struct{})
		logger.Info().Str("dispatcher_id", p.id).Msg("dispatcher pool resumed")
	}
}

// State returns the current pool state
func (p *Pool) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// ID returns the dispatcher's unique identifier
func (p *Pool) ID() string {
	return p.id
}

// ActiveDeliveries returns the count of in-flight deliveries
func (p *Pool) ActiveDeliveries() int {
	count := 0
	p.activeDeliveries.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// worker is the main loop for each delivery goroutine
func (p *Pool) worker(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	log := logger.WithDispatcher(p.id)
	log.Info().Int("worker_num", workerNum).Msg("delivery worker started")

	for {
		// Check for shutdown signal
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		// Block if paused locally, wait for resume
		if p.State() == StatePaused {
			select {
			case <-p.resumeCh:
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		// Check if paused via admin API (Redis flag)
		if paused, _ := IsDispatcherPaused(ctx, p.queue.Client(), p.id); paused {
			select {
			case <-time.After(1 * time.Second):
				continue
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		// Acquire semaphore slot (limits concurrency)
		select {
		case p.concurrencySem <- struct{}{}:
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}

		if err := p.processNext(ctx); err != nil {
			log.Error().Err(err).Msg("error processing delivery")
		}

		<-p.concurrencySem
	}
}

// processNext fetches and handles a single dispatch task
func (p *Pool) processNext(ctx context.Context) error {
	d, err := p.queue.Receive(ctx, p.id)
	if err != nil {
		return fmt.Errorf("failed to receive: %w", err)
	}

	if d == nil {
		return nil // No task available (timeout)
	}

	return p.handle(ctx, d)
}

// handle routes a task to its handler and acknowledges it. Every path
// acknowledges: a task that cannot be processed must not be redelivered
// forever.
func (p *Pool) handle(ctx context.Context, d *queue.Delivery) error {
	switch d.Task.Type {
	case queue.TaskHealthCheck:
		// Liveness probe, nothing to do
	case queue.TaskMessageBatch:
		p.handleBatch(ctx, d.Task.MessageBatch)
	case queue.TaskMessageV1:
		p.handleDelivery(ctx, d.Task.MessageV1)
	default:
		logger.Warn().Str("type", d.Task.TaskTypeString()).Msg("unknown task type, dropping")
	}

	if err := p.queue.Ack(ctx, d); err != nil {
		return fmt.Errorf("failed to acknowledge: %w", err)
	}
	return nil
}

// handleBatch fans a message out to its application's endpoints, one
// MessageV1 task per endpoint. Disabled endpoints and endpoints whose
// filter excludes the message's event type are skipped.
func (p *Pool) handleBatch(ctx context.Context, bt *queue.MessageBatchTask) {
	log := logger.WithMessage(bt.MsgID)

	msg, err := p.store.GetMessage(ctx, bt.MsgID)
	if err != nil {
		if errors.Is(err, model.ErrMessageNotFound) {
			log.Warn().Msg("message expired before fan-out, dropping")
			return
		}
		log.Error().Err(err).Msg("failed to load message for fan-out")
		return
	}

	var eps []*model.Endpoint
	if bt.ForceEndpoint != "" {
		ep, err := p.store.GetEndpoint(ctx, bt.ForceEndpoint)
		if err != nil {
			log.Warn().Str("endpoint_id", bt.ForceEndpoint).Msg("forced endpoint not found, dropping")
			return
		}
		eps = []*model.Endpoint{ep}
	} else {
		eps, err = p.store.ListEndpoints(ctx, bt.AppID)
		if err != nil {
			log.Error().Err(err).Msg("failed to list endpoints for fan-out")
			return
		}
	}

	enqueued := 0
	for _, ep := range eps {
		if ep.Disabled || !ep.WantsEventType(msg.EventType) {
			continue
		}
		t := queue.NewMessageTask(msg.ID, bt.AppID, ep.ID, bt.Trigger, 0)
		if err := p.queue.Send(ctx, t, queue.LaneMain); err != nil {
			log.Error().Err(err).Str("endpoint_id", ep.ID).Msg("failed to enqueue delivery")
			continue
		}
		enqueued++
	}

	log.Debug().Int("deliveries", enqueued).Msg("message fanned out")
}

// handleDelivery performs one delivery attempt and decides its fate:
// success, scheduled retry, or the dead letter queue.
func (p *Pool) handleDelivery(ctx context.Context, mt *queue.MessageTask) {
	log := logger.WithMessage(mt.MsgID)

	msg, err := p.store.GetMessage(ctx, mt.MsgID)
	if err != nil {
		log.Warn().Err(err).Msg("message unavailable, dropping delivery")
		return
	}

	ep, err := p.store.GetEndpoint(ctx, mt.EndpointID)
	if err != nil {
		log.Warn().Err(err).Str("endpoint_id", mt.EndpointID).Msg("endpoint unavailable, dropping delivery")
		return
	}
	if ep.Disabled {
		log.Debug().Str("endpoint_id", ep.ID).Msg("endpoint disabled, dropping delivery")
		return
	}

	key := mt.MsgID + ":" + mt.EndpointID
	p.activeDeliveries.Store(key, time.Now())
	defer p.activeDeliveries.Delete(key)
	p.heartbeat.UpdateActiveDeliveries(p.ActiveDeliveries())

	start := time.Now()
	attempt, execErr := p.executor.Deliver(ctx, mt, msg, ep)
	duration := time.Since(start)

	if err := p.store.RecordAttempt(ctx, attempt); err != nil {
		log.Error().Err(err).Msg("failed to record attempt")
	}
	metrics.RecordAttempt(attempt.Status.String(), duration.Seconds())

	if execErr == nil {
		p.publishAttempt(ctx, events.EventAttemptSuccess, mt, map[string]interface{}{
			"attempt_count":   mt.AttemptCount,
			"response_status": attempt.ResponseStatus,
		})
		return
	}

	p.handleFailure(ctx, mt, attempt, execErr)
}

// handleFailure schedules the next retry or moves the delivery to the DLQ
func (p *Pool) handleFailure(ctx context.Context, mt *queue.MessageTask, attempt *model.MessageAttempt, execErr error) {
	log := logger.WithMessage(mt.MsgID)

	if mt.AttemptCount < len(p.retrySchedule) {
		delay := p.retrySchedule[mt.AttemptCount]
		next := queue.NewMessageTask(mt.MsgID, mt.AppID, mt.EndpointID, mt.Trigger, mt.AttemptCount+1)
		dueAt := time.Now().UTC().Add(delay)

		if err := queue.ScheduleTask(ctx, p.queue.Client(), next, dueAt); err != nil {
			log.Error().Err(err).Msg("failed to schedule retry")
			return
		}

		log.Info().
			Str("endpoint_id", mt.EndpointID).
			Int("attempt_count", mt.AttemptCount).
			Dur("retry_in", delay).
			Msg("delivery failed, retry scheduled")

		p.publishAttempt(ctx, events.EventAttemptFailing, mt, map[string]interface{}{
			"attempt_count":   mt.AttemptCount,
			"response_status": attempt.ResponseStatus,
			"retry_in":        delay.String(),
		})
		return
	}

	// Retry schedule exhausted, move to dead letter queue
	if err := p.dlq.Add(ctx, mt, "retry schedule exhausted", execErr.Error()); err != nil {
		log.Error().Err(err).Msg("failed to add delivery to DLQ")
	}

	log.Warn().
		Str("endpoint_id", mt.EndpointID).
		Int("attempt_count", mt.AttemptCount).
		Msg("delivery exhausted, moved to DLQ")

	p.publishAttempt(ctx, events.EventAttemptExhausted, mt, map[string]interface{}{
		"attempt_count":   mt.AttemptCount,
		"response_status": attempt.ResponseStatus,
		"last_error":      execErr.Error(),
	})
}

func (p *Pool) publishAttempt(ctx context.Context, eventType events.EventType, mt *queue.MessageTask, extra map[string]interface{}) {
	if p.publisher == nil {
		return
	}
	event := events.NewEvent(eventType, events.AttemptEventData(mt.MsgID, mt.EndpointID, mt.AppID, extra))
	if err := p.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("failed to publish attempt event")
	}
}

// recoveryLoop periodically checks for orphaned deliveries from crashed
// dispatchers
func (p *Pool) recoveryLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HeartbeatInterval * 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.recoverOrphaned(ctx)
		}
	}
}

// recoverOrphaned claims and re-queues deliveries from dead dispatchers
func (p *Pool) recoverOrphaned(ctx context.Context) {
	deliveries, err := p.queue.ClaimOrphaned(ctx, p.id)
	if err != nil {
		logger.Error().Err(err).Msg("failed to claim orphaned deliveries")
		return
	}

	for _, d := range deliveries {
		logger.Info().
			Str("type", d.Task.TaskTypeString()).
			Str("lane", d.Lane.String()).
			Msg("recovered orphaned delivery")

		// Re-enqueue on the same lane, then acknowledge the old entry
		if err := p.queue.Send(ctx, d.Task, d.Lane); err != nil {
			logger.Error().Err(err).Msg("failed to re-enqueue recovered delivery")
			continue
		}

		if err := p.queue.Ack(ctx, d); err != nil {
			logger.Error().Err(err).Msg("failed to acknowledge recovered delivery")
		}
	}
}
