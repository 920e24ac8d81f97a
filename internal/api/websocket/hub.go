package websocket

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arjunyel/svix-webhooks/internal/events"
	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/metrics"
)

// A client that overflows its send buffer this many times in a row is
// considered stuck and disconnected.
const maxConsecutiveDrops = 8

// Hub fans operational events out to WebSocket clients. All client
// bookkeeping happens on the Run goroutine; the channels are the only
// way in, so no lock guards the client set.
type Hub struct {
	clients    map[*Client]int // value: consecutive dropped events
	broadcast  chan *events.Event
	register   chan *Client
	unregister chan *Client
	publisher  *events.RedisPubSub
	count      atomic.Int64
	stopCh     chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

// NewHub creates a new WebSocket hub.
func NewHub(publisher *events.RedisPubSub) *Hub {
	return &Hub{
		clients:    make(map[*Client]int),
		broadcast:  make(chan *events.Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publisher:  publisher,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until the context is cancelled or Stop is
// called.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	eventCh, err := h.publisher.SubscribeAll(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to subscribe to events")
		return
	}

	logger.Info().Msg("WebSocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case <-h.stopCh:
			h.closeAll()
			return

		case event, ok := <-eventCh:
			if !ok {
				h.closeAll()
				return
			}
			h.fanOut(event)

		case event := <-h.broadcast:
			h.fanOut(event)

		case client := <-h.register:
			h.clients[client] = 0
			h.count.Store(int64(len(h.clients)))
			metrics.SetWebSocketConnections(float64(len(h.clients)))
			logger.Debug().Str("client_id", client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.drop(client)
		}
	}
}

// Stop terminates the run loop. Safe to call more than once, and
// before Run has started.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
}

// Register adds a client. Returns without registering once the hub has
// stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stopCh:
	case <-h.done:
	}
}

// Unregister removes a client. Safe to call after the hub stopped.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stopCh:
	case <-h.done:
	}
}

// Broadcast queues an event for fan-out without blocking the caller.
func (h *Hub) Broadcast(event *events.Event) {
	select {
	case h.broadcast <- event:
	default:
		logger.Warn().Msg("broadcast channel full, dropping event")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// fanOut delivers one event to every subscribed client. Clients whose
// send buffer stays full across consecutive events are disconnected.
func (h *Hub) fanOut(event *events.Event) {
	data, err := event.ToJSON()
	if err != nil {
		logger.Error().Err(err).Msg("failed to serialize event for broadcast")
		return
	}

	var stuck []*Client
	for client, drops := range h.clients {
		if !client.IsSubscribed(event.Type) {
			continue
		}

		select {
		case client.send <- data:
			h.clients[client] = 0
			metrics.RecordWebSocketMessage(string(event.Type))
		default:
			h.clients[client] = drops + 1
			if drops+1 >= maxConsecutiveDrops {
				stuck = append(stuck, client)
			}
		}
	}

	for _, client := range stuck {
		logger.Warn().Str("client_id", client.ID).Msg("disconnecting stuck client")
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	h.count.Store(int64(len(h.clients)))
	metrics.SetWebSocketConnections(float64(len(h.clients)))
	logger.Debug().Str("client_id", client.ID).Msg("client unregistered")
}

func (h *Hub) closeAll() {
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.count.Store(0)
	metrics.SetWebSocketConnections(0)
	logger.Info().Msg("WebSocket hub stopped")
}
