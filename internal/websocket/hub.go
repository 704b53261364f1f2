package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/HFI-UC/UtiOpia-sub001/internal/cache"
	"github.com/HFI-UC/UtiOpia-sub001/internal/metrics"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Hub maintains the set of live wall viewers and fans wall events out to
// them. With Redis configured, events travel through the wall channel so
// every server instance delivers them; otherwise they stay local.
type Hub struct {
	// Connected viewers
	clients map[*Client]struct{}

	// Encoded events waiting to be delivered
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Redis client for cross-instance fan-out, may be nil
	redis *cache.RedisClient

	// Mutex for thread-safe operations
	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub(redis *cache.RedisClient) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		redis:      redis,
	}
}

// Run starts the hub and blocks until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.redis != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			metrics.WebSocketConnections.Set(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketConnections.Set(float64(n))
			log.Debug().Str("remote", client.remote).Msg("wall viewer connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketConnections.Set(float64(n))
			log.Debug().Str("remote", client.remote).Msg("wall viewer disconnected")

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver sends message to every viewer, dropping viewers that cannot keep up.
func (h *Hub) deliver(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
	metrics.WebSocketConnections.Set(float64(len(h.clients)))
}

// subscribeToRedis relays wall events published by any instance.
func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.redis.SubscribeToWall(ctx)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast <- []byte(msg.Payload)
		}
	}
}

// Published announces a newly approved message.
func (h *Hub) Published(ctx context.Context, msg models.Message) {
	h.emit(ctx, models.WSMessage{Event: models.EventMessagePublished, Payload: msg})
}

// Removed announces that a message left the wall.
func (h *Hub) Removed(ctx context.Context, id uuid.UUID) {
	h.emit(ctx, models.WSMessage{
		Event:   models.EventMessageRemoved,
		Payload: models.WSMessageRemovedPayload{MessageID: id.String()},
	})
}

func (h *Hub) emit(ctx context.Context, event models.WSMessage) {
	if h.redis != nil {
		err := h.redis.PublishWallEvent(ctx, event)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("event", event.Event).Msg("redis publish failed, delivering locally")
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("event", event.Event).Msg("failed to encode wall event")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn().Str("event", event.Event).Msg("wall broadcast queue full, event dropped")
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
