package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"ai-interview-be/internal/pkg/logger"
	"ai-interview-be/pkg/transport/wire"

	"github.com/redis/go-redis/v9"
)

// clusterChannel carries session events between instances so a candidate
// reconnecting to a different instance still receives server pushes.
const clusterChannel = "interview_events"

// Hub tracks live interview connections keyed by session token. A session
// has at most one active connection; a newer connection for the same token
// replaces the older one.
type Hub struct {
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	// Redis connection for cross-instance fan-out, may be nil.
	rdb *redis.Client

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]*Client),
		rdb:        rdb,
		logger:     log,
	}
}

func (h *Hub) Run() {
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.Token]; ok && old != client {
				// Reconnect: the replacement wins, the stale socket goes away.
				close(old.Send)
				h.logger.Info("Hub", "Replacing stale connection", map[string]interface{}{"token": client.Token})
			}
			h.clients[client.Token] = client
			h.mu.Unlock()
			h.logger.Info("Hub", "Session connected", map[string]interface{}{"token": client.Token})

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.Token]; ok && current == client {
				delete(h.clients, client.Token)
				close(client.Send)
				h.logger.Info("Hub", "Session disconnected", map[string]interface{}{"token": client.Token})
			}
			h.mu.Unlock()
		}
	}
}

// Emit delivers one envelope to the session's connection, locally if the
// socket lives on this instance and through Redis otherwise.
func (h *Hub) Emit(token, event string, payload interface{}) error {
	data, err := wire.Encode(event, payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	client, localFound := h.clients[token]
	h.mu.RUnlock()

	if localFound {
		select {
		case client.Send <- data:
			return nil
		default:
			h.logger.Warn("Hub", "Send buffer full, dropping connection", map[string]interface{}{"token": token})
			h.unregister <- client
		}
	}

	if h.rdb != nil {
		envelope, _ := json.Marshal(map[string]interface{}{
			"target_token": token,
			"message":      json.RawMessage(data),
		})
		return h.rdb.Publish(context.Background(), clusterChannel, envelope).Err()
	}
	return nil
}

func (h *Hub) subscribeToRedis() {
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var payload struct {
			TargetToken string          `json:"target_token"`
			Message     json.RawMessage `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			h.logger.Warn("Hub", "Malformed cluster event", map[string]interface{}{"error": err.Error()})
			continue
		}

		h.mu.RLock()
		client, ok := h.clients[payload.TargetToken]
		h.mu.RUnlock()

		if ok {
			select {
			case client.Send <- payload.Message:
			default:
				h.unregister <- client
			}
		}
	}
}
