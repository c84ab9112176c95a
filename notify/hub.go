// Package notify fans change notifications out to connected websocket
// clients so front-ends can refresh their graph view without polling.
package notify

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/wevn/wevn/models"
)

// Hub owns the set of connected clients. All registration and delivery
// happens on the Run goroutine, so no client map locking is needed.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	logger     *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 16),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until the channel world
// ends. Start it once, as a goroutine, before serving connections.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Infow("ws: client connected", "clients", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Infow("ws: client disconnected", "clients", len(h.clients))
			}
		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than block the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// Broadcast queues a change notification for every connected client.
// Safe to call from any goroutine.
func (h *Hub) Broadcast(n models.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		h.logger.Errorw("ws: failed to marshal notification", "error", err)
		return
	}
	h.broadcast <- payload
}
