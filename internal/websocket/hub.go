package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message tells browsers a screen's visible state changed and should be
// fetched again.
type Message struct {
	Type       string `json:"type"`
	Screen     string `json:"screen"`
	Action     string `json:"action"`
	Count      int    `json:"count"`
	Refreshing bool   `json:"refreshing"`
	Admin      bool   `json:"admin"`
}

// Reloaded is the message sent after a screen's list was replaced.
func Reloaded(screen string, count int, refreshing, admin bool) Message {
	return Message{
		Type:       screen + "_reloaded",
		Screen:     screen,
		Action:     "reloaded",
		Count:      count,
		Refreshing: refreshing,
		Admin:      admin,
	}
}

// Hub fans messages out to every connected browser. It keeps the last
// message per screen so a new client starts from current state.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	last    map[string][]byte
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		last:    make(map[string][]byte),
		logger:  logger,
	}
}

// Register adds c and queues the latest message of every screen for it.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	for _, data := range h.last {
		select {
		case c.send <- data:
		default:
		}
	}
}

// Unregister removes c and closes its send channel. It is safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to all clients. Clients with a full buffer miss it.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if msg.Screen != "" {
		h.last[msg.Screen] = data
	}

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Debug("broadcast dropped for slow clients", "type", msg.Type, "dropped", dropped)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
