// Package websocket pushes sync lifecycle events to connected clients:
// the technician UI subscribes to see sync progress, escalated conflicts
// and upload completions without polling.
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event is the wire envelope for every pushed notification.
type Event struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Hub maintains the set of active clients and fans events out to them.
type Hub struct {
	// Registered clients map: ClientID -> Client
	clients map[string]*Client

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Outbound events to every client
	broadcast chan []byte

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[string]*Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if client.ClientID != "" {
				// If a client reconnects, close the old connection
				if old, ok := h.clients[client.ClientID]; ok {
					close(old.send)
					delete(h.clients, client.ClientID)
				}
				h.clients[client.ClientID] = client
				log.Printf("📱 Client connected: %s", client.ClientID)
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if client.ClientID != "" {
				if _, ok := h.clients[client.ClientID]; ok {
					delete(h.clients, client.ClientID)
					close(client.send)
					log.Printf("📴 Client disconnected: %s", client.ClientID)
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full or client dead, drop for this client
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish sends an event to every connected client. It satisfies the
// coordinator's event sink and never blocks the sync path.
func (h *Hub) Publish(event string, payload interface{}) {
	msg, err := json.Marshal(Event{
		Type:      event,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	})
	if err != nil {
		log.Printf("Error marshaling event %s: %v", event, err)
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("⚠️ Event queue full, dropping %s", event)
	}
}

// SendToClient sends a message to one specific client
func (h *Hub) SendToClient(clientID string, message interface{}) bool {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()

	if !ok {
		return false
	}

	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return false
	}

	select {
	case client.send <- jsonMsg:
		return true
	default:
		// Buffer full or client dead
		return false
	}
}
