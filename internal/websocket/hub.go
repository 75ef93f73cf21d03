package websocket

import (
	"encoding/json"
	"log"
	"sync"

	syncpkg "github.com/pipetrax/fieldsyncgo/internal/sync"
)

// Hub maintains the set of active clients and broadcasts sync events to them
type Hub struct {
	// Registered clients
	clients map[*Client]struct{}

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	// Outbound messages for all clients
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
		clients:    make(map[*Client]struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			log.Printf("📱 UI client connected: %s", client.ID)
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("📴 UI client disconnected: %s", client.ID)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Buffer full or client dead
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to every connected client
func (h *Hub) Broadcast(message interface{}) {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	select {
	case h.broadcast <- jsonMsg:
	default:
		// Nobody draining, drop rather than block the caller
	}
}

// RelayEvents forwards sync lifecycle events to connected clients until the
// channel closes. Run it in its own goroutine.
func (h *Hub) RelayEvents(events chan syncpkg.Event) {
	for ev := range events {
		h.Broadcast(ev)
	}
}
