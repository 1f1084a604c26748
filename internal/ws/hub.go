package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/kiwari-pos/terminal/internal/session"
	"go.uber.org/zap"
)

// Event is a WebSocket message pushed to terminal front ends.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// terminalEvent routes an event to one terminal's room.
type terminalEvent struct {
	TerminalID uuid.UUID
	Event      Event
}

var _ session.Notifier = (*Hub)(nil)

// Hub maintains the set of active clients per terminal and broadcasts
// session events to them.
type Hub struct {
	// Registered clients by terminal ID
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *terminalEvent

	// Closed when Run returns; join and leave stop waiting on it.
	stopped chan struct{}

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *terminalEvent, 256),
		stopped:    make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.terminalID] == nil {
				h.rooms[client.terminalID] = make(map[*Client]bool)
			}
			h.rooms[client.terminalID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.terminalID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.terminalID)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				h.logger.Error("marshal ws event", zap.String("type", event.Event.Type), zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.TerminalID] {
				select {
				case client.send <- message:
				default:
					// Slow consumer: drop it rather than stall the terminal.
					close(client.send)
					delete(h.rooms[event.TerminalID], client)
					if len(h.rooms[event.TerminalID]) == 0 {
						delete(h.rooms, event.TerminalID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// join adds c to its terminal's room. It reports false once the hub has
// stopped.
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		return false
	}
}

// leave removes c from its room. After shutdown closeAll has already
// released every client, so there is nothing left to do.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.rooms {
		for client := range clients {
			close(client.send)
		}
		delete(h.rooms, id)
	}
}

// BroadcastToTerminal queues an event for every client watching a terminal.
// It never blocks; when the queue is full the event is dropped and logged.
func (h *Hub) BroadcastToTerminal(terminalID uuid.UUID, event Event) {
	select {
	case h.broadcast <- &terminalEvent{TerminalID: terminalID, Event: event}:
	default:
		h.logger.Warn("ws broadcast queue full, event dropped",
			zap.String("terminal_id", terminalID.String()),
			zap.String("type", event.Type))
	}
}

// Notify forwards a session event to the terminal's room, with the session
// view as payload.
func (h *Hub) Notify(terminalID uuid.UUID, e session.Event) {
	payload, err := json.Marshal(e.View)
	if err != nil {
		h.logger.Error("marshal session view", zap.String("type", e.Type), zap.Error(err))
		return
	}
	h.BroadcastToTerminal(terminalID, Event{Type: e.Type, Payload: payload})
}

// Clients is the number of connections watching a terminal.
func (h *Hub) Clients(terminalID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[terminalID])
}
