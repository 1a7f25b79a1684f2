// Package liveview fans reconstructed command lines out to connected
// browser clients over a websocket feed, grounded on houzhh15-mote's
// internal/gateway/websocket Hub/Client pattern. It is a domain-stack
// enrichment: the original implementation only ever prints reconstructed
// commands to stdout, so this gives the gorilla/mux + gorilla/websocket
// stack from the example pack a home in this repo.
package liveview

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 64 * 1024
)

// Line is a single reconstructed command event broadcast to clients.
type Line struct {
	Type      string `json:"type"`
	ShellID   string `json:"shell_id,omitempty"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Hub maintains the set of connected websocket clients and broadcasts
// reconstructed command lines to all of them.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// NewHub creates a Hub. Call Run in its own goroutine to start it.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
	}
}

// Run services register/unregister/broadcast. It returns only if the
// register channel is closed, which nothing in this package does, so it
// runs for the lifetime of the process.
func (h *Hub) Run() {
	for {
		select {
		case c, ok := <-h.register:
			if !ok {
				return
			}
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("liveview client connected", "client", c.id)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("liveview client disconnected", "client", c.id)

		case data := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- data:
				default:
					// slow consumer, drop rather than block the hub
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastLine encodes line as JSON and fans it out to every connected
// client. Safe to call from the tracer's output callback on any
// goroutine.
func (h *Hub) BroadcastLine(line Line) {
	data, err := json.Marshal(line)
	if err != nil {
		h.logger.Warn("liveview marshal failed", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("liveview broadcast buffer full, dropping line")
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
