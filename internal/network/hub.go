// Package network exposes a running colony to players: a websocket hub that
// mirrors presentation updates and bus messages, and a small JSON HTTP API.
package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MRamiBalles/colony/server/internal/events"
	"github.com/MRamiBalles/colony/server/internal/platform/logger"
	"github.com/MRamiBalles/colony/server/internal/platform/metrics"
	"github.com/MRamiBalles/colony/server/internal/presentation"
)

// Frame kinds sent to clients.
const (
	FrameShow    = "show"
	FrameHide    = "hide"
	FrameRemove  = "remove"
	FrameUpdate  = "update"
	FrameFlag    = "flag"
	FramePrompt  = "prompt"
	FrameMessage = "message"
	FrameReply   = "reply"
	FrameView    = "view"
)

// Frame is one JSON message pushed to clients.
type Frame struct {
	Kind      string              `json:"kind"`
	Handle    presentation.Handle `json:"handle,omitempty"`
	View      any                 `json:"view,omitempty"`
	Flag      presentation.Flag   `json:"flag,omitempty"`
	On        bool                `json:"on,omitempty"`
	ForMs     int64               `json:"for_ms,omitempty"`
	Type      string              `json:"type,omitempty"`
	Payload   any                 `json:"payload,omitempty"`
	OK        bool                `json:"ok,omitempty"`
	Error     string              `json:"error,omitempty"`
	Timestamp int64               `json:"ts"`
}

// Hub maintains the set of active clients and broadcasts frames to them.
// It is a presentation.Sink; every method is non-blocking so the engine
// never waits on a slow socket.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	logger     *logger.Logger
	metrics    *metrics.Collector
	maxClients int
	now        func() time.Time
}

// NewHub initializes a new WebSocket Hub.
func NewHub(log *logger.Logger, m *metrics.Collector, maxClients, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		broadcast:  make(chan []byte, buffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     log,
		metrics:    m,
		maxClients: maxClients,
		now:        time.Now,
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket hub shutting down")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("WebSocket client connected", zap.Int("clients", n))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("WebSocket client disconnected")
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.trySend(message) {
					h.metrics.RecordWSMessage(false)
				} else {
					client.close()
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.metrics.RecordWSError()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Full reports whether the hub refuses new clients.
func (h *Hub) Full() bool {
	if h.maxClients <= 0 {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients) >= h.maxClients
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues f for every client. Frames are dropped when the queue
// is full.
func (h *Hub) Broadcast(f Frame) {
	if f.Timestamp == 0 {
		f.Timestamp = h.now().UnixMilli()
	}
	payload, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("Failed to serialize frame", zap.String("kind", f.Kind), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.metrics.RecordWSError()
		h.logger.Warn("Broadcast queue full, frame dropped", zap.String("kind", f.Kind))
	}
}

// Follow mirrors every semantic bus message to the clients.
func (h *Hub) Follow(bus *events.Bus) events.Subscription {
	return bus.ObserveFunc(func(m events.Message) {
		h.Broadcast(Frame{Kind: FrameMessage, Type: m.Type.String(), Payload: m.Payload})
	}, events.Types()...)
}

func (h *Hub) Show(handle presentation.Handle) {
	h.Broadcast(Frame{Kind: FrameShow, Handle: handle})
}

func (h *Hub) Hide(handle presentation.Handle) {
	h.Broadcast(Frame{Kind: FrameHide, Handle: handle})
}

func (h *Hub) Remove(handle presentation.Handle) {
	h.Broadcast(Frame{Kind: FrameRemove, Handle: handle})
}

func (h *Hub) Update(handle presentation.Handle, v presentation.View) {
	h.Broadcast(Frame{Kind: FrameUpdate, Handle: handle, View: v})
}

func (h *Hub) SetFlag(handle presentation.Handle, f presentation.Flag, on bool, d time.Duration) {
	h.Broadcast(Frame{Kind: FrameFlag, Handle: handle, Flag: f, On: on, ForMs: d.Milliseconds()})
}

func (h *Hub) Prompt(handle presentation.Handle, v presentation.View) {
	h.Broadcast(Frame{Kind: FramePrompt, Handle: handle, View: v})
}

var _ presentation.Sink = (*Hub)(nil)
