// WebSocket forwarding for the market and alert streams. One hub per
// stream drains its broker and broadcasts each event as a JSON frame to
// every connected client.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/finsense/feed-engine/internal/broker"
	"github.com/finsense/feed-engine/internal/metrics"
)

// WSHub manages WebSocket connections for one stream and broadcasts
// drained events to all connected clients.
type WSHub struct {
	stream     string // "market" or "alerts", used for logging and metrics
	source     *broker.Broker
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewWSHub creates a hub forwarding from the given broker.
func NewWSHub(stream string, source *broker.Broker) *WSHub {
	return &WSHub{
		stream:     stream,
		source:     source,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run drains the source broker and serves the hub's event loop until ctx
// is cancelled. Must be called in a goroutine.
func (h *WSHub) Run(ctx context.Context) {
	go h.pump(ctx)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.WithLabelValues(h.stream).Set(float64(total))
			slog.Info("ws client connected", "stream", h.stream, "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.WithLabelValues(h.stream).Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// pump moves events from the broker into the broadcast channel.
func (h *WSHub) pump(ctx context.Context) {
	for {
		e, err := h.source.Drain(ctx)
		if err != nil {
			return // context cancelled
		}
		data, err := json.Marshal(e)
		if err != nil {
			slog.Error("ws marshal failed", "stream", h.stream, "err", err)
			continue
		}
		select {
		case h.broadcast <- data:
		default:
			// Drop if the broadcast buffer is full; the broker already
			// applied its own recency-biased policy upstream.
		}
	}
}

func (h *WSHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	metrics.WebSocketClients.WithLabelValues(h.stream).Set(0)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "stream", h.stream, "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
