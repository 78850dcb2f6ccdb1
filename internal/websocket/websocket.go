package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"wotrack/internal/events"
	"wotrack/internal/logging"
)

// client wraps a WebSocket connection with a mutex for thread-safe writes.
// workOrderID narrows delivery to one work order; zero means everything.
type client struct {
	conn        *ws.Conn
	mu          sync.Mutex
	workOrderID int64
}

// Options tunes connection keep-alive.
type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// Hub maintains connected dashboard clients and broadcasts change events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *slog.Logger
	opts    Options
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger, opts Options) *Hub {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logging.NewComponentLogger(logger, "websocket"),
		opts:    opts,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if known && c.conn != nil {
		_ = c.conn.Close()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends an event to every interested client. Clients whose write
// fails are dropped; only an unencodable event is reported as an error.
func (h *Hub) Publish(_ context.Context, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("ws: marshal %s event: %w", evt.Type, err)
	}
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.workOrderID != 0 && evt.WorkOrderID != 0 && c.workOrderID != evt.WorkOrderID {
			continue
		}
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
		writeErr := c.conn.WriteMessage(ws.TextMessage, data)
		c.mu.Unlock()

		if writeErr != nil {
			h.logger.Debug("dropping client after write failure", logging.Error(writeErr))
			h.unregister(c)
		}
	}
	return nil
}

// Upgrader is the default WebSocket upgrader.
var Upgrader = ws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the connection and keeps it alive with pings.
// The optional work_order_id query parameter limits the stream to one work order.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	var filter int64
	if raw := r.URL.Query().Get("work_order_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid work_order_id", http.StatusBadRequest)
			return
		}
		filter = id
	}

	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("upgrade failed", logging.Error(err))
		return
	}

	c := &client{conn: conn, workOrderID: filter}
	hub.register(c)
	hub.logger.Info("client connected", logging.Int("clients", hub.ClientCount()), logging.Int64("work_order_id", filter))

	readTimeout := 2 * hub.opts.PingInterval
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(hub.opts.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(hub.opts.WriteTimeout))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	hub.unregister(c)
	hub.logger.Info("client disconnected", logging.Int("clients", hub.ClientCount()))
}
