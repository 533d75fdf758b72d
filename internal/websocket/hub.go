// Package websocket carries the dev server's reload channel: browsers hold
// a connection open and are told to reload after every successful rebuild.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/vei/internal/logging"
	"github.com/conneroisu/vei/internal/monitoring"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period. A peer that misses a pong within
	// writeWait is dropped.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 16
)

// MessageReload asks the page to reload itself.
const MessageReload = "reload"

// Message is the only frame sent to browsers.
type Message struct {
	Type string `json:"type"`
}

// Client is one connected browser.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
}

// HubOptions configure a Hub.
type HubOptions struct {
	// OriginPatterns are extra host patterns allowed to connect. Same-host
	// origins are always allowed.
	OriginPatterns []string
	// PingInterval defaults to 54s.
	PingInterval time.Duration
	Logger       logging.Logger
	Recorder       monitoring.Recorder
}

// Hub tracks connected browsers and fans broadcasts out to them. Delivery
// is best effort: a client whose send buffer is full is dropped.
type Hub struct {
	opts     HubOptions
	logger   logging.Logger
	recorder monitoring.Recorder

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = monitoring.NopRecorder{}
	}

	if opts.PingInterval <= 0 {
		opts.PingInterval = pingPeriod
	}

	return &Hub{
		opts:     opts,
		logger:   logger.WithComponent("websocket"),
		recorder: recorder,
		clients:  make(map[string]*Client),
	}
}

// ServeHTTP upgrades the request and keeps the connection until the peer
// goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !h.register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.writePump(ctx, client)
	h.readPump(ctx, client)
}

// Broadcast sends msg to every connected client and returns how many it
// was queued for.
func (h *Hub) Broadcast(msg Message) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	var sent int
	var slow []*Client
	for _, c := range h.clients {
		select {
		case c.send <- payload:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Debug(context.Background(), "Dropping slow client", "client", c.ID)
		h.unregister(c)
	}

	if msg.Type == MessageReload {
		h.recorder.IncReloadBroadcast()
	}

	return sent
}

// Reload broadcasts a reload message.
func (h *Hub) Reload() int {
	return h.Broadcast(Message{Type: MessageReload})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.recorder.SetConnectedClients(n)
	h.logger.Debug(context.Background(), "Client connected", "client", c.ID, "total", n)
	return true
}

// unregister removes c and closes its send channel once.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	h.recorder.SetConnectedClients(n)
	h.logger.Debug(context.Background(), "Client disconnected", "client", c.ID, "total", n)
}

// readPump drains the peer until it closes. Browsers never send data
// frames, so reads have no deadline; writePump's pings detect dead peers.
func (h *Hub) readPump(ctx context.Context, c *Client) {
	defer func() {
		h.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				h.logger.Debug(ctx, "WebSocket read ended", "client", c.ID, "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *Client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				h.logger.Debug(ctx, "WebSocket write failed", "client", c.ID, "error", err.Error())
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
