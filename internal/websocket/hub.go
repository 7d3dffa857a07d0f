package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/insight-back/pkg/models"
)

// RecentLimit caps the in-memory recent-news list. This is a display
// policy (the dashboard shows the 20 most recent items), not a data-model
// invariant.
const RecentLimit = 20

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongTimeout    = 60 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 64
)

// envelope is the message shape pushed to dashboard clients
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub fans streamed news items out to connected dashboard clients. New
// clients receive a replay of the recent list on join.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan models.NewsItem
	done       chan struct{}

	recent   []models.NewsItem // newest first
	recentMu sync.RWMutex

	connCount int
	connMu    sync.RWMutex

	upgrader websocket.Upgrader
	logger   *logrus.Entry
}

// Client represents one connected dashboard WebSocket
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates a new dashboard fan-out hub
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan models.NewsItem, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.WithField("component", "ws-hub"),
	}
}

// Run drives the hub's main loop until the context is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Unblock pumps that would otherwise send to register or
			// unregister after the loop is gone.
			close(h.done)
			for client := range h.clients {
				close(client.send)
				client.conn.Close()
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setConnCount(len(h.clients))
			h.replayRecent(client)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.setConnCount(len(h.clients))
			}

		case item := <-h.broadcast:
			h.remember(item)
			data, err := json.Marshal(envelope{Event: "news", Data: item})
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal news item")
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow consumer; drop it rather than block the hub.
					delete(h.clients, client)
					close(client.send)
					h.setConnCount(len(h.clients))
				}
			}
		}
	}
}

// Publish enqueues a news item for broadcast. Safe from any goroutine.
func (h *Hub) Publish(item models.NewsItem) {
	select {
	case h.broadcast <- item:
	default:
		h.logger.Warn("Broadcast queue full, dropping news item")
	}
}

// Recent returns a copy of the recent-news list, newest first
func (h *Hub) Recent() []models.NewsItem {
	h.recentMu.RLock()
	defer h.recentMu.RUnlock()

	out := make([]models.NewsItem, len(h.recent))
	copy(out, h.recent)
	return out
}

// GetConnectionCount returns the number of connected dashboard clients
func (h *Hub) GetConnectionCount() int {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return h.connCount
}

// HandleWebSocket upgrades an HTTP request into a hub connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		hub:  h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// remember prepends an item to the recent list and trims to the cap
func (h *Hub) remember(item models.NewsItem) {
	h.recentMu.Lock()
	defer h.recentMu.Unlock()

	h.recent = append([]models.NewsItem{item}, h.recent...)
	if len(h.recent) > RecentLimit {
		h.recent = h.recent[:RecentLimit]
	}
}

// replayRecent sends the recent list to a newly joined client
func (h *Hub) replayRecent(client *Client) {
	recent := h.Recent()
	if len(recent) == 0 {
		return
	}

	data, err := json.Marshal(envelope{Event: "news_snapshot", Data: recent})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal news snapshot")
		return
	}

	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) setConnCount(n int) {
	h.connMu.Lock()
	h.connCount = n
	h.connMu.Unlock()
}

// readPump discards inbound messages and keeps the pong deadline fresh
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the send channel and pings on an interval
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
