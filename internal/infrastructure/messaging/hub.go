package messaging

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/pagecontent-go/internal/infrastructure/observability/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxReadSize    = 512
	clientBuffer   = 16
	broadcastQueue = 64
)

// Client is one websocket subscriber. An empty page filter receives every
// event; otherwise only events for that page and the shared scope.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	page string
}

// Hub fans events out to registered clients. Clients that cannot keep up
// are dropped.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan ContentEvent
	done       chan struct{}
	logger     *logging.ChanneledLogger
	mu         sync.RWMutex
}

var _ Publisher = (*Hub)(nil)

func NewHub(logger *logging.ChanneledLogger) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan ContentEvent, broadcastQueue),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, closing every
// client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Realtime().Info("Realtime hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Realtime().Info("Realtime hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Realtime().Debug("Client registered", "page", c.page, "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case evt := <-h.broadcast:
			h.deliver(evt)
		}
	}
}

func (h *Hub) deliver(evt ContentEvent) {
	msg, err := json.Marshal(evt)
	if err != nil {
		h.logger.Realtime().Error("Failed to encode event", "type", evt.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for c := range h.clients {
		if !c.wants(evt.PageID) {
			continue
		}
		select {
		case c.send <- msg:
			sent++
		default:
			delete(h.clients, c)
			close(c.send)
			h.logger.Realtime().Warn("Dropped slow client", "page", c.page)
		}
	}
	h.logger.Realtime().Debug("Event broadcast", "type", evt.Type, "pageId", evt.PageID, "clients", sent)
}

// Publish queues evt for delivery. When the queue is full the event is dropped.
func (h *Hub) Publish(evt ContentEvent) {
	select {
	case h.broadcast <- evt:
	default:
		h.logger.Realtime().Warn("Realtime queue full; dropping event", "type", evt.Type, "pageId", evt.PageID)
	}
}

// ClientCount is the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeClient registers conn and blocks until the connection ends.
func (h *Hub) ServeClient(conn *websocket.Conn, page string) {
	c := &Client{conn: conn, send: make(chan []byte, clientBuffer), page: page}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump()

	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (c *Client) wants(pageID string) bool {
	return c.page == "" || c.page == pageID || pageID == "shared"
}

// readPump drains client frames so control messages are processed.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxReadSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
