package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/capitalize-ai/messaging-gateway/pkg/logger"
	"github.com/capitalize-ai/messaging-gateway/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameBytes  = 4096
	sendBufferSize = 64
)

// Frame is the envelope written to websocket clients.
type Frame struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// Command is a subscription request sent by a client.
type Command struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Topic  string `json:"topic"`
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	topics map[string]struct{}
}

func (c *client) subscribe(topic string) {
	c.mu.Lock()
	c.topics[topic] = struct{}{}
	c.mu.Unlock()
}

func (c *client) unsubscribe(topic string) {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

func (c *client) wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for pattern := range c.topics {
		if Match(pattern, topic) {
			return true
		}
	}
	return false
}

// Match reports whether topic matches pattern. A trailing ">" matches any
// remaining suffix, so "chat.>" matches every conversation topic.
func Match(pattern, topic string) bool {
	if prefix, ok := strings.CutSuffix(pattern, ">"); ok {
		return strings.HasPrefix(topic, prefix)
	}
	return pattern == topic
}

// Hub is a websocket Sink. Clients choose topics with the "topics" query
// parameter and subscribe or unsubscribe at runtime with Command frames.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// Name implements Sink.
func (h *Hub) Name() string { return "websocket" }

// Publish implements Sink. Slow clients drop the frame instead of blocking.
func (h *Hub) Publish(_ context.Context, topic string, data []byte) error {
	frame, err := json.Marshal(Frame{Topic: topic, Data: data})
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("websocket client buffer full, dropping frame",
				zap.String("client_id", c.id), zap.String("topic", topic))
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]struct{}),
	}
	for _, t := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			c.subscribe(t)
		}
	}

	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	metrics.IncrementWebSocketConnections()
	h.logger.Debug("websocket client connected", zap.String("client_id", c.id))
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		metrics.DecrementWebSocketConnections()
	}
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected", zap.String("client_id", c.id))
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil || cmd.Topic == "" {
			continue
		}
		switch cmd.Action {
		case "subscribe":
			c.subscribe(cmd.Topic)
		case "unsubscribe":
			c.unsubscribe(cmd.Topic)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
