package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/aegis-secops/aegis/internal/ledger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// streamClient wraps a connection with a write lock, since the
// websocket library allows only one concurrent writer per connection.
type streamClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *streamClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)) //nolint:errcheck
	return c.conn.WriteMessage(messageType, data)
}

// StreamHub broadcasts completed mitigation records to connected
// websocket clients, giving dashboards a live feed instead of polling
// the history endpoint.
type StreamHub struct {
	mu       sync.Mutex
	clients  map[*streamClient]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHub creates a StreamHub.
func NewStreamHub(logger *zap.Logger) *StreamHub {
	return &StreamHub{
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browser dashboards connect cross-origin; auth happens at
			// the reverse proxy for this read-only feed.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Register mounts the stream route on the given router group.
func (h *StreamHub) Register(rg *gin.RouterGroup) {
	rg.GET("/mitigations/stream", h.Serve)
}

// Serve handles GET /mitigations/stream — upgrades to a websocket and
// keeps the connection registered until the client goes away.
func (h *StreamHub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("stream upgrade failed", zap.Error(err))
		return
	}

	client := &streamClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("stream client connected", zap.Int("clients", n))

	go h.keepAlive(client)

	// Reads are discarded; the loop exists to detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(client)
}

// Broadcast sends record to every connected client. Slow or dead clients
// are dropped rather than allowed to stall the engine.
func (h *StreamHub) Broadcast(record *ledger.Record) {
	payload, err := json.Marshal(record)
	if err != nil {
		h.logger.Error("stream broadcast marshal failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	clients := make([]*streamClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if err := client.write(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("stream client dropped on write", zap.Error(err))
			h.drop(client)
		}
	}
}

// keepAlive pings the client until the connection dies.
func (h *StreamHub) keepAlive(client *streamClient) {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := client.write(websocket.PingMessage, nil); err != nil {
			h.drop(client)
			return
		}
	}
}

func (h *StreamHub) drop(client *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.conn.Close()
	}
	h.mu.Unlock()
}
