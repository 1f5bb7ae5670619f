package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-notify/internal/lifecycle"
	"github.com/nerrad567/gray-logic-notify/internal/metrics"
	"github.com/nerrad567/gray-logic-notify/internal/subscription"
)

// Defaults used when the WebSocket config leaves a value unset.
const (
	defaultSendBufferSize = 256
	defaultPingInterval   = 30 * time.Second
	defaultPongWait       = 10 * time.Second
)

// ErrSendBufferFull is returned by Deliver when a client is not draining its queue.
var ErrSendBufferFull = errors.New("websocket send buffer full")

// Hub holds the live WebSocket connections of this process, keyed by
// connection id. It is the local delivery channel for fan-out.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[string]*WSClient
	mu      sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*WSClient),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client.id] = client
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketConnections.Inc()
	h.logger.Debug("websocket client connected", "connection_id", client.id, "clients", n)
}

// Unregister removes a client from the hub.
// Only the goroutine that removes the client from the map closes the send
// channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	current, existed := h.clients[client.id]
	if existed && current == client {
		delete(h.clients, client.id)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if existed && current == client {
		close(client.send)
		metrics.WebSocketConnections.Dec()
	}
	h.logger.Debug("websocket client disconnected", "connection_id", client.id, "clients", n)
}

// Deliver queues payload for the connection. The endpoint is ignored since
// every connection in the hub is local. A connection that is not in the hub
// is reported with subscription.ErrGone.
func (h *Hub) Deliver(_ context.Context, connectionID, _ string, payload []byte) error {
	h.mu.RLock()
	client, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: connection %s", subscription.ErrGone, connectionID)
	}
	return client.trySend(payload)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, id)
		metrics.WebSocketConnections.Dec()
	}
}

func (h *Hub) sendBuffer() int {
	if h.cfg.SendBuffer > 0 {
		return h.cfg.SendBuffer
	}
	return defaultSendBufferSize
}

// handleWebSocket upgrades the connection, registers it with the hub and
// runs the $connect event. Browsers cannot set headers on a WebSocket
// handshake, so a token query parameter is accepted in place of the
// Authorization header.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	headers := r.Header.Clone()
	if headers.Get("Authorization") == "" {
		if token := r.URL.Query().Get("token"); token != "" {
			headers.Set("Authorization", "Bearer "+token)
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		id:   uuid.NewString(),
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, s.hub.sendBuffer()),
	}
	ev := lifecycle.Event{
		ConnectionID: client.id,
		DomainName:   s.deliveryDomain(),
		Stage:        s.stage,
	}

	// Register before $connect so an error reply can reach the client.
	s.hub.Register(client)
	go client.writePump(s.wsCfg)

	ctx := context.WithoutCancel(r.Context())
	connect := ev
	connect.RouteKey = lifecycle.RouteConnect
	connect.Headers = headers
	s.lifecycle.Handle(ctx, connect)

	go client.readPump(ctx, s.wsCfg, s.lifecycle, ev)
}

// deliveryDomain is the routing domain recorded for new connections. It
// comes from configuration only; the request Host header is client supplied
// and would let a caller redirect deliveries, with the management key, to
// a host of its choosing.
func (s *Server) deliveryDomain() string {
	if s.delivery.PublicDomain != "" {
		return s.delivery.PublicDomain
	}
	return s.delivery.LocalDomain
}

// readPump reads messages from the WebSocket connection. Every inbound
// message is a $default event; when the connection ends a $disconnect
// event is raised.
func (c *WSClient) readPump(ctx context.Context, cfg config.WebSocketConfig, events LifecycleHandler, ev lifecycle.Event) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		disconnect := ev
		disconnect.RouteKey = lifecycle.RouteDisconnect
		events.Handle(ctx, disconnect)
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval, pongWait := keepalive(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "connection_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "connection_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))

		msg := ev
		msg.RouteKey = lifecycle.RouteDefault
		events.Handle(ctx, msg)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval, pongWait := keepalive(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// keepalive returns the ping interval and pong wait, with defaults.
func keepalive(cfg config.WebSocketConfig) (pingInterval, pongWait time.Duration) {
	pingInterval = time.Duration(cfg.PingInterval) * time.Second
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	pongWait = time.Duration(cfg.PongTimeout) * time.Second
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	return pingInterval, pongWait
}

// trySend queues data for the client. A send on a channel closed during
// shutdown is reported as gone.
func (c *WSClient) trySend(data []byte) (err error) {
	defer func() {
		if recover() != nil {
			err = fmt.Errorf("%w: connection %s", subscription.ErrGone, c.id)
		}
	}()

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: connection %s", ErrSendBufferFull, c.id)
	}
}
