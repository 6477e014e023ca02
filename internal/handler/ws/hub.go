package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"OraclePull/internal/domain/models"
	xlogger "OraclePull/pkg/logger"
	"OraclePull/pkg/util"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1024
)

// Message is what the server sends. Type is "subscribed" or "prices".
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type PricesPayload struct {
	Asset  string              `json:"asset"`
	Points []models.PricePoint `json:"points"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	symbol string // empty means every asset
	remote string
}

// Hub fans refreshed price points out to websocket clients. A client that
// cannot keep up is disconnected rather than slowing the refresher.
type Hub struct {
	l            *xlogger.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	sendBuffer   int

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type Option func(*Hub)

func WithPingInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingInterval = d
		}
	}
}

func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithAllowedOrigins restricts upgrades to the given origins; none allows all.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
}

func NewHub(l *xlogger.Logger, opts ...Option) *Hub {
	if l == nil {
		l = xlogger.Nop()
	}
	h := &Hub{
		l: l.With(xlogger.String("component", "ws")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingInterval: 30 * time.Second,
		sendBuffer:   64,
		clients:      make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/prices", h.Serve)
}

// Serve upgrades the request and streams prices until the client leaves.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &client{
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		symbol: util.NormalizeSymbol(c.QueryParam("symbol")),
		remote: c.RealIP(),
	}
	h.register(cl)
	if b, err := json.Marshal(Message{Type: "subscribed", Payload: map[string]string{"symbol": cl.symbol}}); err == nil {
		cl.send <- b
	}

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

// Broadcast implements the refresher's PriceBroadcaster.
func (h *Hub) Broadcast(asset string, points []models.PricePoint) {
	if len(points) == 0 {
		return
	}
	asset = util.NormalizeSymbol(asset)
	b, err := json.Marshal(Message{Type: "prices", Payload: PricesPayload{Asset: asset, Points: points}})
	if err != nil {
		h.l.Error("encode broadcast failed", xlogger.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for cl := range h.clients {
		if cl.symbol != "" && cl.symbol != asset {
			continue
		}
		select {
		case cl.send <- b:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.l.Warn("dropping slow websocket client", xlogger.String("remote", cl.remote))
		h.unregister(cl)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for cl := range clients {
		close(cl.send)
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.l.Info("websocket client connected",
		xlogger.String("remote", cl.remote),
		xlogger.String("symbol", cl.symbol),
		xlogger.Int("clients", n))
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl]
	if ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	h.mu.Unlock()
	if ok {
		h.l.Info("websocket client disconnected", xlogger.String("remote", cl.remote))
	}
}

// readPump only watches for close and pong frames.
func (h *Hub) readPump(cl *client) {
	defer h.unregister(cl)
	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Debug("websocket read failed", xlogger.String("remote", cl.remote), xlogger.Error(err))
			}
			return
		}
	}
}

// writePump owns every write on the connection.
func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case b, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
