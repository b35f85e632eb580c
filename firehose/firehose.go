// Package firehose fans out an entity's successfully persisted events over
// WebSocket, for tailing what an event-sourced entity is doing the way an
// ops dashboard would. It is not part of the core's contract with the
// journal (SPEC_FULL.md §3.4) — entirely optional observability wired on
// top of a Journal via Tap.
//
// Grounded on internal/events/stream.go's subscribe/fan-out shape and
// main.go's websocket.Upgrader / ping-interval client loop.
package firehose

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"eventactor/runtime/internal/logging"
)

const (
	writeWait          = 10 * time.Second
	pongWaitMultiplier = 2
)

// Event is one persisted write, published to every connected client.
type Event struct {
	PersistenceID string `json:"persistence_id"`
	SequenceNr    uint64 `json:"sequence_nr"`
	Payload       any    `json:"payload"`
}

// Hub is a WebSocket fan-out point: Publish pushes an Event to every
// currently connected client, best-effort.
type Hub struct {
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	maxClients   int

	mu      sync.Mutex
	clients map[*client]struct{}
	log     *logging.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	log  *logging.Logger
}

// Config controls Hub behavior.
type Config struct {
	AllowedOrigins []string
	PingInterval   time.Duration
	MaxClients     int
	Logger         *logging.Logger
}

// NewHub constructs a Hub ready to be mounted at an HTTP path.
func NewHub(cfg Config) *Hub {
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.L()
	}
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		pingInterval: pingInterval,
		maxClients:   cfg.MaxClients,
		clients:      make(map[*client]struct{}),
		log:          log,
	}
}

// ServeHTTP upgrades the connection to a WebSocket and registers it as a
// fan-out target until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		http.Error(w, "too many firehose subscribers", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("firehose upgrade failed", logging.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 64), log: h.log}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	waitDuration := pongWaitMultiplier * h.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(waitDuration))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})

	go h.readLoop(c, waitDuration)
	h.writeLoop(c)
}

func (h *Hub) readLoop(c *client, waitDuration time.Duration) {
	defer h.deregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.log.Debug("firehose read deadline exceeded", logging.Error(err))
			} else if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("firehose read error", logging.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(waitDuration))
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.deregister(c)
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Warn("firehose write error", logging.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				c.log.Warn("firehose ping failure", logging.Error(err))
				return
			}
		}
	}
}

func (h *Hub) deregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Publish fans out event to every connected client, best-effort: a client
// whose send buffer is full has the event dropped rather than blocking the
// publisher, matching main.go's "dropping snapshot message: client buffer
// full" policy.
func (h *Hub) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("firehose marshal failed", logging.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Warn("dropping firehose event: client buffer full")
		}
	}
}

// ClientCount reports how many WebSocket clients are currently attached.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
