// Package broadcast pushes small change-notification nudges over a
// WebSocket to connected dashboards. It is a supplemental signal only:
// /data remains the source of truth, and a dropped or missed nudge is
// harmless (the dashboard falls back to its normal poll cadence).
package broadcast

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	clientSendBuffer = 16
	writeTimeout     = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type nudge struct {
	Type string `json:"type"`
	At   string `json:"at"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan nudge
}

// Hub tracks connected clients and fans a nudge out to all of them.
// Adapted from the register/unregister/broadcast hub the teacher used
// for portfolio state, but the client set is a mutex-guarded map rather
// than channel-driven, and the payload is a two-field change
// notification instead of full state.
type Hub struct {
	log        zerolog.Logger
	maxClients int

	mu      sync.Mutex
	clients map[string]*client
}

func NewHub(log zerolog.Logger, maxClients int) *Hub {
	return &Hub{
		log:        log,
		maxClients: maxClients,
		clients:    make(map[string]*client),
	}
}

// ServeWS upgrades the connection and registers the client until it
// disconnects. Handler is intentionally minimal: this channel is
// write-only from the server's perspective, so reads are just used to
// detect client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan nudge, clientSendBuffer)}
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for n := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(n); err != nil {
			return
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

// Notify fans a change nudge out to every connected client. Slow
// clients are dropped rather than allowed to block the broadcast
// (non-blocking send with a default case).
func (h *Hub) Notify(kind string) {
	n := nudge{Type: kind, At: time.Now().UTC().Format("2006-01-02T15:04:05Z07:00")}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- n:
		default:
			h.log.Warn().Str("client", id).Msg("broadcast backpressure, dropping client")
			delete(h.clients, id)
			close(c.send)
		}
	}
}
