package web

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"curvehub/internal/application/port"
)

const writeTimeout = 5 * time.Second

// Hub fans messages out to every connected UI client. It implements
// port.Publisher; pollers and the tick relay both publish through it.
type Hub struct {
	metrics port.Metrics // optional

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn

	// gorilla connections allow one concurrent writer
	mu sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func NewHub(metrics port.Metrics) *Hub {
	return &Hub{
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast serializes the message once and writes it to every client.
// Clients whose write fails are dropped; a slow or dead client never blocks
// the others past the write timeout.
func (h *Hub) Broadcast(message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Error().Err(err).Msg("broadcast marshal failed")
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	var dropped []*client
	for _, c := range targets {
		if err := c.write(payload); err != nil {
			dropped = append(dropped, c)
		}
	}
	for _, c := range dropped {
		h.remove(c)
	}

	if h.metrics != nil {
		h.metrics.BroadcastSent(messageType(payload), len(targets)-len(dropped))
	}
}

// Serve upgrades the request and keeps reading until the client goes away.
// initial payloads (last-known curves) are delivered before the client sees
// any live broadcast.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial [][]byte) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn}
	for _, payload := range initial {
		if err := c.write(payload); err != nil {
			_ = conn.Close()
			return err
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ClientCount(n)
	}
	log.Info().Str("remote", r.RemoteAddr).Int("clients", n).Msg("ws client connected")

	// UI clients only listen; drain until the connection drops.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c)
	log.Info().Str("remote", r.RemoteAddr).Int("clients", h.ClientCount()).Msg("ws client disconnected")
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		if h.metrics != nil {
			h.metrics.ClientCount(n)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// messageType pulls the "type" discriminator out of a serialized message
// for the broadcast counter; payloads without one count as "curve".
func messageType(payload []byte) string {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil || probe.Type == "" {
		return "curve"
	}
	return probe.Type
}
