package events

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 2 * time.Second
	// sendBuffer is how many events a client may fall behind before it is
	// dropped.
	sendBuffer = 64
)

type transport int

const (
	transportWS transport = iota
	transportTCP
)

// client owns one connection. Only its write loop touches the connection's
// write side.
type client struct {
	transport transport
	send      chan []byte
	write     func([]byte) error
	close     func() error
	remote    string
}

// Hub fans run events out to every connected client, websocket or raw TCP.
// BroadcastJSON never waits on a connection: each client has its own queue
// and write loop, and a client whose queue is full is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[any]*client // keyed by *websocket.Conn or net.Conn
	logger  *zap.Logger
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[any]*client),
		logger:  logger.Named("events"),
	}
}

func (h *Hub) Add(ws *websocket.Conn) {
	h.add(ws, &client{
		transport: transportWS,
		write: func(b []byte) error {
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			return ws.WriteMessage(websocket.TextMessage, b)
		},
		close:  ws.Close,
		remote: ws.RemoteAddr().String(),
	})
}

func (h *Hub) Remove(ws *websocket.Conn) {
	h.drop(ws)
}

// AddTCP registers a TCP client; events reach it as newline-terminated JSON.
func (h *Hub) AddTCP(conn net.Conn) {
	h.add(conn, &client{
		transport: transportTCP,
		write: func(b []byte) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_, err := conn.Write(append(b[:len(b):len(b)], '\n'))
			return err
		},
		close:  conn.Close,
		remote: conn.RemoteAddr().String(),
	})
}

func (h *Hub) RemoveTCP(conn net.Conn) {
	h.drop(conn)
}

// BroadcastJSON queues v for every client.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("marshal event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for key, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Debug("dropping slow client", zap.String("remote", c.remote))
			h.dropLocked(key, c)
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	var s Stats
	for _, c := range h.clients {
		switch c.transport {
		case transportWS:
			s.WSClients++
		case transportTCP:
			s.TCPClients++
		}
	}
	return s
}

func (h *Hub) add(key any, c *client) {
	c.send = make(chan []byte, sendBuffer)
	h.mu.Lock()
	h.clients[key] = c
	h.mu.Unlock()
	go h.writeLoop(key, c)
}

func (h *Hub) writeLoop(key any, c *client) {
	for b := range c.send {
		if err := c.write(b); err != nil {
			h.logger.Debug("write failed, dropping client", zap.String("remote", c.remote), zap.Error(err))
			h.drop(key)
			return
		}
	}
}

func (h *Hub) drop(key any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[key]; ok {
		h.dropLocked(key, c)
	}
}

// dropLocked ends the client's write loop and closes its connection. h.mu
// must be held.
func (h *Hub) dropLocked(key any, c *client) {
	delete(h.clients, key)
	close(c.send)
	_ = c.close()
}
