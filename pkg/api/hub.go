package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard runs on the LAN
	},
}

const writeTimeout = 5 * time.Second

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

// Hub fans deliveries out to every connected websocket client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*wsClient
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*wsClient)}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends d to all clients and drops the ones that fail.
func (h *Hub) Broadcast(d types.Delivery) {
	b := d.ToJsonBytes()
	if b == nil {
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(b); err != nil {
			h.remove(c.conn)
		}
	}
}

// Serve upgrades the request, sends the initial deliveries and then keeps
// reading until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial []types.Delivery) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &wsClient{conn: conn}

	for _, d := range initial {
		if b := d.ToJsonBytes(); b != nil {
			if err := c.send(b); err != nil {
				conn.Close()
				return err
			}
		}
	}

	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(conn)
			return nil
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		conn.Close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]*wsClient)
	h.mu.Unlock()
	for _, conn := range conns {
		conn.Close()
	}
}
