package dapp

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GPTx-global/flightsurety/oracle/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

type subscriber struct {
	socket *websocket.Conn
	send   chan []byte
}

// Hub pushes display events to every connected page.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*subscriber]struct{}
	upgrader websocket.Upgrader
	attach   func(add func(snapshot []byte)) error
}

// NewHub builds a hub. Subscribers get a snapshot first when SetSnapshot was called.
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// SetSnapshot sets how new subscribers are attached. attach must call add with
// the greeting message while holding off any concurrent Broadcast of its own
// events, as Display.Attach does.
func (h *Hub) SetSnapshot(attach func(add func(snapshot []byte)) error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.attach = attach
}

// Broadcast queues msg for every subscriber, dropping those that cannot keep up.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			log.Debugf("dropped slow display subscriber %s", c.socket.RemoteAddr())
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// ServeHTTP upgrades the request and streams display events until the page goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	c := &subscriber{socket: socket, send: make(chan []byte, sendBuffer)}

	h.mu.RLock()
	attach := h.attach
	h.mu.RUnlock()

	if attach == nil {
		h.add(c, nil)
	} else if err := attach(func(msg []byte) { h.add(c, msg) }); err != nil {
		log.Errorf("failed to build display snapshot: %v", err)
		h.add(c, nil)
	}

	log.Debugf("display subscriber connected: %s", socket.RemoteAddr())

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) add(c *subscriber, greeting []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if greeting != nil {
		c.send <- greeting
	}
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump only keeps the connection alive; pages never send anything we act on.
func (h *Hub) readPump(c *subscriber) {
	defer func() {
		h.remove(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("display subscriber error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
