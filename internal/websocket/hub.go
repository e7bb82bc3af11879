package websocket

import (
	"net/http"
	"sync"

	"crosslink-server/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy enforced by the auth middleware
	},
}

// Hub maps online user ids to their live delivery channel. It is the
// sole writer to those channels: every outbound event in the system
// goes through Send, so ordering and priority rules live in one place.
//
// At most one client per user id. A new registration replaces (and
// closes) the previous one — a user with several tabs gets pushes on
// the most recent connection only; the catch-up feed covers the rest.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]*Client
	buffer  int
}

func NewHub(buffer int) *Hub {
	return &Hub{
		clients: make(map[uint]*Client),
		buffer:  buffer,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	old := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if old != nil {
		old.close()
		logrus.WithField("user_id", c.userID).Debug("replaced live channel")
	}
}

// Unregister removes the mapping only if it still points at this
// client, so a replaced connection unregistering late cannot evict its
// successor.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	c.close()
}

// Send enqueues an event for a user. Non-blocking and best-effort:
// false when the user is offline or their buffer is full (the event is
// dropped, never queued for retry — reconnecting clients recover via
// the catch-up feed).
func (h *Hub) Send(userID uint, event engine.Event) bool {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return false
	}
	return c.enqueue(event)
}

// Online reports whether a user currently has a live channel.
func (h *Hub) Online(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[userID] != nil
}

// Client is one user's live channel. A single writePump goroutine
// drains the three priority buffers into the socket, which keeps
// delivery to a recipient totally ordered within a priority class and
// flushes confirmations ahead of likes ahead of staleness notices.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uint

	high   chan engine.Event
	normal chan engine.Event
	low    chan engine.Event

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		high:   make(chan engine.Event, hub.buffer),
		normal: make(chan engine.Event, hub.buffer),
		low:    make(chan engine.Event, hub.buffer),
		done:   make(chan struct{}),
	}
}

// Run starts the client's pumps. Returns immediately.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) enqueue(event engine.Event) bool {
	var ch chan engine.Event
	switch event.Priority {
	case engine.PriorityHigh:
		ch = c.high
	case engine.PriorityLow:
		ch = c.low
	default:
		ch = c.normal
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case ch <- event:
		return true
	default:
		// drop-new: the catch-up feed is the correctness backstop
		logrus.WithFields(logrus.Fields{
			"user_id": c.userID,
			"type":    event.Type,
		}).Warn("client buffer full, dropping event")
		return false
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		// drain higher priorities before ever touching lower ones
		select {
		case ev := <-c.high:
			if err := c.write(ev); err != nil {
				return
			}
			continue
		default:
		}
		select {
		case ev := <-c.high:
			if err := c.write(ev); err != nil {
				return
			}
			continue
		case ev := <-c.normal:
			if err := c.write(ev); err != nil {
				return
			}
			continue
		default:
		}

		select {
		case ev := <-c.high:
			if err := c.write(ev); err != nil {
				return
			}
		case ev := <-c.normal:
			if err := c.write(ev); err != nil {
				return
			}
		case ev := <-c.low:
			if err := c.write(ev); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Client) write(event engine.Event) error {
	if err := c.conn.WriteJSON(event); err != nil {
		logrus.WithError(err).WithField("user_id", c.userID).Debug("websocket write failed")
		return err
	}
	return nil
}

// readPump exists to notice disconnects; inbound frames carry nothing
// the engine consumes.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).Debug("websocket read error")
			}
			return
		}
	}
}

// Serve upgrades an authenticated HTTP request into a registered live
// channel.
func Serve(hub *Hub, c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("websocket upgrade failed")
		return
	}

	client := NewClient(hub, conn, userID.(uint))
	hub.Register(client)
	client.Run()
}
