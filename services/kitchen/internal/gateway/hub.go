package gateway

import (
	"context"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
	maxReadBytes   = 512
)

type message struct {
	screenID string
	payload  []byte
}

// Hub fans notifications out to the websocket clients of each screen. All
// client bookkeeping happens on the Run goroutine.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan message
	clients    map[string]map[*client]struct{}
	logger     apt.Logger
	count      chan chan int
	done       chan struct{}
}

func NewHub(logger apt.Logger) *Hub {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan message, sendBufferSize),
		clients:    make(map[string]map[*client]struct{}),
		logger:     logger,
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					h.drop(c)
				}
			}
			return
		case c := <-h.register:
			set, ok := h.clients[c.screenID]
			if !ok {
				set = make(map[*client]struct{})
				h.clients[c.screenID] = set
			}
			set[c] = struct{}{}
			h.logger.Debug("screen client connected", "screen_id", c.screenID, "subscriber_id", c.id)
		case c := <-h.unregister:
			if _, ok := h.clients[c.screenID][c]; ok {
				h.drop(c)
				h.logger.Debug("screen client disconnected", "screen_id", c.screenID, "subscriber_id", c.id)
			}
		case msg := <-h.broadcast:
			for c := range h.clients[msg.screenID] {
				select {
				case c.send <- msg.payload:
				default:
					h.logger.Info("dropping slow screen client", "screen_id", c.screenID, "subscriber_id", c.id)
					h.drop(c)
				}
			}
		case reply := <-h.count:
			n := 0
			for _, set := range h.clients {
				n += len(set)
			}
			reply <- n
		}
	}
}

// Deliver queues payload for every client of the screen. It gives up when ctx
// is done.
func (h *Hub) Deliver(ctx context.Context, screenID string, payload []byte) {
	select {
	case h.broadcast <- message{screenID: screenID, payload: payload}:
	case <-ctx.Done():
	case <-h.done:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients(ctx context.Context) int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-ctx.Done():
		return 0
	case <-h.done:
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

// add registers c and reports false once the hub has stopped.
func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) drop(c *client) {
	set := h.clients[c.screenID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.screenID)
	}
	close(c.send)
	c.conn.Close()
}

type client struct {
	id       string
	screenID string
	hub      *Hub
	conn     *websocket.Conn
	snapshot chan []byte
	send     chan []byte
}

func (c *client) readPump() {
	defer c.hub.remove(c)
	c.conn.SetReadLimit(maxReadBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	// The snapshot always precedes relayed notifications. A closed snapshot
	// channel means it could not be built.
	first, ok := <-c.snapshot
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if !ok {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "snapshot unavailable"))
		return
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, first); err != nil {
		return
	}

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
