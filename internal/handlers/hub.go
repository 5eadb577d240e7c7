package handlers

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/musicquiz/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Client is one websocket connection registered with the Hub.
type Client struct {
	ID      uuid.UUID
	OutChan chan []byte

	codes map[string]struct{} // lobbies this connection is subscribed to
	quit  chan struct{}       // closed when the hub shuts down
}

// Quit is closed when the server is shutting down and the connection should be closed.
func (c *Client) Quit() <-chan struct{} { return c.quit }

// Hub fans outbound events out to connections. It implements lobby.Broadcaster.
//
// Delivery never blocks: when a client's outbox is full the message is dropped and logged.
type Hub struct {
	mu      sync.Mutex
	clients map[uuid.UUID]*Client
	groups  map[string]map[uuid.UUID]struct{}
	outbox  int
	closed  bool
	log     *logrus.Logger
}

func NewHub(outbox int, logger *logrus.Logger) *Hub {
	if outbox < 1 {
		outbox = 1
	}
	return &Hub{
		clients: make(map[uuid.UUID]*Client),
		groups:  make(map[string]map[uuid.UUID]struct{}),
		outbox:  outbox,
		log:     logger,
	}
}

// Register creates the outbox for a new connection. It returns false once the hub has shut down.
func (h *Hub) Register(id uuid.UUID) (*Client, bool) {
	c := &Client{
		ID:      id,
		OutChan: make(chan []byte, h.outbox),
		codes:   make(map[string]struct{}),
		quit:    make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.clients[id] = c
	return c, true
}

// Shutdown tells every connection to close and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, c := range h.clients {
		close(c.quit)
	}
	h.log.Infof("Hub: closing %d connections", len(h.clients))
}

// Unregister removes the connection from every group, closes its outbox and returns the lobby
// codes it was subscribed to.
func (h *Hub) Unregister(id uuid.UUID) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[id]
	if !ok {
		return nil
	}
	codes := make([]string, 0, len(c.codes))
	for code := range c.codes {
		codes = append(codes, code)
		if g := h.groups[code]; g != nil {
			delete(g, id)
			if len(g) == 0 {
				delete(h.groups, code)
			}
		}
	}
	delete(h.clients, id)
	close(c.OutChan)
	return codes
}

func (h *Hub) Subscribe(code string, conn uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[conn]
	if !ok {
		return
	}
	g := h.groups[code]
	if g == nil {
		g = make(map[uuid.UUID]struct{})
		h.groups[code] = g
	}
	g[conn] = struct{}{}
	c.codes[code] = struct{}{}
}

func (h *Hub) Broadcast(code string, ev protocol.Outbound) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.groups[code] {
		h.deliverUnsafe(id, ev.Kind(), data)
	}
}

func (h *Hub) Send(conn uuid.UUID, ev protocol.Outbound) {
	data, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliverUnsafe(conn, ev.Kind(), data)
}

// Release drops the broadcast group of a destroyed lobby.
func (h *Hub) Release(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.groups[code] {
		if c, ok := h.clients[id]; ok {
			delete(c.codes, code)
		}
	}
	delete(h.groups, code)
}

// Members returns the number of connections subscribed to code.
func (h *Hub) Members(code string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[code])
}

func (h *Hub) encode(ev protocol.Outbound) ([]byte, bool) {
	data, err := protocol.Encode(ev)
	if err != nil {
		h.log.Errorf("Hub: failed to encode %s: %v", ev.Kind(), err)
		return nil, false
	}
	return data, true
}

// deliverUnsafe assumes h.mu is held, which also keeps Unregister from closing the outbox mid-send.
func (h *Hub) deliverUnsafe(id uuid.UUID, kind protocol.Kind, data []byte) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	select {
	case c.OutChan <- data:
	default:
		h.log.Warnf("Hub: outbox full for %s, dropping %s", id, kind)
	}
}
