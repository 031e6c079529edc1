package realtime

import (
	"context"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

const defaultClientBuffer = 64

// Feed is the upstream side of symbol subscriptions.
type Feed interface {
	Acquire(symbol string)
	Release(symbol string)
}

type Client struct {
	id   uint64
	send chan []byte
	subs map[string]struct{}
}

// Send yields the frames queued for this client. It is closed on unregister.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Hub tracks connected clients and their symbol subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	nextID  uint64
	buffer  int
	feed    Feed
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Hub{clients: map[*Client]struct{}{}, buffer: buffer}
}

// UseFeed attaches the upstream feed. Call before serving clients.
func (h *Hub) UseFeed(feed Feed) {
	h.feed = feed
}

func (h *Hub) Register() *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	c := &Client{id: h.nextID, send: make(chan []byte, h.buffer), subs: map[string]struct{}{}}
	h.clients[c] = struct{}{}
	return c
}

// Unregister drops the client and releases every symbol it held.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	symbols := make([]string, 0, len(c.subs))
	for s := range c.subs {
		symbols = append(symbols, s)
	}
	c.subs = map[string]struct{}{}
	close(c.send)
	h.mu.Unlock()

	if h.feed != nil {
		for _, s := range symbols {
			h.feed.Release(s)
		}
	}
}

// HandleMessage applies a client control message.
func (h *Hub) HandleMessage(c *Client, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	symbol, ok := msg.Symbol.(string)
	if !ok {
		return
	}
	switch msg.Type {
	case "subscribe":
		h.Subscribe(c, symbol)
	case "unsubscribe":
		h.Unsubscribe(c, symbol)
	}
}

// Subscribe reports whether symbol was new for the client.
func (h *Hub) Subscribe(c *Client, symbol string) bool {
	symbol = strings.ToUpper(symbol)
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return false
	}
	if _, dup := c.subs[symbol]; dup {
		h.mu.Unlock()
		return false
	}
	c.subs[symbol] = struct{}{}
	h.mu.Unlock()

	if h.feed != nil {
		h.feed.Acquire(symbol)
	}
	h.enqueue(c, encodeAck("subscribed", symbol))
	return true
}

func (h *Hub) Unsubscribe(c *Client, symbol string) bool {
	symbol = strings.ToUpper(symbol)
	h.mu.Lock()
	if _, ok := c.subs[symbol]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(c.subs, symbol)
	h.mu.Unlock()

	if h.feed != nil {
		h.feed.Release(symbol)
	}
	h.enqueue(c, encodeAck("unsubscribed", symbol))
	return true
}

// SubscriberCount is the number of clients holding symbol.
func (h *Hub) SubscriberCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if _, ok := c.subs[symbol]; ok {
			n++
		}
	}
	return n
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver sends frame to the clients subscribed to symbol.
func (h *Hub) Deliver(symbol string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if _, ok := c.subs[symbol]; ok {
			h.push(c, frame)
		}
	}
}

// Broadcast sends frame to every client.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.push(c, frame)
	}
}

func (h *Hub) enqueue(c *Client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		h.push(c, frame)
	}
}

// push must run under h.mu so the channel cannot be closed concurrently.
func (h *Hub) push(c *Client, frame []byte) {
	select {
	case c.send <- frame:
	default:
		logrus.WithField("clientID", c.id).Warn("client send buffer full, dropping frame")
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.Unregister(c)
	}
}

// HubPublisher delivers events straight to this instance's clients.
type HubPublisher struct {
	hub *Hub
}

func NewHubPublisher(hub *Hub) *HubPublisher {
	return &HubPublisher{hub: hub}
}

func (p *HubPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := EncodeEvent(eventType, body)
	if err != nil {
		return err
	}
	p.hub.Broadcast(frame)
	return nil
}
