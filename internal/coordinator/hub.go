package coordinator

import (
	"sync"

	"github.com/google/uuid"

	"deliveryFieldOps/internal/channel"
)

const sendBuffer = 64

// client is one connected peer, regardless of transport. Outbound envelopes go
// through send; done closes when the peer is dropped.
type client struct {
	id        string
	transport string
	send      chan channel.Envelope
	done      chan struct{}
	once      sync.Once

	mu     sync.Mutex
	driver string
}

func newClient(transport string) *client {
	return &client{
		id:        uuid.NewString(),
		transport: transport,
		send:      make(chan channel.Envelope, sendBuffer),
		done:      make(chan struct{}),
	}
}

// deliver queues env for the peer. It reports false when the peer is gone. A
// peer whose buffer is full is dropped so it reconnects and refetches.
func (c *client) deliver(env channel.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	case <-c.done:
		return false
	default:
		c.close()
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) setDriver(name string) {
	c.mu.Lock()
	c.driver = name
	c.mu.Unlock()
}

func (c *client) driverName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver
}

// hub tracks connected clients for broadcast.
type hub struct {
	mu      sync.RWMutex
	clients map[string]*client
}

func newHub() *hub {
	return &hub{clients: make(map[string]*client)}
}

func (h *hub) add(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	c.close()
}

// broadcast delivers env to every client and returns how many accepted it.
func (h *hub) broadcast(env channel.Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.deliver(env) {
			n++
		}
	}
	return n
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// drivers lists the user names authenticated on live connections.
func (h *hub) drivers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, c := range h.clients {
		name := c.driverName()
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
