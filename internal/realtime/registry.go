package realtime

import "sync"

// Registry tracks live clients keyed by participant identity. It is the
// swappable part of the Hub; MemoryRegistry serves a single process.
type Registry interface {
	// Put stores c under its identity and returns the client it replaced, if any.
	Put(c *Client) *Client
	// Remove deletes identity only while it still maps to c.
	Remove(identity string, c *Client) bool
	Get(identity string) (*Client, bool)
	InRoom(roomCode string) []*Client
	Len() int
}

type MemoryRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{clients: make(map[string]*Client)}
}

func (r *MemoryRegistry) Put(c *Client) *Client {
	identity := c.Identity()
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.clients[identity]
	r.clients[identity] = c
	if prev == c {
		return nil
	}
	return prev
}

func (r *MemoryRegistry) Remove(identity string, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.clients[identity]; ok && current == c {
		delete(r.clients, identity)
		return true
	}
	return false
}

func (r *MemoryRegistry) Get(identity string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[identity]
	return c, ok
}

func (r *MemoryRegistry) InRoom(roomCode string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0)
	for _, c := range r.clients {
		if c.RoomCode() == roomCode {
			out = append(out, c)
		}
	}
	return out
}

func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
