package relay

import (
	"sync"

	"github.com/luciancaetano/drc"
)

// Registry is the authoritative set of connected clients keyed by identity.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register adds c. It fails with drc.ErrClientExists when the identity is taken.
func (r *Registry) Register(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[c.ID()]; ok {
		return drc.ErrClientExists
	}
	r.clients[c.ID()] = c
	return nil
}

// Deregister removes the client with the given identity and reports whether
// it was present. Removing an absent identity is a no-op.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

// Get returns the client registered under id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// SnapshotOthers returns every registered client except the one with
// identity excluding. Order is unspecified.
func (r *Registry) SnapshotOthers(excluding string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		if id == excluding {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Snapshot returns every registered client.
func (r *Registry) Snapshot() []*Client {
	return r.SnapshotOthers("")
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
