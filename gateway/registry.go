package gateway

import (
	"sort"
	"sync"
	"time"
)

// ConnInfo describes one live connection.
type ConnInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remoteAddr"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// Registry tracks live connections. Add and Remove are idempotent so that
// racing connect and disconnect paths cannot double count.
type Registry struct {
	mu    sync.Mutex
	conns map[string]ConnInfo
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]ConnInfo)}
}

// Add registers info and reports whether it was new.
func (r *Registry) Add(info ConnInfo) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[info.ID]; ok {
		return false
	}
	r.conns[info.ID] = info
	return true
}

// Remove deregisters id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return false
	}
	delete(r.conns, id)
	return true
}

func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[id]
	return ok
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// List returns the live connections, oldest first.
func (r *Registry) List() []ConnInfo {
	r.mu.Lock()
	out := make([]ConnInfo, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}
