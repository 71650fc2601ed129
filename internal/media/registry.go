package media

import (
	"sort"
	"sync"
)

// Registry maps handle ids to live handles. Bridge replies arrive on
// their own goroutines, so access is guarded.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

func (r *Registry) add(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[h.id] = h
}

func (r *Registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[id]
	delete(r.handles, id)
	return ok
}

// Get returns the handle registered under id
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Handles returns a snapshot of the registered handles ordered by id
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	list := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		list = append(list, h)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
	return list
}
