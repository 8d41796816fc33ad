package graph

import "sync"

// Registry is the set of task IDs that reached a terminal state. It only
// grows. Writes happen inside the Tracker's critical section; reads are safe
// from any goroutine.
type Registry struct {
	mu    sync.RWMutex
	ids   map[string]struct{}
	order []string
}

func newRegistry(capacity int) *Registry {
	return &Registry{ids: make(map[string]struct{}, capacity)}
}

// add records id and reports whether it was new.
func (r *Registry) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	r.order = append(r.order, id)
	return true
}

// Has reports whether id is terminal.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[id]
	return ok
}

// Len returns the number of terminal tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// IDs returns the terminal task IDs in completion order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
