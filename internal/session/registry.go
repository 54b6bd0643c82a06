package session

import "sync"

// Registry maps browser session ids to their token stores. Stores are
// created on login or rehydrated from cookies after a restart, and
// removed on logout.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// Get returns the store for the given browser session id.
func (r *Registry) Get(sid string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stores[sid]
	return st, ok
}

// GetOrCreate returns the store for sid, creating an empty one if
// absent. created reports whether a new store was made.
func (r *Registry) GetOrCreate(sid string) (st *Store, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stores[sid]; ok {
		return st, false
	}
	st = NewStore()
	r.stores[sid] = st
	return st, true
}

// Remove deletes the store for sid. Idempotent.
func (r *Registry) Remove(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, sid)
}

// Len returns the number of registered stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}
