package buffer

import (
	"slices"
	"sync"
)

// Registry hands out one buffer per session key
type Registry struct {
	mu       sync.Mutex
	capacity int
	buffers  map[string]*Buffer
}

func NewRegistry(capacity int) *Registry {
	return &Registry{capacity: capacity, buffers: make(map[string]*Buffer)}
}

// Get returns the buffer of session, creating it on first use
func (r *Registry) Get(session string) *Buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buffers[session]; ok {
		return b
	}
	b := New(r.capacity)
	r.buffers[session] = b
	return b
}

// Lookup returns the buffer of session without creating it
func (r *Registry) Lookup(session string) (*Buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[session]
	return b, ok
}

func (r *Registry) Remove(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, session)
}

func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]string, 0, len(r.buffers))
	for k := range r.buffers {
		ret = append(ret, k)
	}
	slices.Sort(ret)
	return ret
}
