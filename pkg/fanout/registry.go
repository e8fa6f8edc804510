package fanout

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// Handle is a registered subscriber's membership token and wake-up signal.
type Handle struct {
	id     string
	signal chan struct{}
}

// ID returns the unique id of the handle.
func (h *Handle) ID() string {
	return h.id
}

// C fires after a NotifyAll. Notifications that arrive while one is pending are coalesced.
func (h *Handle) C() <-chan struct{} {
	return h.signal
}

func (h *Handle) notify() {
	select {
	case h.signal <- struct{}{}:
	default:
	}
}

// Registry is the set of live subscriber handles.
type Registry struct {
	mu      sync.Mutex
	handles map[*Handle]struct{} // GUARDED_BY(mu).
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[*Handle]struct{})}
}

// Register adds a new handle with the given id to the set. An empty id is replaced by a
// fresh ULID.
func (r *Registry) Register(id string) *Handle {
	if id == "" {
		id = ulid.Make().String()
	}

	h := &Handle{
		id:     id,
		signal: make(chan struct{}, 1),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handles[h] = struct{}{}
	return h
}

// Unregister removes h from the set. Removing a handle that is not registered is a no-op;
// the result reports whether h was removed by this call.
func (r *Registry) Unregister(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[h]; !ok {
		return false
	}
	delete(r.handles, h)
	return true
}

// NotifyAll signals every registered handle and returns how many were signaled. Signaling
// never blocks.
func (r *Registry) NotifyAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for h := range r.handles {
		h.notify()
	}
	return len(r.handles)
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}
