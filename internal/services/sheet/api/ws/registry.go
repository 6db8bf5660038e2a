package ws

import "sync"

// registry tracks which sheets have a live connection. A sheet has a single
// writer at a time.
type registry struct {
	mu   sync.Mutex
	open map[string]struct{}
}

func newRegistry() *registry {
	return &registry{open: make(map[string]struct{})}
}

func (r *registry) acquire(sheetID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.open[sheetID]; busy {
		return false
	}
	r.open[sheetID] = struct{}{}
	return true
}

func (r *registry) release(sheetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, sheetID)
}
