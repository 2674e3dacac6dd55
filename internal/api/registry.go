package api

import (
	"sync"

	"github.com/atlas-desktop/journal-backend/pkg/types"
)

// ResultRegistry keeps the most recent simulation responses in memory and
// evicts the oldest once capacity is reached.
type ResultRegistry struct {
	mu       sync.RWMutex
	capacity int
	order    []string // oldest first
	entries  map[string]*types.SimulationResponse
}

// NewResultRegistry creates a registry holding at most capacity results.
func NewResultRegistry(capacity int) *ResultRegistry {
	if capacity <= 0 {
		capacity = 1
	}
	return &ResultRegistry{
		capacity: capacity,
		entries:  make(map[string]*types.SimulationResponse, capacity),
	}
}

// Put stores a response. It returns false if the ID is already present.
func (r *ResultRegistry) Put(resp *types.SimulationResponse) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[resp.ID]; exists {
		return false
	}
	for len(r.order) >= r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.entries, oldest)
	}
	r.order = append(r.order, resp.ID)
	r.entries[resp.ID] = resp
	return true
}

// Has reports whether id is retained.
func (r *ResultRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Get returns a retained response.
func (r *ResultRegistry) Get(id string) (*types.SimulationResponse, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	resp, ok := r.entries[id]
	return resp, ok
}

// List returns summaries of every retained response, newest first.
func (r *ResultRegistry) List() []types.SimulationSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.SimulationSummary, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.entries[r.order[i]].Summary())
	}
	return out
}

// Len returns the number of retained responses.
func (r *ResultRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
