package dashboard

import (
	"sync"

	"github.com/google/uuid"

	"docpulse/internal/metrics"
)

// Registry holds the dashboard contexts opened by HTTP clients.
type Registry struct {
	factory func() *Coordinator

	mu           sync.RWMutex
	coordinators map[uuid.UUID]*Coordinator
}

// NewRegistry creates a registry that builds coordinators with factory.
func NewRegistry(factory func() *Coordinator) *Registry {
	return &Registry{
		factory:      factory,
		coordinators: make(map[uuid.UUID]*Coordinator),
	}
}

// Create opens a new dashboard in the no-selection state.
func (r *Registry) Create() (uuid.UUID, *Coordinator) {
	id := uuid.New()
	c := r.factory()

	r.mu.Lock()
	r.coordinators[id] = c
	r.mu.Unlock()

	metrics.ActiveDashboards.Inc()
	return id, c
}

// Get returns the dashboard registered under id.
func (r *Registry) Get(id uuid.UUID) (*Coordinator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.coordinators[id]
	if !ok {
		return nil, ErrDashboardNotFound
	}
	return c, nil
}

// Remove closes and forgets the dashboard registered under id.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	c, ok := r.coordinators[id]
	delete(r.coordinators, id)
	r.mu.Unlock()

	if !ok {
		return ErrDashboardNotFound
	}

	c.Close()
	metrics.ActiveDashboards.Dec()
	return nil
}

// Len returns the number of open dashboards.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.coordinators)
}

// CloseAll closes every dashboard. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	open := r.coordinators
	r.coordinators = make(map[uuid.UUID]*Coordinator)
	r.mu.Unlock()

	for _, c := range open {
		c.Close()
		metrics.ActiveDashboards.Dec()
	}
}
