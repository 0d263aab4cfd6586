package registry

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// workerState is the registry-side record for one worker.
type workerState struct {
	supportedTypes map[string]struct{}
	lastSeen       time.Time
}

// MemoryRegistry is the in-process Registry used by a single-homed gateway.
type MemoryRegistry struct {
	config Config

	mu      sync.RWMutex
	workers map[string]*workerState
	byType  map[string]map[string]struct{} // agent type -> supporting worker ids
	removed []func(string)
	closed  bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMemoryRegistry creates a registry and starts its liveness sweep.
func NewMemoryRegistry(cfg Config) *MemoryRegistry {
	if cfg.LivenessTimeout <= 0 {
		cfg.LivenessTimeout = DefaultConfig().LivenessTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	r := &MemoryRegistry{
		config:  cfg,
		workers: make(map[string]*workerState),
		byType:  make(map[string]map[string]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go r.sweepLoop()

	return r
}

// AddWorker records a newly connected worker.
func (r *MemoryRegistry) AddWorker(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	if w, exists := r.workers[workerID]; exists {
		w.lastSeen = time.Now()
		return
	}

	r.workers[workerID] = &workerState{
		supportedTypes: make(map[string]struct{}),
		lastSeen:       time.Now(),
	}
}

// RemoveWorker forgets a worker and purges its per-type entries.
func (r *MemoryRegistry) RemoveWorker(workerID string) {
	r.mu.Lock()
	w, exists := r.workers[workerID]
	if exists {
		delete(r.workers, workerID)
		for t := range w.supportedTypes {
			r.dropFromType(t, workerID)
		}
	}
	callbacks := r.callbacksLocked()
	r.mu.Unlock()

	if exists {
		for _, cb := range callbacks {
			cb(workerID)
		}
	}
}

// RegisterAgentType records that the worker supports the type.
func (r *MemoryRegistry) RegisterAgentType(agentType, workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	w, exists := r.workers[workerID]
	if !exists {
		return ErrUnknownWorker
	}

	w.supportedTypes[agentType] = struct{}{}
	w.lastSeen = time.Now()

	if r.byType[agentType] == nil {
		r.byType[agentType] = make(map[string]struct{})
	}
	r.byType[agentType][workerID] = struct{}{}

	return nil
}

// Touch refreshes a worker's liveness timestamp.
func (r *MemoryRegistry) Touch(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, exists := r.workers[workerID]; exists {
		w.lastSeen = time.Now()
	}
}

// CompatibleWorker returns a uniformly-random live worker for the type.
func (r *MemoryRegistry) CompatibleWorker(agentType string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return "", ErrClosed
	}

	pool := r.byType[agentType]
	if len(pool) == 0 {
		return "", ErrNoWorker
	}

	candidates := make([]string, 0, len(pool))
	for id := range pool {
		candidates = append(candidates, id)
	}

	return candidates[rand.Intn(len(candidates))], nil
}

// SupportedTypes returns the sorted types a worker registered.
func (r *MemoryRegistry) SupportedTypes(workerID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, exists := r.workers[workerID]
	if !exists {
		return nil, ErrUnknownWorker
	}

	types := make([]string, 0, len(w.supportedTypes))
	for t := range w.supportedTypes {
		types = append(types, t)
	}
	sort.Strings(types)

	return types, nil
}

// OnRemoved registers a removal callback.
func (r *MemoryRegistry) OnRemoved(callback func(workerID string)) {
	r.mu.Lock()
	r.removed = append(r.removed, callback)
	r.mu.Unlock()
}

// Close stops the liveness sweep.
func (r *MemoryRegistry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh

	return nil
}

// dropFromType removes a worker from one per-type pool.
// Must be called with the lock held.
func (r *MemoryRegistry) dropFromType(agentType, workerID string) {
	pool := r.byType[agentType]
	if pool == nil {
		return
	}
	delete(pool, workerID)
	if len(pool) == 0 {
		delete(r.byType, agentType)
	}
}

// callbacksLocked snapshots the callback list.
// Must be called with the lock held.
func (r *MemoryRegistry) callbacksLocked() []func(string) {
	callbacks := make([]func(string), len(r.removed))
	copy(callbacks, r.removed)
	return callbacks
}

// sweepLoop periodically purges workers past the liveness timeout.
func (r *MemoryRegistry) sweepLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep removes every worker whose lastSeen exceeds the timeout.
func (r *MemoryRegistry) sweep() {
	now := time.Now()

	r.mu.Lock()
	var stale []string
	for id, w := range r.workers {
		if now.Sub(w.lastSeen) > r.config.LivenessTimeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		w := r.workers[id]
		delete(r.workers, id)
		for t := range w.supportedTypes {
			r.dropFromType(t, id)
		}
	}
	callbacks := r.callbacksLocked()
	r.mu.Unlock()

	for _, id := range stale {
		for _, cb := range callbacks {
			cb(id)
		}
	}
}
