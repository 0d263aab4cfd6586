package state

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/vinayprograms/agentgrid/identity"
)

// MemoryStore implements Store with an in-process map.
// Suitable for tests and single-worker deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[identity.AgentID]memoryEntry
	rev     uint64
	closed  atomic.Bool
}

type memoryEntry struct {
	data []byte
	etag string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[identity.AgentID]memoryEntry),
	}
}

// Read returns the current state and etag for an agent.
func (s *MemoryStore) Read(ctx context.Context, agentID identity.AgentID) ([]byte, string, error) {
	if s.closed.Load() {
		return nil, "", ErrClosed
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.entries[agentID]
	if !exists {
		return nil, "", ErrNotFound
	}

	// Copy so callers cannot mutate stored state.
	data := make([]byte, len(entry.data))
	copy(data, entry.data)

	return data, entry.etag, nil
}

// Write stores state guarded by the supplied etag.
func (s *MemoryStore) Write(ctx context.Context, agentID identity.AgentID, data []byte, etag string) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.entries[agentID]
	if etag != "" {
		if !exists || current.etag != etag {
			return "", ErrConflict
		}
	}

	stored := make([]byte, len(data))
	copy(stored, data)

	s.rev++
	newEtag := strconv.FormatUint(s.rev, 10)
	s.entries[agentID] = memoryEntry{data: stored, etag: newEtag}

	return newEtag, nil
}

// Delete removes the agent's state.
func (s *MemoryStore) Delete(ctx context.Context, agentID identity.AgentID) error {
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, agentID)

	return nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}
