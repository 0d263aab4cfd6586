package routing

import (
	"sync"

	"github.com/vinayprograms/agentgrid/identity"
)

// Matcher resolves topics to target agent ids over a set of registered
// subscriptions.
//
// Resolve results are memoized per topic. Because subscription predicates
// can overlap arbitrarily, any mutation of the subscription set invalidates
// the whole cache rather than attempting partial invalidation.
type Matcher struct {
	mu    sync.RWMutex
	subs  []Subscription
	byID  map[string]int
	cache map[identity.TopicID][]identity.AgentID
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{
		byID:  make(map[string]int),
		cache: make(map[identity.TopicID][]identity.AgentID),
	}
}

// Add registers a subscription. Returns ErrDuplicateID if a subscription
// with the same id is already registered.
func (m *Matcher) Add(sub Subscription) error {
	if sub.ID() == "" {
		return ErrInvalidID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[sub.ID()]; exists {
		return ErrDuplicateID
	}

	m.byID[sub.ID()] = len(m.subs)
	m.subs = append(m.subs, sub)
	m.cache = make(map[identity.TopicID][]identity.AgentID)

	return nil
}

// Remove unregisters a subscription by id.
// Returns ErrNotFound for an unknown id.
func (m *Matcher) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, exists := m.byID[id]
	if !exists {
		return ErrNotFound
	}

	m.subs = append(m.subs[:idx], m.subs[idx+1:]...)
	delete(m.byID, id)
	for i := idx; i < len(m.subs); i++ {
		m.byID[m.subs[i].ID()] = i
	}
	m.cache = make(map[identity.TopicID][]identity.AgentID)

	return nil
}

// Resolve returns the agent ids mapped by every subscription matching the
// topic, in registration order. Duplicates are preserved: overlapping
// subscriptions produce a multiset, and conflict resolution is left to
// idempotent handlers. The returned slice is the caller's to keep;
// mutating it does not affect later resolves.
func (m *Matcher) Resolve(topic identity.TopicID) []identity.AgentID {
	m.mu.RLock()
	if cached, ok := m.cache[topic]; ok {
		m.mu.RUnlock()
		return append([]identity.AgentID(nil), cached...)
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the write lock; another caller may have filled it.
	if cached, ok := m.cache[topic]; ok {
		return append([]identity.AgentID(nil), cached...)
	}

	var targets []identity.AgentID
	for _, sub := range m.subs {
		if sub.Match(topic) {
			targets = append(targets, sub.Map(topic))
		}
	}
	m.cache[topic] = targets

	return append([]identity.AgentID(nil), targets...)
}

// Len returns the number of registered subscriptions.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}
