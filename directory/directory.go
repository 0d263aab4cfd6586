// Package directory maintains the placement map from agent ids to the
// workers currently hosting them.
//
// Placement is a side effect of message delivery: an entry is created
// lazily the first time a message addresses an agent with no current home,
// and removed when the owning worker disconnects or is purged. Application
// code never creates or destroys placements explicitly.
package directory

import (
	"sync"

	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/identity"
	"github.com/vinayprograms/agentgrid/registry"
)

// Directory is the single-writer placement map. At most one live placement
// exists per agent id; all writes serialize on one mutex, which is
// sufficient because a placement decision only ever touches one id.
type Directory struct {
	registry registry.Registry

	mu         sync.RWMutex
	placements map[identity.AgentID]string
}

// New creates a directory that places agents via the given registry, and
// subscribes to worker removals so placements on a dead worker are
// invalidated eagerly.
func New(reg registry.Registry) *Directory {
	d := &Directory{
		registry:   reg,
		placements: make(map[identity.AgentID]string),
	}
	reg.OnRemoved(d.InvalidateWorker)
	return d
}

// GetOrPlace resolves the worker hosting agentID, creating a placement if
// none exists. newPlacement reports whether this call created it.
//
// A type with no compatible worker returns a PLACEMENT_FAILED error. That
// is a recoverable delivery failure for this one target, not a reason to
// abort a wider publish.
func (d *Directory) GetOrPlace(agentID identity.AgentID) (workerID string, newPlacement bool, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if w, exists := d.placements[agentID]; exists {
		return w, false, nil
	}

	w, err := d.registry.CompatibleWorker(agentID.Type)
	if err != nil {
		return "", false, errors.PlacementFailed(agentID.Type,
			errors.WithAgentID(agentID.String()), errors.WithCause(err))
	}

	d.placements[agentID] = w
	return w, true, nil
}

// Lookup returns the current placement without creating one.
func (d *Directory) Lookup(agentID identity.AgentID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	w, exists := d.placements[agentID]
	return w, exists
}

// InvalidateWorker drops every placement pointing at the worker. The next
// message to any of those agents re-places them wherever the registry
// chooses.
func (d *Directory) InvalidateWorker(workerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, w := range d.placements {
		if w == workerID {
			delete(d.placements, id)
		}
	}
}

// Remove drops a single placement. Used when a worker reports that it no
// longer hosts the agent.
func (d *Directory) Remove(agentID identity.AgentID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.placements, agentID)
}

// Len returns the number of live placements.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.placements)
}
