// Package state provides the agent state store: an opaque key-value store
// keyed by agent id with optimistic-concurrency writes.
//
// A read returns the state bytes plus an etag; a write supplies the etag it
// read and fails with ErrConflict if someone wrote in between. An empty
// etag bypasses the check ("I don't care, just write"). Conflicts are the
// agent's to resolve — typically re-read and retry — not the store's.
package state

import (
	"context"
	"errors"

	"github.com/vinayprograms/agentgrid/identity"
)

// Common errors.
var (
	ErrNotFound = errors.New("no state for agent")
	ErrConflict = errors.New("etag conflict")
	ErrClosed   = errors.New("store closed")
)

// Store persists opaque per-agent state with optimistic concurrency.
type Store interface {
	// Read returns the current state and its etag.
	// Returns ErrNotFound if the agent has no stored state.
	Read(ctx context.Context, agentID identity.AgentID) (data []byte, etag string, err error)

	// Write stores state guarded by the supplied etag. Returns the new
	// etag on success and ErrConflict if the stored etag differs. An
	// empty etag writes unconditionally.
	Write(ctx context.Context, agentID identity.AgentID, data []byte, etag string) (newEtag string, err error)

	// Delete removes the agent's state. Deleting absent state is a no-op.
	Delete(ctx context.Context, agentID identity.AgentID) error

	// Close releases store resources.
	Close() error
}
