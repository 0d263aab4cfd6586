// Package registry tracks which workers can host which agent types and
// which workers are still alive.
//
// The registry drives placement: when the directory needs a home for an
// agent, CompatibleWorker picks a uniformly-random live worker supporting
// the type. Random selection is the whole load-balancing policy; placement
// is sticky once made, so no affinity or least-loaded heuristic is needed.
//
// The registry is single-homed. A deployment that needs a replicated
// registry fronts it with its own consistency mechanism; that is outside
// this package.
package registry

import (
	"errors"
	"time"
)

// Common errors.
var (
	ErrNoWorker      = errors.New("no compatible worker")
	ErrUnknownWorker = errors.New("unknown worker")
	ErrClosed        = errors.New("registry closed")
)

// Registry provides worker capability tracking and placement selection.
type Registry interface {
	// AddWorker records a newly connected worker.
	// Adding a known worker only refreshes its liveness.
	AddWorker(workerID string)

	// RemoveWorker forgets a worker and purges it from every per-type
	// supported-worker list. Removing an unknown worker is a no-op.
	RemoveWorker(workerID string)

	// RegisterAgentType idempotently records that the worker supports the
	// type, and refreshes the worker's liveness. Safe to call repeatedly.
	// Returns ErrUnknownWorker if the worker was never added.
	RegisterAgentType(agentType, workerID string) error

	// Touch refreshes a worker's liveness timestamp. Called for any inbound
	// traffic from the worker, heartbeats included.
	Touch(workerID string)

	// CompatibleWorker returns a uniformly-random live worker supporting
	// the type, or ErrNoWorker.
	CompatibleWorker(agentType string) (string, error)

	// SupportedTypes returns the types a worker registered, or
	// ErrUnknownWorker.
	SupportedTypes(workerID string) ([]string, error)

	// OnRemoved registers a callback fired whenever a worker is removed,
	// explicitly or by the liveness sweep. Callbacks run outside the
	// registry lock.
	OnRemoved(callback func(workerID string))

	// Close stops the liveness sweep.
	Close() error
}

// Config configures a registry.
type Config struct {
	// LivenessTimeout is how long a silent worker stays in the pool.
	// Default: 60 seconds.
	LivenessTimeout time.Duration

	// SweepInterval is how often stale workers are purged.
	// Default: 30 seconds.
	SweepInterval time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		LivenessTimeout: 60 * time.Second,
		SweepInterval:   30 * time.Second,
	}
}
