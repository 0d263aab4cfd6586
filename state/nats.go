package state

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vinayprograms/agentgrid/identity"
)

// NATSStore implements Store using NATS JetStream KV. The KV revision
// number is the etag, so optimistic writes map directly onto the bucket's
// compare-and-set operations.
type NATSStore struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	kv     jetstream.KeyValue
	config NATSStoreConfig
	closed atomic.Bool
}

// NATSStoreConfig holds NATS KV store configuration.
type NATSStoreConfig struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Bucket is the KV bucket name.
	Bucket string

	// History is the number of revisions to keep per key.
	// Default: 1
	History int

	// MaxValueSize is the maximum value size in bytes.
	// Default: 1MB
	MaxValueSize int32
}

// DefaultNATSStoreConfig returns configuration with sensible defaults.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		Bucket:       "agent-state",
		History:      1,
		MaxValueSize: 1024 * 1024, // 1MB
	}
}

// NewNATSStore creates a store backed by a JetStream KV bucket, creating
// the bucket if it does not exist.
func NewNATSStore(cfg NATSStoreConfig) (*NATSStore, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultNATSStoreConfig().Bucket
	}
	if cfg.History <= 0 {
		cfg.History = DefaultNATSStoreConfig().History
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = DefaultNATSStoreConfig().MaxValueSize
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       cfg.Bucket,
		History:      uint8(cfg.History),
		MaxValueSize: cfg.MaxValueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}

	return &NATSStore{
		conn:   cfg.Conn,
		js:     js,
		kv:     kv,
		config: cfg,
	}, nil
}

// Read returns the current state and etag for an agent.
func (s *NATSStore) Read(ctx context.Context, agentID identity.AgentID) ([]byte, string, error) {
	if s.closed.Load() {
		return nil, "", ErrClosed
	}

	entry, err := s.kv.Get(ctx, keyFor(agentID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("kv get: %w", err)
	}

	return entry.Value(), strconv.FormatUint(entry.Revision(), 10), nil
}

// Write stores state guarded by the supplied etag.
func (s *NATSStore) Write(ctx context.Context, agentID identity.AgentID, data []byte, etag string) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}

	key := keyFor(agentID)

	if etag == "" {
		rev, err := s.kv.Put(ctx, key, data)
		if err != nil {
			return "", fmt.Errorf("kv put: %w", err)
		}
		return strconv.FormatUint(rev, 10), nil
	}

	expected, err := strconv.ParseUint(etag, 10, 64)
	if err != nil {
		return "", ErrConflict
	}

	rev, err := s.kv.Update(ctx, key, data, expected)
	if err != nil {
		if isWrongRevision(err) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("kv update: %w", err)
	}

	return strconv.FormatUint(rev, 10), nil
}

// Delete removes the agent's state.
func (s *NATSStore) Delete(ctx context.Context, agentID identity.AgentID) error {
	if s.closed.Load() {
		return ErrClosed
	}

	err := s.kv.Delete(ctx, keyFor(agentID))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("kv delete: %w", err)
	}

	return nil
}

// Close marks the store closed. The NATS connection is owned by the
// caller and stays open.
func (s *NATSStore) Close() error {
	s.closed.Store(true)
	return nil
}

// keyFor maps an agent id onto a NATS-safe KV key. Agent keys are
// arbitrary printable ASCII, so the key part is base64-encoded; the type
// part is already a valid identifier.
func keyFor(id identity.AgentID) string {
	enc := base64.RawURLEncoding.EncodeToString([]byte(id.Key))
	if enc == "" {
		enc = "="
	}
	return id.Type + "." + enc
}

// isWrongRevision reports whether a KV update failed the revision check.
func isWrongRevision(err error) bool {
	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}
	return false
}
