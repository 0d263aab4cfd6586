// Package transport provides the bidirectional envelope channel between a
// worker and the gateway.
//
// The Transport interface abstracts the wire: WebSocket for real
// deployments, an in-memory pipe for tests and single-process hosts. Within
// one transport, send order is preserved in transit; nothing is guaranteed
// across transports.
package transport

import (
	"context"
	"errors"

	"github.com/vinayprograms/agentgrid/envelope"
)

// Common errors.
var (
	ErrClosed      = errors.New("transport closed")
	ErrSendTimeout = errors.New("send timeout")
)

// Transport moves envelopes in both directions over one connection.
type Transport interface {
	// Recv returns the channel for incoming envelopes.
	// Channel is closed when the transport shuts down.
	Recv() <-chan *envelope.Envelope

	// Send queues an envelope for delivery.
	// Returns ErrClosed if the transport is closed.
	Send(env *envelope.Envelope) error

	// Run starts the transport, blocks until ctx is cancelled or the
	// connection fails. Returns nil on graceful shutdown.
	Run(ctx context.Context) error

	// Close initiates graceful shutdown, draining pending sends.
	Close() error
}

// Config holds common transport configuration.
type Config struct {
	// RecvBufferSize is the size of the receive channel buffer.
	// Default: 128
	RecvBufferSize int

	// SendBufferSize is the size of the internal send buffer.
	// Default: 128
	SendBufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecvBufferSize: 128,
		SendBufferSize: 128,
	}
}
