package transport

import (
	"context"
	"sync"

	"github.com/vinayprograms/agentgrid/envelope"
)

// Pipe is an in-memory Transport for tests and single-process hosts.
// NewPipe returns two connected ends: envelopes sent on one side arrive on
// the other, in order.
type Pipe struct {
	out  chan *envelope.Envelope // our sends, peer's receives
	in   chan *envelope.Envelope // peer's sends, our receives
	peer *Pipe

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewPipe creates a connected transport pair.
func NewPipe(cfg Config) (*Pipe, *Pipe) {
	if cfg.RecvBufferSize <= 0 {
		cfg.RecvBufferSize = DefaultConfig().RecvBufferSize
	}

	aToB := make(chan *envelope.Envelope, cfg.RecvBufferSize)
	bToA := make(chan *envelope.Envelope, cfg.RecvBufferSize)

	a := &Pipe{out: aToB, in: bToA, done: make(chan struct{})}
	b := &Pipe{out: bToA, in: aToB, done: make(chan struct{})}
	a.peer = b
	b.peer = a

	return a, b
}

// Recv returns the channel for incoming envelopes.
func (p *Pipe) Recv() <-chan *envelope.Envelope {
	return p.in
}

// Send delivers an envelope to the peer.
func (p *Pipe) Send(env *envelope.Envelope) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	select {
	case p.out <- env:
		return nil
	case <-p.done:
		return ErrClosed
	case <-p.peer.done:
		return ErrClosed
	}
}

// Run blocks until the context is cancelled or the pipe closes. The pipe
// needs no pump goroutines; Run exists for Transport parity.
func (p *Pipe) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		p.Close()
		return nil
	case <-p.done:
		return nil
	}
}

// Close shuts down both ends. The peer observes a closed Recv channel, the
// same as a dropped connection.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	close(p.out) // peer's recv channel
	p.mu.Unlock()

	p.peer.mu.Lock()
	if !p.peer.closed {
		p.peer.closed = true
		close(p.peer.done)
		close(p.peer.out) // our recv channel
	}
	p.peer.mu.Unlock()

	return nil
}
