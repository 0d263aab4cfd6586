// Package shutdown coordinates phased graceful shutdown for gateway and
// worker hosts.
//
// Handlers register with a phase number; lower phases stop first, handlers
// within a phase stop concurrently. The conventional ordering for a worker
// host is: drain the runtime, then close the transport, then release
// stores. Stopping intake before releasing what the intake writes to is
// the whole point of the phases.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Common errors.
var (
	ErrAlreadyShutdown = errors.New("shutdown already initiated")
	ErrTimeout         = errors.New("shutdown timeout exceeded")
	ErrHandlerFailed   = errors.New("one or more handlers failed")
)

// Conventional phases for hosts in this module.
const (
	PhaseDrain     = 10 // stop intake, finish in-flight work
	PhaseTransport = 20 // close connections
	PhaseStores    = 30 // release stores and external clients
)

// Handler stops one component. The context carries the overall deadline.
type Handler func(ctx context.Context) error

type registration struct {
	name    string
	phase   int
	handler Handler
}

// Coordinator runs registered handlers in phase order on shutdown.
type Coordinator struct {
	timeout time.Duration

	mu       sync.Mutex
	handlers []registration

	once    sync.Once
	done    chan struct{}
	err     error
	signals chan os.Signal
}

// NewCoordinator creates a coordinator with the given overall timeout.
// A zero timeout defaults to 30 seconds.
func NewCoordinator(timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Coordinator{
		timeout: timeout,
		done:    make(chan struct{}),
		signals: make(chan os.Signal, 1),
	}
}

// Register adds a named handler to a phase.
func (c *Coordinator) Register(name string, phase int, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, registration{name: name, phase: phase, handler: h})
}

// HandleSignals triggers shutdown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-c.signals
		c.Shutdown(context.Background())
	}()
}

// Done is closed when shutdown has completed.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown outcome. Valid once Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Shutdown runs every handler, phase by phase, within the configured
// timeout. Later calls return ErrAlreadyShutdown without running anything.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	first := false
	c.once.Do(func() {
		first = true
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		c.err = c.run(ctx)
		close(c.done)
	})
	if first {
		return c.err
	}
	<-c.done
	return ErrAlreadyShutdown
}

func (c *Coordinator) run(ctx context.Context) error {
	c.mu.Lock()
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	var failed bool
	for start := 0; start < len(handlers); {
		end := start
		for end < len(handlers) && handlers[end].phase == handlers[start].phase {
			end++
		}

		select {
		case <-ctx.Done():
			return ErrTimeout
		default:
		}

		var wg sync.WaitGroup
		errs := make([]error, end-start)
		for i, reg := range handlers[start:end] {
			wg.Add(1)
			go func(i int, reg registration) {
				defer wg.Done()
				errs[i] = reg.handler(ctx)
			}(i, reg)
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				failed = true
			}
		}
		start = end
	}

	if failed {
		return ErrHandlerFailed
	}
	return nil
}
