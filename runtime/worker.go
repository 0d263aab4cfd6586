package runtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/agentgrid/envelope"
	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/identity"
	"github.com/vinayprograms/agentgrid/logging"
	"github.com/vinayprograms/agentgrid/transport"
)

// State tracks the worker connection lifecycle.
type State int32

// Worker states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateRegistering
	StateOperating
	StateDraining
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateRegistering:
		return "registering"
	case StateOperating:
		return "operating"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config holds worker runtime configuration.
type Config struct {
	// RPCTimeout is how long a call may stay unanswered before the sweep
	// breaks it. Default: 30s
	RPCTimeout time.Duration

	// SweepInterval is how often the pending-RPC sweep runs.
	// Default: 5s
	SweepInterval time.Duration

	// HeartbeatInterval is how often an idle worker sends a heartbeat.
	// Keep it under half the gateway's liveness timeout. Default: 30s
	HeartbeatInterval time.Duration

	// MailboxSize is the per-agent delivery queue depth. Default: 64
	MailboxSize int

	// Logger is the logger to use. Default: logging.New()
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RPCTimeout:        30 * time.Second,
		SweepInterval:     5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MailboxSize:       64,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("rpc timeout must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.MailboxSize <= 0 {
		return fmt.Errorf("mailbox size must be positive")
	}
	return nil
}

// Worker hosts agent instances and speaks the envelope protocol to the
// gateway over a single transport. One Worker per process is typical.
//
// The Worker implements Messenger, so hosted agents publish and call
// through the worker that hosts them.
type Worker struct {
	config  Config
	log     *logging.Logger
	catalog *catalog
	pending *pendingTable

	mu        sync.RWMutex
	transport transport.Transport

	state    atomic.Int32
	draining atomic.Bool
}

// NewWorker creates a worker with the given configuration. Zero-value
// fields take their defaults.
func NewWorker(cfg Config) (*Worker, error) {
	def := DefaultConfig()
	if cfg.RPCTimeout == 0 {
		cfg.RPCTimeout = def.RPCTimeout
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.MailboxSize == 0 {
		cfg.MailboxSize = def.MailboxSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger.WithComponent("runtime")
	w := &Worker{
		config:  cfg,
		log:     log,
		pending: newPendingTable(cfg.RPCTimeout, cfg.SweepInterval, log),
	}
	w.catalog = newCatalog(w, cfg.MailboxSize, log)
	return w, nil
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	old := State(w.state.Swap(int32(s)))
	if old != s {
		w.log.Debug("state", map[string]interface{}{"from": old.String(), "to": s.String()})
	}
}

// RegisterAgentType registers a factory for an agent type. If the worker is
// already connected, the capability is announced to the gateway
// immediately; otherwise it is announced when Run connects.
func (w *Worker) RegisterAgentType(agentType string, f Factory) error {
	if _, err := identity.NewAgentID(agentType, ""); err != nil {
		return err
	}

	w.catalog.registerFactory(agentType, f)

	if w.State() == StateOperating {
		return w.send(envelope.NewRegister(agentType))
	}
	return nil
}

// Run attaches the worker to a transport and serves until ctx is cancelled
// or the transport fails. The transport is run internally; pass a freshly
// dialed (or piped) transport.
func (w *Worker) Run(ctx context.Context, t transport.Transport) error {
	w.mu.Lock()
	w.transport = t
	w.mu.Unlock()

	w.setState(StateConnecting)
	runErr := make(chan error, 1)
	go func() { runErr <- t.Run(ctx) }()

	w.setState(StateRegistering)
	for _, agentType := range w.catalog.agentTypes() {
		if err := t.Send(envelope.NewRegister(agentType)); err != nil {
			w.setState(StateDisconnected)
			return fmt.Errorf("register %s: %w", agentType, err)
		}
	}

	w.setState(StateOperating)
	w.log.Info("worker operating", map[string]interface{}{
		"types": len(w.catalog.agentTypes()),
	})

	heartbeat := time.NewTicker(w.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case env, ok := <-t.Recv():
			if !ok {
				w.teardown(errors.New(errors.ErrCodeWorkerUnavailable, "gateway connection lost"))
				return transport.ErrClosed
			}
			w.handle(ctx, env)

		case <-heartbeat.C:
			if err := t.Send(envelope.NewHeartbeat()); err != nil {
				w.log.Warn("heartbeat send failed", map[string]interface{}{"error": err.Error()})
			}

		case err := <-runErr:
			w.teardown(errors.New(errors.ErrCodeWorkerUnavailable, "transport stopped"))
			return err

		case <-ctx.Done():
			w.teardown(errors.Wrap(ctx.Err(), "worker stopped"))
			return ctx.Err()
		}
	}
}

// Drain stops accepting new deliveries, breaks outstanding RPCs with a
// draining error, waits for queued handler work to finish (bounded by ctx)
// and closes the transport.
func (w *Worker) Drain(ctx context.Context) error {
	if !w.draining.CompareAndSwap(false, true) {
		return nil
	}
	w.setState(StateDraining)

	w.pending.failAll(errors.New(errors.ErrCodeWorkerDraining, "worker draining"))

	done := make(chan struct{})
	go func() {
		w.catalog.close()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.log.Warn("drain deadline hit with handlers still running")
	}

	w.mu.RLock()
	t := w.transport
	w.mu.RUnlock()
	if t != nil {
		t.Close()
	}

	w.pending.close()
	w.setState(StateDisconnected)
	return nil
}

// PublishEvent publishes a fire-and-forget event to a topic.
func (w *Worker) PublishEvent(ctx context.Context, topic identity.TopicID, payload []byte) error {
	if err := topic.Validate(); err != nil {
		return err
	}
	if w.draining.Load() {
		return errors.New(errors.ErrCodeWorkerDraining, "worker draining")
	}
	return w.send(envelope.NewEvent(topic, payload))
}

// Call issues an RPC to a specific agent and waits for the single response.
// The pending entry is registered before the request leaves, so a fast
// response cannot race the bookkeeping. Cancellation removes the entry; a
// response arriving afterwards is dropped with a log line.
func (w *Worker) Call(ctx context.Context, target identity.AgentID, method string, payload []byte) ([]byte, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if w.draining.Load() {
		return nil, errors.New(errors.ErrCodeWorkerDraining, "worker draining")
	}

	id := uuid.NewString()
	ch := w.pending.register(id)

	if err := w.send(envelope.NewRequest(id, target, method, payload)); err != nil {
		w.pending.remove(id)
		return nil, errors.Wrap(err, "rpc send failed", errors.WithRequestID(id))
	}

	select {
	case res := <-ch:
		return res.payload, res.err
	case <-ctx.Done():
		w.pending.remove(id)
		return nil, errors.Wrap(ctx.Err(), "rpc abandoned", errors.WithRequestID(id))
	}
}

// Pending returns the number of outstanding RPCs.
func (w *Worker) Pending() int {
	return w.pending.len()
}

// ActiveAgents returns the number of live agent instances.
func (w *Worker) ActiveAgents() int {
	return w.catalog.len()
}

func (w *Worker) send(env *envelope.Envelope) error {
	w.mu.RLock()
	t := w.transport
	w.mu.RUnlock()
	if t == nil {
		return transport.ErrClosed
	}
	return t.Send(env)
}

func (w *Worker) teardown(cause error) {
	w.setState(StateDisconnected)
	w.pending.failAll(cause)
	w.catalog.close()
	w.pending.close()
}

// handle routes one inbound envelope. Register and heartbeat frames only
// travel worker-to-gateway and are ignored here.
func (w *Worker) handle(ctx context.Context, env *envelope.Envelope) {
	switch env.Kind {
	case envelope.KindEvent:
		w.handleEvent(ctx, env.Event)
	case envelope.KindRequest:
		w.handleRequest(ctx, env.Request)
	case envelope.KindResponse:
		w.pending.resolve(env.Response.ID, env.Response.Payload)
	case envelope.KindError:
		w.pending.fail(env.ErrorBody.ID, env.ErrorBody.Err())
	case envelope.KindRegister, envelope.KindHeartbeat:
		// Gateway-bound kinds; nothing to do.
	default:
		w.log.Warn("unhandled envelope", map[string]interface{}{"kind": string(env.Kind)})
	}
}

// handleEvent delivers to the targets the gateway resolved and placed on
// this worker. An event with no targets is a no-op. A target whose type has
// no local factory fails that one delivery with an activation error, logged
// like any other delivery failure.
func (w *Worker) handleEvent(ctx context.Context, ev *envelope.Event) {
	for _, target := range ev.Targets {
		topic, payload := ev.Topic, ev.Payload
		err := w.catalog.dispatch(target, func(a Agent) {
			defer w.recoverEvent(topic)
			if err := a.OnEvent(ctx, topic, payload); err != nil {
				w.log.Warn("event handler failed", map[string]interface{}{
					"topic": topic.String(),
					"error": err.Error(),
				})
			}
		})
		if err != nil {
			w.log.Warn("event delivery failed", map[string]interface{}{
				"topic": topic.String(),
				"agent": target.String(),
				"error": err.Error(),
			})
		}
	}
}

// handleRequest delivers an RPC to its explicit target and sends back
// exactly one response or error frame. Panics inside the handler become
// structured error frames rather than killing the mailbox.
func (w *Worker) handleRequest(ctx context.Context, req *envelope.Request) {
	id, method, payload := req.ID, req.Method, req.Payload
	err := w.catalog.dispatch(req.Target, func(a Agent) {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("handler panic", map[string]interface{}{
					"request": id, "method": method, "panic": fmt.Sprint(r),
				})
				w.send(envelope.NewError(id,
					errors.New(errors.ErrCodeHandlerPanic, fmt.Sprintf("handler panic: %v", r),
						errors.WithRequestID(id))))
			}
		}()

		result, err := a.OnRequest(ctx, method, payload)
		if err != nil {
			w.send(envelope.NewError(id, err))
			return
		}
		w.send(envelope.NewResponse(id, result))
	})
	if err != nil {
		w.send(envelope.NewError(id, err))
	}
}

func (w *Worker) recoverEvent(topic identity.TopicID) {
	if r := recover(); r != nil {
		w.log.Error("event handler panic", map[string]interface{}{
			"topic": topic.String(), "panic": fmt.Sprint(r),
		})
	}
}
