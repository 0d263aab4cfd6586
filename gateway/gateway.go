// Package gateway terminates worker connections and routes envelopes
// between them.
//
// The gateway is a stateless router over the registry and directory: it
// holds no agent state and no outstanding-RPC table, only the live
// connections and a request-id to route mapping so responses find their way
// back to the worker that asked. Losing a gateway loses in-flight requests,
// which callers already handle as timeouts.
package gateway

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vinayprograms/agentgrid/directory"
	"github.com/vinayprograms/agentgrid/envelope"
	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/identity"
	"github.com/vinayprograms/agentgrid/logging"
	"github.com/vinayprograms/agentgrid/registry"
	"github.com/vinayprograms/agentgrid/routing"
	"github.com/vinayprograms/agentgrid/transport"
)

// Config holds gateway configuration.
type Config struct {
	// Registry tracks worker capability and liveness.
	// Default: an in-memory registry with default liveness settings.
	Registry registry.Registry

	// WebSocket configures accepted worker connections.
	WebSocket transport.WebSocketConfig

	// Logger is the logger to use. Default: logging.New()
	Logger *logging.Logger
}

// pendingRoute remembers where a forwarded request came from and where it
// went, nothing more. Timeouts and results live in the requesting worker.
type pendingRoute struct {
	origin string
	target string
}

// conn is one attached worker connection.
type conn struct {
	id     string
	t      transport.Transport
	cancel context.CancelFunc
}

// Gateway routes envelopes between attached workers.
type Gateway struct {
	log       *logging.Logger
	registry  registry.Registry
	directory *directory.Directory
	matcher   *routing.Matcher
	wsConfig  transport.WebSocketConfig

	mu      sync.Mutex
	conns   map[string]*conn
	pending map[string]pendingRoute
	closed  bool
	wg      sync.WaitGroup
}

// New creates a gateway. The registry's removal callbacks drive both
// directory invalidation and connection teardown.
func New(cfg Config) *Gateway {
	if cfg.Registry == nil {
		cfg.Registry = registry.NewMemoryRegistry(registry.Config{})
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.WebSocket.WriteTimeout == 0 {
		cfg.WebSocket = transport.DefaultWebSocketConfig()
	}

	g := &Gateway{
		log:       cfg.Logger.WithComponent("gateway"),
		registry:  cfg.Registry,
		directory: directory.New(cfg.Registry),
		matcher:   routing.NewMatcher(),
		wsConfig:  cfg.WebSocket,
		conns:     make(map[string]*conn),
		pending:   make(map[string]pendingRoute),
	}
	cfg.Registry.OnRemoved(g.handleWorkerGone)
	return g
}

// Subscribe registers a routing subscription.
func (g *Gateway) Subscribe(sub routing.Subscription) error {
	return g.matcher.Add(sub)
}

// Unsubscribe removes a routing subscription by id.
func (g *Gateway) Unsubscribe(id string) error {
	return g.matcher.Remove(id)
}

// Attach adopts a transport as a new worker connection and serves it on a
// background goroutine. Returns the worker id assigned to the connection.
func (g *Gateway) Attach(t transport.Transport) (string, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return "", transport.ErrClosed
	}

	workerID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{id: workerID, t: t, cancel: cancel}
	g.conns[workerID] = c
	g.wg.Add(1)
	g.mu.Unlock()

	g.registry.AddWorker(workerID)
	g.log.Info("worker attached", map[string]interface{}{"target": workerID})

	go g.serve(ctx, c)
	return workerID, nil
}

// serve runs one connection: transport pump plus the routing loop. Exit
// means the connection is gone, which removes the worker from the registry
// and lets the removal callback clean up.
func (g *Gateway) serve(ctx context.Context, c *conn) {
	defer g.wg.Done()

	runErr := make(chan error, 1)
	go func() { runErr <- c.t.Run(ctx) }()

	for {
		select {
		case env, ok := <-c.t.Recv():
			if !ok {
				g.registry.RemoveWorker(c.id)
				return
			}
			g.registry.Touch(c.id)
			g.route(c, env)

		case <-runErr:
			g.registry.RemoveWorker(c.id)
			return

		case <-ctx.Done():
			g.registry.RemoveWorker(c.id)
			return
		}
	}
}

// route dispatches one inbound envelope from a worker.
func (g *Gateway) route(c *conn, env *envelope.Envelope) {
	switch env.Kind {
	case envelope.KindRegister:
		if err := g.registry.RegisterAgentType(env.Register.AgentType, c.id); err != nil {
			g.log.Warn("register failed", map[string]interface{}{
				"type": env.Register.AgentType, "target": c.id, "error": err.Error(),
			})
		}

	case envelope.KindHeartbeat:
		// Touch already happened; the frame exists only to carry it.

	case envelope.KindEvent:
		g.publish(env)

	case envelope.KindRequest:
		g.forwardRequest(c, env)

	case envelope.KindResponse, envelope.KindError:
		g.forwardReply(env)

	default:
		g.log.Warn("unroutable envelope", map[string]interface{}{"kind": string(env.Kind)})
	}
}

// publish fans an event out to the workers hosting its resolved targets.
// Targets are grouped by their placed worker and each worker receives one
// envelope carrying exactly the targets placed on it, so a target is never
// activated anywhere but its placement. A target that cannot be placed is
// skipped: partial delivery is allowed, events are fire-and-forget.
func (g *Gateway) publish(env *envelope.Envelope) {
	ev := env.Event
	perWorker := make(map[string][]identity.AgentID)
	var order []string
	for _, target := range g.matcher.Resolve(ev.Topic) {
		workerID, fresh, err := g.directory.GetOrPlace(target)
		if err != nil {
			g.log.PlacementFailure(target.String())
			continue
		}
		g.log.Placement(target.String(), workerID, fresh)

		if _, seen := perWorker[workerID]; !seen {
			order = append(order, workerID)
		}
		perWorker[workerID] = append(perWorker[workerID], target)
	}

	for _, workerID := range order {
		out := envelope.NewEventTo(ev.Topic, ev.Payload, perWorker[workerID])
		if err := g.sendTo(workerID, out); err != nil {
			g.log.Warn("event delivery failed", map[string]interface{}{
				"topic": ev.Topic.String(), "target": workerID, "error": err.Error(),
			})
		}
	}
}

// forwardRequest routes an RPC to its explicit target's worker, recording
// the return path first so the response cannot outrun the bookkeeping.
func (g *Gateway) forwardRequest(origin *conn, env *envelope.Envelope) {
	req := env.Request

	workerID, fresh, err := g.directory.GetOrPlace(req.Target)
	if err != nil {
		g.log.PlacementFailure(req.Target.String())
		g.replyError(origin.id, req.ID, err)
		return
	}
	g.log.Placement(req.Target.String(), workerID, fresh)

	g.mu.Lock()
	g.pending[req.ID] = pendingRoute{origin: origin.id, target: workerID}
	g.mu.Unlock()

	if err := g.sendTo(workerID, env); err != nil {
		g.mu.Lock()
		delete(g.pending, req.ID)
		g.mu.Unlock()
		g.replyError(origin.id, req.ID,
			errors.WorkerUnavailable(workerID, errors.WithRequestID(req.ID)))
	}
}

// forwardReply routes a response or error frame back to the worker that
// issued the request. A reply with no recorded route is late: its request
// already timed out, was cancelled, or its origin disconnected.
func (g *Gateway) forwardReply(env *envelope.Envelope) {
	id := env.CorrelationID()

	g.mu.Lock()
	route, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()

	if !ok {
		g.log.LateResponse(id)
		return
	}

	if err := g.sendTo(route.origin, env); err != nil {
		g.log.LateResponse(id)
	}
}

// handleWorkerGone runs on registry removal, whether from disconnect or
// liveness purge. Placements are invalidated by the directory's own
// callback; here the connection is torn down and every request forwarded to
// the dead worker is answered with an unavailable error.
func (g *Gateway) handleWorkerGone(workerID string) {
	g.mu.Lock()
	c := g.conns[workerID]
	delete(g.conns, workerID)

	var broken []pendingRoute
	var ids []string
	for id, route := range g.pending {
		if route.target == workerID || route.origin == workerID {
			delete(g.pending, id)
			if route.target == workerID && route.origin != workerID {
				broken = append(broken, route)
				ids = append(ids, id)
			}
		}
	}
	g.mu.Unlock()

	if c != nil {
		c.cancel()
		c.t.Close()
		g.log.Info("worker detached", map[string]interface{}{"target": workerID})
	}

	for i, route := range broken {
		g.replyError(route.origin, ids[i],
			errors.WorkerUnavailable(workerID, errors.WithRequestID(ids[i])))
	}
}

// replyError sends an error frame correlated to a request id back to a
// worker. Best effort: if the worker is gone too, there is nobody to tell.
func (g *Gateway) replyError(workerID, requestID string, err error) {
	if sendErr := g.sendTo(workerID, envelope.NewError(requestID, err)); sendErr != nil {
		g.log.LateResponse(requestID)
	}
}

func (g *Gateway) sendTo(workerID string, env *envelope.Envelope) error {
	g.mu.Lock()
	c, ok := g.conns[workerID]
	g.mu.Unlock()

	if !ok {
		return errors.WorkerUnavailable(workerID)
	}
	return c.t.Send(env)
}

// Workers returns the number of attached connections.
func (g *Gateway) Workers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// PendingRoutes returns the number of forwarded-but-unanswered requests.
func (g *Gateway) PendingRoutes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Close detaches every worker and shuts the gateway down.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	ids := make([]string, 0, len(g.conns))
	for id := range g.conns {
		ids = append(ids, id)
	}
	g.mu.Unlock()

	for _, id := range ids {
		g.registry.RemoveWorker(id)
	}
	g.wg.Wait()
	return g.registry.Close()
}
