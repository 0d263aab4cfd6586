// Package runtime hosts agent instances inside a worker process.
//
// Agents are activated lazily the first time a message addresses them, live
// in a catalog keyed by agent id, and handle messages one at a time on a
// dedicated mailbox goroutine. Distinct agents run concurrently; a single
// agent never sees two handlers in flight.
package runtime

import (
	"context"

	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/identity"
)

// Agent handles messages delivered to one agent instance.
//
// Both methods run on the instance's mailbox goroutine, so implementations
// need no internal locking for their own state. Blocking inside a handler
// stalls only this instance.
type Agent interface {
	// OnEvent handles a fire-and-forget event. Errors are logged, not
	// reported to the publisher.
	OnEvent(ctx context.Context, topic identity.TopicID, payload []byte) error

	// OnRequest handles an RPC and returns exactly one response payload
	// or an error, which travels back to the caller.
	OnRequest(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// Messenger lets hosted agents publish events and issue RPCs through the
// worker that hosts them.
type Messenger interface {
	// PublishEvent publishes a fire-and-forget event to a topic.
	PublishEvent(ctx context.Context, topic identity.TopicID, payload []byte) error

	// Call issues an RPC to a specific agent and waits for its single
	// response.
	Call(ctx context.Context, target identity.AgentID, method string, payload []byte) ([]byte, error)
}

// Factory constructs the agent instance for an id. Called at most once per
// id for the lifetime of the catalog entry; must be deterministic in the
// sense that the same id always yields an equivalently-behaving instance.
// A factory error is a delivery failure for the triggering message, not a
// worker fault.
type Factory func(id identity.AgentID, m Messenger) (Agent, error)

// EventFunc handles one event topic type.
type EventFunc func(ctx context.Context, topic identity.TopicID, payload []byte) error

// MethodFunc handles one RPC method.
type MethodFunc func(ctx context.Context, payload []byte) ([]byte, error)

// HandlerAgent is a table-dispatch Agent: handlers are registered per topic
// type and per RPC method. Events with no registered handler are a no-op;
// requests with no registered handler fail with a method-not-found error.
type HandlerAgent struct {
	events  map[string]EventFunc
	methods map[string]MethodFunc
}

// NewHandlerAgent creates an agent with empty dispatch tables.
func NewHandlerAgent() *HandlerAgent {
	return &HandlerAgent{
		events:  make(map[string]EventFunc),
		methods: make(map[string]MethodFunc),
	}
}

// HandleEvent registers a handler for an exact topic type.
func (a *HandlerAgent) HandleEvent(topicType string, fn EventFunc) *HandlerAgent {
	a.events[topicType] = fn
	return a
}

// HandleMethod registers a handler for an RPC method.
func (a *HandlerAgent) HandleMethod(method string, fn MethodFunc) *HandlerAgent {
	a.methods[method] = fn
	return a
}

// OnEvent dispatches to the handler registered for the topic type.
// Unrecognized topics are silently ignored.
func (a *HandlerAgent) OnEvent(ctx context.Context, topic identity.TopicID, payload []byte) error {
	fn, ok := a.events[topic.Type]
	if !ok {
		return nil
	}
	return fn(ctx, topic, payload)
}

// OnRequest dispatches to the handler registered for the method.
func (a *HandlerAgent) OnRequest(ctx context.Context, method string, payload []byte) ([]byte, error) {
	fn, ok := a.methods[method]
	if !ok {
		return nil, errors.MethodNotFound(method)
	}
	return fn(ctx, payload)
}
