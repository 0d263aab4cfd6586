// Package envelope defines the versioned wire frames exchanged between
// workers and the gateway.
//
// An Envelope is a tagged union: exactly one body field is set, named by
// Kind. The encoding is JSON, but nothing outside this package depends on
// that; the transport layer moves opaque byte slices.
package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/identity"
)

// Version is the envelope schema version this package speaks.
const Version = 1

// Kind tags the envelope body.
type Kind string

// Envelope kinds.
const (
	KindRegister  Kind = "register"
	KindHeartbeat Kind = "heartbeat"
	KindEvent     Kind = "event"
	KindRequest   Kind = "rpc_request"
	KindResponse  Kind = "rpc_response"
	KindError     Kind = "error"
)

// Register announces that the sending worker can host an agent type.
// Sent zero or more times after connection establishment; idempotent.
type Register struct {
	AgentType string `json:"agent_type"`
}

// Event is a fire-and-forget message published to a topic.
//
// A publishing worker sends it with no targets. The gateway resolves and
// places the topic's targets, then forwards one copy per hosting worker
// with Targets naming exactly the agents placed on that worker.
type Event struct {
	Topic   identity.TopicID   `json:"topic"`
	Payload json.RawMessage    `json:"payload,omitempty"`
	Targets []identity.AgentID `json:"targets,omitempty"`
}

// Request is a correlation-tracked RPC addressed to a specific agent.
// ID is caller-generated and unique for the lifetime of the caller process.
type Request struct {
	ID      string           `json:"id"`
	Target  identity.AgentID `json:"target"`
	Method  string           `json:"method"`
	Payload json.RawMessage  `json:"payload,omitempty"`
}

// Response carries the single reply to a Request with the same ID.
type Response struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorFrame carries a structured failure in place of a Response.
type ErrorFrame struct {
	ID      string `json:"id"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Err converts the frame back into a structured error.
func (f *ErrorFrame) Err() *errors.Error {
	code := errors.ErrorCode(f.Code)
	if f.Code == "" {
		code = errors.ErrCodeInternal
	}
	return errors.New(code, f.Message, errors.WithRequestID(f.ID))
}

// Envelope is the tagged union moved over the wire. Exactly one body field
// matching Kind is non-nil.
type Envelope struct {
	V         int         `json:"v"`
	Kind      Kind        `json:"kind"`
	Register  *Register   `json:"register,omitempty"`
	Event     *Event      `json:"event,omitempty"`
	Request   *Request    `json:"rpc_request,omitempty"`
	Response  *Response   `json:"rpc_response,omitempty"`
	ErrorBody *ErrorFrame `json:"error,omitempty"`
}

// NewRegister builds a register envelope.
func NewRegister(agentType string) *Envelope {
	return &Envelope{V: Version, Kind: KindRegister, Register: &Register{AgentType: agentType}}
}

// NewHeartbeat builds a heartbeat envelope. Heartbeats have no body; any
// traffic refreshes liveness, the dedicated kind just gives idle workers
// something to send.
func NewHeartbeat() *Envelope {
	return &Envelope{V: Version, Kind: KindHeartbeat}
}

// NewEvent builds an event envelope as published, with no targets.
func NewEvent(topic identity.TopicID, payload []byte) *Envelope {
	return &Envelope{V: Version, Kind: KindEvent, Event: &Event{Topic: topic, Payload: payload}}
}

// NewEventTo builds an event envelope addressed to resolved targets.
func NewEventTo(topic identity.TopicID, payload []byte, targets []identity.AgentID) *Envelope {
	return &Envelope{V: Version, Kind: KindEvent, Event: &Event{
		Topic: topic, Payload: payload, Targets: targets,
	}}
}

// NewRequest builds an RPC request envelope.
func NewRequest(id string, target identity.AgentID, method string, payload []byte) *Envelope {
	return &Envelope{V: Version, Kind: KindRequest, Request: &Request{
		ID: id, Target: target, Method: method, Payload: payload,
	}}
}

// NewResponse builds an RPC response envelope.
func NewResponse(id string, payload []byte) *Envelope {
	return &Envelope{V: Version, Kind: KindResponse, Response: &Response{ID: id, Payload: payload}}
}

// NewError builds an error envelope correlated to a request id.
func NewError(id string, err error) *Envelope {
	frame := &ErrorFrame{ID: id, Message: err.Error()}
	var structured *errors.Error
	if e, ok := err.(*errors.Error); ok {
		structured = e
	}
	if structured != nil {
		frame.Code = structured.Code().String()
	}
	return &Envelope{V: Version, Kind: KindError, ErrorBody: frame}
}

// Marshal serializes an envelope to its wire form.
func Marshal(env *Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Unmarshal parses and validates a wire frame.
func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidEnvelope, "undecodable envelope")
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks version, kind and body consistency.
func (e *Envelope) Validate() error {
	if e.V != Version {
		return errors.Newf(errors.ErrCodeInvalidEnvelope, "unsupported envelope version %d", e.V)
	}

	var body bool
	switch e.Kind {
	case KindRegister:
		body = e.Register != nil && e.Register.AgentType != ""
	case KindHeartbeat:
		body = true
	case KindEvent:
		body = e.Event != nil && e.Event.Topic.Validate() == nil
		if body {
			for _, target := range e.Event.Targets {
				if target.Validate() != nil {
					body = false
					break
				}
			}
		}
	case KindRequest:
		body = e.Request != nil && e.Request.ID != "" && e.Request.Target.Validate() == nil
	case KindResponse:
		body = e.Response != nil && e.Response.ID != ""
	case KindError:
		body = e.ErrorBody != nil && e.ErrorBody.Message != ""
	default:
		return errors.Newf(errors.ErrCodeInvalidEnvelope, "unknown envelope kind %q", e.Kind)
	}

	if !body {
		return errors.Newf(errors.ErrCodeInvalidEnvelope, "missing or invalid %s body", e.Kind)
	}
	return nil
}

// CorrelationID returns the request id the envelope correlates to, if any.
func (e *Envelope) CorrelationID() string {
	switch e.Kind {
	case KindRequest:
		return e.Request.ID
	case KindResponse:
		return e.Response.ID
	case KindError:
		return e.ErrorBody.ID
	default:
		return ""
	}
}

// String returns a short description for logs.
func (e *Envelope) String() string {
	switch e.Kind {
	case KindEvent:
		return fmt.Sprintf("event(%s)", e.Event.Topic)
	case KindRequest:
		return fmt.Sprintf("rpc_request(%s->%s.%s)", e.Request.ID, e.Request.Target, e.Request.Method)
	case KindResponse:
		return fmt.Sprintf("rpc_response(%s)", e.Response.ID)
	case KindError:
		return fmt.Sprintf("error(%s)", e.ErrorBody.ID)
	default:
		return string(e.Kind)
	}
}
