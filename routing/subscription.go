// Package routing maps published topics to target agents.
//
// A Subscription is a pure predicate plus mapping: Match decides whether a
// topic is covered, Map names the agent that receives it. The Matcher
// evaluates every registered subscription in registration order and returns
// the mapped agent ids, duplicates preserved.
package routing

import (
	"errors"
	"strings"

	"github.com/vinayprograms/agentgrid/identity"
)

// Common errors.
var (
	ErrDuplicateID = errors.New("duplicate subscription id")
	ErrNotFound    = errors.New("subscription not found")
	ErrInvalidID   = errors.New("invalid subscription id")
)

// Subscription decides topic-to-agent routing.
//
// Match and Map must be free of side effects and must return the same
// result for the same topic for the lifetime of the subscription. This is a
// contract, not a runtime-enforced invariant: the Matcher memoizes results
// on the strength of it, and an impure subscription silently breaks that
// cache.
type Subscription interface {
	// ID returns the unique subscription id.
	ID() string

	// Match reports whether the topic is covered by this subscription.
	Match(topic identity.TopicID) bool

	// Map names the agent that receives topics covered by Match.
	// Only called for topics where Match returned true.
	Map(topic identity.TopicID) identity.AgentID
}

// TypeSubscription routes every topic of one exact type to a fixed agent
// type, using the topic source as the agent key.
type TypeSubscription struct {
	id        string
	topicType string
	agentType string
}

// NewTypeSubscription subscribes agentType to all topics of topicType.
// Topic source becomes the agent key, so each distinct source gets its own
// agent instance.
func NewTypeSubscription(id, topicType, agentType string) *TypeSubscription {
	return &TypeSubscription{id: id, topicType: topicType, agentType: agentType}
}

func (s *TypeSubscription) ID() string { return s.id }

func (s *TypeSubscription) Match(topic identity.TopicID) bool {
	return topic.Type == s.topicType
}

func (s *TypeSubscription) Map(topic identity.TopicID) identity.AgentID {
	return identity.AgentID{Type: s.agentType, Key: topic.Source}
}

// PrefixSubscription implements the well-known "{AgentType}:" direct-message
// channel: any topic whose type starts with the agent type followed by a
// colon routes to that agent type, with the topic source as the key.
//
// Under this convention "{T}:rpc_request={Requester}" denotes an RPC
// request, "{T}:rpc_response={RequestId}" an RPC reply and
// "{T}:error={RequestId}" an error reply.
type PrefixSubscription struct {
	id        string
	agentType string
	prefix    string
}

// NewPrefixSubscription creates the direct-message channel for agentType.
func NewPrefixSubscription(id, agentType string) *PrefixSubscription {
	return &PrefixSubscription{id: id, agentType: agentType, prefix: agentType + ":"}
}

func (s *PrefixSubscription) ID() string { return s.id }

func (s *PrefixSubscription) Match(topic identity.TopicID) bool {
	return strings.HasPrefix(topic.Type, s.prefix)
}

func (s *PrefixSubscription) Map(topic identity.TopicID) identity.AgentID {
	return identity.AgentID{Type: s.agentType, Key: topic.Source}
}

// FuncSubscription adapts a pair of plain functions to a Subscription.
type FuncSubscription struct {
	id    string
	match func(identity.TopicID) bool
	mapFn func(identity.TopicID) identity.AgentID
}

// NewFuncSubscription builds a subscription from match and map functions.
// Both functions must honor the purity contract on Subscription.
func NewFuncSubscription(id string, match func(identity.TopicID) bool, mapFn func(identity.TopicID) identity.AgentID) *FuncSubscription {
	return &FuncSubscription{id: id, match: match, mapFn: mapFn}
}

func (s *FuncSubscription) ID() string { return s.id }

func (s *FuncSubscription) Match(topic identity.TopicID) bool { return s.match(topic) }

func (s *FuncSubscription) Map(topic identity.TopicID) identity.AgentID { return s.mapFn(topic) }

// RequestTopic returns the well-known topic for an RPC request to
// agentType, attributed to the requester.
func RequestTopic(agentType, requester string) identity.TopicID {
	return identity.TopicID{Type: agentType + ":rpc_request=" + requester, Source: requester}
}

// ResponseTopic returns the well-known topic for the reply to requestID,
// addressed back to the requester's agent type.
func ResponseTopic(requesterType, requestID string) identity.TopicID {
	return identity.TopicID{Type: requesterType + ":rpc_response=" + requestID, Source: requestID}
}

// ErrorTopic returns the well-known topic for an error reply to requestID.
func ErrorTopic(requesterType, requestID string) identity.TopicID {
	return identity.TopicID{Type: requesterType + ":error=" + requestID, Source: requestID}
}
