// Package identity provides the structural identifiers used for agent
// addressing and topic routing.
//
// AgentID names an agent instance: a factory type plus an instance key.
// TopicID names a routable event channel. Both are immutable value types
// with structural equality; neither carries any behavior beyond validation
// and formatting.
package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Common errors.
var (
	ErrInvalidAgentType = errors.New("invalid agent type")
	ErrInvalidAgentKey  = errors.New("invalid agent key")
	ErrInvalidTopicType = errors.New("invalid topic type")
)

var (
	agentTypeRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	topicTypeRe = regexp.MustCompile(`^[\w\-\.\:\=]+$`)
)

// AgentID identifies an agent instance as a (type, key) pair.
//
// Type names a factory, not a concrete implementation: multiple factories
// may produce the same underlying agent with different construction
// parameters. Key discriminates instances of the same type.
type AgentID struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

// NewAgentID validates and constructs an AgentID.
// Type must match ^[A-Za-z_][A-Za-z0-9_]*$; Key must be printable ASCII.
func NewAgentID(agentType, key string) (AgentID, error) {
	if !agentTypeRe.MatchString(agentType) {
		return AgentID{}, fmt.Errorf("%w: %q", ErrInvalidAgentType, agentType)
	}
	if !printableASCII(key) {
		return AgentID{}, fmt.Errorf("%w: %q", ErrInvalidAgentKey, key)
	}
	return AgentID{Type: agentType, Key: key}, nil
}

// Validate checks the id against the construction rules. Useful for ids
// decoded off the wire rather than built through NewAgentID.
func (id AgentID) Validate() error {
	if !agentTypeRe.MatchString(id.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidAgentType, id.Type)
	}
	if !printableASCII(id.Key) {
		return fmt.Errorf("%w: %q", ErrInvalidAgentKey, id.Key)
	}
	return nil
}

// String returns the canonical "Type/Key" form.
func (id AgentID) String() string {
	return id.Type + "/" + id.Key
}

// IsZero reports whether the id is the zero value.
func (id AgentID) IsZero() bool {
	return id.Type == "" && id.Key == ""
}

// TopicID identifies an event channel as a (type, source) pair.
//
// Topics are routing keys only; they are never used as agent identity.
// Source is free-form, typically a URI.
type TopicID struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// NewTopicID validates and constructs a TopicID.
// Type must match ^[\w\-\.\:\=]+$; Source is unconstrained.
func NewTopicID(topicType, source string) (TopicID, error) {
	if !topicTypeRe.MatchString(topicType) {
		return TopicID{}, fmt.Errorf("%w: %q", ErrInvalidTopicType, topicType)
	}
	return TopicID{Type: topicType, Source: source}, nil
}

// Validate checks the topic type against the construction rules.
func (t TopicID) Validate() error {
	if !topicTypeRe.MatchString(t.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidTopicType, t.Type)
	}
	return nil
}

// String returns the "type@source" form used in logs.
func (t TopicID) String() string {
	if t.Source == "" {
		return t.Type
	}
	return t.Type + "@" + t.Source
}

// ParseAgentID parses the canonical "Type/Key" form produced by String.
func ParseAgentID(s string) (AgentID, error) {
	typ, key, ok := strings.Cut(s, "/")
	if !ok {
		return AgentID{}, fmt.Errorf("%w: missing '/' in %q", ErrInvalidAgentType, s)
	}
	return NewAgentID(typ, key)
}

// printableASCII reports whether s contains only bytes in 0x20-0x7E.
func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7E {
			return false
		}
	}
	return true
}
