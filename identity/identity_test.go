package identity

import "testing"

func TestNewAgentID(t *testing.T) {
	tests := []struct {
		name      string
		agentType string
		key       string
		wantErr   bool
	}{
		{"simple", "Echo", "default", false},
		{"underscore prefix", "_worker", "k1", false},
		{"digits after first", "Agent2", "k", false},
		{"empty key allowed", "Echo", "", false},
		{"key with spaces", "Echo", "a key", false},
		{"empty type", "", "k", true},
		{"leading digit", "2Agent", "k", true},
		{"type with dash", "my-agent", "k", true},
		{"type with colon", "Echo:", "k", true},
		{"non-printable key", "Echo", "a\x01b", true},
		{"non-ascii key", "Echo", "café", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := NewAgentID(tt.agentType, tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAgentID(%q, %q) error = %v, wantErr %v", tt.agentType, tt.key, err, tt.wantErr)
			}
			if err == nil {
				if id.Type != tt.agentType || id.Key != tt.key {
					t.Errorf("id = %v, want (%q, %q)", id, tt.agentType, tt.key)
				}
			}
		})
	}
}

func TestAgentIDEquality(t *testing.T) {
	a, _ := NewAgentID("Echo", "k1")
	b, _ := NewAgentID("Echo", "k1")
	c, _ := NewAgentID("Echo", "k2")

	if a != b {
		t.Error("identical ids should compare equal")
	}
	if a == c {
		t.Error("ids with different keys should not compare equal")
	}

	// Value types work as map keys.
	m := map[AgentID]int{a: 1}
	if m[b] != 1 {
		t.Error("equal id should hit the same map entry")
	}
}

func TestNewTopicID(t *testing.T) {
	tests := []struct {
		name      string
		topicType string
		wantErr   bool
	}{
		{"word", "GitHub_Issues", false},
		{"dotted", "events.user", false},
		{"prefix convention", "Echo:rpc_request=caller", false},
		{"dash", "my-topic", false},
		{"empty", "", true},
		{"space", "a b", true},
		{"slash", "a/b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTopicID(tt.topicType, "any source")
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewTopicID(%q) error = %v, wantErr %v", tt.topicType, err, tt.wantErr)
			}
		})
	}
}

func TestParseAgentID(t *testing.T) {
	id, err := ParseAgentID("Echo/k1")
	if err != nil {
		t.Fatalf("ParseAgentID error: %v", err)
	}
	if id.Type != "Echo" || id.Key != "k1" {
		t.Errorf("id = %v, want Echo/k1", id)
	}

	// Round trip.
	back, err := ParseAgentID(id.String())
	if err != nil || back != id {
		t.Errorf("round trip = %v (%v), want %v", back, err, id)
	}

	// Key may itself contain slashes.
	id, err = ParseAgentID("IssueBot/repo/123")
	if err != nil {
		t.Fatalf("ParseAgentID error: %v", err)
	}
	if id.Key != "repo/123" {
		t.Errorf("Key = %q, want %q", id.Key, "repo/123")
	}

	if _, err := ParseAgentID("nokey"); err == nil {
		t.Error("expected error for missing separator")
	}
}

func TestTopicIDString(t *testing.T) {
	tp, _ := NewTopicID("events.user", "repo/123")
	if tp.String() != "events.user@repo/123" {
		t.Errorf("String = %q", tp.String())
	}
	tp, _ = NewTopicID("events.user", "")
	if tp.String() != "events.user" {
		t.Errorf("String = %q", tp.String())
	}
}
