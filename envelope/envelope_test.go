package envelope

import (
	"testing"

	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/identity"
)

func TestEventRoundTrip(t *testing.T) {
	topic, _ := identity.NewTopicID("GitHub_Issues", "repo/123")
	env := NewEvent(topic, []byte(`{"action":"opened"}`))

	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if got.Kind != KindEvent {
		t.Fatalf("Kind = %v, want event", got.Kind)
	}
	if got.Event.Topic != topic {
		t.Errorf("Topic = %v, want %v", got.Event.Topic, topic)
	}
	if string(got.Event.Payload) != `{"action":"opened"}` {
		t.Errorf("Payload = %s", got.Event.Payload)
	}
}

func TestTargetedEventRoundTrip(t *testing.T) {
	topic, _ := identity.NewTopicID("tick", "s")
	targets := []identity.AgentID{
		{Type: "Counter", Key: "s"},
		{Type: "Beacon", Key: "s"},
	}
	env := NewEventTo(topic, nil, targets)

	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if len(got.Event.Targets) != 2 {
		t.Fatalf("Targets = %v, want 2 entries", got.Event.Targets)
	}
	for i, want := range targets {
		if got.Event.Targets[i] != want {
			t.Errorf("Targets[%d] = %v, want %v", i, got.Event.Targets[i], want)
		}
	}
}

func TestRequestRoundTrip(t *testing.T) {
	target, _ := identity.NewAgentID("Echo", "k1")
	env := NewRequest("req-1", target, "ping", []byte(`"ping"`))

	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	if got.Request.ID != "req-1" || got.Request.Target != target || got.Request.Method != "ping" {
		t.Errorf("Request = %+v", got.Request)
	}
	if got.CorrelationID() != "req-1" {
		t.Errorf("CorrelationID = %q", got.CorrelationID())
	}
}

func TestErrorFrameCarriesCode(t *testing.T) {
	env := NewError("req-9", errors.PlacementFailed("Missing"))

	data, err := Marshal(env)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	structured := got.ErrorBody.Err()
	if structured.Code() != errors.ErrCodePlacementFailed {
		t.Errorf("Code = %v, want PLACEMENT_FAILED", structured.Code())
	}
	if !structured.Retryable() {
		t.Error("placement failure should stay retryable across the wire")
	}
}

func TestErrorFramePlainError(t *testing.T) {
	env := NewError("req-2", errInternal{})
	if env.ErrorBody.Code != "" {
		t.Errorf("plain error should carry no code, got %q", env.ErrorBody.Code)
	}
	if env.ErrorBody.Err().Code() != errors.ErrCodeInternal {
		t.Error("codeless frame should decode as INTERNAL")
	}
}

type errInternal struct{}

func (errInternal) Error() string { return "boom" }

func TestValidate(t *testing.T) {
	target, _ := identity.NewAgentID("Echo", "k1")
	topic, _ := identity.NewTopicID("t", "s")

	tests := []struct {
		name    string
		env     *Envelope
		wantErr bool
	}{
		{"heartbeat", NewHeartbeat(), false},
		{"register", NewRegister("Echo"), false},
		{"bad version", &Envelope{V: 2, Kind: KindHeartbeat}, true},
		{"unknown kind", &Envelope{V: Version, Kind: "bogus"}, true},
		{"register without type", &Envelope{V: Version, Kind: KindRegister, Register: &Register{}}, true},
		{"event without body", &Envelope{V: Version, Kind: KindEvent}, true},
		{"request without id", &Envelope{V: Version, Kind: KindRequest, Request: &Request{Target: target}}, true},
		{"request bad target", &Envelope{V: Version, Kind: KindRequest, Request: &Request{ID: "1", Target: identity.AgentID{Type: "2bad"}}}, true},
		{"event ok", NewEvent(topic, nil), false},
		{"event with targets", NewEventTo(topic, nil, []identity.AgentID{target}), false},
		{"event bad target", NewEventTo(topic, nil, []identity.AgentID{{Type: "2bad"}}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeInvalidEnvelope) {
				t.Errorf("error code = %v, want INVALID_ENVELOPE", err)
			}
		})
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte("not json")); !errors.Is(err, errors.ErrCodeInvalidEnvelope) {
		t.Errorf("garbage unmarshal = %v, want INVALID_ENVELOPE", err)
	}
}
