package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/vinayprograms/agentgrid/config"
)

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	p.SetResponse("hello")

	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q, want hello", resp.Content)
	}
	if p.CallCount() != 1 {
		t.Errorf("CallCount = %d, want 1", p.CallCount())
	}
	if got := p.LastRequest().Messages[0].Content; got != "hi" {
		t.Errorf("LastRequest content = %q, want hi", got)
	}
}

func TestMockProvider_Error(t *testing.T) {
	p := NewMockProvider()
	p.SetError(fmt.Errorf("rate limited"))

	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMockProvider_ChatFunc(t *testing.T) {
	p := NewMockProvider()
	p.ChatFunc = func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{Content: fmt.Sprintf("%d messages", len(req.Messages))}, nil
	}

	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user"}, {Role: "assistant"}},
	})
	if err != nil {
		t.Fatalf("Chat error: %v", err)
	}
	if resp.Content != "2 messages" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestFromConfig_Mock(t *testing.T) {
	p, err := FromConfig(config.LLMConfig{Provider: "mock"})
	if err != nil {
		t.Fatalf("FromConfig error: %v", err)
	}
	if _, ok := p.(*MockProvider); !ok {
		t.Errorf("provider = %T, want *MockProvider", p)
	}
}

func TestFromConfig_Unknown(t *testing.T) {
	if _, err := FromConfig(config.LLMConfig{Provider: "skynet"}); err == nil {
		t.Fatal("unknown provider should be rejected")
	}
}

func TestProviderConstructors_RequireConfig(t *testing.T) {
	if _, err := NewAnthropicProvider(AnthropicConfig{Model: "m", MaxTokens: 1}); err == nil {
		t.Error("anthropic without api key should fail")
	}
	if _, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k", MaxTokens: 1}); err == nil {
		t.Error("openai without model should fail")
	}
	if _, err := NewGoogleProvider(GoogleConfig{APIKey: "k", Model: "m"}); err == nil {
		t.Error("google without max tokens should fail")
	}
}
