// Package llm provides the model provider interface used by LLM-backed
// agents, with adapters for the official Anthropic, OpenAI and Google SDKs.
//
// Providers are plain request/response collaborators: the messaging runtime
// never sees them. API keys come from each provider's standard environment
// variable.
package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/vinayprograms/agentgrid/config"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ChatRequest is a completion request.
type ChatRequest struct {
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// ChatResponse is a completion result.
type ChatResponse struct {
	Content      string `json:"content"`
	StopReason   string `json:"stop_reason,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Model        string `json:"model,omitempty"`
}

// Provider is the interface for LLM providers.
type Provider interface {
	// Chat sends a completion request and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// FromConfig builds a provider from worker configuration. The "mock"
// provider needs no credentials and echoes canned responses; the real
// providers read their API key from the environment.
func FromConfig(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "mock":
		return NewMockProvider(), nil
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:    os.Getenv("OPENAI_API_KEY"),
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	case "google":
		return NewGoogleProvider(GoogleConfig{
			APIKey:    os.Getenv("GOOGLE_API_KEY"),
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// MockProvider is a canned-response provider for tests.
type MockProvider struct {
	response    string
	err         error
	callCount   int
	lastRequest *ChatRequest

	// ChatFunc overrides the canned behavior when set.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewMockProvider creates a mock provider that answers "ok".
func NewMockProvider() *MockProvider {
	return &MockProvider{response: "ok"}
}

// SetResponse sets the canned response content.
func (p *MockProvider) SetResponse(content string) {
	p.response = content
}

// SetError sets an error to return from Chat.
func (p *MockProvider) SetError(err error) {
	p.err = err
}

// LastRequest returns the most recent request.
func (p *MockProvider) LastRequest() *ChatRequest {
	return p.lastRequest
}

// CallCount returns the number of Chat calls made.
func (p *MockProvider) CallCount() int {
	return p.callCount
}

// Chat implements the Provider interface.
func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.callCount++
	p.lastRequest = &req

	if p.ChatFunc != nil {
		return p.ChatFunc(ctx, req)
	}
	if p.err != nil {
		return nil, p.err
	}
	return &ChatResponse{
		Content:    p.response,
		StopReason: "end_turn",
		Model:      "mock",
	}, nil
}
