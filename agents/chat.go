// Package agents provides ready-made agent implementations for the worker
// runtime.
package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/identity"
	"github.com/vinayprograms/agentgrid/llm"
	"github.com/vinayprograms/agentgrid/runtime"
	"github.com/vinayprograms/agentgrid/state"
)

// conflictRetries bounds re-read attempts when a transcript write loses an
// optimistic-concurrency race.
const conflictRetries = 3

// ChatMessage is the payload for the "chat" method.
type ChatMessage struct {
	Text string `json:"text"`
}

// ChatReply is the response payload for the "chat" method.
type ChatReply struct {
	Text string `json:"text"`
}

// transcript is the persisted conversation state.
type transcript struct {
	Messages []llm.Message `json:"messages"`
}

// ChatAgent is a conversational agent: each "chat" request appends the user
// turn to a persisted transcript, asks the model provider for a completion
// and persists the assistant turn. One agent instance per conversation key.
type ChatAgent struct {
	id       identity.AgentID
	provider llm.Provider
	store    state.Store
	system   string
}

// ChatOption configures a ChatAgent.
type ChatOption func(*ChatAgent)

// WithSystemPrompt sets the system prompt prepended to every completion.
func WithSystemPrompt(prompt string) ChatOption {
	return func(a *ChatAgent) {
		a.system = prompt
	}
}

// NewChatFactory returns a runtime factory producing ChatAgents that share
// one provider and one state store.
func NewChatFactory(provider llm.Provider, store state.Store, opts ...ChatOption) runtime.Factory {
	return func(id identity.AgentID, m runtime.Messenger) (runtime.Agent, error) {
		if provider == nil {
			return nil, fmt.Errorf("chat agent needs a provider")
		}
		if store == nil {
			return nil, fmt.Errorf("chat agent needs a state store")
		}
		a := &ChatAgent{id: id, provider: provider, store: store}
		for _, opt := range opts {
			opt(a)
		}
		return a, nil
	}
}

// OnEvent treats any event payload as a fire-and-forget chat turn: the
// exchange is persisted but nobody waits for the reply.
func (a *ChatAgent) OnEvent(ctx context.Context, topic identity.TopicID, payload []byte) error {
	var msg ChatMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Text == "" {
		return nil
	}
	_, err := a.chat(ctx, msg.Text)
	return err
}

// OnRequest handles the chat RPC surface.
func (a *ChatAgent) OnRequest(ctx context.Context, method string, payload []byte) ([]byte, error) {
	switch method {
	case "chat":
		var msg ChatMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrCodeInvalidEnvelope, "bad chat payload")
		}
		reply, err := a.chat(ctx, msg.Text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(ChatReply{Text: reply})

	case "history":
		tr, _, err := a.load(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(tr.Messages)

	case "reset":
		if err := a.store.Delete(ctx, a.id); err != nil {
			return nil, errors.Wrap(err, "reset failed", errors.WithAgentID(a.id.String()))
		}
		return json.Marshal(true)

	default:
		return nil, errors.MethodNotFound(method)
	}
}

// chat runs one exchange with read-retry on write conflicts. The provider
// is called inside the retry loop: a lost race means the transcript moved
// underneath us and the completion has to be recomputed against it.
func (a *ChatAgent) chat(ctx context.Context, text string) (string, error) {
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		tr, etag, err := a.load(ctx)
		if err != nil {
			return "", err
		}
		tr.Messages = append(tr.Messages, llm.Message{Role: "user", Content: text})

		resp, err := a.provider.Chat(ctx, llm.ChatRequest{Messages: a.prompt(tr)})
		if err != nil {
			return "", errors.Wrap(err, "model call failed", errors.WithAgentID(a.id.String()))
		}
		tr.Messages = append(tr.Messages, llm.Message{Role: "assistant", Content: resp.Content})

		data, err := json.Marshal(tr)
		if err != nil {
			return "", errors.Wrap(err, "encode transcript")
		}
		_, err = a.store.Write(ctx, a.id, data, etag)
		if err == nil {
			return resp.Content, nil
		}
		if err != state.ErrConflict {
			return "", errors.Wrap(err, "persist transcript", errors.WithAgentID(a.id.String()))
		}
	}
	return "", errors.Conflict(a.id.String())
}

// load reads the persisted transcript. Absent state is an empty transcript
// with an empty etag, which makes the first write unconditional.
func (a *ChatAgent) load(ctx context.Context) (transcript, string, error) {
	data, etag, err := a.store.Read(ctx, a.id)
	if err == state.ErrNotFound {
		return transcript{}, "", nil
	}
	if err != nil {
		return transcript{}, "", errors.Wrap(err, "read transcript", errors.WithAgentID(a.id.String()))
	}

	var tr transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return transcript{}, "", errors.Wrap(err, "decode transcript", errors.WithAgentID(a.id.String()))
	}
	return tr, etag, nil
}

func (a *ChatAgent) prompt(tr transcript) []llm.Message {
	if a.system == "" {
		return tr.Messages
	}
	msgs := make([]llm.Message, 0, len(tr.Messages)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: a.system})
	return append(msgs, tr.Messages...)
}
