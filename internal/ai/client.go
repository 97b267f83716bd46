// Package ai is the LLM collaborator used for root-cause diagnosis.
//
// The engine depends only on the Client interface. The Anthropic adapter is
// the production implementation; Guarded wraps any Client with a circuit
// breaker, a concurrency cap and a request-rate limiter so a burst of
// failures does not flood the provider.
package ai

import "context"

// Role of a chat message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn
type Message struct {
	Role    Role
	Content string
}

// ChatOptions control a single completion. Streaming is never used.
type ChatOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int64 // 0 uses the adapter default
}

// ChatResponse is a completed, non-streamed reply
type ChatResponse struct {
	Content      string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Client is the narrow AI collaborator contract
type Client interface {
	Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error)
	ListModels(ctx context.Context) ([]string, error)
}
