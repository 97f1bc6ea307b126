// Package llm provides a unified interface over the LLM backends used by
// the AI extraction strategy.
package llm

import (
	"context"
	"fmt"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message represents a chat message.
type Message struct {
	Role    Role
	Content string
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionRequest is a request to the LLM.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONSchema  map[string]any // structured-output schema
}

// CompletionResponse is the LLM response.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// Provider is the core abstraction over LLM backends.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Name() string
}

// ProviderConfig holds common provider configuration.
type ProviderConfig struct {
	APIKey  string
	BaseURL string // for OpenRouter or custom endpoints
	Model   string
}

// New creates a provider by name: "anthropic", "openai" or "openrouter".
func New(name string, cfg ProviderConfig) (Provider, error) {
	switch name {
	case "anthropic":
		return NewAnthropicProvider(cfg)
	case "openai":
		return NewOpenAIProvider(cfg)
	case "openrouter":
		return NewOpenRouterProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", name)
	}
}
