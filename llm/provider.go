// Package llm provides LLM provider abstractions.
//
// LLM Provider interface - the abstract interface for LLM providers.
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling

package llm

import (
	"context"
)

// CallOptions carries per-call overrides. A zero value falls back to the
// provider's configured defaults.
type CallOptions struct {
	// Model overrides the provider's default model. Document synthesis
	// routes different roles (author, critic, summarizer) to different
	// models on the same provider.
	Model string

	// MaxTokens caps the output token count for this call.
	MaxTokens int

	// Temperature sets the sampling temperature for this call.
	// Nil keeps the provider default.
	Temperature *float32

	// Format requests a response format (e.g. JSON object) where the
	// provider supports it.
	Format *ResponseFormat
}

// Provider defines the abstract interface for LLM providers.
// Implementations hide provider-specific details while exposing
// a consistent interface for chat completions.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the default model being used.
	Model() string

	// Chat sends a chat completion request with per-call options.
	Chat(ctx context.Context, messages []ChatMessage, opts CallOptions) (LLMResponse, error)
}
