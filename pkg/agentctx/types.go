// Package agentctx implements the execution context the runtime manages:
// a per-identity agent environment wired to shared model-provider handles
// and a persistent transcript.
package agentctx

import "context"

// Message is a single conversation turn sent to a provider
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains the parameters for one completion call
type Request struct {
	Model     string
	System    string
	MaxTokens int
	Messages  []Message
}

// Reply contains a provider's completion
type Reply struct {
	Content string
	Usage   TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider is a model API backend
type Provider interface {
	// Complete makes one completion call
	Complete(ctx context.Context, request Request) (*Reply, error)

	// Name returns the provider name
	Name() string
}
