// Package adapter provides generation-provider adapters for the research
// orchestrator. Each adapter wraps one provider SDK behind a narrow
// prompt-in, completion-out contract; the orchestration core never sees
// provider-specific types.
package adapter

import (
	"context"
)

// Adapter defines the interface for generation-provider adapters.
type Adapter interface {
	// Generate sends a prompt to the model and returns the completion.
	Generate(ctx context.Context, model string, prompt string) (*Completion, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// Usage captures normalized token usage for a single call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the normalized output of a generation call.
type Completion struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// AdapterInfo holds metadata about an adapter for the admin surface.
type AdapterInfo struct {
	Name   string      `json:"name"`
	Models []ModelInfo `json:"models"`
}

// ModelInfo holds metadata about a model.
type ModelInfo struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}
