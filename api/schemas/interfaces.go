package schemas

import (
	"context"

	"go.uber.org/zap"
)

// -- Session Interfaces --

// AutomationSession controls one remote browser connection bound to one model.
// A session is created per request and discarded when the request completes.
type AutomationSession interface {
	// ID returns the unique ID of the session.
	ID() string
	// Navigate loads url in the session's page and waits for it to settle.
	Navigate(ctx context.Context, url string) error
	// Act issues an imperative instruction against the current page.
	Act(ctx context.Context, opts ActOptions) (*ActResult, error)
	// Extract issues an extraction instruction and returns the structured value.
	Extract(ctx context.Context, opts ExtractOptions) (interface{}, error)
	// Close releases the browser target. It is safe to call more than once.
	Close(ctx context.Context) error
}

// SessionOptions carries everything the bootstrapper needs to open a session.
type SessionOptions struct {
	ModelName string
	CDPURL    string
	Logger    *zap.Logger
	Overrides SessionOverrides
}

// SessionBootstrapper establishes sessions against remote browsers.
type SessionBootstrapper interface {
	// Init makes a single connection attempt and returns an *InitError on failure.
	Init(ctx context.Context, opts SessionOptions) (AutomationSession, error)
}

// -- LLM Interfaces --

// GenerationOptions holds the tunable parameters of a single generation.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest encapsulates a complete request to the LLM.
type GenerationRequest struct {
	Model        string            `json:"model"`
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a hosted model,
// abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
