package llmclient

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
)

// GeminiClient implements LLMClient for Google Gemini models via the genai SDK.
type GeminiClient struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiClient initializes the client. Endpoint overrides the API base URL.
func NewGeminiClient(ctx context.Context, cfg config.LLMProviderConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini %w", ErrMissingAPIKey)
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		cc.HTTPOptions.BaseURL = cfg.Endpoint
	}
	if cfg.APITimeout > 0 {
		timeout := cfg.APITimeout
		cc.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{
		client: client,
		logger: logger.Named("llm_client.gemini"),
	}, nil
}

// Generate sends one GenerateContent call and returns the concatenated text.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(req.Options.Temperature),
	}
	if req.Options.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.Options.ForceJSONFormat {
		genConfig.ResponseMIMEType = "application/json"
	}

	startTime := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), genConfig)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini API returned no candidates")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini API returned empty content (reason: %s)", resp.Candidates[0].FinishReason)
	}

	fields := []zap.Field{zap.String("model", req.Model), zap.Duration("duration", time.Since(startTime))}
	if resp.UsageMetadata != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
		)
	}
	c.logger.Info("LLM generation complete (Gemini)", fields...)
	return text, nil
}

// Close is a no-op; genai clients hold no closable resources.
func (c *GeminiClient) Close() error { return nil }
