package llmclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
)

// OpenAIClient implements LLMClient over the Chat Completions API.
type OpenAIClient struct {
	client openai.Client
	logger *zap.Logger
}

// NewOpenAIClient initializes the client. Endpoint overrides the API base URL.
func NewOpenAIClient(cfg config.LLMProviderConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI %w", ErrMissingAPIKey)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(2),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}
	if cfg.APITimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.APITimeout))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		logger: logger.Named("llm_client.openai"),
	}, nil
}

// Generate sends one chat completion and returns the first choice's content.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	params := c.buildParams(req)

	startTime := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			c.logger.Error("OpenAI API returned error status", zap.Int("status", apiErr.StatusCode), zap.String("model", req.Model))
			return "", fmt.Errorf("openai API error: status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}

	c.logger.Info("LLM generation complete (OpenAI)",
		zap.String("model", req.Model),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) buildParams(req schemas.GenerationRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{Model: openai.ChatModel(req.Model)}

	if isReasoningModel(req.Model) {
		// o1 models take neither a system role nor sampling parameters.
		params.Messages = []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.SystemPrompt + "\n\n" + req.UserPrompt),
		}
	} else {
		params.Messages = []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		}
		params.Temperature = openai.Float(float64(req.Options.Temperature))
		if req.Options.ForceJSONFormat {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			}
		}
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.Options.MaxTokens))
	}
	return params
}

// Close is a no-op; the SDK holds no resources beyond its HTTP client.
func (c *OpenAIClient) Close() error { return nil }
