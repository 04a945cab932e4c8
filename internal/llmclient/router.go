package llmclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
)

type clientBuilder func(ctx context.Context, cfg config.LLMConfig, model string, logger *zap.Logger) (schemas.LLMClient, error)

// Router implements LLMClient by routing each request to the provider that
// serves its model. Provider clients are built on first use and shared by
// every session afterwards.
type Router struct {
	cfg    config.LLMConfig
	logger *zap.Logger
	build  clientBuilder

	mu      sync.Mutex
	clients map[config.LLMProvider]schemas.LLMClient
}

// NewRouter creates a router over the configured providers.
func NewRouter(cfg config.LLMConfig, logger *zap.Logger) *Router {
	return &Router{
		cfg:     cfg,
		logger:  logger.Named("llm_router"),
		build:   NewClient,
		clients: make(map[config.LLMProvider]schemas.LLMClient),
	}
}

// Ensure verifies that model can be served, building its provider client if
// needed. Sessions call it at bootstrap so a missing key fails before any
// browser work.
func (r *Router) Ensure(ctx context.Context, model string) error {
	_, err := r.clientFor(ctx, model)
	return err
}

// Generate selects the provider client for req.Model.
func (r *Router) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	client, err := r.clientFor(ctx, req.Model)
	if err != nil {
		return "", err
	}
	r.logger.Debug("Routing LLM request", zap.String("model", req.Model))
	return client.Generate(ctx, req)
}

// Close releases every provider client built so far.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for p, c := range r.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
		delete(r.clients, p)
	}
	return errors.Join(errs...)
}

func (r *Router) clientFor(ctx context.Context, model string) (schemas.LLMClient, error) {
	provider, err := ProviderFor(model)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[provider]; ok {
		return c, nil
	}
	c, err := r.build(ctx, r.cfg, model, r.logger)
	if err != nil {
		return nil, err
	}
	r.clients[provider] = c
	return c, nil
}
