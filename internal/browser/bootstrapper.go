package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/automation"
	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
)

// ModelRouter serves generations for any supported model and can confirm up
// front that a model is usable.
type ModelRouter interface {
	schemas.LLMClient
	Ensure(ctx context.Context, model string) error
}

// Bootstrapper attaches sessions to remote browsers over CDP.
type Bootstrapper struct {
	browserCfg    config.BrowserConfig
	automationCfg config.AutomationConfig
	llm           ModelRouter
	logger        *zap.Logger
}

var _ schemas.SessionBootstrapper = (*Bootstrapper)(nil)

// NewBootstrapper creates a bootstrapper generating through llm.
func NewBootstrapper(cfg *config.Config, llm ModelRouter, logger *zap.Logger) *Bootstrapper {
	return &Bootstrapper{
		browserCfg:    cfg.Browser,
		automationCfg: cfg.Automation,
		llm:           llm,
		logger:        logger.Named("browser"),
	}
}

// Init makes a single bounded attempt to attach a new tab at opts.CDPURL. Any
// failure is returned as *schemas.InitError and leaves nothing running.
func (b *Bootstrapper) Init(ctx context.Context, opts schemas.SessionOptions) (schemas.AutomationSession, error) {
	initErr := func(err error) error {
		return &schemas.InitError{CDPURL: opts.CDPURL, Err: err}
	}
	if opts.CDPURL == "" {
		return nil, initErr(errors.New("cdp_url is empty"))
	}

	model := opts.ModelName
	if model == "" {
		model = schemas.DefaultModel
	}
	if err := b.llm.Ensure(ctx, model); err != nil {
		return nil, initErr(fmt.Errorf("model %s unavailable: %w", model, err))
	}

	sessionID := uuid.New().String()
	logger := opts.Logger
	if logger == nil {
		logger = b.logger
	}
	logger = logger.With(zap.String("session_id", sessionID), zap.String("model", model))

	debugDOM := b.browserCfg.DebugDOM
	if opts.Overrides.DebugDOM != nil {
		debugDOM = *opts.Overrides.DebugDOM
	}

	// The session owns its contexts; the caller's ctx only bounds the attach.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), opts.CDPURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, b.contextOptions(logger, debugDOM)...)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	if err := b.attach(ctx, tabCtx, cancel); err != nil {
		logger.Warn("Failed to attach to remote browser.", zap.String("cdp_url", opts.CDPURL), zap.Error(err))
		return nil, initErr(err)
	}

	s := &Session{
		id:                sessionID,
		model:             model,
		ctx:               tabCtx,
		cancel:            cancel,
		logger:            logger,
		engine:            automation.NewEngine(b.llm, b.automationCfg, logger),
		navigationTimeout: durationOr(opts.Overrides.NavigationTimeout, b.browserCfg.NavigationTimeout),
		postLoadWait:      durationOr(opts.Overrides.PostLoadWait, b.browserCfg.PostLoadWait),
		actionTimeout:     b.browserCfg.ActionTimeout,
		debugDOM:          debugDOM,
	}
	logger.Info("Browser session attached.", zap.Bool("debug_dom", debugDOM))
	return s, nil
}

// attach runs the first chromedp.Run on tabCtx, which dials the browser and
// creates the tab. The first Run must not see a deadline, since cancelling its
// context tears the connection down, so the timeout is enforced from outside.
func (b *Bootstrapper) attach(ctx context.Context, tabCtx context.Context, cancel func()) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(tabCtx) }()

	timer := time.NewTimer(b.browserCfg.ConnectTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			cancel()
			return fmt.Errorf("failed to connect to browser: %w", err)
		}
		return nil
	case <-timer.C:
		// The pending Run unwinds on its own once its contexts are cancelled.
		cancel()
		return fmt.Errorf("timed out after %s connecting to browser", b.browserCfg.ConnectTimeout)
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (b *Bootstrapper) contextOptions(logger *zap.Logger, debugDOM bool) []chromedp.ContextOption {
	sugar := logger.Named("cdp").Sugar()
	opts := []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Infof),
		chromedp.WithErrorf(sugar.Debugf),
	}
	if debugDOM {
		opts = append(opts, chromedp.WithDebugf(sugar.Debugf))
	}
	return opts
}

func durationOr(override, fallback time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return fallback
}
