package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/automation"
)

// Session is one tab in a remote browser bound to one model. It implements
// schemas.AutomationSession and automation.Page.
type Session struct {
	id     string
	model  string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	engine *automation.Engine

	navigationTimeout time.Duration
	postLoadWait      time.Duration
	actionTimeout     time.Duration
	debugDOM          bool

	mu       sync.Mutex
	isClosed bool
}

var (
	_ schemas.AutomationSession = (*Session)(nil)
	_ automation.Page           = (*Session)(nil)
)

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Model returns the model the session was bound to at bootstrap.
func (s *Session) Model() string {
	return s.model
}

// Navigate loads url and waits until the body is ready plus the post-load wait.
func (s *Session) Navigate(ctx context.Context, url string) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	navCtx, navCancel := context.WithTimeout(runCtx, s.navigationTimeout)
	defer navCancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	if err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	if s.postLoadWait > 0 {
		timer := time.NewTimer(s.postLoadWait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-runCtx.Done():
			return runCtx.Err()
		}
	}
	return nil
}

// Act performs one imperative instruction on the current page.
func (s *Session) Act(ctx context.Context, opts schemas.ActOptions) (*schemas.ActResult, error) {
	if opts.ModelName == "" {
		opts.ModelName = s.model
	}
	return s.engine.Act(ctx, s, opts)
}

// Extract answers one extraction instruction from the current page.
func (s *Session) Extract(ctx context.Context, opts schemas.ExtractOptions) (interface{}, error) {
	if opts.ModelName == "" {
		opts.ModelName = s.model
	}
	return s.engine.Extract(ctx, s, opts)
}

// Snapshot tags and lists the interactive elements of the current page.
func (s *Session) Snapshot(ctx context.Context) (*automation.PageSnapshot, error) {
	var snap automation.PageSnapshot
	if err := s.runActions(ctx, s.actionTimeout, chromedp.Evaluate(snapshotScript, &snap)); err != nil {
		return nil, err
	}
	if s.debugDOM {
		s.logger.Debug("Page snapshot.",
			zap.String("url", snap.URL),
			zap.Int("elements", len(snap.Elements)),
			zap.Int("text_chars", len(snap.Text)),
		)
	}
	return &snap, nil
}

// Perform executes a resolved action against the page.
func (s *Session) Perform(ctx context.Context, action automation.Action) error {
	actions, err := s.actionsFor(action)
	if err != nil {
		return err
	}
	return s.runActions(ctx, s.actionTimeout, actions...)
}

func (s *Session) actionsFor(action automation.Action) ([]chromedp.Action, error) {
	var sel string
	if action.Element != nil {
		sel = action.Element.Selector()
	}

	switch action.Method {
	case automation.MethodClick:
		if sel == "" {
			return nil, fmt.Errorf("click requires an element")
		}
		return []chromedp.Action{
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
		}, nil
	case automation.MethodFill:
		if sel == "" {
			return nil, fmt.Errorf("fill requires an element")
		}
		return []chromedp.Action{
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.Focus(sel, chromedp.ByQuery),
			chromedp.SetValue(sel, "", chromedp.ByQuery),
			chromedp.SendKeys(sel, action.Value, chromedp.ByQuery),
		}, nil
	case automation.MethodPress:
		key := keyFor(action.Value)
		if sel != "" {
			return []chromedp.Action{chromedp.SendKeys(sel, key, chromedp.ByQuery)}, nil
		}
		return []chromedp.Action{chromedp.KeyEvent(key)}, nil
	case automation.MethodScroll:
		dir := 1
		if strings.EqualFold(strings.TrimSpace(action.Value), "up") {
			dir = -1
		}
		return []chromedp.Action{
			chromedp.Evaluate(fmt.Sprintf(scrollScript, dir), nil, withUserGesture),
		}, nil
	}
	return nil, fmt.Errorf("unsupported method %q", action.Method)
}

func withUserGesture(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithUserGesture(true)
}

// namedKeys maps key names a model is likely to produce onto CDP key strings.
var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"home":       kb.Home,
	"end":        kb.End,
}

// keyFor resolves a key name. Unknown names are typed literally.
func keyFor(name string) string {
	if k, ok := namedKeys[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k
	}
	if name == "" {
		return kb.Enter
	}
	return name
}

// runActions runs actions bounded by the session lifetime, the caller's ctx and timeout.
func (s *Session) runActions(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var tcancel context.CancelFunc
		runCtx, tcancel = context.WithTimeout(runCtx, timeout)
		defer tcancel()
	}
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Close closes the tab and the CDP connection. The remote browser keeps running.
// It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
