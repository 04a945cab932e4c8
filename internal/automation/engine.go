package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
	"github.com/xkilldash9x/scalpel-dispatch/internal/llmutil"
)

// ErrUnknownElement is returned when the model picks a ref that is not in the snapshot.
var ErrUnknownElement = errors.New("model selected an element that is not on the page")

// actDecision is the model's answer to an act prompt. A missing element is
// the same as -1: the action targets the page.
type actDecision struct {
	Element     *int   `json:"element"`
	Method      Method `json:"method"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// Engine maps instructions onto a Page with one model call each.
type Engine struct {
	llm    schemas.LLMClient
	cfg    config.AutomationConfig
	logger *zap.Logger
}

// NewEngine creates an engine generating through llm.
func NewEngine(llm schemas.LLMClient, cfg config.AutomationConfig, logger *zap.Logger) *Engine {
	return &Engine{llm: llm, cfg: cfg, logger: logger.Named("automation")}
}

// Act carries out one imperative instruction. A model answer of "none" is a
// successful call that reports Success=false with the model's explanation.
func (e *Engine) Act(ctx context.Context, page Page, opts schemas.ActOptions) (*schemas.ActResult, error) {
	if strings.TrimSpace(opts.Action) == "" {
		return nil, fmt.Errorf("action instruction is empty")
	}
	snap, err := e.snapshot(ctx, page)
	if err != nil {
		return nil, err
	}

	response, err := e.llm.Generate(ctx, schemas.GenerationRequest{
		Model:        opts.ModelName,
		SystemPrompt: actSystemPrompt,
		UserPrompt:   buildActPrompt(opts.Action, snap),
		Options:      e.generationOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}

	decision, err := llmutil.ParseJSONResponse[actDecision](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse llm response: %w", err)
	}
	action, err := resolveAction(decision, snap)
	if err != nil {
		return nil, err
	}

	log := e.logger.With(zap.String("method", string(action.Method)), zap.Int("element", decision.ref()))
	if action.Method == MethodNone {
		log.Info("Model declined the action.", zap.String("reason", decision.Description))
		return &schemas.ActResult{Success: false, Message: decision.Description, Action: opts.Action}, nil
	}

	if err := page.Perform(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to perform %s: %w", action.Method, err)
	}
	log.Info("Action performed.")

	msg := decision.Description
	if msg == "" {
		msg = fmt.Sprintf("Performed %s", action.Method)
	}
	return &schemas.ActResult{Success: true, Message: msg, Action: opts.Action}, nil
}

// Extract answers one extraction instruction with a JSON value. With
// UseTextExtract the model sees only the page text.
func (e *Engine) Extract(ctx context.Context, page Page, opts schemas.ExtractOptions) (interface{}, error) {
	if strings.TrimSpace(opts.Instruction) == "" {
		return nil, fmt.Errorf("extraction instruction is empty")
	}
	snap, err := e.snapshot(ctx, page)
	if err != nil {
		return nil, err
	}

	response, err := e.llm.Generate(ctx, schemas.GenerationRequest{
		Model:        opts.ModelName,
		SystemPrompt: extractSystemPrompt,
		UserPrompt:   buildExtractPrompt(opts.Instruction, opts.Schema, snap, opts.UseTextExtract),
		Options:      e.generationOptions(),
	})
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}

	value, err := llmutil.ParseJSONResponse[interface{}](response)
	if err != nil {
		return nil, fmt.Errorf("failed to parse llm response: %w", err)
	}
	e.logger.Info("Extraction complete.", zap.Int("page_chars", len(snap.Text)))
	return *value, nil
}

func (e *Engine) generationOptions() schemas.GenerationOptions {
	return schemas.GenerationOptions{
		Temperature:     e.cfg.Temperature,
		MaxTokens:       e.cfg.MaxTokens,
		ForceJSONFormat: true,
	}
}

// snapshot takes a page snapshot and bounds it to the configured budget.
func (e *Engine) snapshot(ctx context.Context, page Page) (*PageSnapshot, error) {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot page: %w", err)
	}
	if e.cfg.MaxElements > 0 && len(snap.Elements) > e.cfg.MaxElements {
		snap.Elements = snap.Elements[:e.cfg.MaxElements]
	}
	if e.cfg.MaxPageChars > 0 {
		snap.Text = truncateRunes(snap.Text, e.cfg.MaxPageChars)
	}
	return snap, nil
}

func (d *actDecision) ref() int {
	if d.Element == nil {
		return -1
	}
	return *d.Element
}

func resolveAction(d *actDecision, snap *PageSnapshot) (Action, error) {
	if !d.Method.valid() {
		return Action{}, fmt.Errorf("model returned unknown method %q", d.Method)
	}
	action := Action{Method: d.Method, Value: d.Value}
	if d.Method == MethodNone || d.Method == MethodScroll {
		return action, nil
	}

	ref := d.ref()
	if ref < 0 {
		if d.Method.needsElement() {
			return Action{}, fmt.Errorf("%s requires an element: %w", d.Method, ErrUnknownElement)
		}
		return action, nil
	}
	for i := range snap.Elements {
		if snap.Elements[i].Ref == ref {
			el := snap.Elements[i]
			action.Element = &el
			return action, nil
		}
	}
	return Action{}, fmt.Errorf("ref %d: %w", ref, ErrUnknownElement)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
