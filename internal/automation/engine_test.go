package automation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) Close() error { return nil }

type fakePage struct {
	snap        PageSnapshot
	snapshotErr error
	performErr  error
	performed   []Action
}

func (p *fakePage) Snapshot(ctx context.Context) (*PageSnapshot, error) {
	if p.snapshotErr != nil {
		return nil, p.snapshotErr
	}
	s := p.snap
	s.Elements = append([]Element(nil), p.snap.Elements...)
	return &s, nil
}

func (p *fakePage) Perform(ctx context.Context, a Action) error {
	if p.performErr != nil {
		return p.performErr
	}
	p.performed = append(p.performed, a)
	return nil
}

func loginPage() *fakePage {
	return &fakePage{snap: PageSnapshot{
		URL:   "https://example.com/login",
		Title: "Sign in",
		Elements: []Element{
			{Ref: 0, Tag: "input", Type: "email", Placeholder: "Email"},
			{Ref: 1, Tag: "button", Text: "Log in"},
		},
		Text: "Welcome back. Sign in to continue.",
	}}
}

func newTestEngine(t *testing.T, llm schemas.LLMClient) *Engine {
	t.Helper()
	cfg := config.AutomationConfig{MaxElements: 150, MaxPageChars: 20000, MaxTokens: 512}
	return NewEngine(llm, cfg, zaptest.NewLogger(t))
}

func TestEngine_Act_Click(t *testing.T) {
	llm := new(mockLLM)
	page := loginPage()
	engine := newTestEngine(t, llm)

	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Model == "gpt-4o" &&
			req.Options.ForceJSONFormat &&
			strings.Contains(req.UserPrompt, "Instruction: click the login button") &&
			strings.Contains(req.UserPrompt, `[1] <button> Log in`)
	})).Return("```json\n{\"element\": 1, \"method\": \"click\", \"description\": \"Clicked Log in\"}\n```", nil).Once()

	res, err := engine.Act(context.Background(), page, schemas.ActOptions{Action: "click the login button", ModelName: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, &schemas.ActResult{Success: true, Message: "Clicked Log in", Action: "click the login button"}, res)

	require.Len(t, page.performed, 1)
	assert.Equal(t, MethodClick, page.performed[0].Method)
	require.NotNil(t, page.performed[0].Element)
	assert.Equal(t, `[data-dispatch-ref="1"]`, page.performed[0].Element.Selector())
	llm.AssertExpectations(t)
}

func TestEngine_Act_Fill(t *testing.T) {
	llm := new(mockLLM)
	page := loginPage()
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"element": 0, "method": "fill", "value": "a@b.c", "description": ""}`, nil)

	res, err := newTestEngine(t, llm).Act(context.Background(), page, schemas.ActOptions{Action: "type a@b.c into email", ModelName: "gpt-4o"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Performed fill", res.Message)
	require.Len(t, page.performed, 1)
	assert.Equal(t, "a@b.c", page.performed[0].Value)
	assert.Equal(t, "input", page.performed[0].Element.Tag)
}

func TestEngine_Act_PageLevelMethods(t *testing.T) {
	for _, answer := range []string{
		`{"element": -1, "method": "scroll", "value": "down"}`,
		`{"element": -1, "method": "press", "value": "Enter"}`,
	} {
		llm := new(mockLLM)
		page := loginPage()
		llm.On("Generate", mock.Anything, mock.Anything).Return(answer, nil)

		res, err := newTestEngine(t, llm).Act(context.Background(), page, schemas.ActOptions{Action: "x", ModelName: "gpt-4o"})
		require.NoError(t, err, answer)
		assert.True(t, res.Success)
		require.Len(t, page.performed, 1)
		assert.Nil(t, page.performed[0].Element)
	}
}

func TestEngine_Act_PressWithoutElementField(t *testing.T) {
	pages := map[string]*fakePage{
		"empty page": {snap: PageSnapshot{URL: "https://example.com/"}},
		// Ref 0 exists here and must not receive the key.
		"page with ref 0": loginPage(),
	}
	answers := []string{
		`{"method": "press", "value": "Enter", "description": "Pressed Enter"}`,
		`{"element": null, "method": "press", "value": "Enter", "description": "Pressed Enter"}`,
	}
	for name, page := range pages {
		for _, answer := range answers {
			t.Run(name, func(t *testing.T) {
				llm := new(mockLLM)
				page.performed = nil
				llm.On("Generate", mock.Anything, mock.Anything).Return(answer, nil)

				res, err := newTestEngine(t, llm).Act(context.Background(), page, schemas.ActOptions{Action: "press enter", ModelName: "gpt-4o"})
				require.NoError(t, err, answer)
				assert.Equal(t, &schemas.ActResult{Success: true, Message: "Pressed Enter", Action: "press enter"}, res)
				require.Len(t, page.performed, 1)
				assert.Equal(t, MethodPress, page.performed[0].Method)
				assert.Equal(t, "Enter", page.performed[0].Value)
				assert.Nil(t, page.performed[0].Element)
			})
		}
	}
}

func TestEngine_Act_None(t *testing.T) {
	llm := new(mockLLM)
	page := loginPage()
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"element": -1, "method": "none", "description": "There is no checkout button."}`, nil)

	res, err := newTestEngine(t, llm).Act(context.Background(), page, schemas.ActOptions{Action: "checkout", ModelName: "gpt-4o"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "There is no checkout button.", res.Message)
	assert.Empty(t, page.performed)
}

func TestEngine_Act_Errors(t *testing.T) {
	tests := []struct {
		name    string
		page    *fakePage
		answer  string
		llmErr  error
		wantErr string
		wantIs  error
	}{
		{name: "snapshot fails", page: &fakePage{snapshotErr: errors.New("target closed")}, wantErr: "failed to snapshot page: target closed"},
		{name: "llm fails", page: loginPage(), llmErr: context.Canceled, wantErr: "llm generation failed", wantIs: context.Canceled},
		{name: "unparsable answer", page: loginPage(), answer: "I would click it", wantErr: "failed to parse llm response"},
		{name: "unknown method", page: loginPage(), answer: `{"element": 1, "method": "hover"}`, wantErr: `unknown method "hover"`},
		{name: "unknown ref", page: loginPage(), answer: `{"element": 9, "method": "click"}`, wantIs: ErrUnknownElement},
		{name: "click without element", page: loginPage(), answer: `{"element": -1, "method": "click"}`, wantIs: ErrUnknownElement},
		{name: "click with element omitted", page: loginPage(), answer: `{"method": "click"}`, wantIs: ErrUnknownElement},
		{name: "perform fails", page: &fakePage{snap: loginPage().snap, performErr: errors.New("node detached")}, answer: `{"element": 1, "method": "click"}`, wantErr: "failed to perform click: node detached"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := new(mockLLM)
			llm.On("Generate", mock.Anything, mock.Anything).Return(tt.answer, tt.llmErr).Maybe()

			_, err := newTestEngine(t, llm).Act(context.Background(), tt.page, schemas.ActOptions{Action: "click login", ModelName: "gpt-4o"})
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestEngine_Act_EmptyInstruction(t *testing.T) {
	llm := new(mockLLM)
	_, err := newTestEngine(t, llm).Act(context.Background(), loginPage(), schemas.ActOptions{Action: "  "})
	assert.EqualError(t, err, "action instruction is empty")
	llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestEngine_Extract(t *testing.T) {
	llm := new(mockLLM)
	page := loginPage()

	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Model == "claude-3-5-sonnet-latest" &&
			req.SystemPrompt == extractSystemPrompt &&
			strings.Contains(req.UserPrompt, `Output description: {"heading":"string"}`) &&
			strings.Contains(req.UserPrompt, "Welcome back.") &&
			!strings.Contains(req.UserPrompt, "Interactive elements")
	})).Return(`Here you go: {"heading": "Welcome back."}`, nil).Once()

	out, err := newTestEngine(t, llm).Extract(context.Background(), page, schemas.ExtractOptions{
		Instruction:    "get the heading",
		Schema:         `{"heading":"string"}`,
		ModelName:      "claude-3-5-sonnet-latest",
		UseTextExtract: true,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"heading": "Welcome back."}, out)
	llm.AssertExpectations(t)
}

func TestEngine_Extract_IncludesElementsWithoutTextMode(t *testing.T) {
	llm := new(mockLLM)
	llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return strings.Contains(req.UserPrompt, "Interactive elements") && !strings.Contains(req.UserPrompt, "Output description")
	})).Return(`["Log in"]`, nil).Once()

	out, err := newTestEngine(t, llm).Extract(context.Background(), loginPage(), schemas.ExtractOptions{Instruction: "list buttons", ModelName: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"Log in"}, out)
}

func TestEngine_SnapshotBudget(t *testing.T) {
	page := &fakePage{snap: PageSnapshot{Text: "héllo wörld"}}
	for i := 0; i < 10; i++ {
		page.snap.Elements = append(page.snap.Elements, Element{Ref: i, Tag: "a"})
	}
	engine := NewEngine(new(mockLLM), config.AutomationConfig{MaxElements: 3, MaxPageChars: 4}, zap.NewNop())

	snap, err := engine.snapshot(context.Background(), page)
	require.NoError(t, err)
	assert.Len(t, snap.Elements, 3)
	assert.Equal(t, "héll", snap.Text)
}
