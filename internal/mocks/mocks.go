// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
)

// -- Session Mocks --

// MockSession mocks schemas.AutomationSession.
type MockSession struct {
	mock.Mock
}

var _ schemas.AutomationSession = (*MockSession)(nil)

// NewMockSession returns a session whose ID is id and whose Close succeeds.
func NewMockSession(id string) *MockSession {
	m := new(MockSession)
	m.On("ID").Return(id).Maybe()
	m.On("Close", mock.Anything).Return(nil).Maybe()
	return m
}

func (m *MockSession) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockSession) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockSession) Act(ctx context.Context, opts schemas.ActOptions) (*schemas.ActResult, error) {
	args := m.Called(ctx, opts)
	var res *schemas.ActResult
	if r := args.Get(0); r != nil {
		res = r.(*schemas.ActResult)
	}
	return res, args.Error(1)
}

func (m *MockSession) Extract(ctx context.Context, opts schemas.ExtractOptions) (interface{}, error) {
	args := m.Called(ctx, opts)
	return args.Get(0), args.Error(1)
}

func (m *MockSession) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockSessionBootstrapper mocks schemas.SessionBootstrapper.
type MockSessionBootstrapper struct {
	mock.Mock
}

var _ schemas.SessionBootstrapper = (*MockSessionBootstrapper)(nil)

func (m *MockSessionBootstrapper) Init(ctx context.Context, opts schemas.SessionOptions) (schemas.AutomationSession, error) {
	args := m.Called(ctx, opts)
	var s schemas.AutomationSession
	if v := args.Get(0); v != nil {
		s = v.(schemas.AutomationSession)
	}
	return s, args.Error(1)
}

// -- LLM Mock --

// MockLLMClient mocks schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Progress Recorder --

// ProgressRecorder collects progress messages in order. It is safe for concurrent use.
type ProgressRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (p *ProgressRecorder) Progress(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
}

// Messages returns a copy of the recorded messages.
func (p *ProgressRecorder) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.messages...)
}
