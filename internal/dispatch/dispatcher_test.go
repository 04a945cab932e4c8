package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
	"github.com/xkilldash9x/scalpel-dispatch/internal/mocks"
)

type recordingObserver struct {
	modes []schemas.Mode
	errs  []error
}

func (o *recordingObserver) ObserveExecution(mode schemas.Mode, err error, seconds float64) {
	o.modes = append(o.modes, mode)
	o.errs = append(o.errs, err)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *observer.ObservedLogs, *recordingObserver) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	obs := &recordingObserver{}
	return New(zap.New(core), WithObserver(obs)), logs, obs
}

func actionsRequest() schemas.Request {
	return schemas.Request{
		Command:   "click the login button",
		StartURL:  "https://example.com",
		CDPURL:    "ws://localhost:9222",
		Mode:      schemas.ModeActions,
		ModelName: "gpt-4o",
	}
}

func TestExecute_ActionsMode(t *testing.T) {
	d, logs, obs := newTestDispatcher(t)
	session := mocks.NewMockSession("s-1")
	progress := &mocks.ProgressRecorder{}
	actResult := &schemas.ActResult{Success: true, Message: "Clicked", Action: "click the login button"}

	session.On("Navigate", mock.Anything, "https://example.com").Return(nil).Once()
	session.On("Act", mock.Anything, schemas.ActOptions{Action: "click the login button", ModelName: "gpt-4o"}).
		Return(actResult, nil).Once()

	result, err := d.Execute(context.Background(), session, actionsRequest(), progress)
	require.NoError(t, err)
	assert.Equal(t, schemas.NewAnswer(actResult), result)
	assert.Equal(t, []string{MsgNavigating, MsgExecuting}, progress.Messages())

	session.AssertExpectations(t)
	session.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	assert.Equal(t, 1, logs.FilterMessage("Command executed.").Len())
	assert.Equal(t, []schemas.Mode{schemas.ModeActions}, obs.modes)
	assert.Nil(t, obs.errs[0])
}

func TestExecute_OutputMode(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	session := mocks.NewMockSession("s-2")
	progress := &mocks.ProgressRecorder{}

	req := actionsRequest()
	req.Mode = schemas.ModeOutput
	req.Command = "list the product names"
	req.ModelName = "claude-3-5-sonnet-latest"
	req.OutputSchema = json.RawMessage(`{ "products": "string[]" }`)

	extracted := map[string]interface{}{"products": []interface{}{"a", "b"}}
	session.On("Navigate", mock.Anything, req.StartURL).Return(nil).Once()
	session.On("Extract", mock.Anything, schemas.ExtractOptions{
		Instruction:    "list the product names",
		Schema:         `{"products":"string[]"}`,
		ModelName:      "claude-3-5-sonnet-latest",
		UseTextExtract: true,
	}).Return(extracted, nil).Once()

	result, err := d.Execute(context.Background(), session, req, progress)
	require.NoError(t, err)
	assert.Equal(t, schemas.AnswerType, result.Type)
	assert.Equal(t, extracted, result.Message)
	assert.Equal(t, []string{MsgNavigating, MsgExecuting}, progress.Messages())

	session.AssertExpectations(t)
	session.AssertNotCalled(t, "Act", mock.Anything, mock.Anything)
}

func TestExecute_NavigationFailure(t *testing.T) {
	d, _, obs := newTestDispatcher(t)
	session := mocks.NewMockSession("s-3")
	progress := &mocks.ProgressRecorder{}
	session.On("Navigate", mock.Anything, mock.Anything).Return(errors.New("net::ERR_NAME_NOT_RESOLVED")).Once()

	_, err := d.Execute(context.Background(), session, actionsRequest(), progress)
	var execErr *schemas.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "navigate", execErr.Step)
	assert.EqualError(t, err, "navigate failed: net::ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, []string{MsgNavigating}, progress.Messages(), "no execution after a failed navigation")

	session.AssertNotCalled(t, "Act", mock.Anything, mock.Anything)
	session.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	assert.Equal(t, err, obs.errs[0])
}

func TestExecute_StepFailures(t *testing.T) {
	t.Run("act", func(t *testing.T) {
		d, _, _ := newTestDispatcher(t)
		session := mocks.NewMockSession("s-4")
		session.On("Navigate", mock.Anything, mock.Anything).Return(nil)
		session.On("Act", mock.Anything, mock.Anything).Return(nil, context.Canceled)

		_, err := d.Execute(context.Background(), session, actionsRequest(), &mocks.ProgressRecorder{})
		assert.Equal(t, schemas.KindExecution, schemas.KindOf(err))
		assert.ErrorIs(t, err, context.Canceled, "cancellation must stay visible through the wrapper")
	})

	t.Run("extract", func(t *testing.T) {
		d, _, _ := newTestDispatcher(t)
		session := mocks.NewMockSession("s-5")
		req := actionsRequest()
		req.Mode = schemas.ModeOutput
		session.On("Navigate", mock.Anything, mock.Anything).Return(nil)
		session.On("Extract", mock.Anything, mock.Anything).Return(nil, errors.New("failed to parse llm response"))

		_, err := d.Execute(context.Background(), session, req, &mocks.ProgressRecorder{})
		var execErr *schemas.ExecutionError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "extract", execErr.Step)
	})
}

func TestExecute_UnknownModeNeverTouchesSession(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	session := mocks.NewMockSession("s-6")
	req := actionsRequest()
	req.Mode = "both"

	_, err := d.Execute(context.Background(), session, req, ProgressFunc(func(string) {
		t.Fatal("no progress expected")
	}))
	require.Error(t, err)
	session.AssertNotCalled(t, "Navigate", mock.Anything, mock.Anything)
}
