package schemas_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
)

func TestRequest_SchemaHint(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		want   string
	}{
		{"absent", "", ""},
		{"null", "null", ""},
		{"string passes through", `"a list of product names"`, "a list of product names"},
		{"object is compacted", "{ \"title\": \"string\",\n \"price\": \"number\" }", `{"title":"string","price":"number"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := schemas.Request{OutputSchema: json.RawMessage(tt.schema)}
			assert.Equal(t, tt.want, req.SchemaHint())
		})
	}
}

func TestNewErrorEvent_Shape(t *testing.T) {
	data, err := json.Marshal(schemas.NewErrorEvent("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Error","error":{"message":"boom"}}`, string(data))
}

func TestNewAnswer_Shape(t *testing.T) {
	data, err := json.Marshal(schemas.NewAnswer(map[string]int{"count": 3}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"answer","message":{"count":3}}`, string(data))
}

func TestKindOf(t *testing.T) {
	validation := &schemas.ValidationError{Fields: []schemas.FieldError{{Field: "mode", Message: "required"}}}
	initErr := &schemas.InitError{CDPURL: "ws://localhost:9222", Err: errors.New("connection refused")}
	execErr := &schemas.ExecutionError{Step: "act", Err: context.Canceled}

	assert.Equal(t, schemas.KindValidation, schemas.KindOf(validation))
	assert.Equal(t, schemas.KindInit, schemas.KindOf(fmt.Errorf("wrapped: %w", initErr)))
	assert.Equal(t, schemas.KindExecution, schemas.KindOf(execErr))
	assert.Equal(t, schemas.KindInternal, schemas.KindOf(errors.New("nil pointer")))
	assert.ErrorIs(t, execErr, context.Canceled)
}

func TestPublicMessage_HidesInternalDetail(t *testing.T) {
	internal := &schemas.InternalError{Err: errors.New("db password is hunter2")}
	assert.Equal(t, schemas.GenericErrorMessage, schemas.PublicMessage(internal))
	assert.Equal(t, schemas.GenericErrorMessage, schemas.PublicMessage(errors.New("raw")))
	assert.Equal(t, "", schemas.PublicMessage(nil))

	validation := &schemas.ValidationError{Fields: []schemas.FieldError{
		{Field: "cdp_url", Message: "must be a valid URL"},
		{Field: "mode", Message: "must be one of actions, output"},
	}}
	assert.Equal(t, "invalid request: cdp_url: must be a valid URL; mode: must be one of actions, output", schemas.PublicMessage(validation))
}

func TestStatusEnvelopes(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 123456789, time.FixedZone("CET", 3600))
	data, err := json.Marshal(schemas.NewStatusOK(ts))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","timestamp":"2024-03-09T13:05:07.123Z"}`, string(data))

	data, err = json.Marshal(schemas.NewStatusError(errors.New("pq: password authentication failed")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","message":"`+schemas.GenericErrorMessage+`"}`, string(data))
}
