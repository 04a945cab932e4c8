package schemas

import (
	"bytes"
	"encoding/json"
	"time"
)

// -- Dispatch Request Schemas --

// Mode selects how a command is interpreted against the current page.
type Mode string

const (
	// ModeActions treats the command as an imperative browser action.
	ModeActions Mode = "actions"
	// ModeOutput treats the command as a structured extraction instruction.
	ModeOutput Mode = "output"
)

// Valid reports whether the mode is one of the two defined literals.
func (m Mode) Valid() bool {
	return m == ModeActions || m == ModeOutput
}

// DefaultModel is used when a request omits model_name.
const DefaultModel = "gpt-4o"

// SupportedModels is the canonical set of accepted model_name values.
var SupportedModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4o-2024-08-06",
	"claude-3-5-sonnet-latest",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-sonnet-20240620",
	"o1-mini",
	"o1-preview",
	"gemini-2.5-flash",
	"gemini-2.5-pro",
}

// IsSupportedModel reports whether name is in SupportedModels.
func IsSupportedModel(name string) bool {
	for _, m := range SupportedModels {
		if m == name {
			return true
		}
	}
	return false
}

// Request is a validated /test request body.
type Request struct {
	Command   string `json:"command"`
	StartURL  string `json:"start_url"`
	CDPURL    string `json:"cdp_url"`
	// OutputSchema is a free-form hint: a JSON object, a JSON string, or absent.
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
	Mode         Mode            `json:"mode"`
	ModelName    string          `json:"model_name"`
}

// SchemaHint renders OutputSchema as the string handed to the extraction call.
// String hints pass through unquoted, objects are compacted, and an absent or null
// hint yields "".
func (r Request) SchemaHint() string {
	raw := bytes.TrimSpace(r.OutputSchema)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// -- Execution Result Schemas --

// AnswerType is the type tag carried by every successful terminal event.
const AnswerType = "answer"

// ExecutionResult is the transport wrapper around an action outcome or extracted value.
// Message is opaque to the transport layer.
type ExecutionResult struct {
	Type    string      `json:"type"`
	Message interface{} `json:"message"`
}

// NewAnswer wraps a dispatcher result for transport.
func NewAnswer(message interface{}) ExecutionResult {
	return ExecutionResult{Type: AnswerType, Message: message}
}

// ActResult is what an imperative action reports back.
type ActResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// -- Stream Event Schemas --

// ProgressEvent announces a lifecycle step on the event stream.
type ProgressEvent struct {
	Message string `json:"message"`
}

// ErrorDetail carries the caller-facing error message.
type ErrorDetail struct {
	Message string `json:"message"`
}

// ErrorEvent is the failing terminal event of a stream.
type ErrorEvent struct {
	Message string      `json:"message"`
	Error   ErrorDetail `json:"error"`
}

// NewErrorEvent builds the terminal error event for a caller-safe message.
func NewErrorEvent(msg string) ErrorEvent {
	return ErrorEvent{Message: "Error", Error: ErrorDetail{Message: msg}}
}

// -- Session Schemas --

// SessionOverrides are per-session adjustments of the browser configuration.
type SessionOverrides struct {
	DebugDOM          *bool
	NavigationTimeout time.Duration
	PostLoadWait      time.Duration
}

// ActOptions parameterizes an imperative action.
type ActOptions struct {
	Action    string
	ModelName string
}

// ExtractOptions parameterizes a structured extraction.
type ExtractOptions struct {
	Instruction    string
	Schema         string
	ModelName      string
	UseTextExtract bool
}

// -- HTTP Envelope Schemas --

// Status values of the JSON envelopes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// TimestampLayout renders envelope timestamps as ISO-8601 UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// StatusResponse is the JSON envelope of /init, /health and every non-stream error.
type StatusResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Message   string `json:"message,omitempty"`
}

// NewStatusOK stamps a success envelope with t.
func NewStatusOK(t time.Time) StatusResponse {
	return StatusResponse{Status: StatusOK, Timestamp: t.UTC().Format(TimestampLayout)}
}

// NewStatusError builds an error envelope carrying the caller-safe message for err.
func NewStatusError(err error) StatusResponse {
	return StatusResponse{Status: StatusError, Message: PublicMessage(err)}
}

// VersionResponse is the body of /version.
type VersionResponse struct {
	Version string `json:"version"`
}
