// Package validation turns raw request bodies into typed dispatch requests.
// It has no side effects: a failed parse never reaches the browser layer.
package validation

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-dispatch/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fieldSet accumulates offending fields so a caller sees every problem at once.
type fieldSet struct {
	errs []schemas.FieldError
}

func (f *fieldSet) add(field, format string, args ...interface{}) {
	f.errs = append(f.errs, schemas.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (f *fieldSet) err() error {
	if len(f.errs) == 0 {
		return nil
	}
	sort.SliceStable(f.errs, func(i, j int) bool { return f.errs[i].Field < f.errs[j].Field })
	return &schemas.ValidationError{Fields: f.errs}
}

// ParseRequest validates a /test body. All offending fields are reported in a
// single *schemas.ValidationError, sorted by field name.
func ParseRequest(body []byte) (schemas.Request, error) {
	return ParseRequestWithDefault(body, schemas.DefaultModel)
}

// ParseRequestWithDefault is ParseRequest with defaultModel bound when the
// body omits model_name or sets it to null.
func ParseRequestWithDefault(body []byte, defaultModel string) (schemas.Request, error) {
	var req schemas.Request
	obj, err := decodeObject(body)
	if err != nil {
		return req, err
	}

	var fs fieldSet
	req.Command = parseCommand(obj, &fs)
	req.StartURL = parseURL(obj, "start_url", &fs)
	req.CDPURL = parseURL(obj, "cdp_url", &fs)
	req.OutputSchema = []byte(parseOutputSchema(obj, &fs))
	req.Mode = parseMode(obj, &fs)
	req.ModelName = parseModelName(obj, defaultModel, &fs)

	if err := fs.err(); err != nil {
		return schemas.Request{}, err
	}
	return req, nil
}

// ParseInitRequest validates an /init body. Only cdp_url is inspected.
func ParseInitRequest(body []byte) (string, error) {
	obj, err := decodeObject(body)
	if err != nil {
		return "", err
	}
	var fs fieldSet
	cdpURL := parseURL(obj, "cdp_url", &fs)
	if err := fs.err(); err != nil {
		return "", err
	}
	return cdpURL, nil
}

func decodeObject(body []byte) (map[string]jsoniter.RawMessage, error) {
	if kindOf(body) != kindObject {
		return nil, &schemas.ValidationError{Fields: []schemas.FieldError{
			{Field: "body", Message: "must be a JSON object"},
		}}
	}
	var obj map[string]jsoniter.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, &schemas.ValidationError{Fields: []schemas.FieldError{
			{Field: "body", Message: "malformed JSON: " + err.Error()},
		}}
	}
	return obj, nil
}

func parseCommand(obj map[string]jsoniter.RawMessage, fs *fieldSet) string {
	s, ok := stringField(obj, "command", fs)
	if !ok {
		return ""
	}
	if strings.TrimSpace(s) == "" {
		fs.add("command", "must not be empty")
		return ""
	}
	return s
}

func parseURL(obj map[string]jsoniter.RawMessage, field string, fs *fieldSet) string {
	s, ok := stringField(obj, field, fs)
	if !ok {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		fs.add(field, "must be a valid URL")
		return ""
	}
	return s
}

func parseOutputSchema(obj map[string]jsoniter.RawMessage, fs *fieldSet) jsoniter.RawMessage {
	raw, present := obj["output_schema"]
	if !present {
		return nil
	}
	switch kindOf(raw) {
	case kindNull:
		return nil
	case kindObject, kindString:
		return raw
	default:
		fs.add("output_schema", "must be an object, a string, or null")
		return nil
	}
}

func parseMode(obj map[string]jsoniter.RawMessage, fs *fieldSet) schemas.Mode {
	s, ok := stringField(obj, "mode", fs)
	if !ok {
		return ""
	}
	m := schemas.Mode(s)
	if !m.Valid() {
		fs.add("mode", "must be one of %s, %s", schemas.ModeActions, schemas.ModeOutput)
		return ""
	}
	return m
}

func parseModelName(obj map[string]jsoniter.RawMessage, defaultModel string, fs *fieldSet) string {
	raw, present := obj["model_name"]
	if !present || kindOf(raw) == kindNull {
		return defaultModel
	}
	s, ok := stringField(obj, "model_name", fs)
	if !ok {
		return ""
	}
	if !schemas.IsSupportedModel(s) {
		fs.add("model_name", "must be one of %s", strings.Join(schemas.SupportedModels, ", "))
		return ""
	}
	return s
}

// stringField reads a required string field, recording a field error when it
// is missing or of another JSON type.
func stringField(obj map[string]jsoniter.RawMessage, field string, fs *fieldSet) (string, bool) {
	raw, present := obj[field]
	if !present || kindOf(raw) == kindNull {
		fs.add(field, "is required")
		return "", false
	}
	if kindOf(raw) != kindString {
		fs.add(field, "must be a string")
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		fs.add(field, "must be a string")
		return "", false
	}
	return s, true
}

type jsonKind int

const (
	kindInvalid jsonKind = iota
	kindNull
	kindObject
	kindString
	kindOther
)

func kindOf(raw []byte) jsonKind {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return kindInvalid
	}
	switch raw[0] {
	case '{':
		return kindObject
	case '"':
		return kindString
	case 'n':
		if bytes.Equal(raw, []byte("null")) {
			return kindNull
		}
		return kindInvalid
	default:
		return kindOther
	}
}
