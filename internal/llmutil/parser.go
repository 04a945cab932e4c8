// Package llmutil recovers structured values from free-form model output.
package llmutil

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fencedBlockRegex captures the body of a markdown code fence, with or without a
// language tag. \x60 is a backtick.
var fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")

// ParseJSONResponse decodes a model response into T. It tolerates a markdown
// fence around the JSON and conversational text before or after it.
func ParseJSONResponse[T any](response string) (*T, error) {
	candidate := ExtractJSON(response)

	var result T
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncateString(candidate, 500))
	}
	return &result, nil
}

// ExtractJSON returns the substring of response most likely to be its JSON payload.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if m := fencedBlockRegex.FindStringSubmatch(response); len(m) > 1 {
		response = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	// Pick whichever bracket pair opens first in the prose.
	objStart, objEnd := strings.Index(response, "{"), strings.LastIndex(response, "}")
	arrStart, arrEnd := strings.Index(response, "["), strings.LastIndex(response, "]")
	objOK := objStart != -1 && objEnd > objStart
	arrOK := arrStart != -1 && arrEnd > arrStart

	switch {
	case objOK && (!arrOK || objStart < arrStart):
		return response[objStart : objEnd+1]
	case arrOK:
		return response[arrStart : arrEnd+1]
	}
	return response
}

// truncateString cuts s to maxLen bytes for inclusion in error messages.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
