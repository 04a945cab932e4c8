package llmclient

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-dispatch/internal/config"
)

// ProviderFor maps a model identifier to the provider that serves it.
func ProviderFor(model string) (config.LLMProvider, error) {
	switch {
	case strings.HasPrefix(model, "gpt-"), strings.HasPrefix(model, "o1-"):
		return config.ProviderOpenAI, nil
	case strings.HasPrefix(model, "claude-"):
		return config.ProviderAnthropic, nil
	case strings.HasPrefix(model, "gemini-"):
		return config.ProviderGemini, nil
	}
	return "", fmt.Errorf("no provider serves model %q", model)
}

// isReasoningModel reports whether model belongs to the o1 family, which
// rejects system messages and sampling parameters.
func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1-")
}
