package llmprovider

import (
	"net/http"
	"strings"

	"openresponses.ai/gateway/internal/domain/apierror"
	"openresponses.ai/gateway/internal/domain/llm"
)

// ProviderHeader carries the fallback provider key for models without a prefix.
const ProviderHeader = "x-model-provider"

// providerURLs maps known provider keys to their OpenAI-compatible base URLs.
var providerURLs = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"anthropic":  "https://api.anthropic.com/v1",
	"claude":     "https://api.anthropic.com/v1",
	"togetherai": "https://api.together.xyz/v1",
	"gemini":     "https://generativelanguage.googleapis.com/v1beta/openai",
	"google":     "https://generativelanguage.googleapis.com/v1beta/openai",
	"deepseek":   "https://api.deepseek.com",
	"xai":        "https://api.x.ai/v1",
	"ollama":     "http://localhost:11434/v1",
	"mistral":    "https://api.mistral.ai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
}

// Router resolves provider@model strings to upstream targets.
type Router struct {
	defaultBaseURL string
}

// NewRouter creates a Router with the default upstream base URL used when
// neither a model prefix nor a provider header selects a provider.
func NewRouter(defaultBaseURL string) *Router {
	if defaultBaseURL == "" {
		defaultBaseURL = providerURLs["openai"]
	}
	return &Router{defaultBaseURL: defaultBaseURL}
}

// Resolve maps a model string plus request headers to an upstream target.
//
// Resolution order:
//  1. "<url>@<model>" routes to the literal URL with system name UNKNOWN.
//  2. "<key>@<model>" routes via the known provider table.
//  3. A bare model with a known x-model-provider header routes via that key.
//  4. A bare model without a header routes to the configured default.
func (r *Router) Resolve(model string, headers http.Header) (llm.Target, error) {
	if strings.TrimSpace(model) == "" {
		return llm.Target{}, apierror.Validation("model is required")
	}

	if prefix, name, ok := strings.Cut(model, "@"); ok {
		if strings.HasPrefix(prefix, "http://") || strings.HasPrefix(prefix, "https://") {
			return llm.Target{BaseURL: prefix, SystemName: "UNKNOWN", ModelName: name}, nil
		}
		key := strings.ToLower(prefix)
		if url, found := providerURLs[key]; found {
			return llm.Target{BaseURL: url, SystemName: key, ModelName: name}, nil
		}
		return llm.Target{}, apierror.Validation("unknown model provider %q", prefix)
	}

	if headers != nil {
		if header := strings.ToLower(strings.TrimSpace(headers.Get(ProviderHeader))); header != "" {
			if url, found := providerURLs[header]; found {
				return llm.Target{BaseURL: url, SystemName: header, ModelName: model}, nil
			}
			return llm.Target{}, apierror.Validation("unknown provider header %q", header)
		}
	}

	return llm.Target{BaseURL: r.defaultBaseURL, SystemName: "default", ModelName: model}, nil
}

// KnownProvider reports whether key is a known provider prefix.
func KnownProvider(key string) bool {
	_, ok := providerURLs[strings.ToLower(key)]
	return ok
}
