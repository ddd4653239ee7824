// Package resolver maps client-supplied model identifiers to a provider
// tag and a provider-native model name.
package resolver

import (
	"strings"

	"modelgate/internal/core"
)

// Provider tags. These are the values the credential store scopes keys by.
const (
	ProviderGoogle     = "google"
	ProviderXAI        = "xai"
	ProviderGigaChat   = "gigachat"
	ProviderPerplexity = "perplexity"
)

// Resolution is the outcome of resolving a model identifier.
type Resolution struct {
	// Provider is the provider tag.
	Provider string
	// Model is the provider-native model name with any prefix stripped.
	Model string
	// Original is the identifier exactly as the client sent it; responses
	// echo this, never the stripped name.
	Original string
}

// prefixes maps known "<provider>/" prefixes to provider tags.
var prefixes = map[string]string{
	"google":     ProviderGoogle,
	"xai":        ProviderXAI,
	"x-ai":       ProviderXAI,
	"gigachat":   ProviderGigaChat,
	"perplexity": ProviderPerplexity,
}

// families maps model-family tokens to provider tags for unprefixed
// identifiers. Order matters only for readability; tokens are disjoint.
var families = []struct {
	token    string
	provider string
}{
	{"gemini", ProviderGoogle},
	{"grok", ProviderXAI},
	{"gigachat", ProviderGigaChat},
	{"giga", ProviderGigaChat},
	{"sonar", ProviderPerplexity},
	{"r1-1776", ProviderPerplexity},
}

// Resolve determines which provider serves the given model identifier.
// An explicit "<provider>/<model>" prefix wins; otherwise the provider
// is inferred from known model-family tokens. Unknown identifiers fail
// with the unmappable-model error; empty ones are invalid requests.
func Resolve(model string) (*Resolution, error) {
	if strings.TrimSpace(model) == "" {
		return nil, core.NewInvalidRequestError("model is required")
	}

	if prefix, rest, ok := strings.Cut(model, "/"); ok {
		if tag, known := prefixes[strings.ToLower(prefix)]; known {
			if rest == "" {
				return nil, core.NewInvalidRequestError("model name missing after provider prefix")
			}
			return &Resolution{Provider: tag, Model: rest, Original: model}, nil
		}
	}

	lower := strings.ToLower(model)
	for _, f := range families {
		if strings.Contains(lower, f.token) {
			return &Resolution{Provider: f.provider, Model: model, Original: model}, nil
		}
	}

	return nil, core.NewUnmappableModelError(model)
}
