package resolver

import (
	"errors"
	"testing"

	"modelgate/internal/core"
)

func TestResolvePrefixed(t *testing.T) {
	tests := []struct {
		model        string
		wantProvider string
		wantModel    string
	}{
		{"google/gemini-2.5-pro", ProviderGoogle, "gemini-2.5-pro"},
		{"xai/grok-4", ProviderXAI, "grok-4"},
		{"x-ai/grok-3-mini", ProviderXAI, "grok-3-mini"},
		{"gigachat/GigaChat-2-Max", ProviderGigaChat, "GigaChat-2-Max"},
		{"perplexity/sonar-pro", ProviderPerplexity, "sonar-pro"},
		{"GOOGLE/gemini-2.0-flash", ProviderGoogle, "gemini-2.0-flash"},
	}

	for _, tt := range tests {
		res, err := Resolve(tt.model)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", tt.model, err)
			continue
		}
		if res.Provider != tt.wantProvider {
			t.Errorf("Resolve(%q).Provider = %q, want %q", tt.model, res.Provider, tt.wantProvider)
		}
		if res.Model != tt.wantModel {
			t.Errorf("Resolve(%q).Model = %q, want %q", tt.model, res.Model, tt.wantModel)
		}
		if res.Original != tt.model {
			t.Errorf("Resolve(%q).Original = %q, want the input", tt.model, res.Original)
		}
	}
}

func TestResolveFamilyInference(t *testing.T) {
	tests := []struct {
		model        string
		wantProvider string
	}{
		{"gemini-2.5-flash", ProviderGoogle},
		{"grok-4-latest", ProviderXAI},
		{"GigaChat-2", ProviderGigaChat},
		{"giga-lite", ProviderGigaChat},
		{"sonar-reasoning", ProviderPerplexity},
		{"r1-1776", ProviderPerplexity},
	}

	for _, tt := range tests {
		res, err := Resolve(tt.model)
		if err != nil {
			t.Errorf("Resolve(%q) error = %v", tt.model, err)
			continue
		}
		if res.Provider != tt.wantProvider {
			t.Errorf("Resolve(%q).Provider = %q, want %q", tt.model, res.Provider, tt.wantProvider)
		}
		// No prefix to strip: the native name is the input itself.
		if res.Model != tt.model {
			t.Errorf("Resolve(%q).Model = %q, want the input", tt.model, res.Model)
		}
	}
}

func TestResolveUnknownModel(t *testing.T) {
	_, err := Resolve("gpt-4o")
	var ge *core.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if ge.Kind != core.KindUnmappableModel {
		t.Errorf("Kind = %v, want %v", ge.Kind, core.KindUnmappableModel)
	}
}

func TestResolveInvalid(t *testing.T) {
	for _, model := range []string{"", "   ", "google/"} {
		_, err := Resolve(model)
		var ge *core.GatewayError
		if !errors.As(err, &ge) {
			t.Fatalf("Resolve(%q): expected GatewayError, got %v", model, err)
		}
		if ge.Kind != core.KindInvalidRequest {
			t.Errorf("Resolve(%q).Kind = %v, want %v", model, ge.Kind, core.KindInvalidRequest)
		}
	}
}

func TestResolveUnknownPrefixFallsBackToInference(t *testing.T) {
	// An unrecognized prefix is not an error when a family token matches.
	res, err := Resolve("custom/gemini-tuned")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Provider != ProviderGoogle {
		t.Errorf("Provider = %q, want %q", res.Provider, ProviderGoogle)
	}
	if res.Model != "custom/gemini-tuned" {
		t.Errorf("Model = %q, want the full input", res.Model)
	}
}
