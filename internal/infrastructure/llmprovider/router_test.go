package llmprovider

import (
	"errors"
	"net/http"
	"testing"

	"openresponses.ai/gateway/internal/domain/apierror"
)

func TestResolveURLPrefix(t *testing.T) {
	r := NewRouter("")
	target, err := r.Resolve("https://llm.internal:8000/v1@llama-3.1-8b", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.BaseURL != "https://llm.internal:8000/v1" {
		t.Fatalf("unexpected base url %q", target.BaseURL)
	}
	if target.SystemName != "UNKNOWN" {
		t.Fatalf("unexpected system name %q", target.SystemName)
	}
	if target.ModelName != "llama-3.1-8b" {
		t.Fatalf("unexpected model name %q", target.ModelName)
	}
}

func TestResolveKnownProviders(t *testing.T) {
	r := NewRouter("")
	cases := []struct {
		model      string
		wantSystem string
		wantModel  string
	}{
		{"openai@gpt-4o-mini", "openai", "gpt-4o-mini"},
		{"Groq@llama-3.3-70b", "groq", "llama-3.3-70b"},
		{"claude@claude-sonnet-4", "claude", "claude-sonnet-4"},
		{"deepseek@deepseek-chat", "deepseek", "deepseek-chat"},
		{"ollama@qwen3", "ollama", "qwen3"},
	}
	for _, tc := range cases {
		target, err := r.Resolve(tc.model, nil)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.model, err)
		}
		if target.SystemName != tc.wantSystem {
			t.Fatalf("%s: got system %q, want %q", tc.model, target.SystemName, tc.wantSystem)
		}
		if target.ModelName != tc.wantModel {
			t.Fatalf("%s: got model %q, want %q", tc.model, target.ModelName, tc.wantModel)
		}
		if target.BaseURL == "" {
			t.Fatalf("%s: empty base url", tc.model)
		}
	}
}

func TestResolveUnknownPrefixRejected(t *testing.T) {
	r := NewRouter("")
	_, err := r.Resolve("notaprovider@some-model", nil)
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierror.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveHeaderFallback(t *testing.T) {
	r := NewRouter("")
	headers := http.Header{}
	headers.Set(ProviderHeader, "groq")

	target, err := r.Resolve("llama-3.3-70b", headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.SystemName != "groq" {
		t.Fatalf("got system %q, want groq", target.SystemName)
	}
	if target.ModelName != "llama-3.3-70b" {
		t.Fatalf("unexpected model name %q", target.ModelName)
	}
}

func TestResolveUnknownHeaderRejected(t *testing.T) {
	r := NewRouter("")
	headers := http.Header{}
	headers.Set(ProviderHeader, "mystery")

	_, err := r.Resolve("some-model", headers)
	var apiErr *apierror.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apierror.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveDefault(t *testing.T) {
	r := NewRouter("http://localhost:1234/v1")
	target, err := r.Resolve("gpt-4o-mini", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.BaseURL != "http://localhost:1234/v1" {
		t.Fatalf("unexpected base url %q", target.BaseURL)
	}
	if target.ModelName != "gpt-4o-mini" {
		t.Fatalf("unexpected model name %q", target.ModelName)
	}
}

func TestResolveEmptyModel(t *testing.T) {
	r := NewRouter("")
	if _, err := r.Resolve("  ", nil); err == nil {
		t.Fatal("expected error for empty model")
	}
}
