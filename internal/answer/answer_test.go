package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/cognipipe/cognipipe/internal/ports"
	"github.com/cognipipe/cognipipe/internal/retrieve"
)

type fakeLLM struct {
	lastPrompt string
	lastTemp   float64
	calls      int
}

func (f *fakeLLM) Complete(_ context.Context, _, prompt string, opts ...ports.CompleteOption) (string, error) {
	f.calls++
	f.lastPrompt = prompt
	var o ports.CompleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.Temperature != nil {
		f.lastTemp = *o.Temperature
	}
	return "The answer is grounded in passage [1].", nil
}

func (f *fakeLLM) StructuredComplete(context.Context, string, string, map[string]any, any, ...ports.CompleteOption) error {
	return nil
}

func TestGenerateBuildsCitationsAndUsesTemperature(t *testing.T) {
	llm := &fakeLLM{}
	g := New(llm, func(_ context.Context, chunkID string) (string, int, bool) {
		return "docs/intro.md", 42, true
	})

	hits := []retrieve.Hit{{ID: "c1", Content: "some grounded fact", Score: 0.8, Source: "vector"}}
	ans, err := g.Generate(context.Background(), "what is it?", hits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ans.Citations) != 1 || ans.Citations[0].N != 1 {
		t.Fatalf("expected one citation numbered 1, got %+v", ans.Citations)
	}
	if !strings.Contains(llm.lastPrompt, "docs/intro.md:42") {
		t.Fatalf("expected prompt to carry file:line provenance, got %q", llm.lastPrompt)
	}
	if llm.lastTemp != DefaultTemperature {
		t.Fatalf("expected default temperature %v, got %v", DefaultTemperature, llm.lastTemp)
	}
}

func TestGenerateReturnsFallbackWithoutCallingLLMOnEmptyContext(t *testing.T) {
	llm := &fakeLLM{}
	g := New(llm, nil)

	ans, err := g.Generate(context.Background(), "what is it?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != emptyContextFallback {
		t.Fatalf("expected fallback text, got %q", ans.Text)
	}
	if llm.lastPrompt != "" {
		t.Fatalf("LLM must never be called on empty context")
	}
}
