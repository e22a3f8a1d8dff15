package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/ports"
)

type fakeLLM struct {
	kg        KnowledgeGraph
	failTimes int
	lastTemp  *float64
	calls     int
}

func (f *fakeLLM) Complete(ctx context.Context, systemPrompt, prompt string, opts ...ports.CompleteOption) (string, error) {
	return "", nil
}

func (f *fakeLLM) StructuredComplete(ctx context.Context, systemPrompt, prompt string, schema map[string]any, out any, opts ...ports.CompleteOption) error {
	f.calls++
	o := ports.CompleteOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	f.lastTemp = o.Temperature
	if f.calls <= f.failTimes {
		return domain.NewPermanentBackendError("openai", fmt.Errorf("schema decode failed"))
	}
	raw, err := json.Marshal(f.kg)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func TestExtractBuildsEntitiesAndRelations(t *testing.T) {
	llm := &fakeLLM{kg: KnowledgeGraph{
		Entities: []ExtractedEntity{
			{Name: "Ada Lovelace", Type: "person", Description: "mathematician"},
			{Name: "Analytical Engine", Type: "artifact"},
		},
		Relations: []ExtractedRelation{
			{From: "Ada Lovelace", To: "Analytical Engine", Type: "DESIGNED"},
		},
	}}
	ex := New(llm)
	chunk := domain.DocumentChunk{ID: "c1", Text: "Ada Lovelace designed the Analytical Engine."}

	entities, relations, err := ex.Extract(context.Background(), "tenant-a", chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(entities))
	}
	if len(relations) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(relations))
	}
	if relations[0].FromID != entities[0].ID || relations[0].ToID != entities[1].ID {
		t.Fatalf("relation endpoints must reference extracted entity IDs")
	}
}

func TestExtractDropsRelationsWithUnknownEndpoints(t *testing.T) {
	llm := &fakeLLM{kg: KnowledgeGraph{
		Entities: []ExtractedEntity{{Name: "Known", Type: "concept"}},
		Relations: []ExtractedRelation{
			{From: "Known", To: "Unknown", Type: "RELATED"},
		},
	}}
	ex := New(llm)
	chunk := domain.DocumentChunk{ID: "c2", Text: "..."}

	_, relations, err := ex.Extract(context.Background(), "tenant-a", chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(relations) != 0 {
		t.Fatalf("expected unresolved relation to be dropped, got %d", len(relations))
	}
}

func TestExtractRewritesUndeclaredType(t *testing.T) {
	llm := &fakeLLM{kg: KnowledgeGraph{
		Entities: []ExtractedEntity{{Name: "Gizmo", Type: "gadget"}},
	}}
	ex := New(llm)
	chunk := domain.DocumentChunk{ID: "c3", Text: "..."}

	entities, _, err := ex.Extract(context.Background(), "tenant-a", chunk)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 1 || entities[0].Type != OtherType {
		t.Fatalf("expected undeclared type rewritten to %q, got %+v", OtherType, entities)
	}
}

func TestExtractRunsAtTemperatureZero(t *testing.T) {
	llm := &fakeLLM{kg: KnowledgeGraph{Entities: []ExtractedEntity{{Name: "X", Type: "concept"}}}}
	ex := New(llm)
	_, _, err := ex.Extract(context.Background(), "tenant-a", domain.DocumentChunk{ID: "c4", Text: "..."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm.lastTemp == nil || *llm.lastTemp != 0 {
		t.Fatalf("expected extraction to run at temperature 0, got %v", llm.lastTemp)
	}
}

func TestExtractRetriesParseFailureThenSucceeds(t *testing.T) {
	llm := &fakeLLM{
		failTimes: 1,
		kg:        KnowledgeGraph{Entities: []ExtractedEntity{{Name: "X", Type: "concept"}}},
	}
	ex := New(llm)
	entities, _, err := ex.Extract(context.Background(), "tenant-a", domain.DocumentChunk{ID: "c5", Text: "..."})
	if err != nil {
		t.Fatalf("expected parse retry to succeed, got error: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity after retry, got %d", len(entities))
	}
	if llm.calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", llm.calls)
	}
}

func TestExtractFailsPermanentlyAfterMaxParseRetries(t *testing.T) {
	llm := &fakeLLM{failTimes: 100}
	ex := New(llm, WithMaxParseRetries(2))
	_, _, err := ex.Extract(context.Background(), "tenant-a", domain.DocumentChunk{ID: "c6", Text: "..."})
	if err == nil {
		t.Fatal("expected permanent failure after exhausting parse retries")
	}
	if llm.calls != 3 {
		t.Fatalf("expected 1 initial + 2 retries = 3 calls, got %d", llm.calls)
	}
}
