package resolve

import (
	"context"
	"testing"

	"github.com/cognipipe/cognipipe/internal/domain"
)

func TestResolveMergesExactDuplicates(t *testing.T) {
	cands := []Candidate{
		{Entity: domain.Entity{ID: "a", Name: "Acme Corp", Type: "organization", Confidence: 0.9}},
		{Entity: domain.Entity{ID: "b", Name: "acme corp", Type: "organization", Confidence: 0.8}},
	}
	res, err := Resolve(context.Background(), cands, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Canonical) != 1 {
		t.Fatalf("expected 1 canonical entity, got %d", len(res.Canonical))
	}
	if res.Canonical[0].ID != "a" {
		t.Fatalf("expected higher-confidence entity to be canonical, got %s", res.Canonical[0].ID)
	}
	if len(res.Aliases) != 1 || res.Aliases[0].FromID != "b" || res.Aliases[0].ToID != "a" {
		t.Fatalf("expected alias_of b->a, got %+v", res.Aliases)
	}
}

func TestResolveMergesAliasesAndSourceChunks(t *testing.T) {
	cands := []Candidate{
		{Entity: domain.Entity{ID: "a", Name: "Acme", Type: "organization", Confidence: 0.9, SourceChunk: "c1"}},
		{Entity: domain.Entity{ID: "b", Name: "ACME", Type: "organization", Confidence: 0.5, SourceChunk: "c2"}},
		{Entity: domain.Entity{ID: "c", Name: "Acme Corp.", Type: "organization", Confidence: 0.5, SourceChunk: "c2"}},
	}
	res, err := Resolve(context.Background(), cands, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Canonical) != 1 {
		t.Fatalf("expected 1 canonical entity, got %d", len(res.Canonical))
	}
	canonical := res.Canonical[0]
	if canonical.Name != "Acme" {
		t.Fatalf("expected Acme to be canonical, got %s", canonical.Name)
	}
	wantAliases := []string{"ACME", "Acme Corp."}
	if len(canonical.Aliases) != len(wantAliases) {
		t.Fatalf("expected aliases %v, got %v", wantAliases, canonical.Aliases)
	}
	for i, a := range wantAliases {
		if canonical.Aliases[i] != a {
			t.Fatalf("expected aliases %v, got %v", wantAliases, canonical.Aliases)
		}
	}
	if len(canonical.SourceChunks) != 2 {
		t.Fatalf("expected source_chunks size 2, got %d: %v", len(canonical.SourceChunks), canonical.SourceChunks)
	}
}

func TestResolveNeverMergesAcrossTypes(t *testing.T) {
	cands := []Candidate{
		{Entity: domain.Entity{ID: "a", Name: "Washington", Type: "person"}},
		{Entity: domain.Entity{ID: "b", Name: "Washington", Type: "location"}},
	}
	res, err := Resolve(context.Background(), cands, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Canonical) != 2 {
		t.Fatalf("expected types never merged, got %d canonical entities", len(res.Canonical))
	}
}

func TestResolveFuzzyMatchWithinThreshold(t *testing.T) {
	cands := []Candidate{
		{Entity: domain.Entity{ID: "a", Name: "Jonathan Smith", Type: "person", Confidence: 0.7}},
		{Entity: domain.Entity{ID: "b", Name: "Jonathon Smith", Type: "person", Confidence: 0.6}},
	}
	res, err := Resolve(context.Background(), cands, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Canonical) != 1 {
		t.Fatalf("expected fuzzy-matched names to merge, got %d", len(res.Canonical))
	}
}

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func TestResolveEmbeddingPassMergesAmbiguousBand(t *testing.T) {
	// "Bob" vs "Robert" land in the ambiguous fuzzy band; embeddings decide.
	cands := []Candidate{
		{Entity: domain.Entity{ID: "a", Name: "Bob Lee", Type: "person"}},
		{Entity: domain.Entity{ID: "b", Name: "Robert Lee", Type: "person"}},
	}
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"Bob Lee":    {1, 0, 0},
		"Robert Lee": {0.99, 0.01, 0},
	}}
	res, err := Resolve(context.Background(), cands, embedder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Canonical) != 1 {
		t.Fatalf("expected embedding pass to merge ambiguous pair, got %d canonical", len(res.Canonical))
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	if got := levenshteinSimilarity("kitten", "kitten"); got != 1 {
		t.Fatalf("expected identical strings to score 1, got %f", got)
	}
	if got := levenshteinSimilarity("kitten", "sitting"); got <= 0 || got >= 1 {
		t.Fatalf("expected partial similarity in (0,1), got %f", got)
	}
}
