package retrieve

import (
	"context"
	"testing"

	"github.com/cognipipe/cognipipe/internal/datapoint"
	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/ports"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int { return 3 }

type fakeVectorStore struct {
	hits []ports.SearchHit
}

func (f fakeVectorStore) EnsureCollection(context.Context, string, int) error         { return nil }
func (f fakeVectorStore) Upsert(context.Context, string, []domain.VectorRecord) error { return nil }
func (f fakeVectorStore) Search(context.Context, string, []float32, int, map[string]string) ([]ports.SearchHit, error) {
	return f.hits, nil
}
func (f fakeVectorStore) Delete(context.Context, string, []string) error { return nil }

type fakeGraphStore struct {
	nodes []datapoint.Node
	edges []datapoint.Edge
}

func (f fakeGraphStore) UpsertNodes(context.Context, string, []datapoint.Node) error { return nil }
func (f fakeGraphStore) UpsertEdges(context.Context, string, []datapoint.Edge) error { return nil }
func (f fakeGraphStore) Neighbors(context.Context, string, []string, int) ([]datapoint.Node, []datapoint.Edge, error) {
	return f.nodes, f.edges, nil
}
func (f fakeGraphStore) NodesByIDs(context.Context, string, []string) ([]datapoint.Node, error) {
	return f.nodes, nil
}

func TestVectorRetrieverReturnsScoredHits(t *testing.T) {
	store := fakeVectorStore{hits: []ports.SearchHit{
		{Record: domain.VectorRecord{RefID: "chunk-1", Content: "hello"}, Score: 0.9},
	}}
	r := VectorRetriever{Embedder: fakeEmbedder{}, Store: store, Collection: "chunks"}

	hits, err := r.Retrieve(context.Background(), "tenant-a", "hello world", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 || hits[0].Source != "vector" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestGraphRetrieverScoresTriplets(t *testing.T) {
	vstore := fakeVectorStore{hits: []ports.SearchHit{
		{Record: domain.VectorRecord{RefID: "e1"}, Score: 0.9},
	}}
	gstore := fakeGraphStore{
		nodes: []datapoint.Node{
			{ID: "e1", Label: "person", Properties: map[string]string{"name": "Jane"}},
			{ID: "e2", Label: "organization", Properties: map[string]string{"name": "Acme"}},
		},
		edges: []datapoint.Edge{
			{ID: "r1", From: "e1", To: "e2", Type: "works_for", Properties: map[string]string{"confidence": "0.8"}},
		},
	}
	r := GraphRetriever{Embedder: fakeEmbedder{}, VectorStore: vstore, GraphStore: gstore, EntityCollection: "entities"}

	hits, err := r.Retrieve(context.Background(), "tenant-a", "who works for acme", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 triplet hit, got %d", len(hits))
	}
	if hits[0].Content == "" {
		t.Fatalf("expected triplet text content")
	}
}

func TestLexicalRetrieverRanksByOverlap(t *testing.T) {
	r := LexicalRetriever{Documents: []LexicalDoc{
		{ID: "d1", Content: "the quick brown fox"},
		{ID: "d2", Content: "a completely unrelated sentence"},
	}}
	hits, err := r.Retrieve(context.Background(), "tenant-a", "quick fox", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) == 0 || hits[0].ID != "d1" {
		t.Fatalf("expected d1 ranked first, got %+v", hits)
	}
}

type stubRetriever struct {
	hits []Hit
	err  error
}

func (s stubRetriever) Retrieve(context.Context, string, string, int) ([]Hit, error) {
	return s.hits, s.err
}

func TestHybridRetrieverFusesRankings(t *testing.T) {
	h := HybridRetriever{
		Vector:  stubRetriever{hits: []Hit{{ID: "a", Score: 0.9, Source: "vector"}, {ID: "b", Score: 0.5, Source: "vector"}}},
		Graph:   stubRetriever{hits: []Hit{{ID: "b", Score: 0.8, Source: "graph"}}},
		Lexical: stubRetriever{hits: []Hit{{ID: "a", Score: 0.3, Source: "lexical"}}},
	}
	hits, err := h.Retrieve(context.Background(), "tenant-a", "query", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 fused hits, got %d", len(hits))
	}
}

func TestHybridRetrieverFailsOnlyWhenVectorAndGraphBothDown(t *testing.T) {
	h := HybridRetriever{
		Vector:  stubRetriever{err: domain.NewTransientBackendError("vectorstore", domain.ErrBackendDown, 0)},
		Graph:   stubRetriever{err: domain.NewTransientBackendError("graphstore", domain.ErrBackendDown, 0)},
		Lexical: stubRetriever{hits: []Hit{{ID: "a", Score: 0.3, Source: "lexical"}}},
	}
	if _, err := h.Retrieve(context.Background(), "tenant-a", "query", 2); err == nil {
		t.Fatalf("expected error when both vector and graph retrievers are down")
	}
}
