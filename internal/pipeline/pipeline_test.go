package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cognipipe/cognipipe/internal/chunk"
	"github.com/cognipipe/cognipipe/internal/datapoint"
	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/eventbus"
	"github.com/cognipipe/cognipipe/internal/extract"
	"github.com/cognipipe/cognipipe/internal/ports"
	"github.com/cognipipe/cognipipe/internal/write"
)

type fakeLoader struct{}

func (fakeLoader) Load(_ context.Context, _ string, raw []byte) (string, map[string]string, error) {
	return string(raw), nil, nil
}

type fakeLLM struct{}

func (fakeLLM) Complete(_ context.Context, _, _ string, _ ...ports.CompleteOption) (string, error) {
	return "", nil
}

func (fakeLLM) StructuredComplete(_ context.Context, _, _ string, _ map[string]any, out any, _ ...ports.CompleteOption) error {
	kg := extract.KnowledgeGraph{
		Entities: []extract.ExtractedEntity{
			{Name: "Acme Corp", Type: "organization", Description: "a company"},
			{Name: "Jane Doe", Type: "person", Description: "an engineer"},
		},
		Relations: []extract.ExtractedRelation{
			{From: "Jane Doe", To: "Acme Corp", Type: "works_for"},
		},
	}
	data, err := json.Marshal(kg)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

type fakeRelStore struct {
	runs    map[string]domain.PipelineRun
	aliases []domain.AliasOf
}

func newFakeRelStore() *fakeRelStore { return &fakeRelStore{runs: make(map[string]domain.PipelineRun)} }

func (s *fakeRelStore) CreateDataset(context.Context, domain.Dataset) error { return nil }
func (s *fakeRelStore) GetDataset(context.Context, string, string) (domain.Dataset, error) {
	return domain.Dataset{}, nil
}
func (s *fakeRelStore) UpsertData(context.Context, domain.Data) error { return nil }
func (s *fakeRelStore) GetData(context.Context, string, string) (domain.Data, error) {
	return domain.Data{}, nil
}
func (s *fakeRelStore) SaveRun(_ context.Context, run domain.PipelineRun) error {
	s.runs[run.ID] = run
	return nil
}
func (s *fakeRelStore) GetRun(_ context.Context, _, id string) (domain.PipelineRun, error) {
	return s.runs[id], nil
}
func (s *fakeRelStore) SaveAlias(_ context.Context, a domain.AliasOf) error {
	s.aliases = append(s.aliases, a)
	return nil
}
func (s *fakeRelStore) ResolveAlias(context.Context, string, string) (string, error) { return "", nil }

type fakeGraphStore struct {
	nodes []datapoint.Node
	edges []datapoint.Edge
}

func (g *fakeGraphStore) UpsertNodes(_ context.Context, _ string, nodes []datapoint.Node) error {
	g.nodes = append(g.nodes, nodes...)
	return nil
}
func (g *fakeGraphStore) UpsertEdges(_ context.Context, _ string, edges []datapoint.Edge) error {
	g.edges = append(g.edges, edges...)
	return nil
}
func (g *fakeGraphStore) Neighbors(context.Context, string, []string, int) ([]datapoint.Node, []datapoint.Edge, error) {
	return nil, nil, nil
}
func (g *fakeGraphStore) NodesByIDs(context.Context, string, []string) ([]datapoint.Node, error) {
	return nil, nil
}

type fakeVectorStore struct {
	upserted []domain.VectorRecord
}

func (v *fakeVectorStore) EnsureCollection(context.Context, string, int) error { return nil }
func (v *fakeVectorStore) Upsert(_ context.Context, _ string, records []domain.VectorRecord) error {
	v.upserted = append(v.upserted, records...)
	return nil
}
func (v *fakeVectorStore) Search(context.Context, string, []float32, int, map[string]string) ([]ports.SearchHit, error) {
	return nil, nil
}
func (v *fakeVectorStore) Delete(context.Context, string, []string) error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int { return 3 }

type wordCounter struct{}

func (wordCounter) Count(s string) int { return len(s)/4 + 1 }

func TestRunCognifyCompletesAndWritesGraph(t *testing.T) {
	relStore := newFakeRelStore()
	graphStore := &fakeGraphStore{}
	vectorStore := &fakeVectorStore{}
	embedder := fakeEmbedder{}

	writer := write.New(graphStore, vectorStore, embedder, write.Options{EmbedBatch: 8})

	eng := New(Deps{
		RelStore:  relStore,
		Loader:    fakeLoader{},
		Extractor: extract.New(fakeLLM{}),
		Embedder:  embedder,
		Writer:    writer,
		Events:    eventbus.NewRegistry(nil, nil),
		ChunkOpts: chunk.Options{ChunkSize: 512, Overlap: 0, Tokenizer: wordCounter{}},
	})

	docs := []RawDoc{{Data: domain.Data{ID: "doc-1", Source: "doc-1.txt"}, Raw: []byte("Jane Doe works at Acme Corp. She is an engineer.")}}

	run, err := eng.RunCognify(context.Background(), "", "tenant-a", "dataset-1", docs, "chunks", "entities")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s (warnings=%v)", run.Status, run.Warnings)
	}
	if len(graphStore.nodes) == 0 {
		t.Fatalf("expected graph nodes to be written")
	}
	if len(vectorStore.upserted) == 0 {
		t.Fatalf("expected vector records to be written")
	}
}
