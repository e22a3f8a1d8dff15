// Package ports declares the external interfaces the cognify pipeline and
// retrieval engine consume: storage, LLM, embedder, and document loader.
// Every adapter under internal/store and internal/provider implements one
// of these; the pipeline, resolver, writer and retrievers depend only on
// the interfaces, never on a concrete driver.
package ports

import (
	"context"

	"github.com/cognipipe/cognipipe/internal/datapoint"
	"github.com/cognipipe/cognipipe/internal/domain"
)

// RelationalStore persists Dataset/Data/PipelineRun/AliasOf records.
type RelationalStore interface {
	CreateDataset(ctx context.Context, d domain.Dataset) error
	GetDataset(ctx context.Context, tenantID, id string) (domain.Dataset, error)

	UpsertData(ctx context.Context, d domain.Data) error
	GetData(ctx context.Context, tenantID, id string) (domain.Data, error)

	SaveRun(ctx context.Context, run domain.PipelineRun) error
	GetRun(ctx context.Context, tenantID, id string) (domain.PipelineRun, error)

	SaveAlias(ctx context.Context, a domain.AliasOf) error
	ResolveAlias(ctx context.Context, tenantID, id string) (string, error)
}

// GraphStore persists the property graph projected by GraphProjectable
// values and supports bounded traversal for graph retrieval.
type GraphStore interface {
	UpsertNodes(ctx context.Context, tenantID string, nodes []datapoint.Node) error
	UpsertEdges(ctx context.Context, tenantID string, edges []datapoint.Edge) error

	// Neighbors returns nodes reachable from seed within depth hops, along
	// with the edges traversed.
	Neighbors(ctx context.Context, tenantID string, seeds []string, depth int) ([]datapoint.Node, []datapoint.Edge, error)

	// NodesByIDs fetches nodes by ID, used to hydrate retrieval results.
	NodesByIDs(ctx context.Context, tenantID string, ids []string) ([]datapoint.Node, error)
}

// VectorStore persists and searches embedded VectorRecords.
type VectorStore interface {
	EnsureCollection(ctx context.Context, collection string, dims int) error
	Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error
	Search(ctx context.Context, collection string, embedding []float32, topK int, filter map[string]string) ([]SearchHit, error)
	Delete(ctx context.Context, collection string, ids []string) error
}

// SearchHit is one VectorStore search result.
type SearchHit struct {
	Record domain.VectorRecord
	Score  float64
}

// CompleteOptions carries per-call sampling parameters for LLM.Complete.
// Temperature is a pointer so "unset" (use the provider's default) is
// distinguishable from an explicit temperature of 0 (deterministic).
type CompleteOptions struct {
	Temperature *float64
}

// CompleteOption mutates CompleteOptions; new call-site knobs are added
// here rather than growing Complete's positional parameter list.
type CompleteOption func(*CompleteOptions)

// WithTemperature overrides the completion's sampling temperature,
// including an explicit 0 for deterministic output.
func WithTemperature(t float64) CompleteOption {
	return func(o *CompleteOptions) { o.Temperature = &t }
}

// LLM is a chat-completion provider able to return structured output
// validated against a JSON schema.
type LLM interface {
	// Complete returns a free-form completion for prompt.
	Complete(ctx context.Context, systemPrompt, prompt string, opts ...CompleteOption) (string, error)
	// StructuredComplete returns a completion constrained to match schema,
	// unmarshalled into out (a pointer). Callers that need deterministic
	// extraction pass WithTemperature(0).
	StructuredComplete(ctx context.Context, systemPrompt, prompt string, schema map[string]any, out any, opts ...CompleteOption) error
}

// Reranker scores (query, candidate) pairs with a cross-encoder model.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string) ([]float64, error)
}

// Embedder turns text into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Loader extracts plain text (plus any structural metadata) from a raw
// document so it can be chunked. Richer format loaders (PDF, HTML, OCR,
// audio) are named by the port but not implemented here — out of scope.
type Loader interface {
	Load(ctx context.Context, source string, raw []byte) (text string, metadata map[string]string, err error)
}
