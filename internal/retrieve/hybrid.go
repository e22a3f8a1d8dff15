package retrieve

import (
	"context"
	"sort"

	"github.com/cognipipe/cognipipe/internal/fn"
	"github.com/cognipipe/cognipipe/internal/ports"
)

// RRFK is k in reciprocal rank fusion: fused(id) = sum(weight_i / (k +
// rank_i(id))).
const RRFK = 60

// lane is one retriever's fan-out result, tagged by name so the caller
// can attribute failures back to vector/graph/lexical.
type lane struct {
	name string
	hits []Hit
	err  error
}

// Weights are the per-retriever fusion weights, defaulting to 0.4/0.3/0.3
// and expected to sum to 1.
type Weights struct {
	Vector  float64
	Graph   float64
	Lexical float64
}

// DefaultWeights is the spec's default fusion weighting.
func DefaultWeights() Weights { return Weights{Vector: 0.4, Graph: 0.3, Lexical: 0.3} }

// HybridRetriever runs the vector, graph and lexical retrievers
// concurrently and fuses their rankings with reciprocal rank fusion,
// optionally reranking the top 3*topK fused hits with a cross-encoder.
type HybridRetriever struct {
	Vector   Retriever
	Graph    Retriever
	Lexical  Retriever
	Weights  Weights
	Reranker ports.Reranker // nil skips reranking silently
}

func (r HybridRetriever) weights() Weights {
	w := r.Weights
	if w.Vector == 0 && w.Graph == 0 && w.Lexical == 0 {
		return DefaultWeights()
	}
	return w
}

func (r HybridRetriever) Retrieve(ctx context.Context, tenantID, query string, topK int) ([]Hit, error) {
	results := fn.FanOut(
		func() lane { h, err := r.Vector.Retrieve(ctx, tenantID, query, topK); return lane{"vector", h, err} },
		func() lane { h, err := r.Graph.Retrieve(ctx, tenantID, query, topK); return lane{"graph", h, err} },
		func() lane { h, err := r.Lexical.Retrieve(ctx, tenantID, query, topK); return lane{"lexical", h, err} },
	)

	var vectorHits, graphHits, lexicalHits []Hit
	var graphDown, vectorDown bool
	for _, l := range results {
		switch l.name {
		case "vector":
			if l.err != nil {
				vectorDown = true
				continue
			}
			vectorHits = l.hits
		case "graph":
			if l.err != nil {
				graphDown = true
				continue
			}
			graphHits = l.hits
		case "lexical":
			lexicalHits = l.hits
		}
	}
	if vectorDown && graphDown {
		return nil, fanOutErr(results)
	}

	w := r.weights()
	fused := fuse(map[string][]Hit{
		"vector":  vectorHits,
		"graph":   graphHits,
		"lexical": lexicalHits,
	}, map[string]float64{
		"vector":  w.Vector,
		"graph":   w.Graph,
		"lexical": w.Lexical,
	})

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return sourceRank(fused[i].Source) < sourceRank(fused[j].Source)
	})

	if r.Reranker != nil && len(fused) > 0 {
		rerankN := 3 * topK
		if rerankN <= 0 || rerankN > len(fused) {
			rerankN = len(fused)
		}
		if reranked, err := r.rerank(ctx, query, fused[:rerankN]); err == nil {
			copy(fused[:rerankN], reranked)
			sort.SliceStable(fused[:rerankN], func(i, j int) bool { return fused[i].Score > fused[j].Score })
		}
		// Reranker failure is skipped silently: fused ordering stands.
	}

	if topK > 0 && len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

func (r HybridRetriever) rerank(ctx context.Context, query string, hits []Hit) ([]Hit, error) {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Content
	}
	scores, err := r.Reranker.Rerank(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	out := make([]Hit, len(hits))
	copy(out, hits)
	for i := range out {
		if i < len(scores) {
			out[i].Score = scores[i]
			out[i].Source = "hybrid"
		}
	}
	return out, nil
}

// fuse computes reciprocal rank fusion across each retriever's
// independently-ranked hit list, summing w_i/(k+rank_i) per ID across
// every lane the ID appears in, and keeps the highest-scoring lane's
// content/Source as representative text for the fused hit.
func fuse(lanes map[string][]Hit, weight map[string]float64) []Hit {
	type acc struct {
		score   float64
		content string
		source  string
		best    float64
	}
	byID := make(map[string]*acc)
	order := make([]string, 0)

	for laneName, hits := range lanes {
		w := weight[laneName]
		for rank, h := range hits {
			contrib := w / float64(RRFK+rank+1)
			a, ok := byID[h.ID]
			if !ok {
				a = &acc{}
				byID[h.ID] = a
				order = append(order, h.ID)
			}
			a.score += contrib
			if h.Score > a.best {
				a.best = h.Score
				a.content = h.Content
				a.source = h.Source
			}
		}
	}

	out := make([]Hit, 0, len(order))
	for _, id := range order {
		a := byID[id]
		out = append(out, Hit{ID: id, Content: a.content, Score: a.score, Source: a.source})
	}
	return out
}

func sourceRank(source string) int {
	switch source {
	case "vector":
		return 0
	case "graph":
		return 1
	case "lexical":
		return 2
	default:
		return 3
	}
}

func fanOutErr(results []lane) error {
	for _, r := range results {
		if r.err != nil {
			return r.err
		}
	}
	return nil
}
