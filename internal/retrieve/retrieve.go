// Package retrieve implements the three base retrievers (vector, graph,
// lexical) and the hybrid retriever that fuses their rankings with
// reciprocal rank fusion, optionally reranked by a cross-encoder.
package retrieve

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cognipipe/cognipipe/internal/datapoint"
	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/ports"
)

// Hit is one scored retrieval result, regardless of which retriever
// produced it.
type Hit struct {
	ID      string
	Content string
	Score   float64
	Source  string // "vector" | "graph" | "lexical" | "hybrid"
}

// Retriever returns topK scored hits for a query.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID, query string, topK int) ([]Hit, error)
}

// VectorRetriever embeds the query and returns the topK nearest
// VectorStore records by cosine similarity.
type VectorRetriever struct {
	Embedder   ports.Embedder
	Store      ports.VectorStore
	Collection string
}

func (r VectorRetriever) Retrieve(ctx context.Context, tenantID, query string, topK int) ([]Hit, error) {
	vecs, err := r.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, domain.NewTransientBackendError("embedder", err, 0)
	}
	hits, err := r.Store.Search(ctx, r.Collection, vecs[0], topK, map[string]string{"tenant_id": tenantID})
	if err != nil {
		return nil, domain.NewTransientBackendError("vectorstore", err, 0)
	}
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{ID: h.Record.RefID, Content: h.Record.Content, Score: h.Score, Source: "vector"}
	}
	return out, nil
}

const (
	// DefaultGraphDepth bounds the breadth-first traversal from seed
	// entities.
	DefaultGraphDepth = 2
	// DefaultMaxFrontier caps how many seed entities the traversal starts
	// from. The traversal itself is one GraphStore.Neighbors call and has
	// no per-depth cap on the nodes it visits.
	DefaultMaxFrontier = 50
	// DefaultSimilarityThreshold is the minimum seed-entity similarity
	// used to decide which vector hits become BFS seeds.
	DefaultSimilarityThreshold = 0.7
)

// GraphRetriever embeds the query, searches max(10*topK, 50) entity
// candidates, keeps those scoring at least the similarity threshold as
// seeds (at most MaxFrontier of them), walks the graph outward from them
// up to DefaultGraphDepth hops, and scores the traversed (subject,
// relation, object) triplets. The number of nodes reached per hop is not
// capped.
type GraphRetriever struct {
	Embedder            ports.Embedder
	VectorStore         ports.VectorStore
	GraphStore          ports.GraphStore
	EntityCollection    string
	Depth               int
	MaxFrontier         int
	SimilarityThreshold float64
	// WeightSimilarity, WeightConfidence, WeightQuality are w1, w2, w3 in
	// the triplet scoring formula: w1*max(subjScore,objScore) +
	// w2*edge.confidence + w3*qualityScore.
	WeightSimilarity float64
	WeightConfidence float64
	WeightQuality    float64
}

func (r GraphRetriever) options() (depth, frontier int, threshold, w1, w2, w3 float64) {
	depth = r.Depth
	if depth <= 0 {
		depth = DefaultGraphDepth
	}
	frontier = r.MaxFrontier
	if frontier <= 0 {
		frontier = DefaultMaxFrontier
	}
	threshold = r.SimilarityThreshold
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	w1, w2, w3 = r.WeightSimilarity, r.WeightConfidence, r.WeightQuality
	if w1 == 0 && w2 == 0 && w3 == 0 {
		w1, w2, w3 = 0.5, 0.3, 0.2
	}
	return
}

func (r GraphRetriever) Retrieve(ctx context.Context, tenantID, query string, topK int) ([]Hit, error) {
	depth, frontier, threshold, w1, w2, w3 := r.options()

	vecs, err := r.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, domain.NewTransientBackendError("embedder", err, 0)
	}

	seedK := topK * 10
	if seedK < 50 {
		seedK = 50
	}
	seedHits, err := r.VectorStore.Search(ctx, r.EntityCollection, vecs[0], seedK, map[string]string{"tenant_id": tenantID})
	if err != nil {
		return nil, domain.NewTransientBackendError("vectorstore", err, 0)
	}

	similarity := make(map[string]float64, len(seedHits))
	var seeds []string
	for _, h := range seedHits {
		if h.Score < threshold {
			continue
		}
		seeds = append(seeds, h.Record.RefID)
		if existing, ok := similarity[h.Record.RefID]; !ok || h.Score > existing {
			similarity[h.Record.RefID] = h.Score
		}
	}
	if len(seeds) == 0 {
		return nil, nil
	}
	if len(seeds) > frontier {
		seeds = seeds[:frontier]
	}

	nodes, edges, err := r.GraphStore.Neighbors(ctx, tenantID, seeds, depth)
	if err != nil {
		return nil, domain.NewTransientBackendError("graphstore", err, 0)
	}

	nodeByID := make(map[string]datapoint.Node, len(nodes))
	for _, n := range nodes {
		nodeByID[n.ID] = n
	}

	type triplet struct {
		edge  datapoint.Edge
		score float64
	}
	var triplets []triplet
	for _, e := range edges {
		subjScore := similarity[e.From]
		objScore := similarity[e.To]
		best := subjScore
		if objScore > best {
			best = objScore
		}
		confidence := numericProp(e.Properties, "confidence")
		quality := numericProp(e.Properties, "quality")
		score := w1*best + w2*confidence + w3*quality
		triplets = append(triplets, triplet{edge: e, score: score})
	}
	sort.Slice(triplets, func(i, j int) bool { return triplets[i].score > triplets[j].score })

	if topK > 0 && len(triplets) > topK {
		triplets = triplets[:topK]
	}

	out := make([]Hit, 0, len(triplets))
	for _, t := range triplets {
		from := nodeByID[t.edge.From]
		to := nodeByID[t.edge.To]
		content := tripletText(from, t.edge, to)
		out = append(out, Hit{ID: t.edge.ID, Content: content, Score: t.score, Source: "graph"})
	}
	return out, nil
}

func tripletText(from datapoint.Node, edge datapoint.Edge, to datapoint.Node) string {
	var b strings.Builder
	b.WriteString(propOr(from.Properties, "name", from.ID))
	b.WriteString(" -[")
	b.WriteString(edge.Type)
	b.WriteString("]-> ")
	b.WriteString(propOr(to.Properties, "name", to.ID))
	return b.String()
}

func propOr(props map[string]string, key, fallback string) string {
	if v, ok := props[key]; ok && v != "" {
		return v
	}
	return fallback
}

func numericProp(props map[string]string, key string) float64 {
	v, ok := props[key]
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

// LexicalRetriever scores chunks by BM25-style token overlap against an
// in-memory document set; it has no external store dependency, so the
// engine feeds it whatever chunk text the current dataset has produced.
type LexicalRetriever struct {
	Documents []LexicalDoc
	K1        float64
	B         float64
}

// LexicalDoc is one document (a chunk's text) indexed for lexical search.
type LexicalDoc struct {
	ID      string
	Content string
}

func (r LexicalRetriever) params() (k1, b float64) {
	k1, b = r.K1, r.B
	if k1 <= 0 {
		k1 = 1.2
	}
	if b <= 0 {
		b = 0.75
	}
	return
}

func (r LexicalRetriever) Retrieve(_ context.Context, _, query string, topK int) ([]Hit, error) {
	k1, b := r.params()
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 || len(r.Documents) == 0 {
		return nil, nil
	}

	docTerms := make([][]string, len(r.Documents))
	var totalLen float64
	df := make(map[string]int)
	for i, d := range r.Documents {
		terms := tokenize(d.Content)
		docTerms[i] = terms
		totalLen += float64(len(terms))
		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	avgLen := totalLen / float64(len(r.Documents))
	n := float64(len(r.Documents))

	scores := make([]Hit, 0, len(r.Documents))
	for i, d := range r.Documents {
		terms := docTerms[i]
		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		var score float64
		dl := float64(len(terms))
		for _, qt := range queryTerms {
			f := float64(freq[qt])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[qt])+0.5)/(float64(df[qt])+0.5))
			score += idf * (f * (k1 + 1)) / (f + k1*(1-b+b*dl/avgLen))
		}
		if score > 0 {
			scores = append(scores, Hit{ID: d.ID, Content: d.Content, Score: score, Source: "lexical"})
		}
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if topK > 0 && len(scores) > topK {
		scores = scores[:topK]
	}
	return scores, nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}
