// Package write implements the Graph/Vector Writer: it collects the
// nodes and edges projected from a batch of GraphProjectable values,
// deduplicates them, writes nodes then edges to the graph store in one
// pass, and indexes each node's IndexFields to the vector store in
// rate-limited batches.
package write

import (
	"context"
	"sort"
	"strconv"

	"github.com/cognipipe/cognipipe/internal/datapoint"
	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/ports"
	"github.com/cognipipe/cognipipe/internal/resilience"
)

// DefaultEmbedBatch is the number of index-field values embedded per
// batch write, each batch gated by the embedder's rate limiter.
const DefaultEmbedBatch = 32

// Writer persists a batch of GraphProjectable values idempotently.
type Writer struct {
	graph    ports.GraphStore
	vectors  ports.VectorStore
	embedder ports.Embedder
	limiter  *resilience.Limiter
	batch    int
}

// Options configures a Writer.
type Options struct {
	EmbedBatch int
	Limiter    *resilience.Limiter
}

func New(graph ports.GraphStore, vectors ports.VectorStore, embedder ports.Embedder, opts Options) *Writer {
	if opts.EmbedBatch <= 0 {
		opts.EmbedBatch = DefaultEmbedBatch
	}
	return &Writer{graph: graph, vectors: vectors, embedder: embedder, limiter: opts.Limiter, batch: opts.EmbedBatch}
}

// Write dedupes and persists values' graph projection, then embeds and
// upserts their IndexFields to collection.
func (w *Writer) Write(ctx context.Context, tenantID, collection string, values ...datapoint.GraphProjectable) error {
	nodes, edges := dedupeNodes(values), dedupeEdges(values)

	if err := w.graph.UpsertNodes(ctx, tenantID, nodes); err != nil {
		return domain.NewTransientBackendError("graphstore", err, 0)
	}
	if err := w.graph.UpsertEdges(ctx, tenantID, edges); err != nil {
		return domain.NewTransientBackendError("graphstore", err, 0)
	}

	records := w.buildVectorRecords(tenantID, values, nodes)
	return w.upsertInBatches(ctx, collection, records)
}

func dedupeNodes(values []datapoint.GraphProjectable) []datapoint.Node {
	byID := make(map[string]datapoint.Node)
	order := make([]string, 0)
	for _, v := range values {
		for _, n := range v.Nodes() {
			existing, ok := byID[n.ID]
			if !ok {
				order = append(order, n.ID)
				byID[n.ID] = n
				continue
			}
			byID[n.ID] = mergeNode(existing, n)
		}
	}
	out := make([]datapoint.Node, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// mergeNode keeps last-write-wins on scalar properties, union-merging the
// property keysets.
func mergeNode(a, b datapoint.Node) datapoint.Node {
	props := make(map[string]string, len(a.Properties)+len(b.Properties))
	for k, v := range a.Properties {
		props[k] = v
	}
	for k, v := range b.Properties {
		props[k] = v
	}
	b.Properties = props
	return b
}

type edgeKey struct {
	from, to, typ string
}

func dedupeEdges(values []datapoint.GraphProjectable) []datapoint.Edge {
	byKey := make(map[edgeKey]datapoint.Edge)
	order := make([]edgeKey, 0)
	for _, v := range values {
		for _, e := range v.Edges() {
			k := edgeKey{e.From, e.To, e.Type}
			existing, ok := byKey[k]
			if !ok {
				order = append(order, k)
				byKey[k] = e
				continue
			}
			byKey[k] = mergeEdge(existing, e)
		}
	}
	out := make([]datapoint.Edge, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out
}

// mergeEdge max-merges weight/confidence properties, keeping the rest
// from the most recent write.
func mergeEdge(a, b datapoint.Edge) datapoint.Edge {
	props := make(map[string]string, len(a.Properties)+len(b.Properties))
	for k, v := range a.Properties {
		props[k] = v
	}
	for k, v := range b.Properties {
		props[k] = v
	}
	for _, key := range []string{"weight", "confidence"} {
		if av, ok := a.Properties[key]; ok {
			if bv, ok := b.Properties[key]; ok {
				props[key] = maxNumericString(av, bv)
			}
		}
	}
	b.Properties = props
	return b
}

func maxNumericString(a, b string) string {
	af, aerr := strconv.ParseFloat(a, 64)
	bf, berr := strconv.ParseFloat(b, 64)
	if aerr != nil {
		return b
	}
	if berr != nil {
		return a
	}
	if af >= bf {
		return a
	}
	return b
}

func (w *Writer) buildVectorRecords(tenantID string, values []datapoint.GraphProjectable, nodes []datapoint.Node) []domain.VectorRecord {
	byID := make(map[string]datapoint.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	var records []domain.VectorRecord
	for _, v := range values {
		fields := v.IndexFields()
		if len(fields) == 0 {
			continue
		}
		for _, n := range v.Nodes() {
			node, ok := byID[n.ID]
			if !ok {
				continue
			}
			for _, field := range fields {
				val, ok := node.Properties[field]
				if !ok || val == "" {
					continue
				}
				records = append(records, domain.VectorRecord{
					ID:       domain.VectorRecordID(tenantID, node.ID, field),
					TenantID: tenantID,
					Kind:     node.Label,
					RefID:    node.ID,
					Content:  val,
					Metadata: map[string]string{"field": field},
				})
			}
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

func (w *Writer) upsertInBatches(ctx context.Context, collection string, records []domain.VectorRecord) error {
	for start := 0; start < len(records); start += w.batch {
		end := start + w.batch
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Content
		}

		embed := func(ctx context.Context) error {
			vecs, err := w.embedder.Embed(ctx, texts)
			if err != nil {
				return err
			}
			for i := range batch {
				if i < len(vecs) {
					batch[i].Embedding = vecs[i]
				}
			}
			return nil
		}

		var err error
		if w.limiter != nil {
			err = w.limiter.CallWait(ctx, embed)
		} else {
			err = embed(ctx)
		}
		if err != nil {
			return domain.NewTransientBackendError("embedder", err, 0)
		}

		if err := w.vectors.Upsert(ctx, collection, batch); err != nil {
			return domain.NewTransientBackendError("vectorstore", err, 0)
		}
	}
	return nil
}
