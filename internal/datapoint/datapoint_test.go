package datapoint

import (
	"testing"

	"github.com/cognipipe/cognipipe/internal/domain"
)

func TestMergeDedupesNodesByID(t *testing.T) {
	e1 := EntityProjection{Entity: domain.Entity{ID: "e1", Name: "Acme", Type: "organization"}}
	e2 := EntityProjection{Entity: domain.Entity{ID: "e1", Name: "Acme Corp", Type: "organization"}}
	r := RelationProjection{Relation: domain.Relation{ID: "r1", FromID: "e1", ToID: "e2", Type: "FOUNDED_BY"}}

	nodes, edges := Merge(e1, e2, r)
	if len(nodes) != 1 {
		t.Fatalf("expected 1 deduped node, got %d", len(nodes))
	}
	if nodes[0].Properties["name"] != "Acme Corp" {
		t.Fatalf("expected last write to win, got %q", nodes[0].Properties["name"])
	}
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}
}

func TestEntityProjectionMentionsEdges(t *testing.T) {
	ep := EntityProjection{Entity: domain.Entity{ID: "e1", Name: "Acme", Type: "organization", SourceChunks: []string{"c1", "c2"}}}
	edges := ep.Edges()
	if len(edges) != 2 {
		t.Fatalf("expected 2 mention edges, got %d", len(edges))
	}
	for _, e := range edges {
		if e.From != "e1" || e.Type != "MENTIONS" {
			t.Fatalf("unexpected mention edge: %+v", e)
		}
	}
}

func TestChunkProjectionDerivedFromEdge(t *testing.T) {
	cp := ChunkProjection{Chunk: domain.DocumentChunk{ID: "c1", Text: "hello"}, DataID: "d1"}
	edges := cp.Edges()
	if len(edges) != 1 || edges[0].To != "d1" || edges[0].Type != "DERIVED_FROM" {
		t.Fatalf("unexpected edges: %+v", edges)
	}
}
