package datapoint

import (
	"strconv"

	"github.com/cognipipe/cognipipe/internal/domain"
)

// EntityProjection adapts a domain.Entity to GraphProjectable.
type EntityProjection struct {
	Entity domain.Entity
}

func (p EntityProjection) Nodes() []Node {
	props := map[string]string{
		"name":        p.Entity.Name,
		"description": p.Entity.Description,
	}
	for k, v := range p.Entity.Properties {
		props[k] = v
	}
	return []Node{{ID: p.Entity.ID, Label: p.Entity.Type, Properties: props}}
}

// Edges emits one MentionEdge-derived edge per chunk the entity survived
// resolution with, so provenance is traceable from entity to every source
// chunk it was extracted or merged from, not just the chunk graph.
func (p EntityProjection) Edges() []Edge {
	chunks := p.Entity.SourceChunks
	if len(chunks) == 0 && p.Entity.SourceChunk != "" {
		chunks = []string{p.Entity.SourceChunk}
	}
	edges := make([]Edge, 0, len(chunks))
	for _, chunkID := range chunks {
		m := domain.MentionEdge{EntityID: p.Entity.ID, ChunkID: chunkID}
		edges = append(edges, Edge{
			ID:   "mentions:" + m.EntityID + ":" + m.ChunkID,
			From: m.EntityID,
			To:   m.ChunkID,
			Type: "MENTIONS",
		})
	}
	return edges
}

func (EntityProjection) IndexFields() []string { return []string{"name", "description"} }

// RelationProjection adapts a domain.Relation to GraphProjectable.
type RelationProjection struct {
	Relation domain.Relation
}

func (RelationProjection) Nodes() []Node { return nil }

func (p RelationProjection) Edges() []Edge {
	return []Edge{{
		ID:   p.Relation.ID,
		From: p.Relation.FromID,
		To:   p.Relation.ToID,
		Type: p.Relation.Type,
	}}
}

func (RelationProjection) IndexFields() []string { return nil }

// ChunkProjection adapts a domain.DocumentChunk to GraphProjectable: a
// chunk is a node (so provenance can be traced from entity to source
// text) with a "derived_from" edge back to its owning Data item.
type ChunkProjection struct {
	Chunk  domain.DocumentChunk
	DataID string
}

func (p ChunkProjection) Nodes() []Node {
	return []Node{{
		ID:    p.Chunk.ID,
		Label: "Chunk",
		Properties: map[string]string{
			"text":  p.Chunk.Text,
			"index": strconv.Itoa(p.Chunk.Index),
		},
	}}
}

func (p ChunkProjection) Edges() []Edge {
	return []Edge{{
		ID:   "derived_from:" + p.Chunk.ID,
		From: p.Chunk.ID,
		To:   p.DataID,
		Type: "DERIVED_FROM",
	}}
}

func (ChunkProjection) IndexFields() []string { return []string{"text"} }
