// Package graphstore is the Neo4j-backed ports.GraphStore adapter: nodes
// are stored as labeled property nodes, edges as typed relationships,
// and Neighbors runs a variable-length bounded traversal from a set of
// seed node IDs.
package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognipipe/cognipipe/internal/datapoint"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Store is a Neo4j-backed ports.GraphStore. Every node and edge carries a
// tenant_id property so a single Neo4j database can serve multiple
// tenants with filtered traversal.
type Store struct {
	driver neo4j.DriverWithContext
}

func New(driver neo4j.DriverWithContext) *Store {
	return &Store{driver: driver}
}

func (s *Store) UpsertNodes(ctx context.Context, tenantID string, nodes []datapoint.Node) error {
	if len(nodes) == 0 {
		return nil
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, n := range nodes {
			cypher := fmt.Sprintf(
				`MERGE (n:%s {id: $id, tenant_id: $tenant_id}) SET n += $props`,
				sanitizeLabel(n.Label),
			)
			props := make(map[string]any, len(n.Properties))
			for k, v := range n.Properties {
				props[k] = v
			}
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"id":        n.ID,
				"tenant_id": tenantID,
				"props":     props,
			}); err != nil {
				return nil, fmt.Errorf("graphstore: upsert node %s: %w", n.ID, err)
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) UpsertEdges(ctx context.Context, tenantID string, edges []datapoint.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, e := range edges {
			cypher := fmt.Sprintf(
				`MATCH (a {id: $from, tenant_id: $tenant_id}), (b {id: $to, tenant_id: $tenant_id})
				 MERGE (a)-[r:%s {id: $id}]->(b)
				 SET r += $props`,
				sanitizeRelType(e.Type),
			)
			props := make(map[string]any, len(e.Properties))
			for k, v := range e.Properties {
				props[k] = v
			}
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"from":      e.From,
				"to":        e.To,
				"id":        e.ID,
				"tenant_id": tenantID,
				"props":     props,
			}); err != nil {
				return nil, fmt.Errorf("graphstore: upsert edge %s: %w", e.ID, err)
			}
		}
		return nil, nil
	})
	return err
}

// Neighbors runs a bounded variable-length traversal outward from seeds
// and returns every node and edge touched, up to depth hops.
func (s *Store) Neighbors(ctx context.Context, tenantID string, seeds []string, depth int) ([]datapoint.Node, []datapoint.Edge, error) {
	if len(seeds) == 0 {
		return nil, nil, nil
	}
	if depth <= 0 {
		depth = 1
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (seed {tenant_id: $tenant_id})
		 WHERE seed.id IN $seeds
		 MATCH p = (seed)-[rels*1..%d]-(n {tenant_id: $tenant_id})
		 UNWIND rels AS r
		 RETURN DISTINCT startNode(r) AS a, r AS rel, endNode(r) AS b`,
		depth,
	)
	result, err := sess.Run(ctx, cypher, map[string]any{"tenant_id": tenantID, "seeds": seeds})
	if err != nil {
		return nil, nil, fmt.Errorf("graphstore: neighbors: %w", err)
	}

	nodesByID := make(map[string]datapoint.Node)
	var edges []datapoint.Edge
	for result.Next(ctx) {
		rec := result.Record()
		a, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "a")
		if err != nil {
			continue
		}
		b, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "b")
		if err != nil {
			continue
		}
		rel, _, err := neo4j.GetRecordValue[dbtype.Relationship](rec, "rel")
		if err != nil {
			continue
		}
		na := nodeFromProps(a)
		nb := nodeFromProps(b)
		nodesByID[na.ID] = na
		nodesByID[nb.ID] = nb
		edges = append(edges, edgeFromRel(rel, na.ID, nb.ID))
	}

	nodes := make([]datapoint.Node, 0, len(nodesByID))
	for _, n := range nodesByID {
		nodes = append(nodes, n)
	}
	return nodes, edges, nil
}

func (s *Store) NodesByIDs(ctx context.Context, tenantID string, ids []string) ([]datapoint.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (n {tenant_id: $tenant_id}) WHERE n.id IN $ids RETURN n`
	result, err := sess.Run(ctx, cypher, map[string]any{"tenant_id": tenantID, "ids": ids})
	if err != nil {
		return nil, fmt.Errorf("graphstore: nodes by ids: %w", err)
	}

	var nodes []datapoint.Node
	for result.Next(ctx) {
		n, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "n")
		if err != nil {
			continue
		}
		nodes = append(nodes, nodeFromProps(n))
	}
	return nodes, nil
}

func nodeFromProps(n dbtype.Node) datapoint.Node {
	props := make(map[string]string, len(n.Props))
	id := ""
	for k, v := range n.Props {
		if k == "id" {
			if s, ok := v.(string); ok {
				id = s
			}
			continue
		}
		if k == "tenant_id" {
			continue
		}
		if s, ok := v.(string); ok {
			props[k] = s
		}
	}
	label := ""
	if len(n.Labels) > 0 {
		label = n.Labels[0]
	}
	return datapoint.Node{ID: id, Label: label, Properties: props}
}

func edgeFromRel(r dbtype.Relationship, fromID, toID string) datapoint.Edge {
	props := make(map[string]string, len(r.Props))
	id := ""
	for k, v := range r.Props {
		if k == "id" {
			if s, ok := v.(string); ok {
				id = s
			}
			continue
		}
		if s, ok := v.(string); ok {
			props[k] = s
		}
	}
	return datapoint.Edge{ID: id, From: fromID, To: toID, Type: r.Type, Properties: props}
}

// sanitizeLabel and sanitizeRelType keep user-controlled entity/relation
// type strings from breaking out of the Cypher label/type position,
// which cannot be parameterized.
func sanitizeLabel(label string) string {
	return sanitizeIdentifier(label, "Entity")
}

func sanitizeRelType(typ string) string {
	return strings.ToUpper(sanitizeIdentifier(typ, "RELATED_TO"))
}

func sanitizeIdentifier(s, fallback string) string {
	safe := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			safe = append(safe, c)
		}
	}
	if len(safe) == 0 {
		return fallback
	}
	return string(safe)
}
