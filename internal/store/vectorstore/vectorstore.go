// Package vectorstore is the Qdrant-backed ports.VectorStore adapter.
// Every collection holds one vector per VectorRecord, with tenant_id,
// dataset_id, kind, ref_id and content carried in the point payload so a
// search result can be reconstructed into a domain.VectorRecord without a
// second round trip.
package vectorstore

import (
	"context"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cognipipe/cognipipe/internal/domain"
	"github.com/cognipipe/cognipipe/internal/ports"
)

// maxCollectionNameLen is Qdrant's collection name length limit.
const maxCollectionNameLen = 255

// CollectionName builds a Qdrant collection name from a tenant, dataset,
// kind and field, sanitized to ASCII letters/digits/underscore/hyphen and
// truncated to maxCollectionNameLen so callers never hand Qdrant a name it
// will reject.
func CollectionName(tenant, dataset, typ, field string) string {
	parts := []string{sanitize(tenant), sanitize(dataset), sanitize(typ), sanitize(field)}
	name := strings.Join(nonEmpty(parts), "_")
	if len(name) > maxCollectionNameLen {
		name = name[:maxCollectionNameLen]
	}
	return name
}

func nonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// reservedPayloadKeys are lifted into VectorRecord fields on Search and
// must not leak into VectorRecord.Metadata.
var reservedPayloadKeys = map[string]struct{}{
	"tenant_id":  {},
	"dataset_id": {},
	"kind":       {},
	"ref_id":     {},
	"content":    {},
}

// Store is a Qdrant-backed ports.VectorStore.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
}

// New dials Qdrant at addr over an insecure gRPC channel.
func New(addr string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) EnsureCollection(ctx context.Context, collection string, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorstore: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: create collection %s: %w", collection, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, records []domain.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload := map[string]*pb.Value{
			"tenant_id":  strValue(r.TenantID),
			"dataset_id": strValue(r.DatasetID),
			"kind":       strValue(r.Kind),
			"ref_id":     strValue(r.RefID),
			"content":    strValue(r.Content),
		}
		for k, v := range r.Metadata {
			payload[k] = strValue(v)
		}

		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Embedding}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %d points into %s: %w", len(records), collection, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, embedding []float32, topK int, filter map[string]string) ([]ports.SearchHit, error) {
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		must := make([]*pb.Condition, 0, len(filter))
		for k, v := range filter {
			must = append(must, fieldMatch(k, v))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search %s: %w", collection, err)
	}

	hits := make([]ports.SearchHit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		rec := domain.VectorRecord{ID: r.GetId().GetUuid(), Metadata: make(map[string]string)}
		for k, v := range r.GetPayload() {
			sv := v.GetStringValue()
			switch k {
			case "tenant_id":
				rec.TenantID = sv
			case "dataset_id":
				rec.DatasetID = sv
			case "kind":
				rec.Kind = sv
			case "ref_id":
				rec.RefID = sv
			case "content":
				rec.Content = sv
			default:
				rec.Metadata[k] = sv
			}
		}
		hits[i] = ports.SearchHit{Record: rec, Score: float64(r.GetScore())}
	}
	return hits, nil
}

func (s *Store) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pbIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pbIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}
	}

	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pbIDs},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorstore: delete %d points from %s: %w", len(ids), collection, err)
	}
	return nil
}

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}
