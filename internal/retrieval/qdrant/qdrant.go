// Package qdrant implements retrieval.VectorStore against a Qdrant instance
// over gRPC. One fixed collection with cosine distance holds the active
// document's chunks.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kalambet/onedoc/internal/retrieval"
)

// scrollPageSize is the page size used when enumerating point IDs. Qdrant has
// no truncate primitive, so clearing scans all IDs page by page first.
const scrollPageSize = 256

// Store is a Qdrant-backed vector index.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	vectorSize  uint64
}

// New connects to Qdrant at host:port and returns a Store over the named
// collection with the given vector dimension.
func New(ctx context.Context, host string, port int, collection string, vectorSize uint64) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		vectorSize:  vectorSize,
	}, nil
}

// newWithClients wires pre-built clients; used by tests.
func newWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string, vectorSize uint64) *Store {
	return &Store{
		points:      points,
		collections: collections,
		collection:  collection,
		vectorSize:  vectorSize,
	}
}

// Ping reports whether the Qdrant instance is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.collectionExists(ctx)
	return err
}

// EnsureCollection creates the collection with the configured vector size and
// cosine distance if it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     s.vectorSize,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

// Clear enumerates every point ID via paginated scroll, then deletes them in
// one call. An absent collection or an empty one is a successful no-op.
func (s *Store) Clear(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	var ids []*pb.PointId
	var offset *pb.PointId
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Limit:          ptr(uint32(scrollPageSize)),
			Offset:         offset,
		})
		if err != nil {
			return fmt.Errorf("scrolling collection %s: %w", s.collection, err)
		}
		for _, pt := range resp.GetResult() {
			ids = append(ids, pt.GetId())
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	if len(ids) == 0 {
		return nil
	}

	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           ptr(true),
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting %d points from %s: %w", len(ids), s.collection, err)
	}
	return nil
}

// Insert upserts records with their chunk text and attribution payload.
func (s *Store) Insert(ctx context.Context, records []retrieval.Record) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: rec.ID}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{
				Vector: &pb.Vector{Data: rec.Embedding},
			}},
			Payload: map[string]*pb.Value{
				"text":   {Kind: &pb.Value_StringValue{StringValue: rec.Text}},
				"source": {Kind: &pb.Value_StringValue{StringValue: rec.Source}},
				"page":   {Kind: &pb.Value_IntegerValue{IntegerValue: int64(rec.Page)}},
			},
		}
	}

	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           ptr(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points into %s: %w", len(points), s.collection, err)
	}
	return nil
}

// Search returns the topK nearest records by cosine similarity, best-first.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]retrieval.ScoredRecord, error) {
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", s.collection, err)
	}

	results := make([]retrieval.ScoredRecord, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		rec := retrieval.Record{ID: pt.GetId().GetUuid()}
		for k, v := range pt.GetPayload() {
			switch k {
			case "text":
				rec.Text = v.GetStringValue()
			case "source":
				rec.Source = v.GetStringValue()
			case "page":
				rec.Page = int(v.GetIntegerValue())
			}
		}
		results[i] = retrieval.ScoredRecord{Record: rec, Score: pt.GetScore()}
	}
	return results, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Store) collectionExists(ctx context.Context) (bool, error) {
	resp, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{
		CollectionName: s.collection,
	})
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	return resp.GetResult().GetExists(), nil
}

func ptr[T any](v T) *T {
	return &v
}

var _ retrieval.VectorStore = (*Store)(nil)
