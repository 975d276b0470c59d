// Package qdrant implements the chunk index on Qdrant over gRPC. It
// offers the same surface as the redisearch repository, so either
// backend can sit behind the pipeline unchanged.
package qdrant

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/agrodocs/consulta/internal/domain"
	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/search/filter"
	"github.com/agrodocs/consulta/internal/domain/search/result"
)

// pointsClient is the slice of the Qdrant points API the store consumes.
type pointsClient interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// collectionsClient is the slice of the Qdrant collections API the store consumes.
type collectionsClient interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// healthClient is the slice of the Qdrant service API the store consumes.
type healthClient interface {
	HealthCheck(ctx context.Context, in *pb.HealthCheckRequest, opts ...grpc.CallOption) (*pb.HealthCheckReply, error)
}

// Config holds the collection layout.
type Config struct {
	Collection string
	VectorDim  int
}

// Store implements the chunk index on Qdrant.
type Store struct {
	conn        *grpc.ClientConn
	points      pointsClient
	collections collectionsClient
	health      healthClient
	cfg         Config
}

// New dials Qdrant at the given gRPC address.
func New(addr string, cfg Config) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		health:      pb.NewQdrantClient(conn),
		cfg:         cfg,
	}, nil
}

// NewWithClients creates a Store over explicit API clients.
func NewWithClients(points pointsClient, collections collectionsClient, health healthClient, cfg Config) *Store {
	return &Store{points: points, collections: collections, health: health, cfg: cfg}
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Ensure creates the collection if it does not exist yet.
func (s *Store) Ensure(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.cfg.VectorDim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.cfg.Collection, err)
	}
	return nil
}

func (s *Store) collectionExists(ctx context.Context) (bool, error) {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.cfg.Collection {
			return true, nil
		}
	}
	return false, nil
}

// Upsert writes chunks with their vectors. Point IDs derive from the
// chunk identity, so re-ingesting unchanged input overwrites in place.
func (s *Store) Upsert(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(c.ID())},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: buildPayload(c),
		}
	}

	wait := true
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Query runs a filtered similarity search and maps the hits to results.
func (s *Store) Query(
	ctx context.Context, vector []float32, f filter.Filter, topK int,
) ([]result.Result, error) {
	req := &pb.SearchPoints{
		CollectionName: s.cfg.Collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
		Filter: buildFilter(f),
	}

	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.cfg.Collection, err)
	}

	hits := resp.GetResult()
	if len(hits) == 0 {
		return nil, nil
	}
	results := make([]result.Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, parseHit(hit))
	}
	return results, nil
}

// Count returns the number of stored points.
func (s *Store) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.cfg.Collection, err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Stats reports whether the collection exists and how many points it holds.
func (s *Store) Stats(ctx context.Context) (domain.IndexStats, error) {
	stats := domain.IndexStats{Collection: s.cfg.Collection}

	exists, err := s.collectionExists(ctx)
	if err != nil {
		return stats, err
	}
	stats.Exists = exists
	if !exists {
		return stats, nil
	}

	stats.Chunks, err = s.Count(ctx)
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// Drop deletes the collection. A missing collection is not an error,
// so Drop is safe to call on a fresh backend.
func (s *Store) Drop(ctx context.Context) error {
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: s.cfg.Collection,
	}); err != nil {
		return fmt.Errorf("delete collection %s: %w", s.cfg.Collection, err)
	}
	return nil
}

// Ping reports backend reachability.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.health.HealthCheck(ctx, &pb.HealthCheckRequest{}); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
