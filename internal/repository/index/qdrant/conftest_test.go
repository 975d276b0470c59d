package qdrant

import (
	"context"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/record"
)

type mockPoints struct {
	upsertResp *pb.PointsOperationResponse
	upsertErr  error
	searchResp *pb.SearchResponse
	searchErr  error
	countResp  *pb.CountResponse
	countErr   error

	lastUpsert *pb.UpsertPoints
	lastSearch *pb.SearchPoints
	lastCount  *pb.CountPoints
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.lastUpsert = in
	return m.upsertResp, m.upsertErr
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.lastSearch = in
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Count(_ context.Context, in *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	m.lastCount = in
	return m.countResp, m.countErr
}

type mockCollections struct {
	listResp   *pb.ListCollectionsResponse
	listErr    error
	createResp *pb.CollectionOperationResponse
	createErr  error
	deleteResp *pb.CollectionOperationResponse
	deleteErr  error

	lastCreate *pb.CreateCollection
	lastDelete *pb.DeleteCollection
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.lastCreate = in
	return m.createResp, m.createErr
}

func (m *mockCollections) Delete(_ context.Context, in *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.lastDelete = in
	return m.deleteResp, m.deleteErr
}

type mockHealth struct {
	err error
}

func (m *mockHealth) HealthCheck(_ context.Context, _ *pb.HealthCheckRequest, _ ...grpc.CallOption) (*pb.HealthCheckReply, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &pb.HealthCheckReply{Title: "qdrant"}, nil
}

func listWith(names ...string) *pb.ListCollectionsResponse {
	descs := make([]*pb.CollectionDescription, len(names))
	for i, n := range names {
		descs[i] = &pb.CollectionDescription{Name: n}
	}
	return &pb.ListCollectionsResponse{Collections: descs}
}

func newTestStore(mp *mockPoints, mc *mockCollections) *Store {
	return NewWithClients(mp, mc, &mockHealth{}, Config{Collection: "pdf_chunks", VectorDim: 4})
}

func testChunk(t *testing.T, filename string, page, idx int) chunk.Chunk {
	t.Helper()
	c, err := chunk.New("Mantener el producto fuera del alcance de los ninos.", chunk.Meta{
		Meta: record.Meta{
			Source:     "/data/" + filename,
			Filename:   filename,
			Page:       page,
			TotalPages: 12,
		},
		ChunkIndex:  idx,
		StartOffset: idx * 1800,
		EndOffset:   idx*1800 + 2000,
		ChunkSize:   2000,
		Overlap:     200,
	})
	if err != nil {
		t.Fatalf("chunk.New: %v", err)
	}
	return c
}

func testVector() []float32 {
	return []float32{0.4, 0.3, 0.2, 0.1}
}
