package qdrant

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/agrodocs/consulta/internal/domain/chunk"
	"github.com/agrodocs/consulta/internal/domain/search/filter"
)

// --- Ensure ---

func TestEnsure_CreatesCollection(t *testing.T) {
	mc := &mockCollections{
		listResp:   listWith(),
		createResp: &pb.CollectionOperationResponse{Result: true},
	}
	s := newTestStore(&mockPoints{}, mc)

	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mc.lastCreate == nil {
		t.Fatal("expected Create to be called")
	}
	if mc.lastCreate.CollectionName != "pdf_chunks" {
		t.Errorf("unexpected collection: %s", mc.lastCreate.CollectionName)
	}
	params := mc.lastCreate.GetVectorsConfig().GetParams()
	if params.GetSize() != 4 {
		t.Errorf("expected size 4, got %d", params.GetSize())
	}
	if params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("expected cosine distance, got %s", params.GetDistance())
	}
}

func TestEnsure_AlreadyExists(t *testing.T) {
	mc := &mockCollections{listResp: listWith("pdf_chunks")}
	s := newTestStore(&mockPoints{}, mc)

	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mc.lastCreate != nil {
		t.Error("Create must not run for an existing collection")
	}
}

func TestEnsure_ListError(t *testing.T) {
	mc := &mockCollections{listErr: errors.New("rpc fail")}
	s := newTestStore(&mockPoints{}, mc)

	if err := s.Ensure(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestEnsure_CreateError(t *testing.T) {
	mc := &mockCollections{
		listResp:  listWith(),
		createErr: errors.New("create fail"),
	}
	s := newTestStore(&mockPoints{}, mc)

	if err := s.Ensure(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- Upsert ---

func TestUpsert_HappyPath(t *testing.T) {
	mp := &mockPoints{upsertResp: &pb.PointsOperationResponse{}}
	s := newTestStore(mp, &mockCollections{})

	c1 := testChunk(t, "acelepryn.pdf", 2, 0)
	c2 := testChunk(t, "acelepryn.pdf", 2, 1)

	err := s.Upsert(context.Background(), []chunk.Chunk{c1, c2}, [][]float32{testVector(), testVector()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mp.lastUpsert == nil {
		t.Fatal("expected Upsert to be called")
	}
	if mp.lastUpsert.CollectionName != "pdf_chunks" {
		t.Errorf("unexpected collection: %s", mp.lastUpsert.CollectionName)
	}
	points := mp.lastUpsert.GetPoints()
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if got := points[0].GetId().GetUuid(); got != pointID(c1.ID()) {
		t.Errorf("unexpected point id: %s", got)
	}
	if got := points[0].GetVectors().GetVector().GetData(); len(got) != 4 {
		t.Errorf("expected 4 vector components, got %d", len(got))
	}
	payload := points[0].GetPayload()
	if payload["chunk_id"].GetStringValue() != c1.ID() {
		t.Errorf("unexpected chunk_id payload: %s", payload["chunk_id"].GetStringValue())
	}
	if payload["content"].GetStringValue() != c1.Content() {
		t.Errorf("unexpected content payload")
	}
	if payload["page"].GetIntegerValue() != 2 {
		t.Errorf("unexpected page payload: %d", payload["page"].GetIntegerValue())
	}
}

func TestUpsert_CountMismatch(t *testing.T) {
	mp := &mockPoints{}
	s := newTestStore(mp, &mockCollections{})

	c := testChunk(t, "amistar.pdf", 1, 0)
	err := s.Upsert(context.Background(), []chunk.Chunk{c}, [][]float32{testVector(), testVector()})
	if err == nil {
		t.Fatal("expected error")
	}
	if mp.lastUpsert != nil {
		t.Error("store must not be called on mismatch")
	}
}

func TestUpsert_Empty(t *testing.T) {
	mp := &mockPoints{}
	s := newTestStore(mp, &mockCollections{})

	if err := s.Upsert(context.Background(), nil, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mp.lastUpsert != nil {
		t.Error("store must not be called for empty input")
	}
}

func TestUpsert_Error(t *testing.T) {
	mp := &mockPoints{upsertErr: errors.New("fail")}
	s := newTestStore(mp, &mockCollections{})

	c := testChunk(t, "amistar.pdf", 1, 0)
	err := s.Upsert(context.Background(), []chunk.Chunk{c}, [][]float32{testVector()})
	if err == nil {
		t.Fatal("expected error")
	}
}

// --- Query ---

func TestQuery_HappyPath(t *testing.T) {
	mp := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{
					Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "11111111-2222-3333-4444-555555555555"}},
					Score: 0.93,
					Payload: map[string]*pb.Value{
						"chunk_id":    {Kind: &pb.Value_StringValue{StringValue: "abc123"}},
						"content":     {Kind: &pb.Value_StringValue{StringValue: "Dosis: 250 ml por hectarea."}},
						"filename":    {Kind: &pb.Value_StringValue{StringValue: "acelepryn.pdf"}},
						"page":        {Kind: &pb.Value_IntegerValue{IntegerValue: 3}},
						"chunk_index": {Kind: &pb.Value_IntegerValue{IntegerValue: 1}},
					},
				},
			},
		},
	}
	s := newTestStore(mp, &mockCollections{})

	results, err := s.Query(context.Background(), testVector(), filter.Filter{}, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mp.lastSearch.GetLimit() != 6 {
		t.Errorf("unexpected limit: %d", mp.lastSearch.GetLimit())
	}
	if !mp.lastSearch.GetWithPayload().GetEnable() {
		t.Error("expected payload enabled")
	}
	if mp.lastSearch.GetFilter() != nil {
		t.Error("empty filter must not produce conditions")
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.ID() != "abc123" {
		t.Errorf("expected chunk_id as result ID, got %s", r.ID())
	}
	if r.Score() < 0.929 || r.Score() > 0.931 {
		t.Errorf("unexpected score: %f", r.Score())
	}
	if r.Filename() != "acelepryn.pdf" || r.Page() != 3 || r.ChunkIndex() != 1 {
		t.Errorf("unexpected citation: %s p%d c%d", r.Filename(), r.Page(), r.ChunkIndex())
	}
}

func TestQuery_FilterConditions(t *testing.T) {
	mp := &mockPoints{searchResp: &pb.SearchResponse{}}
	s := newTestStore(mp, &mockCollections{})

	f := filter.New("acelepryn.pdf", "abejas")
	if _, err := s.Query(context.Background(), testVector(), f, 6); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	must := mp.lastSearch.GetFilter().GetMust()
	if len(must) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(must))
	}
	fc := must[0].GetField()
	if fc.GetKey() != "filename" || fc.GetMatch().GetKeyword() != "acelepryn.pdf" {
		t.Errorf("unexpected filename condition: %v", fc)
	}
	tc := must[1].GetField()
	if tc.GetKey() != "content" || tc.GetMatch().GetText() != "abejas" {
		t.Errorf("unexpected content condition: %v", tc)
	}
}

func TestQuery_Empty(t *testing.T) {
	mp := &mockPoints{searchResp: &pb.SearchResponse{}}
	s := newTestStore(mp, &mockCollections{})

	results, err := s.Query(context.Background(), testVector(), filter.Filter{}, 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestQuery_Error(t *testing.T) {
	mp := &mockPoints{searchErr: errors.New("search fail")}
	s := newTestStore(mp, &mockCollections{})

	if _, err := s.Query(context.Background(), testVector(), filter.Filter{}, 6); err == nil {
		t.Fatal("expected error")
	}
}

// --- Count / Stats ---

func TestCount(t *testing.T) {
	mp := &mockPoints{
		countResp: &pb.CountResponse{Result: &pb.CountResult{Count: 42}},
	}
	s := newTestStore(mp, &mockCollections{})

	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Fatalf("expected 42, got %d", n)
	}
	if mp.lastCount.CollectionName != "pdf_chunks" {
		t.Errorf("unexpected collection: %s", mp.lastCount.CollectionName)
	}
	if mp.lastCount.Exact == nil || !*mp.lastCount.Exact {
		t.Error("expected exact count")
	}
}

func TestStats_CollectionMissing(t *testing.T) {
	mp := &mockPoints{}
	mc := &mockCollections{listResp: listWith("other")}
	s := newTestStore(mp, mc)

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Exists {
		t.Error("expected Exists=false")
	}
	if mp.lastCount != nil {
		t.Error("count must not run when the collection is missing")
	}
}

func TestStats_WithPoints(t *testing.T) {
	mp := &mockPoints{
		countResp: &pb.CountResponse{Result: &pb.CountResult{Count: 7}},
	}
	mc := &mockCollections{listResp: listWith("pdf_chunks")}
	s := newTestStore(mp, mc)

	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.Exists || stats.Chunks != 7 || stats.Collection != "pdf_chunks" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

// --- Drop ---

func TestDrop_DeletesCollection(t *testing.T) {
	mc := &mockCollections{
		listResp:   listWith("pdf_chunks"),
		deleteResp: &pb.CollectionOperationResponse{Result: true},
	}
	s := newTestStore(&mockPoints{}, mc)

	if err := s.Drop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mc.lastDelete == nil || mc.lastDelete.CollectionName != "pdf_chunks" {
		t.Fatalf("expected collection delete, got %v", mc.lastDelete)
	}
}

func TestDrop_MissingCollection(t *testing.T) {
	mc := &mockCollections{listResp: listWith()}
	s := newTestStore(&mockPoints{}, mc)

	if err := s.Drop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mc.lastDelete != nil {
		t.Error("Delete must not run for a missing collection")
	}
}

func TestDrop_Error(t *testing.T) {
	mc := &mockCollections{
		listResp:  listWith("pdf_chunks"),
		deleteErr: errors.New("fail"),
	}
	s := newTestStore(&mockPoints{}, mc)

	if err := s.Drop(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

// --- Ping / Close ---

func TestPing(t *testing.T) {
	s := newTestStore(&mockPoints{}, &mockCollections{})
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	down := NewWithClients(&mockPoints{}, &mockCollections{}, &mockHealth{err: errors.New("down")}, Config{Collection: "pdf_chunks"})
	if err := down.Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestClose_WithoutConn(t *testing.T) {
	s := newTestStore(&mockPoints{}, &mockCollections{})
	if err := s.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
